package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"caseforge/internal/mockup"
)

// maxUploadBytes bounds multipart uploads; phone-case art and templates are
// a few megabytes at most.
const maxUploadBytes = 32 << 20

// ListMockups handles GET /api/mockups.
func (a *API) ListMockups(w http.ResponseWriter, r *http.Request) {
	templates, err := a.catalog.List()
	if err != nil {
		a.log.Error().Err(err).Msg("mockup list failed")
		a.fail(w, http.StatusInternalServerError, "failed to list mockups")
		return
	}
	if templates == nil {
		templates = []mockup.Template{}
	}
	a.ok(w, map[string]any{"mockups": templates})
}

// UploadMockup handles POST /api/upload/mockup. The multipart form carries
// the file as "mockup" plus "mockupNumber" and "mockupModel" fields; the
// number becomes both filename and identity. Omitting the number assigns the
// next free id.
func (a *API) UploadMockup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("mockup")
	if err != nil {
		a.fail(w, http.StatusBadRequest, "missing mockup file")
		return
	}
	defer file.Close()

	id := 0
	if num := r.FormValue("mockupNumber"); num != "" {
		id, err = strconv.Atoi(num)
		if err != nil || id <= 0 {
			a.fail(w, http.StatusBadRequest, "mockupNumber must be a positive integer")
			return
		}
	} else if id, err = a.catalog.NextID(); err != nil {
		a.log.Error().Err(err).Msg("mockup id assignment failed")
		a.fail(w, http.StatusInternalServerError, "failed to assign mockup id")
		return
	}

	ext := filepath.Ext(header.Filename)
	t, err := a.catalog.Add(id, ext, file, r.FormValue("mockupModel"))
	if err != nil {
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	// A replaced file keeps its path; drop any cached decode of the old one.
	if path, err := a.catalog.FilePath(t.ID); err == nil {
		a.cache.Invalidate(path)
	}

	a.log.Info().Int("id", t.ID).Str("model", t.Model).Msg("mockup uploaded")
	a.hub.Broadcast(EventMockupsChanged, map[string]any{"id": t.ID})
	a.ok(w, map[string]any{"filePath": t.Path, "mockup": t})
}

// SetMockupModel handles PUT /api/mockups/{id}/model.
func (a *API) SetMockupModel(w http.ResponseWriter, r *http.Request) {
	id, ok := a.mockupID(w, r, "id")
	if !ok {
		return
	}
	var body struct {
		Model string `json:"model"`
	}
	if !a.decodeBody(w, r, &body) {
		return
	}
	if err := a.catalog.SetModel(id, body.Model); err != nil {
		a.mockupError(w, err)
		return
	}
	a.hub.Broadcast(EventMockupsChanged, map[string]any{"id": id})
	a.ok(w, nil)
}

// DeleteMockup handles DELETE /api/mockups/{id}. The saved element
// collection for that id goes with it.
func (a *API) DeleteMockup(w http.ResponseWriter, r *http.Request) {
	id, ok := a.mockupID(w, r, "id")
	if !ok {
		return
	}
	if err := a.catalog.Delete(id); err != nil {
		a.mockupError(w, err)
		return
	}
	if err := a.disk.DeleteElements(r.Context(), id); err != nil {
		a.log.Warn().Err(err).Int("id", id).Msg("element cleanup after mockup delete failed")
	}
	a.log.Info().Int("id", id).Msg("mockup deleted")
	a.hub.Broadcast(EventMockupsChanged, map[string]any{"id": id})
	a.ok(w, nil)
}

func (a *API) mockupID(w http.ResponseWriter, r *http.Request, param string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, param))
	if err != nil || id <= 0 {
		a.fail(w, http.StatusBadRequest, "invalid mockup id")
		return 0, false
	}
	return id, true
}

func (a *API) mockupError(w http.ResponseWriter, err error) {
	if errors.Is(err, mockup.ErrNotFound) {
		a.fail(w, http.StatusNotFound, "mockup not found")
		return
	}
	a.log.Error().Err(err).Msg("mockup operation failed")
	a.fail(w, http.StatusInternalServerError, "mockup operation failed")
}
