package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"caseforge/internal/calibration"
	"caseforge/internal/element"
	"caseforge/internal/imaging"
	"caseforge/internal/store"
)

// SaveElements handles POST /api/mockup-elements/{mockupId}: the whole
// collection for one mockup, overwritten wholesale. The page-exit beacon
// posts the same shape, so this path must accept fire-and-forget requests.
func (a *API) SaveElements(w http.ResponseWriter, r *http.Request) {
	id, ok := a.mockupID(w, r, "mockupId")
	if !ok {
		return
	}
	var body struct {
		Elements   []element.Element `json:"elements"`
		Background string            `json:"background"`
	}
	if !a.decodeBody(w, r, &body) {
		return
	}

	col := element.Collection{Elements: body.Elements, Background: body.Background}
	col.Normalize()
	if err := a.disk.SaveElements(r.Context(), id, col); err != nil {
		a.log.Error().Err(err).Int("mockup", id).Msg("element save failed")
		a.fail(w, http.StatusInternalServerError, "failed to save elements")
		return
	}
	a.hub.Broadcast(EventElementsChanged, map[string]any{"mockupId": id})
	a.ok(w, nil)
}

// GetElements handles GET /api/mockup-elements/{mockupId}. A mockup with
// nothing saved yields an empty collection, not an error; the editor treats
// both the same.
func (a *API) GetElements(w http.ResponseWriter, r *http.Request) {
	id, ok := a.mockupID(w, r, "mockupId")
	if !ok {
		return
	}
	col, err := a.disk.LoadElements(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		col = element.NewCollection()
	} else if err != nil {
		a.log.Error().Err(err).Int("mockup", id).Msg("element load failed")
		a.fail(w, http.StatusInternalServerError, "failed to load elements")
		return
	}
	if col.Elements == nil {
		col.Elements = []element.Element{}
	}
	a.ok(w, map[string]any{"elements": col.Elements, "background": col.Background})
}

// DeleteElements handles DELETE /api/mockup-elements/{mockupId}.
func (a *API) DeleteElements(w http.ResponseWriter, r *http.Request) {
	id, ok := a.mockupID(w, r, "mockupId")
	if !ok {
		return
	}
	if err := a.disk.DeleteElements(r.Context(), id); err != nil {
		a.log.Error().Err(err).Int("mockup", id).Msg("element delete failed")
		a.fail(w, http.StatusInternalServerError, "failed to delete elements")
		return
	}
	a.hub.Broadcast(EventElementsChanged, map[string]any{"mockupId": id})
	a.ok(w, nil)
}

// UploadUserImage handles POST /api/upload/user-image (multipart field
// "image"). The upload is decoded before storing so a corrupt file is
// rejected synchronously instead of failing later at render time.
func (a *API) UploadUserImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		a.fail(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		a.fail(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if _, err := imaging.Decode(raw); err != nil {
		a.fail(w, http.StatusBadRequest, "unsupported or corrupt image")
		return
	}

	url, err := a.disk.SaveUserImage(bytes.NewReader(raw), filepath.Ext(header.Filename))
	if err != nil {
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	a.log.Info().Str("path", url).Msg("user image uploaded")
	a.ok(w, map[string]any{"filePath": url})
}

// GetCalibration handles GET /api/calibration. Load never fails; missing or
// corrupt state silently yields the factory profile.
func (a *API) GetCalibration(w http.ResponseWriter, _ *http.Request) {
	a.ok(w, map[string]any{"calibration": a.calibration.Load()})
}

// PutCalibration handles PUT /api/calibration, overwriting the profile
// wholesale.
func (a *API) PutCalibration(w http.ResponseWriter, r *http.Request) {
	var p struct {
		XPositionFactor float64 `json:"xPositionFactor"`
		YPositionFactor float64 `json:"yPositionFactor"`
		ZoomFactor      float64 `json:"zoomFactor"`
	}
	if !a.decodeBody(w, r, &p) {
		return
	}
	if p.XPositionFactor <= 0 || p.YPositionFactor <= 0 || p.ZoomFactor <= 0 {
		a.fail(w, http.StatusBadRequest, "calibration factors must be positive")
		return
	}
	prof := calibration.Profile{
		XPositionFactor: p.XPositionFactor,
		YPositionFactor: p.YPositionFactor,
		ZoomFactor:      p.ZoomFactor,
	}
	if err := a.calibration.Save(prof); err != nil {
		a.log.Error().Err(err).Msg("calibration save failed")
		a.fail(w, http.StatusInternalServerError, "failed to save calibration")
		return
	}
	a.hub.Broadcast(EventCalibrationChanged, nil)
	a.ok(w, map[string]any{"calibration": prof})
}

// ResetCalibration handles DELETE /api/calibration, restoring the factory
// profile.
func (a *API) ResetCalibration(w http.ResponseWriter, _ *http.Request) {
	prof, err := a.calibration.Reset()
	if err != nil {
		a.log.Error().Err(err).Msg("calibration reset failed")
		a.fail(w, http.StatusInternalServerError, "failed to reset calibration")
		return
	}
	a.hub.Broadcast(EventCalibrationChanged, nil)
	a.ok(w, map[string]any{"calibration": prof})
}

func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(into); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid request payload: "+err.Error())
		return false
	}
	return true
}
