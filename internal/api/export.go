package api

import (
	"errors"
	"fmt"
	"net/http"

	"caseforge/internal/calibration"
	"caseforge/internal/compositor"
	"caseforge/internal/element"
	"caseforge/internal/mockup"
)

// exportRequest is the render job the editor page posts: the client-held
// collection travels with the request so no server session is needed.
type exportRequest struct {
	MockupID    int                  `json:"mockupId"`
	Elements    []element.Element    `json:"elements"`
	Background  string               `json:"background"`
	Calibration *calibration.Profile `json:"calibration,omitempty"`
	// Preview dimensions are CSS pixels, so fractional values are allowed.
	Preview struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"preview"`
	Size    int    `json:"size"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Format  string `json:"format"`
	Quality int    `json:"quality,omitempty"`
}

// Export handles POST /api/export: composites the posted collection over the
// requested mockup and streams the encoded image as a download.
func (a *API) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !a.decodeBody(w, r, &req) {
		return
	}

	t, err := a.catalog.Get(req.MockupID)
	if err != nil {
		a.mockupError(w, err)
		return
	}
	path, err := a.catalog.FilePath(req.MockupID)
	if err != nil {
		a.mockupError(w, err)
		return
	}

	format, err := compositor.ParseFormat(req.Format)
	if err != nil {
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	// The canonical UI choices are square sizes; width/height accept any
	// positive target for direct API callers.
	width, height := req.Width, req.Height
	if req.Size > 0 {
		width, height = req.Size, req.Size
	}
	if width <= 0 || height <= 0 {
		a.fail(w, http.StatusBadRequest, "size (or width and height) must be positive")
		return
	}

	col := element.Collection{Elements: req.Elements, Background: req.Background}
	col.Normalize()

	prof := a.calibration.Load()
	if req.Calibration != nil {
		prof = *req.Calibration
	}

	scene := compositor.Scene{
		MockupSource: path,
		Elements:     col.Elements,
		Background:   col.Background,
	}
	params := compositor.Params{
		Width:         width,
		Height:        height,
		Format:        format,
		JPEGQuality:   req.Quality,
		PreviewWidth:  req.Preview.Width,
		PreviewHeight: req.Preview.Height,
	}

	img, err := a.compositor.Render(r.Context(), scene, prof, params)
	if err != nil {
		a.exportError(w, err)
		return
	}

	name := compositor.ExportName(t, params)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := compositor.Encode(w, img, format, params.JPEGQuality); err != nil {
		// Headers are out; all we can do is log.
		a.log.Error().Err(err).Str("name", name).Msg("export encode failed")
	}
}

func (a *API) exportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, compositor.ErrBusy):
		a.fail(w, http.StatusConflict, "another render is in progress")
	case errors.Is(err, compositor.ErrLoadTimeout):
		a.fail(w, http.StatusGatewayTimeout, "asset load timed out")
	case errors.Is(err, compositor.ErrNoMockup), errors.Is(err, mockup.ErrNotFound):
		a.fail(w, http.StatusNotFound, "mockup not found")
	default:
		a.log.Error().Err(err).Msg("export render failed")
		a.fail(w, http.StatusInternalServerError, "render failed")
	}
}
