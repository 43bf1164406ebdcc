// Package api exposes the editor's storage collaborator over HTTP: the
// mockup catalog, per-mockup element persistence, uploads, calibration and
// server-side export rendering, plus a websocket event feed and static
// hosting of the data directory under /files/.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"caseforge/internal/calibration"
	"caseforge/internal/compositor"
	"caseforge/internal/imaging"
	"caseforge/internal/mockup"
	"caseforge/internal/store"
)

// API holds the handler dependencies.
type API struct {
	disk        *store.Disk
	catalog     *mockup.Catalog
	calibration *calibration.Store
	compositor  *compositor.Compositor
	cache       *imaging.Cache
	hub         *Hub
	log         zerolog.Logger
}

// New wires the handlers to their collaborators.
func New(disk *store.Disk, catalog *mockup.Catalog, cal *calibration.Store, comp *compositor.Compositor, cache *imaging.Cache, log zerolog.Logger) *API {
	return &API{
		disk:        disk,
		catalog:     catalog,
		calibration: cal,
		compositor:  comp,
		cache:       cache,
		hub:         NewHub(log),
		log:         log,
	}
}

// Routes builds the chi router for the whole endpoint surface.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/mockups", a.ListMockups)
		r.Post("/upload/mockup", a.UploadMockup)
		r.Put("/mockups/{id}/model", a.SetMockupModel)
		r.Delete("/mockups/{id}", a.DeleteMockup)

		r.Post("/upload/user-image", a.UploadUserImage)

		r.Post("/mockup-elements/{mockupId}", a.SaveElements)
		r.Get("/mockup-elements/{mockupId}", a.GetElements)
		r.Delete("/mockup-elements/{mockupId}", a.DeleteElements)

		r.Get("/calibration", a.GetCalibration)
		r.Put("/calibration", a.PutCalibration)
		r.Delete("/calibration", a.ResetCalibration)

		r.Post("/export", a.Export)

		r.Get("/events", a.hub.Serve)
	})

	r.Get("/healthz", a.Health)

	fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(a.disk.FilesRoot())))
	r.Get("/files/*", fileServer.ServeHTTP)

	return r
}

// EventHub returns the websocket event hub, exposed so the server can close
// it on shutdown.
func (a *API) EventHub() *Hub { return a.hub }

// Health reports liveness.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(a.log, w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Every response body carries a success flag; failures add an error string.
// This envelope is what the editor pages key their handling on.

func writeJSON(log zerolog.Logger, w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func (a *API) ok(w http.ResponseWriter, extra map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(a.log, w, http.StatusOK, body)
}

func (a *API) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(a.log, w, status, map[string]any{"success": false, "error": msg})
}
