package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caseforge/internal/calibration"
	"caseforge/internal/compositor"
	"caseforge/internal/imaging"
	"caseforge/internal/mockup"
	"caseforge/internal/store"
)

func newTestAPI(t *testing.T) (http.Handler, *store.Disk) {
	t.Helper()
	disk, err := store.Open(t.TempDir())
	require.NoError(t, err)
	catalog, err := mockup.OpenCatalog(disk.MockupsDir())
	require.NoError(t, err)

	cache := imaging.NewCache()
	comp := compositor.New(disk.Loader(cache), zerolog.Nop())
	a := New(disk, catalog, calibration.NewStore(disk.CalibrationPath()), comp, cache, zerolog.Nop())
	t.Cleanup(a.EventHub().Close)
	return a.Routes(), disk
}

func pngUpload(t *testing.T, field, filename string, w, h int, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	require.NoError(t, png.Encode(fw, image.NewNRGBA(image.Rect(0, 0, w, h))))
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func uploadMockup(t *testing.T, h http.Handler, id int, model string) {
	t.Helper()
	body, ct := pngUpload(t, "mockup", "case.png", 40, 80, map[string]string{
		"mockupNumber": fmt.Sprint(id),
		"mockupModel":  model,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/mockup", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	h, _ := newTestAPI(t)
	rec, body := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestMockupLifecycle(t *testing.T) {
	h, _ := newTestAPI(t)

	rec, body := doJSON(t, h, http.MethodGet, "/api/mockups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Empty(t, body["mockups"])

	uploadMockup(t, h, 5, "iPhone 15")

	rec, body = doJSON(t, h, http.MethodGet, "/api/mockups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mockups := body["mockups"].([]any)
	require.Len(t, mockups, 1)
	first := mockups[0].(map[string]any)
	assert.Equal(t, float64(5), first["id"])
	assert.Equal(t, "/files/mockups/5.png", first["path"])
	assert.Equal(t, "iPhone 15", first["model"])

	rec, _ = doJSON(t, h, http.MethodPut, "/api/mockups/5/model", map[string]string{"model": "Pixel 8"})
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = doJSON(t, h, http.MethodGet, "/api/mockups", nil)
	assert.Equal(t, "Pixel 8", body["mockups"].([]any)[0].(map[string]any)["model"])

	// The uploaded file is served statically.
	req := httptest.NewRequest(http.MethodGet, "/files/mockups/5.png", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusOK, rec2.Code)

	rec, _ = doJSON(t, h, http.MethodDelete, "/api/mockups/5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, h, http.MethodDelete, "/api/mockups/5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadMockupValidation(t *testing.T) {
	h, _ := newTestAPI(t)

	// No file field at all.
	rec, body := doJSON(t, h, http.MethodPost, "/api/upload/mockup", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])

	// Bad extension.
	upload, ct := pngUpload(t, "mockup", "case.exe", 4, 4, map[string]string{"mockupNumber": "1"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/mockup", upload)
	req.Header.Set("Content-Type", ct)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)

	// Bad number.
	upload, ct = pngUpload(t, "mockup", "case.png", 4, 4, map[string]string{"mockupNumber": "-2"})
	req = httptest.NewRequest(http.MethodPost, "/api/upload/mockup", upload)
	req.Header.Set("Content-Type", ct)
	rec3 := httptest.NewRecorder()
	h.ServeHTTP(rec3, req)
	assert.Equal(t, http.StatusBadRequest, rec3.Code)
}

func TestUploadMockupAssignsNextID(t *testing.T) {
	h, _ := newTestAPI(t)
	uploadMockup(t, h, 2, "A")

	upload, ct := pngUpload(t, "mockup", "case.png", 4, 4, map[string]string{"mockupModel": "B"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/mockup", upload)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/files/mockups/3.png", body["filePath"])
}

func TestUserImageUpload(t *testing.T) {
	h, _ := newTestAPI(t)

	upload, ct := pngUpload(t, "image", "art.png", 10, 10, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/user-image", upload)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	path := body["filePath"].(string)
	assert.True(t, strings.HasPrefix(path, "/files/uploads/"))

	req = httptest.NewRequest(http.MethodGet, path, nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestUserImageUploadRejectsGarbage(t *testing.T) {
	h, _ := newTestAPI(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "art.png")
	require.NoError(t, err)
	fw.Write([]byte("definitely not an image"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/user-image", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestElementsRoundTrip(t *testing.T) {
	h, _ := newTestAPI(t)

	// Nothing saved yet: empty collection, not an error.
	rec, body := doJSON(t, h, http.MethodGet, "/api/mockup-elements/4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Empty(t, body["elements"])

	payload := map[string]any{
		"background": "#112233",
		"elements": []map[string]any{{
			"id": 1, "source": "/files/uploads/a.png", "name": "Element 1",
			"transform": map[string]any{
				"positionX": 500, "positionY": -500, "rotation": 45,
				"zoom": 120, "front": true, "layerIndex": 7,
			},
		}},
	}
	rec, _ = doJSON(t, h, http.MethodPost, "/api/mockup-elements/4", payload)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, h, http.MethodGet, "/api/mockup-elements/4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "#112233", body["background"])
	elems := body["elements"].([]any)
	require.Len(t, elems, 1)
	tr := elems[0].(map[string]any)["transform"].(map[string]any)
	assert.Equal(t, float64(150), tr["positionX"], "wire values are clamped on save")
	assert.Equal(t, float64(-150), tr["positionY"])
	assert.Equal(t, float64(0), tr["layerIndex"], "layer indices re-densified")

	rec, _ = doJSON(t, h, http.MethodDelete, "/api/mockup-elements/4", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = doJSON(t, h, http.MethodGet, "/api/mockup-elements/4", nil)
	assert.Empty(t, body["elements"])
}

func TestCalibrationEndpoints(t *testing.T) {
	h, _ := newTestAPI(t)

	_, body := doJSON(t, h, http.MethodGet, "/api/calibration", nil)
	cal := body["calibration"].(map[string]any)
	assert.Equal(t, 1.65, cal["xPositionFactor"])
	assert.Equal(t, 0.64, cal["zoomFactor"])

	rec, _ := doJSON(t, h, http.MethodPut, "/api/calibration", map[string]float64{
		"xPositionFactor": 2, "yPositionFactor": 1.5, "zoomFactor": 0.5,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = doJSON(t, h, http.MethodGet, "/api/calibration", nil)
	assert.Equal(t, 2.0, body["calibration"].(map[string]any)["xPositionFactor"])

	rec, _ = doJSON(t, h, http.MethodPut, "/api/calibration", map[string]float64{
		"xPositionFactor": -1, "yPositionFactor": 1, "zoomFactor": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = doJSON(t, h, http.MethodDelete, "/api/calibration", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.65, body["calibration"].(map[string]any)["xPositionFactor"])
}

func TestExport(t *testing.T) {
	h, _ := newTestAPI(t)
	uploadMockup(t, h, 1, "iPhone 15")

	req := map[string]any{
		"mockupId":   1,
		"background": "#FF0000",
		"size":       100,
		"format":     "png",
		"preview":    map[string]any{"width": 300.5, "height": 601.0},
	}
	rec, _ := doJSON(t, h, http.MethodPost, "/api/export", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "iPhone-15-1-100x100.png")

	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), img.Bounds())
}

func TestExportValidation(t *testing.T) {
	h, _ := newTestAPI(t)
	uploadMockup(t, h, 1, "A")

	rec, _ := doJSON(t, h, http.MethodPost, "/api/export", map[string]any{"mockupId": 42, "size": 100})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/export", map[string]any{"mockupId": 1, "size": 100, "format": "tiff"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/export", map[string]any{"mockupId": 1, "format": "png"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing size")
}

func TestEventFeed(t *testing.T) {
	h, _ := newTestAPI(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server a beat to register the client before broadcasting.
	time.Sleep(50 * time.Millisecond)

	body, ct := pngUpload(t, "mockup", "case.png", 4, 4, map[string]string{"mockupNumber": "1"})
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/upload/mockup", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", ct)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventMockupsChanged, ev.Type)
}
