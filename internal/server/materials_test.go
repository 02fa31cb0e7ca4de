package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/pbrgen/internal/catalog"
	"github.com/MeKo-Tech/pbrgen/internal/pipeline"
)

func writeAlbedo(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 16), G: 90, B: uint8(y * 16), A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func newTestAPI(t *testing.T, withCatalog bool) (*Materials, string, *http.ServeMux) {
	t.Helper()
	root := t.TempDir()

	var cat Catalog
	if withCatalog {
		c, err := catalog.Open(filepath.Join(t.TempDir(), "materials.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		cat = c
	}

	opts := pipeline.DefaultOptions()
	opts.Resolution = 16
	api, err := NewMaterials(MaterialsConfig{Root: root, Options: opts}, cat, nil)
	require.NoError(t, err)

	mux := http.NewServeMux()
	api.Register(mux)
	return api, root, mux
}

func do(t *testing.T, mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestGenerateAndDelete(t *testing.T) {
	api, root, mux := newTestAPI(t, true)
	writeAlbedo(t, filepath.Join(root, "oak", "oak.png"))
	writeAlbedo(t, filepath.Join(root, "oak", "oak_thumb.png"))

	rec := do(t, mux, http.MethodPost, "/api/pbr/generate")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var gen struct {
		Success   bool     `json:"success"`
		Generated []string `json:"generated"`
		Failed    []any    `json:"failed"`
		Skipped   []struct {
			Path string `json:"path"`
		} `json:"skipped"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gen))
	assert.True(t, gen.Success)
	assert.Len(t, gen.Generated, 4, "color promotion plus three channels")
	assert.Empty(t, gen.Failed)
	require.Len(t, gen.Skipped, 1)
	assert.Equal(t, filepath.Join(root, "oak", "oak_thumb.png"), gen.Skipped[0].Path)

	status := api.Status()
	assert.Equal(t, int64(4), status.TotalGenerated)
	assert.Zero(t, status.ActiveRuns)

	rec = do(t, mux, http.MethodGet, "/api/materials")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Materials []catalog.Material `json:"materials"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Materials, 1)
	assert.Equal(t, "oak", list.Materials[0].Name)

	rec = do(t, mux, http.MethodPost, "/api/pbr/delete?path=oak")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var del struct {
		Success bool     `json:"success"`
		Deleted []string `json:"deleted"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &del))
	assert.True(t, del.Success)
	assert.Len(t, del.Deleted, 3)

	for _, name := range []string{"oak_Color.png", "oak_thumb.png"} {
		_, err := os.Stat(filepath.Join(root, "oak", name))
		assert.NoError(t, err, name)
	}

	rec = do(t, mux, http.MethodGet, "/api/materials")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Materials)
}

func TestGenerateSingleFile(t *testing.T) {
	_, root, mux := newTestAPI(t, false)
	writeAlbedo(t, filepath.Join(root, "brick_Color.png"))

	rec := do(t, mux, http.MethodGet, "/api/pbr/generate?path=brick_Color.png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for _, name := range []string{"brick_Normal.jpg", "brick_Metalness.jpg", "brick_Roughness.jpg"} {
		_, err := os.Stat(filepath.Join(root, name))
		assert.NoError(t, err, name)
	}
}

func TestRejectsPathsOutsideRoot(t *testing.T) {
	_, _, mux := newTestAPI(t, false)

	for _, target := range []string{
		"/api/pbr/generate?path=../etc",
		"/api/pbr/generate?path=a/../../b",
		"/api/pbr/delete?path=/etc",
	} {
		rec := do(t, mux, http.MethodPost, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestMissingPathIsNotFound(t *testing.T) {
	_, _, mux := newTestAPI(t, false)
	rec := do(t, mux, http.MethodPost, "/api/pbr/generate?path=nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMaterialsWithoutCatalog(t *testing.T) {
	_, _, mux := newTestAPI(t, false)
	rec := do(t, mux, http.MethodGet, "/api/materials")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"materials":[]}`, rec.Body.String())
}

func TestPreflightAndMethods(t *testing.T) {
	_, _, mux := newTestAPI(t, false)

	rec := do(t, mux, http.MethodOptions, "/api/pbr/generate")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")

	rec = do(t, mux, http.MethodPut, "/api/pbr/generate")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, mux, http.MethodGet, "/api/pbr")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/pbr/generate")
}

func TestStatusEndpoint(t *testing.T) {
	_, _, mux := newTestAPI(t, false)
	rec := do(t, mux, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.MaxConcurrent)
	assert.NotNil(t, st.CurrentPaths)
}

type materialResponse struct {
	Success    bool              `json:"success"`
	MaterialID string            `json:"materialId"`
	Channels   []string          `json:"channels"`
	Files      map[string]string `json:"files"`
	Ignored    []string          `json:"ignored"`
}

func TestGenerateMaterial(t *testing.T) {
	_, root, mux := newTestAPI(t, true)
	writeAlbedo(t, filepath.Join(root, "upload.png"))

	rec := doJSON(t, mux, http.MethodPost, "/api/pbr/generate-material", map[string]any{
		"materialId":       "oak",
		"filename":         "upload.png",
		"generateChannels": []string{"normal", "ao"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp materialResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "oak", resp.MaterialID)
	assert.Equal(t, []string{"normal"}, resp.Channels)
	assert.Equal(t, map[string]string{"normal": "/materials/oak/oak_Normal.jpg"}, resp.Files)
	assert.Equal(t, []string{"ao"}, resp.Ignored)

	for _, name := range []string{"upload.png", filepath.Join("oak", "oak_Color.png"), filepath.Join("oak", "oak_Normal.jpg")} {
		_, err := os.Stat(filepath.Join(root, name))
		assert.NoError(t, err, name)
	}
	_, err := os.Stat(filepath.Join(root, "oak", "oak_Roughness.jpg"))
	assert.True(t, os.IsNotExist(err), "unrequested channel must not be written")

	rec = doJSON(t, mux, http.MethodPost, "/api/pbr/generate-material", map[string]any{
		"materialId":      "oak",
		"useExistingFile": true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"normal", "metalness", "roughness"}, resp.Channels)
	assert.Equal(t, "/materials/oak/oak_Roughness.jpg", resp.Files["roughness"])

	rec = do(t, mux, http.MethodGet, "/api/materials")
	var list struct {
		Materials []catalog.Material `json:"materials"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Materials, 1)
	assert.Equal(t, "oak", list.Materials[0].Name)
}

func TestGenerateMaterialRejectsBadRequests(t *testing.T) {
	_, root, mux := newTestAPI(t, false)
	writeAlbedo(t, filepath.Join(root, "upload.png"))

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing id", map[string]any{"filename": "upload.png"}, http.StatusBadRequest},
		{"id escapes root", map[string]any{"materialId": "../x", "filename": "upload.png"}, http.StatusBadRequest},
		{"filename escapes root", map[string]any{"materialId": "oak", "filename": "../upload.png"}, http.StatusBadRequest},
		{"missing filename", map[string]any{"materialId": "oak"}, http.StatusBadRequest},
		{"not an image", map[string]any{"materialId": "oak", "filename": "notes.txt"}, http.StatusBadRequest},
		{"no known channel", map[string]any{"materialId": "oak", "filename": "upload.png", "generateChannels": []string{"ao"}}, http.StatusBadRequest},
		{"missing upload", map[string]any{"materialId": "oak", "filename": "gone.png"}, http.StatusNotFound},
		{"no existing color", map[string]any{"materialId": "pine", "useExistingFile": true}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, mux, http.MethodPost, "/api/pbr/generate-material", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, mux, http.MethodGet, "/api/pbr/generate-material")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDeleteKeepsCatalogRowWhenNothingRemoved(t *testing.T) {
	_, root, mux := newTestAPI(t, true)
	writeAlbedo(t, filepath.Join(root, "oak", "oak.png"))

	rec := do(t, mux, http.MethodPost, "/api/pbr/generate")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, mux, http.MethodPost, "/api/pbr/delete?path=oak/oak_Color.png")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":true,"deleted":[],"failed":[]}`, rec.Body.String())

	rec = do(t, mux, http.MethodGet, "/api/materials")
	var list struct {
		Materials []catalog.Material `json:"materials"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Materials, 1)
}

func TestMaterialsNearSwatch(t *testing.T) {
	_, root, mux := newTestAPI(t, true)
	writeAlbedo(t, filepath.Join(root, "oak", "oak.png"))
	require.Equal(t, http.StatusOK, do(t, mux, http.MethodPost, "/api/pbr/generate").Code)

	rec := do(t, mux, http.MethodGet, "/api/materials?near=%23808080")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"name":"oak"`)

	rec = do(t, mux, http.MethodGet, "/api/materials?near=grey")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
