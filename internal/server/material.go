package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/pbrgen/internal/imageio"
	"github.com/MeKo-Tech/pbrgen/internal/naming"
	"github.com/MeKo-Tech/pbrgen/internal/pipeline"
)

// colorExts are probed in order for an existing <id>_Color file.
var colorExts = []string{".png", ".jpg", ".jpeg", ".webp"}

const maxRequestBody = 64 << 10

type generateMaterialRequest struct {
	MaterialID       string   `json:"materialId"`
	Filename         string   `json:"filename"`
	UseExistingFile  bool     `json:"useExistingFile"`
	GenerateChannels []string `json:"generateChannels"`
}

type generateMaterialResponse struct {
	Success    bool              `json:"success"`
	MaterialID string            `json:"materialId"`
	Channels   []string          `json:"channels"`
	Files      map[string]string `json:"files"`
	Ignored    []string          `json:"ignored,omitempty"`
}

// statusError carries the HTTP status a request failure maps to.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &statusError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// serveGenerateMaterial generates the requested channels for one material
// kept in <root>/<id>/<id>_Color<ext>. The color file is either looked up
// (useExistingFile) or copied there from an upload directory first.
func (m *Materials) serveGenerateMaterial(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req generateMaterialRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		m.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := checkName("materialId", req.MaterialID); err != nil {
		m.writeStatusError(w, err)
		return
	}

	channels, unknown := naming.SelectChannels(req.GenerateChannels)
	if len(channels) == 0 {
		m.writeError(w, http.StatusBadRequest, fmt.Errorf("no known channels in %v", req.GenerateChannels))
		return
	}
	if len(unknown) > 0 {
		m.log().Debug("ignoring unknown channels", "material", req.MaterialID, "channels", unknown)
	}

	dir := filepath.Join(m.cfg.Root, req.MaterialID)
	release, err := m.admit(r.Context(), dir)
	if err != nil {
		m.writeError(w, http.StatusRequestTimeout, err)
		return
	}
	defer release()

	colorFile, err := m.materialColor(dir, req)
	if err != nil {
		m.writeStatusError(w, err)
		return
	}

	plan := naming.SingleFile(colorFile)
	if len(plan.Sources) == 0 {
		m.writeError(w, http.StatusBadRequest, fmt.Errorf("%s: %w", colorFile, naming.ErrNotSource))
		return
	}
	src := plan.Sources[0]

	opts := m.gen.Options()
	opts.Channels = channels
	gen, err := pipeline.NewGenerator(opts, m.logger, m.recorder)
	if err != nil {
		m.writeError(w, http.StatusInternalServerError, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), m.cfg.GenerationTimeout)
	defer cancel()

	m.activeRuns.Add(1)
	m.currentRuns.Store(req.MaterialID, time.Now())
	start := time.Now()

	written, err := gen.Generate(ctx, src)

	m.activeRuns.Add(-1)
	m.currentRuns.Delete(req.MaterialID)
	m.totalGenerated.Add(int64(len(written)))
	if err != nil {
		m.totalFailed.Add(1)
		m.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to generate %s: %w", req.MaterialID, err))
		return
	}

	resp := generateMaterialResponse{
		Success:    true,
		MaterialID: req.MaterialID,
		Channels:   make([]string, 0, len(channels)),
		Files:      make(map[string]string, len(channels)),
		Ignored:    unknown,
	}
	for _, ch := range channels {
		out := naming.OutputPath(src.Base, ch, opts.Format.Ext)
		resp.Channels = append(resp.Channels, ch.String())
		resp.Files[ch.String()] = m.publicURL(out)
	}

	m.log().Info("material generated",
		"material", req.MaterialID,
		"channels", resp.Channels,
		"ms", time.Since(start).Milliseconds())

	writeJSON(w, http.StatusOK, resp)
}

// materialColor returns the material's _Color file, copying it in from an
// upload directory when it does not exist yet.
func (m *Materials) materialColor(dir string, req generateMaterialRequest) (string, error) {
	base := filepath.Join(dir, req.MaterialID)

	if req.UseExistingFile {
		for _, ext := range colorExts {
			if p := naming.ColorPath(base, ext); isFile(p) {
				return p, nil
			}
		}
		return "", &statusError{
			status: http.StatusNotFound,
			err:    fmt.Errorf("no color file for material %s", req.MaterialID),
		}
	}

	if req.Filename == "" {
		return "", badRequest("filename is required for new materials")
	}
	if err := checkName("filename", req.Filename); err != nil {
		return "", err
	}
	ext := filepath.Ext(req.Filename)
	if !naming.IsImageExt(ext) {
		return "", badRequest("filename %q is not a supported image", req.Filename)
	}

	colorFile := naming.ColorPath(base, ext)
	if isFile(colorFile) {
		return colorFile, nil
	}

	for _, uploads := range m.uploadDirs() {
		src := filepath.Join(uploads, req.Filename)
		if !isFile(src) {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := imageio.CopyFile(src, colorFile); err != nil {
			return "", err
		}
		m.log().Info("copied upload into material", "from", src, "to", colorFile)
		return colorFile, nil
	}

	return "", &statusError{
		status: http.StatusNotFound,
		err:    fmt.Errorf("source file %s not found in %s", req.Filename, strings.Join(m.uploadDirs(), ", ")),
	}
}

func (m *Materials) uploadDirs() []string {
	if len(m.cfg.UploadDirs) > 0 {
		return m.cfg.UploadDirs
	}
	return []string{m.cfg.Root}
}

// publicURL maps a file below the root onto the static /materials/ route.
func (m *Materials) publicURL(path string) string {
	rel, err := filepath.Rel(m.cfg.Root, path)
	if err != nil {
		return ""
	}
	return "/materials/" + filepath.ToSlash(rel)
}

func (m *Materials) writeStatusError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var se *statusError
	if errors.As(err, &se) {
		status = se.status
	}
	m.writeError(w, status, err)
}

// checkName accepts a single path element.
func checkName(field, name string) error {
	if name == "" {
		return badRequest("%s is required", field)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return &statusError{status: http.StatusBadRequest, err: fmt.Errorf("%s %q: %w", field, name, ErrOutsideRoot)}
	}
	return nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
