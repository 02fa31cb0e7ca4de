package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/pbrgen/internal/catalog"
	"github.com/MeKo-Tech/pbrgen/internal/naming"
	"github.com/MeKo-Tech/pbrgen/internal/pipeline"
)

// ErrOutsideRoot is returned when a requested path escapes the materials root.
var ErrOutsideRoot = errors.New("path escapes materials root")

// Catalog is the subset of the material catalog the API needs.
type Catalog interface {
	List() ([]catalog.Material, error)
	Delete(base string) (int64, error)
	DeleteUnder(prefix string) (int64, error)
}

// MaterialsConfig configures the API. UploadDirs are searched for new
// material uploads and default to Root.
type MaterialsConfig struct {
	Root                     string
	UploadDirs               []string
	Options                  pipeline.Options
	Workers                  int
	MaxConcurrentGenerations int
	GenerationTimeout        time.Duration
}

// Materials serves generation and cleanup of PBR channels below a root directory.
type Materials struct {
	gen      *pipeline.Generator
	recorder pipeline.Recorder
	catalog  Catalog
	logger   *slog.Logger
	sem      chan struct{}
	locks    *pathLocks
	cfg      MaterialsConfig

	activeRuns     atomic.Int32
	queuedRuns     atomic.Int32
	totalGenerated atomic.Int64
	totalFailed    atomic.Int64
	currentRuns    sync.Map // map[string]time.Time - relative path -> start time
}

// Status represents the current state of the generation API.
type Status struct {
	ActiveRuns     int      `json:"active_runs"`
	QueuedRuns     int      `json:"queued_runs"`
	TotalGenerated int64    `json:"total_generated"`
	TotalFailed    int64    `json:"total_failed"`
	CurrentPaths   []string `json:"current_paths"`
	MaxConcurrent  int      `json:"max_concurrent"`
}

type generateResponse struct {
	pipeline.Report
	Success bool `json:"success"`
}

type deleteResponse struct {
	pipeline.CleanReport
	Success bool `json:"success"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewMaterials creates the API. cat may be nil.
func NewMaterials(cfg MaterialsConfig, cat Catalog, logger *slog.Logger) (*Materials, error) {
	if cfg.Root == "" {
		cfg.Root = "./materials"
	}
	if cfg.MaxConcurrentGenerations <= 0 {
		cfg.MaxConcurrentGenerations = 1
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 10 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", cfg.Root, err)
	}
	cfg.Root = root

	var recorder pipeline.Recorder
	if r, ok := cat.(pipeline.Recorder); ok {
		recorder = r
	}
	gen, err := pipeline.NewGenerator(cfg.Options, logger, recorder)
	if err != nil {
		return nil, err
	}

	return &Materials{
		gen:      gen,
		recorder: recorder,
		catalog:  cat,
		logger:   logger,
		sem:      make(chan struct{}, cfg.MaxConcurrentGenerations),
		locks:    newPathLocks(),
		cfg:      cfg,
	}, nil
}

// Register mounts the API routes on mux.
func (m *Materials) Register(mux *http.ServeMux) {
	mux.Handle("/api/pbr", withCORS(http.HandlerFunc(m.serveIndex)))
	mux.Handle("/api/pbr/generate", withCORS(http.HandlerFunc(m.serveGenerate)))
	mux.Handle("/api/pbr/generate-material", withCORS(http.HandlerFunc(m.serveGenerateMaterial)))
	mux.Handle("/api/pbr/delete", withCORS(http.HandlerFunc(m.serveDelete)))
	mux.Handle("/api/materials", withCORS(http.HandlerFunc(m.serveMaterials)))
	mux.Handle("/api/status", withCORS(http.HandlerFunc(m.serveStatus)))
}

// Status returns the current status of the generation API.
func (m *Materials) Status() Status {
	current := []string{}
	m.currentRuns.Range(func(key, _ any) bool {
		current = append(current, key.(string))
		return true
	})
	sort.Strings(current)

	return Status{
		ActiveRuns:     int(m.activeRuns.Load()),
		QueuedRuns:     int(m.queuedRuns.Load()),
		TotalGenerated: m.totalGenerated.Load(),
		TotalFailed:    m.totalFailed.Load(),
		CurrentPaths:   current,
		MaxConcurrent:  m.cfg.MaxConcurrentGenerations,
	}
}

func (m *Materials) serveIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "PBR Management API",
		"endpoints": map[string]string{
			"generate":  "/api/pbr/generate",
			"material":  "/api/pbr/generate-material",
			"delete":    "/api/pbr/delete",
			"materials": "/api/materials",
			"status":    "/api/status",
		},
	})
}

func (m *Materials) serveGenerate(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}

	rel := r.URL.Query().Get("path")
	target, err := m.resolve(rel)
	if err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	plan, err := naming.Discover(target)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		m.writeError(w, status, err)
		return
	}

	release, err := m.admit(r.Context(), lockKey(plan, target))
	if err != nil {
		m.writeError(w, http.StatusRequestTimeout, err)
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), m.cfg.GenerationTimeout)
	defer cancel()

	key := relOrDot(rel)
	m.activeRuns.Add(1)
	m.currentRuns.Store(key, time.Now())
	start := time.Now()

	report := m.gen.Run(ctx, plan, m.cfg.Workers, nil)

	m.activeRuns.Add(-1)
	m.currentRuns.Delete(key)
	m.totalGenerated.Add(int64(len(report.Generated)))
	m.totalFailed.Add(int64(len(report.Failed)))

	m.log().Info("generation request finished",
		"path", key,
		"generated", len(report.Generated),
		"failed", len(report.Failed),
		"ms", time.Since(start).Milliseconds())

	writeJSON(w, http.StatusOK, generateResponse{Report: report, Success: !report.HasFailures()})
}

func (m *Materials) serveDelete(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}

	target, err := m.resolve(r.URL.Query().Get("path"))
	if err != nil {
		m.writeError(w, http.StatusBadRequest, err)
		return
	}

	release, err := m.locks.acquire(r.Context(), target)
	if err != nil {
		m.writeError(w, http.StatusRequestTimeout, err)
		return
	}
	defer release()

	report, err := pipeline.Clean(target, false, m.logger)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		m.writeError(w, status, err)
		return
	}

	if m.catalog != nil {
		m.dropCatalogRows(target, report)
	}

	writeJSON(w, http.StatusOK, deleteResponse{CleanReport: report, Success: len(report.Failed) == 0})
}

// admit waits for a generation slot and for exclusive use of the tree at
// lock, so overlapping requests never plan the same base path concurrently.
func (m *Materials) admit(ctx context.Context, lock string) (func(), error) {
	m.queuedRuns.Add(1)
	defer m.queuedRuns.Add(-1)

	unlock, err := m.locks.acquire(ctx, lock)
	if err != nil {
		return nil, err
	}

	select {
	case m.sem <- struct{}{}:
		return func() {
			<-m.sem
			unlock()
		}, nil
	case <-ctx.Done():
		unlock()
		return nil, ctx.Err()
	}
}

// lockKey is the directory tree a plan may write into.
func lockKey(plan naming.Plan, target string) string {
	if plan.Mode == naming.SingleFileMode {
		return filepath.Dir(target)
	}
	return target
}

// dropCatalogRows forgets the materials whose channels were just removed.
func (m *Materials) dropCatalogRows(target string, report pipeline.CleanReport) {
	n, err := report.ForgetDeleted(m.catalog, target)
	if err != nil {
		m.log().Warn("failed to drop catalog rows", "path", target, "error", err)
		return
	}
	if n > 0 {
		m.log().Info("dropped catalog rows", "path", target, "rows", n)
	}
}

func (m *Materials) serveMaterials(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}

	materials := []catalog.Material{}
	if m.catalog != nil {
		list, err := m.catalog.List()
		if err != nil {
			m.writeError(w, http.StatusInternalServerError, err)
			return
		}
		materials = list
	}

	if near := r.URL.Query().Get("near"); near != "" {
		if err := catalog.SortBySwatch(materials, near); err != nil {
			m.writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"materials": materials})
}

func (m *Materials) serveStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, m.Status())
}

// resolve maps a slash-separated path relative to the root onto disk and
// refuses anything that escapes it.
func (m *Materials) resolve(rel string) (string, error) {
	if rel == "" {
		return m.cfg.Root, nil
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideRoot)
	}

	target := filepath.Join(m.cfg.Root, filepath.FromSlash(rel))
	back, err := filepath.Rel(m.cfg.Root, target)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", rel, ErrOutsideRoot)
	}
	return target, nil
}

func (m *Materials) writeError(w http.ResponseWriter, status int, err error) {
	m.log().Warn("request failed", "status", status, "error", err)
	writeJSON(w, status, errorResponse{Success: false, Message: err.Error()})
}

func (m *Materials) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

func relOrDot(rel string) string {
	if rel == "" {
		return "."
	}
	return rel
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, method := range methods {
		if r.Method == method {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
