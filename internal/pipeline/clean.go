package pipeline

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/pbrgen/internal/naming"
)

// Forgetter drops catalog rows for removed materials.
type Forgetter interface {
	Delete(base string) (int64, error)
	DeleteUnder(prefix string) (int64, error)
}

// Forget removes the catalog rows belonging to target: every material below
// it when target is a directory, otherwise the material target belongs to.
func Forget(f Forgetter, target string) (int64, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s: %w", target, err)
	}

	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return f.DeleteUnder(strings.TrimSuffix(abs, string(filepath.Separator)) + string(filepath.Separator))
	}

	dir, stem, _ := naming.SplitName(abs)
	return f.Delete(filepath.Join(dir, naming.MaterialStem(stem)))
}

// CleanReport lists the derived channel files removed by Clean.
type CleanReport struct {
	Deleted []string  `json:"deleted"`
	Failed  []Failure `json:"failed"`
}

// ForgetDeleted drops the catalog rows for target once Clean has removed at
// least one channel file there. A clean that deleted nothing keeps the rows.
func (r CleanReport) ForgetDeleted(f Forgetter, target string) (int64, error) {
	if len(r.Deleted) == 0 {
		return 0, nil
	}
	return Forget(f, target)
}

// Clean removes every derived channel file (_Normal, _Metalness, _Roughness)
// below root. Base-color files and thumbnails are never touched. With dryRun
// set, files are only listed.
func Clean(root string, dryRun bool, logger *slog.Logger) (CleanReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	report := CleanReport{Deleted: []string{}, Failed: []Failure{}}

	info, err := os.Stat(root)
	if err != nil {
		return report, fmt.Errorf("failed to stat input %s: %w", root, err)
	}

	visit := func(path string) {
		if naming.ClassifyPath(path) != naming.DerivedChannel {
			return
		}
		if !dryRun {
			if err := os.Remove(path); err != nil {
				logger.Error("Failed to delete derived channel", "path", path, "error", err)
				report.Failed = append(report.Failed, Failure{Source: path, Error: err.Error()})
				return
			}
		}
		logger.Debug("Deleted derived channel", "path", path, "dry_run", dryRun)
		report.Deleted = append(report.Deleted, path)
	}

	if !info.IsDir() {
		visit(root)
		return report, nil
	}

	walkRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return report, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	err = filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if rel, err := filepath.Rel(walkRoot, path); err == nil {
			path = filepath.Join(root, rel)
		}
		visit(path)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	logger.Info("Clean complete", "root", root, "deleted", len(report.Deleted), "failed", len(report.Failed), "dry_run", dryRun)
	return report, nil
}
