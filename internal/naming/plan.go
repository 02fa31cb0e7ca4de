package naming

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotSource is returned when a single-file input is not a base-color texture.
var ErrNotSource = errors.New("not a base color source")

// Mode distinguishes single-file invocations from directory traversal.
type Mode int

const (
	// SingleFileMode writes siblings next to the given file and never renames it.
	SingleFileMode Mode = iota
	// DirectoryMode promotes plain albedos to their _Color name before generation.
	DirectoryMode
)

func (m Mode) String() string {
	if m == DirectoryMode {
		return "directory"
	}
	return "single_file"
}

// Source is a classified base-color input with its resolved output base.
type Source struct {
	Path  string
	Stem  string
	Ext   string
	Class Classification
	// Base is the directory joined with the stem minus any _Color suffix.
	Base string
	// ColorPath is where a BaseColor source gets promoted in directory mode.
	// Empty when no promotion happens.
	ColorPath string
}

// Skip records a discovered file that will not be processed.
type Skip struct {
	Path   string         `json:"path"`
	Class  Classification `json:"-"`
	Reason string         `json:"reason"`
}

// Plan is the ordered work list for one invocation.
type Plan struct {
	Root    string
	Mode    Mode
	Sources []Source
	Skipped []Skip
}

// Discover plans an input path: a regular file is planned in single-file
// mode, a directory is traversed recursively.
func Discover(root string) (Plan, error) {
	info, err := os.Stat(root)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to stat input %s: %w", root, err)
	}
	if info.IsDir() {
		return PlanDirectory(root)
	}
	return SingleFile(root), nil
}

// SingleFile plans a single explicitly given file. The file is never renamed
// or copied; outputs are siblings named after the stem without _Color.
// Derived channels and thumbnails are skipped instead of being processed.
func SingleFile(path string) Plan {
	plan := Plan{Root: path, Mode: SingleFileMode}

	dir, stem, ext := SplitName(path)
	class := ClassifyPath(path)
	if !class.IsSource() {
		plan.Skipped = append(plan.Skipped, Skip{Path: path, Class: class, Reason: skipReason(class)})
		return plan
	}

	plan.Sources = append(plan.Sources, Source{
		Path:  path,
		Stem:  stem,
		Ext:   ext,
		Class: class,
		Base:  filepath.Join(dir, BaseStem(stem)),
	})
	return plan
}

// PlanDirectory walks root in lexical order and classifies every file.
// Each resolved base path gets at most one source, so no two sources ever
// write the same outputs: an existing _Color file wins over a plain sibling,
// otherwise the first file in traversal order wins.
//
// A symlinked root is followed. Symlinked files are classified like regular
// files; symlinks to directories or dangling links are skipped.
func PlanDirectory(root string) (Plan, error) {
	plan := Plan{Root: root, Mode: DirectoryMode}
	byBase := make(map[string]int)

	walkRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	err = filepath.WalkDir(walkRoot, func(walked string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		// Report paths below the root as given, not below its link target.
		path := walked
		if rel, err := filepath.Rel(walkRoot, walked); err == nil {
			path = filepath.Join(root, rel)
		}

		if reason, ok := regularFile(walked, d); !ok {
			plan.Skipped = append(plan.Skipped, Skip{Path: path, Class: Unknown, Reason: reason})
			return nil
		}

		class := ClassifyPath(path)
		if !class.IsSource() {
			plan.Skipped = append(plan.Skipped, Skip{Path: path, Class: class, Reason: skipReason(class)})
			return nil
		}

		dir, stem, ext := SplitName(path)
		src := Source{
			Path:  path,
			Stem:  stem,
			Ext:   ext,
			Class: class,
			Base:  filepath.Join(dir, BaseStem(stem)),
		}
		if class == BaseColor {
			src.ColorPath = ColorPath(src.Base, ext)
		}

		idx, seen := byBase[src.Base]
		if !seen {
			byBase[src.Base] = len(plan.Sources)
			plan.Sources = append(plan.Sources, src)
			return nil
		}

		existing := plan.Sources[idx]
		if existing.Class == BaseColor && src.Class == AlreadyColorNamed {
			plan.Sources[idx] = src
			plan.Skipped = append(plan.Skipped, Skip{
				Path:   existing.Path,
				Class:  existing.Class,
				Reason: fmt.Sprintf("superseded by %s", src.Path),
			})
			return nil
		}

		plan.Skipped = append(plan.Skipped, Skip{
			Path:   path,
			Class:  class,
			Reason: fmt.Sprintf("base %s already generated from %s", src.Base, existing.Path),
		})
		return nil
	})
	if err != nil {
		return Plan{}, fmt.Errorf("failed to walk %s: %w", root, err)
	}

	return plan, nil
}

// regularFile reports whether a walked entry is a regular file, following
// symlinks. The reason explains a rejection.
func regularFile(path string, d fs.DirEntry) (string, bool) {
	if d.Type().IsRegular() {
		return "", true
	}
	if d.Type()&fs.ModeSymlink == 0 {
		return "not a regular file", false
	}

	info, err := os.Stat(path)
	switch {
	case err != nil:
		return fmt.Sprintf("broken symlink: %v", err), false
	case info.IsDir():
		return "symlinked directory", false
	case !info.Mode().IsRegular():
		return "not a regular file", false
	}
	return "", true
}

func skipReason(c Classification) string {
	switch c {
	case Thumbnail:
		return "thumbnail"
	case DerivedChannel:
		return "derived channel"
	default:
		return "not an image source"
	}
}
