package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/pbrgen/internal/catalog"
	"github.com/MeKo-Tech/pbrgen/internal/imageio"
	"github.com/MeKo-Tech/pbrgen/internal/naming"
	"github.com/MeKo-Tech/pbrgen/internal/palette"
	"github.com/MeKo-Tech/pbrgen/internal/pbr"
)

// DefaultResolution is the square edge length sources are resized to.
const DefaultResolution = 1000

// ColorMode controls how a plain albedo reaches its _Color name in directory mode.
type ColorMode int

const (
	// ColorMove renames the source file.
	ColorMove ColorMode = iota
	// ColorCopy leaves the source in place and writes a copy.
	ColorCopy
)

func (m ColorMode) String() string {
	if m == ColorCopy {
		return "copy"
	}
	return "move"
}

// ParseColorMode resolves a color mode name from configuration.
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "move", "rename":
		return ColorMove, nil
	case "copy":
		return ColorCopy, nil
	default:
		return ColorMove, fmt.Errorf("unknown color mode %q: must be move or copy", s)
	}
}

// Options configures channel generation.
type Options struct {
	Format     imageio.Format
	Normal     pbr.NormalOptions
	Channels   []naming.Channel
	Resolution int
	ColorMode  ColorMode
}

// DefaultOptions writes all three channels as JPEG at DefaultResolution.
func DefaultOptions() Options {
	return Options{
		Format:     imageio.JPEG(imageio.DefaultJPEGQuality),
		Normal:     pbr.DefaultNormalOptions(),
		Channels:   naming.Channels,
		Resolution: DefaultResolution,
		ColorMode:  ColorMove,
	}
}

// Recorder stores a summary of every generated material.
type Recorder interface {
	Record(m catalog.Material) error
}

// Generator turns one base-color source into its derived channel files.
type Generator struct {
	recorder Recorder
	logger   *slog.Logger
	opts     Options
}

// NewGenerator validates options and prepares a generator. recorder may be nil.
func NewGenerator(opts Options, logger *slog.Logger, recorder Recorder) (*Generator, error) {
	if opts.Resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %d", opts.Resolution)
	}
	if opts.Format.Name == "" {
		opts.Format = imageio.JPEG(imageio.DefaultJPEGQuality)
	}
	if len(opts.Channels) == 0 {
		opts.Channels = naming.Channels
	}

	return &Generator{
		opts:     opts,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// Options returns the effective options.
func (g *Generator) Options() Options {
	return g.opts
}

// Generate decodes, resizes, optionally promotes, and writes every configured
// channel for src. Returns the written paths, including a newly created
// _Color file.
func (g *Generator) Generate(ctx context.Context, src naming.Source) ([]string, error) {
	if !src.Class.IsSource() {
		return nil, fmt.Errorf("%s (%s): %w", src.Path, src.Class, naming.ErrNotSource)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	g.log().Debug("Decoding source", "path", src.Path, "class", src.Class.String())

	img, err := imageio.ReadFile(src.Path)
	if err != nil {
		return nil, err
	}

	resized, err := imageio.ResizeSquare(img, g.opts.Resolution)
	if err != nil {
		return nil, fmt.Errorf("failed to resize %s: %w", src.Path, err)
	}

	var written []string
	colorPath := src.Path
	if src.ColorPath != "" {
		promoted, err := g.promote(src)
		if err != nil {
			return nil, err
		}
		if promoted {
			written = append(written, src.ColorPath)
		}
		colorPath = src.ColorPath
	}

	channels, err := g.synthesize(ctx, resized)
	if err != nil {
		return written, fmt.Errorf("failed to synthesize channels for %s: %w", src.Path, err)
	}

	material := catalog.Material{
		Base:       absPath(src.Base),
		Name:       naming.BaseStem(src.Stem),
		ColorPath:  absPath(colorPath),
		Resolution: g.opts.Resolution,
	}

	for _, ch := range g.opts.Channels {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		out := naming.OutputPath(src.Base, ch, g.opts.Format.Ext)
		if err := imageio.WriteFile(out, imageio.Normalize(channels[ch], g.opts.Format), g.opts.Format); err != nil {
			return written, err
		}
		written = append(written, out)

		switch ch {
		case naming.Normal:
			material.NormalPath = absPath(out)
		case naming.Metalness:
			material.MetalnessPath = absPath(out)
		case naming.Roughness:
			material.RoughnessPath = absPath(out)
		}
	}

	if g.recorder != nil {
		material.Swatch = palette.Swatch(resized)
		if err := g.recorder.Record(material); err != nil {
			g.log().Warn("Failed to record material", "base", src.Base, "error", err)
		}
	}

	g.log().Info("Generated channels", "source", src.Path, "files", len(written), "elapsed", time.Since(start))
	return written, nil
}

// promote gives a plain albedo its canonical _Color name. An existing target
// is never overwritten; in that case the source stays untouched.
func (g *Generator) promote(src naming.Source) (bool, error) {
	if _, err := os.Stat(src.ColorPath); err == nil {
		g.log().Debug("Color file already exists; not promoting", "source", src.Path, "color", src.ColorPath)
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", src.ColorPath, err)
	}

	switch g.opts.ColorMode {
	case ColorCopy:
		if err := imageio.CopyFile(src.Path, src.ColorPath); err != nil {
			return false, err
		}
	default:
		if err := os.Rename(src.Path, src.ColorPath); err != nil {
			return false, fmt.Errorf("failed to rename %s to %s: %w", src.Path, src.ColorPath, err)
		}
	}

	g.log().Info("Promoted base color", "from", src.Path, "to", src.ColorPath, "mode", g.opts.ColorMode.String())
	return true, nil
}

// synthesize computes the configured channels from a single grayscale pass.
func (g *Generator) synthesize(ctx context.Context, img image.Image) (map[naming.Channel]image.Image, error) {
	gray, err := pbr.Grayscale(img)
	if err != nil {
		return nil, err
	}

	out := make(map[naming.Channel]image.Image, len(g.opts.Channels))
	for _, ch := range g.opts.Channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		switch ch {
		case naming.Normal:
			h, err := pbr.HeightmapFromGray(gray)
			if err != nil {
				return nil, err
			}
			out[ch] = pbr.NormalMap(h, g.opts.Normal)
		case naming.Metalness:
			m, err := pbr.MetalnessMap(gray)
			if err != nil {
				return nil, err
			}
			out[ch] = m
		case naming.Roughness:
			r, err := pbr.RoughnessMap(gray)
			if err != nil {
				return nil, err
			}
			out[ch] = r
		default:
			return nil, fmt.Errorf("unknown channel %v", ch)
		}
	}

	return out, nil
}

// absPath makes catalog paths independent of the working directory.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func (g *Generator) log() *slog.Logger {
	if g.logger != nil {
		return g.logger
	}
	return slog.Default()
}
