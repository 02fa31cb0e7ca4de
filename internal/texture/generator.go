// Package texture generates procedural base-color samples. They exercise the
// channel synthesizers: fbm noise drives the heightmap, bright speckles cross
// the metalness threshold and grain gives the roughness map detail.
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/aquilax/go-perlin"
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/floats"

	"github.com/MeKo-Tech/pbrgen/internal/imageio"
)

// Preset is a named material look.
type Preset struct {
	Name  string
	Dark  color.RGBA
	Light color.RGBA
	// Stretch > 1 elongates the noise horizontally (grain, brushed metal).
	Stretch float64
	// Rings adds concentric bands on top of the noise (wood).
	Rings float64
	// Speckle is the fraction of pixels turned into bright flecks.
	Speckle float64
}

// Presets lists the built-in looks.
var Presets = map[string]Preset{
	"stone": {Name: "stone", Dark: color.RGBA{R: 88, G: 84, B: 80, A: 255}, Light: color.RGBA{R: 176, G: 170, B: 160, A: 255}, Stretch: 1, Speckle: 0.004},
	"wood":  {Name: "wood", Dark: color.RGBA{R: 96, G: 58, B: 30, A: 255}, Light: color.RGBA{R: 186, G: 132, B: 82, A: 255}, Stretch: 6, Rings: 9},
	"metal": {Name: "metal", Dark: color.RGBA{R: 150, G: 154, B: 160, A: 255}, Light: color.RGBA{R: 226, G: 228, B: 232, A: 255}, Stretch: 24, Speckle: 0.01},
	"sand":  {Name: "sand", Dark: color.RGBA{R: 170, G: 146, B: 104, A: 255}, Light: color.RGBA{R: 224, G: 204, B: 160, A: 255}, Stretch: 1, Speckle: 0.02},
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Params defines one sample texture.
type Params struct {
	Preset  Preset
	Size    int
	Seed    int64
	Octaves int
	// Scale is the noise feature size in pixels.
	Scale float64
}

// DefaultParams returns params for the named preset.
func DefaultParams(preset string, size int, seed int64) (Params, error) {
	p, ok := Presets[preset]
	if !ok {
		return Params{}, fmt.Errorf("unknown preset %q", preset)
	}
	return Params{Preset: p, Size: size, Seed: seed, Octaves: 4, Scale: float64(size) / 4}, nil
}

// Generate renders a deterministic sample for p.
func Generate(p Params) (*image.NRGBA, error) {
	if p.Size <= 0 {
		return nil, fmt.Errorf("size must be positive")
	}
	if p.Scale <= 0 {
		p.Scale = float64(p.Size) / 4
	}
	if p.Octaves <= 0 {
		p.Octaves = 4
	}
	stretch := p.Preset.Stretch
	if stretch <= 0 {
		stretch = 1
	}

	field := noiseField(p.Size, p.Scale, stretch, p.Octaves, p.Seed)
	if p.Preset.Rings > 0 {
		addRings(field, p.Size, p.Preset.Rings)
	}

	dark, _ := colorful.MakeColor(p.Preset.Dark)
	light, _ := colorful.MakeColor(p.Preset.Light)

	img := image.NewNRGBA(image.Rect(0, 0, p.Size, p.Size))
	for i, t := range field {
		c := dark.BlendLab(light, t).Clamped()
		r, g, b := c.RGB255()
		img.Pix[i*4+0] = r
		img.Pix[i*4+1] = g
		img.Pix[i*4+2] = b
		img.Pix[i*4+3] = 255
	}

	addSpeckles(img, p.Preset.Speckle, p.Seed)
	return img, nil
}

// noiseField samples fbm Perlin noise and normalizes it to [0,1].
func noiseField(size int, scale, stretch float64, octaves int, seed int64) []float64 {
	// alpha: persistence, beta: lacunarity
	noise := perlin.NewPerlin(2.0, 2.0, int32(octaves), seed)

	field := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			field[y*size+x] = noise.Noise2D(float64(x)/(scale*stretch), float64(y)/scale)
		}
	}

	lo, hi := floats.Min(field), floats.Max(field)
	if hi-lo < 1e-12 {
		for i := range field {
			field[i] = 0.5
		}
		return field
	}
	floats.AddConst(-lo, field)
	floats.Scale(1/(hi-lo), field)
	return field
}

// addRings warps the field into growth rings around the image center.
func addRings(field []float64, size int, rings float64) {
	c := float64(size) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			i := y*size + x
			d := math.Hypot(float64(x)-c, (float64(y)-c)*0.35) / float64(size)
			band := 0.5 + 0.5*math.Sin(2*math.Pi*(d*rings+field[i]*0.8))
			field[i] = 0.6*field[i] + 0.4*band
		}
	}
}

// addSpeckles brightens a fraction of pixels well above the metalness threshold.
func addSpeckles(img *image.NRGBA, fraction float64, seed int64) {
	if fraction <= 0 {
		return
	}
	b := img.Bounds()
	n := int(fraction * float64(b.Dx()*b.Dy()))
	if n == 0 {
		n = 1
	}

	rng := rand.New(rand.NewSource(seed + 911))
	for i := 0; i < n; i++ {
		x := b.Min.X + rng.Intn(b.Dx())
		y := b.Min.Y + rng.Intn(b.Dy())
		v := uint8(235 + rng.Intn(21))
		img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
	}
}

// ErrExists is returned by WriteSample when the target exists and overwrite is off.
var ErrExists = errors.New("sample already exists")

// WriteSample renders p and writes it to path in the given format.
func WriteSample(path string, p Params, format imageio.Format, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
	}

	img, err := Generate(p)
	if err != nil {
		return err
	}
	return imageio.WriteFile(path, imageio.Normalize(img, format), format)
}
