package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"strings"
)

// Format describes what an output codec can store. The orchestrator
// normalizes every derived image against these capabilities before encoding.
type Format struct {
	Name string
	Ext  string
	// RequiresOpaqueBackground means alpha is not stored; translucent pixels
	// are composited onto white first.
	RequiresOpaqueBackground bool
	// Channels is the color channel count the codec must receive (3), or 0
	// when any layout is accepted.
	Channels int
	// Quality applies to lossy codecs (1..100).
	Quality int
}

// DefaultJPEGQuality matches the usual encoder default.
const DefaultJPEGQuality = 75

// JPEG is the lossy 3-channel format all derived channels use by default.
func JPEG(quality int) Format {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return Format{Name: "jpg", Ext: ".jpg", RequiresOpaqueBackground: true, Channels: 3, Quality: quality}
}

// PNG keeps single-channel maps single-channel and preserves alpha.
func PNG() Format {
	return Format{Name: "png", Ext: ".png"}
}

// ParseFormat resolves a format name from configuration.
func ParseFormat(name string, quality int) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), ".")) {
	case "", "jpg", "jpeg":
		return JPEG(quality), nil
	case "png":
		return PNG(), nil
	default:
		return Format{}, fmt.Errorf("unsupported output format %q: must be jpg or png", name)
	}
}

// Encode writes img to w. Callers normalize img first.
func (f Format) Encode(w io.Writer, img image.Image) error {
	switch f.Name {
	case "jpg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: f.Quality})
	case "png":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("no encoder for format %q", f.Name)
	}
}

// Normalize adapts the color mode of img to what f can store: translucent
// images are flattened onto white when alpha is unsupported, and grayscale
// images are replicated to three channels when the codec needs them.
func Normalize(img image.Image, f Format) image.Image {
	if f.RequiresOpaqueBackground && hasAlpha(img) {
		img = FlattenOnto(img, color.White)
	}
	if f.Channels == 3 {
		if gray, ok := img.(*image.Gray); ok {
			img = GrayToRGB(gray)
		}
	}
	return img
}

// hasAlpha reports whether img carries any non-opaque pixel.
func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}

// GrayToRGB replicates a single channel into opaque RGB.
func GrayToRGB(src *image.Gray) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := src.GrayAt(x, y).Y
			dst.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return dst
}

// FlattenOnto alpha-composites img over a solid background and returns an
// opaque image.
func FlattenOnto(img image.Image, bg color.Color) *image.RGBA {
	bounds := img.Bounds()
	dst := image.NewRGBA(bounds)
	back := color.RGBAModel.Convert(bg).(color.RGBA)

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			s := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			sa := float64(s.A) / 255.0

			blend := func(srcVal, dstVal uint8) uint8 {
				return uint8(math.Round(float64(srcVal)*sa + float64(dstVal)*(1.0-sa)))
			}

			dst.SetRGBA(x, y, color.RGBA{
				R: blend(s.R, back.R),
				G: blend(s.G, back.G),
				B: blend(s.B, back.B),
				A: 255,
			})
		}
	}

	return dst
}
