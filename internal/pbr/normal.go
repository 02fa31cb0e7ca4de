package pbr

import (
	"image"
	"image/color"
	"math"
)

// FlatNormal is the tangent-space normal of a surface without detail.
var FlatNormal = color.RGBA{R: 128, G: 128, B: 255, A: 255}

// DefaultNormalBlue is the constant blue sample written next to the encoded gradients.
const DefaultNormalBlue = 128

// NormalOptions configures the normal map synthesizer.
type NormalOptions struct {
	// Gradient is the convolution capability; nil produces a flat normal map.
	Gradient GradientOperator
	// Blue is written to every pixel's blue channel when gradients are available.
	Blue uint8
}

// DefaultNormalOptions uses the Sobel operator.
func DefaultNormalOptions() NormalOptions {
	return NormalOptions{Gradient: Sobel, Blue: DefaultNormalBlue}
}

// NormalMap encodes the heightmap gradient as an RGB normal map.
// Without a gradient operator the result is uniformly FlatNormal.
func NormalMap(h *Heightmap, opts NormalOptions) *image.RGBA {
	w, ht := h.Width(), h.Height()
	if opts.Gradient == nil {
		return FlatNormalMap(w, ht)
	}

	field := opts.Gradient.Gradient(h)
	dst := image.NewRGBA(image.Rect(0, 0, w, ht))

	for y := 0; y < ht; y++ {
		for x := 0; x < w; x++ {
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = EncodeGradient(field.X.At(y, x))
			dst.Pix[i+1] = EncodeGradient(field.Y.At(y, x))
			dst.Pix[i+2] = opts.Blue
			dst.Pix[i+3] = 255
		}
	}

	return dst
}

// FlatNormalMap returns a w x h image filled with FlatNormal.
func FlatNormalMap(w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(dst.Pix); i += 4 {
		dst.Pix[i+0] = FlatNormal.R
		dst.Pix[i+1] = FlatNormal.G
		dst.Pix[i+2] = FlatNormal.B
		dst.Pix[i+3] = FlatNormal.A
	}
	return dst
}

// EncodeGradient maps a gradient value to a channel sample:
// round(clip(g/255*0.5+0.5, 0, 1) * 255).
//
// Rounding (not truncation) makes a zero gradient encode to 128, the same
// mid-value as FlatNormal, so a flat heightmap and the fallback agree.
// Truncating encoders write 127 there.
func EncodeGradient(g float64) uint8 {
	v := g/255*0.5 + 0.5
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(math.Round(v * 255))
}
