// Package palette summarizes an albedo texture as a representative swatch.
package palette

import (
	"image"
	"image/color"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
)

// neutral is used when no dominant color can be found.
var neutral = color.RGBA{R: 128, G: 128, B: 128, A: 255}

// Dominant returns the most prominent color of img.
func Dominant(img image.Image) colorful.Color {
	candidates := dominantcolor.FindWeight(img, 1)
	c := neutral
	if len(candidates) > 0 {
		c = candidates[0].RGBA
	}
	col, _ := colorful.MakeColor(c)
	return col.Clamped()
}

// Swatch returns the dominant color as a #rrggbb hex string.
func Swatch(img image.Image) string {
	return Dominant(img).Hex()
}

// ValidSwatch reports whether hex parses as a #rrggbb swatch.
func ValidSwatch(hex string) bool {
	_, err := colorful.Hex(hex)
	return err == nil
}

// Distance is the perceptual (CIE76 Lab) distance between two hex swatches.
// Unparseable swatches are treated as maximally distant.
func Distance(a, b string) float64 {
	ca, err := colorful.Hex(a)
	if err != nil {
		return 1
	}
	cb, err := colorful.Hex(b)
	if err != nil {
		return 1
	}
	return ca.DistanceLab(cb)
}
