// Package pbr synthesizes physically-based-rendering channels (normal, metalness,
// roughness) from a single base-color texture.
package pbr

import (
	"errors"
	"image"
	"image/color"

	"gonum.org/v1/gonum/mat"
)

// ErrEmptyImage is returned when a synthesizer receives an image without pixels.
var ErrEmptyImage = errors.New("image has zero width or height")

// Heightmap is a single-channel intensity field used as a proxy for surface elevation.
// Rows follow image rows; values are in [0,255].
type Heightmap struct {
	data *mat.Dense
}

// NewHeightmap wraps a dense matrix (rows = height, cols = width) as a heightmap.
func NewHeightmap(data *mat.Dense) *Heightmap {
	return &Heightmap{data: data}
}

// Width returns the number of columns.
func (h *Heightmap) Width() int {
	_, c := h.data.Dims()
	return c
}

// Height returns the number of rows.
func (h *Heightmap) Height() int {
	r, _ := h.data.Dims()
	return r
}

// At returns the intensity at pixel (x, y).
func (h *Heightmap) At(x, y int) float64 {
	return h.data.At(y, x)
}

// Dense exposes the underlying matrix.
func (h *Heightmap) Dense() *mat.Dense {
	return h.data
}

// Luminance converts straight (non-premultiplied) 8-bit RGB to 8-bit luma
// using ITU-R 601-2 weights in 16.16 fixed point.
func Luminance(r, g, b uint8) uint8 {
	return uint8((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

// Grayscale converts an image to single-channel luma. Alpha is ignored.
// The result always starts at (0,0).
func Grayscale(img image.Image) (*image.Gray, error) {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, ErrEmptyImage
	}

	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < bounds.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+bounds.Dx()], src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y+y):])
		}
	case *image.NRGBA:
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				c := src.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y)
				dst.Pix[y*dst.Stride+x] = Luminance(c.R, c.G, c.B)
			}
		}
	default:
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				dst.Pix[y*dst.Stride+x] = Luminance(c.R, c.G, c.B)
			}
		}
	}

	return dst, nil
}

// HeightmapFromGray lifts a grayscale image into a floating-point heightmap.
func HeightmapFromGray(gray *image.Gray) (*Heightmap, error) {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyImage
	}

	data := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		row := gray.Pix[gray.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
		for x := 0; x < w; x++ {
			data.Set(y, x, float64(row[x]))
		}
	}

	return &Heightmap{data: data}, nil
}

// ExtractHeightmap converts a color image to a heightmap of identical dimensions.
func ExtractHeightmap(img image.Image) (*Heightmap, error) {
	gray, err := Grayscale(img)
	if err != nil {
		return nil, err
	}
	return HeightmapFromGray(gray)
}
