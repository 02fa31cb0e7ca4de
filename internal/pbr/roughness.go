package pbr

import (
	"image"
	"math"

	"github.com/disintegration/gift"
	"gonum.org/v1/gonum/floats"
)

const (
	// RoughnessBlurSigma is the Gaussian radius used to split low and high frequencies.
	RoughnessBlurSigma = 2
	// RoughnessFloor keeps results away from implausible mirror-smooth surfaces.
	RoughnessFloor = 100
)

// GaussianBlur blurs a grayscale image with edge clamping.
func GaussianBlur(src *image.Gray, sigma float32) *image.Gray {
	g := gift.New(gift.GaussianBlur(sigma))
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst
}

// RoughnessMap derives roughness from high-pass detail: more detail means a
// smoother (lower) value. The detail is normalized by the whole-image maximum.
func RoughnessMap(img image.Image) (*image.Gray, error) {
	gray, err := Grayscale(img)
	if err != nil {
		return nil, err
	}

	blurred := GaussianBlur(gray, RoughnessBlurSigma)

	detail := make([]float64, len(gray.Pix))
	for i := range gray.Pix {
		detail[i] = math.Abs(float64(gray.Pix[i]) - float64(blurred.Pix[i]))
	}

	if peak := floats.Max(detail); peak > 0 {
		floats.Scale(255/peak, detail)
	}

	dst := image.NewGray(gray.Bounds())
	for i, d := range detail {
		r := 255 - d
		if r < RoughnessFloor {
			r = RoughnessFloor
		}
		if r > 255 {
			r = 255
		}
		dst.Pix[i] = uint8(r)
	}

	return dst, nil
}
