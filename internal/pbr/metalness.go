package pbr

import "image"

const (
	// MetalnessThreshold is the luma above which a pixel counts as metallic.
	MetalnessThreshold = 200
	// MetalnessMetal is written for metallic pixels.
	MetalnessMetal = 255
	// MetalnessBaseline is written for everything else. Pure black is avoided
	// because some renderers treat it as a normalization error.
	MetalnessBaseline = 50
)

// MetalnessMap classifies every pixel into a metallic or non-metallic band.
func MetalnessMap(img image.Image) (*image.Gray, error) {
	gray, err := Grayscale(img)
	if err != nil {
		return nil, err
	}

	dst := image.NewGray(gray.Bounds())
	for i, v := range gray.Pix {
		if v > MetalnessThreshold {
			dst.Pix[i] = MetalnessMetal
		} else {
			dst.Pix[i] = MetalnessBaseline
		}
	}

	return dst, nil
}
