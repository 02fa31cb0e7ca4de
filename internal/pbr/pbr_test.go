package pbr

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformRGB(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func noisyRGB(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

// horizontalRamp returns a grayscale image whose intensity grows by step per column.
func horizontalRamp(w, h int, step uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x) * step})
		}
	}
	return img
}

func TestLuminance(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    uint8
	}{
		{"black", 0, 0, 0, 0},
		{"white", 255, 255, 255, 255},
		{"mid gray", 128, 128, 128, 128},
		{"red", 255, 0, 0, 76},
		{"green", 0, 255, 0, 150},
		{"blue", 0, 0, 255, 29},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Luminance(tt.r, tt.g, tt.b))
		})
	}
}

func TestGrayscaleIgnoresAlphaAndOffsets(t *testing.T) {
	img := image.NewNRGBA(image.Rect(10, 20, 12, 21))
	img.SetNRGBA(10, 20, color.NRGBA{R: 200, G: 200, B: 200, A: 0})
	img.SetNRGBA(11, 20, color.NRGBA{R: 10, G: 10, B: 10, A: 255})

	gray, err := Grayscale(img)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 1), gray.Bounds())
	assert.Equal(t, uint8(200), gray.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(10), gray.GrayAt(1, 0).Y)
}

func TestExtractHeightmapRejectsEmptyImage(t *testing.T) {
	_, err := ExtractHeightmap(image.NewNRGBA(image.Rect(0, 0, 0, 4)))
	require.ErrorIs(t, err, ErrEmptyImage)

	_, err = MetalnessMap(image.NewGray(image.Rect(0, 0, 3, 0)))
	require.ErrorIs(t, err, ErrEmptyImage)

	_, err = RoughnessMap(image.NewGray(image.Rect(0, 0, 0, 0)))
	require.ErrorIs(t, err, ErrEmptyImage)
}

func TestSynthesizersPreserveDimensions(t *testing.T) {
	src := noisyRGB(7, 5, 1)

	h, err := ExtractHeightmap(src)
	require.NoError(t, err)
	assert.Equal(t, 7, h.Width())
	assert.Equal(t, 5, h.Height())

	normal := NormalMap(h, DefaultNormalOptions())
	assert.Equal(t, image.Rect(0, 0, 7, 5), normal.Bounds())

	flat := NormalMap(h, NormalOptions{})
	assert.Equal(t, image.Rect(0, 0, 7, 5), flat.Bounds())

	metal, err := MetalnessMap(src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 7, 5), metal.Bounds())

	rough, err := RoughnessMap(src)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 7, 5), rough.Bounds())
}

func TestConvolve3EdgeReplicationKeepsFlatFieldsFlat(t *testing.T) {
	h, err := ExtractHeightmap(uniformRGB(4, 3, color.NRGBA{R: 90, G: 90, B: 90, A: 255}))
	require.NoError(t, err)

	field := Sobel.Gradient(h)
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			assert.Zero(t, field.X.At(y, x), "gx at (%d,%d)", x, y)
			assert.Zero(t, field.Y.At(y, x), "gy at (%d,%d)", x, y)
		}
	}
}

func TestSobelGradientOnRamp(t *testing.T) {
	h, err := HeightmapFromGray(horizontalRamp(5, 3, 51))
	require.NoError(t, err)

	field := Sobel.Gradient(h)

	// Convolution flips the kernel: the horizontal response is left minus right.
	assert.InDelta(t, -408.0, field.X.At(1, 2), 1e-9)
	assert.InDelta(t, 0.0, field.Y.At(1, 2), 1e-9)

	// Transposing the ramp swaps the responses.
	tr := image.NewGray(image.Rect(0, 0, 3, 5))
	for y := 0; y < 5; y++ {
		for x := 0; x < 3; x++ {
			tr.SetGray(x, y, color.Gray{Y: uint8(y) * 51})
		}
	}
	hv, err := HeightmapFromGray(tr)
	require.NoError(t, err)
	fv := Sobel.Gradient(hv)
	assert.InDelta(t, 0.0, fv.X.At(2, 1), 1e-9)
	assert.InDelta(t, -408.0, fv.Y.At(2, 1), 1e-9)
}

func TestEncodeGradient(t *testing.T) {
	assert.Equal(t, uint8(128), EncodeGradient(0))
	assert.Equal(t, FlatNormal.R, EncodeGradient(0), "zero gradient matches the flat fallback")
	assert.Equal(t, uint8(0), EncodeGradient(-255))
	assert.Equal(t, uint8(0), EncodeGradient(-1000))
	assert.Equal(t, uint8(255), EncodeGradient(255))
	assert.Equal(t, uint8(255), EncodeGradient(1000))
}

func TestNormalMapEncodesGradients(t *testing.T) {
	h, err := HeightmapFromGray(horizontalRamp(5, 3, 51))
	require.NoError(t, err)

	normal := NormalMap(h, NormalOptions{Gradient: Sobel, Blue: 255})
	got := normal.RGBAAt(2, 1)
	assert.Equal(t, color.RGBA{R: 0, G: 128, B: 255, A: 255}, got)
}

func TestNormalMapDefaultBlue(t *testing.T) {
	h, err := ExtractHeightmap(uniformRGB(3, 3, color.NRGBA{R: 128, G: 128, B: 128, A: 255}))
	require.NoError(t, err)

	normal := NormalMap(h, DefaultNormalOptions())
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			assert.Equal(t, color.RGBA{R: 128, G: 128, B: DefaultNormalBlue, A: 255}, normal.RGBAAt(x, y))
		}
	}
}

func TestNormalMapWithoutGradientIsFlat(t *testing.T) {
	for _, seed := range []int64{1, 2, 3} {
		h, err := ExtractHeightmap(noisyRGB(6, 4, seed))
		require.NoError(t, err)

		normal := NormalMap(h, NormalOptions{Gradient: nil, Blue: 10})
		for y := 0; y < 4; y++ {
			for x := 0; x < 6; x++ {
				require.Equal(t, FlatNormal, normal.RGBAAt(x, y))
			}
		}
	}
}

func TestMetalnessMapOnlyProducesTwoBands(t *testing.T) {
	metal, err := MetalnessMap(noisyRGB(16, 16, 7))
	require.NoError(t, err)

	for _, v := range metal.Pix {
		if v != MetalnessBaseline && v != MetalnessMetal {
			t.Fatalf("unexpected metalness value %d", v)
		}
	}
}

func TestMetalnessThresholdIsStrict(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 1))
	src.SetGray(0, 0, color.Gray{Y: 200})
	src.SetGray(1, 0, color.Gray{Y: 201})
	src.SetGray(2, 0, color.Gray{Y: 0})

	metal, err := MetalnessMap(src)
	require.NoError(t, err)
	assert.Equal(t, uint8(50), metal.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), metal.GrayAt(1, 0).Y)
	assert.Equal(t, uint8(50), metal.GrayAt(2, 0).Y)

	rgb, err := MetalnessMap(uniformRGB(1, 1, color.NRGBA{R: 201, G: 201, B: 201, A: 255}))
	require.NoError(t, err)
	assert.Equal(t, uint8(255), rgb.GrayAt(0, 0).Y)
}

func TestRoughnessMapUniformIsFullyRough(t *testing.T) {
	rough, err := RoughnessMap(uniformRGB(12, 12, color.NRGBA{R: 128, G: 128, B: 128, A: 255}))
	require.NoError(t, err)

	for _, v := range rough.Pix {
		require.Equal(t, uint8(255), v)
	}
}

func TestRoughnessMapStaysInRange(t *testing.T) {
	for _, seed := range []int64{3, 4, 5} {
		rough, err := RoughnessMap(noisyRGB(20, 14, seed))
		require.NoError(t, err)
		for _, v := range rough.Pix {
			require.GreaterOrEqual(t, v, uint8(RoughnessFloor))
		}
	}
}

func TestRoughnessMapFloorsStrongestDetail(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 15, 15))
	src.SetGray(7, 7, color.Gray{Y: 255})

	rough, err := RoughnessMap(src)
	require.NoError(t, err)
	assert.Equal(t, uint8(RoughnessFloor), rough.GrayAt(7, 7).Y)
	assert.Equal(t, uint8(255), rough.GrayAt(0, 0).Y)
}

func TestLookupGradient(t *testing.T) {
	op, err := LookupGradient("sobel")
	require.NoError(t, err)
	assert.Equal(t, "sobel", op.Name())

	op, err = LookupGradient("auto")
	require.NoError(t, err)
	assert.Equal(t, Sobel, op)

	op, err = LookupGradient("none")
	require.NoError(t, err)
	assert.Nil(t, op)

	_, err = LookupGradient("prewitt")
	require.Error(t, err)
}
