package pbr

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// GradientField holds the horizontal and vertical derivatives of a heightmap.
type GradientField struct {
	X *mat.Dense
	Y *mat.Dense
}

// GradientOperator computes a gradient field over a heightmap.
// A nil operator means the convolution capability is unavailable.
type GradientOperator interface {
	Name() string
	Gradient(h *Heightmap) GradientField
}

// Kernel3 is a 3x3 convolution kernel indexed [row][col].
type Kernel3 [3][3]float64

// Transpose returns the kernel mirrored across its main diagonal.
func (k Kernel3) Transpose() Kernel3 {
	var t Kernel3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			t[i][j] = k[j][i]
		}
	}
	return t
}

// SobelY approximates the vertical intensity derivative. SobelX is its transpose.
var SobelY = Kernel3{
	{-1, -2, -1},
	{0, 0, 0},
	{1, 2, 1},
}

// KernelOperator convolves with a vertical kernel and its transpose.
type KernelOperator struct {
	name     string
	vertical Kernel3
}

// NewKernelOperator builds an operator from a vertical-derivative kernel.
func NewKernelOperator(name string, vertical Kernel3) *KernelOperator {
	return &KernelOperator{name: name, vertical: vertical}
}

// Sobel is the default gradient operator.
var Sobel GradientOperator = NewKernelOperator("sobel", SobelY)

func (o *KernelOperator) Name() string { return o.name }

// Gradient convolves the heightmap with both kernels.
func (o *KernelOperator) Gradient(h *Heightmap) GradientField {
	return GradientField{
		X: Convolve3(h.Dense(), o.vertical.Transpose()),
		Y: Convolve3(h.Dense(), o.vertical),
	}
}

// Convolve3 performs a true 2-D convolution (kernel flipped in both axes)
// of src with k. Out-of-range samples replicate the nearest edge pixel, which
// for a 3x3 kernel equals a one-pixel mirror reflection.
func Convolve3(src *mat.Dense, k Kernel3) *mat.Dense {
	rows, cols := src.Dims()
	dst := mat.NewDense(rows, cols, nil)

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			var sum float64
			for i := 0; i < 3; i++ {
				sy := clampIndex(y+1-i, rows)
				for j := 0; j < 3; j++ {
					w := k[i][j]
					if w == 0 {
						continue
					}
					sx := clampIndex(x+1-j, cols)
					sum += w * src.At(sy, sx)
				}
			}
			dst.Set(y, x, sum)
		}
	}

	return dst
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

var gradientOperators = map[string]GradientOperator{
	"sobel": Sobel,
}

// GradientNames lists the registered operator names.
func GradientNames() []string {
	names := make([]string, 0, len(gradientOperators))
	for name := range gradientOperators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupGradient resolves the configured gradient capability once at startup.
// "none" (or "off", "flat") disables it and returns a nil operator without error;
// "auto" selects the default operator.
func LookupGradient(name string) (GradientOperator, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "none", "off", "flat":
		return nil, nil
	case "", "auto":
		return Sobel, nil
	default:
		op, ok := gradientOperators[n]
		if !ok {
			return nil, fmt.Errorf("unknown gradient operator %q (available: %s)", name, strings.Join(GradientNames(), ", "))
		}
		return op, nil
	}
}
