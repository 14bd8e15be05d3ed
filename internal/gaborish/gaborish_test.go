package gaborish

import (
	"math"
	"testing"

	"github.com/deepteams/pik/internal/pikimage"
)

func TestForwardInverse_StaysCloseOnFlatImage(t *testing.T) {
	// invKernel is a least-squares approximation of the forward kernel's
	// inverse, not an exact inverse, so a flat plane only comes back close
	// to its original value, not exactly.
	im := pikimage.NewImage3(8, 8)
	for p := 0; p < 3; p++ {
		im.Plane(p).Fill(float32(p) + 1)
	}
	orig := im.Clone()

	Forward(im)
	Inverse(im)

	for p := 0; p < 3; p++ {
		for y := 0; y < 8; y++ {
			row, origRow := im.Plane(p).Row(y), orig.Plane(p).Row(y)
			for x := 0; x < 8; x++ {
				want := float64(origRow[x])
				if want == 0 {
					continue
				}
				relErr := math.Abs(float64(row[x])-want) / want
				if relErr > 0.1 {
					t.Fatalf("plane %d (%d,%d) = %v, want within 10%% of %v", p, x, y, row[x], origRow[x])
				}
			}
		}
	}
}

func TestForward_PreservesDCOfFlatImage(t *testing.T) {
	im := pikimage.NewImage3(6, 6)
	im.Plane(0).Fill(10)
	Forward(im)
	for y := 0; y < 6; y++ {
		for _, v := range im.Plane(0).Row(y) {
			if math.Abs(float64(v-10)) > 1e-3 {
				t.Fatalf("Forward should preserve a flat plane's value, got %v", v)
			}
		}
	}
}

func TestKernelNormalized(t *testing.T) {
	sum := kernel[0] + kernel[1] + kernel[2]
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("kernel sums to %v, want 1", sum)
	}
}

func TestDenoise_ZeroStrengthIsNoOp(t *testing.T) {
	im := pikimage.NewImage3(6, 6)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			im.Plane(1).Row(y)[x] = float32(x + y)
		}
	}
	orig := im.Clone()
	Denoise(im, 0)
	for y := 0; y < 6; y++ {
		row, origRow := im.Plane(1).Row(y), orig.Plane(1).Row(y)
		for x := 0; x < 6; x++ {
			if row[x] != origRow[x] {
				t.Fatalf("Denoise(0) changed (%d,%d): %v != %v", x, y, row[x], origRow[x])
			}
		}
	}
}

func TestDenoise_FullStrengthMatchesForward(t *testing.T) {
	a := pikimage.NewImage3(6, 6)
	for y := 0; y < 6; y++ {
		for x := 0; x < 6; x++ {
			a.Plane(0).Row(y)[x] = float32(x*y + 1)
		}
	}
	b := a.Clone()

	Denoise(a, 1)
	Forward(b)

	for y := 0; y < 6; y++ {
		rowA, rowB := a.Plane(0).Row(y), b.Plane(0).Row(y)
		for x := 0; x < 6; x++ {
			if math.Abs(float64(rowA[x]-rowB[x])) > 1e-4 {
				t.Fatalf("Denoise(1) vs Forward at (%d,%d): %v != %v", x, y, rowA[x], rowB[x])
			}
		}
	}
}

func TestDenoiseStrength_DecreasesWithFinerQuantizer(t *testing.T) {
	coarse := DenoiseStrength(1, 1.0)
	fine := DenoiseStrength(8, 1.0)
	if fine >= coarse {
		t.Errorf("DenoiseStrength(8,...) = %v, want less than DenoiseStrength(1,...) = %v", fine, coarse)
	}
}
