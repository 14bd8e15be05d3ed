package control

import (
	"math"
	"testing"

	"github.com/deepteams/pik/internal/pikcfg"
	"github.com/deepteams/pik/internal/pikimage"
	"github.com/deepteams/pik/internal/quant"
)

func identityReconstructor(orig *pikimage.Image3) Reconstructor {
	return func(q *quant.Quantizer) *pikimage.Image3 {
		return orig.Clone()
	}
}

func TestAdaptiveQuantizationMap_FlatPlaneGetsWeightOne(t *testing.T) {
	y := pikimage.NewImageF(32, 32)
	y.Fill(0.5)
	m := AdaptiveQuantizationMap(y, 8)
	bw, bh := pikimage.BlockXSize(32), pikimage.BlockXSize(32)
	if m.XSize() != bw || m.YSize() != bh {
		t.Fatalf("dims = %dx%d, want %dx%d", m.XSize(), m.YSize(), bw, bh)
	}
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			if v := m.Row(y)[x]; v != 1 {
				t.Fatalf("weight at (%d,%d) = %v, want 1 for zero-variance block", x, y, v)
			}
		}
	}
}

func TestAdaptiveQuantizationMap_TexturedBlockGetsLowerWeight(t *testing.T) {
	y := pikimage.NewImageF(16, 16)
	for yy := 0; yy < 16; yy++ {
		row := y.Row(yy)
		for xx := 0; xx < 16; xx++ {
			if (xx+yy)%2 == 0 {
				row[xx] = 0
			} else {
				row[xx] = 1
			}
		}
	}
	m := AdaptiveQuantizationMap(y, 8)
	if v := m.Row(0)[0]; v >= 1 {
		t.Errorf("textured block weight = %v, want < 1", v)
	}
}

func TestInitialQuantDC_DecreasesWithDistance(t *testing.T) {
	lo := InitialQuantDC(0.5)
	hi := InitialQuantDC(2.0)
	if hi >= lo {
		t.Errorf("InitialQuantDC(2.0)=%v should be less than InitialQuantDC(0.5)=%v", hi, lo)
	}
}

func TestFindBestQuantization_ConvergesOnIdenticalReconstruction(t *testing.T) {
	orig := pikimage.NewImage3(32, 32)
	for p := 0; p < 3; p++ {
		orig.Plane(p).Fill(float32(p) * 0.1)
	}
	adaptiveMap := AdaptiveQuantizationMap(orig.Plane(pikimage.PlaneY), 8)
	q := quant.New(pikimage.BlockXSize(32), pikimage.BlockXSize(32), pikcfg.QuantDefault)

	result := FindBestQuantization(orig, adaptiveMap, 1.0, 4, identityReconstructor(orig), q)

	if result.Iterations != 4 {
		t.Errorf("Iterations = %d, want 4", result.Iterations)
	}
	if math.Abs(result.Distance-1.0) > 1e-9 {
		t.Errorf("Distance = %v, want target distance 1.0 for a perfect reconstruction", result.Distance)
	}
	if result.QuantField == nil {
		t.Fatal("QuantField is nil")
	}
}

func TestCompressToTarget_BisectsAndReturnsNonNilField(t *testing.T) {
	orig := pikimage.NewImage3(24, 24)
	adaptiveMap := AdaptiveQuantizationMap(orig.Plane(pikimage.PlaneY), 8)
	q := quant.New(pikimage.BlockXSize(24), pikimage.BlockXSize(24), pikcfg.QuantDefault)

	calls := 0
	sizeOf := func(q *quant.Quantizer) int {
		calls++
		// Monotonically decreasing "size" as the quantizer's RawDC grows,
		// so the bisection has a real target to converge toward.
		return 1 << 20 / (q.RawDC + 1)
	}

	result := CompressToTarget(orig, adaptiveMap, 2, identityReconstructor(orig), q, 1000, sizeOf)

	if result.QuantField == nil {
		t.Fatal("QuantField is nil; CompressToTarget never ran the bisection")
	}
	if calls == 0 {
		t.Error("sizeOf was never called; bisection loop did not execute")
	}
}

func TestFindBestQuantizationHQ_RunsWithoutPanicking(t *testing.T) {
	orig := pikimage.NewImage3(24, 24)
	adaptiveMap := AdaptiveQuantizationMap(orig.Plane(pikimage.PlaneY), 8)
	q := quant.New(pikimage.BlockXSize(24), pikimage.BlockXSize(24), pikcfg.QuantDefault)

	params := DefaultHQParams(1.0)
	params.MaxOuterIters = 3
	result := FindBestQuantizationHQ(orig, adaptiveMap, 1.0, identityReconstructor(orig), q, params)

	if result.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", result.Iterations)
	}
	if result.QuantField == nil {
		t.Fatal("QuantField is nil")
	}
}
