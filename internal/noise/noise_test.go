package noise

import (
	"testing"

	"github.com/deepteams/pik/internal/pikimage"
)

func TestParams_HaveNoise(t *testing.T) {
	if (Params{}).HaveNoise() {
		t.Error("zero Params should report no noise")
	}
	if !(Params{Alpha: 0.1}).HaveNoise() {
		t.Error("nonzero Alpha should report noise present")
	}
}

func TestEstimateParams_FlatImageYieldsZeroParams(t *testing.T) {
	im := pikimage.NewImage3(64, 64)
	im.Plane(pikimage.PlaneX).Fill(0.2)
	im.Plane(pikimage.PlaneY).Fill(0.5)
	im.Plane(pikimage.PlaneB).Fill(0.1)

	p := EstimateParams(im)
	if p.HaveNoise() {
		t.Errorf("expected zero Params for a flat image, got %+v", p)
	}
}

func TestSelectStrength_DispatchesByParams(t *testing.T) {
	if _, ok := SelectStrength(Params{Alpha: 0, Beta: 0.3}).(linearStrength); !ok {
		t.Error("Alpha=0 should select linearStrength")
	}
	if _, ok := SelectStrength(Params{Alpha: 0.5, Gamma: 1.5}).(polyStrength); !ok {
		t.Error("moderate Gamma should select polyStrength")
	}
	if _, ok := SelectStrength(Params{Alpha: 0.5, Gamma: 6}).(powStrength); !ok {
		t.Error("extreme Gamma should select powStrength")
	}
}

func TestStrengthEval_ClampedToUnitRange(t *testing.T) {
	params := []Params{
		{Alpha: 2, Gamma: 1.5, Beta: 0.9},
		{Alpha: 0, Gamma: 1, Beta: 1.5},
		{Alpha: 5, Gamma: 6, Beta: -2},
	}
	for _, p := range params {
		s := SelectStrength(p)
		for _, x := range []float64{-1, 0, 0.25, 0.5, 1, 2} {
			v := s.Eval(x)
			if v < 0 || v > 1 {
				t.Errorf("Eval(%v) with %+v = %v, want within [0,1]", x, p, v)
			}
		}
	}
}

func TestAddNoise_NoOpWithoutNoiseParams(t *testing.T) {
	im := pikimage.NewImage3(8, 8)
	im.Plane(0).Fill(0.4)
	orig := im.Clone()

	AddNoise(im, Params{}, 42)

	for p := 0; p < 3; p++ {
		for y := 0; y < 8; y++ {
			row, origRow := im.Plane(p).Row(y), orig.Plane(p).Row(y)
			for x := 0; x < 8; x++ {
				if row[x] != origRow[x] {
					t.Fatalf("plane %d (%d,%d) changed despite zero Params", p, x, y)
				}
			}
		}
	}
}

func TestAddNoise_IsDeterministicForSameSeed(t *testing.T) {
	mk := func() *pikimage.Image3 {
		im := pikimage.NewImage3(16, 16)
		for p := 0; p < 3; p++ {
			im.Plane(p).Fill(0.4)
		}
		return im
	}
	params := Params{Alpha: 0.3, Gamma: 1.2, Beta: 0.05}

	a, b := mk(), mk()
	AddNoise(a, params, 777)
	AddNoise(b, params, 777)

	for p := 0; p < 3; p++ {
		for y := 0; y < 16; y++ {
			ra, rb := a.Plane(p).Row(y), b.Plane(p).Row(y)
			for x := 0; x < 16; x++ {
				if ra[x] != rb[x] {
					t.Fatalf("plane %d (%d,%d): %v != %v for identical seeds", p, x, y, ra[x], rb[x])
				}
			}
		}
	}
}

func TestAddNoise_DifferentSeedsDiffer(t *testing.T) {
	mk := func() *pikimage.Image3 {
		im := pikimage.NewImage3(16, 16)
		for p := 0; p < 3; p++ {
			im.Plane(p).Fill(0.4)
		}
		return im
	}
	params := Params{Alpha: 0.3, Gamma: 1.2, Beta: 0.05}

	a, b := mk(), mk()
	AddNoise(a, params, 1)
	AddNoise(b, params, 2)

	same := true
	for y := 0; y < 16 && same; y++ {
		ra, rb := a.Plane(0).Row(y), b.Plane(0).Row(y)
		for x := 0; x < 16; x++ {
			if ra[x] != rb[x] {
				same = false
				break
			}
		}
	}
	if same {
		t.Error("different seeds produced identical noise")
	}
}
