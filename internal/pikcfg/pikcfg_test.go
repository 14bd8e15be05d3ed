package pikcfg

import "testing"

func TestNormalize_FillsZeroFields(t *testing.T) {
	var p Params
	p.Normalize()

	if p.ButteraugliDistance != 1.0 {
		t.Errorf("ButteraugliDistance = %v, want 1.0", p.ButteraugliDistance)
	}
	if p.MaxButteraugliIters != 7 {
		t.Errorf("MaxButteraugliIters = %d, want 7", p.MaxButteraugliIters)
	}
	if p.MaxButteraugliItersReallySlow != 12 {
		t.Errorf("MaxButteraugliItersReallySlow = %d, want 12", p.MaxButteraugliItersReallySlow)
	}
	if p.HFAsymmetry != 1.0 {
		t.Errorf("HFAsymmetry = %v, want 1.0", p.HFAsymmetry)
	}
	if p.Logger == nil {
		t.Error("Logger should default to a non-nil logger")
	}
}

func TestNormalize_PreservesExplicitValues(t *testing.T) {
	p := Params{ButteraugliDistance: 3.5, MaxButteraugliIters: 2}
	p.Normalize()

	if p.ButteraugliDistance != 3.5 {
		t.Errorf("ButteraugliDistance = %v, want 3.5 (explicit value overwritten)", p.ButteraugliDistance)
	}
	if p.MaxButteraugliIters != 2 {
		t.Errorf("MaxButteraugliIters = %d, want 2 (explicit value overwritten)", p.MaxButteraugliIters)
	}
}
