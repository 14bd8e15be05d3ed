package transform

import "testing"

func TestForwardInverse8x8_RoundTrip(t *testing.T) {
	var in [64]float32
	for i := range in {
		in[i] = float32(i%17) - 8
	}
	var coeffs, out [64]float32
	Forward8x8(in[:], coeffs[:])
	Inverse8x8(coeffs[:], out[:])

	for i := range in {
		diff := in[i] - out[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 1e-3 {
			t.Fatalf("out[%d] = %v, want ~%v (diff %v)", i, out[i], in[i], diff)
		}
	}
}

func TestForward8x8_DCOnly(t *testing.T) {
	var in [64]float32
	for i := range in {
		in[i] = 5
	}
	var coeffs [64]float32
	Forward8x8(in[:], coeffs[:])
	if coeffs[0] == 0 {
		t.Fatal("DC coefficient should be nonzero for a constant block")
	}
	for i := 1; i < 64; i++ {
		if coeffs[i] > 1e-3 || coeffs[i] < -1e-3 {
			t.Errorf("coeffs[%d] = %v, want ~0 for a flat block", i, coeffs[i])
		}
	}
}
