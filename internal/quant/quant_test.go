package quant

import (
	"testing"

	"github.com/deepteams/pik/internal/pikcfg"
	"github.com/deepteams/pik/internal/pikimage"
)

func TestQuantizeDequantizeBlock_RoundTrip(t *testing.T) {
	q := New(4, 4, pikcfg.QuantDefault)
	q.RawDC = 3
	field := pikimage.NewImageI(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			field.Set(x, y, int32(x+y+1))
		}
	}
	q.SetQuantField(3, field)

	in := make([]float32, blockLen)
	for i := range in {
		in[i] = float32(i%31) - 15
	}
	quantized := make([]int32, blockLen)
	out := make([]float32, blockLen)

	q.QuantizeBlock(in, quantized, 2, 1)
	q.DequantizeBlock(quantized, out, 2, 1)

	// Dequantize(Quantize(x)) should land within one quant step of x.
	for i := range in {
		diff := float64(out[i] - in[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > 40 {
			t.Fatalf("coeff %d: in=%v out=%v diff too large", i, in[i], out[i])
		}
	}
}

func TestQBlock_ClampsBelowOne(t *testing.T) {
	q := New(2, 2, pikcfg.QuantDefault)
	field := pikimage.NewImageI(2, 2)
	field.Set(0, 0, -5)
	field.Set(1, 0, 0)
	field.Set(0, 1, 1)
	field.Set(1, 1, 7)
	q.SetQuantField(1, field)

	if got := q.QBlock(0, 0); got != 1 {
		t.Errorf("QBlock(0,0) = %d, want clamped to 1", got)
	}
	if got := q.QBlock(1, 0); got != 1 {
		t.Errorf("QBlock(1,0) = %d, want clamped to 1", got)
	}
	if got := q.QBlock(1, 1); got != 7 {
		t.Errorf("QBlock(1,1) = %d, want 7", got)
	}
}

func TestSetQuantField_ReportsChange(t *testing.T) {
	q := New(3, 3, pikcfg.QuantDefault)
	field := pikimage.NewImageI(3, 3)
	field.Fill(2)

	if changed := q.SetQuantField(1, field); !changed {
		t.Error("expected change when field contents differ from the all-ones default")
	}
	same := pikimage.NewImageI(3, 3)
	same.Fill(2)
	if changed := q.SetQuantField(1, same); changed {
		t.Error("expected no change when rawDC and field contents are identical")
	}
	if changed := q.SetQuantField(5, same); !changed {
		t.Error("expected change when rawDC differs")
	}
}

func TestAdjustQuantVal_ClampsToCeiling(t *testing.T) {
	got := AdjustQuantVal(1.0, 0.0, 1000.0, 16)
	if got != 16 {
		t.Errorf("AdjustQuantVal = %v, want clamped to ceil 16", got)
	}
}

func TestAdjustQuantVal_MovesTowardTarget(t *testing.T) {
	q := 2.0
	got := AdjustQuantVal(q, 1.0, 0.1, 16)
	if got <= 0 {
		t.Fatalf("AdjustQuantVal returned non-positive value %v", got)
	}
}
