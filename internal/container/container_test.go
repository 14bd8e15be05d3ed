package container

import (
	"testing"

	"github.com/deepteams/pik/internal/bitio"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Tag:           TagDefault,
		XSize:         1920,
		YSize:         1080,
		QuantTemplate: 1,
		Flags:         FlagAlpha | FlagGaborishTransform,
	}
	w := bitio.NewWriter()
	if err := h.Encode(w); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf := w.Finish()

	r := bitio.NewReader(buf)
	got, err := DecodeHeader(r)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Errorf("DecodeHeader = %+v, want %+v", got, h)
	}
}

func TestHeaderValidate_RejectsZeroArea(t *testing.T) {
	h := Header{XSize: 0, YSize: 10}
	if err := h.Validate(); err == nil {
		t.Fatal("expected error for zero-area header")
	}
}

func TestHeaderValidate_RejectsOversizedDimension(t *testing.T) {
	h := Header{XSize: kMaxDim + 1, YSize: 10}
	if err := h.Validate(); err == nil {
		t.Fatal("expected error for oversized dimension")
	}
}

func TestFlagsHas(t *testing.T) {
	f := FlagAlpha | FlagDenoise
	if !f.Has(FlagAlpha) || !f.Has(FlagDenoise) {
		t.Error("Has should report set bits true")
	}
	if f.Has(FlagGaborishTransform) {
		t.Error("Has should report unset bit false")
	}
}

func TestNaturalCoeffOrder(t *testing.T) {
	order := NaturalCoeffOrder()
	seen := make(map[int]bool)
	for i := 0; i < 64; i++ {
		if order[i] < 0 || order[i] > 63 {
			t.Fatalf("order[%d] = %d out of range", i, order[i])
		}
		seen[order[i]] = true
	}
	if len(seen) != 64 {
		t.Fatalf("order covers %d distinct positions, want 64", len(seen))
	}
	if order[0] != 0 {
		t.Errorf("order[0] = %d, want 0 (DC first)", order[0])
	}
	for i := 64; i < 80; i++ {
		if order[i] != 63 {
			t.Errorf("order[%d] = %d, want sentinel 63", i, order[i])
		}
	}
}
