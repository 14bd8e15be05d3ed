package bitio

import "testing"

func TestPutGetBits_RoundTrip(t *testing.T) {
	w := NewWriter()
	vals := []struct {
		v     uint64
		nbits uint
	}{
		{0, 1}, {1, 1}, {5, 3}, {255, 8}, {1 << 20, 25}, {0, 25},
	}
	for _, tt := range vals {
		w.PutBits(tt.v, tt.nbits)
	}
	buf := w.Finish()

	r := NewReader(buf)
	for _, tt := range vals {
		got, err := r.GetBits(tt.nbits)
		if err != nil {
			t.Fatalf("GetBits(%d): %v", tt.nbits, err)
		}
		want := tt.v & (1<<tt.nbits - 1)
		if got != want {
			t.Errorf("GetBits(%d) = %d, want %d", tt.nbits, got, want)
		}
	}
}

func TestPutGetSignedBits_RoundTrip(t *testing.T) {
	vals := []int64{0, 1, -1, 127, -128, 1000, -1000}
	w := NewWriter()
	for _, v := range vals {
		w.PutSignedBits(v, 16)
	}
	buf := w.Finish()

	r := NewReader(buf)
	for _, want := range vals {
		got, err := r.GetSignedBits(16)
		if err != nil {
			t.Fatalf("GetSignedBits: %v", err)
		}
		if got != want {
			t.Errorf("GetSignedBits = %d, want %d", got, want)
		}
	}
}

func TestJumpToByteBoundary(t *testing.T) {
	w := NewWriter()
	w.PutBits(1, 3)
	w.JumpToByteBoundary()
	w.PutBits(0xAB, 8)
	buf := w.Finish()
	if len(buf) != 2 {
		t.Fatalf("len(buf) = %d, want 2", len(buf))
	}

	r := NewReader(buf)
	if _, err := r.GetBits(3); err != nil {
		t.Fatal(err)
	}
	r.JumpToByteBoundary()
	v, err := r.GetBits(8)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0xAB {
		t.Errorf("GetBits(8) after boundary = %#x, want 0xAB", v)
	}
}

func TestGetBits_Underrun(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.GetBits(16); err == nil {
		t.Fatal("expected error on underrun")
	}
}

func TestPaddedBytes(t *testing.T) {
	p := NewPaddedBytes(4)
	if p.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", p.Len())
	}
	copy(p.Bytes(), []byte{1, 2, 3, 4})
	p.Resize(8)
	if p.Len() != 8 {
		t.Fatalf("Len() after Resize = %d, want 8", p.Len())
	}
	if p.Bytes()[0] != 1 || p.Bytes()[3] != 4 {
		t.Errorf("Resize did not preserve content: %v", p.Bytes())
	}
}
