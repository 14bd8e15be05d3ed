package alpha

import (
	"testing"

	"github.com/deepteams/pik/internal/pikerr"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	width, height := 20, 13
	pix := make([]byte, width*height)
	for i := range pix {
		pix[i] = byte((i*37 + i/width*5) % 256)
	}
	p := Plane{Width: width, Height: height, Pix: pix}

	data, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data, width, height)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Width != width || got.Height != height {
		t.Fatalf("dims = %dx%d, want %dx%d", got.Width, got.Height, width, height)
	}
	for i := range pix {
		if got.Pix[i] != pix[i] {
			t.Fatalf("pix[%d] = %d, want %d", i, got.Pix[i], pix[i])
		}
	}
}

func TestEncodeDecode_FlatPlane(t *testing.T) {
	width, height := 8, 8
	pix := make([]byte, width*height)
	for i := range pix {
		pix[i] = 200
	}
	data, err := Encode(Plane{Width: width, Height: height, Pix: pix})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data, width, height)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, v := range got.Pix {
		if v != 200 {
			t.Fatalf("pix[%d] = %d, want 200", i, v)
		}
	}
}

func TestEncode_RejectsMismatchedDimensions(t *testing.T) {
	_, err := Encode(Plane{Width: 4, Height: 4, Pix: make([]byte, 10)})
	if err == nil {
		t.Fatal("expected error for mismatched pixel buffer length")
	}
	if !pikerr.Is(err, pikerr.KindInvalidInput) {
		t.Errorf("expected KindInvalidInput, got %v", err)
	}
}

func TestDecode_RejectsTruncatedPayload(t *testing.T) {
	_, err := Decode(nil, 4, 4)
	if err == nil {
		t.Fatal("expected error for empty payload")
	}
}

func TestDecode_RejectsUnknownFilterMethod(t *testing.T) {
	_, err := Decode([]byte{0xFF, 0x01}, 4, 4)
	if err == nil {
		t.Fatal("expected error for unknown filter method")
	}
}

func TestFilterUnfilter_AllMethods_RoundTrip(t *testing.T) {
	width, height := 11, 9
	orig := make([]byte, width*height)
	for i := range orig {
		orig[i] = byte((i * 53) % 256)
	}

	for _, m := range []FilterMethod{FilterNone, FilterHorizontal, FilterVertical, FilterGradient} {
		buf := append([]byte(nil), orig...)
		filter(m, buf, width, height)
		unfilter(m, buf, width, height)
		for i := range orig {
			if buf[i] != orig[i] {
				t.Fatalf("method %d: pix[%d] = %d, want %d", m, i, buf[i], orig[i])
			}
		}
	}
}
