package dcpred

import (
	"testing"

	"github.com/deepteams/pik/internal/pikimage"
)

func fillGradient(im *pikimage.ImageI) {
	xs, ys := im.XSize(), im.YSize()
	for y := 0; y < ys; y++ {
		for x := 0; x < xs; x++ {
			im.Set(x, y, int32(3*x+5*y-7))
		}
	}
}

func TestShrinkExpandY_RoundTrip(t *testing.T) {
	im := pikimage.NewImageI(12, 9)
	fillGradient(im)

	residual := ShrinkY(im)
	out := ExpandY(residual)

	for y := 0; y < im.YSize(); y++ {
		for x := 0; x < im.XSize(); x++ {
			if out.At(x, y) != im.At(x, y) {
				t.Fatalf("at (%d,%d): got %d, want %d", x, y, out.At(x, y), im.At(x, y))
			}
		}
	}
}

func TestShrinkExpandXB_RoundTrip(t *testing.T) {
	y := pikimage.NewImageI(10, 7)
	fillGradient(y)
	xb := pikimage.NewImageI(10, 7)
	for py := 0; py < 7; py++ {
		for px := 0; px < 10; px++ {
			xb.Set(px, py, int32(px*px-py))
		}
	}

	residual := ShrinkXB(xb, y)
	out := ExpandXB(residual, y)

	for py := 0; py < 7; py++ {
		for px := 0; px < 10; px++ {
			if out.At(px, py) != xb.At(px, py) {
				t.Fatalf("at (%d,%d): got %d, want %d", px, py, out.At(px, py), xb.At(px, py))
			}
		}
	}
}

func TestShrinkXB_PanicsOnSizeMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on size mismatch")
		}
	}()
	y := pikimage.NewImageI(4, 4)
	xb := pikimage.NewImageI(5, 5)
	ShrinkXB(xb, y)
}

func TestShrinkY_FlatImageInteriorIsZero(t *testing.T) {
	im := pikimage.NewImageI(6, 6)
	im.Fill(42)
	residual := ShrinkY(im)
	// Pixels with a full causal neighborhood (away from the top/left edge)
	// predict exactly, since every predictor degenerates to the constant
	// value on a flat plane.
	for y := 1; y < 6; y++ {
		for x := 1; x < 5; x++ {
			if residual.At(x, y) != 0 {
				t.Errorf("residual at (%d,%d) = %d, want 0 for a flat plane", x, y, residual.At(x, y))
			}
		}
	}
}
