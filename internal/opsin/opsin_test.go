package opsin

import (
	"math"
	"testing"

	"github.com/deepteams/pik/internal/pikimage"
)

func TestSRGBByteToLinearToSRGBByte_RoundTrip(t *testing.T) {
	for v := 0; v < 256; v++ {
		lin := SRGBByteToLinear(uint8(v))
		got := LinearToSRGBByte(lin)
		if diff := int(got) - v; diff < -1 || diff > 1 {
			t.Fatalf("byte %d: round trip = %d", v, got)
		}
	}
}

func TestDynamicsInverseDynamics_RoundTrip(t *testing.T) {
	im := pikimage.NewImage3(4, 4)
	r, g, b := im.Plane(0), im.Plane(1), im.Plane(2)
	for y := 0; y < 4; y++ {
		rr, gg, bb := r.Row(y), g.Row(y), b.Row(y)
		for x := 0; x < 4; x++ {
			rr[x] = float32(x) / 8
			gg[x] = float32(y) / 8
			bb[x] = 0.3
		}
	}

	xyb := DynamicsImage(im)
	back := InverseDynamicsImage(xyb)

	for p := 0; p < 3; p++ {
		orig, got := im.Plane(p), back.Plane(p)
		for y := 0; y < 4; y++ {
			o, g := orig.Row(y), got.Row(y)
			for x := 0; x < 4; x++ {
				if diff := math.Abs(float64(o[x] - g[x])); diff > 1e-4 {
					t.Fatalf("plane %d (%d,%d) = %v, want %v", p, x, y, g[x], o[x])
				}
			}
		}
	}
}

func TestFromSRGBBytesToSRGBBytes_RoundTrip(t *testing.T) {
	xsize, ysize := 3, 2
	pix := []byte{
		10, 200, 30, 255,
		90, 80, 70, 255,
		0, 0, 0, 255,
		255, 255, 255, 255,
		128, 64, 32, 255,
		16, 17, 18, 255,
	}
	linear := FromSRGBBytes(pix, xsize, ysize, 4)
	out := ToSRGBBytes(linear, 4)

	for i := 0; i < xsize*ysize; i++ {
		for c := 0; c < 3; c++ {
			off := i*4 + c
			if diff := int(out[off]) - int(pix[off]); diff < -1 || diff > 1 {
				t.Errorf("pixel %d channel %d = %d, want ~%d", i, c, out[off], pix[off])
			}
		}
		if out[i*4+3] != 255 {
			t.Errorf("pixel %d alpha = %d, want 255", i, out[i*4+3])
		}
	}
}

func TestDynamicsImage_PreservesDimensions(t *testing.T) {
	im := pikimage.NewImage3(7, 5)
	xyb := DynamicsImage(im)
	if xyb.XSize() != 7 || xyb.YSize() != 5 {
		t.Fatalf("dims = %dx%d, want 7x5", xyb.XSize(), xyb.YSize())
	}
}
