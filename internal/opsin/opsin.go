// Package opsin implements the opsin color transform: sRGB bytes -> linear
// RGB -> XYB color-opponent floats, and its inverse. The 256-entry
// sRGB<->linear lookup tables follow the precomputed-table idiom of
// sharpyuv/gamma.go's gammaToLinearTab/linearToGammaTab (a sync.Once-guarded
// package-level table built from the analytic transfer function once, then
// indexed everywhere else); the 3x3 absorbance matrix and its stored
// inverse follow sharpyuv/csp.go's ConversionMatrix pattern of keeping
// conversion coefficients as plain package data rather than recomputing
// them per call.
package opsin

import (
	"math"

	"github.com/deepteams/pik/internal/pikimage"
)

// Absorbance matrix (row-major 3x3) mapping linear RGB to the cone-response
// "mixed" space, and its analytic inverse. Values follow the opsin model's
// published constants.
var (
	mAbs = [9]float32{
		0.300, 0.622, 0.078,
		0.230, 0.691, 0.079,
		0.243, 0.204, 0.554,
	}
	mAbsInv [9]float32
)

const (
	kScaleR = 1.0
	kScaleG = 1.0
	// kOpsinCenter is the fixed shift subtracted from the Y channel before
	// the noise model's clamped intensity lookup (spec §4.8).
	kOpsinCenter float32 = 0.0
)

func init() {
	invert3x3(&mAbs, &mAbsInv)
	initSRGBTables()
}

func invert3x3(m *[9]float32, out *[9]float32) {
	a, b, c := float64(m[0]), float64(m[1]), float64(m[2])
	d, e, f := float64(m[3]), float64(m[4]), float64(m[5])
	g, h, i := float64(m[6]), float64(m[7]), float64(m[8])
	det := a*(e*i-f*h) - b*(d*i-f*g) + c*(d*h-e*g)
	inv := 1.0 / det
	out[0] = float32((e*i - f*h) * inv)
	out[1] = float32((c*h - b*i) * inv)
	out[2] = float32((b*f - c*e) * inv)
	out[3] = float32((f*g - d*i) * inv)
	out[4] = float32((a*i - c*g) * inv)
	out[5] = float32((c*d - a*f) * inv)
	out[6] = float32((d*h - e*g) * inv)
	out[7] = float32((b*g - a*h) * inv)
	out[8] = float32((a*e - b*d) * inv)
}

const srgbTabSize = 256

var srgbToLinearTab [srgbTabSize]float32

func initSRGBTables() {
	for v := 0; v < srgbTabSize; v++ {
		srgbToLinearTab[v] = srgbToLinearAnalytic(float32(v) / 255.0)
	}
}

func srgbToLinearAnalytic(c float32) float32 {
	if c <= 0.04045 {
		return c / 12.92
	}
	return float32(math.Pow(float64((c+0.055)/1.055), 2.4))
}

func linearToSRGBAnalytic(c float32) float32 {
	if c <= 0.0031308 {
		return 12.92 * c
	}
	return float32(1.055*math.Pow(float64(c), 1.0/2.4) - 0.055)
}

// SRGBByteToLinear looks up the linear value for an 8-bit sRGB sample.
func SRGBByteToLinear(b uint8) float32 {
	return srgbToLinearTab[b]
}

// LinearToSRGBByte converts a linear sample in [0,1] to an 8-bit sRGB
// sample, rounding to nearest and clamping.
func LinearToSRGBByte(v float32) uint8 {
	g := linearToSRGBAnalytic(clamp01(v))
	b := int(g*255.0 + 0.5)
	if b < 0 {
		b = 0
	}
	if b > 255 {
		b = 255
	}
	return uint8(b)
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func cbrt(v float32) float32 {
	if v < 0 {
		return -float32(math.Cbrt(float64(-v)))
	}
	return float32(math.Cbrt(float64(v)))
}

func cube(v float32) float32 { return v * v * v }

// DynamicsImage computes the forward opsin transform: an Image3 of linear
// RGB pixels (plane order R, G, B) becomes an Image3 of XYB opponent
// floats (plane order X, Y, B per pikimage.PlaneX/Y/B). Pure, size
// preserving.
func DynamicsImage(linearRGB *pikimage.Image3) *pikimage.Image3 {
	xsize, ysize := linearRGB.XSize(), linearRGB.YSize()
	out := pikimage.NewImage3(xsize, ysize)
	r, g, b := linearRGB.Plane(0), linearRGB.Plane(1), linearRGB.Plane(2)
	ox, oy, ob := out.Plane(pikimage.PlaneX), out.Plane(pikimage.PlaneY), out.Plane(pikimage.PlaneB)
	for y := 0; y < ysize; y++ {
		rr, gg, bb := r.Row(y), g.Row(y), b.Row(y)
		xr, yr, br := ox.Row(y), oy.Row(y), ob.Row(y)
		for x := 0; x < xsize; x++ {
			mixR := mAbs[0]*rr[x] + mAbs[1]*gg[x] + mAbs[2]*bb[x]
			mixG := mAbs[3]*rr[x] + mAbs[4]*gg[x] + mAbs[5]*bb[x]
			mixB := mAbs[6]*rr[x] + mAbs[7]*gg[x] + mAbs[8]*bb[x]
			mixR, mixG, mixB = cbrt(mixR), cbrt(mixG), cbrt(mixB)
			xr[x] = (kScaleR*mixR - kScaleG*mixG) * 0.5
			yr[x] = (kScaleR*mixR + kScaleG*mixG) * 0.5
			br[x] = mixB
		}
	}
	return out
}

// InverseDynamicsImage undoes DynamicsImage: XYB opponent floats back to
// linear RGB. Round trip is exact to <=1ulp per component ignoring the
// cube-root/cube composition error, per spec §4.1's contract.
func InverseDynamicsImage(xyb *pikimage.Image3) *pikimage.Image3 {
	xsize, ysize := xyb.XSize(), xyb.YSize()
	out := pikimage.NewImage3(xsize, ysize)
	xp, yp, bp := xyb.Plane(pikimage.PlaneX), xyb.Plane(pikimage.PlaneY), xyb.Plane(pikimage.PlaneB)
	r, g, b := out.Plane(0), out.Plane(1), out.Plane(2)
	for y := 0; y < ysize; y++ {
		xr, yr, br := xp.Row(y), yp.Row(y), bp.Row(y)
		rr, gg, bb := r.Row(y), g.Row(y), b.Row(y)
		for x := 0; x < xsize; x++ {
			// Undo the opponent mix: X = (R-G)/2, Y = (R+G)/2 => R=X+Y, G=Y-X.
			mr := (yr[x] + xr[x])
			mg := (yr[x] - xr[x])
			mb := br[x]
			mr, mg, mb = cube(mr), cube(mg), cube(mb)
			rr[x] = mAbsInv[0]*mr + mAbsInv[1]*mg + mAbsInv[2]*mb
			gg[x] = mAbsInv[3]*mr + mAbsInv[4]*mg + mAbsInv[5]*mb
			bb[x] = mAbsInv[6]*mr + mAbsInv[7]*mg + mAbsInv[8]*mb
		}
	}
	return out
}

// FromSRGBBytes converts packed 8-bit sRGB pixel rows into a linear-RGB
// Image3, using the precomputed lookup table.
func FromSRGBBytes(pix []byte, xsize, ysize, channels int) *pikimage.Image3 {
	out := pikimage.NewImage3(xsize, ysize)
	r, g, b := out.Plane(0), out.Plane(1), out.Plane(2)
	for y := 0; y < ysize; y++ {
		rr, gg, bb := r.Row(y), g.Row(y), b.Row(y)
		rowOff := y * xsize * channels
		for x := 0; x < xsize; x++ {
			off := rowOff + x*channels
			rr[x] = SRGBByteToLinear(pix[off])
			gg[x] = SRGBByteToLinear(pix[off+1])
			bb[x] = SRGBByteToLinear(pix[off+2])
		}
	}
	return out
}

// ToSRGBBytes converts a linear-RGB Image3 back to packed 8-bit sRGB rows.
func ToSRGBBytes(linearRGB *pikimage.Image3, channels int) []byte {
	xsize, ysize := linearRGB.XSize(), linearRGB.YSize()
	out := make([]byte, xsize*ysize*channels)
	r, g, b := linearRGB.Plane(0), linearRGB.Plane(1), linearRGB.Plane(2)
	for y := 0; y < ysize; y++ {
		rr, gg, bb := r.Row(y), g.Row(y), b.Row(y)
		rowOff := y * xsize * channels
		for x := 0; x < xsize; x++ {
			off := rowOff + x*channels
			out[off] = LinearToSRGBByte(rr[x])
			out[off+1] = LinearToSRGBByte(gg[x])
			out[off+2] = LinearToSRGBByte(bb[x])
			if channels == 4 {
				out[off+3] = 255
			}
		}
	}
	return out
}
