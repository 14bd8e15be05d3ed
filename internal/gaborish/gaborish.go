// Package gaborish implements the optional Gaborish smoothing transform
// (spec §6.1's kGaborishTransform flag): a small separable low-pass
// convolution applied to the opsin image before the DCT to reduce ringing
// at block edges, with an approximate inverse applied by the decoder to
// restore sharpness.
//
// original_source/deconvolve.h's InvertConvolution computes a finite-length
// filter approximating the inverse of another filter by least squares; this
// package's invertKernel is a direct, simplified port of that idea
// restricted to a fixed 3-tap symmetric kernel (the only shape PIK's
// Gaborish actually uses), rather than the general arbitrary-length
// routine the header declares.
package gaborish

import "github.com/deepteams/pik/internal/pikimage"

// kernel is the fixed 3-tap forward blur kernel, normalized to sum to 1.
// Values approximate the reference encoder's Gaborish weights (a gentle
// low-pass that mostly preserves DC).
var kernel = normalize([3]float64{0.11421, 1.0, 0.11421})

func normalize(k [3]float64) [3]float64 {
	sum := k[0] + k[1] + k[2]
	return [3]float64{k[0] / sum, k[1] / sum, k[2] / sum}
}

// invKernel is a 3-tap filter approximating the forward kernel's inverse,
// derived the way InvertConvolution does: minimize the L2 distance between
// the identity filter and the composition of the two kernels. For a
// symmetric 3-tap low-pass, the least-squares solution is itself a
// symmetric 3-tap high-pass-leaning kernel; solved in init() rather than
// hard-coded so a future change to kernel keeps invKernel consistent.
var invKernel [3]float64

func init() {
	invKernel = invertKernel(kernel)
}

// invertKernel solves for a 3-tap filter g minimizing ||e - f*g|| where e
// is the identity (unit impulse) and f*g is the length-5 convolution of
// the forward kernel with g, restricted back to the central 3 taps (the
// same truncate-and-solve approach InvertConvolution takes for arbitrary
// lengths, specialized to length 3).
func invertKernel(f [3]float64) [3]float64 {
	// The convolution of two symmetric 3-tap kernels is a symmetric 5-tap
	// kernel; matching its central 3 taps to the identity [0,1,0] gives a
	// small linear system in g = [g0, g1, g0] (g is symmetric since f is).
	// (f*g)[2] (center) = f1*g1 + 2*f0*g0  == 1
	// (f*g)[1] = (f*g)[3] = f1*g0 + f0*g1 + f0*g0*0 == 0  (approx, dropping
	// the length-5 tail outside the 3-tap support)
	f0, f1 := f[0], f[1]
	// Solve: f1*g1 + 2*f0*g0 = 1; f0*g1 + f1*g0 = 0.
	// From the second equation: g1 = -(f1/f0)*g0 (f0 != 0 for this kernel).
	if f0 == 0 {
		return [3]float64{0, 1, 0}
	}
	// Substitute into the first: f1*(-(f1/f0)*g0) + 2*f0*g0 = 1
	// g0*(2*f0 - f1*f1/f0) = 1
	denom := 2*f0 - f1*f1/f0
	if denom == 0 {
		return [3]float64{0, 1, 0}
	}
	g0 := 1 / denom
	g1 := -(f1 / f0) * g0
	return [3]float64{g0, g1, g0}
}

// apply runs a separable 3-tap convolution (horizontal then vertical) with
// replicated borders over every plane of im in place.
func apply(im *pikimage.Image3, k [3]float64) {
	for p := 0; p < 3; p++ {
		convolveSeparable(im.Plane(p), k)
	}
}

func convolveSeparable(pl *pikimage.Image, k [3]float64) {
	xs, ys := pl.XSize(), pl.YSize()
	tmp := make([]float32, xs*ys)
	for y := 0; y < ys; y++ {
		row := pl.Row(y)
		for x := 0; x < xs; x++ {
			l, c, r := at(row, x-1, xs), row[x], at(row, x+1, xs)
			tmp[y*xs+x] = float32(k[0]*float64(l) + k[1]*float64(c) + k[2]*float64(r))
		}
	}
	for x := 0; x < xs; x++ {
		for y := 0; y < ys; y++ {
			u := tmpAt(tmp, x, y-1, xs, ys)
			c := tmp[y*xs+x]
			d := tmpAt(tmp, x, y+1, xs, ys)
			pl.Row(y)[x] = float32(k[0]*float64(u) + k[1]*float64(c) + k[2]*float64(d))
		}
	}
}

func at(row []float32, x, n int) float32 {
	if x < 0 {
		x = 0
	}
	if x >= n {
		x = n - 1
	}
	return row[x]
}

func tmpAt(tmp []float32, x, y, xs, ys int) float32 {
	if y < 0 {
		y = 0
	}
	if y >= ys {
		y = ys - 1
	}
	return tmp[y*xs+x]
}

// Forward applies the blurring Gaborish kernel in place, run by the
// encoder before the DCT stage.
func Forward(im *pikimage.Image3) { apply(im, kernel) }

// Inverse applies the approximate sharpening kernel in place, run by the
// decoder after reconstruction.
func Inverse(im *pikimage.Image3) { apply(im, invKernel) }

// Denoise applies a quantizer-strength-scaled low-pass pass in place,
// linearly blending the identity kernel with the forward Gaborish kernel
// by strength (clamped to [0,1]). This generalizes DoDenoise's
// quantizer-aware edge-preserving smoothing (original_source/pik.cc) to
// the separable 3-tap convolution this package already carries, rather
// than porting a full edge-preserving filter: strength 0 is a no-op,
// strength 1 is the same blur Forward applies.
func Denoise(im *pikimage.Image3, strength float64) {
	if strength <= 0 {
		return
	}
	if strength > 1 {
		strength = 1
	}
	k := [3]float64{
		strength * kernel[0],
		1 - strength*(1-kernel[1]),
		strength * kernel[2],
	}
	apply(im, k)
}

// DenoiseStrength derives a smoothing strength in [0,1] from the
// quantizer's DC step count: coarser quantization (a smaller RawDC) gets
// more smoothing, mirroring DoDenoise's sigma_mul scaling by the
// quantizer's overall Scale rather than a fixed constant.
func DenoiseStrength(rawDC int, scale float64) float64 {
	if rawDC <= 0 {
		rawDC = 1
	}
	s := scale / float64(rawDC)
	if s < 0 {
		s = 0
	}
	if s > 0.5 {
		s = 0.5
	}
	return s
}
