// Package control implements the encoder's rate-distortion core: the
// standard per-tile quant-field update loop (spec §4.7), its high-quality
// search-radius variant, and the two target-size strategies (fast scalar
// bisection and D*-bracketing compress-to-target).
//
// The iteration shape — a bounded for-loop that tries a candidate state,
// scores it, keeps the best-so-far, and nudges the state for the next
// round — is grounded on internal/lossy/encode_trellis.go's per-block
// trellis search (try a candidate level sequence, score its rate+distortion,
// keep the running best), generalized from a per-block inner loop to a
// whole-image outer loop whose "score" is a butteraugli comparison instead
// of a bit-rate/SSE estimate.
package control

import (
	"math"

	"github.com/deepteams/pik/internal/butteraugli"
	"github.com/deepteams/pik/internal/pikimage"
	"github.com/deepteams/pik/internal/quant"
)

// kInitialQuantDCNumerator/Exponent and kInitialQuantACNumerator are the
// literal tuning constants spec §4.7 gives for the initial quant state.
const (
	kInitialQuantDCNumerator = 0.938
	kInitialQuantDCExponent  = 0.745
	kInitialQuantACNumerator = 1.176
)

// kMargins and kPow are the per-iteration tile-margin and update-exponent
// schedules spec §4.7 names; entries beyond the table repeat the last
// (zero) entries, letting later iterations settle without margin growth.
var (
	kMargins = [...]int{0, 0, 1, 2, 1, 0, 0}
	kPow     = [...]float64{0.999, 1.003, 0.743, 0.852, 0, 0, 0}
)

func marginFor(i int) int {
	if i < len(kMargins) {
		return kMargins[i]
	}
	return 0
}

func powFor(i int) float64 {
	if i < len(kPow) {
		return kPow[i]
	}
	return 0
}

// Reconstructor renders the decoded sRGB image a candidate quant field
// would produce, so the comparator can score it. The control loop takes
// this as a callback rather than importing the encode/decode packages
// directly, avoiding an import cycle (control is itself used from the
// top-level encoder).
type Reconstructor func(q *quant.Quantizer) *pikimage.Image3

// Result is the outcome of a standard-loop run.
type Result struct {
	QuantField *pikimage.ImageI
	RawDC      int
	Distance   float64
	Iterations int
}

// AdaptiveQuantizationMap derives a per-block quantization weight from the
// local variance of the Y plane: flatter blocks get a higher weight (finer
// quantization, since banding is most visible there) and highly textured
// blocks get a lower weight (coarser quantization, since detail there
// already masks quantization error), following spec §4.7's
// "AdaptiveQuantizationMap(opsin_orig.Y, block=8)" input to the initial
// quant field.
func AdaptiveQuantizationMap(y *pikimage.Image, block int) *pikimage.Image {
	xs, ys := y.XSize(), y.YSize()
	bw, bh := pikimage.BlockXSize(xs), pikimage.BlockXSize(ys)
	out := pikimage.NewImageF(bw, bh)
	for by := 0; by < bh; by++ {
		row := out.Row(by)
		for bx := 0; bx < bw; bx++ {
			var sum, sumSq float64
			n := 0
			for yy := by * block; yy < ys && yy < (by+1)*block; yy++ {
				r := y.Row(yy)
				for xx := bx * block; xx < xs && xx < (bx+1)*block; xx++ {
					v := float64(r[xx])
					sum += v
					sumSq += v * v
					n++
				}
			}
			if n == 0 {
				row[bx] = 1
				continue
			}
			mean := sum / float64(n)
			variance := sumSq/float64(n) - mean*mean
			if variance < 0 {
				variance = 0
			}
			row[bx] = float32(1.0 / (1.0 + math.Sqrt(variance)))
		}
	}
	return out
}

// InitialQuantDC computes kInitialQuantDC for a target butteraugli
// distance.
func InitialQuantDC(targetDistance float64) float64 {
	return kInitialQuantDCNumerator / math.Pow(targetDistance, kInitialQuantDCExponent)
}

// FindBestQuantization runs the standard per-tile control loop for up to
// maxIters rounds, returning the best quant field found and the distance
// it achieved.
func FindBestQuantization(orig *pikimage.Image3, adaptiveMap *pikimage.Image, targetDistance float64, maxIters int, reconstruct Reconstructor, q *quant.Quantizer) Result {
	xsize, ysize := orig.XSize(), orig.YSize()
	cmp := butteraugli.New(xsize, ysize)

	rawDC := int(math.Round(InitialQuantDC(targetDistance)))
	if rawDC < 1 {
		rawDC = 1
	}
	field := scaleField(adaptiveMap, kInitialQuantACNumerator/targetDistance)

	bestField := field.Clone()
	bestD := math.Inf(1)
	iterations := 0

	for i := 0; i < maxIters; i++ {
		iterations = i + 1
		if !q.SetQuantField(rawDC, field) {
			continue
		}
		recon := reconstruct(q)
		diffmap, d := cmp.Compare(orig, recon)

		if d <= bestD {
			bestField = field.Clone()
			bestD = math.Max(d, targetDistance)
		}

		tileDist := tileDistMap(diffmap, xsize, ysize, marginFor(i))
		updateField(field, tileDist, targetDistance, powFor(i))
	}

	q.SetQuantField(rawDC, bestField)
	return Result{QuantField: bestField, RawDC: rawDC, Distance: bestD, Iterations: iterations}
}

// scaleField multiplies every entry of an adaptive quantization map by a
// scalar and rounds to the nearest integer quant index, clamped to >= 1.
func scaleField(adaptiveMap *pikimage.Image, scale float64) *pikimage.ImageI {
	xs, ys := adaptiveMap.XSize(), adaptiveMap.YSize()
	out := pikimage.NewImageI(xs, ys)
	for y := 0; y < ys; y++ {
		src := adaptiveMap.Row(y)
		for x := 0; x < xs; x++ {
			v := int32(math.Round(float64(src[x]) * scale))
			if v < 1 {
				v = 1
			}
			out.Set(x, y, v)
		}
	}
	return out
}

// tileDistMap aggregates a per-pixel diffmap into per-8x8-block distance
// values, each dilated by margin additional blocks in every direction (so
// a badly-scoring block also nudges its neighbors, per spec §4.7).
func tileDistMap(diffmap []float64, xsize, ysize, margin int) *pikimage.Image {
	bw, bh := pikimage.BlockXSize(xsize), pikimage.BlockXSize(ysize)
	raw := pikimage.NewImageF(bw, bh)
	for by := 0; by < bh; by++ {
		row := raw.Row(by)
		for bx := 0; bx < bw; bx++ {
			var maxV float64
			for y := by * 8; y < ysize && y < (by+1)*8; y++ {
				for x := bx * 8; x < xsize && x < (bx+1)*8; x++ {
					if v := diffmap[y*xsize+x]; v > maxV {
						maxV = v
					}
				}
			}
			row[bx] = float32(maxV)
		}
	}
	if margin == 0 {
		return raw
	}
	out := pikimage.NewImageF(bw, bh)
	for by := 0; by < bh; by++ {
		orow := out.Row(by)
		for bx := 0; bx < bw; bx++ {
			var maxV float32
			for dy := -margin; dy <= margin; dy++ {
				ny := by + dy
				if ny < 0 || ny >= bh {
					continue
				}
				nrow := raw.Row(ny)
				for dx := -margin; dx <= margin; dx++ {
					nx := bx + dx
					if nx < 0 || nx >= bw {
						continue
					}
					if nrow[nx] > maxV {
						maxV = nrow[nx]
					}
				}
			}
			orow[bx] = maxV
		}
	}
	return out
}

// updateField applies the per-block update rule of spec §4.7 step 6 in
// place over field, using tileDist's block-indexed distance values.
func updateField(field *pikimage.ImageI, tileDist *pikimage.Image, targetDistance, p float64) {
	bw, bh := field.XSize(), field.YSize()
	for y := 0; y < bh; y++ {
		row := field.Row(y)
		trow := tileDist.Row(y)
		for x := 0; x < bw; x++ {
			diff := float64(trow[x]) / targetDistance
			q := float64(row[x])
			if p == 0 {
				if diff >= 1 {
					q *= diff
				}
			} else if diff < 1 {
				q *= math.Pow(diff, p)
			} else {
				q *= diff
			}
			if q < 1 {
				q = 1
			}
			row[x] = int32(math.Round(q))
		}
	}
}

// HQParams configures FindBestQuantizationHQ's outer search-widening
// schedule.
type HQParams struct {
	MaxOuterIters  int
	InitialRadius  int
	InitialQuantDC float64
	InitialCeil    int
	Factor         float64
}

// DefaultHQParams returns the spec's literal widening bounds.
func DefaultHQParams(targetDistance float64) HQParams {
	return HQParams{
		MaxOuterIters:  8,
		InitialRadius:  1,
		InitialQuantDC: InitialQuantDC(targetDistance),
		InitialCeil:    4,
		Factor:         0.5,
	}
}

// FindBestQuantizationHQ runs the high-quality search-radius variant for
// exactly p.MaxOuterIters outer rounds. A round in which no block's quant
// value changes widens the search: first the radius (up to 4), then the
// DC quant (in 0.2 steps while it stays within 0.4*ceil-0.8), then the
// ceiling (up to 8). Once all three are at their limits the field is
// scaled by 0.75 and the widening starts again from p's initial values.
// The loop has no early exit when the field stops changing.
func FindBestQuantizationHQ(orig *pikimage.Image3, adaptiveMap *pikimage.Image, targetDistance float64, reconstruct Reconstructor, q *quant.Quantizer, p HQParams) Result {
	xsize, ysize := orig.XSize(), orig.YSize()
	cmp := butteraugli.New(xsize, ysize)

	rawDC := int(math.Round(p.InitialQuantDC))
	if rawDC < 1 {
		rawDC = 1
	}
	field := scaleField(adaptiveMap, kInitialQuantACNumerator/targetDistance)

	radius := p.InitialRadius
	quantDC := p.InitialQuantDC
	ceil := p.InitialCeil

	bestField := field.Clone()
	bestD := math.Inf(1)
	stall := 0

	for outer := 0; outer < p.MaxOuterIters; outer++ {
		if !q.SetQuantField(rawDC, field) {
			stall++
		} else {
			stall = 0
		}
		recon := reconstruct(q)
		diffmap, d := cmp.Compare(orig, recon)
		if d <= bestD {
			bestField = field.Clone()
			bestD = d
		}

		peakMin, localMaxByBlock := distToPeakMap(diffmap, xsize, ysize)
		anyAdjusted := false
		bw, bh := field.XSize(), field.YSize()
		for by := 0; by < bh; by++ {
			row := field.Row(by)
			for bx := 0; bx < bw; bx++ {
				if !exceedsRadiusThreshold(diffmap, xsize, ysize, bx, by, radius, peakMin, localMaxByBlock[by*bw+bx]) {
					continue
				}
				dVal := localMaxByBlock[by*bw+bx]
				newQ := quant.AdjustQuantVal(float64(row[bx]), dVal, p.Factor, ceil)
				if int32(math.Round(newQ)) != row[bx] {
					anyAdjusted = true
				}
				row[bx] = int32(math.Round(newQ))
			}
		}

		if !anyAdjusted {
			if radius < 4 {
				radius++
			} else if quantDC+0.2 <= 0.4*float64(ceil)-0.8 {
				quantDC += 0.2
				rawDC = int(math.Round(quantDC))
			} else if float64(ceil)+0.5 <= 8 {
				ceil++
			} else {
				for y := 0; y < bh; y++ {
					row := field.Row(y)
					for x := 0; x < bw; x++ {
						row[x] = int32(math.Round(float64(row[x]) * 0.75))
						if row[x] < 1 {
							row[x] = 1
						}
					}
				}
				radius, quantDC, ceil = p.InitialRadius, p.InitialQuantDC, p.InitialCeil
			}
		}
	}

	q.SetQuantField(rawDC, bestField)
	return Result{QuantField: bestField, RawDC: rawDC, Distance: bestD, Iterations: p.MaxOuterIters}
}

// distToPeakMap returns the global minimum diffmap value and, per block,
// the local maximum within that block, the two quantities
// exceedsRadiusThreshold compares against the (1-w)*peakMin + w*localMax
// threshold.
func distToPeakMap(diffmap []float64, xsize, ysize int) (peakMin float64, localMaxByBlock []float64) {
	bw, bh := pikimage.BlockXSize(xsize), pikimage.BlockXSize(ysize)
	localMaxByBlock = make([]float64, bw*bh)
	peakMin = math.Inf(1)
	for by := 0; by < bh; by++ {
		for bx := 0; bx < bw; bx++ {
			var maxV float64
			for y := by * 8; y < ysize && y < (by+1)*8; y++ {
				for x := bx * 8; x < xsize && x < (bx+1)*8; x++ {
					v := diffmap[y*xsize+x]
					if v > maxV {
						maxV = v
					}
					if v < peakMin {
						peakMin = v
					}
				}
			}
			localMaxByBlock[by*bw+bx] = maxV
		}
	}
	if math.IsInf(peakMin, 1) {
		peakMin = 0
	}
	return peakMin, localMaxByBlock
}

// kPeakWeight is the w in (1-w)*peakMin + w*localMax.
const kPeakWeight = 0.7

func exceedsRadiusThreshold(diffmap []float64, xsize, ysize, bx, by, radius int, peakMin, localMax float64) bool {
	threshold := (1-kPeakWeight)*peakMin + kPeakWeight*localMax
	for y := by*8 - radius*8; y < by*8+8+radius*8; y++ {
		if y < 0 || y >= ysize {
			continue
		}
		for x := bx*8 - radius*8; x < bx*8+8+radius*8; x++ {
			if x < 0 || x >= xsize {
				continue
			}
			if diffmap[y*xsize+x] > threshold {
				return true
			}
		}
	}
	return false
}

// TargetSizeFast implements the "Fast" target-size strategy: run the
// standard loop at D*=1.0, then bisect a scalar multiplier on the
// resulting field to hit targetSize, measuring size via sizeOf.
func TargetSizeFast(orig *pikimage.Image3, adaptiveMap *pikimage.Image, maxIters int, reconstruct Reconstructor, q *quant.Quantizer, targetSize int, sizeOf func(q *quant.Quantizer) int) Result {
	base := FindBestQuantization(orig, adaptiveMap, 1.0, maxIters, reconstruct, q)

	s := 1.0
	tries := 0
	scaledQuantizer(q, base, s)
	for sizeOf(q) > targetSize && tries < 10 {
		s *= 0.5
		scaledQuantizer(q, base, s)
		tries++
	}

	lo, hi := 0.0, s*2
	for i := 0; i < 16; i++ {
		mid := (lo + hi) / 2
		scaledQuantizer(q, base, mid)
		if sizeOf(q) > targetSize {
			hi = mid
		} else {
			lo = mid
		}
	}
	final := scaledQuantizer(q, base, lo)
	return Result{QuantField: final, RawDC: q.RawDC, Distance: base.Distance, Iterations: base.Iterations}
}

// scaledQuantizer rebuilds the field scaled by s (with the DC step scaled
// by sDC = 0.8*s + 0.2, per spec §4.7) and installs it on q, returning the
// field for convenience.
func scaledQuantizer(q *quant.Quantizer, base Result, s float64) *pikimage.ImageI {
	sDC := 0.8*s + 0.2
	bw, bh := base.QuantField.XSize(), base.QuantField.YSize()
	out := pikimage.NewImageI(bw, bh)
	for y := 0; y < bh; y++ {
		srow := base.QuantField.Row(y)
		drow := out.Row(y)
		for x := 0; x < bw; x++ {
			v := int32(math.Round(float64(srow[x]) * s))
			if v < 1 {
				v = 1
			}
			drow[x] = v
		}
	}
	rawDC := int(math.Round(float64(base.RawDC) * sDC))
	if rawDC < 1 {
		rawDC = 1
	}
	q.SetQuantField(rawDC, out)
	return out
}

// CompressToTarget implements the "compress-to-target" strategy:
// bisecting D* itself between a known-bad and known-good bracket.
func CompressToTarget(orig *pikimage.Image3, adaptiveMap *pikimage.Image, maxIters int, reconstruct Reconstructor, q *quant.Quantizer, targetSize int, sizeOf func(q *quant.Quantizer) int) Result {
	dBad, dGood := 32.0, 0.3
	var last Result
	for iter := 0; iter < 32; iter++ {
		if dBad-dGood < 0.05 {
			break
		}
		mid := (dBad + dGood) / 2
		last = FindBestQuantization(orig, adaptiveMap, mid, maxIters, reconstruct, q)
		if sizeOf(q) > targetSize {
			dGood = mid
		} else {
			dBad = mid
		}
	}
	return last
}
