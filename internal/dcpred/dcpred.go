// Package dcpred implements the DC subsampled-image predictor: ShrinkY/
// ExpandY predict the luminance DC plane from causal neighbors, selecting
// among 8 fixed predictors per pixel by minimum error on the
// already-reconstructed causal neighborhood ("cross-channel predictor
// selection" — the choice is a deterministic function of data already
// available to the decoder, so no mode bits are transmitted).  ShrinkXB/
// ExpandXB predict the X and B DC planes jointly, using the
// already-reconstructed Y plane as additional context.
//
// The predictor-table shape (an array of predictor functions, indexed by
// mode, picked by a selection rule external to the function itself) is
// grounded on dsp/predict_lossless.go's LosslessPredFunc table and its
// lAverage2/lAverage3/lAverage4 averaging helpers, generalized from
// VP8L's 16 ARGB spatial predictors (transmitted per-tile) to PIK's 8
// DC predictors (selected per-pixel from causal data, never transmitted).
package dcpred

import "github.com/deepteams/pik/internal/pikimage"

const numPredictors = 8

// predFunc predicts a pixel value from its causal neighbors: west (w),
// north (n), northwest (nw), northeast (ne). Neighbors missing at the
// image edges are filled in by the caller (see neighbors).
type predFunc func(w, n, nw, ne int32) int32

var predictors = [numPredictors]predFunc{
	func(w, n, nw, ne int32) int32 { return w },
	func(w, n, nw, ne int32) int32 { return n },
	func(w, n, nw, ne int32) int32 { return (w + n) / 2 },
	func(w, n, nw, ne int32) int32 { return nw },
	func(w, n, nw, ne int32) int32 { return ne },
	func(w, n, nw, ne int32) int32 { return (n + ne) / 2 },
	func(w, n, nw, ne int32) int32 { return clampMedian(w+n-nw, w, n) },
	func(w, n, nw, ne int32) int32 { return (w + n + nw + ne) / 4 },
}

// clampMedian is the classic LOCO-I/JPEG-LS median predictor: clamp the
// gradient-corrected estimate to the range spanned by w and n.
func clampMedian(grad, w, n int32) int32 {
	lo, hi := w, n
	if lo > hi {
		lo, hi = hi, lo
	}
	if grad < lo {
		return lo
	}
	if grad > hi {
		return hi
	}
	return grad
}

// neighbors returns (w, n, nw, ne) for pixel (x,y) of im, substituting 0
// for any out-of-bounds neighbor, except that in the last column of rows
// y > 0 ne takes the value of n.
func neighbors(im *pikimage.ImageI, x, y int) (w, n, nw, ne int32) {
	if x > 0 {
		w = im.At(x-1, y)
	}
	if y > 0 {
		n = im.At(x, y-1)
		if x > 0 {
			nw = im.At(x-1, y-1)
		}
		if x+1 < im.XSize() {
			ne = im.At(x+1, y-1)
		} else {
			ne = n
		}
	}
	return w, n, nw, ne
}

// selectPredictor picks the predictor index that minimizes absolute error
// against the already-known west neighbor's own causal prediction — a
// causal proxy available identically to encoder and decoder, since it
// only reads pixels already reconstructed by the time (x,y) is processed.
func selectPredictor(im *pikimage.ImageI, x, y int) int {
	if x == 0 && y == 0 {
		return 0
	}
	// Proxy pixel: the west neighbor if available, else north.
	px, py := x-1, y
	if px < 0 {
		px, py = x, y-1
	}
	w, n, nw, ne := neighbors(im, px, py)
	actual := im.At(px, py)
	best, bestErr := 0, int32(1)<<30
	for i, p := range predictors {
		e := actual - p(w, n, nw, ne)
		if e < 0 {
			e = -e
		}
		if e < bestErr {
			bestErr, best = e, i
		}
	}
	return best
}

// ShrinkY computes the residual plane: residual(x,y) = actual(x,y) -
// predicted(x,y), where the predictor is chosen per selectPredictor.
// Residuals fit in int16 for legal DC value ranges (spec §4.5 contract).
func ShrinkY(in *pikimage.ImageI) *pikimage.ImageI {
	xsize, ysize := in.XSize(), in.YSize()
	out := pikimage.NewImageI(xsize, ysize)
	for y := 0; y < ysize; y++ {
		for x := 0; x < xsize; x++ {
			idx := selectPredictor(in, x, y)
			w, n, nw, ne := neighbors(in, x, y)
			pred := predictors[idx](w, n, nw, ne)
			out.Set(x, y, in.At(x, y)-pred)
		}
	}
	return out
}

// ExpandY is the exact inverse of ShrinkY: Expand(Shrink(in)) == in for
// every rectangle, since predictor selection and prediction at (x,y) only
// read pixels that precede (x,y) in raster order, which are already
// expanded.
func ExpandY(residual *pikimage.ImageI) *pikimage.ImageI {
	xsize, ysize := residual.XSize(), residual.YSize()
	out := pikimage.NewImageI(xsize, ysize)
	for y := 0; y < ysize; y++ {
		for x := 0; x < xsize; x++ {
			idx := selectPredictor(out, x, y)
			w, n, nw, ne := neighbors(out, x, y)
			pred := predictors[idx](w, n, nw, ne)
			out.Set(x, y, residual.At(x, y)+pred)
		}
	}
	return out
}

// ShrinkXB predicts the X and B DC planes jointly from the
// already-reconstructed Y plane: the predictor index is chosen from Y's
// local gradient (shared by X and B, since both track the same edges as
// Y in opponent color space) rather than from X/B's own causal pixels —
// the "joint" prediction of spec §4.5. Requirement (spec §9): Y must be
// fully reconstructed before this runs; callers must not interleave by
// scanline.
func ShrinkXB(xb *pikimage.ImageI, y *pikimage.ImageI) *pikimage.ImageI {
	xsize, ysize := xb.XSize(), xb.YSize()
	if xsize != y.XSize() || ysize != y.YSize() {
		panic("dcpred: ShrinkXB size mismatch between xb and y planes")
	}
	out := pikimage.NewImageI(xsize, ysize)
	for py := 0; py < ysize; py++ {
		for px := 0; px < xsize; px++ {
			idx := selectPredictor(y, px, py)
			w, n, nw, ne := neighbors(xb, px, py)
			pred := predictors[idx](w, n, nw, ne)
			out.Set(px, py, xb.At(px, py)-pred)
		}
	}
	return out
}

// ExpandXB is the exact inverse of ShrinkXB, given the same
// already-reconstructed Y plane used at encode time.
func ExpandXB(residual *pikimage.ImageI, y *pikimage.ImageI) *pikimage.ImageI {
	xsize, ysize := residual.XSize(), residual.YSize()
	out := pikimage.NewImageI(xsize, ysize)
	for py := 0; py < ysize; py++ {
		for px := 0; px < xsize; px++ {
			idx := selectPredictor(y, px, py)
			w, n, nw, ne := neighbors(out, px, py)
			pred := predictors[idx](w, n, nw, ne)
			out.Set(px, py, residual.At(px, py)+pred)
		}
	}
	return out
}
