// Package transform implements the 8x8 transposed-scaled DCT used by the
// block pipeline: the usual DCT-II with scale factors absorbed into the
// quantization matrix (internal/quant owns those matrices), the coefficient
// block written transposed in memory so (u,v) lands at linear offset
// 64*block + u*8 + v.
//
// The separable butterfly shape (vertical pass into a scratch buffer, then
// horizontal pass writing the destination) follows dsp/transforms.go's
// transformOne (4x4 IDCT: vertical pass into tmp[16], horizontal pass into
// dst) scaled from 4x4 integer fixed-point to 8x8 float32, since PIK's
// transform operates on the opsin float domain rather than VP8's 8-bit
// pixel residual domain.
package transform

import "math"

const blockDim = 8
const blockLen = blockDim * blockDim

// cosTab[u][x] = cos((2x+1)*u*pi/16), precomputed once.
var cosTab [blockDim][blockDim]float32

// alpha[u] is the DCT-II orthonormal scale factor: 1/sqrt(8) for u==0,
// 1/2 for u>0. It is kept separate from cosTab and multiplied in per
// coefficient by both passes; dequant absorbs any remaining scale per the
// "transposed scaled" naming in spec §4.2.
var alpha [blockDim]float32

func init() {
	for u := 0; u < blockDim; u++ {
		a := float32(1.0 / math.Sqrt(float64(blockDim)))
		if u > 0 {
			a = float32(math.Sqrt(2.0 / float64(blockDim)))
		}
		alpha[u] = a
		for x := 0; x < blockDim; x++ {
			cosTab[u][x] = float32(math.Cos(float64(2*x+1) * float64(u) * math.Pi / (2 * float64(blockDim))))
		}
	}
}

// Forward8x8 computes the forward DCT of an 8x8 block of pixels in raster
// order (in[y*8+x]) and writes the transposed coefficient block
// (out[u*8+v] = coefficient at (u,v)) to out, which must have length 64.
func Forward8x8(in, out []float32) {
	var tmp [blockLen]float32
	// Vertical pass: tmp[v*8+x] = sum_y alpha[v]*cos(v,y) * in[y*8+x].
	for v := 0; v < blockDim; v++ {
		for x := 0; x < blockDim; x++ {
			var sum float32
			for y := 0; y < blockDim; y++ {
				sum += cosTab[v][y] * in[y*blockDim+x]
			}
			tmp[v*blockDim+x] = alpha[v] * sum
		}
	}
	// Horizontal pass, written transposed: out[u*8+v] = sum_x alpha[u]*cos(u,x)*tmp[v*8+x].
	for v := 0; v < blockDim; v++ {
		for u := 0; u < blockDim; u++ {
			var sum float32
			for x := 0; x < blockDim; x++ {
				sum += cosTab[u][x] * tmp[v*blockDim+x]
			}
			out[u*blockDim+v] = alpha[u] * sum
		}
	}
}

// Inverse8x8 computes the inverse DCT of a transposed coefficient block
// (in[u*8+v]) and writes raster-order pixels to out[y*8+x].
func Inverse8x8(in, out []float32) {
	var tmp [blockLen]float32
	// Undo the horizontal pass: tmp[v*8+x] = sum_u alpha[u]*cos(u,x)*in[u*8+v].
	for v := 0; v < blockDim; v++ {
		for x := 0; x < blockDim; x++ {
			var sum float32
			for u := 0; u < blockDim; u++ {
				sum += alpha[u] * cosTab[u][x] * in[u*blockDim+v]
			}
			tmp[v*blockDim+x] = sum
		}
	}
	// Undo the vertical pass: out[y*8+x] = sum_v alpha[v]*cos(v,y)*tmp[v*8+x].
	for y := 0; y < blockDim; y++ {
		for x := 0; x < blockDim; x++ {
			var sum float32
			for v := 0; v < blockDim; v++ {
				sum += alpha[v] * cosTab[v][y] * tmp[v*blockDim+x]
			}
			out[y*blockDim+x] = sum
		}
	}
}
