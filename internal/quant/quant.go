// Package quant implements the per-block AC quantization field and scalar
// DC quantizer (spec §4.4), generalizing dsp/quantize.go's
// Quantize/Dequantize/QuantizeBlock/DequantizeBlock (VP8's single scalar
// quant per macroblock, 4x4 zig-zag blocks) to PIK's per-8x8-block AC
// field plus one scalar DC step, and internal/lossy/encode_quant.go's
// quantizeCoeffsGo/dequantCoeffsGo rounding-with-sign idiom.
package quant

import (
	"github.com/deepteams/pik/internal/pikcfg"
	"github.com/deepteams/pik/internal/pikimage"
)

const blockDim = 8
const blockLen = blockDim * blockDim

// dequantMatrix returns the per-(u,v) dequantization weight for the given
// template. Default favors smooth low-frequency preservation; HQ flattens
// the falloff for higher fidelity at high quant indices.
func dequantMatrix(t pikcfg.QuantTemplate) [blockLen]float32 {
	var m [blockLen]float32
	for u := 0; u < blockDim; u++ {
		for v := 0; v < blockDim; v++ {
			freq := float32(u + v)
			base := 1.0 + freq*freq*0.08
			if t == pikcfg.QuantHQ {
				base = 1.0 + freq*0.25
			}
			m[u*blockDim+v] = base
		}
	}
	return m
}

// dcDequant is the fixed DC dequantization weight (coefficient (0,0) is
// excluded from the AC matrix and uses its own scalar step).
const dcDequant = 1.0 / 8.0

// Quantizer holds encoder/decoder quantization state: the scalar DC step,
// the per-block AC quantization index field, the global scale, and the
// selected dequantization template.
type Quantizer struct {
	RawDC    int
	Field    *pikimage.ImageI // per-block AC quant index, q_b in [1, qCeil]
	Scale    float64
	Template pikcfg.QuantTemplate

	dequant [blockLen]float32
}

// New creates a Quantizer over a field of the given block dimensions.
func New(blockW, blockH int, template pikcfg.QuantTemplate) *Quantizer {
	f := pikimage.NewImageI(blockW, blockH)
	f.Fill(1)
	return &Quantizer{
		RawDC:    1,
		Field:    f,
		Scale:    1.0,
		Template: template,
		dequant:  dequantMatrix(template),
	}
}

// SetQuantField installs a new (rawDC, field) pair; Field becomes field
// itself (the previous storage is not reused). It returns whether anything actually
// changed, used by the control loop as its fixed-point detector (spec
// §4.4: "returns whether anything changed").
func (q *Quantizer) SetQuantField(rawDC int, field *pikimage.ImageI) bool {
	changed := rawDC != q.RawDC
	if !changed {
		bw, bh := field.XSize(), field.YSize()
		if bw != q.Field.XSize() || bh != q.Field.YSize() {
			changed = true
		} else {
			for y := 0; y < bh && !changed; y++ {
				a, b := q.Field.Row(y), field.Row(y)
				for x := range a {
					if a[x] != b[x] {
						changed = true
						break
					}
				}
			}
		}
	}
	q.RawDC = rawDC
	q.Field = field
	return changed
}

// QBlock returns the clamped AC quant index for block (bx, by).
func (q *Quantizer) QBlock(bx, by int) int {
	v := int(q.Field.At(bx, by))
	if v < 1 {
		v = 1
	}
	return v
}

// QuantizeBlock quantizes one transposed-order 8x8 coefficient block:
// coef_raw = round(coef / (dequant[u,v] / q_b)) for AC, and the DC
// coefficient (index 0) uses rawDC instead of q_b. out and in both have
// length 64.
func (q *Quantizer) QuantizeBlock(in []float32, out []int32, bx, by int) {
	qb := float64(q.QBlock(bx, by)) * q.Scale
	for i := 0; i < blockLen; i++ {
		var step float64
		if i == 0 {
			step = dcDequant / float64(q.RawDC)
		} else {
			step = float64(q.dequant[i]) / qb
		}
		out[i] = roundDiv(in[i], step)
	}
}

// DequantizeBlock is the inverse of QuantizeBlock.
func (q *Quantizer) DequantizeBlock(in []int32, out []float32, bx, by int) {
	qb := float64(q.QBlock(bx, by)) * q.Scale
	for i := 0; i < blockLen; i++ {
		var step float64
		if i == 0 {
			step = dcDequant / float64(q.RawDC)
		} else {
			step = float64(q.dequant[i]) / qb
		}
		out[i] = float32(float64(in[i]) * step)
	}
}

func roundDiv(v float32, step float64) int32 {
	if step == 0 {
		step = 1
	}
	r := float64(v) / step
	if r >= 0 {
		return int32(r + 0.5)
	}
	return int32(r - 0.5)
}

// AdjustQuantVal performs one Newton-style refinement step used by the HQ
// control loop (spec §4.7): 1/q <- 1/q - factor/(d+1), clamped to 1/ceil.
func AdjustQuantVal(q, d, factor float64, ceil int) float64 {
	inv := 1.0/q - factor/(d+1.0)
	minInv := 1.0 / float64(ceil)
	if inv < minInv {
		inv = minInv
	}
	if inv <= 0 {
		return float64(ceil)
	}
	return 1.0 / inv
}
