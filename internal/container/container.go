// Package container implements the PIK bitstream's outer framing: the
// fixed header (tag, size, quant template, flags) and the byte-alignment
// discipline between the variable-bit sections that follow it (spec §6.1).
//
// The header-fields-plus-flags-bitset shape, and the pattern of a small
// typed struct with Encode/Decode methods wrapping a bit writer/reader,
// follows internal/container/riff.go's Features/FormatType/flag-constant
// layout, adapted from WebP's chunk-tagged RIFF container (four-byte
// FourCC chunks wrapping independently-sized payloads) to PIK's flat
// bit-packed header (no chunk framing at all: every field is a fixed- or
// variable-width bitstream read in a fixed order).
package container

import (
	"github.com/deepteams/pik/internal/bitio"
	"github.com/deepteams/pik/internal/pikerr"
)

// Tag identifies the bitstream format of the coefficient/section data that
// follows the header. Brunsli is recognized but not implemented by this
// encoder (spec's Non-goals exclude alternate entropy backends); decoding
// a Brunsli-tagged stream fails with KindUnsupported.
type Tag uint8

const (
	TagDefault Tag = 0
	TagBrunsli Tag = 1
)

// Flags is the header's feature bitset.
//
// FlagDither and FlagSmoothDCPred from the reference bitstream are not
// carried here: this codec never performs dithered quantization or a
// separate smooth-DC-predictor mode (DC prediction always runs, see
// internal/dcpred), so there is no encoder decision either bit could
// ever record. Carrying them as permanently-unset bits would just be
// dead framing.
type Flags uint8

const (
	FlagAlpha Flags = 1 << iota
	// FlagDenoise marks that the quantizer-aware smoothing pass
	// (internal/gaborish's Denoise, grounded on original_source/pik.cc's
	// DoDenoise) ran at encode time and must run again at decode time with
	// the same quantizer. Set from EncoderOptions.Denoise, independent of
	// decoder-side noise synthesis (DecoderOptions.ApplyNoise), which has
	// its own per-pixel parameters and doesn't need a header bit.
	FlagDenoise
	FlagGaborishTransform
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// kMaxDim is the largest legal xsize/ysize, per spec §6.1.
const kMaxDim = (1 << 25) - 1

// Header is the fixed preamble of every PIK bitstream.
type Header struct {
	Tag           Tag
	XSize, YSize  int
	QuantTemplate uint8 // 0=Default, 1=HQ; mirrors pikcfg.QuantTemplate without importing it, to keep this package dependency-light
	Flags         Flags
}

// Validate checks the invalid-input conditions spec §8's error taxonomy
// assigns to header fields, independent of whether the bytes parsed at all.
func (h Header) Validate() error {
	if h.XSize <= 0 || h.YSize <= 0 {
		return pikerr.New(pikerr.KindInvalidInput, "container.Header.Validate", "zero-area image")
	}
	if h.XSize > kMaxDim || h.YSize > kMaxDim {
		return pikerr.New(pikerr.KindInvalidInput, "container.Header.Validate", "dimensions exceed maximum")
	}
	if h.Tag != TagDefault && h.Tag != TagBrunsli {
		return pikerr.New(pikerr.KindInvalidInput, "container.Header.Validate", "unrecognized bitstream tag")
	}
	if h.QuantTemplate > 1 {
		return pikerr.New(pikerr.KindInvalidInput, "container.Header.Validate", "unknown quant_template")
	}
	return nil
}

// Encode writes the header to w and restores byte alignment before
// returning, so the next section (alpha payload or noise params) starts
// on a clean byte boundary.
func (h Header) Encode(w *bitio.Writer) error {
	if err := h.Validate(); err != nil {
		return err
	}
	w.PutBits(uint64(h.Tag), 1)
	w.PutBits(uint64(h.XSize), 25)
	w.PutBits(uint64(h.YSize), 25)
	w.PutBits(uint64(h.QuantTemplate), 1)
	w.PutBits(uint64(h.Flags), 8)
	w.JumpToByteBoundary()
	return nil
}

// DecodeHeader reads a Header from r, returning a malformed-bitstream
// error on underrun and an invalid-input error for values Validate
// rejects.
func DecodeHeader(r *bitio.Reader) (Header, error) {
	var h Header
	tag, err := r.GetBits(1)
	if err != nil {
		return h, err
	}
	xsize, err := r.GetBits(25)
	if err != nil {
		return h, err
	}
	ysize, err := r.GetBits(25)
	if err != nil {
		return h, err
	}
	qt, err := r.GetBits(1)
	if err != nil {
		return h, err
	}
	flags, err := r.GetBits(8)
	if err != nil {
		return h, err
	}
	r.JumpToByteBoundary()
	h = Header{
		Tag:           Tag(tag),
		XSize:         int(xsize),
		YSize:         int(ysize),
		QuantTemplate: uint8(qt),
		Flags:         Flags(flags),
	}
	if err := h.Validate(); err != nil {
		return h, err
	}
	return h, nil
}

// kNaturalCoeffOrder is the standard JPEG zig-zag scan over a row-major
// 8x8 block, with 16 trailing copies of 63 for safe out-of-range reads by
// decoders that overscan past the last coefficient (spec §6.2).
var kNaturalCoeffOrder = buildNaturalCoeffOrder()

func buildNaturalCoeffOrder() [80]int {
	var zz [64]int
	x, y := 0, 0
	up := true
	for i := 0; i < 64; i++ {
		zz[i] = y*8 + x
		if up {
			if x == 7 {
				y++
				up = false
			} else if y == 0 {
				x++
				up = false
			} else {
				x++
				y--
			}
		} else {
			if y == 7 {
				x++
				up = true
			} else if x == 0 {
				y++
				up = true
			} else {
				x--
				y++
			}
		}
	}
	var out [80]int
	copy(out[:64], zz[:])
	for i := 64; i < 80; i++ {
		out[i] = 63
	}
	return out
}

// NaturalCoeffOrder returns the 80-entry natural scan order table (64 real
// positions plus 16 trailing sentinel 63s).
func NaturalCoeffOrder() [80]int { return kNaturalCoeffOrder }
