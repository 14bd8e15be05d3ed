// Package pikcfg holds the compress-params configuration threaded
// explicitly through the encode/decode entry points. It plays the role
// the source codec's process-wide mutable flags play (FLAGS_log_search_state,
// FLAGS_dump_quant_state, FLAGS_epf_mul), re-architected per spec into an
// explicit struct, following the same "options struct, not globals" shape
// the teacher's EncoderOptions/Preset pair uses.
package pikcfg

import (
	"log/slog"

	"github.com/deepteams/pik/internal/piklog"
)

// QuantTemplate selects the dequantization matrix and associated flags.
type QuantTemplate int

const (
	QuantDefault QuantTemplate = iota
	QuantHQ
)

// Denoise tri-states an override of the default denoise decision.
type Denoise int

const (
	DenoiseAuto Denoise = iota
	DenoiseOn
	DenoiseOff
)

// Params collects every recognized compression option from spec §6.3.
type Params struct {
	// ButteraugliDistance is the target perceptual distance D*; smaller
	// is better quality. Defaults to 1.0 if zero.
	ButteraugliDistance float64

	// TargetSize, if > 0, requests the fast target-size search instead
	// of a fixed ButteraugliDistance.
	TargetSize int
	// TargetBitrate is an alternative rate target (bits per pixel); 0
	// disables it. When TargetSize is 0 it is converted to a TargetSize of
	// TargetBitrate*xsize*ysize/8 bytes.
	TargetBitrate float64
	// TargetSizeSearchFastMode selects the scalar-multiplier bisection
	// of the target-size search over the bracket-D* compress-to-target
	// strategy.
	TargetSizeSearchFastMode bool

	// FastMode skips the ctan search and the HQ loop.
	FastMode bool
	// ReallySlowMode raises iteration caps and uses slower update
	// constants in the control loop.
	ReallySlowMode bool

	MaxButteraugliIters           int
	MaxButteraugliItersReallySlow int

	// HFAsymmetry is forwarded to the butteraugli comparator.
	HFAsymmetry float64

	// Denoise controls the quantizer-aware smoothing pass (container.FlagDenoise,
	// internal/gaborish's Denoise). Auto/Off leave it disabled; On enables it.
	Denoise Denoise
	// ApplyNoise tri-states the decoder-side grain synthesis override
	// (internal/noise's AddNoise), independent of Denoise.
	ApplyNoise   Denoise
	UniformQuant float64 // if > 0, bypass the control loop entirely

	QuantTemplate QuantTemplate

	// MaxNumPixels caps xsize*ysize for KindInvalidInput rejection; 0
	// means "use the bitstream's own (1<<25)-1 per-dimension cap only".
	MaxNumPixels int

	// Logger receives the control loop's per-iteration diagnostics.
	// Defaults to a discard logger (see piklog.New) when nil.
	Logger *slog.Logger

	// Stats, if non-nil, is populated with the encoder's final summary
	// (the spec's PikInfo, trimmed to scalars per SPEC_FULL.md §4 — no
	// debug heatmaps, which are out of scope).
	Stats *Stats
}

// Stats is the optional per-encode diagnostics record, grounded on
// original_source/pik_info.h's PikInfo, trimmed to the scalar fields
// spec.md doesn't place out of scope (no histogram images, no dumped
// quant-field heatmaps).
type Stats struct {
	Iterations       int
	FinalDistance    float64
	HeaderBytes      int
	NoiseParamBytes  int
	CtanBytes        int
	QuantBytes       int
	OrderBytes       int
	HistogramBytes   int
	CoefficientBytes int
	AlphaBytes       int
}

// Default returns the zero-value Params with every default applied.
func Default() Params {
	return Params{
		ButteraugliDistance:           1.0,
		MaxButteraugliIters:           7,
		MaxButteraugliItersReallySlow: 12,
		HFAsymmetry:                   1.0,
		QuantTemplate:                 QuantDefault,
	}
}

// Normalize fills in zero-valued fields with their defaults in place and
// returns p for chaining.
func (p *Params) Normalize() *Params {
	d := Default()
	if p.ButteraugliDistance == 0 {
		p.ButteraugliDistance = d.ButteraugliDistance
	}
	if p.MaxButteraugliIters == 0 {
		p.MaxButteraugliIters = d.MaxButteraugliIters
	}
	if p.MaxButteraugliItersReallySlow == 0 {
		p.MaxButteraugliItersReallySlow = d.MaxButteraugliItersReallySlow
	}
	if p.HFAsymmetry == 0 {
		p.HFAsymmetry = d.HFAsymmetry
	}
	if p.Logger == nil {
		p.Logger = piklog.New()
	}
	return p
}
