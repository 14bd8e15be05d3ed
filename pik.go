package pik

import (
	"github.com/deepteams/pik/internal/pikcfg"
	"github.com/deepteams/pik/internal/pikerr"
)

// MaxDimension is the largest legal xsize/ysize, per spec §6.1.
const MaxDimension = (1 << 25) - 1

// QuantTemplate selects the dequantization matrix family.
type QuantTemplate = pikcfg.QuantTemplate

const (
	QuantDefault = pikcfg.QuantDefault
	QuantHQ      = pikcfg.QuantHQ
)

// Denoise tri-states an override of the encoder's automatic denoise
// decision.
type Denoise = pikcfg.Denoise

const (
	DenoiseAuto = pikcfg.DenoiseAuto
	DenoiseOn   = pikcfg.DenoiseOn
	DenoiseOff  = pikcfg.DenoiseOff
)

// EncoderOptions controls encoding parameters. The zero value is valid
// and encodes at the default butteraugli distance.
type EncoderOptions = pikcfg.Params

// Stats reports the encoder's per-run diagnostics when passed via
// EncoderOptions.Stats.
type Stats = pikcfg.Stats

// DefaultOptions returns an EncoderOptions with every default applied.
func DefaultOptions() EncoderOptions {
	return pikcfg.Default()
}

// ErrKind classifies why Encode or Decode failed; see pikerr.Kind.
type ErrKind = pikerr.Kind

const (
	ErrInvalidInput ErrKind = pikerr.KindInvalidInput
	ErrMalformed    ErrKind = pikerr.KindMalformed
	ErrUnsupported  ErrKind = pikerr.KindUnsupported
)

// IsErrKind reports whether err is a pik error of the given kind.
func IsErrKind(err error, kind ErrKind) bool {
	return pikerr.Is(err, kind)
}
