// Package alpha implements the optional alpha-plane payload (spec §6.1,
// gated by the container's kAlpha flag): a spatial prediction filter
// identical in spirit to WebP's alpha filtering, followed by general byte
// compression instead of a full image codec.
//
// The filter-method enum and horizontal/vertical/gradient predictor shape
// is grounded on internal/lossy/alpha.go's AlphaFilterNone/Horizontal/
// Vertical/Gradient and alphaUnfilter* functions, generalized from
// unsigned-byte WebP alpha (paired with a VP8L entropy backend) to PIK's
// alpha plane, which is compressed with github.com/klauspost/compress/zstd
// rather than carrying an entire second lossless image codec for a single
// 8-bit plane.
package alpha

import (
	"github.com/klauspost/compress/zstd"

	"github.com/deepteams/pik/internal/pikerr"
)

// FilterMethod selects the spatial predictor applied before compression.
type FilterMethod uint8

const (
	FilterNone       FilterMethod = 0
	FilterHorizontal FilterMethod = 1
	FilterVertical   FilterMethod = 2
	FilterGradient   FilterMethod = 3
)

// Plane is a decoded 8-bit alpha plane.
type Plane struct {
	Width, Height int
	Pix           []byte // row-major, one byte per pixel
}

// filter applies the chosen predictor in place, matching
// alphaUnfilterHorizontal/Vertical/Gradient's loop shape but run forward
// (encode direction: residual = actual - predicted).
func filter(method FilterMethod, pix []byte, width, height int) {
	switch method {
	case FilterHorizontal:
		for y := 0; y < height; y++ {
			row := pix[y*width : (y+1)*width]
			var prev byte
			for x := 0; x < width; x++ {
				v := row[x]
				row[x] = v - prev
				prev = v
			}
		}
	case FilterVertical:
		prevRow := make([]byte, width)
		for y := 0; y < height; y++ {
			row := pix[y*width : (y+1)*width]
			for x := 0; x < width; x++ {
				v := row[x]
				row[x] = v - prevRow[x]
				prevRow[x] = v
			}
		}
	case FilterGradient:
		prevRow := make([]byte, width)
		for y := 0; y < height; y++ {
			row := pix[y*width : (y+1)*width]
			var left byte
			var prevLeft byte
			for x := 0; x < width; x++ {
				up := prevRow[x]
				pred := gradientPredict(left, up, prevLeft)
				v := row[x]
				prevLeft = up
				prevRow[x] = v
				row[x] = v - pred
				left = v
			}
		}
	}
}

// unfilter is filter's exact inverse.
func unfilter(method FilterMethod, pix []byte, width, height int) {
	switch method {
	case FilterHorizontal:
		for y := 0; y < height; y++ {
			row := pix[y*width : (y+1)*width]
			var prev byte
			for x := 0; x < width; x++ {
				row[x] += prev
				prev = row[x]
			}
		}
	case FilterVertical:
		prevRow := make([]byte, width)
		for y := 0; y < height; y++ {
			row := pix[y*width : (y+1)*width]
			for x := 0; x < width; x++ {
				row[x] += prevRow[x]
				prevRow[x] = row[x]
			}
		}
	case FilterGradient:
		prevRow := make([]byte, width)
		for y := 0; y < height; y++ {
			row := pix[y*width : (y+1)*width]
			var left byte
			var prevLeft byte
			for x := 0; x < width; x++ {
				up := prevRow[x]
				pred := gradientPredict(left, up, prevLeft)
				row[x] += pred
				prevLeft = up
				prevRow[x] = row[x]
				left = row[x]
			}
		}
	}
}

func gradientPredict(left, up, upLeft byte) byte {
	v := int(left) + int(up) - int(upLeft)
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// chooseFilter tries every method (FilterModeBest's "try all and pick
// smallest" policy from the teacher) and returns whichever minimizes the
// sum of absolute residuals, a cheap proxy for post-compression size.
func chooseFilter(pix []byte, width, height int) (FilterMethod, []byte) {
	best := FilterNone
	bestCost := residualCost(pix)
	bestBuf := append([]byte(nil), pix...)

	for _, m := range []FilterMethod{FilterHorizontal, FilterVertical, FilterGradient} {
		buf := append([]byte(nil), pix...)
		filter(m, buf, width, height)
		if c := residualCost(buf); c < bestCost {
			best, bestCost, bestBuf = m, c, buf
		}
	}
	return best, bestBuf
}

func residualCost(buf []byte) int64 {
	var sum int64
	for _, b := range buf {
		v := int8(b)
		if v < 0 {
			v = -v
		}
		sum += int64(v)
	}
	return sum
}

// Encode filters and compresses an alpha plane into the payload stored
// under the container's alpha section.
func Encode(p Plane) ([]byte, error) {
	if p.Width <= 0 || p.Height <= 0 || len(p.Pix) != p.Width*p.Height {
		return nil, pikerr.New(pikerr.KindInvalidInput, "alpha.Encode", "invalid alpha plane dimensions")
	}
	method, filtered := chooseFilter(p.Pix, p.Width, p.Height)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, pikerr.Wrap(pikerr.KindUnsupported, "alpha.Encode", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(filtered, nil)

	out := make([]byte, 1, 1+len(compressed))
	out[0] = byte(method)
	out = append(out, compressed...)
	return out, nil
}

// Decode is Encode's inverse.
func Decode(data []byte, width, height int) (Plane, error) {
	if len(data) < 1 {
		return Plane{}, pikerr.New(pikerr.KindMalformed, "alpha.Decode", "truncated alpha payload")
	}
	method := FilterMethod(data[0])
	if method > FilterGradient {
		return Plane{}, pikerr.New(pikerr.KindMalformed, "alpha.Decode", "unknown filter method")
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Plane{}, pikerr.Wrap(pikerr.KindUnsupported, "alpha.Decode", err)
	}
	defer dec.Close()
	pix, err := dec.DecodeAll(data[1:], make([]byte, 0, width*height))
	if err != nil {
		return Plane{}, pikerr.Wrap(pikerr.KindMalformed, "alpha.Decode", err)
	}
	if len(pix) != width*height {
		return Plane{}, pikerr.New(pikerr.KindMalformed, "alpha.Decode", "decoded alpha size mismatch")
	}

	unfilter(method, pix, width, height)
	return Plane{Width: width, Height: height, Pix: pix}, nil
}
