// Package bitio provides the byte-aligned bit writer/reader used by the
// container header and other fixed-field sections of the bitstream (spec
// §5). PIK's header fields are packed LSB-first within each byte and the
// section as a whole is always padded out to a byte boundary before the
// next section begins, unlike the teacher's VP8 boolean (arithmetic) coder
// in internal/bitio/reader_bool.go, which narrows a probability interval
// instead of packing fixed-width fields. The exported surface (a Writer
// with PutBits/PutSignedBits/Finish/Bytes, a Reader with GetBits/Pos) is
// shaped to echo that package's BoolReader/BoolWriter naming even though
// the underlying algorithm is the simpler fixed-width one the header needs.
package bitio

import "github.com/deepteams/pik/internal/pikerr"

// Writer accumulates bits LSB-first into a byte buffer.
type Writer struct {
	buf      []byte
	bitBuf   uint64
	bitCount uint
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// PutBits appends the low nbits bits of v, LSB first.
func (w *Writer) PutBits(v uint64, nbits uint) {
	if nbits == 0 {
		return
	}
	w.bitBuf |= (v & (1<<nbits - 1)) << w.bitCount
	w.bitCount += nbits
	for w.bitCount >= 8 {
		w.buf = append(w.buf, byte(w.bitBuf))
		w.bitBuf >>= 8
		w.bitCount -= 8
	}
}

// PutSignedBits appends a zigzag-encoded signed value in nbits+1 bits (the
// extra bit carries the sign), used for header fields that may be negative
// (e.g. noise model coefficients serialized as fixed-point header data).
func (w *Writer) PutSignedBits(v int64, nbits uint) {
	var zz uint64
	if v >= 0 {
		zz = uint64(v) << 1
	} else {
		zz = (uint64(-v) << 1) - 1
	}
	w.PutBits(zz, nbits+1)
}

// JumpToByteBoundary flushes any partial byte with zero padding, matching
// the bitstream's per-section byte-alignment rule (spec §5.1).
func (w *Writer) JumpToByteBoundary() {
	if w.bitCount > 0 {
		w.buf = append(w.buf, byte(w.bitBuf))
		w.bitBuf = 0
		w.bitCount = 0
	}
}

// Finish flushes any partial byte and returns the accumulated buffer. The
// Writer must not be used afterward.
func (w *Writer) Finish() []byte {
	w.JumpToByteBoundary()
	return w.buf
}

// Bytes returns the bytes written so far without flushing a partial byte
// (that byte's bits, if any, are dropped from the view).
func (w *Writer) Bytes() []byte { return w.buf }

// Pos returns the number of whole bits written so far, including any
// buffered partial byte.
func (w *Writer) Pos() int { return len(w.buf)*8 + int(w.bitCount) }

// Reader is the Writer's inverse: it reads bits LSB-first from a byte
// buffer and reports a malformed-bitstream error on underrun rather than
// panicking, since bitstream corruption is expected input, not a
// programmer error (spec's error taxonomy, internal/pikerr).
type Reader struct {
	buf      []byte
	pos      int // byte position
	bitBuf   uint64
	bitCount uint
}

// NewReader returns a Reader over buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// GetBits reads nbits bits, LSB first, returning a malformed-bitstream
// error if the buffer is exhausted first.
func (r *Reader) GetBits(nbits uint) (uint64, error) {
	for r.bitCount < nbits {
		if r.pos >= len(r.buf) {
			return 0, pikerr.New(pikerr.KindMalformed, "bitio.GetBits", "unexpected end of section")
		}
		r.bitBuf |= uint64(r.buf[r.pos]) << r.bitCount
		r.bitCount += 8
		r.pos++
	}
	v := r.bitBuf & (1<<nbits - 1)
	r.bitBuf >>= nbits
	r.bitCount -= nbits
	return v, nil
}

// GetSignedBits is the inverse of PutSignedBits.
func (r *Reader) GetSignedBits(nbits uint) (int64, error) {
	zz, err := r.GetBits(nbits + 1)
	if err != nil {
		return 0, err
	}
	if zz&1 == 0 {
		return int64(zz >> 1), nil
	}
	return -int64((zz + 1) >> 1), nil
}

// JumpToByteBoundary discards any remaining buffered bits in the current
// byte, matching the writer's padding.
func (r *Reader) JumpToByteBoundary() {
	r.bitBuf = 0
	r.bitCount = 0
}

// Pos returns the current read position in bits from the start of buf.
func (r *Reader) Pos() int { return r.pos*8 - int(r.bitCount) }

// PaddedBytes is a byte buffer guaranteed to have at least 8 bytes of
// addressable, zero-filled capacity beyond its logical length, so bulk
// bitstream readers (which may overread up to a machine word at a time,
// per the teacher's loadNewBytes 8-byte bulk load) never run off the end
// of the backing array even on the final read.
type PaddedBytes struct {
	buf []byte
	n   int
}

// NewPaddedBytes allocates a PaddedBytes able to hold n logical bytes.
func NewPaddedBytes(n int) *PaddedBytes {
	return &PaddedBytes{buf: make([]byte, n+8), n: n}
}

// Resize changes the logical length, preserving existing content and
// reallocating (with the 8-byte pad) only if capacity is insufficient.
func (p *PaddedBytes) Resize(n int) {
	if n+8 > len(p.buf) {
		nb := make([]byte, n+8)
		copy(nb, p.buf[:p.n])
		p.buf = nb
	}
	p.n = n
}

// Bytes returns the logical (unpadded) contents.
func (p *PaddedBytes) Bytes() []byte { return p.buf[:p.n] }

// Len returns the logical length.
func (p *PaddedBytes) Len() int { return p.n }
