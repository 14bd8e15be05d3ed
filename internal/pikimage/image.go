// Package pikimage provides the planar image containers the codec operates
// on: a row-padded float32 2-D grid (Image), an int32 grid (ImageI) and a
// 3-plane bundle (Image3), plus the Rect window and block/tile geometry
// constants shared by every later stage of the pipeline.
//
// Image is intentionally non-copyable by convention: there is no exported
// copy constructor, only Clone. This mirrors the source codec's ban on
// accidental large-image copies; Go can't enforce it at compile time the
// way a deleted copy constructor can, so it is enforced by convention and
// by never embedding Image by value in an exported struct that outlives a
// single call.
package pikimage

// kImageAlign is the minimum row-start alignment, matching the largest
// SIMD vector width any kernel in this codebase might assume.
const kImageAlign = 64

// kBlockDim is the side length of a coefficient block.
const kBlockDim = 8

// kTileInBlocks is the number of blocks per tile edge; a tile is the unit
// of cross-channel correlation and per-tile distance aggregation.
const kTileInBlocks = 8

// kTileDim is a tile's side length in pixels.
const kTileDim = kTileInBlocks * kBlockDim

// planeShiftBytes is the rotating per-plane row offset used by Image3 to
// avoid cross-plane cache-set aliasing. Real hardware store-forwarding
// aliasing depends on absolute allocation address, which Go's allocator
// does not expose; we approximate the source's intent with a logical
// stride pad that still staggers the three planes' row starts relative to
// each other. This is a deliberate, documented deviation — see DESIGN.md.
const planeShiftBytes = 256

// Number is the set of numeric pixel element types. Image and Image3 are
// not parameterized over it: both hold float32 (ImageI holds int32).
type Number interface {
	~uint8 | ~int16 | ~uint16 | ~int32 | ~float32
}

// Image is a 2-D grid of float32 with an aligned, padded row stride. Padding
// reserves at least one SIMD vector on each side so convolution kernels
// may write through row ends without corrupting neighboring rows.
type Image struct {
	xsize, ysize int
	stride       int // elements per row, >= xsize+2*border
	border       int
	buf          []float32
}

// NewImageF allocates a float32 Image of the given size.
func NewImageF(xsize, ysize int) *Image {
	return newImage(xsize, ysize)
}

func newImage(xsize, ysize int) *Image {
	if xsize < 0 || ysize < 0 {
		panic("pikimage: negative image dimensions")
	}
	border := kImageAlign / 4 // elements, not bytes, for float32
	stride := roundUpStride(xsize + 2*border)
	buf := make([]float32, stride*ysize)
	return &Image{xsize: xsize, ysize: ysize, stride: stride, border: border, buf: buf}
}

// roundUpStride rounds n up to a power-of-two multiple of the cacheline
// size (16 float32 = 64B) while explicitly avoiding exact multiples of
// 2KiB/4 (512 float32 elements) to sidestep 4-way associative cache
// aliasing between rows, per the source's stride rule.
func roundUpStride(n int) int {
	const cacheline = 16 // float32 elements per 64B cacheline
	s := ((n + cacheline - 1) / cacheline) * cacheline
	const avoid = 512 // 2KiB / 4 bytes
	if s%avoid == 0 {
		s += cacheline
	}
	return s
}

// XSize returns the logical width.
func (im *Image) XSize() int { return im.xsize }

// YSize returns the logical height.
func (im *Image) YSize() int { return im.ysize }

// Row returns the logical row y as a slice of length XSize (border
// excluded). Mutating the returned slice mutates the image.
func (im *Image) Row(y int) []float32 {
	off := y*im.stride + im.border
	return im.buf[off : off+im.xsize]
}

// RowWithBorder returns row y including border elements on both sides,
// for kernels (Gaborish, noise synthesis) that read outside [0, xsize).
func (im *Image) RowWithBorder(y int) []float32 {
	off := y * im.stride
	return im.buf[off : off+im.xsize+2*im.border]
}

// Border returns the number of guaranteed valid elements on each side of
// a row beyond [0, xsize).
func (im *Image) Border() int { return im.border }

// Clone returns a deep copy. This is the only sanctioned way to duplicate
// an Image; there is no value-copy constructor.
func (im *Image) Clone() *Image {
	out := &Image{xsize: im.xsize, ysize: im.ysize, stride: im.stride, border: im.border, buf: make([]float32, len(im.buf))}
	copy(out.buf, im.buf)
	return out
}

// Fill sets every pixel to v.
func (im *Image) Fill(v float32) {
	for y := 0; y < im.ysize; y++ {
		row := im.Row(y)
		for x := range row {
			row[x] = v
		}
	}
}

// ImageI is the integer counterpart used for quant fields and raw DC/AC
// levels, where exact integer arithmetic (not float rounding) matters.
type ImageI struct {
	xsize, ysize int
	stride       int
	buf          []int32
}

// NewImageI allocates an int32 image of the given size, no extra border
// (quant fields and coefficient planes are never convolved in place).
func NewImageI(xsize, ysize int) *ImageI {
	if xsize < 0 || ysize < 0 {
		panic("pikimage: negative image dimensions")
	}
	stride := roundUpStride(xsize)
	return &ImageI{xsize: xsize, ysize: ysize, stride: stride, buf: make([]int32, stride*ysize)}
}

func (im *ImageI) XSize() int { return im.xsize }
func (im *ImageI) YSize() int { return im.ysize }

func (im *ImageI) Row(y int) []int32 {
	off := y * im.stride
	return im.buf[off : off+im.xsize]
}

func (im *ImageI) At(x, y int) int32  { return im.Row(y)[x] }
func (im *ImageI) Set(x, y int, v int32) { im.Row(y)[x] = v }

func (im *ImageI) Clone() *ImageI {
	out := NewImageI(im.xsize, im.ysize)
	copy(out.buf, im.buf)
	return out
}

func (im *ImageI) Fill(v int32) {
	for y := 0; y < im.ysize; y++ {
		row := im.Row(y)
		for x := range row {
			row[x] = v
		}
	}
}

// Image3 bundles three same-sized planes (X, Y, B in opsin space; or
// R, G, B at the container boundary). The three planes' row starts are
// staggered by a rotating multiple of planeShiftBytes to avoid cross-plane
// aliasing; invariant: all three planes always share XSize/YSize.
type Image3 struct {
	planes [3]*Image
}

// PlaneX, PlaneY, PlaneB index Image3.Plane.
const (
	PlaneX = 0
	PlaneY = 1
	PlaneB = 2
)

// NewImage3 allocates three planes of the given size. The rotating
// per-plane offset is realized by padding each plane's border with an
// extra 0/256/512-byte-equivalent pad column in turn.
func NewImage3(xsize, ysize int) *Image3 {
	im3 := &Image3{}
	shiftElems := planeShiftBytes / 4
	for p := 0; p < 3; p++ {
		im := newImage(xsize, ysize)
		if extra := (p * shiftElems) % (3 * shiftElems); extra > 0 {
			im.border += extra
			im.stride = roundUpStride(xsize + 2*im.border)
			im.buf = make([]float32, im.stride*ysize)
		}
		im3.planes[p] = im
	}
	return im3
}

// Plane returns plane p (0=X/R, 1=Y/G, 2=B/B).
func (im3 *Image3) Plane(p int) *Image { return im3.planes[p] }

func (im3 *Image3) XSize() int { return im3.planes[0].XSize() }
func (im3 *Image3) YSize() int { return im3.planes[0].YSize() }

// Clone deep-copies all three planes.
func (im3 *Image3) Clone() *Image3 {
	out := &Image3{}
	for p := 0; p < 3; p++ {
		out.planes[p] = im3.planes[p].Clone()
	}
	return out
}

// Convert applies f to every pixel of every plane of src, writing into a
// freshly allocated Image3. Generalizes the source's per-pixel-type
// convert/scale/min-max reductions into one generic pass.
func Convert(src *Image3, f func(v float32) float32) *Image3 {
	out := NewImage3(src.XSize(), src.YSize())
	for p := 0; p < 3; p++ {
		sp, dp := src.Plane(p), out.Plane(p)
		for y := 0; y < sp.YSize(); y++ {
			srow, drow := sp.Row(y), dp.Row(y)
			for x := range srow {
				drow[x] = f(srow[x])
			}
		}
	}
	return out
}

// MinMax returns the minimum and maximum pixel value across all three
// planes of im.
func MinMax(im *Image3) (min, max float32) {
	min, max = im.Plane(0).Row(0)[0], im.Plane(0).Row(0)[0]
	for p := 0; p < 3; p++ {
		pl := im.Plane(p)
		for y := 0; y < pl.YSize(); y++ {
			for _, v := range pl.Row(y) {
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}
		}
	}
	return min, max
}

// Rect is an immutable window over one or more images, clamped at
// construction so x0+xsize and y0+ysize never exceed the bounds passed in.
type Rect struct {
	x0, y0, xsize, ysize int
}

// NewRect constructs a Rect clamped to [0, boundW) x [0, boundH).
func NewRect(x0, y0, xsize, ysize, boundW, boundH int) Rect {
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x0+xsize > boundW {
		xsize = boundW - x0
	}
	if y0+ysize > boundH {
		ysize = boundH - y0
	}
	if xsize < 0 {
		xsize = 0
	}
	if ysize < 0 {
		ysize = 0
	}
	return Rect{x0: x0, y0: y0, xsize: xsize, ysize: ysize}
}

func (r Rect) X0() int    { return r.x0 }
func (r Rect) Y0() int    { return r.y0 }
func (r Rect) XSize() int { return r.xsize }
func (r Rect) YSize() int { return r.ysize }

// BlockXSize returns ceil(xsize/8), the number of 8x8 blocks spanning a
// dimension of n pixels.
func BlockXSize(n int) int {
	return (n + kBlockDim - 1) / kBlockDim
}

// TileXSize returns ceil(blockXSize/8), the number of tiles spanning a
// dimension given in blocks.
func TileXSize(blocks int) int {
	return (blocks + kTileInBlocks - 1) / kTileInBlocks
}
