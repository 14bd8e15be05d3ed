// Package ctan implements cross-channel correlation analysis ("color
// transform analysis"): per-tile Y->B and Y->X decorrelation scalars plus
// DC-level fallbacks (spec §4.3). The per-region "pick the best-fit scalar
// from a small candidate table" shape follows sharpyuv/csp.go's
// MatrixType-indexed GetConversionMatrix selection, generalized from a
// fixed enum of predefined matrices to an exhaustive per-tile search over
// k in [0,256).
package ctan

import "github.com/deepteams/pik/internal/pikimage"

const blockLen = 64

// Map holds the per-tile correlation scalars plus DC-level fallbacks.
type Map struct {
	YToB    *pikimage.ImageI // per-tile k, B <- B - (k/128)*Y
	YToX    *pikimage.ImageI // per-tile k, X <- X - ((k-128)/256)*Y
	YToBDC  int
	YToXDC  int
}

// kYToBScale and kYToXScale match spec §3's per-coefficient application
// formulas.
const (
	kYToBScale = 128.0
	kYToXShift = 128
	kYToXScale = 256.0
)

// ApplyYToB subtracts the correlation term from every AC coefficient of B
// (index 1..63 within a 64-long transposed block), leaving DC (index 0)
// untouched. There is no DC counterpart: the DC coefficient is never
// decorrelated.
func ApplyYToB(y, b []float32, k int) {
	scale := float32(k) / kYToBScale
	for i := 1; i < blockLen; i++ {
		b[i] -= scale * y[i]
	}
}

// ApplyYToX is the ytox analogue, with the spec's 128-shift convention.
func ApplyYToX(y, x []float32, k int) {
	scale := float32(k-kYToXShift) / kYToXScale
	for i := 1; i < blockLen; i++ {
		x[i] -= scale * y[i]
	}
}

// UnapplyYToB / UnapplyYToX are the decoder-side inverses.
func UnapplyYToB(y, b []float32, k int) {
	scale := float32(k) / kYToBScale
	for i := 1; i < blockLen; i++ {
		b[i] += scale * y[i]
	}
}

func UnapplyYToX(y, x []float32, k int) {
	scale := float32(k-kYToXShift) / kYToXScale
	for i := 1; i < blockLen; i++ {
		x[i] += scale * y[i]
	}
}

// tileBestYToB finds the best-fitting ytob scalar over every AC
// coefficient of every block in a tile. y and b are block-major coefficient
// planes (64 floats per block) covering the tile's blocks.
func tileBestYToB(yBlocks, bBlocks [][]float32, tau float32) int {
	bestCount, best := -1, 0
	for k := 0; k < 256; k++ {
		scale := float32(k) / kYToBScale
		count := 0
		for bi := range yBlocks {
			yb, bb := yBlocks[bi], bBlocks[bi]
			for i := 1; i < blockLen; i++ {
				if abs32(bb[i]-scale*yb[i]) < tau {
					count++
				}
			}
		}
		if count > bestCount {
			bestCount, best = count, k
		}
	}
	return best
}

func tileBestYToX(yBlocks, xBlocks [][]float32, tau float32) int {
	bestCount, best := -1, 0
	for k := 0; k < 256; k++ {
		scale := float32(k-kYToXShift) / kYToXScale
		count := 0
		for bi := range yBlocks {
			yb, xb := yBlocks[bi], xBlocks[bi]
			for i := 1; i < blockLen; i++ {
				if abs32(xb[i]-scale*yb[i]) < tau {
					count++
				}
			}
		}
		if count > bestCount {
			bestCount, best = count, k
		}
	}
	return best
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// defaultTau is the default matching tolerance for the ytob/ytox search.
const defaultTau = 1.5

// ApplyMap removes the correlation the Map describes from every block of
// bPlane/xPlane in place, using yPlane as the predictor. blocksW/blocksH
// give the coefficient planes' block-grid dimensions.
func ApplyMap(m *Map, yPlane, bPlane, xPlane []float32, blocksW, blocksH int) {
	yTiles := GroupByTile(yPlane, blocksW, blocksH)
	bTiles := GroupByTile(bPlane, blocksW, blocksH)
	xTiles := GroupByTile(xPlane, blocksW, blocksH)
	tilesW := pikimage.TileXSize(blocksW)
	for i := range yTiles {
		tx, ty := i%tilesW, i/tilesW
		kB := int(m.YToB.At(tx, ty))
		kX := int(m.YToX.At(tx, ty))
		for bi := range yTiles[i] {
			ApplyYToB(yTiles[i][bi], bTiles[i][bi], kB)
			ApplyYToX(yTiles[i][bi], xTiles[i][bi], kX)
		}
	}
}

// UnapplyMap is ApplyMap's exact inverse.
func UnapplyMap(m *Map, yPlane, bPlane, xPlane []float32, blocksW, blocksH int) {
	yTiles := GroupByTile(yPlane, blocksW, blocksH)
	bTiles := GroupByTile(bPlane, blocksW, blocksH)
	xTiles := GroupByTile(xPlane, blocksW, blocksH)
	tilesW := pikimage.TileXSize(blocksW)
	for i := range yTiles {
		tx, ty := i%tilesW, i/tilesW
		kB := int(m.YToB.At(tx, ty))
		kX := int(m.YToX.At(tx, ty))
		for bi := range yTiles[i] {
			UnapplyYToB(yTiles[i][bi], bTiles[i][bi], kB)
			UnapplyYToX(yTiles[i][bi], xTiles[i][bi], kX)
		}
	}
}

// Compute builds the full Map for a tile grid given per-tile block slices.
// yBlocksByTile/bBlocksByTile/xBlocksByTile are indexed [tile][blockInTile],
// each entry a 64-float transposed coefficient block. tilesW/tilesH give
// the tile grid dimensions.
//
// Tile decisions fall back to the DC decision unless they beat it by a
// fixed margin (ytob: strictly greater by >10; ytox: strictly greater),
// per spec §4.3.
func Compute(yBlocksByTile, bBlocksByTile, xBlocksByTile [][][]float32, tilesW, tilesH int) *Map {
	m := &Map{
		YToB: pikimage.NewImageI(tilesW, tilesH),
		YToX: pikimage.NewImageI(tilesW, tilesH),
	}

	// DC-level decision: one scalar derived from the DC coefficients (index
	// 0 of every block) pooled across every tile. AC coefficients never
	// enter this search, matching spec §4.3's "DC values omit the DC
	// coefficient" rule read from the AC side.
	yDC := flattenDC(yBlocksByTile)
	m.YToBDC = bestScalarYToB(yDC, flattenDC(bBlocksByTile), defaultTau)
	m.YToXDC = bestScalarYToX(yDC, flattenDC(xBlocksByTile), defaultTau)

	for ty := 0; ty < tilesH; ty++ {
		for tx := 0; tx < tilesW; tx++ {
			idx := ty*tilesW + tx
			kB := tileBestYToB(yBlocksByTile[idx], bBlocksByTile[idx], defaultTau)
			kX := tileBestYToX(yBlocksByTile[idx], xBlocksByTile[idx], defaultTau)

			if !betterByMargin(countMatchYToB(yBlocksByTile[idx], bBlocksByTile[idx], kB, defaultTau),
				countMatchYToB(yBlocksByTile[idx], bBlocksByTile[idx], m.YToBDC, defaultTau), 10) {
				kB = m.YToBDC
			}
			if !betterByMargin(countMatchYToX(yBlocksByTile[idx], xBlocksByTile[idx], kX, defaultTau),
				countMatchYToX(yBlocksByTile[idx], xBlocksByTile[idx], m.YToXDC, defaultTau), 0) {
				kX = m.YToXDC
			}
			m.YToB.Set(tx, ty, int32(kB))
			m.YToX.Set(tx, ty, int32(kX))
		}
	}
	return m
}

func betterByMargin(candidate, baseline, margin int) bool {
	return candidate > baseline+margin
}

func countMatchYToB(yBlocks, bBlocks [][]float32, k int, tau float32) int {
	scale := float32(k) / kYToBScale
	count := 0
	for bi := range yBlocks {
		yb, bb := yBlocks[bi], bBlocks[bi]
		for i := 1; i < blockLen; i++ {
			if abs32(bb[i]-scale*yb[i]) < tau {
				count++
			}
		}
	}
	return count
}

func countMatchYToX(yBlocks, xBlocks [][]float32, k int, tau float32) int {
	scale := float32(k-kYToXShift) / kYToXScale
	count := 0
	for bi := range yBlocks {
		yb, xb := yBlocks[bi], xBlocks[bi]
		for i := 1; i < blockLen; i++ {
			if abs32(xb[i]-scale*yb[i]) < tau {
				count++
			}
		}
	}
	return count
}

// flattenDC collects the DC coefficient (index 0) of every block across
// every tile into one flat slice.
func flattenDC(blocksByTile [][][]float32) []float32 {
	var out []float32
	for _, tile := range blocksByTile {
		for _, block := range tile {
			out = append(out, block[0])
		}
	}
	return out
}

// bestScalarYToB scans k in [0,256) scoring plain scalar matches (no
// per-block indexing, since DC values are pooled across the whole image).
func bestScalarYToB(y, b []float32, tau float32) int {
	bestCount, best := -1, 0
	for k := 0; k < 256; k++ {
		scale := float32(k) / kYToBScale
		count := 0
		for i := range y {
			if abs32(b[i]-scale*y[i]) < tau {
				count++
			}
		}
		if count > bestCount {
			bestCount, best = count, k
		}
	}
	return best
}

// GroupByTile slices a block-major coefficient plane (64 contiguous
// floats per block, blocks in raster order, blocksW blocks per row) into
// [tile][blockInTile][64] views sharing the same backing array, so
// Apply/Unapply calls against the grouped slices mutate coeffPlane
// directly with no copy.
func GroupByTile(coeffPlane []float32, blocksW, blocksH int) [][][]float32 {
	tilesW := pikimage.TileXSize(blocksW)
	tilesH := pikimage.TileXSize(blocksH)
	out := make([][][]float32, tilesW*tilesH)
	for ty := 0; ty < tilesH; ty++ {
		for tx := 0; tx < tilesW; tx++ {
			var blocks [][]float32
			for by := ty * 8; by < blocksH && by < (ty+1)*8; by++ {
				for bx := tx * 8; bx < blocksW && bx < (tx+1)*8; bx++ {
					idx := by*blocksW + bx
					blocks = append(blocks, coeffPlane[idx*blockLen:idx*blockLen+blockLen])
				}
			}
			out[ty*tilesW+tx] = blocks
		}
	}
	return out
}

func bestScalarYToX(y, x []float32, tau float32) int {
	bestCount, best := -1, 0
	for k := 0; k < 256; k++ {
		scale := float32(k-kYToXShift) / kYToXScale
		count := 0
		for i := range y {
			if abs32(x[i]-scale*y[i]) < tau {
				count++
			}
		}
		if count > bestCount {
			bestCount, best = count, k
		}
	}
	return best
}
