package ctan

import (
	"testing"

	"github.com/deepteams/pik/internal/pikimage"
)

func makeBlock(fill func(i int) float32) []float32 {
	b := make([]float32, blockLen)
	for i := range b {
		b[i] = fill(i)
	}
	return b
}

func TestApplyUnapplyYToB_RoundTrip(t *testing.T) {
	y := makeBlock(func(i int) float32 { return float32(i) * 0.5 })
	b := makeBlock(func(i int) float32 { return float32(i)*0.5*40.0/128.0 + 3 })
	orig := append([]float32(nil), b...)

	ApplyYToB(y, b, 40)
	UnapplyYToB(y, b, 40)

	for i := range b {
		if diff := b[i] - orig[i]; diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("b[%d] = %v, want %v", i, b[i], orig[i])
		}
	}
	// DC (index 0) must be untouched by ApplyYToB.
	if b[0] != orig[0] {
		t.Errorf("DC coefficient was modified")
	}
}

func TestApplyUnapplyYToX_RoundTrip(t *testing.T) {
	y := makeBlock(func(i int) float32 { return float32(i) * 0.3 })
	x := makeBlock(func(i int) float32 { return float32(i) + 1 })
	orig := append([]float32(nil), x...)

	ApplyYToX(y, x, 150)
	UnapplyYToX(y, x, 150)

	for i := range x {
		if diff := x[i] - orig[i]; diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("x[%d] = %v, want %v", i, x[i], orig[i])
		}
	}
}

func TestGroupByTile_SharesBackingArray(t *testing.T) {
	blocksW, blocksH := 10, 9
	plane := make([]float32, blocksW*blocksH*blockLen)
	tiles := GroupByTile(plane, blocksW, blocksH)

	tilesW := pikimage.TileXSize(blocksW)
	tilesH := pikimage.TileXSize(blocksH)
	if len(tiles) != tilesW*tilesH {
		t.Fatalf("len(tiles) = %d, want %d", len(tiles), tilesW*tilesH)
	}

	// Mutating a grouped block must mutate the original plane.
	tiles[0][0][5] = 99
	if plane[5] != 99 {
		t.Errorf("GroupByTile did not share backing storage: plane[5] = %v, want 99", plane[5])
	}
}

func TestComputeApplyUnapplyMap_RoundTrip(t *testing.T) {
	blocksW, blocksH := 16, 16
	n := blocksW * blocksH * blockLen
	yPlane := make([]float32, n)
	bPlane := make([]float32, n)
	xPlane := make([]float32, n)
	for i := 0; i < n; i++ {
		yPlane[i] = float32(i%53) - 20
		bPlane[i] = yPlane[i]*0.2 + float32(i%7)
		xPlane[i] = yPlane[i]*-0.1 + float32(i%5)
	}
	origB := append([]float32(nil), bPlane...)
	origX := append([]float32(nil), xPlane...)

	yTiles := GroupByTile(yPlane, blocksW, blocksH)
	bTiles := GroupByTile(bPlane, blocksW, blocksH)
	xTiles := GroupByTile(xPlane, blocksW, blocksH)
	tilesW := pikimage.TileXSize(blocksW)
	tilesH := pikimage.TileXSize(blocksH)
	m := Compute(yTiles, bTiles, xTiles, tilesW, tilesH)

	ApplyMap(m, yPlane, bPlane, xPlane, blocksW, blocksH)
	UnapplyMap(m, yPlane, bPlane, xPlane, blocksW, blocksH)

	for i := 0; i < n; i++ {
		if diff := bPlane[i] - origB[i]; diff > 1e-3 || diff < -1e-3 {
			t.Fatalf("bPlane[%d] = %v, want %v", i, bPlane[i], origB[i])
		}
		if diff := xPlane[i] - origX[i]; diff > 1e-3 || diff < -1e-3 {
			t.Fatalf("xPlane[%d] = %v, want %v", i, xPlane[i], origX[i])
		}
	}
}
