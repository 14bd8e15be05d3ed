package butteraugli

import (
	"testing"

	"github.com/deepteams/pik/internal/pikimage"
)

func TestCompare_IdenticalImagesScoreZero(t *testing.T) {
	im := pikimage.NewImage3(16, 16)
	for p := 0; p < 3; p++ {
		pl := im.Plane(p)
		for y := 0; y < 16; y++ {
			row := pl.Row(y)
			for x := 0; x < 16; x++ {
				row[x] = float32(x+y) * 0.01
			}
		}
	}
	c := New(16, 16)
	diffmap, score := c.Compare(im, im.Clone())
	if score != 0 {
		t.Errorf("score = %v, want 0 for identical images", score)
	}
	for i, v := range diffmap {
		if v != 0 {
			t.Fatalf("diffmap[%d] = %v, want 0", i, v)
		}
	}
}

func TestCompare_DivergesWithMoreDamage(t *testing.T) {
	a := pikimage.NewImage3(16, 16)
	bSmall := a.Clone()
	bSmall.Plane(pikimage.PlaneY).Row(8)[8] += 0.05

	bLarge := a.Clone()
	bLarge.Plane(pikimage.PlaneY).Row(8)[8] += 0.5

	c := New(16, 16)
	_, scoreSmall := c.Compare(a, bSmall)
	_, scoreLarge := c.Compare(a, bLarge)

	if scoreLarge <= scoreSmall {
		t.Errorf("scoreLarge (%v) should exceed scoreSmall (%v)", scoreLarge, scoreSmall)
	}
}

func TestIsAcceptable(t *testing.T) {
	if !IsAcceptable(0.5) {
		t.Error("0.5 should be acceptable")
	}
	if !IsAcceptable(kGood) {
		t.Error("kGood should be acceptable")
	}
	if IsAcceptable(kGood + 0.1) {
		t.Error("above kGood should not be acceptable")
	}
}

func TestScoreFromDiffmap_MatchesCompareScore(t *testing.T) {
	a := pikimage.NewImage3(8, 8)
	b := a.Clone()
	b.Plane(pikimage.PlaneX).Row(3)[3] += 0.2

	c := New(8, 8)
	diffmap, score := c.Compare(a, b)
	if got := ScoreFromDiffmap(diffmap, 8, 8); got != score {
		t.Errorf("ScoreFromDiffmap = %v, want %v", got, score)
	}
}
