package raster

import (
	"math"
	"testing"
	"time"
)

func TestGridDefaultsToNoData(t *testing.T) {
	g := NewGrid(4, 3)
	if g.Width != 4 || g.Height != 3 {
		t.Fatalf("unexpected dimensions %dx%d", g.Width, g.Height)
	}
	for i, v := range g.Data {
		if !IsNoData(v) {
			t.Fatalf("sample %d = %v, want no-data", i, v)
		}
	}
}

func TestGridSetAt(t *testing.T) {
	g := NewGrid(3, 2)
	g.Set(2, 1, 7.5)
	if got := g.At(2, 1); got != 7.5 {
		t.Fatalf("At(2,1) = %v, want 7.5", got)
	}
	if got := g.Data[g.Idx(2, 1)]; got != 7.5 {
		t.Fatalf("Idx lookup = %v, want 7.5", got)
	}
}

func TestValueNeverCoercesToZero(t *testing.T) {
	v := None()
	if v.Valid {
		t.Fatal("None() must be invalid")
	}
	s := Some(0.0)
	if !s.Valid {
		t.Fatal("Some(0) must be valid: zero is a real measurement")
	}
}

func TestCellCenter(t *testing.T) {
	ref := SpatialRef{OriginX: 100, OriginY: 200, CellSize: 10}
	x, y := ref.CellCenter(0, 0)
	if x != 105 || y != 195 {
		t.Fatalf("cell center = (%v, %v), want (105, 195)", x, y)
	}
}

func TestCollectionSortIsStable(t *testing.T) {
	t0 := time.Date(2010, time.July, 1, 0, 0, 0, 0, time.UTC)
	a := &Image{Sensor: "A", AcquiredAt: t0}
	b := &Image{Sensor: "B", AcquiredAt: t0}
	c := &Image{Sensor: "C", AcquiredAt: t0.Add(-time.Hour)}

	col := NewCollection(a, b, c)
	col.Sort()

	if col.Images[0] != c {
		t.Fatalf("earliest image must sort first")
	}
	if col.Images[1] != a || col.Images[2] != b {
		t.Fatalf("tie on identical timestamps must keep original order, got %s then %s",
			col.Images[1].Sensor, col.Images[2].Sensor)
	}
}

func TestCollectionFilterPreservesOrder(t *testing.T) {
	imgs := []*Image{
		{Sensor: "A", CloudCover: 10},
		{Sensor: "B", CloudCover: 90},
		{Sensor: "C", CloudCover: 20},
	}
	col := NewCollection(imgs...)
	kept := col.Filter(func(img *Image) bool { return img.CloudCover < 50 })
	if kept.Len() != 2 || kept.Images[0].Sensor != "A" || kept.Images[1].Sensor != "C" {
		t.Fatalf("unexpected filter result: %+v", kept.Images)
	}
}

func TestIsNoData(t *testing.T) {
	if !IsNoData(math.NaN()) {
		t.Fatal("NaN must be no-data")
	}
	if IsNoData(0) || IsNoData(-273.15) {
		t.Fatal("finite values are data")
	}
}
