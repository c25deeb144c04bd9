// Package raster provides the in-memory data model for satellite scenes:
// single-band grids, multi-band images, chronologically ordered collections,
// and the region-bounded reductions every analysis stage is built on.
//
// No-data is represented as NaN inside grids. Scalar results that may be
// absent use the explicit Value type so that a missing measurement is never
// silently coerced to zero.
package raster

import (
	"math"
	"sort"
	"time"
)

// Canonical band names produced by harmonization. Downstream stages operate
// only on these names.
const (
	BandBlue  = "blue"
	BandGreen = "green"
	BandRed   = "red"
	BandNIR   = "nir"
	BandLST   = "lst"
)

// CanonicalBands is the exact band set of a harmonized image.
var CanonicalBands = []string{BandBlue, BandGreen, BandRed, BandNIR, BandLST}

// NoData is the per-pixel missing-sample marker used inside grids.
var NoData = math.NaN()

// IsNoData reports whether v is the missing-sample marker.
func IsNoData(v float64) bool { return math.IsNaN(v) }

// Value is an optional scalar. Invalid values flow through aggregation as
// missing; they are never averaged in as zero.
type Value struct {
	Float float64
	Valid bool
}

// Some wraps a present scalar.
func Some(v float64) Value { return Value{Float: v, Valid: true} }

// None is the missing scalar.
func None() Value { return Value{} }

// Grid is a dense width x height sample plane stored row-major.
type Grid struct {
	Width  int
	Height int
	Data   []float64
}

// NewGrid allocates a grid with every sample set to NoData.
func NewGrid(width, height int) *Grid {
	data := make([]float64, width*height)
	for i := range data {
		data[i] = NoData
	}
	return &Grid{Width: width, Height: height, Data: data}
}

// NewGridFilled allocates a grid with every sample set to v.
func NewGridFilled(width, height int, v float64) *Grid {
	data := make([]float64, width*height)
	for i := range data {
		data[i] = v
	}
	return &Grid{Width: width, Height: height, Data: data}
}

// Idx converts (col, row) to the row-major index.
func (g *Grid) Idx(col, row int) int { return row*g.Width + col }

// At returns the sample at (col, row).
func (g *Grid) At(col, row int) float64 { return g.Data[row*g.Width+col] }

// Set writes the sample at (col, row).
func (g *Grid) Set(col, row int, v float64) { g.Data[row*g.Width+col] = v }

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	out := &Grid{Width: g.Width, Height: g.Height, Data: make([]float64, len(g.Data))}
	copy(out.Data, g.Data)
	return out
}

// SpatialRef anchors a grid in projected coordinates. OriginX/OriginY is the
// top-left corner; rows grow southward. CellSize is in CRS units (metres for
// projected systems).
type SpatialRef struct {
	CRS      string  `json:"crs"`
	OriginX  float64 `json:"origin_x"`
	OriginY  float64 `json:"origin_y"`
	CellSize float64 `json:"cell_size"`
}

// CellCenter returns the projected coordinates of the center of (col, row).
func (r SpatialRef) CellCenter(col, row int) (x, y float64) {
	return r.OriginX + (float64(col)+0.5)*r.CellSize,
		r.OriginY - (float64(row)+0.5)*r.CellSize
}

// Image is one satellite scene: a set of named sample grids sharing a
// spatial reference, plus acquisition metadata. Harmonized images are
// treated as immutable; stages that change pixel values return new images.
type Image struct {
	Bands      map[string]*Grid
	Ref        SpatialRef
	AcquiredAt time.Time
	Sensor     string
	CloudCover float64 // scene-level percentage, 0..100
}

// Band returns the named grid, or nil if the image does not carry it.
func (img *Image) Band(name string) *Grid {
	return img.Bands[name]
}

// HasBand reports whether the image carries the named band.
func (img *Image) HasBand(name string) bool {
	_, ok := img.Bands[name]
	return ok
}

// Size returns the pixel dimensions of the image. All bands of an image
// share dimensions; the first band is authoritative.
func (img *Image) Size() (width, height int) {
	for _, g := range img.Bands {
		return g.Width, g.Height
	}
	return 0, 0
}

// Collection is a sequence of images ordered ascending by acquisition time.
type Collection struct {
	Images []*Image
}

// NewCollection wraps images into a collection without reordering them.
// Use Sort (or collection.Merge) to establish chronological order.
func NewCollection(images ...*Image) *Collection {
	return &Collection{Images: images}
}

// Len returns the number of images in the collection.
func (c *Collection) Len() int { return len(c.Images) }

// Sort orders the collection ascending by acquisition time. The sort is
// stable: images with identical timestamps keep their relative order.
func (c *Collection) Sort() {
	sort.SliceStable(c.Images, func(i, j int) bool {
		return c.Images[i].AcquiredAt.Before(c.Images[j].AcquiredAt)
	})
}

// Filter returns a new collection holding the images for which keep returns
// true, preserving order. The images themselves are shared, not copied.
func (c *Collection) Filter(keep func(*Image) bool) *Collection {
	out := &Collection{}
	for _, img := range c.Images {
		if keep(img) {
			out.Images = append(out.Images, img)
		}
	}
	return out
}
