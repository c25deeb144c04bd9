package raster

import (
	"fmt"
	"math"
)

// Point is a vertex in projected coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Region is the immutable polygon over which every area statistic is
// computed. It is validated once at construction and never mutated
// afterwards; all pipeline stages share the same instance.
type Region struct {
	vertices []Point
	minX     float64
	minY     float64
	maxX     float64
	maxY     float64
}

// InvalidGeometryError reports a polygon that cannot define a region.
// It is fatal: the pipeline refuses to start on bad geometry.
type InvalidGeometryError struct {
	Reason string
}

func (e *InvalidGeometryError) Error() string {
	return fmt.Sprintf("invalid region geometry: %s", e.Reason)
}

// NewRegion validates the polygon ring and returns an immutable Region.
// The ring must have at least three finite vertices; it is treated as
// implicitly closed.
func NewRegion(vertices []Point) (*Region, error) {
	if len(vertices) < 3 {
		return nil, &InvalidGeometryError{Reason: fmt.Sprintf("need at least 3 vertices, got %d", len(vertices))}
	}
	r := &Region{
		vertices: make([]Point, len(vertices)),
		minX:     math.Inf(1),
		minY:     math.Inf(1),
		maxX:     math.Inf(-1),
		maxY:     math.Inf(-1),
	}
	for i, p := range vertices {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return nil, &InvalidGeometryError{Reason: fmt.Sprintf("vertex %d is not finite", i)}
		}
		r.vertices[i] = p
		r.minX = math.Min(r.minX, p.X)
		r.minY = math.Min(r.minY, p.Y)
		r.maxX = math.Max(r.maxX, p.X)
		r.maxY = math.Max(r.maxY, p.Y)
	}
	if r.minX == r.maxX || r.minY == r.maxY {
		return nil, &InvalidGeometryError{Reason: "polygon has zero area"}
	}
	return r, nil
}

// Vertices returns a copy of the polygon ring.
func (r *Region) Vertices() []Point {
	out := make([]Point, len(r.vertices))
	copy(out, r.vertices)
	return out
}

// Bounds returns the axis-aligned bounding box of the region.
func (r *Region) Bounds() (minX, minY, maxX, maxY float64) {
	return r.minX, r.minY, r.maxX, r.maxY
}

// Contains reports whether the projected point (x, y) lies inside the
// polygon, using the even-odd ray casting rule.
func (r *Region) Contains(x, y float64) bool {
	if x < r.minX || x > r.maxX || y < r.minY || y > r.maxY {
		return false
	}
	inside := false
	n := len(r.vertices)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := r.vertices[i], r.vertices[j]
		if (vi.Y > y) != (vj.Y > y) &&
			x < (vj.X-vi.X)*(y-vi.Y)/(vj.Y-vi.Y)+vi.X {
			inside = !inside
		}
	}
	return inside
}

// Intersects reports whether the region's bounding box overlaps the pixel
// extent of a grid anchored at ref. Used to skip scenes that cannot
// contribute any samples.
func (r *Region) Intersects(ref SpatialRef, width, height int) bool {
	gMinX := ref.OriginX
	gMaxX := ref.OriginX + float64(width)*ref.CellSize
	gMaxY := ref.OriginY
	gMinY := ref.OriginY - float64(height)*ref.CellSize
	return r.minX < gMaxX && r.maxX > gMinX && r.minY < gMaxY && r.maxY > gMinY
}
