package raster

import (
	"fmt"
)

// ResourceExceededError reports a region reduction whose sample count would
// exceed the configured pixel budget. It is fatal for the run; no partial
// result is produced.
type ResourceExceededError struct {
	Stage     string
	Budget    int
	Requested int
}

func (e *ResourceExceededError) Error() string {
	return fmt.Sprintf("%s: region reduction needs %d samples, budget is %d", e.Stage, e.Requested, e.Budget)
}

// ReduceOpts configures a region-wide reduction.
type ReduceOpts struct {
	// Stride is the sampling step in pixels along both axes. A stride of n
	// evaluates every n-th pixel; it is derived from the configured sample
	// resolution. Values < 1 are treated as 1.
	Stride int
	// MaxSamples is the hard pixel budget for one reduction. Zero or
	// negative disables the check.
	MaxSamples int
	// Stage names the calling stage for budget diagnostics.
	Stage string
}

func (o ReduceOpts) stride() int {
	if o.Stride < 1 {
		return 1
	}
	return o.Stride
}

// StrideForResolution converts a target sampling resolution into a pixel
// stride for grids anchored at ref.
func StrideForResolution(ref SpatialRef, resolutionMeters float64) int {
	if ref.CellSize <= 0 || resolutionMeters <= ref.CellSize {
		return 1
	}
	return int(resolutionMeters / ref.CellSize)
}

// regionWindow clips the region bounds to the grid and returns the inclusive
// pixel window [c0,c1]x[r0,r1]. ok is false when the region misses the grid.
func regionWindow(g *Grid, ref SpatialRef, region *Region) (c0, r0, c1, r1 int, ok bool) {
	minX, minY, maxX, maxY := region.Bounds()
	c0 = int((minX - ref.OriginX) / ref.CellSize)
	c1 = int((maxX - ref.OriginX) / ref.CellSize)
	r0 = int((ref.OriginY - maxY) / ref.CellSize)
	r1 = int((ref.OriginY - minY) / ref.CellSize)
	if c0 < 0 {
		c0 = 0
	}
	if r0 < 0 {
		r0 = 0
	}
	if c1 >= g.Width {
		c1 = g.Width - 1
	}
	if r1 >= g.Height {
		r1 = g.Height - 1
	}
	if c0 > c1 || r0 > r1 {
		return 0, 0, 0, 0, false
	}
	return c0, r0, c1, r1, true
}

// checkBudget verifies the pixel window fits the budget before any work is
// done, so a reduction either runs to completion or does nothing.
func checkBudget(c0, r0, c1, r1, stride int, opts ReduceOpts) error {
	if opts.MaxSamples <= 0 {
		return nil
	}
	cols := (c1-c0)/stride + 1
	rows := (r1-r0)/stride + 1
	if cols*rows > opts.MaxSamples {
		return &ResourceExceededError{Stage: opts.Stage, Budget: opts.MaxSamples, Requested: cols * rows}
	}
	return nil
}

// MeanOverRegion reduces one grid to the arithmetic mean of its valid
// samples whose cell centers fall inside the region. A region with no valid
// samples yields None, not an error.
func MeanOverRegion(g *Grid, ref SpatialRef, region *Region, opts ReduceOpts) (Value, error) {
	c0, r0, c1, r1, ok := regionWindow(g, ref, region)
	if !ok {
		return None(), nil
	}
	stride := opts.stride()
	if err := checkBudget(c0, r0, c1, r1, stride, opts); err != nil {
		return None(), err
	}
	var sum float64
	var n int
	for row := r0; row <= r1; row += stride {
		for col := c0; col <= c1; col += stride {
			v := g.Data[row*g.Width+col]
			if IsNoData(v) {
				continue
			}
			x, y := ref.CellCenter(col, row)
			if !region.Contains(x, y) {
				continue
			}
			sum += v
			n++
		}
	}
	if n == 0 {
		return None(), nil
	}
	return Some(sum / float64(n)), nil
}

// CountValidOverRegion counts the valid samples of one grid whose cell
// centers fall inside the region, at the configured stride.
func CountValidOverRegion(g *Grid, ref SpatialRef, region *Region, opts ReduceOpts) (int, error) {
	c0, r0, c1, r1, ok := regionWindow(g, ref, region)
	if !ok {
		return 0, nil
	}
	stride := opts.stride()
	if err := checkBudget(c0, r0, c1, r1, stride, opts); err != nil {
		return 0, err
	}
	var n int
	for row := r0; row <= r1; row += stride {
		for col := c0; col <= c1; col += stride {
			if IsNoData(g.Data[row*g.Width+col]) {
				continue
			}
			x, y := ref.CellCenter(col, row)
			if region.Contains(x, y) {
				n++
			}
		}
	}
	return n, nil
}
