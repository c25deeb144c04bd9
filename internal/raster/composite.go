package raster

import (
	"runtime"
	"sync"
)

// MeanComposite builds a per-pixel mean of one band across images. Pixels
// with no valid sample in any image come out as NoData. Accumulation is
// streaming (running sum and count per pixel, image by image) so the stack
// is never materialized, and the work is split row-wise across workers.
//
// The first image carrying the band anchors the output dimensions. Images
// lacking the band, or whose band dimensions differ from the anchor,
// contribute nothing; collections are expected to be dimension-checked at
// merge time. Returns nil when no image carries the band.
func MeanComposite(images []*Image, band string) *Grid {
	var width, height int
	grids := make([]*Grid, 0, len(images))
	for _, img := range images {
		g := img.Band(band)
		if g == nil {
			continue
		}
		if len(grids) > 0 && (g.Width != width || g.Height != height) {
			continue
		}
		grids = append(grids, g)
		width, height = g.Width, g.Height
	}
	if len(grids) == 0 {
		return nil
	}

	out := NewGrid(width, height)
	workers := runtime.NumCPU()
	if workers > height {
		workers = height
	}
	if workers < 1 {
		workers = 1
	}
	rowsPer := (height + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * rowsPer
		end := start + rowsPer
		if end > height {
			end = height
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(r0, r1 int) {
			defer wg.Done()
			compositeRows(grids, out, width, r0, r1)
		}(start, end)
	}
	wg.Wait()
	return out
}

// compositeRows accumulates the mean for rows [r0, r1). Each worker owns a
// disjoint row range, so no locking is needed.
func compositeRows(grids []*Grid, out *Grid, width, r0, r1 int) {
	n := width * (r1 - r0)
	sums := make([]float64, n)
	counts := make([]int, n)
	for _, g := range grids {
		base := r0 * width
		for i := 0; i < n; i++ {
			v := g.Data[base+i]
			if IsNoData(v) {
				continue
			}
			sums[i] += v
			counts[i]++
		}
	}
	base := r0 * width
	for i := 0; i < n; i++ {
		if counts[i] > 0 {
			out.Data[base+i] = sums[i] / float64(counts[i])
		}
	}
}
