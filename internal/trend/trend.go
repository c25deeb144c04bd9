// Package trend fits an independent ordinary-least-squares line per pixel
// to a stack of annual LST composites, yielding warming/cooling rate, total
// change over the study span, and a fixed-threshold significance mask.
package trend

import (
	"runtime"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/thermal.report/internal/monitoring"
	"github.com/banshee-data/thermal.report/internal/raster"
)

// DefaultSignificanceThreshold is the slope magnitude, in degrees per year,
// above which a pixel is flagged significant.
const DefaultSignificanceThreshold = 0.02

// Params configures the estimator.
type Params struct {
	StartYear int
	EndYear   int
	// SeasonStart..SeasonEnd is the inclusive calendar-month range whose
	// scenes feed each year's composite.
	SeasonStart time.Month
	SeasonEnd   time.Month
	// SignificanceThreshold is the |slope| cutoff for the significance
	// mask. Nil selects DefaultSignificanceThreshold; an explicit zero
	// flags every fitted nonzero slope.
	SignificanceThreshold *float64
}

func (p Params) threshold() float64 {
	if p.SignificanceThreshold == nil {
		return DefaultSignificanceThreshold
	}
	return *p.SignificanceThreshold
}

// Result holds the fitted per-pixel trend model. Pixels with fewer than two
// yearly samples are no-data in every grid: an undefined regression is a
// missing result, not an error and never a zero slope.
type Result struct {
	Slope       *raster.Grid // degrees per year
	Intercept   *raster.Grid // degrees at year zero of the regressor
	SampleCount *raster.Grid // yearly samples used per pixel
	Ref         raster.SpatialRef
	Years       []int // study years that produced a composite
	Params      Params
}

// Estimate builds one season composite per study year (years with no
// qualifying scenes are dropped entirely, not carried as missing layers)
// and solves the per-pixel OLS fit of LST on year across the surviving
// stack. Returns nil when fewer than two yearly composites exist; no pixel
// can be fitted in that case.
func Estimate(col *raster.Collection, params Params) *Result {
	composites, years := yearlyComposites(col, params)
	if len(composites) < 2 {
		monitoring.Logf("trend: only %d yearly composites, nothing to fit", len(composites))
		return nil
	}

	width, height := composites[0].Width, composites[0].Height
	res := &Result{
		Slope:       raster.NewGrid(width, height),
		Intercept:   raster.NewGrid(width, height),
		SampleCount: raster.NewGrid(width, height),
		Years:       years,
		Params:      params,
	}
	for _, img := range col.Images {
		res.Ref = img.Ref
		break
	}

	yearXs := make([]float64, len(years))
	for i, y := range years {
		yearXs[i] = float64(y)
	}

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
			fitRows(composites, yearXs, res, width, r0, r1)
		}(start, end)
	}
	wg.Wait()

	monitoring.Logf("trend: fitted %dx%d grid over %d years (%d..%d)",
		width, height, len(years), years[0], years[len(years)-1])
	return res
}

// fitRows solves the independent per-pixel fit for rows [r0, r1). Pixels
// are independent, so each worker owns a disjoint row range.
func fitRows(composites []*raster.Grid, yearXs []float64, res *Result, width, r0, r1 int) {
	xs := make([]float64, 0, len(composites))
	ys := make([]float64, 0, len(composites))
	for row := r0; row < r1; row++ {
		for col := 0; col < width; col++ {
			i := row*width + col
			xs = xs[:0]
			ys = ys[:0]
			for k, g := range composites {
				v := g.Data[i]
				if raster.IsNoData(v) {
					continue
				}
				xs = append(xs, yearXs[k])
				ys = append(ys, v)
			}
			res.SampleCount.Data[i] = float64(len(xs))
			if len(xs) < 2 {
				// RegressionUndefined: stays no-data.
				continue
			}
			alpha, beta := stat.LinearRegression(xs, ys, nil, false)
			res.Intercept.Data[i] = alpha
			res.Slope.Data[i] = beta
		}
	}
}

// yearlyComposites builds the per-year season composites of the LST band.
func yearlyComposites(col *raster.Collection, params Params) ([]*raster.Grid, []int) {
	var composites []*raster.Grid
	var years []int
	for year := params.StartYear; year <= params.EndYear; year++ {
		var images []*raster.Image
		for _, img := range col.Images {
			t := img.AcquiredAt.UTC()
			if t.Year() != year {
				continue
			}
			if t.Month() < params.SeasonStart || t.Month() > params.SeasonEnd {
				continue
			}
			images = append(images, img)
		}
		if len(images) == 0 {
			continue
		}
		g := raster.MeanComposite(images, raster.BandLST)
		if g == nil {
			continue
		}
		composites = append(composites, g)
		years = append(years, year)
	}
	return composites, years
}

// TotalChange returns slope x study-year span as a new grid. Undefined
// pixels stay no-data.
func (r *Result) TotalChange() *raster.Grid {
	span := float64(r.Params.EndYear - r.Params.StartYear)
	out := r.Slope.Clone()
	for i, v := range out.Data {
		if !raster.IsNoData(v) {
			out.Data[i] = v * span
		}
	}
	return out
}

// SignificanceMask returns 1 where |slope| exceeds the threshold, 0 where a
// fitted slope falls below it, and no-data where the regression is
// undefined.
func (r *Result) SignificanceMask() *raster.Grid {
	threshold := r.Params.threshold()
	out := raster.NewGrid(r.Slope.Width, r.Slope.Height)
	for i, v := range r.Slope.Data {
		if raster.IsNoData(v) {
			continue
		}
		if v > threshold || v < -threshold {
			out.Data[i] = 1
		} else {
			out.Data[i] = 0
		}
	}
	return out
}

// RegionMeanSlope reduces the slope grid to the region-wide mean rate,
// using the same area-mean reduction as the temporal series.
func (r *Result) RegionMeanSlope(region *raster.Region, opts raster.ReduceOpts) (raster.Value, error) {
	opts.Stage = "trend-summary"
	return raster.MeanOverRegion(r.Slope, r.Ref, region, opts)
}
