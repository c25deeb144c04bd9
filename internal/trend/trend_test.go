package trend

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/thermal.report/internal/raster"
)

var testRef = raster.SpatialRef{CRS: "EPSG:32633", OriginX: 0, OriginY: 40, CellSize: 10}

func summerParams(start, end int) Params {
	return Params{
		StartYear:   start,
		EndYear:     end,
		SeasonStart: time.June,
		SeasonEnd:   time.August,
	}
}

func yearScene(year int, v float64) *raster.Image {
	return &raster.Image{
		Bands:      map[string]*raster.Grid{raster.BandLST: raster.NewGridFilled(4, 4, v)},
		Ref:        testRef,
		AcquiredAt: time.Date(year, time.July, 15, 10, 0, 0, 0, time.UTC),
		Sensor:     "LANDSAT_8",
	}
}

func TestEstimateRecoversExactLinearSeries(t *testing.T) {
	// LST = a + b*year exactly, no noise: OLS must recover a and b to
	// floating-point tolerance.
	const a, b = -490.0, 0.25
	col := &raster.Collection{}
	for year := 2000; year <= 2004; year++ {
		col.Images = append(col.Images, yearScene(year, a+b*float64(year)))
	}

	res := Estimate(col, summerParams(2000, 2004))
	if res == nil {
		t.Fatal("Estimate returned nil")
	}
	for i := range res.Slope.Data {
		if math.Abs(res.Slope.Data[i]-b) > 1e-9 {
			t.Fatalf("pixel %d slope = %v, want %v", i, res.Slope.Data[i], b)
		}
		if math.Abs(res.Intercept.Data[i]-a) > 1e-6 {
			t.Fatalf("pixel %d intercept = %v, want %v", i, res.Intercept.Data[i], a)
		}
		if res.SampleCount.Data[i] != 5 {
			t.Fatalf("pixel %d samples = %v, want 5", i, res.SampleCount.Data[i])
		}
	}
}

func TestEstimateFiniteDifferenceScenario(t *testing.T) {
	// One scene per season per year: slope equals the finite-difference
	// slope across consecutive years, and the fitted value at the first
	// year equals its region mean.
	col := raster.NewCollection(
		yearScene(2000, 10.0),
		yearScene(2001, 10.5),
		yearScene(2002, 11.0),
	)
	res := Estimate(col, summerParams(2000, 2002))
	if res == nil {
		t.Fatal("Estimate returned nil")
	}

	slope := res.Slope.At(0, 0)
	if math.Abs(slope-0.5) > 1e-9 {
		t.Fatalf("slope = %v, want 0.5", slope)
	}
	fitted2000 := res.Intercept.At(0, 0) + slope*2000
	if math.Abs(fitted2000-10.0) > 1e-6 {
		t.Fatalf("fitted value at 2000 = %v, want 10.0", fitted2000)
	}
}

func TestEstimateDropsEmptyYears(t *testing.T) {
	col := raster.NewCollection(
		yearScene(2000, 10),
		yearScene(2002, 12),
		// Out-of-season scene must not resurrect 2001.
		&raster.Image{
			Bands:      map[string]*raster.Grid{raster.BandLST: raster.NewGridFilled(4, 4, 99)},
			Ref:        testRef,
			AcquiredAt: time.Date(2001, time.December, 1, 0, 0, 0, 0, time.UTC),
		},
	)
	res := Estimate(col, summerParams(2000, 2002))
	if res == nil {
		t.Fatal("Estimate returned nil")
	}
	if len(res.Years) != 2 || res.Years[0] != 2000 || res.Years[1] != 2002 {
		t.Fatalf("years = %v, want [2000 2002]", res.Years)
	}
	if got := res.Slope.At(0, 0); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("slope across the gap = %v, want 1.0", got)
	}
}

func TestEstimateUndersampledPixelIsNoData(t *testing.T) {
	a := yearScene(2000, 10)
	b := yearScene(2001, 11)
	// Pixel (1,1) is present in exactly one year: regression undefined,
	// never a spurious zero slope.
	b.Bands[raster.BandLST].Set(1, 1, math.NaN())

	res := Estimate(raster.NewCollection(a, b), summerParams(2000, 2001))
	if res == nil {
		t.Fatal("Estimate returned nil")
	}
	if !raster.IsNoData(res.Slope.At(1, 1)) || !raster.IsNoData(res.Intercept.At(1, 1)) {
		t.Fatalf("one-sample pixel slope = %v, want no-data", res.Slope.At(1, 1))
	}
	if res.SampleCount.At(1, 1) != 1 {
		t.Fatalf("one-sample pixel count = %v, want 1", res.SampleCount.At(1, 1))
	}
	if raster.IsNoData(res.Slope.At(0, 0)) {
		t.Fatal("fully sampled pixel must be fitted")
	}
}

func TestEstimateNeedsTwoComposites(t *testing.T) {
	if res := Estimate(raster.NewCollection(yearScene(2000, 10)), summerParams(2000, 2002)); res != nil {
		t.Fatalf("single-year stack must yield nil, got %+v", res)
	}
	if res := Estimate(raster.NewCollection(), summerParams(2000, 2002)); res != nil {
		t.Fatal("empty stack must yield nil")
	}
}

func TestTotalChangeAndSignificance(t *testing.T) {
	col := raster.NewCollection(
		yearScene(2000, 10.0),
		yearScene(2001, 10.5),
		yearScene(2002, 11.0),
	)
	params := summerParams(2000, 2002)
	loose := 0.3
	params.SignificanceThreshold = &loose
	res := Estimate(col, params)
	if res == nil {
		t.Fatal("Estimate returned nil")
	}

	change := res.TotalChange()
	if got := change.At(0, 0); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("total change = %v, want 0.5 x 2 years", got)
	}
	mask := res.SignificanceMask()
	if got := mask.At(0, 0); got != 1 {
		t.Fatalf("significance = %v, want 1 (|0.5| > 0.3)", got)
	}

	strict := 0.6
	params.SignificanceThreshold = &strict
	res2 := Estimate(col, params)
	if got := res2.SignificanceMask().At(0, 0); got != 0 {
		t.Fatalf("significance = %v, want 0 (|0.5| < 0.6)", got)
	}
}

func TestSignificanceThresholdZeroIsHonored(t *testing.T) {
	// Slope 0.01 sits below the default 0.02 cutoff. Unset threshold uses
	// the default; an explicit zero is a real cutoff, not "use default".
	col := raster.NewCollection(
		yearScene(2000, 10.00),
		yearScene(2001, 10.01),
	)
	res := Estimate(col, summerParams(2000, 2001))
	if got := res.SignificanceMask().At(0, 0); got != 0 {
		t.Fatalf("default threshold: significance = %v, want 0", got)
	}

	params := summerParams(2000, 2001)
	zero := 0.0
	params.SignificanceThreshold = &zero
	res = Estimate(col, params)
	if got := res.SignificanceMask().At(0, 0); got != 1 {
		t.Fatalf("zero threshold: significance = %v, want 1 (|0.01| > 0)", got)
	}
}

func TestSignificanceMaskUndefinedPixels(t *testing.T) {
	a := yearScene(2000, 10)
	b := yearScene(2001, 11)
	b.Bands[raster.BandLST].Set(1, 1, math.NaN())

	res := Estimate(raster.NewCollection(a, b), summerParams(2000, 2001))
	mask := res.SignificanceMask()
	if !raster.IsNoData(mask.At(1, 1)) {
		t.Fatal("undefined regression must be no-data in the mask")
	}
}

func TestRegionMeanSlope(t *testing.T) {
	col := raster.NewCollection(
		yearScene(2000, 10.0),
		yearScene(2001, 10.5),
		yearScene(2002, 11.0),
	)
	res := Estimate(col, summerParams(2000, 2002))

	region, err := raster.NewRegion([]raster.Point{
		{X: 10, Y: 10}, {X: 30, Y: 10}, {X: 30, Y: 30}, {X: 10, Y: 30},
	})
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	mean, err := res.RegionMeanSlope(region, raster.ReduceOpts{})
	if err != nil {
		t.Fatalf("RegionMeanSlope: %v", err)
	}
	if !mean.Valid || math.Abs(mean.Float-0.5) > 1e-9 {
		t.Fatalf("region mean slope = %+v, want 0.5", mean)
	}
}
