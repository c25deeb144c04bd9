// Package temporal turns the filtered scene collection into gap-filled
// monthly and annual area-mean LST series.
//
// A month with no qualifying scenes is an empty bucket: it is recorded as a
// missing value and recovered by climatological gap-filling where possible,
// never surfaced as an error.
package temporal

import (
	"time"

	"github.com/banshee-data/thermal.report/internal/monitoring"
	"github.com/banshee-data/thermal.report/internal/raster"
)

// gapFillWindowYears is the half-width of the symmetric climatological
// window: a missing (year, month) is filled from the same calendar month in
// years year±1 .. year±gapFillWindowYears.
const gapFillWindowYears = 4

// MonthBucket is one (year, month) slot of the monthly series.
type MonthBucket struct {
	Year       int
	Month      time.Month
	Mean       raster.Value // area-mean LST, missing when no data survives
	ImageCount int          // scenes composited into this bucket
	Filled     bool         // true when Mean came from the climatological window
}

// YearCount is one entry of the (year, imageCount) diagnostic series.
type YearCount struct {
	Year  int
	Count int
}

// YearMean is one entry of the (year, meanLST) trend-input series.
type YearMean struct {
	Year int
	Mean raster.Value
}

// Aggregator computes the monthly and annual series over the study window.
type Aggregator struct {
	Region    *raster.Region
	StartYear int
	EndYear   int
	// SeasonStart..SeasonEnd is the inclusive calendar-month range covered
	// by each study year.
	SeasonStart time.Month
	SeasonEnd   time.Month
	// Reduce carries the sampling stride and pixel budget for the area-mean
	// reductions.
	Reduce raster.ReduceOpts
}

// seasonMonths lists the calendar months of the season window in order. A
// reversed window (end before start) is empty; wrapping seasons are not
// supported.
func (a *Aggregator) seasonMonths() []time.Month {
	var months []time.Month
	for m := a.SeasonStart; m <= a.SeasonEnd; m++ {
		months = append(months, m)
	}
	return months
}

// MonthlyMeans builds the ordered monthly series. For each (year, month) in
// the study window it composites that calendar month's scenes per pixel and
// reduces the composite to one area-mean scalar. Months without scenes are
// recorded as missing. Budget overruns abort with the stage in the error.
func (a *Aggregator) MonthlyMeans(col *raster.Collection) ([]MonthBucket, error) {
	opts := a.Reduce
	opts.Stage = "temporal-aggregate"

	byMonth := make(map[[2]int][]*raster.Image)
	for _, img := range col.Images {
		t := img.AcquiredAt.UTC()
		byMonth[[2]int{t.Year(), int(t.Month())}] = append(byMonth[[2]int{t.Year(), int(t.Month())}], img)
	}

	var series []MonthBucket
	for year := a.StartYear; year <= a.EndYear; year++ {
		for _, month := range a.seasonMonths() {
			bucket := MonthBucket{Year: year, Month: month}
			images := byMonth[[2]int{year, int(month)}]
			bucket.ImageCount = len(images)
			if len(images) > 0 {
				composite := raster.MeanComposite(images, raster.BandLST)
				mean, err := raster.MeanOverRegion(composite, images[0].Ref, a.Region, opts)
				if err != nil {
					return nil, err
				}
				bucket.Mean = mean
			}
			series = append(series, bucket)
		}
	}
	return series, nil
}

// GapFill replaces missing monthly values with the mean of the originally
// computed values of the same calendar month within the ±4-year window.
// Filled values never feed other fills. A bucket whose window holds no
// other value stays missing. Each bucket is mutated at most once; the
// returned series is a new slice and the input is left untouched.
func GapFill(series []MonthBucket) []MonthBucket {
	out := make([]MonthBucket, len(series))
	copy(out, series)

	// Index the pre-fill values by (month, year) so fills read only
	// originally computed data.
	computed := make(map[[2]int]float64)
	for _, b := range series {
		if b.Mean.Valid {
			computed[[2]int{int(b.Month), b.Year}] = b.Mean.Float
		}
	}

	filled := 0
	for i := range out {
		if out[i].Mean.Valid {
			continue
		}
		var sum float64
		var n int
		for dy := -gapFillWindowYears; dy <= gapFillWindowYears; dy++ {
			if dy == 0 {
				continue
			}
			if v, ok := computed[[2]int{int(out[i].Month), out[i].Year + dy}]; ok {
				sum += v
				n++
			}
		}
		if n > 0 {
			out[i].Mean = raster.Some(sum / float64(n))
			out[i].Filled = true
			filled++
		}
	}
	if filled > 0 {
		monitoring.Logf("gap fill: recovered %d of %d monthly buckets", filled, len(series))
	}
	return out
}

// AnnualMeans averages the post-fill monthly values per year. A year is
// missing if and only if every one of its months is missing. The
// accompanying diagnostic series counts the scenes that contributed to each
// year's buckets.
func AnnualMeans(series []MonthBucket) (means []YearMean, counts []YearCount) {
	type acc struct {
		sum    float64
		months int
		images int
	}
	byYear := make(map[int]*acc)
	var years []int
	for _, b := range series {
		a, ok := byYear[b.Year]
		if !ok {
			a = &acc{}
			byYear[b.Year] = a
			years = append(years, b.Year)
		}
		a.images += b.ImageCount
		if b.Mean.Valid {
			a.sum += b.Mean.Float
			a.months++
		}
	}
	for _, year := range years {
		a := byYear[year]
		ym := YearMean{Year: year}
		if a.months > 0 {
			ym.Mean = raster.Some(a.sum / float64(a.months))
		}
		means = append(means, ym)
		counts = append(counts, YearCount{Year: year, Count: a.images})
	}
	return means, counts
}
