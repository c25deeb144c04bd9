package collection

import (
	"github.com/banshee-data/thermal.report/internal/monitoring"
	"github.com/banshee-data/thermal.report/internal/raster"
)

// QualityFilter discards scenes whose usable coverage of the region falls
// far below the collection average. It is a two-pass, collection-wide
// operation: per-scene valid-pixel counts first, then the retention
// decision against the collection mean. It cannot be expressed per image
// in isolation.
type QualityFilter struct {
	Region *raster.Region
	// ThresholdFraction is the retention cutoff relative to the mean
	// valid-pixel count. Retention is monotone in this fraction.
	ThresholdFraction float64
	// Reduce carries the sampling stride and pixel budget for the counting
	// pass. Budget overruns are fatal.
	Reduce raster.ReduceOpts
}

// Apply returns the retained collection and the per-image valid-pixel
// counts (parallel to the input collection, for diagnostics). An image
// is retained when its count >= ThresholdFraction * mean(counts). An
// entirely masked image counts 0 and drags the mean down; it is itself
// almost certainly discarded.
func (f *QualityFilter) Apply(col *raster.Collection) (*raster.Collection, []int, error) {
	if col.Len() == 0 {
		return &raster.Collection{}, nil, nil
	}

	opts := f.Reduce
	opts.Stage = "quality-filter"

	counts := make([]int, col.Len())
	var total int
	for i, img := range col.Images {
		lst := img.Band(raster.BandLST)
		if lst == nil {
			counts[i] = 0
			continue
		}
		n, err := raster.CountValidOverRegion(lst, img.Ref, f.Region, opts)
		if err != nil {
			return nil, nil, err
		}
		counts[i] = n
		total += n
	}

	mean := float64(total) / float64(col.Len())
	cutoff := f.ThresholdFraction * mean

	out := &raster.Collection{}
	for i, img := range col.Images {
		if float64(counts[i]) >= cutoff {
			out.Images = append(out.Images, img)
		}
	}
	monitoring.Logf("quality filter: kept %d of %d scenes (mean valid count %.1f, cutoff %.1f)",
		out.Len(), col.Len(), mean, cutoff)
	return out, counts, nil
}
