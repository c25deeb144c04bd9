// Package collection assembles harmonized per-sensor streams into one
// analysis-ready time series and applies the collection-wide quality
// filter.
package collection

import (
	"fmt"
	"time"

	"github.com/banshee-data/thermal.report/internal/raster"
)

// Merge combines harmonized per-sensor collections into a single collection
// ordered ascending by acquisition time. Images with cloud cover above
// cloudCeilingPercent are dropped first. The merge is stable: images with
// identical timestamps keep the relative order in which they were supplied.
//
// Every retained image must share the spatial reference and pixel
// dimensions of the first; a scene that does not is a structural error
// identifying the offending scene, since per-pixel compositing downstream
// assumes aligned grids.
func Merge(cloudCeilingPercent float64, streams ...*raster.Collection) (*raster.Collection, error) {
	merged := &raster.Collection{}
	for _, s := range streams {
		if s == nil {
			continue
		}
		for _, img := range s.Images {
			if img.CloudCover > cloudCeilingPercent {
				continue
			}
			merged.Images = append(merged.Images, img)
		}
	}
	if merged.Len() > 0 {
		first := merged.Images[0]
		width, height := first.Size()
		for _, img := range merged.Images[1:] {
			w, h := img.Size()
			if img.Ref != first.Ref || w != width || h != height {
				return nil, fmt.Errorf(
					"merge: %s scene at %s is %dx%d with ref %+v, collection anchor is %dx%d with ref %+v",
					img.Sensor, img.AcquiredAt.Format(time.RFC3339),
					w, h, img.Ref, width, height, first.Ref)
			}
		}
	}
	merged.Sort()
	return merged, nil
}
