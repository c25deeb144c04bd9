// Package archive defines the read-only scene source the pipeline queries,
// and a SQLite-backed catalog implementation for frozen local archives.
package archive

import (
	"context"
	"time"

	"github.com/banshee-data/thermal.report/internal/raster"
)

// Bounds is the axis-aligned query geometry, in the archive's CRS.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// BoundsOfRegion returns the bounding box of a region for archive queries.
func BoundsOfRegion(r *raster.Region) Bounds {
	minX, minY, maxX, maxY := r.Bounds()
	return Bounds{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

// Query selects scenes from one sensor collection.
type Query struct {
	// Collection is the archive collection identifier,
	// e.g. "LANDSAT/LT05/C02/T1_L2".
	Collection string
	Start      time.Time
	End        time.Time
	Bounds     Bounds
	// MaxCloudPercent drops scenes above this scene-level cloud cover.
	// Negative disables the cut.
	MaxCloudPercent float64
	// SeasonStart/SeasonEnd restrict scenes to a calendar-month window.
	// Zero values disable the restriction.
	SeasonStart time.Month
	SeasonEnd   time.Month
}

// Archive is the read-only scene source. Implementations return scenes
// ordered ascending by acquisition time.
type Archive interface {
	Scenes(ctx context.Context, q Query) (*raster.Collection, error)
}
