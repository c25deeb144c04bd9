// Package export holds the output-side glue: georeferenced raster export,
// HTML report charts, and a PNG series plot. It consumes finished series
// and grids only; no analysis happens here.
package export

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/banshee-data/thermal.report/internal/raster"
)

// ascNoData is the no-data marker written to ASC files.
const ascNoData = -9999

// RasterOpts configures a georeferenced raster export.
type RasterOpts struct {
	// TargetCellSize is the output resolution in CRS units. Values at or
	// below the grid's native cell size export at native resolution;
	// coarser values downsample by nearest neighbour.
	TargetCellSize float64
	// MaxPixels is the output pixel-count ceiling. Zero or negative
	// disables the check.
	MaxPixels int
}

// WriteGridASC writes a grid as an ESRI ASCII raster. The header carries
// the spatial reference; the CRS identifier is emitted as a comment row for
// tooling that supports it.
func WriteGridASC(g *raster.Grid, ref raster.SpatialRef, path string, opts RasterOpts) error {
	stride := 1
	if opts.TargetCellSize > ref.CellSize && ref.CellSize > 0 {
		stride = int(opts.TargetCellSize / ref.CellSize)
	}
	ncols := (g.Width + stride - 1) / stride
	nrows := (g.Height + stride - 1) / stride
	if opts.MaxPixels > 0 && ncols*nrows > opts.MaxPixels {
		return fmt.Errorf("asc export: %dx%d output (%d pixels) exceeds ceiling %d",
			ncols, nrows, ncols*nrows, opts.MaxPixels)
	}
	cellSize := ref.CellSize * float64(stride)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create asc file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ncols %d\n", ncols)
	fmt.Fprintf(w, "nrows %d\n", nrows)
	fmt.Fprintf(w, "xllcorner %g\n", ref.OriginX)
	fmt.Fprintf(w, "yllcorner %g\n", ref.OriginY-float64(nrows)*cellSize)
	fmt.Fprintf(w, "cellsize %g\n", cellSize)
	fmt.Fprintf(w, "NODATA_value %d\n", ascNoData)
	if ref.CRS != "" {
		fmt.Fprintf(w, "# crs %s\n", ref.CRS)
	}

	for row := 0; row < g.Height; row += stride {
		for col := 0; col < g.Width; col += stride {
			if col > 0 {
				w.WriteByte(' ')
			}
			v := g.Data[row*g.Width+col]
			if raster.IsNoData(v) {
				w.WriteString(strconv.Itoa(ascNoData))
			} else {
				w.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
			}
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write asc file: %w", err)
	}
	return nil
}
