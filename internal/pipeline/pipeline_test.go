package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/thermal.report/internal/archive"
	"github.com/banshee-data/thermal.report/internal/config"
	"github.com/banshee-data/thermal.report/internal/export"
	"github.com/banshee-data/thermal.report/internal/harmonize"
	"github.com/banshee-data/thermal.report/internal/raster"
	"github.com/banshee-data/thermal.report/internal/store"
	"github.com/banshee-data/thermal.report/internal/timeutil"
)

var testRef = raster.SpatialRef{CRS: "EPSG:32633", OriginX: 0, OriginY: 40, CellSize: 10}

// fakeArchive serves canned raw scenes per collection id.
type fakeArchive struct {
	scenes map[string][]*raster.Image
}

func (a *fakeArchive) Scenes(ctx context.Context, q archive.Query) (*raster.Collection, error) {
	col := &raster.Collection{}
	for _, img := range a.scenes[q.Collection] {
		if img.AcquiredAt.Before(q.Start) || !img.AcquiredAt.Before(q.End) {
			continue
		}
		if q.MaxCloudPercent >= 0 && img.CloudCover > q.MaxCloudPercent {
			continue
		}
		col.Images = append(col.Images, img)
	}
	return col, nil
}

// rawScene builds a raw thermal scene whose harmonized LST is uniform.
// dn is the raw thermal digital number.
func rawScene(year int, month time.Month, day int, dn float64) *raster.Image {
	return &raster.Image{
		Bands: map[string]*raster.Grid{
			"ST_B10":   raster.NewGridFilled(4, 4, dn),
			"QA_PIXEL": raster.NewGridFilled(4, 4, 0),
		},
		Ref:        testRef,
		AcquiredAt: time.Date(year, month, day, 10, 0, 0, 0, time.UTC),
		Sensor:     "LANDSAT_8",
	}
}

// lstOf converts a raw thermal DN to the harmonized Celsius value.
func lstOf(dn float64) float64 { return dn*3.41802e-3 + 149.0 - 273.15 }

func testPipeline(t *testing.T, arc archive.Archive) *Pipeline {
	t.Helper()
	intp := func(v int) *int { return &v }
	floatp := func(v float64) *float64 { return &v }
	cfg := &config.StudyConfig{
		StudyStartYear:         intp(2000),
		StudyEndYear:           intp(2002),
		SampleResolutionMeters: floatp(10),
		Collections:            map[string]string{"LANDSAT_8": "fake/l8"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	region, err := raster.NewRegion([]raster.Point{
		{X: 10, Y: 10}, {X: 30, Y: 10}, {X: 30, Y: 30}, {X: 10, Y: 30},
	})
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	return &Pipeline{
		Archive:    arc,
		Harmonizer: harmonize.NewDefault(),
		Config:     cfg,
		Region:     region,
	}
}

// linearArchive serves one July scene per year with DN rising by 1000/yr,
// so the harmonized trend is 3.41802 degrees per year.
func linearArchive() *fakeArchive {
	return &fakeArchive{scenes: map[string][]*raster.Image{
		"fake/l8": {
			rawScene(2000, time.July, 10, 40000),
			rawScene(2001, time.July, 10, 41000),
			rawScene(2002, time.July, 10, 42000),
		},
	}}
}

func TestRunEndToEnd(t *testing.T) {
	p := testPipeline(t, linearArchive())
	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.RunID == "" {
		t.Fatal("run id missing")
	}

	if len(out.AnnualMeans) != 3 {
		t.Fatalf("got %d annual means, want 3", len(out.AnnualMeans))
	}
	for i, wantDN := range []float64{40000, 41000, 42000} {
		ym := out.AnnualMeans[i]
		if !ym.Mean.Valid || math.Abs(ym.Mean.Float-lstOf(wantDN)) > 1e-9 {
			t.Fatalf("annual mean %d = %+v, want %v", ym.Year, ym.Mean, lstOf(wantDN))
		}
	}
	if out.Trend == nil {
		t.Fatal("trend missing")
	}
	wantSlope := 1000 * 3.41802e-3
	if !out.RegionMeanSlope.Valid || math.Abs(out.RegionMeanSlope.Float-wantSlope) > 1e-9 {
		t.Fatalf("region mean slope = %+v, want %v", out.RegionMeanSlope, wantSlope)
	}
	if !out.TotalChange.Valid || math.Abs(out.TotalChange.Float-2*wantSlope) > 1e-9 {
		t.Fatalf("total change = %+v, want slope x 2 years", out.TotalChange)
	}
	if len(out.SceneCounts) != 3 {
		t.Fatalf("scene counts = %v, want one per kept scene", out.SceneCounts)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	run := func() *Outputs {
		p := testPipeline(t, linearArchive())
		out, err := p.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return out
	}
	a, b := run(), run()
	diff := cmp.Diff(a, b,
		cmpopts.IgnoreFields(Outputs{}, "RunID"),
		cmpopts.EquateNaNs())
	if diff != "" {
		t.Fatalf("two identical runs diverged (-first +second):\n%s", diff)
	}
}

func TestRunDropsScenesWithoutThermalBand(t *testing.T) {
	arc := linearArchive()
	broken := rawScene(2001, time.August, 10, 41000)
	delete(broken.Bands, "ST_B10")
	arc.scenes["fake/l8"] = append(arc.scenes["fake/l8"], broken)

	p := testPipeline(t, arc)
	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.SceneCounts) != 3 {
		t.Fatalf("kept %d scenes, want 3 with the bandless scene dropped", len(out.SceneCounts))
	}
}

func TestRunRejectsMixedFootprintArchive(t *testing.T) {
	arc := linearArchive()
	// Same collection, smaller footprint: the catalog accepts it, the run
	// must refuse it as a structural error rather than panic downstream.
	small := &raster.Image{
		Bands: map[string]*raster.Grid{
			"ST_B10":   raster.NewGridFilled(2, 2, 41000),
			"QA_PIXEL": raster.NewGridFilled(2, 2, 0),
		},
		Ref:        testRef,
		AcquiredAt: time.Date(2001, time.July, 20, 10, 0, 0, 0, time.UTC),
		Sensor:     "LANDSAT_8",
	}
	arc.scenes["fake/l8"] = append(arc.scenes["fake/l8"], small)

	p := testPipeline(t, arc)
	_, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("a catalog with mixed scene footprints must abort the run")
	}
	if !strings.Contains(err.Error(), "2x2") {
		t.Fatalf("error %q must identify the offending scene", err)
	}
}

func TestRunEmptyArchiveFails(t *testing.T) {
	p := testPipeline(t, &fakeArchive{})
	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected error when the archive yields nothing")
	}
}

func TestRunBudgetOverrunAborts(t *testing.T) {
	p := testPipeline(t, linearArchive())
	one := 1
	p.Config.MaxRegionSamples = &one
	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected pixel budget overrun to abort the run")
	}
}

func TestRunPersistsAndExports(t *testing.T) {
	p := testPipeline(t, linearArchive())

	db, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()
	if err := db.MigrateUp("../../migrations"); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	outDir := t.TempDir()
	p.Store = db
	p.OutputDir = outDir
	p.Export = export.RasterOpts{}
	clock := timeutil.NewMockClock(time.Date(2026, time.August, 24, 9, 0, 0, 0, time.UTC))
	p.Clock = clock

	out, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, err := db.GetRun(context.Background(), out.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !run.RegionMeanSlope.Valid {
		t.Fatalf("persisted run = %+v, want region mean slope", run)
	}
	series, err := db.AnnualSeries(context.Background(), out.RunID)
	if err != nil {
		t.Fatalf("AnnualSeries: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("persisted %d annual rows, want 3", len(series))
	}

	for _, name := range []string{"report.html", "series.png", "slope.asc", "total_change.asc", "significance.asc"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Fatalf("missing export %s: %v", name, err)
		}
	}
}
