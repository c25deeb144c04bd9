// Package pipeline wires the analysis stages into one run: archive query,
// harmonization, collection building, quality filtering, temporal
// aggregation, and trend estimation, followed by persistence and export.
//
// Structural failures (bad geometry, archive errors, exceeded pixel
// budgets) abort the run. Data-sufficiency failures (missing months,
// missing years, under-sampled pixels) flow through as missing values and
// never abort.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/thermal.report/internal/archive"
	"github.com/banshee-data/thermal.report/internal/collection"
	"github.com/banshee-data/thermal.report/internal/config"
	"github.com/banshee-data/thermal.report/internal/export"
	"github.com/banshee-data/thermal.report/internal/harmonize"
	"github.com/banshee-data/thermal.report/internal/monitoring"
	"github.com/banshee-data/thermal.report/internal/raster"
	"github.com/banshee-data/thermal.report/internal/store"
	"github.com/banshee-data/thermal.report/internal/temporal"
	"github.com/banshee-data/thermal.report/internal/timeutil"
	"github.com/banshee-data/thermal.report/internal/trend"
)

// Pipeline runs one trend study end to end. Region and Config are
// read-only for the pipeline's duration.
type Pipeline struct {
	Archive    archive.Archive
	Harmonizer *harmonize.Harmonizer
	Config     *config.StudyConfig
	Region     *raster.Region

	// Store receives the run record and annual series when non-nil.
	Store *store.DB
	// OutputDir receives raster and report exports when non-empty.
	OutputDir string
	// Export configures the raster export sink.
	Export export.RasterOpts
	// Clock times the run; nil selects the real clock.
	Clock timeutil.Clock
}

// Outputs is everything a run produces.
type Outputs struct {
	RunID        string
	Monthly      []temporal.MonthBucket
	AnnualMeans  []temporal.YearMean
	AnnualCounts []temporal.YearCount
	SceneCounts  []int // per-scene valid-pixel counts from the quality filter
	Trend        *trend.Result

	// RegionMeanSlope and TotalChange summarize the regional trend;
	// both are missing when the regression is undefined everywhere.
	RegionMeanSlope raster.Value
	TotalChange     raster.Value
}

// Run executes the study. The returned Outputs are complete even when the
// trend is undefined; only structural failures yield an error.
func (p *Pipeline) Run(ctx context.Context) (*Outputs, error) {
	clock := p.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	started := clock.Now()
	runID := uuid.NewString()
	logf := monitoring.Stage("pipeline")
	logf("run %s: %d..%d season %v..%v",
		runID, p.Config.GetStudyStartYear(), p.Config.GetStudyEndYear(),
		p.Config.GetSeasonStartMonth(), p.Config.GetSeasonEndMonth())

	merged, err := p.loadAndMerge(ctx)
	if err != nil {
		return nil, err
	}
	if merged.Len() == 0 {
		return nil, fmt.Errorf("run %s: archive yielded no usable scenes", runID)
	}

	// All collection members share a spatial reference; the first image
	// anchors the sampling stride.
	ref := merged.Images[0].Ref
	reduce := raster.ReduceOpts{
		Stride:     raster.StrideForResolution(ref, p.Config.GetSampleResolutionMeters()),
		MaxSamples: p.Config.GetMaxRegionSamples(),
	}

	qf := &collection.QualityFilter{
		Region:            p.Region,
		ThresholdFraction: p.Config.GetValidPixelRatioThreshold(),
		Reduce:            reduce,
	}
	filtered, sceneCounts, err := qf.Apply(merged)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	agg := &temporal.Aggregator{
		Region:      p.Region,
		StartYear:   p.Config.GetStudyStartYear(),
		EndYear:     p.Config.GetStudyEndYear(),
		SeasonStart: p.Config.GetSeasonStartMonth(),
		SeasonEnd:   p.Config.GetSeasonEndMonth(),
		Reduce:      reduce,
	}
	monthly, err := agg.MonthlyMeans(filtered)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	monthly = temporal.GapFill(monthly)
	annualMeans, annualCounts := temporal.AnnualMeans(monthly)

	significance := p.Config.GetSignificanceThreshold()
	result := trend.Estimate(filtered, trend.Params{
		StartYear:             p.Config.GetStudyStartYear(),
		EndYear:               p.Config.GetStudyEndYear(),
		SeasonStart:           p.Config.GetSeasonStartMonth(),
		SeasonEnd:             p.Config.GetSeasonEndMonth(),
		SignificanceThreshold: &significance,
	})

	out := &Outputs{
		RunID:        runID,
		Monthly:      monthly,
		AnnualMeans:  annualMeans,
		AnnualCounts: annualCounts,
		SceneCounts:  sceneCounts,
		Trend:        result,
	}
	if result != nil {
		slope, err := result.RegionMeanSlope(p.Region, reduce)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		out.RegionMeanSlope = slope
		if slope.Valid {
			span := float64(p.Config.GetStudyEndYear() - p.Config.GetStudyStartYear())
			out.TotalChange = raster.Some(slope.Float * span)
		}
	}

	if p.Store != nil {
		if err := p.persist(ctx, out, started, clock.Since(started)); err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
	}
	if p.OutputDir != "" {
		if err := p.export(out); err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
	}

	logf("run %s finished in %s", runID, clock.Since(started).Round(time.Millisecond))
	return out, nil
}

// loadAndMerge queries every configured sensor collection, harmonizes the
// scenes, and merges the surviving streams chronologically. Scenes with no
// recognized thermal band are dropped, not fatal.
func (p *Pipeline) loadAndMerge(ctx context.Context) (*raster.Collection, error) {
	startYear := p.Config.GetStudyStartYear()
	endYear := p.Config.GetStudyEndYear()
	q := archive.Query{
		Start:           time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:             time.Date(endYear+1, time.January, 1, 0, 0, 0, 0, time.UTC),
		Bounds:          archive.BoundsOfRegion(p.Region),
		MaxCloudPercent: p.Config.GetCloudCoverCeilingPercent(),
		SeasonStart:     p.Config.GetSeasonStartMonth(),
		SeasonEnd:       p.Config.GetSeasonEndMonth(),
	}

	// Sensor order is fixed so equal-timestamp merges are reproducible.
	sensors := make([]string, 0, len(p.Config.Collections))
	for sensor := range p.Config.Collections {
		sensors = append(sensors, sensor)
	}
	sort.Strings(sensors)

	var streams []*raster.Collection
	for _, sensor := range sensors {
		q := q
		q.Collection = p.Config.Collections[sensor]
		raw, err := p.Archive.Scenes(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("archive query %s: %w", q.Collection, err)
		}
		stream := &raster.Collection{}
		dropped := 0
		for _, img := range raw.Images {
			if !p.Region.Intersects(img.Ref, imgWidth(img), imgHeight(img)) {
				continue
			}
			harmonized, err := p.Harmonizer.Harmonize(img)
			if err != nil {
				if _, ok := err.(*harmonize.MissingBandError); ok {
					dropped++
					continue
				}
				return nil, fmt.Errorf("harmonize %s scene: %w", sensor, err)
			}
			stream.Images = append(stream.Images, harmonized)
		}
		if dropped > 0 {
			monitoring.Logf("harmonize: dropped %d %s scenes without a thermal band", dropped, sensor)
		}
		streams = append(streams, stream)
	}
	return collection.Merge(p.Config.GetCloudCoverCeilingPercent(), streams...)
}

func (p *Pipeline) persist(ctx context.Context, out *Outputs, started time.Time, elapsed time.Duration) error {
	paramsJSON, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("encode run params: %w", err)
	}
	run := store.Run{
		RunID:           out.RunID,
		StartedAt:       started,
		DurationSeconds: elapsed.Seconds(),
		ParamsJSON:      string(paramsJSON),
	}
	if out.RegionMeanSlope.Valid {
		run.RegionMeanSlope = sql.NullFloat64{Float64: out.RegionMeanSlope.Float, Valid: true}
	}
	if out.TotalChange.Valid {
		run.TotalChange = sql.NullFloat64{Float64: out.TotalChange.Float, Valid: true}
	}
	rows := make([]store.AnnualRow, len(out.AnnualMeans))
	for i, ym := range out.AnnualMeans {
		rows[i] = store.AnnualRow{Year: ym.Year, ImageCount: out.AnnualCounts[i].Count}
		if ym.Mean.Valid {
			rows[i].MeanLST = sql.NullFloat64{Float64: ym.Mean.Float, Valid: true}
		}
	}
	return p.Store.InsertRun(ctx, run, rows)
}

func (p *Pipeline) export(out *Outputs) error {
	fit := export.FitFromSlope(out.RegionMeanSlope, out.AnnualMeans)
	if err := export.WriteReportHTML(filepath.Join(p.OutputDir, "report.html"),
		out.AnnualMeans, out.AnnualCounts, fit); err != nil {
		return err
	}
	hasValid := false
	for _, ym := range out.AnnualMeans {
		if ym.Mean.Valid {
			hasValid = true
			break
		}
	}
	if hasValid {
		if err := export.WriteSeriesPNG(filepath.Join(p.OutputDir, "series.png"),
			out.AnnualMeans, fit); err != nil {
			return err
		}
	}
	if out.Trend == nil {
		return nil
	}
	rasters := map[string]*raster.Grid{
		"slope.asc":        out.Trend.Slope,
		"total_change.asc": out.Trend.TotalChange(),
		"significance.asc": out.Trend.SignificanceMask(),
	}
	for name, g := range rasters {
		if err := export.WriteGridASC(g, out.Trend.Ref,
			filepath.Join(p.OutputDir, name), p.Export); err != nil {
			return err
		}
	}
	return nil
}

func imgWidth(img *raster.Image) int  { w, _ := img.Size(); return w }
func imgHeight(img *raster.Image) int { _, h := img.Size(); return h }
