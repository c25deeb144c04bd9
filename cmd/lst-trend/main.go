// Command lst-trend runs a multi-decadal land-surface-temperature trend
// study over a frozen scene catalog and writes the results to a SQLite
// store plus raster/report exports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/thermal.report/internal/archive"
	"github.com/banshee-data/thermal.report/internal/config"
	"github.com/banshee-data/thermal.report/internal/export"
	"github.com/banshee-data/thermal.report/internal/harmonize"
	"github.com/banshee-data/thermal.report/internal/pipeline"
	"github.com/banshee-data/thermal.report/internal/raster"
	"github.com/banshee-data/thermal.report/internal/store"
	"github.com/banshee-data/thermal.report/internal/version"
)

var (
	configPath    = flag.String("config", "study.json", "Study configuration JSON")
	catalogPath   = flag.String("catalog", "scenes.db", "Scene catalog SQLite file")
	resultsPath   = flag.String("results", "trend_results.db", "Results SQLite file")
	migrationsDir = flag.String("migrations", "migrations", "Schema migrations directory")
	outputDir     = flag.String("out", "out", "Export directory for rasters and reports")
	exportRes     = flag.Float64("export-resolution", 30, "Raster export resolution in metres")
	exportMax     = flag.Int("export-max-pixels", 100_000_000, "Raster export pixel ceiling")
	listen        = flag.String("listen", "", "Optional listen address for the debug SQL console")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("lst-trend %s (%s, built %s)\n",
			version.Version, version.GitSHA, version.BuildTime)
		return
	}

	cfg, err := config.LoadStudyConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	region, err := raster.NewRegion(cfg.Region)
	if err != nil {
		log.Fatalf("region: %v", err)
	}

	catalog, err := archive.OpenCatalog(*catalogPath)
	if err != nil {
		log.Fatalf("open catalog: %v", err)
	}
	defer catalog.Close()

	results, err := store.Open(*resultsPath)
	if err != nil {
		log.Fatalf("open results db: %v", err)
	}
	defer results.Close()
	if err := results.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("migrate results db: %v", err)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("create output dir: %v", err)
	}

	if *listen != "" {
		mux := http.NewServeMux()
		results.AttachAdminRoutes(mux)
		go func() {
			log.Printf("debug console listening on %s", *listen)
			if err := http.ListenAndServe(*listen, mux); err != nil {
				log.Printf("debug console error: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := &pipeline.Pipeline{
		Archive:    catalog,
		Harmonizer: harmonize.NewDefault(),
		Config:     cfg,
		Region:     region,
		Store:      results,
		OutputDir:  *outputDir,
		Export: export.RasterOpts{
			TargetCellSize: *exportRes,
			MaxPixels:      *exportMax,
		},
	}
	out, err := p.Run(ctx)
	if err != nil {
		log.Fatalf("trend run failed: %v", err)
	}

	log.Printf("run %s complete: %d annual values", out.RunID, len(out.AnnualMeans))
	if out.RegionMeanSlope.Valid {
		log.Printf("region mean slope: %.4f °C/yr, total change %.2f °C",
			out.RegionMeanSlope.Float, out.TotalChange.Float)
	} else {
		log.Printf("region mean slope undefined: insufficient yearly samples")
	}
}
