package export

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/thermal.report/internal/raster"
	"github.com/banshee-data/thermal.report/internal/temporal"
)

func testSeries() ([]temporal.YearMean, []temporal.YearCount) {
	means := []temporal.YearMean{
		{Year: 2000, Mean: raster.Some(21.0)},
		{Year: 2001},
		{Year: 2002, Mean: raster.Some(22.0)},
	}
	counts := []temporal.YearCount{
		{Year: 2000, Count: 5},
		{Year: 2001, Count: 0},
		{Year: 2002, Count: 7},
	}
	return means, counts
}

func TestFitFromSlopeAnchorsThroughSeriesMean(t *testing.T) {
	means, _ := testSeries()
	fit := FitFromSlope(raster.Some(0.5), means)
	if !fit.Valid || fit.Slope != 0.5 {
		t.Fatalf("fit = %+v", fit)
	}
	// Valid points are (2000, 21) and (2002, 22); the line passes through
	// their mean (2001, 21.5).
	if got := fit.Intercept + fit.Slope*2001; math.Abs(got-21.5) > 1e-9 {
		t.Fatalf("fitted value at mean year = %v, want 21.5", got)
	}
}

func TestFitFromSlopeUndefinedInputs(t *testing.T) {
	means, _ := testSeries()
	if fit := FitFromSlope(raster.None(), means); fit.Valid {
		t.Fatalf("undefined slope must yield invalid fit, got %+v", fit)
	}
	if fit := FitFromSlope(raster.Some(0.5), []temporal.YearMean{{Year: 2000}}); fit.Valid {
		t.Fatalf("all-missing series must yield invalid fit, got %+v", fit)
	}
}

func TestWriteReportHTML(t *testing.T) {
	means, counts := testSeries()
	path := filepath.Join(t.TempDir(), "report.html")

	fit := FitFromSlope(raster.Some(0.5), means)
	if err := WriteReportHTML(path, means, counts, fit); err != nil {
		t.Fatalf("WriteReportHTML: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	html := string(body)
	for _, want := range []string{"Annual mean land surface temperature", "Scenes per year", "fitted trend"} {
		if !strings.Contains(html, want) {
			t.Fatalf("report missing %q", want)
		}
	}
}

func TestWriteReportHTMLWithoutFit(t *testing.T) {
	means, counts := testSeries()
	path := filepath.Join(t.TempDir(), "report.html")
	if err := WriteReportHTML(path, means, counts, TrendFit{}); err != nil {
		t.Fatalf("WriteReportHTML: %v", err)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "undefined") {
		t.Fatal("report subtitle must flag the undefined trend")
	}
}

func TestWriteSeriesPNG(t *testing.T) {
	means, _ := testSeries()
	path := filepath.Join(t.TempDir(), "series.png")
	if err := WriteSeriesPNG(path, means, FitFromSlope(raster.Some(0.5), means)); err != nil {
		t.Fatalf("WriteSeriesPNG: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("empty plot file")
	}
}

func TestWriteSeriesPNGAllMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "series.png")
	err := WriteSeriesPNG(path, []temporal.YearMean{{Year: 2000}, {Year: 2001}}, TrendFit{})
	if err == nil {
		t.Fatal("expected error for an all-missing series")
	}
}
