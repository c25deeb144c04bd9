package export

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/thermal.report/internal/raster"
	"github.com/banshee-data/thermal.report/internal/temporal"
)

// TrendFit carries the fitted regional trend line drawn over the series.
type TrendFit struct {
	Slope     float64
	Intercept float64
	Valid     bool
}

// WriteReportHTML renders the annual series and scene counts as a
// self-contained HTML report page. Missing years appear as gaps in the
// line, never as zeroes.
func WriteReportHTML(path string, means []temporal.YearMean, counts []temporal.YearCount, fit TrendFit) error {
	years := make([]string, len(means))
	lineData := make([]opts.LineData, len(means))
	fitData := make([]opts.LineData, len(means))
	for i, ym := range means {
		years[i] = fmt.Sprintf("%d", ym.Year)
		if ym.Mean.Valid {
			lineData[i] = opts.LineData{Value: ym.Mean.Float}
		} else {
			lineData[i] = opts.LineData{Value: nil}
		}
		if fit.Valid {
			fitData[i] = opts.LineData{Value: fit.Intercept + fit.Slope*float64(ym.Year)}
		} else {
			fitData[i] = opts.LineData{Value: nil}
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "LST Trend Report", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Annual mean land surface temperature",
			Subtitle: subtitleForFit(fit),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "LST (°C)"}),
	)
	line.SetXAxis(years).
		AddSeries("annual mean", lineData)
	if fit.Valid {
		line.AddSeries("fitted trend", fitData)
	}

	barData := make([]opts.BarData, len(counts))
	barYears := make([]string, len(counts))
	for i, yc := range counts {
		barYears[i] = fmt.Sprintf("%d", yc.Year)
		barData[i] = opts.BarData{Value: yc.Count}
	}
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "300px"}),
		charts.WithTitleOpts(opts.Title{Title: "Scenes per year"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(barYears).AddSeries("scenes", barData)

	page := components.NewPage()
	page.AddCharts(line, bar)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func subtitleForFit(fit TrendFit) string {
	if !fit.Valid {
		return "regional trend undefined (insufficient yearly samples)"
	}
	return fmt.Sprintf("regional trend %.4f °C/yr", fit.Slope)
}

// FitFromSlope converts an optional region-mean slope plus an anchor series
// into a drawable TrendFit. The intercept is chosen so the fitted line
// passes through the mean of the valid series points.
func FitFromSlope(slope raster.Value, means []temporal.YearMean) TrendFit {
	if !slope.Valid {
		return TrendFit{}
	}
	var sumY, sumX float64
	var n int
	for _, ym := range means {
		if ym.Mean.Valid {
			sumY += ym.Mean.Float
			sumX += float64(ym.Year)
			n++
		}
	}
	if n == 0 {
		return TrendFit{}
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)
	return TrendFit{
		Slope:     slope.Float,
		Intercept: meanY - slope.Float*meanX,
		Valid:     true,
	}
}
