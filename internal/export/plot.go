package export

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/thermal.report/internal/temporal"
)

// WriteSeriesPNG plots the annual mean series with the fitted regional
// trend line as a PNG for static reports.
func WriteSeriesPNG(path string, means []temporal.YearMean, fit TrendFit) error {
	var pts plotter.XYs
	for _, ym := range means {
		if ym.Mean.Valid {
			pts = append(pts, plotter.XY{X: float64(ym.Year), Y: ym.Mean.Float})
		}
	}
	if len(pts) == 0 {
		return fmt.Errorf("series plot: no valid annual values")
	}

	p := plot.New()
	p.Title.Text = "Annual mean land surface temperature"
	p.X.Label.Text = "year"
	p.Y.Label.Text = "LST (°C)"

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("series plot scatter: %w", err)
	}
	p.Add(scatter)
	p.Legend.Add("annual mean", scatter)

	if fit.Valid {
		first, last := pts[0].X, pts[len(pts)-1].X
		fitLine, err := plotter.NewLine(plotter.XYs{
			{X: first, Y: fit.Intercept + fit.Slope*first},
			{X: last, Y: fit.Intercept + fit.Slope*last},
		})
		if err != nil {
			return fmt.Errorf("series plot fit line: %w", err)
		}
		p.Add(fitLine)
		p.Legend.Add(fmt.Sprintf("trend %.4f °C/yr", fit.Slope), fitLine)
	}

	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save series plot: %w", err)
	}
	return nil
}
