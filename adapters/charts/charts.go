package charts

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"logitdash/domain/model"
)

var (
	pointColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	refColor   = color.RGBA{R: 150, G: 150, B: 150, A: 255}
)

var (
	// errNothingToPlot is returned for an empty row set
	errNothingToPlot = errors.New("nothing to plot")

	// errOutOfRange is returned when an odds ratio or bound cannot sit on a log axis
	errOutOfRange = errors.New("odds ratio out of plottable range")
)

// Config sets the PNG size
type Config struct {
	Width  vg.Length
	Height vg.Length
}

// Renderer implements ports.PlotPort with gonum/plot
type Renderer struct {
	config Config
}

// NewRenderer creates a renderer; a zero Config means 7x4 inches
func NewRenderer(config Config) *Renderer {
	if config.Width <= 0 {
		config.Width = 7 * vg.Inch
	}
	if config.Height <= 0 {
		config.Height = 4 * vg.Inch
	}
	return &Renderer{config: config}
}

// OddsRatioPlot draws each odds ratio with its confidence interval on a
// log axis, first term on top, with a dashed reference line at 1.
func (r *Renderer) OddsRatioPlot(rows []model.OddsRatio, title string) ([]byte, error) {
	if len(rows) == 0 {
		return nil, errNothingToPlot
	}

	for _, row := range rows {
		for _, v := range []float64{row.OR, row.Lower, row.Upper} {
			if !(v > 0) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: %s has %g [%g, %g]", errOutOfRange, row.Term, row.OR, row.Lower, row.Upper)
			}
		}
	}

	n := len(rows)
	points := make(plotter.XYs, n)
	errs := make(plotter.XErrors, n)
	names := make([]string, n)
	for i, row := range rows {
		y := n - 1 - i
		points[y] = plotter.XY{X: row.OR, Y: float64(y)}
		errs[y].Low = row.OR - row.Lower
		errs[y].High = row.Upper - row.OR
		names[y] = row.Term
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Odds-Ratios"
	p.Y.Label.Text = "Explanatory Variables"
	p.X.Scale = plot.LogScale{}
	p.X.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())

	ref, err := plotter.NewLine(plotter.XYs{{X: 1, Y: -0.5}, {X: 1, Y: float64(n) - 0.5}})
	if err != nil {
		return nil, err
	}
	ref.LineStyle.Color = refColor
	ref.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	bars, err := plotter.NewXErrorBars(struct {
		plotter.XYs
		plotter.XErrors
	}{points, errs})
	if err != nil {
		return nil, fmt.Errorf("error bars: %w", err)
	}
	bars.LineStyle.Color = pointColor

	scatter, err := plotter.NewScatter(points)
	if err != nil {
		return nil, fmt.Errorf("points: %w", err)
	}
	scatter.GlyphStyle.Color = pointColor
	scatter.GlyphStyle.Radius = vg.Points(3)

	p.Add(ref, bars, scatter)
	p.NominalY(names...)
	p.Y.Min = -0.5
	p.Y.Max = float64(n) - 0.5

	return r.encode(p)
}

// ImportancePlot draws mean AUC drop per variable as horizontal bars,
// largest on top.
func (r *Renderer) ImportancePlot(rows []model.Importance, title string) ([]byte, error) {
	if len(rows) == 0 {
		return nil, errNothingToPlot
	}

	sorted := make([]model.Importance, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Mean < sorted[b].Mean })

	values := make(plotter.Values, len(sorted))
	names := make([]string, len(sorted))
	for i, imp := range sorted {
		values[i] = imp.Mean
		names[i] = imp.Variable
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Decrease in AUC"
	p.Add(plotter.NewGrid())

	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return nil, fmt.Errorf("bars: %w", err)
	}
	bars.Horizontal = true
	bars.Color = pointColor
	bars.LineStyle.Width = 0

	p.Add(bars)
	p.NominalY(names...)

	return r.encode(p)
}

func (r *Renderer) encode(p *plot.Plot) ([]byte, error) {
	w, err := p.WriterTo(r.config.Width, r.config.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
