package chart

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/kjstillabower/climate-dashboard/internal/config"
	"github.com/kjstillabower/climate-dashboard/internal/models"
	"github.com/kjstillabower/climate-dashboard/internal/observability"
	"github.com/kjstillabower/climate-dashboard/internal/trend"
)

// Series names as shown in legends.
const (
	SeriesAnnual      = "Annual Temperature Anomaly"
	SeriesMovingAvg   = "5-Year Moving Average"
	SeriesTrend       = "Trend Line"
	SeriesDecadal     = "Decadal Average Temperature Anomaly"
	SeriesCustomRange = "Temperature Anomaly"
)

const (
	labelYear    = "Year"
	labelDecade  = "Decade"
	labelAnomaly = "Temperature Anomaly (°C)"

	annualSubtitle = "Relative to 1971-2000 Average"
)

type palette struct {
	annual, annualBorder   drawing.Color
	movingAvg, trendLine   drawing.Color
	decadal, decadalBorder drawing.Color
	custom, customBorder   drawing.Color
	zeroLine, grid         drawing.Color
}

// Renderer builds and renders the dashboard charts with one shared set of options.
type Renderer struct {
	width         int
	height        int
	titleFontSize float64
	colors        palette
	fingerprint   string
}

// NewRenderer parses the configured palette. Unparseable colors are an error.
func NewRenderer(opts config.ChartOptions) (*Renderer, error) {
	p := opts.Colors
	var colors palette
	for _, c := range []struct {
		name string
		raw  string
		dst  *drawing.Color
	}{
		{"annual", p.Annual, &colors.annual},
		{"annual_border", p.AnnualBorder, &colors.annualBorder},
		{"moving_avg", p.MovingAvg, &colors.movingAvg},
		{"trend_line", p.TrendLine, &colors.trendLine},
		{"decadal", p.Decadal, &colors.decadal},
		{"decadal_border", p.DecadalBorder, &colors.decadalBorder},
		{"custom_range", p.CustomRange, &colors.custom},
		{"custom_range_border", p.CustomRangeBorder, &colors.customBorder},
		{"zero_line", p.ZeroLine, &colors.zeroLine},
		{"grid", p.Grid, &colors.grid},
	} {
		parsed, err := ParseColor(c.raw)
		if err != nil {
			return nil, fmt.Errorf("chart color %s: %w", c.name, err)
		}
		*c.dst = parsed
	}

	r := &Renderer{
		width:         opts.Width,
		height:        opts.Height,
		titleFontSize: opts.TitleFontSize,
		colors:        colors,
	}
	if r.width <= 0 {
		r.width = 960
	}
	if r.height <= 0 {
		r.height = 400
	}
	if r.titleFontSize <= 0 {
		r.titleFontSize = 16
	}
	r.fingerprint = r.optionsFingerprint()
	return r, nil
}

// Fingerprint identifies the rendering options. Two renderers with the same
// fingerprint draw identical SVG for the same spec.
func (r *Renderer) Fingerprint() string {
	return r.fingerprint
}

func (r *Renderer) optionsFingerprint() string {
	d := xxhash.New()
	fmt.Fprintf(d, "%dx%d:%g", r.width, r.height, r.titleFontSize)
	p := r.colors
	for _, c := range []drawing.Color{
		p.annual, p.annualBorder, p.movingAvg, p.trendLine, p.decadal,
		p.decadalBorder, p.custom, p.customBorder, p.zeroLine, p.grid,
	} {
		fmt.Fprintf(d, ";%d,%d,%d,%d", c.R, c.G, c.B, c.A)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// FilterRange returns the records with r.Start <= Year <= r.End, in input order.
func FilterRange(records []models.AnnualRecord, r models.YearRange) []models.AnnualRecord {
	out := make([]models.AnnualRecord, 0)
	for _, rec := range records {
		if r.Contains(rec.Year) {
			out = append(out, rec)
		}
	}
	return out
}

// AnnualSpec describes the annual chart: anomalies, the moving average where
// defined, and a least-squares trend line. When the trend cannot be fitted the
// trend series is left out and a note says why.
func (r *Renderer) AnnualSpec(records []models.AnnualRecord) Spec {
	spec := Spec{
		Title:    "Global Temperature Anomalies",
		Subtitle: annualSubtitle,
		XLabel:   labelYear,
		YLabel:   labelAnomaly,
	}

	years := make([]float64, len(records))
	anomalies := make([]float64, len(records))
	var maYears, maValues []float64
	for i, rec := range records {
		years[i] = float64(rec.Year)
		anomalies[i] = rec.Anomaly
		if rec.MovingAvg5yr != nil {
			maYears = append(maYears, float64(rec.Year))
			maValues = append(maValues, *rec.MovingAvg5yr)
		}
	}
	if len(records) > 0 {
		spec.Title = fmt.Sprintf("Global Temperature Anomalies (%d-%d)", records[0].Year, records[len(records)-1].Year)
	}

	spec.Series = append(spec.Series, Series{
		Name: SeriesAnnual,
		X:    years,
		Y:    anomalies,
		Style: gochart.Style{
			StrokeColor: r.colors.annualBorder,
			StrokeWidth: 1,
			DotColor:    r.colors.annual,
			DotWidth:    2,
		},
	})
	if len(maYears) > 0 {
		spec.Series = append(spec.Series, Series{
			Name:  SeriesMovingAvg,
			X:     maYears,
			Y:     maValues,
			Style: gochart.Style{StrokeColor: r.colors.movingAvg, StrokeWidth: 2},
		})
	}

	points := make([]trend.Point, len(records))
	for i := range records {
		points[i] = trend.Point{X: years[i], Y: anomalies[i]}
	}
	fitted, err := trend.FittedValues(points)
	if err != nil {
		spec.Notes = append(spec.Notes, fmt.Sprintf("trend line omitted: %v", err))
	} else {
		spec.Series = append(spec.Series, Series{
			Name: SeriesTrend,
			X:    years,
			Y:    fitted,
			Style: gochart.Style{
				StrokeColor:     r.colors.trendLine,
				StrokeWidth:     2,
				StrokeDashArray: []float64{5, 5},
			},
		})
	}

	r.lineAxes(&spec, records)
	return spec
}

// DecadalSpec describes the decadal chart: one bar per decade label.
func (r *Renderer) DecadalSpec(summary models.DecadalSummary) Spec {
	spec := Spec{
		Title:  "Decadal Average Temperature Anomalies",
		XLabel: labelDecade,
		YLabel: labelAnomaly,
	}

	n := len(summary.Decades)
	if len(summary.Averages) < n {
		n = len(summary.Averages)
	}
	labels := summary.Decades[:n]
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	spec.Series = []Series{{
		Name:   SeriesDecadal,
		X:      x,
		Y:      append([]float64(nil), summary.Averages[:n]...),
		Labels: append([]string(nil), labels...),
		Style: gochart.Style{
			FillColor:   r.colors.decadal,
			StrokeColor: r.colors.decadalBorder,
			StrokeWidth: 1,
		},
	}}

	spec.XBounds, spec.XTicks = indexAxis(labels)
	lo, hi := minMax(spec.Series[0].Y)
	lo, hi = minFloat(lo, 0), maxFloat(hi, 0)
	var values []float64
	spec.YBounds, spec.YTicks, values = valueAxis(lo, hi)
	spec.GridLines = r.gridLines(values)
	return spec
}

// CustomRangeSpec describes the custom-range chart for the inclusive year
// range yr. An empty selection yields a zero-length series.
func (r *Renderer) CustomRangeSpec(records []models.AnnualRecord, yr models.YearRange) Spec {
	filtered := FilterRange(records, yr)
	spec := Spec{
		Title:  fmt.Sprintf("Temperature Anomalies (%d-%d)", yr.Start, yr.End),
		XLabel: labelYear,
		YLabel: labelAnomaly,
	}

	x := make([]float64, len(filtered))
	y := make([]float64, len(filtered))
	for i, rec := range filtered {
		x[i] = float64(rec.Year)
		y[i] = rec.Anomaly
	}
	spec.Series = []Series{{
		Name: SeriesCustomRange,
		X:    x,
		Y:    y,
		Style: gochart.Style{
			StrokeColor: r.colors.customBorder,
			StrokeWidth: 2,
			DotColor:    r.colors.custom,
			DotWidth:    3,
		},
	}}
	if len(filtered) == 0 {
		spec.Notes = append(spec.Notes, "no data in selected range")
		spec.XBounds, spec.XTicks = yearAxis(yr.Start, yr.End)
		var values []float64
		spec.YBounds, spec.YTicks, values = valueAxis(-emptyYPadding, emptyYPadding)
		spec.GridLines = r.gridLines(values)
		return spec
	}

	r.lineAxes(&spec, filtered)
	return spec
}

func (r *Renderer) lineAxes(spec *Spec, records []models.AnnualRecord) {
	if len(records) == 0 {
		spec.XBounds, spec.XTicks = yearAxis(0, 1)
	} else {
		spec.XBounds, spec.XTicks = yearAxis(records[0].Year, records[len(records)-1].Year)
	}
	ys := make([][]float64, 0, len(spec.Series))
	for _, s := range spec.Series {
		ys = append(ys, s.Y)
	}
	var values []float64
	spec.YBounds, spec.YTicks, values = valueAxis(minMax(ys...))
	spec.GridLines = r.gridLines(values)
}

// RenderAnnual builds and renders the annual chart.
func (r *Renderer) RenderAnnual(records []models.AnnualRecord) (*Chart, error) {
	return r.Render(KindAnnual, r.AnnualSpec(records))
}

// RenderDecadal builds and renders the decadal chart.
func (r *Renderer) RenderDecadal(summary models.DecadalSummary) (*Chart, error) {
	return r.Render(KindDecadal, r.DecadalSpec(summary))
}

// RenderCustomRange builds and renders the custom-range chart. yr must be valid.
func (r *Renderer) RenderCustomRange(records []models.AnnualRecord, yr models.YearRange) (*Chart, error) {
	if err := yr.Validate(); err != nil {
		return nil, err
	}
	return r.Render(KindCustom, r.CustomRangeSpec(records, yr))
}

// Render draws spec to SVG and returns a new chart instance.
func (r *Renderer) Render(kind Kind, spec Spec) (*Chart, error) {
	graph := r.graph(kind, spec)

	var buf bytes.Buffer
	if err := graph.Render(gochart.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render %s chart: %w", kind, err)
	}
	observability.ChartRendersTotal.WithLabelValues(string(kind)).Inc()
	return NewChart(kind, spec, buf.Bytes()), nil
}

func (r *Renderer) graph(kind Kind, spec Spec) gochart.Chart {
	gridLines := make([]gochart.GridLine, 0, len(spec.GridLines))
	for _, gl := range spec.GridLines {
		gridLines = append(gridLines, gochart.GridLine{Value: gl.Value, Style: gl.Style})
	}

	graph := gochart.Chart{
		Title:      spec.Title,
		TitleStyle: gochart.Style{FontSize: r.titleFontSize},
		Width:      r.width,
		Height:     r.height,
		Background: gochart.Style{Padding: gochart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16}},
		XAxis: gochart.XAxis{
			Name:  spec.XLabel,
			Range: &gochart.ContinuousRange{Min: spec.XBounds.Min, Max: spec.XBounds.Max},
			Ticks: spec.XTicks,
		},
		YAxis: gochart.YAxis{
			Name:           spec.YLabel,
			Range:          &gochart.ContinuousRange{Min: spec.YBounds.Min, Max: spec.YBounds.Max},
			Ticks:          spec.YTicks,
			GridLines:      gridLines,
			GridMajorStyle: gochart.Style{StrokeColor: r.colors.grid, StrokeWidth: 1},
		},
	}

	populated := 0
	for _, s := range spec.Series {
		if len(s.X) == 0 {
			continue
		}
		populated++
		if kind == KindDecadal {
			graph.Series = append(graph.Series, barSeries{Name: s.Name, XValues: s.X, YValues: s.Y, Style: s.Style})
			continue
		}
		graph.Series = append(graph.Series, gochart.ContinuousSeries{Name: s.Name, XValues: s.X, YValues: s.Y, Style: s.Style})
	}
	if populated == 0 {
		// go-chart refuses a chart without series; anchor the axes with an invisible one.
		graph.Series = append(graph.Series, gochart.ContinuousSeries{
			XValues: []float64{spec.XBounds.Min, spec.XBounds.Max},
			YValues: []float64{0, 0},
			Style:   gochart.Style{StrokeColor: invisible, StrokeWidth: 1},
		})
		return graph
	}

	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}
	return graph
}

// invisible is non-zero so go-chart does not replace it with a default color.
var invisible = drawing.Color{R: 255, G: 255, B: 255, A: 0}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
