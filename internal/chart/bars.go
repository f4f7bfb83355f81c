package chart

import (
	"fmt"

	gochart "github.com/wcharczuk/go-chart/v2"
)

// barFraction is the share of each category slot a bar occupies.
const barFraction = 0.8

// barSeries draws one bar per value, from the zero baseline to the value, so
// negative anomalies extend downward. It plugs into gochart.Chart, which
// supports explicit gridlines where gochart.BarChart does not.
type barSeries struct {
	Name    string
	XValues []float64
	YValues []float64
	Style   gochart.Style
}

var (
	_ gochart.Series         = barSeries{}
	_ gochart.ValuesProvider = barSeries{}
)

func (b barSeries) GetName() string { return b.Name }

func (b barSeries) GetYAxis() gochart.YAxisType { return gochart.YAxisPrimary }

func (b barSeries) GetStyle() gochart.Style { return b.Style }

func (b barSeries) Len() int { return len(b.XValues) }

func (b barSeries) GetValues(index int) (float64, float64) {
	return b.XValues[index], b.YValues[index]
}

func (b barSeries) Validate() error {
	if len(b.XValues) != len(b.YValues) {
		return fmt.Errorf("bar series %q: %d x values but %d y values", b.Name, len(b.XValues), len(b.YValues))
	}
	return nil
}

func (b barSeries) Render(r gochart.Renderer, canvasBox gochart.Box, xrange, yrange gochart.Range, defaults gochart.Style) {
	style := b.Style.InheritFrom(defaults)
	baseline := canvasBox.Bottom - yrange.Translate(0)
	half := int(float64(xrange.Translate(1)-xrange.Translate(0)) * barFraction / 2)
	if half < 1 {
		half = 1
	}

	for i := range b.XValues {
		x := canvasBox.Left + xrange.Translate(b.XValues[i])
		y := canvasBox.Bottom - yrange.Translate(b.YValues[i])
		top, bottom := y, baseline
		if top > bottom {
			top, bottom = bottom, top
		}
		gochart.Draw.Box(r, gochart.Box{Top: top, Left: x - half, Right: x + half, Bottom: bottom}, style)
	}
}
