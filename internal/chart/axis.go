package chart

import (
	"fmt"
	"math"
	"strconv"

	gochart "github.com/wcharczuk/go-chart/v2"
)

const (
	maxYearTicks  = 20
	targetYTicks  = 6
	emptyYPadding = 1.0
)

// niceStep rounds span/target up to 1, 2 or 5 times a power of ten.
func niceStep(span float64, target int) float64 {
	if span <= 0 || target <= 0 {
		return 1
	}
	raw := span / float64(target)
	mag := math.Pow(10, math.Floor(math.Log10(raw)))
	switch norm := raw / mag; {
	case norm <= 1:
		return mag
	case norm <= 2:
		return 2 * mag
	case norm <= 5:
		return 5 * mag
	default:
		return 10 * mag
	}
}

// valueAxis returns padded bounds and tick marks covering [minV, maxV]. Ticks
// are integer multiples of the step, so zero is a tick whenever it is in range.
func valueAxis(minV, maxV float64) (Bounds, []gochart.Tick, []float64) {
	if math.IsInf(minV, 0) || math.IsInf(maxV, 0) {
		minV, maxV = -emptyYPadding, emptyYPadding
	}
	if minV == maxV {
		minV -= 0.5
		maxV += 0.5
	}
	step := niceStep(maxV-minV, targetYTicks)
	lo := int(math.Floor(minV / step))
	hi := int(math.Ceil(maxV / step))

	decimals := 0
	if step < 1 {
		decimals = int(math.Ceil(-math.Log10(step)))
	}

	ticks := make([]gochart.Tick, 0, hi-lo+1)
	values := make([]float64, 0, hi-lo+1)
	for k := lo; k <= hi; k++ {
		v := float64(k) * step
		ticks = append(ticks, gochart.Tick{Value: v, Label: fmt.Sprintf("%.*f", decimals, v)})
		values = append(values, v)
	}
	return Bounds{Min: float64(lo) * step, Max: float64(hi) * step}, ticks, values
}

// yearAxis returns bounds and at most maxYearTicks+1 integer year ticks
// covering [first, last]. The bounds are widened to whole steps so the outer
// ticks coincide with them; go-chart takes the axis range from explicit ticks.
func yearAxis(first, last int) (Bounds, []gochart.Tick) {
	if first == last {
		first--
		last++
	}
	step := int(niceStep(float64(last-first), maxYearTicks))
	if step < 1 {
		step = 1
	}

	lo := floorDiv(first, step) * step
	hi := -floorDiv(-last, step) * step

	ticks := make([]gochart.Tick, 0, (hi-lo)/step+1)
	for y := lo; y <= hi; y += step {
		ticks = append(ticks, gochart.Tick{Value: float64(y), Label: strconv.Itoa(y)})
	}
	return Bounds{Min: float64(lo), Max: float64(hi)}, ticks
}

// indexAxis labels positions 0..n-1 and adds unlabeled edge ticks so each
// bar gets a full slot.
func indexAxis(labels []string) (Bounds, []gochart.Tick) {
	n := len(labels)
	if n == 0 {
		return Bounds{Min: -0.5, Max: 0.5}, []gochart.Tick{{Value: -0.5}, {Value: 0.5}}
	}
	ticks := make([]gochart.Tick, 0, n+2)
	ticks = append(ticks, gochart.Tick{Value: -0.5})
	for i, l := range labels {
		ticks = append(ticks, gochart.Tick{Value: float64(i), Label: l})
	}
	ticks = append(ticks, gochart.Tick{Value: float64(n) - 0.5})
	return Bounds{Min: -0.5, Max: float64(n) - 0.5}, ticks
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// gridLines styles every tick gridline, emphasizing the one at zero.
func (r *Renderer) gridLines(values []float64) []GridLine {
	lines := make([]GridLine, 0, len(values))
	for _, v := range values {
		style := gochart.Style{StrokeColor: r.colors.grid, StrokeWidth: 1}
		if v == 0 {
			style = gochart.Style{StrokeColor: r.colors.zeroLine, StrokeWidth: 2}
		}
		lines = append(lines, GridLine{Value: v, Style: style})
	}
	return lines
}

func minMax(values ...[]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, vs := range values {
		for _, v := range vs {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}
