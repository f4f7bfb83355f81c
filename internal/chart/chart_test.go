package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/kjstillabower/climate-dashboard/internal/config"
	"github.com/kjstillabower/climate-dashboard/internal/models"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(config.ChartOptions{Width: 640, Height: 320, Colors: config.DefaultPalette})
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

func ptr(v float64) *float64 { return &v }

// series builds a contiguous annual series from first to last with a gentle warming slope.
func series(first, last int) []models.AnnualRecord {
	out := make([]models.AnnualRecord, 0, last-first+1)
	for y := first; y <= last; y++ {
		rec := models.AnnualRecord{Year: y, Anomaly: -0.4 + 0.01*float64(y-first)}
		if y-first >= 2 && last-y >= 2 {
			rec.MovingAvg5yr = ptr(rec.Anomaly)
		}
		out = append(out, rec)
	}
	return out
}

func TestNewRenderer_InvalidColor(t *testing.T) {
	p := config.DefaultPalette
	p.TrendLine = "green"
	if _, err := NewRenderer(config.ChartOptions{Colors: p}); err == nil {
		t.Fatal("NewRenderer() expected error for unparseable color")
	}
}

func TestRenderer_Fingerprint(t *testing.T) {
	base := config.ChartOptions{Width: 480, Height: 240, Colors: config.DefaultPalette}
	recolored := base
	recolored.Colors.ZeroLine = "#123456"
	resized := base
	resized.Width = 960

	fp := func(opts config.ChartOptions) string {
		t.Helper()
		r, err := NewRenderer(opts)
		if err != nil {
			t.Fatalf("NewRenderer() error = %v", err)
		}
		return r.Fingerprint()
	}

	same := fp(base)
	if same != fp(base) {
		t.Error("identical options fingerprint differently")
	}
	if same == fp(recolored) {
		t.Error("palette change kept the fingerprint")
	}
	if same == fp(resized) {
		t.Error("size change kept the fingerprint")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    drawing.Color
		wantErr bool
	}{
		{"rgba(54, 162, 235, 0.5)", drawing.Color{R: 54, G: 162, B: 235, A: 128}, false},
		{"rgba(0,0,0,1)", drawing.Color{A: 255}, false},
		{"rgb(255, 99, 132)", drawing.Color{R: 255, G: 99, B: 132, A: 255}, false},
		{"#ff0000", drawing.Color{R: 255, A: 255}, false},
		{"rgba(256, 0, 0, 1)", drawing.Color{}, true},
		{"rgba(0, 0, 0, 1.5)", drawing.Color{}, true},
		{"rgba(0, 0, 0)", drawing.Color{}, true},
		{"blue", drawing.Color{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseColor(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilterRange(t *testing.T) {
	records := series(1880, 2022)
	tests := []struct {
		name      string
		r         models.YearRange
		wantLen   int
		wantFirst int
		wantLast  int
	}{
		{"default window", models.YearRange{Start: 1992, End: 2022}, 31, 1992, 2022},
		{"single year", models.YearRange{Start: 2000, End: 2000}, 1, 2000, 2000},
		{"whole series", models.YearRange{Start: 1880, End: 2022}, 143, 1880, 2022},
		{"overlapping start", models.YearRange{Start: 1850, End: 1885}, 6, 1880, 1885},
		{"outside", models.YearRange{Start: 1700, End: 1800}, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterRange(records, tt.r)
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantLen == 0 {
				return
			}
			if got[0].Year != tt.wantFirst || got[len(got)-1].Year != tt.wantLast {
				t.Errorf("years %d..%d, want %d..%d", got[0].Year, got[len(got)-1].Year, tt.wantFirst, tt.wantLast)
			}
			for _, rec := range got {
				if rec.Year < tt.r.Start || rec.Year > tt.r.End {
					t.Errorf("year %d outside %v", rec.Year, tt.r)
				}
			}
		})
	}
}

// TestFilterRange_Property checks on random ranges that the result holds exactly
// the years inside the range.
func TestFilterRange_Property(t *testing.T) {
	records := series(1880, 2022)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		a, b := 1850+rng.Intn(200), 1850+rng.Intn(200)
		if a > b {
			a, b = b, a
		}
		r := models.YearRange{Start: a, End: b}
		want := 0
		for _, rec := range records {
			if rec.Year >= a && rec.Year <= b {
				want++
			}
		}
		if got := len(FilterRange(records, r)); got != want {
			t.Errorf("FilterRange(%v) len = %d, want %d", r, got, want)
		}
	}
}

func TestAnnualSpec_Series(t *testing.T) {
	r := newTestRenderer(t)
	records := series(1880, 2022)
	spec := r.AnnualSpec(records)

	if spec.Title != "Global Temperature Anomalies (1880-2022)" {
		t.Errorf("Title = %q", spec.Title)
	}
	if spec.Subtitle != "Relative to 1971-2000 Average" {
		t.Errorf("Subtitle = %q", spec.Subtitle)
	}

	annual, ok := spec.SeriesByName(SeriesAnnual)
	if !ok || len(annual.X) != len(records) || len(annual.Y) != len(records) {
		t.Fatalf("annual series = %d points, want %d", len(annual.X), len(records))
	}
	ma, ok := spec.SeriesByName(SeriesMovingAvg)
	if !ok || len(ma.X) != len(records)-4 {
		t.Errorf("moving average points = %d, want %d (edge years null)", len(ma.X), len(records)-4)
	}
	tr, ok := spec.SeriesByName(SeriesTrend)
	if !ok {
		t.Fatal("trend series missing")
	}
	if len(tr.Y) != len(records) {
		t.Errorf("trend points = %d, want %d", len(tr.Y), len(records))
	}
	if len(tr.Style.StrokeDashArray) == 0 {
		t.Error("trend line should be dashed")
	}
	// The fixture is exactly linear, so the trend reproduces it.
	for i := range tr.Y {
		if math.Abs(tr.Y[i]-annual.Y[i]) > 1e-9 {
			t.Fatalf("trend[%d] = %v, want %v", i, tr.Y[i], annual.Y[i])
		}
	}
	if len(spec.Notes) != 0 {
		t.Errorf("Notes = %v, want none", spec.Notes)
	}
}

func TestAnnualSpec_TrendOmitted(t *testing.T) {
	r := newTestRenderer(t)
	tests := []struct {
		name    string
		records []models.AnnualRecord
	}{
		{"single record", []models.AnnualRecord{{Year: 2000, Anomaly: 0.4}}},
		{"all years equal", []models.AnnualRecord{{Year: 2000, Anomaly: 0.4}, {Year: 2000, Anomaly: 0.5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := r.AnnualSpec(tt.records)
			if _, ok := spec.SeriesByName(SeriesTrend); ok {
				t.Error("trend series present, want omitted")
			}
			if len(spec.Notes) != 1 {
				t.Errorf("Notes = %v, want one note", spec.Notes)
			}
			c, err := r.Render(KindAnnual, spec)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			c.Release()
		})
	}
}

func TestSpecs_ZeroGridlineEmphasized(t *testing.T) {
	r := newTestRenderer(t)
	zero, _ := ParseColor(config.DefaultPalette.ZeroLine)
	grid, _ := ParseColor(config.DefaultPalette.Grid)

	specs := map[string]Spec{
		"annual":  r.AnnualSpec(series(1880, 2022)),
		"decadal": r.DecadalSpec(models.DecadalSummary{Decades: []string{"1880s", "1890s", "2010s"}, Averages: []float64{-0.3, -0.2, 0.8}}),
		"custom":  r.CustomRangeSpec(series(1880, 2022), models.YearRange{Start: 1880, End: 1950}),
		"empty":   r.CustomRangeSpec(series(1880, 2022), models.YearRange{Start: 1700, End: 1750}),
	}
	for name, spec := range specs {
		t.Run(name, func(t *testing.T) {
			var sawZero bool
			for _, gl := range spec.GridLines {
				if gl.Value == 0 {
					sawZero = true
					if gl.Style.StrokeWidth != 2 || gl.Style.StrokeColor != zero {
						t.Errorf("zero gridline style = %+v, want width 2 zero-line color", gl.Style)
					}
					continue
				}
				if gl.Style.StrokeWidth != 1 || gl.Style.StrokeColor != grid {
					t.Errorf("gridline %v style = %+v, want width 1 grid color", gl.Value, gl.Style)
				}
			}
			if !sawZero {
				t.Errorf("no gridline at zero in %v", spec.GridLines)
			}
			if spec.YBounds.Min > 0 || spec.YBounds.Max < 0 {
				t.Errorf("YBounds %+v do not include zero", spec.YBounds)
			}
		})
	}
}

func TestDecadalSpec(t *testing.T) {
	r := newTestRenderer(t)
	summary := models.DecadalSummary{
		Decades:  []string{"1880s", "1890s", "1900s", "2010s"},
		Averages: []float64{-0.25, -0.3, -0.35, 0.8},
	}
	spec := r.DecadalSpec(summary)
	if spec.Title != "Decadal Average Temperature Anomalies" {
		t.Errorf("Title = %q", spec.Title)
	}
	s, ok := spec.SeriesByName(SeriesDecadal)
	if !ok {
		t.Fatal("decadal series missing")
	}
	if len(s.Y) != 4 || len(s.Labels) != 4 || s.Labels[3] != "2010s" || s.Y[3] != 0.8 {
		t.Errorf("series = %+v", s)
	}
	var labelled int
	for _, tick := range spec.XTicks {
		if tick.Label != "" {
			labelled++
		}
	}
	if labelled != 4 {
		t.Errorf("labelled x ticks = %d, want one per decade", labelled)
	}
}

func TestCustomRangeSpec(t *testing.T) {
	r := newTestRenderer(t)
	records := series(1880, 2022)

	spec := r.CustomRangeSpec(records, models.YearRange{Start: 1992, End: 2022})
	if spec.Title != "Temperature Anomalies (1992-2022)" {
		t.Errorf("Title = %q", spec.Title)
	}
	if len(spec.Series) != 1 || len(spec.Series[0].X) != 31 {
		t.Fatalf("series = %+v, want one series of 31 points", spec.Series)
	}

	empty := r.CustomRangeSpec(records, models.YearRange{Start: 1700, End: 1750})
	if len(empty.Series) != 1 || len(empty.Series[0].X) != 0 {
		t.Errorf("empty selection series = %+v, want one zero-length series", empty.Series)
	}
}

func TestRender_ProducesSVG(t *testing.T) {
	r := newTestRenderer(t)
	records := series(1880, 2022)
	summary := models.DecadalSummary{Decades: []string{"1880s", "1890s"}, Averages: []float64{-0.2, 0.1}}

	tests := []struct {
		name   string
		render func() (*Chart, error)
		kind   Kind
	}{
		{"annual", func() (*Chart, error) { return r.RenderAnnual(records) }, KindAnnual},
		{"decadal", func() (*Chart, error) { return r.RenderDecadal(summary) }, KindDecadal},
		{"decadal empty", func() (*Chart, error) { return r.RenderDecadal(models.DecadalSummary{}) }, KindDecadal},
		{"custom", func() (*Chart, error) { return r.RenderCustomRange(records, models.YearRange{Start: 1992, End: 2022}) }, KindCustom},
		{"custom single year", func() (*Chart, error) { return r.RenderCustomRange(records, models.YearRange{Start: 2000, End: 2000}) }, KindCustom},
		{"custom empty", func() (*Chart, error) { return r.RenderCustomRange(records, models.YearRange{Start: 1700, End: 1750}) }, KindCustom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.render()
			if err != nil {
				t.Fatalf("render error = %v", err)
			}
			defer c.Release()
			if c.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", c.Kind, tt.kind)
			}
			svg, err := c.SVG()
			if err != nil {
				t.Fatalf("SVG() error = %v", err)
			}
			if !bytes.Contains(svg, []byte("<svg")) {
				t.Errorf("output is not SVG: %.80s", svg)
			}
		})
	}
}

func TestRenderCustomRange_InvalidRange(t *testing.T) {
	r := newTestRenderer(t)
	_, err := r.RenderCustomRange(series(1880, 2022), models.YearRange{Start: 2010, End: 2000})
	if !errors.Is(err, models.ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}
}

func TestChart_Release(t *testing.T) {
	before := Live()
	c := NewChart(KindCustom, Spec{}, []byte("<svg/>"))
	if Live() != before+1 {
		t.Fatalf("Live() = %d, want %d", Live(), before+1)
	}

	c.Release()
	c.Release()
	if Live() != before {
		t.Errorf("Live() = %d after double release, want %d", Live(), before)
	}
	if !c.Released() {
		t.Error("Released() = false")
	}
	if _, err := c.SVG(); !errors.Is(err, ErrReleased) {
		t.Errorf("SVG() error = %v, want ErrReleased", err)
	}
}

func TestSlot_ReplaceReleasesPrevious(t *testing.T) {
	var s Slot
	if s.Current() != nil {
		t.Fatal("new slot not empty")
	}
	if _, ok, _ := s.SVG(); ok {
		t.Error("SVG() ok on empty slot")
	}

	first := NewChart(KindCustom, Spec{Title: "first"}, []byte("<svg>1</svg>"))
	second := NewChart(KindCustom, Spec{Title: "second"}, []byte("<svg>2</svg>"))

	s.Replace(first)
	s.Replace(second)
	if !first.Released() {
		t.Error("displaced chart not released")
	}
	if s.Current() != second {
		t.Error("Current() is not the latest chart")
	}
	svg, ok, err := s.SVG()
	if err != nil || !ok || string(svg) != "<svg>2</svg>" {
		t.Errorf("SVG() = %q, %v, %v", svg, ok, err)
	}

	s.Replace(second)
	if second.Released() {
		t.Error("replacing a chart with itself released it")
	}

	s.Release()
	if !second.Released() || s.Current() != nil {
		t.Error("Release() did not empty the slot")
	}
	s.Release()
}

// TestSlot_RepeatedReplaceKeepsOneLive replaces many times and checks only one chart stays live.
func TestSlot_RepeatedReplaceKeepsOneLive(t *testing.T) {
	before := Live()
	var s Slot
	for i := 0; i < 25; i++ {
		s.Replace(NewChart(KindCustom, Spec{Title: fmt.Sprint(i)}, nil))
	}
	if got := Live() - before; got != 1 {
		t.Errorf("live charts = %d, want 1", got)
	}
	s.Release()
	if Live() != before {
		t.Errorf("Live() = %d after release, want %d", Live(), before)
	}
}

func TestValueAxis(t *testing.T) {
	tests := []struct {
		name     string
		lo, hi   float64
		wantZero bool
	}{
		{"spans zero", -0.48, 1.01, true},
		{"all positive", 0.2, 0.9, false},
		{"flat", 2.0, 2.0, false},
		{"empty", math.Inf(1), math.Inf(-1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, ticks, values := valueAxis(tt.lo, tt.hi)
			if b.Min >= b.Max {
				t.Fatalf("bounds %+v not increasing", b)
			}
			if len(ticks) != len(values) || len(ticks) < 2 {
				t.Fatalf("ticks = %d, values = %d", len(ticks), len(values))
			}
			if ticks[0].Value != b.Min || ticks[len(ticks)-1].Value != b.Max {
				t.Errorf("outer ticks %v..%v, bounds %+v", ticks[0].Value, ticks[len(ticks)-1].Value, b)
			}
			var hasZero bool
			for _, v := range values {
				if v == 0 {
					hasZero = true
				}
			}
			if hasZero != tt.wantZero {
				t.Errorf("zero tick present = %v, want %v (values %v)", hasZero, tt.wantZero, values)
			}
		})
	}
}

func TestYearAxis(t *testing.T) {
	tests := []struct {
		first, last int
	}{
		{1880, 2022},
		{1992, 2022},
		{2000, 2000},
		{2000, 2001},
	}
	for _, tt := range tests {
		b, ticks := yearAxis(tt.first, tt.last)
		if b.Min > float64(tt.first) || b.Max < float64(tt.last) || b.Min >= b.Max {
			t.Errorf("yearAxis(%d, %d) bounds = %+v", tt.first, tt.last, b)
		}
		if len(ticks) > maxYearTicks+1 {
			t.Errorf("yearAxis(%d, %d) = %d ticks, want <= %d", tt.first, tt.last, len(ticks), maxYearTicks+1)
		}
		if ticks[0].Value != b.Min || ticks[len(ticks)-1].Value != b.Max {
			t.Errorf("yearAxis(%d, %d) outer ticks do not match bounds", tt.first, tt.last)
		}
	}
}
