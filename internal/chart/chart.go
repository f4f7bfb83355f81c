// Package chart renders the dashboard's three charts to SVG with go-chart and
// tracks the lifetime of each rendered chart.
package chart

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	gochart "github.com/wcharczuk/go-chart/v2"

	"github.com/kjstillabower/climate-dashboard/internal/observability"
)

// ErrReleased is returned when reading a chart after Release.
var ErrReleased = errors.New("chart released")

// Kind identifies which dashboard region a chart belongs to.
type Kind string

const (
	KindAnnual  Kind = "annual"
	KindDecadal Kind = "decadal"
	KindCustom  Kind = "custom"
)

// Kinds lists every chart kind in page order.
var Kinds = []Kind{KindAnnual, KindDecadal, KindCustom}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// Series is one plotted data series. Labels is set for bar series only.
type Series struct {
	Name   string
	X      []float64
	Y      []float64
	Labels []string
	Style  gochart.Style
}

// GridLine is a horizontal gridline at Value on the y-axis.
type GridLine struct {
	Value float64
	Style gochart.Style
}

// Bounds is an inclusive axis range.
type Bounds struct {
	Min, Max float64
}

// Spec is the declarative description of a chart, independent of its rendered bytes.
type Spec struct {
	Title     string
	Subtitle  string
	XLabel    string
	YLabel    string
	XBounds   Bounds
	YBounds   Bounds
	XTicks    []gochart.Tick
	YTicks    []gochart.Tick
	GridLines []GridLine
	Series    []Series

	// Notes records anything the builder had to leave out, e.g. an omitted trend line.
	Notes []string
}

// SeriesByName returns the series called name.
func (s Spec) SeriesByName(name string) (Series, bool) {
	for _, ser := range s.Series {
		if ser.Name == name {
			return ser, true
		}
	}
	return Series{}, false
}

// Chart is a rendered chart instance. It stays readable until Release.
type Chart struct {
	ID   string
	Kind Kind
	Spec Spec

	mu       sync.Mutex
	svg      []byte
	released bool
}

var live atomic.Int64

// Live returns the number of charts created and not yet released.
func Live() int64 {
	return live.Load()
}

// NewChart wraps already-rendered SVG bytes in a new chart instance.
func NewChart(kind Kind, spec Spec, svg []byte) *Chart {
	live.Add(1)
	observability.ChartInstancesLive.Inc()
	return &Chart{
		ID:   uuid.NewString(),
		Kind: kind,
		Spec: spec,
		svg:  svg,
	}
}

// SVG returns the rendered bytes.
func (c *Chart) SVG() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil, ErrReleased
	}
	return c.svg, nil
}

// Release frees the rendered output. Safe to call more than once.
func (c *Chart) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.released = true
	c.svg = nil
	live.Add(-1)
	observability.ChartInstancesLive.Dec()
}

// Released reports whether Release has been called.
func (c *Chart) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}
