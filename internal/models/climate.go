package models

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned when a year range has Start after End.
var ErrInvalidRange = errors.New("start year must be less than or equal to end year")

// AnnualRecord is one calendar year of the global temperature series.
// Anomaly and MovingAvg5yr are in °C relative to the upstream baseline.
// MovingAvg5yr is nil for the edge years a centered window cannot cover.
type AnnualRecord struct {
	Year         int      `json:"year"`
	Anomaly      float64  `json:"anomaly"`
	MovingAvg5yr *float64 `json:"moving_avg_5yr"`
}

// DecadalSummary holds the mean anomaly per decade. Decades[i] labels Averages[i].
type DecadalSummary struct {
	Decades  []string  `json:"decades"`
	Averages []float64 `json:"averages"`
}

// DataRange is the inclusive span of years the trends were computed over.
type DataRange struct {
	StartYear int `json:"start_year"`
	EndYear   int `json:"end_year"`
}

// YearAnomaly pairs a year with its anomaly.
type YearAnomaly struct {
	Year    int     `json:"year"`
	Anomaly float64 `json:"anomaly"`
}

type Extremes struct {
	WarmestYear YearAnomaly `json:"warmest_year"`
	ColdestYear YearAnomaly `json:"coldest_year"`
}

// AverageAnomalies are the period averages the trends endpoint may include.
type AverageAnomalies struct {
	PreIndustrial      float64 `json:"pre_industrial"`
	Early20thCentury   float64 `json:"early_20th_century"`
	Late20thCentury    float64 `json:"late_20th_century"`
	TwentyFirstCentury float64 `json:"21st_century"`
}

// TrendsSummary is the precomputed long-term statistics payload.
type TrendsSummary struct {
	DataRange                 DataRange         `json:"data_range"`
	TrendPerDecade            float64           `json:"trend_per_decade"`
	WarmingSincePreindustrial float64           `json:"warming_since_preindustrial"`
	Extremes                  Extremes          `json:"extremes"`
	AverageAnomalies          *AverageAnomalies `json:"average_anomalies,omitempty"`
}

// YearRange is an inclusive [Start, End] selection of years.
type YearRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Validate returns ErrInvalidRange when Start > End.
func (r YearRange) Validate() error {
	if r.Start > r.End {
		return fmt.Errorf("%w: %d > %d", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Contains reports whether year lies within the range, bounds included.
func (r YearRange) Contains(year int) bool {
	return year >= r.Start && year <= r.End
}

func (r YearRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Dataset is the full set of payloads one dashboard session is built from.
// It is read-only once loaded.
type Dataset struct {
	Annual  []AnnualRecord
	Trends  TrendsSummary
	Decadal DecadalSummary

	// Fingerprint identifies the annual payload content; used to key rendered output.
	Fingerprint string
}

// YearBounds returns the first and last year of the annual series.
// ok is false when the series is empty.
func (d Dataset) YearBounds() (minYear, maxYear int, ok bool) {
	if len(d.Annual) == 0 {
		return 0, 0, false
	}
	return d.Annual[0].Year, d.Annual[len(d.Annual)-1].Year, true
}
