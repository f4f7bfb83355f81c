package dashboard

import (
	"fmt"
	"strings"

	"github.com/kjstillabower/climate-dashboard/internal/models"
)

// Summary holds the formatted key statistics shown beside the charts.
type Summary struct {
	DataRange                 string          `json:"dataRange"`
	TrendPerDecade            string          `json:"trendPerDecade"`
	WarmingSincePreindustrial string          `json:"warmingSincePreindustrial"`
	WarmestYear               string          `json:"warmestYear"`
	ColdestYear               string          `json:"coldestYear"`
	PeriodAverages            []PeriodAverage `json:"periodAverages,omitempty"`
}

// PeriodAverage is one labelled average anomaly.
type PeriodAverage struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// FormatCelsius rounds v to two decimals and appends the unit, e.g. 0.123456 -> "0.12°C".
func FormatCelsius(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	if s == "-0.00" {
		s = "0.00"
	}
	return s + "°C"
}

// NewSummary formats the trends payload for display.
func NewSummary(t models.TrendsSummary) Summary {
	s := Summary{
		DataRange:                 fmt.Sprintf("%d to %d", t.DataRange.StartYear, t.DataRange.EndYear),
		TrendPerDecade:            FormatCelsius(t.TrendPerDecade),
		WarmingSincePreindustrial: FormatCelsius(t.WarmingSincePreindustrial),
		WarmestYear:               formatYearAnomaly(t.Extremes.WarmestYear),
		ColdestYear:               formatYearAnomaly(t.Extremes.ColdestYear),
	}
	if a := t.AverageAnomalies; a != nil {
		s.PeriodAverages = []PeriodAverage{
			{Label: "Pre-industrial", Value: FormatCelsius(a.PreIndustrial)},
			{Label: "Early 20th century", Value: FormatCelsius(a.Early20thCentury)},
			{Label: "Late 20th century", Value: FormatCelsius(a.Late20thCentury)},
			{Label: "21st century", Value: FormatCelsius(a.TwentyFirstCentury)},
		}
	}
	return s
}

func formatYearAnomaly(ya models.YearAnomaly) string {
	return fmt.Sprintf("%d (%s)", ya.Year, FormatCelsius(ya.Anomaly))
}

// String renders the summary on one line for logs.
func (s Summary) String() string {
	return strings.Join([]string{s.DataRange, s.TrendPerDecade, s.WarmingSincePreindustrial, s.WarmestYear, s.ColdestYear}, " | ")
}
