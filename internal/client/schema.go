package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/climate-dashboard/internal/models"
)

var validate = validator.New()

// Wire types mirror the upstream JSON with pointer fields so a missing key is
// distinguishable from a zero value.

type annualRecordWire struct {
	Year         *int     `json:"year" validate:"required,gte=1"`
	Anomaly      *float64 `json:"anomaly" validate:"required"`
	MovingAvg5yr *float64 `json:"moving_avg_5yr"`
}

type yearAnomalyWire struct {
	Year    *int     `json:"year" validate:"required,gte=1"`
	Anomaly *float64 `json:"anomaly" validate:"required"`
}

type trendsWire struct {
	DataRange *struct {
		StartYear *int `json:"start_year" validate:"required,gte=1"`
		EndYear   *int `json:"end_year" validate:"required,gte=1"`
	} `json:"data_range" validate:"required"`
	TrendPerDecade            *float64 `json:"trend_per_decade" validate:"required"`
	WarmingSincePreindustrial *float64 `json:"warming_since_preindustrial" validate:"required"`
	Extremes                  *struct {
		WarmestYear *yearAnomalyWire `json:"warmest_year" validate:"required"`
		ColdestYear *yearAnomalyWire `json:"coldest_year" validate:"required"`
	} `json:"extremes" validate:"required"`
	AverageAnomalies *struct {
		PreIndustrial      *float64 `json:"pre_industrial" validate:"required"`
		Early20thCentury   *float64 `json:"early_20th_century" validate:"required"`
		Late20thCentury    *float64 `json:"late_20th_century" validate:"required"`
		TwentyFirstCentury *float64 `json:"21st_century" validate:"required"`
	} `json:"average_anomalies" validate:"omitempty"`
}

type decadalWire struct {
	Decades  []string   `json:"decades" validate:"required,dive,required"`
	Averages []*float64 `json:"averages" validate:"required,dive,required"`
}

// decodeAnnual validates the annual payload: non-empty, every record complete,
// years strictly ascending.
func decodeAnnual(wire []annualRecordWire) ([]models.AnnualRecord, error) {
	if len(wire) == 0 {
		return nil, fmt.Errorf("%w: annual: empty series", ErrSchemaMismatch)
	}
	out := make([]models.AnnualRecord, 0, len(wire))
	for i := range wire {
		if err := validate.Struct(wire[i]); err != nil {
			return nil, schemaError(fmt.Sprintf("annual[%d]", i), err)
		}
		rec := models.AnnualRecord{
			Year:         *wire[i].Year,
			Anomaly:      *wire[i].Anomaly,
			MovingAvg5yr: wire[i].MovingAvg5yr,
		}
		if i > 0 && rec.Year <= out[i-1].Year {
			return nil, fmt.Errorf("%w: annual[%d]: year %d not after %d", ErrSchemaMismatch, i, rec.Year, out[i-1].Year)
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeTrends(wire trendsWire) (models.TrendsSummary, error) {
	if err := validate.Struct(wire); err != nil {
		return models.TrendsSummary{}, schemaError("trends", err)
	}
	if *wire.DataRange.EndYear < *wire.DataRange.StartYear {
		return models.TrendsSummary{}, fmt.Errorf("%w: trends: data_range end %d before start %d",
			ErrSchemaMismatch, *wire.DataRange.EndYear, *wire.DataRange.StartYear)
	}

	out := models.TrendsSummary{
		DataRange: models.DataRange{
			StartYear: *wire.DataRange.StartYear,
			EndYear:   *wire.DataRange.EndYear,
		},
		TrendPerDecade:            *wire.TrendPerDecade,
		WarmingSincePreindustrial: *wire.WarmingSincePreindustrial,
		Extremes: models.Extremes{
			WarmestYear: models.YearAnomaly{Year: *wire.Extremes.WarmestYear.Year, Anomaly: *wire.Extremes.WarmestYear.Anomaly},
			ColdestYear: models.YearAnomaly{Year: *wire.Extremes.ColdestYear.Year, Anomaly: *wire.Extremes.ColdestYear.Anomaly},
		},
	}
	if avg := wire.AverageAnomalies; avg != nil {
		out.AverageAnomalies = &models.AverageAnomalies{
			PreIndustrial:      *avg.PreIndustrial,
			Early20thCentury:   *avg.Early20thCentury,
			Late20thCentury:    *avg.Late20thCentury,
			TwentyFirstCentury: *avg.TwentyFirstCentury,
		}
	}
	return out, nil
}

func decodeDecadal(wire decadalWire) (models.DecadalSummary, error) {
	if err := validate.Struct(wire); err != nil {
		return models.DecadalSummary{}, schemaError("decades", err)
	}
	if len(wire.Decades) != len(wire.Averages) {
		return models.DecadalSummary{}, fmt.Errorf("%w: decades: %d labels but %d averages",
			ErrSchemaMismatch, len(wire.Decades), len(wire.Averages))
	}
	out := models.DecadalSummary{
		Decades:  append([]string(nil), wire.Decades...),
		Averages: make([]float64, len(wire.Averages)),
	}
	for i, v := range wire.Averages {
		out.Averages[i] = *v
	}
	return out, nil
}

// schemaError flattens validator output into one ErrSchemaMismatch.
func schemaError(where string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s: %v", ErrSchemaMismatch, where, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s: %s", ErrSchemaMismatch, where, strings.Join(fields, "; "))
}
