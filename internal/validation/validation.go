package validation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kjstillabower/climate-dashboard/internal/models"
)

// ErrYearEmpty is returned when a year parameter is missing or whitespace-only.
var ErrYearEmpty = errors.New("year is required")

// ErrYearNotNumber is returned when a year parameter is not a base-10 integer.
var ErrYearNotNumber = errors.New("year must be a whole number")

// ErrYearOutOfBounds is returned when a year lies outside [MinYear, MaxYear].
var ErrYearOutOfBounds = errors.New("year out of bounds")

// Accepted year bounds. Selections outside the data are allowed and render empty.
const (
	MinYear = 1
	MaxYear = 9999
)

// ParseYear trims the input and parses it as a year in [MinYear, MaxYear].
func ParseYear(input string) (int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, ErrYearEmpty
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrYearNotNumber, s)
		}
	}
	y, err := strconv.Atoi(s)
	if err != nil || y < MinYear || y > MaxYear {
		return 0, fmt.Errorf("%w: %s", ErrYearOutOfBounds, s)
	}
	return y, nil
}

// ParseYearRange parses start and end years. It does not check ordering;
// start > end is reported by models.YearRange.Validate so callers can keep
// the current selection and prompt the user.
func ParseYearRange(start, end string) (models.YearRange, error) {
	s, err := ParseYear(start)
	if err != nil {
		return models.YearRange{}, fmt.Errorf("start: %w", err)
	}
	e, err := ParseYear(end)
	if err != nil {
		return models.YearRange{}, fmt.Errorf("end: %w", err)
	}
	return models.YearRange{Start: s, End: e}, nil
}
