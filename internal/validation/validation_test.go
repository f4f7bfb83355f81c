package validation

import (
	"errors"
	"testing"

	"github.com/kjstillabower/climate-dashboard/internal/models"
)

func TestParseYear_Empty(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseYear(tc.input)
			if !errors.Is(err, ErrYearEmpty) {
				t.Errorf("error = %v, want ErrYearEmpty", err)
			}
		})
	}
}

func TestParseYear_NotNumber(t *testing.T) {
	for _, input := range []string{"abc", "19x0", "-1990", "+1990", "1990.5", "1 990"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseYear(input)
			if !errors.Is(err, ErrYearNotNumber) {
				t.Errorf("ParseYear(%q) error = %v, want ErrYearNotNumber", input, err)
			}
		})
	}
}

func TestParseYear_OutOfBounds(t *testing.T) {
	for _, input := range []string{"0", "10000", "99999999999999999999"} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseYear(input)
			if !errors.Is(err, ErrYearOutOfBounds) {
				t.Errorf("ParseYear(%q) error = %v, want ErrYearOutOfBounds", input, err)
			}
		})
	}
}

func TestParseYear_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"1880", 1880},
		{" 2022 ", 2022},
		{"0042", 42},
		{"9999", 9999},
	}
	for _, tc := range tests {
		got, err := ParseYear(tc.input)
		if err != nil {
			t.Errorf("ParseYear(%q) error = %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseYear(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestParseYearRange(t *testing.T) {
	got, err := ParseYearRange("1950", "2000")
	if err != nil {
		t.Fatalf("ParseYearRange() error = %v", err)
	}
	if got != (models.YearRange{Start: 1950, End: 2000}) {
		t.Errorf("ParseYearRange() = %v", got)
	}
}

func TestParseYearRange_ReversedIsNotParseError(t *testing.T) {
	got, err := ParseYearRange("2000", "1950")
	if err != nil {
		t.Fatalf("ParseYearRange() error = %v, want nil", err)
	}
	if !errors.Is(got.Validate(), models.ErrInvalidRange) {
		t.Errorf("Validate() = %v, want ErrInvalidRange", got.Validate())
	}
}

func TestParseYearRange_ReportsField(t *testing.T) {
	if _, err := ParseYearRange("x", "2000"); !errors.Is(err, ErrYearNotNumber) {
		t.Errorf("bad start error = %v", err)
	}
	if _, err := ParseYearRange("1950", ""); !errors.Is(err, ErrYearEmpty) {
		t.Errorf("empty end error = %v", err)
	}
}
