package flow

import (
	"errors"
	"fmt"
	"testing"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"7", 7, false},
		{" 7.5 ", 7.5, false},
		{"-3", -3, false},
		{".5", 0.5, false},
		{"+2", 2, false},
		{"", 0, true},
		{"seven", 0, true},
		{"1.2.3", 0, true},
		{"1e3", 0, true},
		{"NaN", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseNumber(tt.in)
		if tt.wantErr {
			if !errors.Is(err, models.ErrParse) {
				t.Errorf("ParseNumber(%q): expected ErrParse, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseNumber(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestNormalizeHour(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"13:30", 1},
		{"23:30", 11},
		{"00:15", 12},
		{"12:00", 12},
		{"24", 12},
		{"7", 7},
		{"7:00", 7},
		{"19", 7},
		{"22.5", 10},
		{"-1", 11},
	}
	for _, tt := range tests {
		got, err := NormalizeHour(tt.in)
		if err != nil {
			t.Errorf("NormalizeHour(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeHour(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeHourIdempotent(t *testing.T) {
	for h := 1; h <= 12; h++ {
		got, err := NormalizeHour(fmt.Sprint(h))
		if err != nil || got != h {
			t.Errorf("NormalizeHour(%d) = %d, %v", h, got, err)
		}
	}
}

func TestNormalizeHourRejectsGarbage(t *testing.T) {
	for _, in := range []string{"late", "ab:cd", "12:", ""} {
		if _, err := NormalizeHour(in); !errors.Is(err, models.ErrParse) {
			t.Errorf("NormalizeHour(%q): expected ErrParse, got %v", in, err)
		}
	}
}

func TestNormalizeDispatchesByField(t *testing.T) {
	v, err := Normalize(models.FieldBedHour, "23:30")
	if err != nil || v != 11 {
		t.Errorf("expected 11 for bed_hour, got %v, %v", v, err)
	}
	v, err = Normalize(models.FieldSleepDuration, "7.5")
	if err != nil || v != 7.5 {
		t.Errorf("expected 7.5 for sleep, got %v, %v", v, err)
	}
	if _, err := Normalize(models.FieldSleepDuration, "23:30"); !errors.Is(err, models.ErrParse) {
		t.Errorf("expected clock text to be rejected for non-hour field, got %v", err)
	}
}
