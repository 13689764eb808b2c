// Package flow implements the sleep questionnaire: input normalization,
// the question catalog, per-field rules, advice and the conversation engine.
package flow

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// numberPattern accepts signed decimals with at most one decimal point.
var numberPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// clockPattern accepts HH:MM with optional sign on the hour.
var clockPattern = regexp.MustCompile(`^([+-]?\d+):(\d+)$`)

// ParseNumber parses a plain decimal number.
func ParseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if !numberPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q is not a number", models.ErrParse, raw)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	return v, nil
}

// NormalizeHour converts "HH:MM" or a bare number to a 12-hour clock value in [1,12].
// Midnight and noon both map to 12.
func NormalizeHour(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	var total float64
	if m := clockPattern.FindStringSubmatch(s); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("%w: bad hour in %q", models.ErrParse, raw)
		}
		minute, err := strconv.Atoi(m[2])
		if err != nil {
			return 0, fmt.Errorf("%w: bad minute in %q", models.ErrParse, raw)
		}
		total = float64(hour) + float64(minute)/60
	} else {
		v, err := ParseNumber(s)
		if err != nil {
			return 0, err
		}
		total = v
	}
	return to12Hour(int(math.Trunc(total))), nil
}

func to12Hour(h int) int {
	h = ((h % 24) + 24) % 24
	if h%12 == 0 {
		return 12
	}
	return h % 12
}

// Normalize parses raw text for the given field.
func Normalize(field models.FieldKey, raw string) (float64, error) {
	if field.IsHourField() {
		h, err := NormalizeHour(raw)
		if err != nil {
			return 0, err
		}
		return float64(h), nil
	}
	return ParseNumber(raw)
}
