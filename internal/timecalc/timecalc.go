// Package timecalc computes attendance session durations from wall-clock
// times. Everything here is pure: no clocks, no storage.
package timecalc

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeFormat is returned when a time-of-day cannot be parsed.
var ErrInvalidTimeFormat = errors.New("invalid time format")

const (
	// ClockLayout is the stored time-of-day layout (24h, minute resolution).
	ClockLayout = "15:04"
	// DateLayout is the stored calendar day layout.
	DateLayout = "2006-01-02"

	minutesPerDay = 24 * 60
)

// ParseClock parses "HH:MM" (or "H:MM") into minutes after midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(m) != 2 || len(h) == 0 || len(h) > 2 || !digits(h) || !digits(m) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return hour*60 + minute, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ComputeDuration returns the hours between clockIn and clockOut rounded to
// two decimals. A clockOut earlier than clockIn is taken to fall on the next
// calendar day.
func ComputeDuration(clockIn, clockOut string) (float64, error) {
	in, err := ParseClock(clockIn)
	if err != nil {
		return 0, fmt.Errorf("clock in: %w", err)
	}
	out, err := ParseClock(clockOut)
	if err != nil {
		return 0, fmt.Errorf("clock out: %w", err)
	}
	if out < in {
		out += minutesPerDay
	}
	return Round2(float64(out-in) / 60), nil
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// FormatClock renders t as a stored time-of-day.
func FormatClock(t time.Time) string {
	return t.Format(ClockLayout)
}

// FormatDate renders t as a stored calendar day.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ValidDate reports whether s is a YYYY-MM-DD calendar day.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// FormatHours renders hours with two fractional digits.
func FormatHours(h float64) string {
	return strconv.FormatFloat(Round2(h), 'f', 2, 64)
}

// ParseHours parses a stored duration. Empty input is reported with ok=false
// and a nil error; anything else that is not a finite number is an error.
func ParseHours(s string) (hours float64, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse hours %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("parse hours %q: not finite", s)
	}
	return v, true, nil
}
