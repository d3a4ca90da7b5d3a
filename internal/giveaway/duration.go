package giveaway

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	MinDuration = 30 * time.Second
	MaxDuration = 30 * 24 * time.Hour
)

var (
	ErrInvalidDuration  = errors.New("invalid duration format")
	ErrDurationTooShort = errors.New("giveaway duration must be at least 30 seconds")
	ErrDurationTooLong  = errors.New("giveaway duration cannot be longer than 30 days")
)

var (
	unitPattern = regexp.MustCompile(`(?i)(\d+)([dhms])`)
	wordPattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*([a-z]+)$`)
)

var unitWords = map[string]time.Duration{
	"ms":           time.Millisecond,
	"msec":         time.Millisecond,
	"msecs":        time.Millisecond,
	"millisecond":  time.Millisecond,
	"milliseconds": time.Millisecond,
	"s":            time.Second,
	"sec":          time.Second,
	"secs":         time.Second,
	"second":       time.Second,
	"seconds":      time.Second,
	"m":            time.Minute,
	"min":          time.Minute,
	"mins":         time.Minute,
	"minute":       time.Minute,
	"minutes":      time.Minute,
	"h":            time.Hour,
	"hr":           time.Hour,
	"hrs":          time.Hour,
	"hour":         time.Hour,
	"hours":        time.Hour,
	"d":            24 * time.Hour,
	"day":          24 * time.Hour,
	"days":         24 * time.Hour,
	"w":            7 * 24 * time.Hour,
	"week":         7 * 24 * time.Hour,
	"weeks":        7 * 24 * time.Hour,
}

// ParseDuration reads cumulative unit-tagged amounts such as "1d2h30m40s".
// Inputs with no such amounts fall back to Go duration syntax, a bare
// millisecond count, or "<n> <unit word>". The result must lie within
// [MinDuration, MaxDuration].
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	var total time.Duration
	for _, match := range unitPattern.FindAllStringSubmatch(raw, -1) {
		value, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return 0, ErrInvalidDuration
		}
		total += time.Duration(value) * unitWords[strings.ToLower(match[2])]
	}
	if total == 0 {
		parsed, err := fallbackDuration(raw)
		if err != nil {
			return 0, err
		}
		total = parsed
	}

	switch {
	case total < MinDuration:
		return 0, ErrDurationTooShort
	case total > MaxDuration:
		return 0, ErrDurationTooLong
	}
	return total, nil
}

func fallbackDuration(raw string) (time.Duration, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if ms, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(ms * float64(time.Millisecond)), nil
	}
	match := wordPattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, ErrInvalidDuration
	}
	unit, ok := unitWords[strings.ToLower(match[2])]
	if !ok {
		return 0, ErrInvalidDuration
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, ErrInvalidDuration
	}
	return time.Duration(value * float64(unit)), nil
}
