package activity

import (
	"errors"
	"strings"
	"time"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

var ErrUnknownPeriod = errors.New("unknown period")

func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case Daily, Weekly, Monthly:
		return p, nil
	case "":
		return Weekly, nil
	}
	return "", ErrUnknownPeriod
}

// Start is the first day of the period containing now. Weeks start on Sunday.
func (p Period) Start(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	switch p {
	case Weekly:
		return day.AddDate(0, 0, -int(day.Weekday()))
	case Monthly:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	default:
		return day
	}
}

func (p Period) Title() string {
	switch p {
	case Daily:
		return "Daily"
	case Monthly:
		return "Monthly"
	default:
		return "Weekly"
	}
}
