package report

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/iago/socialdesk-back/internal/domain"
)

var (
	ErrInvalidFrequency = errors.New("frequency must be daily, weekly or monthly")
	ErrInvalidTimeOfDay = errors.New("timeOfDay must use HH:MM")
)

// ParseTimeOfDay parses a 24h "HH:MM" value.
func ParseTimeOfDay(value string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, ErrInvalidTimeOfDay
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, ErrInvalidTimeOfDay
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, ErrInvalidTimeOfDay
	}
	return hour, minute, nil
}

// ComputeNextRun returns when a schedule fires next, starting from now at
// timeOfDay:
//   - daily always adds one day, even when timeOfDay is still ahead today;
//   - weekly moves forward to dayOfWeek (zero days when today matches) or
//     adds seven days when no day is set;
//   - monthly moves to dayOfMonth, rolling to next month unless that is
//     strictly after now, or adds one month when no day is set.
func ComputeNextRun(
	now time.Time,
	frequency domain.Frequency,
	dayOfWeek *int,
	dayOfMonth *int,
	timeOfDay string,
) (time.Time, error) {
	hour, minute, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	switch frequency {
	case domain.FrequencyDaily:
		return next.AddDate(0, 0, 1), nil
	case domain.FrequencyWeekly:
		if dayOfWeek == nil {
			return next.AddDate(0, 0, 7), nil
		}
		offset := (*dayOfWeek - int(now.Weekday()) + 7) % 7
		return next.AddDate(0, 0, offset), nil
	case domain.FrequencyMonthly:
		if dayOfMonth == nil {
			return next.AddDate(0, 1, 0), nil
		}
		candidate := time.Date(next.Year(), next.Month(), *dayOfMonth, hour, minute, 0, 0, now.Location())
		if !candidate.After(now) {
			candidate = time.Date(next.Year(), next.Month()+1, *dayOfMonth, hour, minute, 0, 0, now.Location())
		}
		return candidate, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, frequency)
	}
}
