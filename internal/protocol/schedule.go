package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency identifies a recurrence cadence.
type Frequency string

const (
	// FrequencyDaily recurs every day at the due time.
	FrequencyDaily Frequency = "daily"
	// FrequencyWeekly recurs once a week on Weekday at the due time.
	FrequencyWeekly Frequency = "weekly"
)

// Schedule is a recurrence rule. DueTime is a UTC clock time in "HH:MM"
// form; Weekday is only meaningful for weekly schedules. The next due
// computation is a pure function of (schedule, after) so advancing cycles
// stays idempotent and replayable.
type Schedule struct {
	Frequency Frequency
	DueTime   string
	Weekday   time.Weekday
}

// Validate checks the recurrence rule is well formed.
func (s Schedule) Validate() error {
	switch s.Frequency {
	case FrequencyDaily:
	case FrequencyWeekly:
		if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
			return fmt.Errorf("weekday out of range: %d", s.Weekday)
		}
	default:
		return fmt.Errorf("unknown frequency %q", s.Frequency)
	}
	if _, _, err := parseDueTime(s.DueTime); err != nil {
		return err
	}
	return nil
}

// NextDue returns the first due instant strictly after the given time.
func (s Schedule) NextDue(after time.Time) (time.Time, error) {
	hour, minute, err := parseDueTime(s.DueTime)
	if err != nil {
		return time.Time{}, err
	}
	after = after.UTC()
	candidate := time.Date(after.Year(), after.Month(), after.Day(), hour, minute, 0, 0, time.UTC)

	switch s.Frequency {
	case FrequencyDaily:
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		return candidate, nil
	case FrequencyWeekly:
		offset := (int(s.Weekday) - int(candidate.Weekday()) + 7) % 7
		candidate = candidate.AddDate(0, 0, offset)
		if !candidate.After(after) {
			candidate = candidate.AddDate(0, 0, 7)
		}
		return candidate, nil
	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", s.Frequency)
	}
}

func parseDueTime(value string) (hour int, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("due time %q is not in HH:MM form", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("due time %q has an invalid hour", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("due time %q has an invalid minute", value)
	}
	return hour, minute, nil
}
