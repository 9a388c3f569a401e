// Package calendar advances SLA clocks over coverage windows.
//
// Every function here is pure: the only instants it sees are the ones passed in.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// CoverageType selects how SLA clocks run.
type CoverageType string

const (
	Coverage247           CoverageType = "24/7"
	CoverageBusinessHours CoverageType = "business_hours"
	CoverageCustom        CoverageType = "custom"
)

const dateLayout = "2006-01-02"

var (
	ErrNegativeMinutes = errors.New("minutes must not be negative")
	ErrInvalidCoverage = errors.New("invalid coverage configuration")
	ErrNoCoverage      = errors.New("coverage has no covered window within the search horizon")
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var defaultBusinessDays = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}

// Coverage is the calendar rule of an SLA policy. Times of day use HH:MM.
type Coverage struct {
	Type               CoverageType `json:"type" yaml:"type"`
	BusinessHoursStart string       `json:"business_hours_start,omitempty" yaml:"business_hours_start"`
	BusinessHoursEnd   string       `json:"business_hours_end,omitempty" yaml:"business_hours_end"`
	BusinessDays       []string     `json:"business_days,omitempty" yaml:"business_days"`
	Timezone           string       `json:"timezone,omitempty" yaml:"timezone"`
	HolidayCoverage    bool         `json:"holiday_coverage" yaml:"holiday_coverage"`
	ExcludeWeekends    bool         `json:"exclude_weekends" yaml:"exclude_weekends"`
	Holidays           []string     `json:"holidays,omitempty" yaml:"holidays"`
}

// window is a compiled Coverage ready for arithmetic.
type window struct {
	loc      *time.Location
	start    time.Duration
	end      time.Duration
	days     map[time.Weekday]bool
	holidays map[string]bool
}

// Location returns the coverage timezone, UTC when unset.
func (c Coverage) Location() (*time.Location, error) {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidCoverage, c.Timezone, err)
	}
	return loc, nil
}

// IsRoundTheClock reports whether the clock never stops.
func (c Coverage) IsRoundTheClock() bool {
	return c.Type == Coverage247 || c.Type == ""
}

// Validate checks that the coverage can be compiled.
func (c Coverage) Validate() error {
	if c.IsRoundTheClock() {
		return nil
	}
	_, err := c.compile()
	return err
}

func (c Coverage) compile() (*window, error) {
	switch c.Type {
	case CoverageBusinessHours, CoverageCustom:
	default:
		return nil, fmt.Errorf("%w: unknown coverage type %q", ErrInvalidCoverage, c.Type)
	}

	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	start, err := ParseTimeOfDay(c.BusinessHoursStart)
	if err != nil {
		return nil, fmt.Errorf("%w: business hours start: %v", ErrInvalidCoverage, err)
	}
	end, err := ParseTimeOfDay(c.BusinessHoursEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: business hours end: %v", ErrInvalidCoverage, err)
	}
	if start >= end {
		return nil, fmt.Errorf("%w: business hours start must be before end", ErrInvalidCoverage)
	}

	names := c.BusinessDays
	if len(names) == 0 {
		if c.Type == CoverageCustom {
			return nil, fmt.Errorf("%w: custom coverage requires business days", ErrInvalidCoverage)
		}
		names = defaultBusinessDays
	}
	days := make(map[time.Weekday]bool, len(names))
	for _, name := range names {
		day, ok := ParseWeekday(name)
		if !ok {
			return nil, fmt.Errorf("%w: unknown weekday %q", ErrInvalidCoverage, name)
		}
		days[day] = true
	}
	if c.ExcludeWeekends {
		delete(days, time.Saturday)
		delete(days, time.Sunday)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: no business days left", ErrInvalidCoverage)
	}

	holidays := make(map[string]bool, len(c.Holidays))
	if !c.HolidayCoverage {
		for _, raw := range c.Holidays {
			d, err := time.Parse(dateLayout, strings.TrimSpace(raw))
			if err != nil {
				return nil, fmt.Errorf("%w: holiday %q", ErrInvalidCoverage, raw)
			}
			holidays[d.Format(dateLayout)] = true
		}
	}

	return &window{loc: loc, start: start, end: end, days: days, holidays: holidays}, nil
}

// ParseTimeOfDay parses HH:MM into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("time of day %q must be HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ParseWeekday accepts full English weekday names in any case.
func ParseWeekday(name string) (time.Weekday, bool) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return day, ok
}

// WeekdayNames lists the accepted weekday names in week order.
func WeekdayNames() []string {
	names := make([]string, 0, len(weekdayNames))
	for name := range weekdayNames {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return weekdayNames[names[i]] < weekdayNames[names[j]]
	})
	return names
}
