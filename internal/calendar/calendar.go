package calendar

import (
	"time"
)

// searchHorizonDays bounds the day walk so a degenerate calendar cannot loop forever.
const searchHorizonDays = 3660

// Advance moves start forward by minutes of covered time.
//
// For round-the-clock coverage this is start + minutes. Otherwise only time inside the
// business window of a covered day counts; a start outside a window snaps forward to the
// next window start before any budget is consumed.
func Advance(start time.Time, minutes int, coverage Coverage) (time.Time, error) {
	if minutes < 0 {
		return time.Time{}, ErrNegativeMinutes
	}
	if coverage.IsRoundTheClock() {
		return start.Add(time.Duration(minutes) * time.Minute), nil
	}

	w, err := coverage.compile()
	if err != nil {
		return time.Time{}, err
	}

	remaining := time.Duration(minutes) * time.Minute
	cursor := start.In(w.loc)
	for i := 0; i < searchHorizonDays; i++ {
		y, m, d := cursor.Date()
		if w.covers(cursor) {
			windowStart, windowEnd := w.bounds(y, m, d)
			from := cursor
			if from.Before(windowStart) {
				from = windowStart
			}
			if from.Before(windowEnd) {
				available := windowEnd.Sub(from)
				if remaining <= available {
					return from.Add(remaining).In(start.Location()), nil
				}
				remaining -= available
			}
		}
		cursor = time.Date(y, m, d+1, 0, 0, 0, 0, w.loc)
	}
	return time.Time{}, ErrNoCoverage
}

// IsCovered reports whether the SLA clock is running at t.
func IsCovered(t time.Time, coverage Coverage) (bool, error) {
	if coverage.IsRoundTheClock() {
		return true, nil
	}
	w, err := coverage.compile()
	if err != nil {
		return false, err
	}
	local := t.In(w.loc)
	if !w.covers(local) {
		return false, nil
	}
	windowStart, windowEnd := w.bounds(local.Date())
	return !local.Before(windowStart) && local.Before(windowEnd), nil
}

// bounds returns the window of the given calendar day as wall-clock instants in w.loc,
// so days that gain or lose an hour to a DST switch keep their nominal opening times.
func (w *window) bounds(y int, m time.Month, d int) (time.Time, time.Time) {
	return wallClock(y, m, d, w.start, w.loc), wallClock(y, m, d, w.end, w.loc)
}

func wallClock(y int, m time.Month, d int, offset time.Duration, loc *time.Location) time.Time {
	hour := int(offset / time.Hour)
	minute := int(offset % time.Hour / time.Minute)
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}

// covers reports whether the calendar day of t (already in w.loc) is a covered day.
func (w *window) covers(t time.Time) bool {
	if !w.days[t.Weekday()] {
		return false
	}
	return !w.holidays[t.Format(dateLayout)]
}
