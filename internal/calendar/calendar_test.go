package calendar

import (
	"math/rand"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func officeHours() Coverage {
	return Coverage{
		Type:               CoverageBusinessHours,
		BusinessHoursStart: "09:00",
		BusinessHoursEnd:   "17:00",
		BusinessDays:       []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		Timezone:           "UTC",
	}
}

func assertInstant(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.Truef(t, want.Equal(got), "want %s, got %s", want, got)
}

func TestAdvance_RoundTheClockIsPlainAddition(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	coverages := []Coverage{
		{Type: Coverage247},
		{Type: Coverage247, Timezone: "Europe/Berlin", Holidays: []string{"2024-01-01"}},
		{},
	}
	for _, cov := range coverages {
		for i := 0; i < 200; i++ {
			start := time.Unix(rng.Int63n(4_000_000_000), 0).UTC()
			minutes := rng.Intn(200_000)
			got, err := Advance(start, minutes, cov)
			require.NoError(t, err)
			assertInstant(t, start.Add(time.Duration(minutes)*time.Minute), got)
		}
	}
}

func TestAdvance_BusinessHours(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		minutes int
		want    time.Time
	}{
		{"friday afternoon carries over the weekend", at(5, 16, 50), 20, at(8, 9, 10)},
		{"monday before opening snaps to window start", at(1, 8, 0), 240, at(1, 13, 0)},
		{"inside the window", at(2, 10, 0), 30, at(2, 10, 30)},
		{"budget ending exactly at close", at(2, 9, 0), 480, at(2, 17, 0)},
		{"after close moves to next morning", at(2, 18, 0), 60, at(3, 10, 0)},
		{"saturday start waits for monday", at(6, 12, 0), 15, at(8, 9, 15)},
		{"zero minutes outside window snaps forward", at(6, 12, 0), 0, at(8, 9, 0)},
		{"zero minutes inside window stays", at(3, 11, 11), 0, at(3, 11, 11)},
		{"multi day budget", at(1, 9, 0), 3 * 480, at(3, 17, 0)},
		{"multi day budget with remainder", at(1, 16, 0), 480 + 90, at(3, 9, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(tt.start, tt.minutes, officeHours())
			require.NoError(t, err)
			assertInstant(t, tt.want, got)
		})
	}
}

func TestAdvance_Holidays(t *testing.T) {
	cov := officeHours()
	cov.Holidays = []string{"2024-01-08"}

	got, err := Advance(at(5, 16, 50), 20, cov)
	require.NoError(t, err)
	assertInstant(t, at(9, 9, 10), got)

	cov.HolidayCoverage = true
	got, err = Advance(at(5, 16, 50), 20, cov)
	require.NoError(t, err)
	assertInstant(t, at(8, 9, 10), got)
}

func TestAdvance_DefaultDaysAndWeekendExclusion(t *testing.T) {
	cov := Coverage{Type: CoverageBusinessHours, BusinessHoursStart: "08:00", BusinessHoursEnd: "12:00"}
	got, err := Advance(at(6, 9, 0), 60, cov)
	require.NoError(t, err)
	assertInstant(t, at(8, 9, 0), got)

	custom := Coverage{
		Type:               CoverageCustom,
		BusinessHoursStart: "10:00",
		BusinessHoursEnd:   "14:00",
		BusinessDays:       []string{"saturday", "sunday", "wednesday"},
		ExcludeWeekends:    true,
	}
	got, err = Advance(at(1, 9, 0), 60, custom)
	require.NoError(t, err)
	assertInstant(t, at(3, 11, 0), got)
}

func TestAdvance_Timezone(t *testing.T) {
	cov := officeHours()
	cov.Timezone = "America/New_York"

	// 2024-01-05 21:50 UTC is 16:50 on Friday in New York.
	start := time.Date(2024, time.January, 5, 21, 50, 0, 0, time.UTC)
	got, err := Advance(start, 20, cov)
	require.NoError(t, err)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assertInstant(t, time.Date(2024, time.January, 8, 9, 10, 0, 0, ny), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestAdvance_DaylightSavingSwitch(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cov := Coverage{
		Type:               CoverageCustom,
		BusinessHoursStart: "09:00",
		BusinessHoursEnd:   "17:00",
		BusinessDays:       []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"},
		Timezone:           "America/New_York",
	}

	tests := []struct {
		name    string
		start   time.Time
		minutes int
		want    time.Time
	}{
		{"spring forward snaps to nine", time.Date(2024, time.March, 10, 8, 0, 0, 0, ny), 0, time.Date(2024, time.March, 10, 9, 0, 0, 0, ny)},
		{"spring forward full day", time.Date(2024, time.March, 10, 9, 0, 0, 0, ny), 480, time.Date(2024, time.March, 10, 17, 0, 0, 0, ny)},
		{"spring forward spills to next day", time.Date(2024, time.March, 10, 16, 0, 0, 0, ny), 120, time.Date(2024, time.March, 11, 10, 0, 0, 0, ny)},
		{"fall back snaps to nine", time.Date(2024, time.November, 3, 7, 0, 0, 0, ny), 0, time.Date(2024, time.November, 3, 9, 0, 0, 0, ny)},
		{"fall back full day", time.Date(2024, time.November, 3, 9, 0, 0, 0, ny), 480, time.Date(2024, time.November, 3, 17, 0, 0, 0, ny)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Advance(tt.start, tt.minutes, cov)
			require.NoError(t, err)
			assertInstant(t, tt.want, got)
		})
	}

	covered, err := IsCovered(time.Date(2024, time.March, 10, 9, 30, 0, 0, ny), cov)
	require.NoError(t, err)
	assert.True(t, covered)

	covered, err = IsCovered(time.Date(2024, time.March, 10, 16, 30, 0, 0, ny), cov)
	require.NoError(t, err)
	assert.True(t, covered)

	covered, err = IsCovered(time.Date(2024, time.November, 3, 8, 30, 0, 0, ny), cov)
	require.NoError(t, err)
	assert.False(t, covered)
}

func TestAdvance_Errors(t *testing.T) {
	_, err := Advance(at(1, 9, 0), -1, officeHours())
	assert.ErrorIs(t, err, ErrNegativeMinutes)

	_, err = Advance(at(1, 9, 0), -1, Coverage{Type: Coverage247})
	assert.ErrorIs(t, err, ErrNegativeMinutes)

	bad := []Coverage{
		{Type: "lunar"},
		{Type: CoverageBusinessHours, BusinessHoursStart: "17:00", BusinessHoursEnd: "09:00"},
		{Type: CoverageBusinessHours, BusinessHoursStart: "9am", BusinessHoursEnd: "17:00"},
		{Type: CoverageBusinessHours, BusinessHoursStart: "09:00", BusinessHoursEnd: "17:00", BusinessDays: []string{"funday"}},
		{Type: CoverageCustom, BusinessHoursStart: "09:00", BusinessHoursEnd: "17:00"},
		{Type: CoverageCustom, BusinessHoursStart: "09:00", BusinessHoursEnd: "17:00", BusinessDays: []string{"saturday"}, ExcludeWeekends: true},
		{Type: CoverageBusinessHours, BusinessHoursStart: "09:00", BusinessHoursEnd: "17:00", Timezone: "Mars/Olympus"},
		{Type: CoverageBusinessHours, BusinessHoursStart: "09:00", BusinessHoursEnd: "17:00", Holidays: []string{"31/12/2024"}},
	}
	for _, cov := range bad {
		_, err := Advance(at(1, 9, 0), 10, cov)
		assert.ErrorIs(t, err, ErrInvalidCoverage, "coverage %+v", cov)
		assert.Error(t, cov.Validate())
	}
}

func TestAdvance_NoCoverageWithinHorizon(t *testing.T) {
	cov := Coverage{
		Type:               CoverageCustom,
		BusinessHoursStart: "09:00",
		BusinessHoursEnd:   "17:00",
		BusinessDays:       []string{"monday"},
	}
	// Every Monday of the horizon is a holiday.
	for d := at(1, 0, 0); d.Year() < 2036; d = d.AddDate(0, 0, 7) {
		cov.Holidays = append(cov.Holidays, d.Format("2006-01-02"))
	}
	_, err := Advance(at(1, 9, 0), 10, cov)
	assert.ErrorIs(t, err, ErrNoCoverage)
}

func TestIsCovered(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"window start is inclusive", at(1, 9, 0), true},
		{"window end is exclusive", at(1, 17, 0), false},
		{"mid afternoon", at(4, 15, 30), true},
		{"early morning", at(4, 6, 0), false},
		{"weekend", at(6, 12, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsCovered(tt.at, officeHours())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	always, err := IsCovered(at(6, 3, 0), Coverage{Type: Coverage247})
	require.NoError(t, err)
	assert.True(t, always)
}

func TestParseHelpers(t *testing.T) {
	d, err := ParseTimeOfDay(" 08:30 ")
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour+30*time.Minute, d)

	_, err = ParseTimeOfDay("25:00")
	assert.Error(t, err)

	day, ok := ParseWeekday("THURSDAY")
	assert.True(t, ok)
	assert.Equal(t, time.Thursday, day)

	assert.Equal(t, []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}, WeekdayNames())
}
