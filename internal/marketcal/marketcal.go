package marketcal

import (
    "time"
)

// Calendar answers "is the exchange open" for US equities from the wall
// clock alone: Monday-Friday, 09:30-16:00 America/New_York, excluding
// market holidays. Adapters whose vendor exposes a status endpoint prefer
// that endpoint and use this only as the fallback.
type Calendar struct {
    loc *time.Location
}

func New() (*Calendar, error) {
    loc, err := time.LoadLocation("America/New_York")
    if err != nil {
        return nil, err
    }
    return &Calendar{loc: loc}, nil
}

const (
    openMinutes  = 9*60 + 30
    closeMinutes = 16 * 60
)

// IsOpen reports whether the regular session is trading at t.
func (c *Calendar) IsOpen(t time.Time) bool {
    local := t.In(c.loc)
    switch local.Weekday() {
    case time.Saturday, time.Sunday:
        return false
    }
    if IsHoliday(local) {
        return false
    }
    minutes := local.Hour()*60 + local.Minute()
    return minutes >= openMinutes && minutes < closeMinutes
}

// IsHoliday reports whether the date (in exchange-local time) is a full-day
// US market holiday. Fixed-date holidays observe Friday/Monday when they
// land on a weekend.
//
// TODO: Good Friday needs an Easter computation and is currently missed.
func IsHoliday(local time.Time) bool {
    y, m, d := local.Date()
    switch {
    case observed(y, time.January, 1) == dateOf(local): // New Year's Day
        return true
    case m == time.January && isNthWeekday(local, time.Monday, 3): // MLK Day
        return true
    case m == time.February && isNthWeekday(local, time.Monday, 3): // Washington's Birthday
        return true
    case m == time.May && isLastWeekday(local, time.Monday): // Memorial Day
        return true
    case observed(y, time.June, 19) == dateOf(local): // Juneteenth
        return true
    case observed(y, time.July, 4) == dateOf(local): // Independence Day
        return true
    case m == time.September && isNthWeekday(local, time.Monday, 1): // Labor Day
        return true
    case m == time.November && local.Weekday() == time.Thursday && nthOfMonth(d) == 4: // Thanksgiving
        return true
    case observed(y, time.December, 25) == dateOf(local): // Christmas
        return true
    }
    return false
}

type ymd struct {
    y int
    m time.Month
    d int
}

func dateOf(t time.Time) ymd {
    y, m, d := t.Date()
    return ymd{y, m, d}
}

// observed shifts a fixed-date holiday to Friday when it falls on Saturday
// and to Monday when it falls on Sunday.
func observed(y int, m time.Month, d int) ymd {
    t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
    switch t.Weekday() {
    case time.Saturday:
        t = t.AddDate(0, 0, -1)
    case time.Sunday:
        t = t.AddDate(0, 0, 1)
    }
    return dateOf(t)
}

func nthOfMonth(day int) int {
    return (day-1)/7 + 1
}

func isNthWeekday(t time.Time, wd time.Weekday, nth int) bool {
    return t.Weekday() == wd && nthOfMonth(t.Day()) == nth
}

func isLastWeekday(t time.Time, wd time.Weekday) bool {
    return t.Weekday() == wd && t.AddDate(0, 0, 7).Month() != t.Month()
}
