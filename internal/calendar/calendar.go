// Package calendar partitions date ranges into the units the remote
// timesheet API works with: single business days for submissions and
// Monday-anchored week windows for reports.
package calendar

import (
	"fmt"
	"time"

	"tsproxy/internal/domain"
)

// DateLayout is the wire format for calendar dates on both APIs.
const DateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD)", s)
	}
	return t, nil
}

func FormatDate(t time.Time) string { return t.Format(DateLayout) }

// Day truncates t to its calendar date at UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Weekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MondayOf returns the Monday of the week containing t. Sunday belongs to
// the week that started six days earlier.
func MondayOf(t time.Time) time.Time {
	back := (int(t.Weekday()) - int(time.Monday) + 7) % 7
	return Day(t).AddDate(0, 0, -back)
}

// NewRange validates start <= end.
func NewRange(start, end time.Time) (domain.DateRange, error) {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return domain.DateRange{}, fmt.Errorf("end date %s is before start date %s", FormatDate(end), FormatDate(start))
	}
	return domain.DateRange{Start: start, End: end}, nil
}

// BusinessDays lists every Monday-Friday date in r, ascending.
func BusinessDays(r domain.DateRange) []time.Time {
	var days []time.Time
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		if Weekend(d) {
			continue
		}
		days = append(days, d)
	}
	return days
}

// WeekWindows covers r with Monday-Sunday windows clipped at r.End. The
// first window starts on the Monday on or before r.Start, so it can reach
// outside the requested range; callers filter back to r.
func WeekWindows(r domain.DateRange) []domain.WeekWindow {
	var windows []domain.WeekWindow
	start := MondayOf(r.Start)
	for start.Before(r.End) {
		end := start.AddDate(0, 0, 6)
		if end.After(r.End) {
			end = r.End
		}
		windows = append(windows, domain.WeekWindow{Start: start, End: end})
		start = start.AddDate(0, 0, 7)
	}
	// r.End on a Monday is never strictly after a window start.
	if start.Equal(r.End) {
		windows = append(windows, domain.WeekWindow{Start: r.End, End: r.End})
	}
	return windows
}

// MonthBounds spans the first through the last day of the month.
func MonthBounds(year, month int) (domain.DateRange, error) {
	if month < 1 || month > 12 {
		return domain.DateRange{}, fmt.Errorf("invalid month %d", month)
	}
	if year < 1 || year > 9999 {
		return domain.DateRange{}, fmt.Errorf("invalid year %d", year)
	}
	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return domain.DateRange{Start: first, End: last}, nil
}
