package scraper

import "time"

const dateParam = "2006-01-02"

// DateWindow is the report range requested from the portal
type DateWindow struct {
	Since time.Time
	Until time.Time
}

// ComputeWindow returns the report window for the given moment. Since is
// January 1st of the current year, or the last billing cycle start if that
// is earlier. Until is the first day of the next month.
func ComputeWindow(now time.Time, billingMonth time.Month, billingDay int) DateWindow {
	loc := now.Location()
	year, month, day := now.Date()
	today := time.Date(year, month, day, 0, 0, 0, 0, loc)

	since := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)

	billing := billingDate(year, billingMonth, billingDay, loc)
	if billing.After(today) {
		billing = billingDate(year-1, billingMonth, billingDay, loc)
	}
	if billing.Before(since) {
		since = billing
	}

	return DateWindow{
		Since: since,
		Until: time.Date(year, month+1, 1, 0, 0, 0, 0, loc),
	}
}

// billingDate clamps the day to the month length so Feb 29 falls on Feb 28
// in common years.
func billingDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// SinceParam formats Since the way the portal expects it
func (w DateWindow) SinceParam() string {
	return w.Since.Format(dateParam)
}

// UntilParam formats Until the way the portal expects it
func (w DateWindow) UntilParam() string {
	return w.Until.Format(dateParam)
}
