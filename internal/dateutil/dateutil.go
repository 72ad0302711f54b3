// Package dateutil handles the compact "YYYYMMDD" date strings used as
// document keys.
package dateutil

import (
	"fmt"
	"time"
)

// Parse converts a "YYYYMMDD" string to a time.Time in the local zone.
func Parse(date string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", date, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return t, nil
}

// Format converts a time to the "YYYYMMDD" form.
func Format(t time.Time) string {
	return t.Format("20060102")
}

// DayOfWeek returns the ISO day of week, 1 (Monday) through 7 (Sunday).
func DayOfWeek(t time.Time) int {
	if wd := int(t.Weekday()); wd != 0 {
		return wd
	}
	return 7
}

// Month returns the "YYYYMM" prefix of a "YYYYMMDD" date.
func Month(date string) string {
	if len(date) < 6 {
		return date
	}
	return date[:6]
}
