// Package timeutil provides day arithmetic and human-readable formatting
// for UTC timestamps.
package timeutil

import (
	"fmt"
	"time"
)

// Day is the length of one calendar day in UTC.
const Day = 24 * time.Hour

// StartOfDay returns midnight UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days between t1 and t2,
// regardless of order.
func DaysBetween(t1, t2 time.Time) int {
	days := int(StartOfDay(t2).Sub(StartOfDay(t1)) / Day)
	if days < 0 {
		days = -days
	}
	return days
}

// WholeDays returns d expressed in whole days, truncated toward zero.
func WholeDays(d time.Duration) int {
	return int(d / Day)
}

// FormatRelative describes t relative to now, e.g. "3h ago" or "in 2 days".
func FormatRelative(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		return formatFuture(-d)
	}
	return formatPast(d)
}

func formatPast(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < Day:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*Day:
		days := WholeDays(d)
		if days == 1 {
			return "yesterday"
		}
		return fmt.Sprintf("%d days ago", days)
	case d < 30*Day:
		return fmt.Sprintf("%d weeks ago", WholeDays(d)/7)
	default:
		if months := WholeDays(d) / 30; months < 12 {
			return fmt.Sprintf("%d months ago", months)
		}
		return "over a year ago"
	}
}

func formatFuture(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("in %dm", int(d.Minutes()))
	case d < Day:
		return fmt.Sprintf("in %dh", int(d.Hours()))
	default:
		days := WholeDays(d)
		if days == 1 {
			return "tomorrow"
		}
		return fmt.Sprintf("in %d days", days)
	}
}
