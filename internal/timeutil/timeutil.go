// Package timeutil holds pure time helpers: duration and countdown
// formatting, minute-of-day windows and date keys.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the key format for per-day counters ("2026-08-30").
const DateLayout = "2006-01-02"

// DateKey returns the calendar-day key for an instant, in local time.
// Escalation resets at local midnight, not 24h after the first attempt.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// MinuteOfDay returns the minutes elapsed since local midnight.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// InWindow reports whether minute falls in the half-open interval
// [start, end). The end minute itself is not included.
func InWindow(minute, start, end int) bool {
	return minute >= start && minute < end
}

// ParseClock parses "HH:MM" into minute-of-day.
func ParseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minute-of-day as "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// FormatMinutes renders a duration given in minutes as "45m", "2h" or
// "2h 30m".
func FormatMinutes(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// FormatCountdown renders remaining seconds as "M:SS" for countdown
// display. Negative values clamp to "0:00".
func FormatCountdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// MinutesUntil returns the whole minutes from now until endMinute on the
// same day, or 0 if the boundary has passed.
func MinutesUntil(now time.Time, endMinute int) int {
	remaining := endMinute - MinuteOfDay(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AtMinute returns the instant on the same local day as ref at the given
// minute-of-day.
func AtMinute(ref time.Time, minute int) time.Time {
	return time.Date(ref.Year(), ref.Month(), ref.Day(), minute/60, minute%60, 0, 0, ref.Location())
}
