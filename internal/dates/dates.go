// Package dates normalizes raw calendar event dates into an
// outbound/return pair usable as flight search parameters.
package dates

import (
	"fmt"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

// NormalizeEventDates turns a calendar event's raw start/end strings into an
// (outbound, return) ISO date pair. Each input is either a plain date or an
// ISO datetime with a 'T' separator; only the date portion is used.
//
// All-day calendar events store an exclusive end date, so when BOTH inputs
// are date-only the end date is pulled back by one day. Mixed inputs skip
// that adjustment: an event with a real clock time on either side does not
// follow the all-day convention. If the adjusted end would precede the
// start, it is clamped to the start, so start <= end always holds.
func NormalizeEventDates(startRaw, endRaw string) (string, string, error) {
	start, err := toDate(startRaw)
	if err != nil {
		return "", "", fmt.Errorf("invalid event start %q: %w", startRaw, err)
	}
	end, err := toDate(endRaw)
	if err != nil {
		return "", "", fmt.Errorf("invalid event end %q: %w", endRaw, err)
	}

	if !strings.Contains(startRaw, "T") && !strings.Contains(endRaw, "T") {
		end = end.AddDate(0, 0, -1)
	}
	if end.Before(start) {
		end = start
	}
	return start.Format(isoDate), end.Format(isoDate), nil
}

// toDate parses the date portion of a date or datetime string.
func toDate(raw string) (time.Time, error) {
	s := raw
	if i := strings.Index(s, "T"); i >= 0 {
		s = s[:i]
	}
	return time.Parse(isoDate, s)
}
