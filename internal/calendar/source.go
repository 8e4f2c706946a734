// Package calendar reads upcoming travel events from a calendar provider.
package calendar

import (
	"context"
	"regexp"
	"strings"

	"farewatch/internal/models"
)

// Source lists singular upcoming events within [now, now+days*24h), ordered
// by start time, optionally filtered by a case-insensitive title substring.
type Source interface {
	UpcomingTravelEvents(ctx context.Context, days int, query string) ([]models.TravelEvent, error)
}

var airportCode = regexp.MustCompile(`[A-Z]{3}`)

// ExtractAirportCodes pulls a (departure, destination) pair out of an event
// title like "Trip DFW -> LAX". With a single code found it is treated as
// the destination; with none the configured defaults win.
func ExtractAirportCodes(title, defaultDeparture, defaultDestination string) (string, string) {
	codes := airportCode.FindAllString(title, -1)
	switch {
	case len(codes) >= 2:
		return codes[0], codes[1]
	case len(codes) == 1:
		return defaultDeparture, codes[0]
	default:
		return defaultDeparture, defaultDestination
	}
}

// matchesQuery reports whether a title passes the optional event filter.
func matchesQuery(title, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(title), strings.ToLower(query))
}
