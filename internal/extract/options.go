package extract

import (
	"strings"

	"farewatch/internal/models"
)

// otherFlightsCap limits how many fallback itineraries are flattened when
// the payload carries no best_flights list.
const otherFlightsCap = 5

// Options flattens a raw search payload into per-flight option rows for the
// detailed view. It walks best_flights when present, otherwise up to
// otherFlightsCap entries of other_flights.
func Options(destination string, payload map[string]any) []models.FlightOption {
	itineraries, _ := payload["best_flights"].([]any)
	if len(itineraries) == 0 {
		others, _ := payload["other_flights"].([]any)
		if len(others) > otherFlightsCap {
			others = others[:otherFlightsCap]
		}
		itineraries = others
	}

	var options []models.FlightOption
	for _, item := range itineraries {
		itinerary, ok := item.(map[string]any)
		if !ok {
			continue
		}

		price := numberOf(itinerary["price"])
		duration := numberOf(itinerary["total_duration"])
		layovers := 0
		if l, ok := itinerary["layovers"].([]any); ok {
			layovers = len(l)
		}

		flights, _ := itinerary["flights"].([]any)
		for _, fl := range flights {
			flight, ok := fl.(map[string]any)
			if !ok {
				continue
			}
			options = append(options, models.FlightOption{
				Destination:  destination,
				Airline:      stringOf(flight["airline"]),
				FlightNumber: stringOr(flight["flight_number"], "N/A"),
				Price:        price,
				Duration:     duration,
				Departure:    airportTime(flight["departure_airport"]),
				Arrival:      airportTime(flight["arrival_airport"]),
				Layovers:     layovers,
			})
		}
	}
	return options
}

// FilterByAirline keeps options whose airline matches the filter's first
// word, case-insensitively. An empty filter keeps everything.
func FilterByAirline(options []models.FlightOption, airline string) []models.FlightOption {
	fields := strings.Fields(airline)
	if len(fields) == 0 {
		return options
	}
	word := strings.ToLower(fields[0])

	filtered := make([]models.FlightOption, 0, len(options))
	for _, o := range options {
		if strings.Contains(strings.ToLower(o.Airline), word) {
			filtered = append(filtered, o)
		}
	}
	return filtered
}

func numberOf(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case int:
		f := float64(n)
		return &f
	case string:
		if amount, _, ok := parseMoney(n); ok {
			return &amount
		}
	}
	return nil
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func airportTime(v any) string {
	airport, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	return stringOf(airport["time"])
}
