// Package extract pulls prices and itineraries out of raw flight search
// payloads. The upstream response shape varies by provider version, so
// everything here is best-effort probing of a generic document: entries
// that do not parse are skipped, never errored.
package extract

import (
	"fmt"
	"strconv"
	"strings"
)

// listKeys are the candidate itinerary lists, in priority order.
var listKeys = []string{"best_flights", "other_flights", "prices", "results"}

// scalarKeys are top-level fields that may carry a minimum price directly.
var scalarKeys = []string{"lowest_price", "minimum_price"}

type quote struct {
	amount   float64
	currency string
	airline  string
}

// LowestPrice scans a raw search payload for the cheapest itinerary. It
// harvests every candidate list plus the scalar minimum-price fields and
// returns the global minimum by amount, with the inferred currency and a
// representative airline when available. A payload with no parseable price
// yields (nil, nil, nil).
func LowestPrice(payload map[string]any) (*float64, *string, *string) {
	var candidates []quote

	for _, key := range listKeys {
		candidates = append(candidates, harvest(payload, key)...)
	}
	for _, key := range scalarKeys {
		switch v := payload[key].(type) {
		case float64:
			candidates = append(candidates, quote{amount: v})
		case int:
			candidates = append(candidates, quote{amount: float64(v)})
		case string:
			if amount, cur, ok := parseMoney(v); ok {
				candidates = append(candidates, quote{amount: amount, currency: cur})
			}
		}
	}

	if len(candidates) == 0 {
		return nil, nil, nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.amount < best.amount {
			best = c
		}
	}

	price := best.amount
	return &price, optional(best.currency), optional(best.airline)
}

// harvest collects (amount, currency, airline) quotes from one itinerary
// list. Entries without a parseable price are dropped.
func harvest(payload map[string]any, key string) []quote {
	items, ok := payload[key].([]any)
	if !ok {
		return nil
	}

	var quotes []quote
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		raw := firstNonEmpty(entry, "price", "price_total", "price_display")
		amount, cur, ok := parseMoney(raw)
		if !ok {
			continue
		}
		quotes = append(quotes, quote{amount: amount, currency: cur, airline: airlineOf(entry)})
	}
	return quotes
}

// airlineOf infers a representative airline for an itinerary entry: an
// explicit airlines list (first two joined), then a single airline field,
// then the first leg's carrier.
func airlineOf(entry map[string]any) string {
	if list, ok := entry["airlines"].([]any); ok && len(list) > 0 {
		var names []string
		for _, v := range list {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
			if len(names) == 2 {
				break
			}
		}
		if len(names) > 0 {
			return strings.Join(names, ", ")
		}
	}

	if s, ok := entry["airline"].(string); ok && s != "" {
		return s
	}

	if legs, ok := entry["legs"].([]any); ok && len(legs) > 0 {
		if leg, ok := legs[0].(map[string]any); ok {
			if s, ok := leg["airline"].(string); ok && s != "" {
				return s
			}
			if s, ok := leg["operating_carrier"].(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// parseMoney turns a price-like string into an amount plus an inferred
// currency. Currency comes from symbol/code substrings and may be present
// even when the amount itself fails to parse.
func parseMoney(raw string) (float64, string, bool) {
	if raw == "" {
		return 0, "", false
	}

	upper := strings.ToUpper(raw)
	var cur string
	switch {
	case strings.Contains(upper, "USD") || strings.Contains(raw, "$"):
		cur = "USD"
	case strings.Contains(upper, "EUR") || strings.Contains(raw, "€"):
		cur = "EUR"
	case strings.Contains(upper, "GBP") || strings.Contains(raw, "£"):
		cur = "GBP"
	}

	var digits strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			digits.WriteRune(r)
		}
	}
	amount, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		return 0, cur, false
	}
	return amount, cur, true
}

// firstNonEmpty stringifies the first present, non-empty field among names.
// Upstream sometimes sends prices as numbers, sometimes as display strings.
func firstNonEmpty(entry map[string]any, names ...string) string {
	for _, name := range names {
		switch v := entry[name].(type) {
		case nil:
			continue
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return fmt.Sprintf("%v", v)
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
