package models

import (
	"fmt"
	"strings"
)

// TravelEvent represents a vacation window read from a calendar.
// Start and End keep the provider's raw representation: either a plain
// ISO date (all-day event) or an ISO datetime with a 'T' separator.
type TravelEvent struct {
	Title string
	Start string
	End   string
}

// AllDay reports whether both ends of the event are date-only.
func (e TravelEvent) AllDay() bool {
	return !strings.Contains(e.Start, "T") && !strings.Contains(e.End, "T")
}

// SearchQuery holds every parameter of a single flight-price lookup.
// It is a value type with no identity beyond its fields; the full tuple,
// including CacheBust, doubles as the cache key.
type SearchQuery struct {
	Departure    string
	Destination  string
	OutboundDate string
	ReturnDate   string
	Stops        int
	CacheBust    int
}

// Key returns the cache key for this query.
func (q SearchQuery) Key() string {
	return fmt.Sprintf("%s:%s:%s:%s:%d:%d",
		q.Departure, q.Destination, q.OutboundDate, q.ReturnDate, q.Stops, q.CacheBust)
}

// SearchResult is one summary row per requested destination. Exactly one
// exists per destination in a batch, even on failure: then Error is set and
// the price fields stay nil. Rows are never mutated after creation.
type SearchResult struct {
	Event         string
	Departure     string
	Destination   string
	OutboundDate  string
	ReturnDate    string
	StopsFilter   string
	LowestPrice   *float64
	Currency      *string
	SampleAirline *string
	JSONFile      string
	Error         string
}

// Failed reports whether this row records a per-destination error.
func (r SearchResult) Failed() bool {
	return r.Error != ""
}

// FlightOption is a single itinerary flattened out of a raw search payload,
// used for the detailed per-flight view.
type FlightOption struct {
	Destination  string
	Airline      string
	FlightNumber string
	Price        *float64
	Duration     *float64
	Departure    string
	Arrival      string
	Layovers     int
}
