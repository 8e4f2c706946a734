package batch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farewatch/internal/models"
	"farewatch/internal/serpapi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubFetcher serves canned payloads or errors per destination.
type stubFetcher struct {
	mu       sync.Mutex
	payloads map[string]map[string]any
	errs     map[string]error
	queries  []models.SearchQuery

	inflight    atomic.Int64
	maxInflight atomic.Int64
	delay       time.Duration
}

func (f *stubFetcher) Search(ctx context.Context, q models.SearchQuery) (map[string]any, error) {
	cur := f.inflight.Add(1)
	for {
		max := f.maxInflight.Load()
		if cur <= max || f.maxInflight.CompareAndSwap(max, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.inflight.Add(-1)

	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if err, ok := f.errs[q.Destination]; ok {
		return nil, err
	}
	return f.payloads[q.Destination], nil
}

func pricedPayload(price float64, airline string) map[string]any {
	return map[string]any{
		"best_flights": []any{
			map[string]any{
				"price":   price,
				"airline": airline,
				"flights": []any{
					map[string]any{"airline": airline, "flight_number": "XX 1"},
				},
			},
		},
	}
}

func baseParams(destinations ...string) Params {
	return Params{
		EventTitle:   "Summer break",
		Departure:    "DFW",
		Destinations: destinations,
		OutboundDate: "2026-07-10",
		ReturnDate:   "2026-07-14",
		Stops:        0,
		StopsLabel:   "any",
		Parallelism:  3,
	}
}

func TestRunIsolatesPerDestinationFailures(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]map[string]any{
			"LAX": pricedPayload(310, "Delta"),
			"JFK": pricedPayload(205, "United"),
		},
		errs: map[string]error{
			"XXX": &serpapi.StatusError{Code: http.StatusNotFound, Body: "unknown airport"},
		},
	}
	o := NewOrchestrator(testLogger(), fetcher, t.TempDir())

	summary, err := o.Run(context.Background(), baseParams("LAX", "JFK", "XXX"))
	require.NoError(t, err, "one destination failing must not abort the batch")
	require.Len(t, summary.Rows, 3)

	// Priced rows first in ascending price order, the failed one last.
	require.Equal(t, "JFK", summary.Rows[0].Destination)
	require.Equal(t, 205.0, *summary.Rows[0].LowestPrice)
	require.Equal(t, "LAX", summary.Rows[1].Destination)
	require.Equal(t, 310.0, *summary.Rows[1].LowestPrice)

	failed := summary.Rows[2]
	require.Equal(t, "XXX", failed.Destination)
	require.True(t, failed.Failed())
	require.Contains(t, failed.Error, "404")
	require.Nil(t, failed.LowestPrice)
	require.Nil(t, failed.Currency)
	require.Nil(t, failed.SampleAirline)
	require.Empty(t, failed.JSONFile)

	for _, row := range summary.Rows[:2] {
		require.Empty(t, row.Error)
		require.FileExists(t, row.JSONFile)
		require.Equal(t, "Summer break", row.Event)
		require.Equal(t, "any", row.StopsFilter)
	}
}

func TestRunSortsUnpricedSuccessBeforeNothing(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]map[string]any{
			"LAX": pricedPayload(310, "Delta"),
			// Legitimate response with nothing parseable: no error, no price.
			"SEA": {"search_metadata": map[string]any{"status": "Success"}},
		},
	}
	o := NewOrchestrator(testLogger(), fetcher, t.TempDir())

	summary, err := o.Run(context.Background(), baseParams("SEA", "LAX"))
	require.NoError(t, err)
	require.Len(t, summary.Rows, 2)

	require.Equal(t, "LAX", summary.Rows[0].Destination)
	require.Equal(t, "SEA", summary.Rows[1].Destination)
	require.Nil(t, summary.Rows[1].LowestPrice)
	require.Empty(t, summary.Rows[1].Error, "a parse miss is not an error")
	require.FileExists(t, summary.Rows[1].JSONFile)
}

func TestRunCapsDestinationsAndCleansInput(t *testing.T) {
	payloads := map[string]map[string]any{}
	raw := []string{" lax ", "", "jfk", "MIA", "SEA", "DEN", "ORD", "BOS", "SFO", "ATL", "LAS", "PHX"}
	for _, d := range CleanDestinations(raw) {
		payloads[d] = pricedPayload(100, "Delta")
	}
	fetcher := &stubFetcher{payloads: payloads}
	o := NewOrchestrator(testLogger(), fetcher, t.TempDir())

	summary, err := o.Run(context.Background(), baseParams(raw...))
	require.NoError(t, err)
	require.Len(t, summary.Rows, MaxDestinations)

	seen := map[string]bool{}
	for _, row := range summary.Rows {
		seen[row.Destination] = true
	}
	require.True(t, seen["LAX"], "codes should be trimmed and uppercased")
	require.False(t, seen["PHX"], "the eleventh destination should be dropped")
}

func TestRunRejectsInvalidAirportCodes(t *testing.T) {
	o := NewOrchestrator(testLogger(), &stubFetcher{}, t.TempDir())

	p := baseParams("LAX")
	p.Departure = "DALLAS"
	_, err := o.Run(context.Background(), p)
	require.Error(t, err)

	p = baseParams("LA1")
	_, err = o.Run(context.Background(), p)
	require.Error(t, err)

	p = baseParams()
	_, err = o.Run(context.Background(), p)
	require.Error(t, err)
}

func TestRunBoundsParallelism(t *testing.T) {
	payloads := map[string]map[string]any{}
	dests := []string{"LAX", "JFK", "MIA", "SEA", "DEN", "ORD", "BOS", "SFO"}
	for _, d := range dests {
		payloads[d] = pricedPayload(100, "Delta")
	}
	fetcher := &stubFetcher{payloads: payloads, delay: 30 * time.Millisecond}
	o := NewOrchestrator(testLogger(), fetcher, t.TempDir())

	p := baseParams(dests...)
	p.Parallelism = 2
	_, err := o.Run(context.Background(), p)
	require.NoError(t, err)
	require.LessOrEqual(t, fetcher.maxInflight.Load(), int64(2))
}

func TestRunForceRefreshSetsCacheBust(t *testing.T) {
	fetcher := &stubFetcher{payloads: map[string]map[string]any{"LAX": pricedPayload(100, "Delta")}}
	o := NewOrchestrator(testLogger(), fetcher, t.TempDir())

	p := baseParams("LAX")
	p.ForceRefresh = true
	_, err := o.Run(context.Background(), p)
	require.NoError(t, err)

	require.Len(t, fetcher.queries, 1)
	require.Equal(t, 1, fetcher.queries[0].CacheBust)
	require.Equal(t, "2026-07-10", fetcher.queries[0].OutboundDate)
	require.Equal(t, "2026-07-14", fetcher.queries[0].ReturnDate)
}

func TestRunCollectsOptionsInSubmissionOrder(t *testing.T) {
	fetcher := &stubFetcher{
		payloads: map[string]map[string]any{
			"JFK": pricedPayload(205, "United"),
			"LAX": pricedPayload(310, "Delta"),
		},
	}
	o := NewOrchestrator(testLogger(), fetcher, t.TempDir())

	summary, err := o.Run(context.Background(), baseParams("LAX", "JFK"))
	require.NoError(t, err)
	require.Len(t, summary.Options, 2)
	require.Equal(t, "LAX", summary.Options[0].Destination)
	require.Equal(t, "JFK", summary.Options[1].Destination)
}

func TestValidateAirportCode(t *testing.T) {
	require.NoError(t, ValidateAirportCode("DFW"))
	require.Error(t, ValidateAirportCode("dfw"), "codes are validated after uppercasing")
	require.Error(t, ValidateAirportCode("DF"))
	require.Error(t, ValidateAirportCode("DFWX"))
	require.Error(t, ValidateAirportCode("D1W"))
}
