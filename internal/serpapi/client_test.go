package serpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"farewatch/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testQuery() models.SearchQuery {
	return models.SearchQuery{
		Departure:    "DFW",
		Destination:  "LAX",
		OutboundDate: "2026-07-10",
		ReturnDate:   "2026-07-14",
		Stops:        1,
	}
}

func TestSearchSendsAllQueryParameters(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"best_flights": []}`))
	}))
	defer server.Close()

	client := NewClient(testLogger(), "test-key", server.URL, 5*time.Second, time.Hour)
	defer client.Close()

	_, err := client.Search(context.Background(), testQuery())
	require.NoError(t, err)

	want := map[string]string{
		"engine":        "google_flights",
		"api_key":       "test-key",
		"departure_id":  "DFW",
		"arrival_id":    "LAX",
		"outbound_date": "2026-07-10",
		"return_date":   "2026-07-14",
		"hl":            "en",
		"gl":            "us",
		"currency":      "USD",
		"stops":         "1",
	}
	for key, value := range want {
		require.Equal(t, []string{value}, gotQuery[key], "query param %s", key)
	}
}

func TestSearchOmitsEmptyReturnDate(t *testing.T) {
	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(testLogger(), "test-key", server.URL, 5*time.Second, time.Hour)
	defer client.Close()

	q := testQuery()
	q.ReturnDate = ""
	_, err := client.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotContains(t, gotQuery, "return_date")
}

func TestSearchCachesIdenticalQueries(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"lowest_price": 123}`))
	}))
	defer server.Close()

	client := NewClient(testLogger(), "test-key", server.URL, 5*time.Second, time.Hour)
	defer client.Close()

	q := testQuery()
	first, err := client.Search(context.Background(), q)
	require.NoError(t, err)
	second, err := client.Search(context.Background(), q)
	require.NoError(t, err)

	require.Equal(t, int64(1), calls.Load(), "identical queries within the TTL should share one call")
	require.Equal(t, first, second)

	// Incrementing the cache-bust value forces a fresh call even with
	// otherwise-identical parameters.
	q.CacheBust++
	_, err = client.Search(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestSearchDoesNotCacheDistinctDestinations(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(testLogger(), "test-key", server.URL, 5*time.Second, time.Hour)
	defer client.Close()

	q := testQuery()
	_, err := client.Search(context.Background(), q)
	require.NoError(t, err)

	q.Destination = "JFK"
	_, err = client.Search(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestSearchReturnsStatusErrorOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown airport code", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(testLogger(), "test-key", server.URL, 5*time.Second, time.Hour)
	defer client.Close()

	_, err := client.Search(context.Background(), testQuery())
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Code)
	require.Contains(t, statusErr.Body, "unknown airport code")
}

func TestSearchDoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(testLogger(), "test-key", server.URL, 5*time.Second, time.Hour)
	defer client.Close()

	q := testQuery()
	_, err := client.Search(context.Background(), q)
	require.Error(t, err)

	_, err = client.Search(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, int64(2), calls.Load())
}

func TestCacheCollapsesConcurrentIdenticalQueries(t *testing.T) {
	var calls atomic.Int64
	cache := NewCache(time.Hour)
	defer cache.Close()

	release := make(chan struct{})
	fetch := func() (map[string]any, error) {
		calls.Add(1)
		<-release
		return map[string]any{"ok": true}, nil
	}

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, _, err := cache.GetOrFetch(context.Background(), "same-key", fetch)
			results <- err
		}()
	}

	// Let the goroutines pile up behind the single in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)

	for i := 0; i < 3; i++ {
		require.NoError(t, <-results)
	}
	require.Equal(t, int64(1), calls.Load())
}

func TestCacheExpiry(t *testing.T) {
	cache := NewCache(30 * time.Millisecond)
	defer cache.Close()

	fetchErr := errors.New("should not be called")
	fetched := 0
	fetch := func() (map[string]any, error) {
		fetched++
		return map[string]any{"n": fetched}, nil
	}

	_, hit, err := cache.GetOrFetch(context.Background(), "key", fetch)
	require.NoError(t, err)
	require.False(t, hit)

	_, hit, err = cache.GetOrFetch(context.Background(), "key", func() (map[string]any, error) {
		return nil, fetchErr
	})
	require.NoError(t, err)
	require.True(t, hit, "fresh entry should be served from cache")

	time.Sleep(50 * time.Millisecond)
	_, hit, err = cache.GetOrFetch(context.Background(), "key", fetch)
	require.NoError(t, err)
	require.False(t, hit, "expired entry should trigger a refetch")
	require.Equal(t, 2, fetched)
}
