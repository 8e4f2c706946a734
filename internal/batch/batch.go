// Package batch fans a flight-price search out across destinations and
// assembles the per-destination results into a sorted summary.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"farewatch/internal/extract"
	"farewatch/internal/models"
)

const (
	// MaxDestinations caps how many destinations a single batch may query.
	MaxDestinations = 10
	// MaxParallelism caps the worker pool size.
	MaxParallelism = 6
)

// Fetcher is the per-destination price lookup the orchestrator fans out.
type Fetcher interface {
	Search(ctx context.Context, q models.SearchQuery) (map[string]any, error)
}

// Params describes one batch run.
type Params struct {
	EventTitle   string
	Departure    string
	Destinations []string
	OutboundDate string
	ReturnDate   string
	Stops        int
	StopsLabel   string
	Parallelism  int
	Delay        time.Duration
	ForceRefresh bool
}

// Summary is the outcome of a batch run: one row per requested destination
// plus the flattened flight options for the detail view.
type Summary struct {
	RunID   string
	Rows    []models.SearchResult
	Options []models.FlightOption
}

// Orchestrator submits destination fetches to a bounded worker pool and
// collects the results. Per-destination failures are isolated: they become
// rows with the error field set and never abort the batch.
type Orchestrator struct {
	fetcher Fetcher
	logger  *slog.Logger
	dataDir string
}

// NewOrchestrator creates a new Orchestrator. Raw payloads are written to
// dataDir as an audit trail, one JSON file per destination.
func NewOrchestrator(logger *slog.Logger, fetcher Fetcher, dataDir string) *Orchestrator {
	return &Orchestrator{
		fetcher: fetcher,
		logger:  logger,
		dataDir: dataDir,
	}
}

// Run executes one batch. The destinations list is cleaned, validated and
// capped before fan-out; the returned rows are sorted by lowest price
// ascending with unpriced rows last, ties broken by destination.
func (o *Orchestrator) Run(ctx context.Context, p Params) (*Summary, error) {
	departure := strings.ToUpper(strings.TrimSpace(p.Departure))
	if err := ValidateAirportCode(departure); err != nil {
		return nil, fmt.Errorf("invalid departure: %w", err)
	}

	destinations := CleanDestinations(p.Destinations)
	if len(destinations) == 0 {
		return nil, errors.New("at least one destination is required")
	}
	for _, dest := range destinations {
		if err := ValidateAirportCode(dest); err != nil {
			return nil, fmt.Errorf("invalid destination: %w", err)
		}
	}

	if err := os.MkdirAll(o.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	parallelism := p.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > MaxParallelism {
		parallelism = MaxParallelism
	}

	cacheBust := 0
	if p.ForceRefresh {
		cacheBust = 1
	}

	runID := uuid.New().String()[:8]
	o.logger.Info("Starting batch search",
		"run", runID,
		"departure", departure,
		"destinations", len(destinations),
		"parallelism", parallelism)

	rows := make([]models.SearchResult, len(destinations))
	optionsPerDest := make([][]models.FlightOption, len(destinations))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, dest := range destinations {
		i, dest := i, dest
		// Submission throttle only: it spaces out new work without
		// blocking already-completed fetches.
		if i > 0 && p.Delay > 0 {
			time.Sleep(p.Delay)
		}

		g.Go(func() error {
			row := models.SearchResult{
				Event:        p.EventTitle,
				Departure:    departure,
				Destination:  dest,
				OutboundDate: p.OutboundDate,
				ReturnDate:   p.ReturnDate,
				StopsFilter:  p.StopsLabel,
			}

			payload, err := o.fetcher.Search(gctx, models.SearchQuery{
				Departure:    departure,
				Destination:  dest,
				OutboundDate: p.OutboundDate,
				ReturnDate:   p.ReturnDate,
				Stops:        p.Stops,
				CacheBust:    cacheBust,
			})
			if err != nil {
				o.logger.Error("Destination search failed", "run", runID, "destination", dest, "error", err)
				row.Error = err.Error()
				rows[i] = row
				return nil
			}

			auditPath, err := o.saveAudit(payload, runID, departure, dest)
			if err != nil {
				o.logger.Error("Failed to write audit file", "run", runID, "destination", dest, "error", err)
				row.Error = err.Error()
				rows[i] = row
				return nil
			}
			row.JSONFile = auditPath

			row.LowestPrice, row.Currency, row.SampleAirline = extract.LowestPrice(payload)
			if row.LowestPrice != nil && row.Currency == nil {
				usd := "USD"
				row.Currency = &usd
			}
			optionsPerDest[i] = extract.Options(dest, payload)

			rows[i] = row
			return nil
		})
	}

	// Worker errors are converted into rows, so the join never fails.
	_ = g.Wait()

	sortRows(rows)

	var options []models.FlightOption
	for _, opts := range optionsPerDest {
		options = append(options, opts...)
	}

	o.logger.Info("Batch search finished", "run", runID, "rows", len(rows), "options", len(options))
	return &Summary{RunID: runID, Rows: rows, Options: options}, nil
}

// saveAudit writes one raw payload to the data directory. The file is an
// audit trail, not authoritative storage.
func (o *Orchestrator) saveAudit(payload map[string]any, runID, departure, dest string) (string, error) {
	name := fmt.Sprintf("%s_%s_%s_to_%s.json",
		time.Now().Format("20060102_150405"), runID, departure, dest)
	path := filepath.Join(o.dataDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create audit file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return "", fmt.Errorf("failed to encode audit file: %w", err)
	}
	return path, nil
}

// sortRows orders the summary for display: lowest price ascending, rows
// without a price last, destination as tie-breaker.
func sortRows(rows []models.SearchResult) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].LowestPrice, rows[j].LowestPrice
		switch {
		case a == nil && b == nil:
			return rows[i].Destination < rows[j].Destination
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return rows[i].Destination < rows[j].Destination
		}
	})
}

// CleanDestinations trims, uppercases and de-blanks the user's destination
// list, preserving order, and caps it at MaxDestinations.
func CleanDestinations(raw []string) []string {
	cleaned := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.ToUpper(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		cleaned = append(cleaned, d)
		if len(cleaned) == MaxDestinations {
			break
		}
	}
	return cleaned
}

// ValidateAirportCode checks for a 3-letter IATA code.
func ValidateAirportCode(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("airport code %q must be 3 letters", code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("airport code %q must be alphabetic", code)
		}
	}
	return nil
}
