package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"farewatch/internal/batch"
	"farewatch/internal/calendar"
	"farewatch/internal/config"
	"farewatch/internal/dates"
	"farewatch/internal/export"
	"farewatch/internal/extract"
	"farewatch/internal/models"
	"farewatch/internal/serpapi"
	"farewatch/internal/storage"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "farewatch",
		Usage: "Track flight prices to multiple destinations for your upcoming calendar trips.",
		Commands: []*cli.Command{
			eventsCommand(),
			searchCommand(),
			uploadCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List upcoming travel events with their normalized date ranges.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Value: "google", Usage: "Calendar source: google or caldav."},
			&cli.StringFlag{Name: "filter", Usage: "Only show events whose title contains this text."},
			&cli.IntFlag{Name: "days", Value: 365, Usage: "How far ahead to look, in days."},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			logger := setupLogger(cfg.LogLevel)

			source, err := newEventSource(c.Context, logger, cfg, c.String("source"))
			if err != nil {
				return err
			}

			events, err := source.UpcomingTravelEvents(c.Context, c.Int("days"), c.String("filter"))
			if err != nil {
				return fmt.Errorf("failed to read calendar events: %w", err)
			}
			if len(events) == 0 {
				fmt.Println("No upcoming travel events found.")
				return nil
			}

			for i, ev := range events {
				outbound, ret, err := dates.NormalizeEventDates(ev.Start, ev.End)
				if err != nil {
					logger.Warn("Skipping event with unusable dates", "title", ev.Title, "error", err)
					continue
				}
				dep, dest := calendar.ExtractAirportCodes(ev.Title, cfg.DefaultDeparture, cfg.DefaultDestinations[0])
				title := ev.Title
				if title == "" {
					title = "(untitled)"
				}
				fmt.Printf("%2d  %s -> %s  %s  [%s->%s]\n", i, outbound, ret, title, dep, dest)
			}
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Fan out price searches to every destination for a vacation window.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Value: "google", Usage: "Calendar source: google or caldav."},
			&cli.StringFlag{Name: "filter", Usage: "Only consider events whose title contains this text."},
			&cli.IntFlag{Name: "days", Value: 365, Usage: "How far ahead to look for events, in days."},
			&cli.StringFlag{Name: "event", Usage: "Event to take dates from: an index from 'events' or a title substring. Defaults to the next event."},
			&cli.StringFlag{Name: "outbound", Usage: "Explicit outbound date (YYYY-MM-DD); skips the calendar."},
			&cli.StringFlag{Name: "return", Usage: "Explicit return date (YYYY-MM-DD); only with --outbound."},
			&cli.StringFlag{Name: "departure", Usage: "Departure airport (IATA). Defaults to DEFAULT_DEPARTURE."},
			&cli.StringFlag{Name: "destinations", Usage: "Comma-separated destination airports, max 10. Defaults to DEFAULT_DESTINATIONS."},
			&cli.IntFlag{Name: "stops", Value: 0, Usage: "Stops filter 0-3: 0 any, 1 nonstop, 2 up to one stop, 3 up to two stops."},
			&cli.IntFlag{Name: "parallel", Value: 3, Usage: "Parallel requests (1-6)."},
			&cli.DurationFlag{Name: "delay", Value: 500 * time.Millisecond, Usage: "Delay between request submissions."},
			&cli.BoolFlag{Name: "force-refresh", Usage: "Bypass the response cache."},
			&cli.StringFlag{Name: "csv", Usage: "Write the summary CSV to this file or directory."},
			&cli.BoolFlag{Name: "show-options", Usage: "Also print the individual flight options."},
			&cli.StringFlag{Name: "airline", Usage: "Filter the flight options by airline name."},
			&cli.BoolFlag{Name: "upload", Usage: "Upload the combined results to object storage."},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Load()
			logger := setupLogger(cfg.LogLevel)

			if err := cfg.RequireSerpAPI(); err != nil {
				return err
			}

			stops := c.Int("stops")
			label, err := stopsLabel(stops)
			if err != nil {
				return err
			}

			eventTitle, outbound, ret, err := resolveDates(c, logger, cfg)
			if err != nil {
				return err
			}

			departure := c.String("departure")
			if departure == "" {
				departure = cfg.DefaultDeparture
			}
			destinations := cfg.DefaultDestinations
			if s := c.String("destinations"); s != "" {
				destinations = strings.Split(s, ",")
			}

			client := serpapi.NewClient(logger, cfg.SerpAPIKey, cfg.SerpAPIEndpoint, cfg.HTTPTimeout, cfg.CacheTTL)
			defer client.Close()

			orchestrator := batch.NewOrchestrator(logger, client, cfg.DataDir)
			summary, err := orchestrator.Run(c.Context, batch.Params{
				EventTitle:   eventTitle,
				Departure:    departure,
				Destinations: destinations,
				OutboundDate: outbound,
				ReturnDate:   ret,
				Stops:        stops,
				StopsLabel:   label,
				Parallelism:  c.Int("parallel"),
				Delay:        c.Duration("delay"),
				ForceRefresh: c.Bool("force-refresh"),
			})
			if err != nil {
				return err
			}

			fmt.Printf("%s -> %d destination(s), %s to %s (%s)\n\n",
				departure, len(summary.Rows), outbound, orDash(ret), label)
			if err := export.WriteTable(os.Stdout, summary.Rows); err != nil {
				return err
			}
			printErrors(summary.Rows)

			if c.Bool("show-options") {
				options := extract.FilterByAirline(summary.Options, c.String("airline"))
				fmt.Printf("\n%d flight option(s):\n", len(options))
				if err := export.WriteOptionsTable(os.Stdout, options); err != nil {
					return err
				}
			}

			if path := c.String("csv"); path != "" {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					path = filepath.Join(path, export.SummaryFileName(time.Now()))
				}
				if err := export.WriteCSVFile(path, summary.Rows); err != nil {
					return err
				}
				logger.Info("Wrote summary CSV", "path", path)
			}

			if c.Bool("upload") {
				uploadSummary(c.Context, logger, cfg, departure, outbound, ret, summary)
			}
			return nil
		},
	}
}

func uploadCommand() *cli.Command {
	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a JSON file (e.g. an audit file) to object storage.",
		ArgsUsage: "<file.json>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one file argument")
			}
			cfg := config.Load()
			logger := setupLogger(cfg.LogLevel)

			if err := cfg.RequireStorage(); err != nil {
				return err
			}
			uploader, err := storage.NewUploader(logger, storageOptions(cfg))
			if err != nil {
				return err
			}
			if err := uploader.EnsureBucket(c.Context); err != nil {
				return err
			}

			objectPath, err := uploader.UploadFile(c.Context, c.Args().First())
			if err != nil {
				return err
			}
			fmt.Printf("Uploaded to %s\n", objectPath)
			return nil
		},
	}
}

// resolveDates picks the vacation window: explicit --outbound/--return flags
// win, otherwise the chosen calendar event's normalized date pair.
func resolveDates(c *cli.Context, logger *slog.Logger, cfg config.Config) (string, string, string, error) {
	if outbound := c.String("outbound"); outbound != "" {
		return "(manual dates)", outbound, c.String("return"), nil
	}

	source, err := newEventSource(c.Context, logger, cfg, c.String("source"))
	if err != nil {
		return "", "", "", err
	}
	events, err := source.UpcomingTravelEvents(c.Context, c.Int("days"), c.String("filter"))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to read calendar events: %w", err)
	}
	if len(events) == 0 {
		return "", "", "", fmt.Errorf("no upcoming travel events found; pass --outbound to search without the calendar")
	}

	chosen, err := pickEvent(events, c.String("event"))
	if err != nil {
		return "", "", "", err
	}

	title := chosen.Title
	if title == "" {
		title = "(untitled)"
	}
	outbound, ret, err := dates.NormalizeEventDates(chosen.Start, chosen.End)
	if err != nil {
		return "", "", "", err
	}
	return title, outbound, ret, nil
}

// pickEvent selects an event by list index or title substring; an empty
// selector picks the next upcoming event.
func pickEvent(events []models.TravelEvent, selector string) (models.TravelEvent, error) {
	if selector == "" {
		return events[0], nil
	}
	if i, err := strconv.Atoi(selector); err == nil {
		if i < 0 || i >= len(events) {
			return models.TravelEvent{}, fmt.Errorf("event index %d out of range (%d events)", i, len(events))
		}
		return events[i], nil
	}
	for _, ev := range events {
		if strings.Contains(strings.ToLower(ev.Title), strings.ToLower(selector)) {
			return ev, nil
		}
	}
	return models.TravelEvent{}, fmt.Errorf("no event title matches %q", selector)
}

// printErrors shows the failed destinations as a separate sub-view.
func printErrors(rows []models.SearchResult) {
	var failed []models.SearchResult
	for _, row := range rows {
		if row.Failed() {
			failed = append(failed, row)
		}
	}
	if len(failed) == 0 {
		return
	}
	fmt.Printf("\n%d destination(s) failed:\n", len(failed))
	for _, row := range failed {
		fmt.Printf("  %s: %s\n", row.Destination, row.Error)
	}
}

// uploadSummary stores the combined result document. Failures are reported
// but never disturb the already-rendered results.
func uploadSummary(ctx context.Context, logger *slog.Logger, cfg config.Config, departure, outbound, ret string, summary *batch.Summary) {
	if err := cfg.RequireStorage(); err != nil {
		logger.Error("Upload skipped", "error", err)
		return
	}
	uploader, err := storage.NewUploader(logger, storageOptions(cfg))
	if err != nil {
		logger.Error("Upload failed", "error", err)
		return
	}
	if err := uploader.EnsureBucket(ctx); err != nil {
		logger.Error("Upload failed", "error", err)
		return
	}

	destinations := make([]string, 0, len(summary.Rows))
	for _, row := range summary.Rows {
		destinations = append(destinations, row.Destination)
	}
	doc := map[string]any{
		"run":          summary.RunID,
		"departure":    departure,
		"destinations": destinations,
		"dates":        map[string]string{"outbound": outbound, "return": ret},
		"results":      summary.Rows,
	}

	objectPath, err := uploader.UploadJSON(ctx, "multi_city_search", doc)
	if err != nil {
		logger.Error("Upload failed", "error", err)
		return
	}
	fmt.Printf("\nSaved results to %s\n", objectPath)
}

func newEventSource(ctx context.Context, logger *slog.Logger, cfg config.Config, name string) (calendar.Source, error) {
	switch name {
	case "google":
		if err := cfg.RequireGoogleCalendar(); err != nil {
			return nil, err
		}
		return calendar.NewGoogleClient(ctx, logger, cfg.ServiceAccountFile, cfg.CalendarID)
	case "caldav":
		if err := cfg.RequireCalDAV(); err != nil {
			return nil, err
		}
		return calendar.NewCalDAVClient(ctx, logger, cfg.CalDAVEndpoint, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVCalendarName)
	default:
		return nil, fmt.Errorf("unknown calendar source %q (use google or caldav)", name)
	}
}

func stopsLabel(stops int) (string, error) {
	switch stops {
	case 0:
		return "any", nil
	case 1:
		return "nonstop", nil
	case 2:
		return "up to 1 stop", nil
	case 3:
		return "up to 2 stops", nil
	default:
		return "", fmt.Errorf("stops must be between 0 and 3, got %d", stops)
	}
}

func storageOptions(cfg config.Config) storage.Options {
	return storage.Options{
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		UseSSL:     cfg.S3UseSSL,
		Bucket:     cfg.S3Bucket,
		PathPrefix: cfg.S3PathPrefix,
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
