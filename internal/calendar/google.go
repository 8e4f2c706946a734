package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"farewatch/internal/models"
)

// GoogleClient reads travel events from the Google Calendar API using a
// service account identity.
type GoogleClient struct {
	service    *gcal.Service
	calendarID string
	logger     *slog.Logger
}

// NewGoogleClient creates a new Google Calendar client from a service
// account key file with read-only calendar scope.
func NewGoogleClient(ctx context.Context, logger *slog.Logger, serviceAccountFile, calendarID string) (*GoogleClient, error) {
	b, err := os.ReadFile(serviceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(b, gcal.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account file: %w", err)
	}

	service, err := gcal.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &GoogleClient{service: service, calendarID: calendarID, logger: logger}, nil
}

// UpcomingTravelEvents fetches singular upcoming events ordered by start
// time. A listing failure is fatal to the session that requested it.
func (c *GoogleClient) UpcomingTravelEvents(ctx context.Context, days int, query string) ([]models.TravelEvent, error) {
	c.logger.Debug("Fetching upcoming events", "calendarID", c.calendarID, "days", days)
	now := time.Now().UTC()
	tmin := now.Format(time.RFC3339)
	tmax := now.Add(time.Duration(days) * 24 * time.Hour).Format(time.RFC3339)

	events, err := c.service.Events.List(c.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(tmin).
		TimeMax(tmax).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	travelEvents := c.toTravelEvents(events.Items, query)
	c.logger.Info("Fetched events from Google Calendar", "count", len(travelEvents), "calendarID", c.calendarID)
	return travelEvents, nil
}

// toTravelEvents converts Google Calendar events to the internal model,
// keeping the raw date-or-datetime strings so all-day events stay
// distinguishable downstream.
func (c *GoogleClient) toTravelEvents(items []*gcal.Event, query string) []models.TravelEvent {
	var travelEvents []models.TravelEvent
	for _, item := range items {
		if item.Start == nil || item.End == nil {
			continue
		}

		start := item.Start.DateTime
		if start == "" {
			start = item.Start.Date
		}
		end := item.End.DateTime
		if end == "" {
			end = item.End.Date
		}
		if start == "" || end == "" {
			continue
		}

		if !matchesQuery(item.Summary, query) {
			continue
		}

		travelEvents = append(travelEvents, models.TravelEvent{
			Title: item.Summary,
			Start: start,
			End:   end,
		})
	}
	return travelEvents
}
