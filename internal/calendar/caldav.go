package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"

	"farewatch/internal/models"
)

// basicAuthTransport adds Basic Auth and a user agent to every request.
type basicAuthTransport struct {
	username  string
	password  string
	transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("User-Agent", "farewatch/1.0")
	return t.transport.RoundTrip(req)
}

// CalDAVClient reads travel events from a CalDAV server, as an alternative
// to the Google Calendar source.
type CalDAVClient struct {
	client       *caldav.Client
	logger       *slog.Logger
	calendarPath string
}

// NewCalDAVClient creates a CalDAVClient and discovers the calendar with
// the given display name.
func NewCalDAVClient(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string) (*CalDAVClient, error) {
	httpClient := &http.Client{
		Transport: &basicAuthTransport{
			username:  username,
			password:  password,
			transport: http.DefaultTransport,
		},
	}

	client, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	c := &CalDAVClient{client: client, logger: logger}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarPath, err := c.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar %q: %w", calendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// UpcomingTravelEvents queries VEVENTs in [now, now+days*24h) and returns
// them ordered by start time.
func (c *CalDAVClient) UpcomingTravelEvents(ctx context.Context, days int, query string) ([]models.TravelEvent, error) {
	now := time.Now().UTC()
	end := now.Add(time.Duration(days) * 24 * time.Hour)

	calQuery := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: now,
				End:   end,
			}},
		},
	}

	objects, err := c.client.QueryCalendar(ctx, c.calendarPath, calQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}

	type startedEvent struct {
		event models.TravelEvent
		start time.Time
	}
	var found []startedEvent

	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			travelEvent, start, ok := c.toTravelEvent(ev)
			if !ok || !matchesQuery(travelEvent.Title, query) {
				continue
			}
			found = append(found, startedEvent{event: travelEvent, start: start})
		}
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].start.Before(found[j].start)
	})

	events := make([]models.TravelEvent, 0, len(found))
	for _, fe := range found {
		events = append(events, fe.event)
	}

	c.logger.Info("Fetched events from CalDAV calendar", "count", len(events))
	return events, nil
}

// toTravelEvent converts a VEVENT to the internal model, rendering all-day
// dates as plain ISO dates so the exclusive-end convention survives.
func (c *CalDAVClient) toTravelEvent(ev ical.Event) (models.TravelEvent, time.Time, bool) {
	start, err := ev.DateTimeStart(time.UTC)
	if err != nil {
		c.logger.Debug("Skipping event without usable start", "error", err)
		return models.TravelEvent{}, time.Time{}, false
	}
	end, err := ev.DateTimeEnd(time.UTC)
	if err != nil {
		c.logger.Debug("Skipping event without usable end", "error", err)
		return models.TravelEvent{}, time.Time{}, false
	}

	title := ""
	if prop := ev.Props.Get(ical.PropSummary); prop != nil {
		title = prop.Value
	}

	return models.TravelEvent{
		Title: title,
		Start: formatStamp(ev.Props.Get(ical.PropDateTimeStart), start),
		End:   formatStamp(ev.Props.Get(ical.PropDateTimeEnd), end),
	}, start, true
}

// formatStamp renders a DTSTART/DTEND value as a date or datetime string
// depending on the property's declared value type.
func formatStamp(prop *ical.Prop, t time.Time) string {
	if prop != nil && prop.ValueType() == ical.ValueDate {
		return t.Format("2006-01-02")
	}
	return t.Format(time.RFC3339)
}

// findCalendar walks principal -> home set -> calendars and matches by name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.client.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.client.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name %q", name)
}
