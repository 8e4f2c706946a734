// Package config loads application configuration from the environment. The
// resulting Config is built once at startup and passed to every component
// that needs it; core logic never reads the environment itself.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the search surface, overridable via env.
var defaultDestinations = []string{
	"LAX", "NYC", "MIA", "LAS", "SEA", "DEN", "ORD", "BOS", "SFO", "ATL",
}

// Config holds all application configuration values.
type Config struct {
	// SerpAPI
	SerpAPIKey      string
	SerpAPIEndpoint string

	// Google Calendar
	ServiceAccountFile string
	CalendarID         string

	// CalDAV (alternative event source)
	CalDAVEndpoint     string
	CalDAVUsername     string
	CalDAVPassword     string
	CalDAVCalendarName string

	// Object storage
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
	S3UseSSL     bool
	S3Bucket     string
	S3PathPrefix string

	// Search defaults
	DefaultDeparture    string
	DefaultDestinations []string

	DataDir     string
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
	LogLevel    string
}

// Load builds a Config from the environment. Values have working defaults
// where one exists; credential checks happen per command via the Require
// methods so that only the operations that need a collaborator fail without
// it.
func Load() Config {
	return Config{
		SerpAPIKey:      os.Getenv("SERPAPI_KEY"),
		SerpAPIEndpoint: getEnv("SERPAPI_ENDPOINT", "https://serpapi.com/search.json"),

		ServiceAccountFile: getEnv("SERVICE_ACCOUNT_FILE", "service-account.json"),
		CalendarID:         os.Getenv("CALENDAR_ID"),

		CalDAVEndpoint:     os.Getenv("CALDAV_ENDPOINT"),
		CalDAVUsername:     os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:     os.Getenv("CALDAV_PASSWORD"),
		CalDAVCalendarName: os.Getenv("CALDAV_CALENDAR_NAME"),

		S3Endpoint:   os.Getenv("S3_ENDPOINT"),
		S3AccessKey:  os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:  os.Getenv("S3_SECRET_KEY"),
		S3UseSSL:     getBool("S3_USE_SSL", true),
		S3Bucket:     os.Getenv("S3_BUCKET"),
		S3PathPrefix: getEnv("S3_PATH_PREFIX", "serpapi_results/"),

		DefaultDeparture:    getEnv("DEFAULT_DEPARTURE", "DFW"),
		DefaultDestinations: getList("DEFAULT_DESTINATIONS", defaultDestinations),

		DataDir:     getEnv("DATA_DIR", "data"),
		CacheTTL:    getDuration("CACHE_TTL", time.Hour),
		HTTPTimeout: getDuration("HTTP_TIMEOUT", 60*time.Second),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// RequireSerpAPI checks the pricing-API credentials. Missing credentials
// are fatal to the session before any partial operation is attempted.
func (c Config) RequireSerpAPI() error {
	if c.SerpAPIKey == "" {
		return errors.New("SERPAPI_KEY is not set")
	}
	return nil
}

// RequireGoogleCalendar checks the calendar collaborator's identity.
func (c Config) RequireGoogleCalendar() error {
	if c.CalendarID == "" {
		return errors.New("CALENDAR_ID is not set")
	}
	if _, err := os.Stat(c.ServiceAccountFile); err != nil {
		return errors.New("service account file not found; set SERVICE_ACCOUNT_FILE")
	}
	return nil
}

// RequireCalDAV checks the CalDAV event-source settings.
func (c Config) RequireCalDAV() error {
	if c.CalDAVEndpoint == "" || c.CalDAVUsername == "" || c.CalDAVPassword == "" || c.CalDAVCalendarName == "" {
		return errors.New("CALDAV_ENDPOINT, CALDAV_USERNAME, CALDAV_PASSWORD and CALDAV_CALENDAR_NAME must all be set")
	}
	return nil
}

// RequireStorage checks the object-storage settings.
func (c Config) RequireStorage() error {
	if c.S3Endpoint == "" || c.S3AccessKey == "" || c.S3SecretKey == "" || c.S3Bucket == "" {
		return errors.New("S3_ENDPOINT, S3_ACCESS_KEY, S3_SECRET_KEY and S3_BUCKET must all be set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
