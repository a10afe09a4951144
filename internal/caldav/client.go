package caldav

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"slotcal/internal/ics"
	"slotcal/internal/models"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
)

const (
	// DefaultEndpoint is used when no endpoint is configured.
	DefaultEndpoint = "https://caldav.icloud.com/"
)

// customTransport handles adding Basic Auth and custom headers to requests.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "slotcal/1.0")
	return t.Transport.RoundTrip(req)
}

// Config describes the CalDAV account and calendar to write to.
type Config struct {
	Endpoint     string
	Username     string
	Password     string
	CalendarName string
	ICS          ics.Options
}

// Client uploads booked events to a calendar on a CalDAV server.
type Client struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	calendarPath string
	opts         ics.Options
}

// NewClient connects to the server and looks up the named calendar.
func NewClient(ctx context.Context, logger *slog.Logger, cfg Config) (*Client, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	transport := &customTransport{
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: http.DefaultTransport,
	}
	httpClient := &http.Client{Transport: transport}

	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}

	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	c := &Client{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		opts:         cfg.ICS,
	}

	logger.Info("Finding CalDAV calendar", "calendarName", cfg.CalendarName, "endpoint", endpoint)
	calendarPath, err := c.findCalendar(ctx, cfg.CalendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", cfg.CalendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return c, nil
}

// PushEvent creates or replaces the calendar object of a booked event.
func (c *Client) PushEvent(ctx context.Context, event models.Event) error {
	c.logger.Debug("Pushing event to CalDAV", "eventTitle", event.Title, "id", event.ID)

	cal := ics.NewCalendar(c.opts, event)

	writer, err := c.webdavClient.Create(ctx, c.objectPath(event.ID))
	if err != nil {
		return fmt.Errorf("failed to create event on CalDAV server: %w", err)
	}

	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		writer.Close()
		return fmt.Errorf("failed to encode event to iCal format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to upload event: %w", err)
	}

	c.logger.Info("Successfully pushed event", "eventTitle", event.Title, "date", event.Date)
	return nil
}

// objectPath is the server path of an event's calendar object.
func (c *Client) objectPath(id string) string {
	return path.Join(c.calendarPath, fmt.Sprintf("%s.ics", id))
}

// findCalendar discovers the user's calendars and returns the path of the
// one with the matching name.
func (c *Client) findCalendar(ctx context.Context, name string) (string, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal path: %w", err)
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home set: %w", err)
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return "", fmt.Errorf("failed to find calendars: %w", err)
	}

	for _, cal := range calendars {
		if cal.Name == name {
			return strings.TrimSuffix(cal.Path, "/"), nil
		}
	}

	return "", fmt.Errorf("no calendar found with name '%s'", name)
}
