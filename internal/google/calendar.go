package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"slotcal/internal/models"
	"slotcal/internal/slots"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	credentialsFile = "credentials.json"
)

// CalendarClient provides a client for interacting with the Google Calendar API.
type CalendarClient struct {
	service *calendar.Service
	logger  *slog.Logger
}

// NewClient creates a new Google Calendar client.
// It handles loading credentials and setting up an authenticated HTTP client.
// It supports multiple accounts by looking for token files like token-user1.json, token-user2.json, etc.
// The accountName is used to find the correct token file.
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret, accountName string) (*CalendarClient, error) {
	config, err := getOAuthConfig(clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to get OAuth config: %w", err)
	}

	tokenFile := fmt.Sprintf("token-%s.json", accountName)
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load token for account %s: %w. Please run the 'auth' command first", accountName, err)
	}

	client := config.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &CalendarClient{service: service, logger: logger}, nil
}

// GetUpcomingEvents fetches the timed events of the next days from the
// specified calendar and converts them into proposals in loc.
func (c *CalendarClient) GetUpcomingEvents(ctx context.Context, calendarID string, days int, loc *time.Location) (models.Batch, error) {
	c.logger.Debug("Fetching upcoming events", "calendarID", calendarID, "days", days)
	now := time.Now().UTC()
	tmax := now.Add(time.Duration(days) * 24 * time.Hour).Format(time.RFC3339)
	tmin := now.Format(time.RFC3339)

	events, err := c.service.Events.List(calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(tmin).
		TimeMax(tmax).
		OrderBy("startTime").
		Do()
	if err != nil {
		return models.Batch{}, fmt.Errorf("failed to retrieve events: %w", err)
	}

	c.logger.Info("Successfully fetched events from Google Calendar", "count", len(events.Items), "calendarID", calendarID)
	return toProposals(events.Items, calendarID, loc), nil
}

// toProposals converts Google Calendar events to booking proposals.
func toProposals(googleEvents []*calendar.Event, source string, loc *time.Location) models.Batch {
	var batch models.Batch
	for _, item := range googleEvents {
		// Skip events without a start time (e.g., all-day events without a specific time)
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
			continue
		}

		startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			batch.Skipped = append(batch.Skipped, fmt.Sprintf("%s: invalid start: %v", item.Summary, err))
			continue
		}
		endTime, err := time.Parse(time.RFC3339, item.End.DateTime)
		if err != nil {
			batch.Skipped = append(batch.Skipped, fmt.Sprintf("%s: invalid end: %v", item.Summary, err))
			continue
		}

		date, from, to, err := slots.Cover(startTime.In(loc), endTime.In(loc))
		if err != nil {
			batch.Skipped = append(batch.Skipped, fmt.Sprintf("%s: %v", item.Summary, err))
			continue
		}

		p := models.Proposal{
			SourceID: item.ICalUID, // Stable across calendars sharing the event
			Source:   fmt.Sprintf("google-%s", source),
			Details: models.EventDetails{
				Title:       item.Summary,
				Description: item.Description,
				Date:        date,
				Start:       from,
				End:         to,
			},
		}
		if p.SourceID == "" {
			p.SourceID = item.Id
		}
		if item.Reminders != nil {
			for _, o := range item.Reminders.Overrides {
				p.Reminders = append(p.Reminders, toReminder(o, startTime.In(loc)))
			}
		}
		batch.Proposals = append(batch.Proposals, p)
	}
	return batch
}

// toReminder maps a reminder override; popups become system reminders.
func toReminder(o *calendar.EventReminder, start time.Time) models.Reminder {
	kind := models.ReminderSystem
	if o.Method == "email" {
		kind = models.ReminderEmail
	}
	return models.Reminder{At: start.Add(-time.Duration(o.Minutes) * time.Minute), Kind: kind}
}

// GetOAuthConfigForAuthFlow is used by the auth command to get the config for the web flow.
func GetOAuthConfigForAuthFlow(clientID, clientSecret string) (*oauth2.Config, error) {
	return getOAuthConfig(clientID, clientSecret)
}

// getOAuthConfig reads credentials and returns an OAuth2 config.
// It prioritizes environment variables over a local credentials.json file.
func getOAuthConfig(clientID, clientSecret string) (*oauth2.Config, error) {
	if clientID != "" && clientSecret != "" {
		return &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		}, nil
	}

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		if _, ok := err.(*fs.PathError); ok {
			return nil, fmt.Errorf("credentials.json not found. Please provide GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars or place credentials.json in the root directory")
		}
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	config.RedirectURL = "urn:ietf:wg:oauth:2.0:oob" // For desktop app flow
	return config, nil
}

// TokenFromWeb is called by the auth flow to retrieve a token.
func TokenFromWeb(config *oauth2.Config, authCode string) (*oauth2.Token, error) {
	return config.Exchange(context.Background(), authCode)
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(token); err != nil {
		f.Close()
		return fmt.Errorf("unable to encode token: %w", err)
	}
	return f.Close()
}

// tokenFromFile retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// DiscoverGoogleCalendars finds all calendars associated with the authenticated account.
func (c *CalendarClient) DiscoverGoogleCalendars() ([]string, error) {
	list, err := c.service.CalendarList.List().Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	var calendarIDs []string
	for _, item := range list.Items {
		calendarIDs = append(calendarIDs, item.Id)
	}
	return calendarIDs, nil
}

// GetTokenAccounts lists the account names that have a saved token file.
func GetTokenAccounts() ([]string, error) {
	files, err := os.ReadDir(".")
	if err != nil {
		return nil, err
	}

	var accounts []string
	for _, file := range files {
		if strings.HasPrefix(file.Name(), "token-") && strings.HasSuffix(file.Name(), ".json") {
			accountName := strings.TrimSuffix(strings.TrimPrefix(file.Name(), "token-"), ".json")
			accounts = append(accounts, accountName)
		}
	}
	return accounts, nil
}

// Source offers the upcoming events of every configured calendar of every
// authenticated account for booking.
type Source struct {
	Clients     []*CalendarClient
	CalendarIDs []string // Discovered per account when empty
	Days        int
	Location    *time.Location
	Logger      *slog.Logger
}

func (s *Source) Name() string { return "google" }

// FetchProposals collects the upcoming events of all calendars. A calendar
// that cannot be read is logged and skipped.
func (s *Source) FetchProposals(ctx context.Context) (models.Batch, error) {
	var all models.Batch
	for _, client := range s.Clients {
		calendarIDs := s.CalendarIDs
		if len(calendarIDs) == 0 {
			ids, err := client.DiscoverGoogleCalendars()
			if err != nil {
				s.Logger.Error("Could not discover google calendars", "error", err)
				continue
			}
			calendarIDs = ids
		}

		for _, calID := range calendarIDs {
			batch, err := client.GetUpcomingEvents(ctx, calID, s.Days, s.Location)
			if err != nil {
				s.Logger.Error("Could not fetch events for a google calendar", "calendarID", calID, "error", err)
				continue
			}
			all.Proposals = append(all.Proposals, batch.Proposals...)
			all.Skipped = append(all.Skipped, batch.Skipped...)
		}
	}
	return all, nil
}
