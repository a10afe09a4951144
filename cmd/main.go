package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"slotcal/internal/agenda"
	"slotcal/internal/caldav"
	"slotcal/internal/calendar"
	"slotcal/internal/google"
	"slotcal/internal/ics"
	"slotcal/internal/models"
	"slotcal/internal/slots"
	"slotcal/internal/syncer"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"golang.org/x/term"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "slotcal",
		Usage: "Book events into 15 minute slots without overlaps, then export or push them.",
		Commands: []*cli.Command{
			authCommand(),
			syncCommand(),
			freeCommand(),
			eventsCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			logger := setupLogger("info")
			logger.Info("Starting Google authentication flow.")

			config, err := google.GetOAuthConfigForAuthFlow(os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"))
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(config, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			tokenFile := "token-" + accountName + ".json"

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

// sourceFlags select where proposals come from. They are shared by every
// command that fills a calendar.
func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "agenda", Usage: "YAML agenda file to book (repeatable)."},
		&cli.StringSliceFlag{Name: "ics", Usage: "iCalendar file to book (repeatable)."},
		&cli.BoolFlag{Name: "google", Usage: "Book upcoming events from Google Calendar."},
		&cli.IntFlag{Name: "days", Value: 7, Usage: "How many days of Google events to fetch."},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Book all sources, report conflicts, then export and/or push the booked events.",
		Flags: append(sourceFlags(),
			&cli.StringFlag{Name: "export", Usage: "Write the booked events to this .ics file."},
			&cli.BoolFlag{Name: "push", Usage: "Upload booked events to the CalDAV calendar."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be pushed without making changes."},
			&cli.StringFlag{Name: "state", Value: syncer.DefaultStateFile, Usage: "File recording pushed events."},
		),
		Action: func(c *cli.Context) error {
			logger := setupLogger(logLevel())

			if c.Bool("dry-run") {
				logger.Info("Performing a dry run. No changes will be made.")
			}

			sources, err := buildSources(c, logger)
			if err != nil {
				return err
			}

			var sink syncer.Sink
			if c.Bool("push") {
				client, err := caldav.NewClient(c.Context, logger, caldavConfig())
				if err != nil {
					return fmt.Errorf("failed to create caldav client: %w", err)
				}
				sink = client
			}

			cal := calendar.New(logger)
			s, err := syncer.NewSyncer(logger, sources, cal, sink, c.String("state"), c.Bool("dry-run"))
			if err != nil {
				return fmt.Errorf("failed to create syncer: %w", err)
			}

			report, err := s.Sync(c.Context)
			if err != nil {
				return fmt.Errorf("sync cycle failed: %w", err)
			}
			printReport(report)

			if path := c.String("export"); path != "" {
				if err := exportFile(path, cal.Events()); err != nil {
					return err
				}
				logger.Info("Exported booked events.", "file", path, "count", len(report.Booked))
			}
			return nil
		},
	}
}

func freeCommand() *cli.Command {
	return &cli.Command{
		Name:  "free",
		Usage: "Show the free slots of a date after booking all sources.",
		Flags: append(sourceFlags(),
			&cli.StringFlag{Name: "date", Usage: "Date to inspect (YYYY-MM-DD), today by default."},
		),
		Action: func(c *cli.Context) error {
			logger := setupLogger(logLevel())

			date := models.DateOf(time.Now())
			if s := c.String("date"); s != "" {
				d, err := models.ParseDate(s)
				if err != nil {
					return err
				}
				date = d
			}

			cal, err := bookSources(c, logger)
			if err != nil {
				return err
			}

			free := cal.FindAvailableSlots(date)
			fmt.Printf("%s: %d of %d slots free\n", date, len(free), slots.PerDay)
			for _, r := range collapse(free) {
				fmt.Printf("  %s-%s\n", r[0], r[1])
			}
			for _, day := range cal.FindEvents(date, date) {
				for _, e := range day.Events {
					fmt.Printf("  booked %s-%s %s\n", e.Start, e.End, e.Title)
				}
			}
			return nil
		},
	}
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "List booked events grouped by date.",
		Flags: append(sourceFlags(),
			&cli.StringFlag{Name: "from", Usage: "First date (YYYY-MM-DD), today by default."},
			&cli.StringFlag{Name: "to", Usage: "Last date (YYYY-MM-DD), 'from' plus --days by default."},
		),
		Action: func(c *cli.Context) error {
			logger := setupLogger(logLevel())

			from := models.DateOf(time.Now())
			if s := c.String("from"); s != "" {
				d, err := models.ParseDate(s)
				if err != nil {
					return err
				}
				from = d
			}
			to := from.AddDays(c.Int("days"))
			if s := c.String("to"); s != "" {
				d, err := models.ParseDate(s)
				if err != nil {
					return err
				}
				to = d
			}

			cal, err := bookSources(c, logger)
			if err != nil {
				return err
			}

			for _, day := range cal.FindEvents(from, to) {
				fmt.Println(day.Date)
				for _, e := range day.Events {
					fmt.Printf("  %s-%s %s (%s)\n", e.Start, e.End, e.Title, e.ID)
					for i, r := range e.Reminders {
						fmt.Printf("    [%d] %s\n", i, r)
					}
				}
			}
			return nil
		},
	}
}

// bookSources fills a fresh calendar from the selected sources.
func bookSources(c *cli.Context, logger *slog.Logger) (*calendar.Calendar, error) {
	sources, err := buildSources(c, logger)
	if err != nil {
		return nil, err
	}
	cal := calendar.New(logger)
	s, err := syncer.NewSyncer(logger, sources, cal, nil, "", true)
	if err != nil {
		return nil, err
	}
	report, err := s.Sync(c.Context)
	if err != nil {
		return nil, err
	}
	for _, r := range report.Rejected {
		fmt.Fprintf(os.Stderr, "rejected %s %s-%s %s: %v\n", r.Proposal.Details.Date, r.Proposal.Details.Start, r.Proposal.Details.End, r.Proposal.Details.Title, r.Err)
	}
	return cal, nil
}

func buildSources(c *cli.Context, logger *slog.Logger) ([]syncer.Source, error) {
	var sources []syncer.Source
	for _, path := range c.StringSlice("agenda") {
		sources = append(sources, &agenda.FileSource{Path: path})
	}
	for _, path := range c.StringSlice("ics") {
		sources = append(sources, &ics.FileSource{Path: path, Location: time.Local})
	}

	if c.Bool("google") {
		// Load all Google clients for all authenticated accounts
		accounts, err := google.GetTokenAccounts()
		if err != nil {
			return nil, fmt.Errorf("could not find any google accounts, did you run auth command? %w", err)
		}
		if len(accounts) == 0 {
			return nil, fmt.Errorf("no google accounts found. Run the 'auth' command first")
		}

		var gClients []*google.CalendarClient
		for _, acc := range accounts {
			gClient, err := google.NewClient(c.Context, logger, os.Getenv("GOOGLE_CLIENT_ID"), os.Getenv("GOOGLE_CLIENT_SECRET"), acc)
			if err != nil {
				return nil, fmt.Errorf("failed to create google client for account %s: %w", acc, err)
			}
			gClients = append(gClients, gClient)
		}
		logger.Info("Initialized Google clients for all accounts.", "count", len(gClients))

		var calendarIDs []string
		if ids := os.Getenv("GOOGLE_CALENDAR_IDS"); ids != "" {
			for _, id := range strings.Split(ids, ",") {
				calendarIDs = append(calendarIDs, strings.TrimSpace(id))
			}
		}
		sources = append(sources, &google.Source{
			Clients:     gClients,
			CalendarIDs: calendarIDs,
			Days:        c.Int("days"),
			Location:    time.Local,
			Logger:      logger,
		})
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("no sources selected: use --agenda, --ics or --google")
	}
	return sources, nil
}

func caldavConfig() caldav.Config {
	cfg := caldav.Config{
		Endpoint:     os.Getenv("CALDAV_ENDPOINT"),
		Username:     os.Getenv("CALDAV_USERNAME"),
		Password:     os.Getenv("CALDAV_PASSWORD"),
		CalendarName: os.Getenv("CALDAV_CALENDAR_NAME"),
		ICS: ics.Options{
			CalendarName: os.Getenv("CALDAV_CALENDAR_NAME"),
			AlarmEmail:   os.Getenv("REMINDER_EMAIL"),
		},
	}
	if cfg.Password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprint(os.Stderr, "CalDAV password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err == nil {
			cfg.Password = string(pw)
		}
	}
	return cfg
}

func exportFile(path string, events []models.Event) error {
	if len(events) == 0 {
		return fmt.Errorf("nothing to export: no events were booked")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create export file: %w", err)
	}
	opts := ics.Options{AlarmEmail: os.Getenv("REMINDER_EMAIL")}
	if err := ics.Encode(f, opts, events); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}
	return nil
}

func printReport(report syncer.Report) {
	fmt.Printf("booked %d, rejected %d, skipped %d, pushed %d\n", len(report.Booked), len(report.Rejected), len(report.Skipped), report.Pushed)
	for _, e := range report.Booked {
		fmt.Printf("  + %s %s-%s %s\n", e.Date, e.Start, e.End, e.Title)
	}
	for _, r := range report.Rejected {
		d := r.Proposal.Details
		fmt.Printf("  - %s %s-%s %s: %v\n", d.Date, d.Start, d.End, d.Title, r.Err)
	}
}

// collapse merges consecutive free slots into [start, end) ranges.
func collapse(free []models.Clock) [][2]models.Clock {
	var out [][2]models.Clock
	for _, c := range free {
		end := c + slots.Granularity
		if n := len(out); n > 0 && out[n-1][1] == c {
			out[n-1][1] = end
			continue
		}
		out = append(out, [2]models.Clock{c, end})
	}
	return out
}

func logLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	return level
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
