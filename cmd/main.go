package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"eduplanner/internal/caldav"
	"eduplanner/internal/chat"
	"eduplanner/internal/config"
	"eduplanner/internal/google"
	"eduplanner/internal/inference"
	"eduplanner/internal/scheduler"
	"eduplanner/internal/server"
	"eduplanner/internal/session"
	"eduplanner/internal/store"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "eduplanner",
		Usage: "Ask about Indian education and keep a calendar of related events.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to a YAML config file (default: " + config.DefaultFile + " if present)."},
		},
		Commands: []*cli.Command{
			authCommand(),
			scheduleCommand(),
			listCommand(),
			deleteCommand(),
			chatCommand(),
			serveCommand(),
		},
	}
}

// env is what every command builds from the global flags.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadEnv(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &env{cfg: cfg, logger: setupLogger(cfg.LogLevel)}, nil
}

func (e *env) openStore() (*store.Store, error) {
	st, err := store.Open(e.logger, e.cfg.EventsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	return st, nil
}

func (e *env) sessionProvider(authorize session.AuthorizeFunc) (*session.Provider, error) {
	cc := e.cfg.Calendar
	oauthConfig, err := google.GetOAuthConfig(cc.ClientID, cc.ClientSecret, cc.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to get google oauth config: %w", err)
	}

	var tokens session.Store = session.FileStore{Path: cc.SessionPath}
	if cc.SessionStore == "bolt" {
		tokens = session.BoltStore{Path: cc.SessionPath}
	}
	return session.NewProvider(e.logger, oauthConfig, tokens, authorize), nil
}

// calendar builds the configured backend. authorize is used when the Google session
// needs an interactive login; nil makes that case an error.
func (e *env) calendar(ctx context.Context, authorize session.AuthorizeFunc) (scheduler.Calendar, error) {
	if err := e.cfg.ValidateCalendar(); err != nil {
		return nil, err
	}
	cc := e.cfg.Calendar

	if cc.Backend == "caldav" {
		client, err := caldav.NewClient(e.logger, cc.CalDAVEndpoint, cc.Username, cc.Password, cc.CalendarName)
		if err != nil {
			return nil, fmt.Errorf("failed to create caldav client: %w", err)
		}
		return client, nil
	}

	provider, err := e.sessionProvider(authorize)
	if err != nil {
		return nil, err
	}
	client, err := google.NewClient(ctx, e.logger, provider.TokenSource(ctx), cc.CalendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	return client, nil
}

func (e *env) router(st *store.Store) (*chat.Router, error) {
	if err := e.cfg.ValidateInference(); err != nil {
		return nil, err
	}
	ic := e.cfg.Inference
	params := inference.Parameters{
		MaxNewTokens:      ic.MaxNewTokens,
		Temperature:       ic.Temperature,
		RepetitionPenalty: ic.RepetitionPenalty,
	}
	gen := inference.NewClient(e.logger, ic.URL, ic.APIKey, params, ic.Timeout)
	return chat.NewRouter(e.logger, st, gen), nil
}

// promptForCode prints the authorization URL and reads the code from stdin.
func promptForCode(in io.Reader, out io.Writer) session.AuthorizeFunc {
	reader := bufio.NewReader(in)
	return func(ctx context.Context, authURL string) (string, error) {
		fmt.Fprintf(out, "Go to the following link in your browser then type the "+
			"authorization code: \n%v\n", authURL)
		fmt.Fprint(out, "Enter Authorization Code: ")
		code, err := reader.ReadString('\n')
		code = strings.TrimSpace(code)
		if code == "" {
			if err == nil {
				err = errors.New("empty authorization code")
			}
			return "", err
		}
		return code, nil
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account and cache the calendar session.",
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			if e.cfg.Calendar.Backend != "google" {
				return fmt.Errorf("auth only applies to the google backend, configured backend is %q", e.cfg.Calendar.Backend)
			}
			if err := e.cfg.ValidateCalendar(); err != nil {
				return err
			}

			provider, err := e.sessionProvider(promptForCode(os.Stdin, c.App.Writer))
			if err != nil {
				return err
			}
			state, err := provider.State()
			if err != nil {
				return err
			}
			e.logger.Info("Checking calendar session.", "state", state)

			if _, err := provider.Token(c.Context); err != nil {
				return fmt.Errorf("unable to obtain calendar session: %w", err)
			}
			e.logger.Info("Calendar session is ready.", "store", e.cfg.Calendar.SessionStore, "path", e.cfg.Calendar.SessionPath)
			return nil
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Schedule an event and mirror it to the calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Event name."},
			&cli.StringFlag{Name: "date", Usage: "Date as YYYY-MM-DD."},
			&cli.StringFlag{Name: "time", Usage: "Time as HH:MM."},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			loc, err := e.cfg.Location()
			if err != nil {
				return err
			}
			st, err := e.openStore()
			if err != nil {
				return err
			}
			// The backend is built only once validation has passed.
			authorize := promptForCode(os.Stdin, c.App.Writer)
			cal := scheduler.NewLazyCalendar(func(ctx context.Context) (scheduler.Calendar, error) {
				return e.calendar(ctx, authorize)
			})

			s := scheduler.New(e.logger, cal, st, loc)
			conf, err := s.Schedule(c.Context, c.String("name"), c.String("date"), c.String("time"))
			if err != nil {
				fmt.Fprintln(c.App.Writer, scheduler.Describe(err))
			} else {
				fmt.Fprintln(c.App.Writer, conf)
			}
			fmt.Fprintln(c.App.Writer, st.List())
			if err != nil {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Show scheduled events.",
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			st, err := e.openStore()
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, st.List())
			return nil
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete every event with exactly this name.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Event name, matched exactly.", Required: true},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			st, err := e.openStore()
			if err != nil {
				return err
			}
			msg, err := st.Delete(c.String("name"))
			if err != nil {
				return fmt.Errorf("failed to save events: %w", err)
			}
			fmt.Fprintln(c.App.Writer, msg)
			fmt.Fprintln(c.App.Writer, st.List())
			return nil
		},
	}
}

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Ask a question. Without arguments, reads one message per line from stdin.",
		ArgsUsage: "[message...]",
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			st, err := e.openStore()
			if err != nil {
				return err
			}
			r, err := e.router(st)
			if err != nil {
				return err
			}

			if c.NArg() > 0 {
				fmt.Fprintln(c.App.Writer, r.Reply(c.Context, strings.Join(c.Args().Slice(), " ")))
				return nil
			}

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				fmt.Fprintln(c.App.Writer, r.Reply(c.Context, line))
			}
			return scanner.Err()
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the scheduling and chat API over HTTP.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Usage: "Address to listen on (overrides LISTEN_ADDR)."},
		},
		Action: func(c *cli.Context) error {
			e, err := loadEnv(c)
			if err != nil {
				return err
			}
			loc, err := e.cfg.Location()
			if err != nil {
				return err
			}
			st, err := e.openStore()
			if err != nil {
				return err
			}
			// No terminal to prompt on; run the auth command beforehand.
			cal, err := e.calendar(c.Context, nil)
			if err != nil {
				return err
			}
			r, err := e.router(st)
			if err != nil {
				return err
			}

			app := server.New(server.Handlers{
				Logger:    e.logger,
				Scheduler: scheduler.New(e.logger, cal, st, loc),
				Store:     st,
				Chat:      r,
			})

			addr := e.cfg.ListenAddr
			if c.IsSet("listen") {
				addr = c.String("listen")
			}
			e.logger.Info("Starting HTTP server.", "addr", addr)
			return app.Listen(addr)
		},
	}
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
