// Package app opens a workspace and wires every service over one store.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"

	"trackly/internal/auth"
	"trackly/internal/config"
	"trackly/internal/db"
	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/events"
	"trackly/internal/functions"
	"trackly/internal/hours"
	"trackly/internal/migrate"
	"trackly/internal/notify"
	"trackly/internal/reports"
	"trackly/internal/settings"
	"trackly/internal/stats"
	"trackly/internal/statuses"
	"trackly/internal/users"
	"trackly/internal/workitems"
)

// App holds the services of one open workspace.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *sql.DB
	Store  *docstore.SQLStore
	Events events.Log

	Users      *users.Service
	Hours      *hours.Service
	Statuses   *statuses.Registry
	WorkItems  *workitems.Service
	Reports    *reports.Service
	Settings   *settings.Service
	Stats      *stats.Service
	Auth       *auth.Provider
	Functions  *functions.Gateway
	Registrar  *notify.Registrar
	Dispatcher *notify.Dispatcher
}

type Options struct {
	Workspace string
	Config    *config.Config
	Logger    *slog.Logger
	Now       func() time.Time
}

// Open opens the workspace database, migrates it and seeds statuses and
// the bootstrap admin when they are missing.
func Open(ctx context.Context, opts Options) (*App, error) {
	if opts.Config == nil {
		cfg, err := config.LoadOrDefault(opts.Workspace)
		if err != nil {
			return nil, err
		}
		opts.Config = cfg
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a := build(conn, opts)
	if err := a.seed(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

func build(conn *sql.DB, opts Options) *App {
	cfg, logger, now := opts.Config, opts.Logger, opts.Now
	store := docstore.NewSQLStore(conn, now, logger)
	a := &App{Config: cfg, Logger: logger, DB: conn, Store: store, Events: events.Log{DB: conn}}
	a.Users = users.NewService(store, now, logger)
	a.Hours = hours.NewService(store, now, logger)
	a.Statuses = statuses.NewRegistry(store, logger)
	a.WorkItems = workitems.NewService(store, a.Statuses, now, logger)
	a.Reports = reports.NewService(store, a.Hours, a.Users, now, logger)
	a.Settings = settings.NewService(store, cfg.Features, now, logger)
	a.Stats = &stats.Service{Users: a.Users, Hours: a.Hours, Reports: a.Reports, Settings: a.Settings, Now: now}
	a.Auth = auth.NewProvider(a.Users, conn, auth.Config{
		Secret: cfg.Auth.JWTSecret,
		TTL:    cfg.Auth.TokenTTL,
		Issuer: cfg.Auth.Issuer,
	}, now, logger)
	a.Functions = functions.NewGateway(logger)
	a.Functions.Register("createUser", functions.CreateUser(a.Users))
	a.Functions.Register("fetchIssue", functions.FetchIssue(functions.IssueTracker{
		BaseURL:  cfg.IssueTracker.BaseURL,
		User:     cfg.IssueTracker.User,
		APIToken: cfg.IssueTracker.APIToken,
	}, a.Settings))
	a.Registrar = &notify.Registrar{Store: store, Settings: a.Settings, Now: now}
	a.Dispatcher = notify.NewDispatcher(a.Events, sinks(cfg), cfg.Notifications.PollInterval, logger)
	return a
}

func sinks(cfg *config.Config) []notify.Sink {
	var out []notify.Sink
	for _, wh := range cfg.Notifications.Webhooks {
		out = append(out, notify.NewWebhookSink(wh.URL, wh.Secret, wh.Events))
	}
	if sl := cfg.Notifications.Slack; sl.Token != "" {
		out = append(out, notify.NewSlackSink(slack.New(sl.Token), sl.Channel, sl.Events))
	}
	return out
}

func (a *App) seed(ctx context.Context) error {
	seeds := statuses.DefaultSeeds()
	if len(a.Config.Statuses) > 0 {
		seeds = make([]statuses.CreateOptions, 0, len(a.Config.Statuses))
		for _, st := range a.Config.Statuses {
			seeds = append(seeds, statuses.CreateOptions{Key: st.Key, Label: st.Label})
		}
	}
	n, err := a.Statuses.SeedDefaults(ctx, seeds)
	if err != nil {
		return fmt.Errorf("seed statuses: %w", err)
	}
	if n > 0 {
		a.Logger.Info("statuses seeded", "count", n)
	}
	admin := a.Config.Bootstrap.Admin
	if admin.Email == "" {
		return nil
	}
	if _, err := a.Users.ByEmail(ctx, admin.Email); err == nil {
		return nil
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return err
	}
	name := admin.Name
	if name == "" {
		name = "Administrator"
	}
	u, err := a.Users.Create(ctx, users.CreateOptions{Name: name, Email: admin.Email, Role: domain.RoleAdmin, Password: admin.Password})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	a.Logger.Info("bootstrap admin created", "user", u.ID, "email", u.Email)
	return nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
