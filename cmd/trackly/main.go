package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trackly/internal/app"
	"trackly/internal/config"
	"trackly/internal/db"
	"trackly/internal/events"
	"trackly/internal/session"
)

const cliActor = "cli"

var rootCmd = &cobra.Command{
	Use:   "trackly",
	Short: "Trackly CLI",
	Long: `Trackly records working hours, runs a kanban board of work items and
collects monthly reports for admin review.
- Workspace: a directory holding trackly.yml and the .trackly database.
- Records: hours per user and day; deleting keeps the record and marks it.
- Statuses: the ordered columns of the board; inactive ones are hidden.
- Reports: a user submits a month, an admin approves or rejects it with a note.
- Event log: every change is appended; view it with 'trackly events tail'.
CLI commands run as the built-in system admin.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		slog.SetDefault(newLogger(viper.GetString("log-format"), viper.GetString("log-level")))
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TRACKLY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("jwt-secret", "", "override auth.jwt_secret")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("jwt-secret", rootCmd.PersistentFlags().Lookup("jwt-secret"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(hoursCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(holidaysCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(eventsCmd())
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// loadConfig reads trackly.yml and applies flag and TRACKLY_* overrides.
func loadConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(workspace)
	if err != nil {
		return nil, err
	}
	if secret := viper.GetString("jwt-secret"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openApp(ctx context.Context) (*app.App, error) {
	workspace := viper.GetString("workspace")
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(workspace)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, app.Options{Workspace: workspace, Config: cfg, Logger: slog.Default()})
}

// withApp runs fn as the system session with the CLI as event actor.
func withApp(ctx context.Context, fn func(context.Context, *app.App, session.Session) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	sess := session.System()
	set, err := a.Settings.Get(ctx)
	if err != nil {
		return err
	}
	sess.Settings = set
	return fn(events.WithActor(ctx, cliActor), a, sess)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
