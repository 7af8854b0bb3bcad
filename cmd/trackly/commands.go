package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"trackly/internal/app"
	"trackly/internal/domain"
	"trackly/internal/events"
	"trackly/internal/export"
	"trackly/internal/functions"
	"trackly/internal/hours"
	"trackly/internal/reports"
	"trackly/internal/session"
	"trackly/internal/statuses"
	"trackly/internal/users"
)

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage accounts"}
	cmd.AddCommand(userCreateCmd())
	cmd.AddCommand(userListCmd())
	return cmd
}

func userCreateCmd() *cobra.Command {
	var opts users.CreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user; a password is generated when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ session.Session) error {
				generated := opts.Password == ""
				if generated {
					pw, err := functions.GeneratePassword()
					if err != nil {
						return err
					}
					opts.Password = pw
				}
				u, err := a.Users.Create(ctx, opts)
				if err != nil {
					return err
				}
				u = users.Public(u)
				if viper.GetBool("json") {
					out := map[string]any{"user": u}
					if generated {
						out["password"] = opts.Password
					}
					return printJSON(out)
				}
				fmt.Printf("Created %s (%s) with id %s\n", u.Email, u.Role, u.ID)
				if generated {
					fmt.Printf("Password: %s\n", opts.Password)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email address")
	cmd.Flags().StringVar(&opts.Role, "role", domain.RoleUser, "role (admin, user)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "password (generated when empty)")
	return cmd
}

func userListCmd() *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ session.Session) error {
				list, err := a.Users.List(ctx, activeOnly)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Active"})
				for _, u := range list {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, u.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only active users")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "status", Short: "Manage board statuses"}
	cmd.AddCommand(statusListCmd())
	cmd.AddCommand(statusAddCmd())
	cmd.AddCommand(statusToggleCmd())
	cmd.AddCommand(statusReorderCmd())
	return cmd
}

func printStatuses(list []domain.Status) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Order", "ID", "Key", "Label", "Active"})
	for _, st := range list {
		tw.AppendRow(table.Row{st.Order, st.ID, st.Key, st.Label, st.Active})
	}
	tw.Render()
	return nil
}

func statusListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List statuses in display order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ session.Session) error {
				list, err := a.Statuses.List(ctx)
				if err != nil {
					return err
				}
				return printStatuses(list)
			})
		},
	}
}

func statusAddCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "add <key>",
		Short: "Append a status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				if label == "" {
					label = args[0]
				}
				st, err := a.Statuses.Create(ctx, sess, statuses.CreateOptions{Key: args[0], Label: label})
				if err != nil {
					return err
				}
				return printStatuses([]domain.Status{st})
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "display label (defaults to the key)")
	return cmd
}

func statusToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <key>",
		Short: "Flip a status between active and inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				st, err := a.Statuses.ByKey(ctx, args[0])
				if err != nil {
					return err
				}
				st, err = a.Statuses.ToggleActive(ctx, sess, st.ID)
				if err != nil {
					return err
				}
				return printStatuses([]domain.Status{st})
			})
		},
	}
}

func statusReorderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <key>...",
		Short: "Set the order of every status by key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				ids := make([]string, 0, len(args))
				for _, key := range args {
					st, err := a.Statuses.ByKey(ctx, key)
					if err != nil {
						return fmt.Errorf("status %s: %w", key, err)
					}
					ids = append(ids, st.ID)
				}
				list, err := a.Statuses.Reorder(ctx, sess, ids)
				if err != nil {
					return err
				}
				return printStatuses(list)
			})
		},
	}
}

func hoursCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "hours", Short: "Log and summarise hours"}
	cmd.AddCommand(hoursLogCmd())
	cmd.AddCommand(hoursSummaryCmd())
	return cmd
}

// resolveUser accepts a user id or an email address.
func resolveUser(ctx context.Context, a *app.App, ref string) (domain.User, error) {
	if strings.Contains(ref, "@") {
		return a.Users.ByEmail(ctx, ref)
	}
	return a.Users.Get(ctx, ref)
}

func hoursLogCmd() *cobra.Command {
	var user string
	var opts hours.LogOptions
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log hours for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				u, err := resolveUser(ctx, a, user)
				if err != nil {
					return err
				}
				opts.UserID = u.ID
				if opts.Date == "" {
					opts.Date = time.Now().Format("2006-01-02")
				}
				rec, err := a.Hours.Log(ctx, sess, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				fmt.Printf("Logged %.2fh for %s on %s (%s)\n", rec.Hours, u.Email, rec.Date, rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id or email")
	cmd.Flags().StringVar(&opts.Date, "date", "", "day as YYYY-MM-DD (default today)")
	cmd.Flags().Float64Var(&opts.Hours, "hours", 0, "hours worked")
	cmd.Flags().StringVar(&opts.Project, "project", "", "project name")
	cmd.Flags().StringVar(&opts.JiraIssue, "issue", "", "issue key")
	cmd.Flags().StringVar(&opts.Description, "desc", "", "description")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func hoursSummaryCmd() *cobra.Command {
	var user, month string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show a user's month totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ session.Session) error {
				u, err := resolveUser(ctx, a, user)
				if err != nil {
					return err
				}
				if month == "" {
					month = time.Now().Format("2006-01")
				}
				sum, err := a.Hours.Summary(ctx, u.ID, month)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				days := make([]string, 0, len(sum.DayTotals))
				for d := range sum.DayTotals {
					days = append(days, d)
				}
				sort.Strings(days)
				tw := newTable()
				tw.AppendHeader(table.Row{"Date", "Hours"})
				for _, d := range days {
					tw.AppendRow(table.Row{d, sum.DayTotals[d]})
				}
				tw.AppendFooter(table.Row{"Total", sum.Metrics.Total})
				tw.Render()
				fmt.Printf("%d day(s) worked, %.2fh average, %d%% of %.0fh\n",
					sum.Metrics.DaysWorked, sum.Metrics.Average, sum.Metrics.ProgressPercent, hours.MonthlyTarget)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id or email")
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default current)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Monthly report workflow"}
	cmd.AddCommand(reportSubmitCmd())
	cmd.AddCommand(reportReviewCmd())
	cmd.AddCommand(reportListCmd())
	cmd.AddCommand(reportExportCmd())
	return cmd
}

func printReports(list []domain.MonthlyReport) error {
	if viper.GetBool("json") {
		return printJSON(list)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "User", "Month", "Hours", "Status", "Note"})
	for _, r := range list {
		tw.AppendRow(table.Row{r.ID, r.UserName, r.Month, r.TotalHours, r.Status, r.AdminNote})
	}
	tw.Render()
	return nil
}

func reportSubmitCmd() *cobra.Command {
	var user, month string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a user's month for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				u, err := resolveUser(ctx, a, user)
				if err != nil {
					return err
				}
				rep, err := a.Reports.Submit(ctx, sess, u.ID, month)
				if err != nil {
					return err
				}
				return printReports([]domain.MonthlyReport{rep})
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id or email")
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func reportReviewCmd() *cobra.Command {
	var decision, note string
	cmd := &cobra.Command{
		Use:   "review <report-id>",
		Short: "Approve or reject a submitted report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				rep, err := a.Reports.Review(ctx, sess, args[0], decision, note)
				if err != nil {
					return err
				}
				return printReports([]domain.MonthlyReport{rep})
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "approved or rejected")
	cmd.Flags().StringVar(&note, "note", "", "admin note (required)")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func reportListCmd() *cobra.Command {
	var f reports.Filter
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ session.Session) error {
				if user != "" {
					u, err := resolveUser(ctx, a, user)
					if err != nil {
						return err
					}
					f.UserID = u.ID
				}
				list, err := a.Reports.List(ctx, f)
				if err != nil {
					return err
				}
				return printReports(list)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id or email")
	cmd.Flags().StringVar(&f.Month, "month", "", "month filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	return cmd
}

func reportExportCmd() *cobra.Command {
	var month, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write month statistics to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				rows, err := a.Stats.Monthly(ctx, sess, month)
				if err != nil {
					return err
				}
				if out == "" {
					out = "trackly-" + month + ".xlsx"
				}
				f, err := export.MonthlyWorkbook(month, rows)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := f.SaveAs(out); err != nil {
					return err
				}
				fmt.Printf("Wrote %d user row(s) to %s\n", len(rows), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func holidaysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "holidays", Short: "Manage holiday calendars"}
	cmd.AddCommand(holidaysShowCmd())
	cmd.AddCommand(holidaysSetCmd())
	cmd.AddCommand(holidaysImportCmd())
	return cmd
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil || year < 1970 || year > 9999 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return year, nil
}

func printHolidays(h domain.Holidays) error {
	if viper.GetBool("json") {
		return printJSON(h)
	}
	fmt.Printf("%d: %d holiday(s)\n", h.Year, len(h.Days))
	for _, d := range h.Days {
		fmt.Println("  " + d)
	}
	return nil
}

func holidaysShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <year>",
		Short: "Show the holidays of a year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ session.Session) error {
				h, err := a.Settings.Holidays(ctx, year)
				if err != nil {
					return err
				}
				return printHolidays(h)
			})
		},
	}
}

func holidaysSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <year> <YYYY-MM-DD>...",
		Short: "Replace the holidays of a year",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				h, err := a.Settings.SetHolidays(ctx, sess, year, args[1:])
				if err != nil {
					return err
				}
				return printHolidays(h)
			})
		},
	}
}

func holidaysImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <year> <file.xlsx>",
		Short: "Replace the holidays of a year with the dates found in a workbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()
			all, err := export.ReadHolidays(f)
			if err != nil {
				return err
			}
			prefix := fmt.Sprintf("%04d-", year)
			days := make([]string, 0, len(all))
			for _, d := range all {
				if strings.HasPrefix(d, prefix) {
					days = append(days, d)
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, sess session.Session) error {
				h, err := a.Settings.SetHolidays(ctx, sess, year, days)
				if err != nil {
					return err
				}
				return printHolidays(h)
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "events", Short: "Read the event log"}
	cmd.AddCommand(eventsTailCmd())
	return cmd
}

func eventsTailCmd() *cobra.Command {
	var n int
	var follow bool
	var f events.Filter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, _ session.Session) error {
				latest, err := a.Events.Latest(ctx, n, 0, f)
				if err != nil {
					return err
				}
				// oldest first so follow output continues in order
				for i, j := 0, len(latest)-1; i < j; i, j = i+1, j-1 {
					latest[i], latest[j] = latest[j], latest[i]
				}
				printEvents(latest)
				if !follow {
					return nil
				}
				var cursor int64
				if len(latest) > 0 {
					cursor = latest[len(latest)-1].ID
				} else if cursor, err = a.Events.LatestID(ctx); err != nil {
					return err
				}
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					next, err := a.Events.After(ctx, 100, cursor, f)
					if err != nil {
						return err
					}
					if len(next) == 0 {
						continue
					}
					printEvents(next)
					cursor = next[len(next)-1].ID
				}
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new events")
	cmd.Flags().StringVar(&f.Collection, "collection", "", "collection filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.DocID, "doc-id", "", "document id filter")
	return cmd
}

func printEvents(list []domain.Event) {
	if viper.GetBool("json") {
		for _, evt := range list {
			_ = printJSON(evt)
		}
		return
	}
	for _, evt := range list {
		fmt.Printf("%d %s %-28s %s/%s by %s\n", evt.ID, evt.TS, evt.Type, evt.Collection, evt.DocID, evt.ActorID)
	}
}
