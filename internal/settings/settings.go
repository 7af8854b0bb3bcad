// Package settings stores the admin feature toggles and the holiday calendar.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"trackly/internal/config"
	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/session"
)

const globalID = "global"

type Service struct {
	Store    docstore.Store
	Defaults config.Features
	Now      func() time.Time
	Logger   *slog.Logger
}

func NewService(store docstore.Store, defaults config.Features, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Defaults: defaults, Now: now, Logger: logger}
}

func settingsRef() docstore.Ref {
	return docstore.Ref{Collection: domain.CollectionAdminSettings, ID: globalID}
}

// Get returns the saved settings, or the configured defaults when none
// have been saved.
func (s *Service) Get(ctx context.Context) (domain.AdminSettings, error) {
	doc, err := s.Store.Get(ctx, settingsRef())
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.AdminSettings{
			InactivityAlerts:  s.Defaults.InactivityAlerts,
			PushNotifications: s.Defaults.PushNotifications,
			JiraIntegration:   s.Defaults.JiraIntegration,
			KanbanEnabled:     s.Defaults.KanbanEnabled,
		}, nil
	}
	if err != nil {
		return domain.AdminSettings{}, err
	}
	var out domain.AdminSettings
	if err := doc.DataTo(&out); err != nil {
		return domain.AdminSettings{}, err
	}
	return out, nil
}

type UpdateOptions struct {
	InactivityAlerts  *bool `json:"inactivityAlerts,omitempty"`
	PushNotifications *bool `json:"pushNotifications,omitempty"`
	JiraIntegration   *bool `json:"jiraIntegration,omitempty"`
	KanbanEnabled     *bool `json:"kanbanEnabled,omitempty"`
}

func (s *Service) Update(ctx context.Context, sess session.Session, opts UpdateOptions) (domain.AdminSettings, error) {
	if err := sess.RequireAdmin("change settings"); err != nil {
		return domain.AdminSettings{}, err
	}
	cur, err := s.Get(ctx)
	if err != nil {
		return domain.AdminSettings{}, err
	}
	apply := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&cur.InactivityAlerts, opts.InactivityAlerts)
	apply(&cur.PushNotifications, opts.PushNotifications)
	apply(&cur.JiraIntegration, opts.JiraIntegration)
	apply(&cur.KanbanEnabled, opts.KanbanEnabled)
	cur.UpdatedAt = s.Now().UTC().Format(time.RFC3339)
	cur.UpdatedBy = sess.ActorID()
	fields, err := docstore.Fields(cur)
	if err != nil {
		return domain.AdminSettings{}, err
	}
	if err := s.Store.Set(ctx, settingsRef(), fields); err != nil {
		return domain.AdminSettings{}, fmt.Errorf("save settings: %w", err)
	}
	s.Logger.Info("settings updated", "actor", sess.ActorID(), "kanban", cur.KanbanEnabled, "alerts", cur.InactivityAlerts)
	return cur, nil
}

func holidaysRef(year int) docstore.Ref {
	return docstore.Ref{Collection: domain.CollectionHolidays, ID: strconv.Itoa(year)}
}

// Holidays returns the holiday dates of year, empty when none are set.
func (s *Service) Holidays(ctx context.Context, year int) (domain.Holidays, error) {
	doc, err := s.Store.Get(ctx, holidaysRef(year))
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Holidays{Year: year, Days: []string{}}, nil
	}
	if err != nil {
		return domain.Holidays{}, err
	}
	var h domain.Holidays
	if err := doc.DataTo(&h); err != nil {
		return domain.Holidays{}, err
	}
	h.Year = year
	if h.Days == nil {
		h.Days = []string{}
	}
	return h, nil
}

// SetHolidays replaces the holiday list of year. Every day must be a
// YYYY-MM-DD date within that year; duplicates collapse.
func (s *Service) SetHolidays(ctx context.Context, sess session.Session, year int, days []string) (domain.Holidays, error) {
	if err := sess.RequireAdmin("edit holidays"); err != nil {
		return domain.Holidays{}, err
	}
	if year < 1970 || year > 9999 {
		return domain.Holidays{}, errs.Invalid("year", "out of range")
	}
	set := map[string]bool{}
	for _, d := range days {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return domain.Holidays{}, errs.Invalid("days", "%q is not a YYYY-MM-DD date", d)
		}
		if t.Year() != year {
			return domain.Holidays{}, errs.Invalid("days", "%s is outside %d", d, year)
		}
		set[d] = true
	}
	out := domain.Holidays{Year: year, Days: make([]string, 0, len(set))}
	for d := range set {
		out.Days = append(out.Days, d)
	}
	sort.Strings(out.Days)
	if err := s.Store.Set(ctx, holidaysRef(year), map[string]any{"days": out.Days}); err != nil {
		return domain.Holidays{}, fmt.Errorf("save holidays %d: %w", year, err)
	}
	return out, nil
}

// HolidaySet merges the holidays of every year from fromYear to toYear.
func (s *Service) HolidaySet(ctx context.Context, fromYear, toYear int) (map[string]bool, error) {
	set := map[string]bool{}
	for y := fromYear; y <= toYear; y++ {
		h, err := s.Holidays(ctx, y)
		if err != nil {
			return nil, err
		}
		for _, d := range h.Days {
			set[d] = true
		}
	}
	return set, nil
}
