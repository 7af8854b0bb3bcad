// Package stats builds the admin dashboard rows for a month.
package stats

import (
	"context"
	"fmt"
	"time"

	"trackly/internal/hours"
	"trackly/internal/reports"
	"trackly/internal/session"
	"trackly/internal/settings"
	"trackly/internal/users"
)

type UserMonth struct {
	UserID               string        `json:"userId"`
	UserName             string        `json:"userName"`
	Email                string        `json:"email"`
	Summary              hours.Summary `json:"summary"`
	LastActivity         string        `json:"lastActivity,omitempty"`
	InactiveDays         int           `json:"inactiveDays"`
	BusinessDaysInactive int           `json:"businessDaysInactive"`
	Inactive             bool          `json:"inactive"`
	NeverActive          bool          `json:"neverActive"`
	ReportStatus         string        `json:"reportStatus,omitempty"`
}

type Service struct {
	Users    *users.Service
	Hours    *hours.Service
	Reports  *reports.Service
	Settings *settings.Service
	Now      func() time.Time
}

// Monthly returns one row per active user for month.
func (s *Service) Monthly(ctx context.Context, sess session.Session, month string) ([]UserMonth, error) {
	if err := sess.RequireAdmin("view statistics"); err != nil {
		return nil, err
	}
	if err := hours.ValidMonth(month); err != nil {
		return nil, err
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	cfg, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.Users.List(ctx, true)
	if err != nil {
		return nil, err
	}
	holidays := map[int]map[string]bool{}
	out := make([]UserMonth, 0, len(list))
	for _, u := range list {
		row := UserMonth{UserID: u.ID, UserName: u.Name, Email: u.Email}
		recs, err := s.Hours.List(ctx, u.ID, "", false)
		if err != nil {
			return nil, err
		}
		row.Summary = hours.Aggregate(hours.FilterMonth(recs, month))
		act, err := s.Hours.LastActivity(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		inact := hours.CheckInactivity(act.At, now, cfg.InactivityAlerts)
		row.InactiveDays = inact.Days
		row.Inactive = inact.Inactive
		row.NeverActive = inact.NeverActive
		row.LastActivity = act.Date
		if act.Date != "" {
			last, err := time.Parse(time.DateOnly, act.Date)
			if err != nil {
				return nil, fmt.Errorf("last activity of %s: %w", u.ID, err)
			}
			from := last.Year()
			key := from*10000 + now.Year()
			set, ok := holidays[key]
			if !ok {
				set, err = s.Settings.HolidaySet(ctx, from, now.Year())
				if err != nil {
					return nil, err
				}
				holidays[key] = set
			}
			row.BusinessDaysInactive, err = hours.BusinessDaysInactive(act.Date, now, set)
			if err != nil {
				return nil, err
			}
		}
		reps, err := s.Reports.List(ctx, reports.Filter{UserID: u.ID, Month: month})
		if err != nil {
			return nil, err
		}
		if len(reps) > 0 {
			row.ReportStatus = reps[0].Status
		}
		out = append(out, row)
	}
	return out, nil
}
