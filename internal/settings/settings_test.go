package settings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/config"
	"trackly/internal/docstore/storetest"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/session"
)

var (
	admin = session.Session{User: domain.User{ID: "root", Role: domain.RoleAdmin}}
	user  = session.Session{User: domain.User{ID: "alice", Role: domain.RoleUser}}
)

func newTestService(t *testing.T) *Service {
	return NewService(storetest.New(t), config.Features{InactivityAlerts: true, KanbanEnabled: true}, func() time.Time { return storetest.Clock }, nil)
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	got, err := s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.AdminSettings{InactivityAlerts: true, KanbanEnabled: true}, got)

	on := true
	_, err = s.Update(ctx, user, UpdateOptions{JiraIntegration: &on})
	assert.True(t, errs.IsForbidden(err))

	updated, err := s.Update(ctx, admin, UpdateOptions{JiraIntegration: &on})
	require.NoError(t, err)
	assert.True(t, updated.JiraIntegration)
	assert.True(t, updated.KanbanEnabled)
	assert.Equal(t, "root", updated.UpdatedBy)

	got, err = s.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestHolidays(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	empty, err := s.Holidays(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, domain.Holidays{Year: 2025, Days: []string{}}, empty)

	h, err := s.SetHolidays(ctx, admin, 2025, []string{"2025-12-25", "2025-01-01", "2025-12-25"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01", "2025-12-25"}, h.Days)

	_, err = s.SetHolidays(ctx, admin, 2025, []string{"2024-12-31"})
	assert.True(t, errs.IsValidation(err))
	_, err = s.SetHolidays(ctx, admin, 2025, []string{"25/12/2025"})
	assert.True(t, errs.IsValidation(err))
	_, err = s.SetHolidays(ctx, user, 2025, nil)
	assert.True(t, errs.IsForbidden(err))

	_, err = s.SetHolidays(ctx, admin, 2026, []string{"2026-01-01"})
	require.NoError(t, err)
	set, err := s.HolidaySet(ctx, 2025, 2026)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"2025-01-01": true, "2025-12-25": true, "2026-01-01": true}, set)

	stored, err := s.Holidays(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, h, stored)
}
