package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trackly/internal/config"
	"trackly/internal/docstore/storetest"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/hours"
	"trackly/internal/reports"
	"trackly/internal/session"
	"trackly/internal/settings"
	"trackly/internal/users"
)

func TestMonthlyRows(t *testing.T) {
	ctx := context.Background()
	store := storetest.New(t)
	// Wednesday 2025-03-12, mid-morning.
	now := func() time.Time { return time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC) }
	userSvc := users.NewService(store, now, nil)
	userSvc.Cost = bcrypt.MinCost
	hrs := hours.NewService(store, now, nil)
	set := settings.NewService(store, config.Features{InactivityAlerts: true}, now, nil)
	reps := reports.NewService(store, hrs, userSvc, now, nil)
	svc := &Service{Users: userSvc, Hours: hrs, Reports: reps, Settings: set, Now: now}
	admin := session.Session{User: domain.User{ID: "root", Role: domain.RoleAdmin}}

	alice, err := userSvc.Create(ctx, users.CreateOptions{Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser, Password: "password1"})
	require.NoError(t, err)
	_, err = userSvc.Create(ctx, users.CreateOptions{Name: "Bob", Email: "bob@example.com", Role: domain.RoleUser, Password: "password2"})
	require.NoError(t, err)

	for _, o := range []hours.LogOptions{
		{UserID: alice.ID, Date: "2025-03-06", Hours: 6},
		{UserID: alice.ID, Date: "2025-03-07", Hours: 2},
		{UserID: alice.ID, Date: "2025-02-28", Hours: 8},
	} {
		_, err := hrs.Log(ctx, admin, o)
		require.NoError(t, err)
	}
	_, err = set.SetHolidays(ctx, admin, 2025, []string{"2025-03-10"})
	require.NoError(t, err)
	_, err = reps.Submit(ctx, admin, alice.ID, "2025-03")
	require.NoError(t, err)

	// A record written around the service with a malformed date.
	_, err = store.Create(ctx, domain.CollectionTimeRecords, map[string]any{
		"userId":    alice.ID,
		"date":      "2025/03/09",
		"hours":     1,
		"createdAt": "2025-03-09T09:00:00Z",
	})
	require.NoError(t, err)

	rows, err := svc.Monthly(ctx, admin, "2025-03")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	a := rows[0]
	assert.Equal(t, "Alice", a.UserName)
	assert.Equal(t, 8.0, a.Summary.Metrics.Total)
	assert.Equal(t, "2025-03-07", a.LastActivity)
	// Mon 10 is a holiday; Tue 11 and Wed 12 count.
	assert.Equal(t, 2, a.BusinessDaysInactive)
	assert.False(t, a.Inactive)
	assert.Equal(t, domain.ReportSubmitted, a.ReportStatus)

	b := rows[1]
	assert.Equal(t, "Bob", b.UserName)
	assert.True(t, b.NeverActive)
	assert.True(t, b.Inactive)
	assert.Equal(t, 1, b.InactiveDays)
	assert.Equal(t, 0, b.BusinessDaysInactive)
	assert.Empty(t, b.ReportStatus)

	_, err = svc.Monthly(ctx, session.Session{User: alice}, "2025-03")
	assert.True(t, errs.IsForbidden(err))
}
