package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/docstore/storetest"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/hours"
	"trackly/internal/session"
)

var (
	alice = session.Session{User: domain.User{ID: "alice", Name: "Alice", Role: domain.RoleUser}}
	admin = session.Session{User: domain.User{ID: "root", Role: domain.RoleAdmin}}
)

type staticUsers map[string]domain.User

func (s staticUsers) Get(ctx context.Context, id string) (domain.User, error) {
	return s[id], nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	store := storetest.New(t)
	now := func() time.Time { return storetest.Clock }
	hrs := hours.NewService(store, now, nil)
	ctx := context.Background()
	for _, o := range []hours.LogOptions{
		{UserID: "alice", Date: "2025-03-03", Hours: 2},
		{UserID: "alice", Date: "2025-03-04", Hours: 8},
		{UserID: "alice", Date: "2025-04-01", Hours: 5},
	} {
		_, err := hrs.Log(ctx, admin, o)
		require.NoError(t, err)
	}
	return NewService(store, hrs, staticUsers{"alice": alice.User}, now, nil)
}

func TestSubmitComputesTotal(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	rep, err := s.Submit(ctx, alice, "", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, "alice", rep.UserID)
	assert.Equal(t, "Alice", rep.UserName)
	assert.Equal(t, 10.0, rep.TotalHours)
	assert.Equal(t, domain.ReportSubmitted, rep.Status)

	_, err = s.Submit(ctx, alice, "", "2025-03")
	assert.ErrorIs(t, err, ErrPendingReport)

	other, err := s.Submit(ctx, alice, "alice", "2025-04")
	require.NoError(t, err)
	assert.Equal(t, 5.0, other.TotalHours)

	bob := session.Session{User: domain.User{ID: "bob", Role: domain.RoleUser}}
	_, err = s.Submit(ctx, bob, "alice", "2025-05")
	assert.True(t, errs.IsForbidden(err))
	_, err = s.Submit(ctx, alice, "", "2025-3")
	assert.True(t, errs.IsValidation(err))
}

func TestReviewRequiresAdminAndNote(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	rep, err := s.Submit(ctx, alice, "", "2025-03")
	require.NoError(t, err)

	_, err = s.Review(ctx, alice, rep.ID, domain.ReportApproved, "looks good")
	assert.True(t, errs.IsForbidden(err))
	_, err = s.Review(ctx, admin, rep.ID, domain.ReportApproved, "   ")
	assert.ErrorIs(t, err, ErrNoteRequired)
	_, err = s.Review(ctx, admin, rep.ID, domain.ReportSubmitted, "back to you")
	assert.ErrorIs(t, err, ErrInvalidDecision)

	got, err := s.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReportSubmitted, got.Status)
	assert.Empty(t, got.AdminNote)

	approved, err := s.Review(ctx, admin, rep.ID, domain.ReportApproved, " Thanks ")
	require.NoError(t, err)
	assert.Equal(t, "Thanks", approved.AdminNote)
	assert.Equal(t, "root", approved.ReviewedBy)

	revised, err := s.Review(ctx, admin, rep.ID, domain.ReportRejected, "Missing 3rd")
	require.NoError(t, err)
	assert.Equal(t, domain.ReportRejected, revised.Status)

	got, err = s.Get(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, revised, got)
}

func TestResubmitAfterReview(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	rep, err := s.Submit(ctx, alice, "", "2025-03")
	require.NoError(t, err)
	_, err = s.Review(ctx, admin, rep.ID, domain.ReportRejected, "fix the 4th")
	require.NoError(t, err)

	again, err := s.Submit(ctx, alice, "", "2025-03")
	require.NoError(t, err)
	assert.NotEqual(t, rep.ID, again.ID)

	mine, err := s.ListFor(ctx, alice, Filter{Month: "2025-03"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	pending, err := s.List(ctx, Filter{Status: domain.ReportSubmitted})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, again.ID, pending[0].ID)
}

func TestCanTransition(t *testing.T) {
	for _, from := range []string{domain.ReportSubmitted, domain.ReportApproved, domain.ReportRejected} {
		assert.True(t, CanTransition(from, domain.ReportApproved), from)
		assert.True(t, CanTransition(from, domain.ReportRejected), from)
		assert.False(t, CanTransition(from, domain.ReportSubmitted), from)
	}
	assert.False(t, CanTransition("draft", domain.ReportApproved))
}
