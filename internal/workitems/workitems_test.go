package workitems

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/docstore"
	"trackly/internal/docstore/storetest"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/session"
	"trackly/internal/statuses"
)

var (
	admin = session.Session{User: domain.User{ID: "root", Role: domain.RoleAdmin}}
	user  = session.Session{User: domain.User{ID: "alice", Role: domain.RoleUser}}
)

func newTestService(t *testing.T) (*Service, map[string]string) {
	t.Helper()
	ctx := context.Background()
	store := storetest.New(t)
	reg := statuses.NewRegistry(store, nil)
	_, err := reg.SeedDefaults(ctx, statuses.DefaultSeeds())
	require.NoError(t, err)
	list, err := reg.List(ctx)
	require.NoError(t, err)
	ids := map[string]string{}
	for _, st := range list {
		ids[st.Key] = st.ID
	}
	return NewService(store, reg, func() time.Time { return storetest.Clock }, nil), ids
}

func TestCreateDefaultsToFirstActiveStatus(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestService(t)

	item, err := s.Create(ctx, admin, CreateOptions{Title: "  Ship release "})
	require.NoError(t, err)
	assert.Equal(t, "Ship release", item.Title)
	assert.Equal(t, "todo", item.Status)
	assert.Equal(t, domain.PriorityMedium, item.Priority)
	assert.True(t, item.Active)
	assert.Equal(t, "root", item.CreatedBy)

	_, err = s.Statuses.ToggleActive(ctx, admin, ids["todo"])
	require.NoError(t, err)
	item, err = s.Create(ctx, admin, CreateOptions{Title: "Next"})
	require.NoError(t, err)
	assert.Equal(t, "doing", item.Status)

	_, err = s.Create(ctx, admin, CreateOptions{Title: "Hidden", Status: "todo"})
	assert.True(t, errs.IsValidation(err))
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	_, err := s.Create(ctx, user, CreateOptions{Title: "x"})
	assert.True(t, errs.IsForbidden(err))

	var ve errs.ValidationError
	_, err = s.Create(ctx, admin, CreateOptions{Title: " "})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)

	_, err = s.Create(ctx, admin, CreateOptions{Title: "x", Priority: "urgent"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "priority", ve.Field)

	_, err = s.Create(ctx, admin, CreateOptions{Title: "x", Status: "nope"})
	assert.True(t, errs.IsValidation(err))
}

func TestUpdateAndMove(t *testing.T) {
	ctx := context.Background()
	s, ids := newTestService(t)
	item, err := s.Create(ctx, admin, CreateOptions{Title: "Card", Priority: domain.PriorityLow})
	require.NoError(t, err)

	actual := 3.0
	updated, err := s.Update(ctx, admin, item.ID, UpdateOptions{ActualHours: &actual})
	require.NoError(t, err)
	require.NotNil(t, updated.ActualHours)
	assert.Equal(t, 3.0, *updated.ActualHours)
	assert.Equal(t, "root", updated.UpdatedBy)

	moved, err := s.Move(ctx, admin, item.ID, "DONE")
	require.NoError(t, err)
	assert.Equal(t, "done", moved.Status)

	_, err = s.Statuses.ToggleActive(ctx, admin, ids["doing"])
	require.NoError(t, err)
	err = s.UpdateStatus(ctx, item.ID, "doing", "root")
	assert.True(t, errs.IsValidation(err))
	err = s.UpdateStatus(ctx, item.ID, "", "root")
	assert.True(t, errs.IsValidation(err))
	err = s.UpdateStatus(ctx, "missing", "todo", "root")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = s.Move(ctx, user, item.ID, "todo")
	assert.True(t, errs.IsForbidden(err))
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	_, err := s.Create(ctx, admin, CreateOptions{Title: "a", AssignedTo: "alice"})
	require.NoError(t, err)
	b, err := s.Create(ctx, admin, CreateOptions{Title: "b", Status: "done"})
	require.NoError(t, err)
	inactive := false
	_, err = s.Update(ctx, admin, b.ID, UpdateOptions{Active: &inactive})
	require.NoError(t, err)

	all, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := s.List(ctx, ListFilter{AssignedTo: "alice"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "a", mine[0].Title)

	active, err := s.List(ctx, ListFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	done, err := s.List(ctx, ListFilter{Status: "done"})
	require.NoError(t, err)
	assert.Len(t, done, 1)
}
