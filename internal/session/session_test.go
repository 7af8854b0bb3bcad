package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/domain"
	"trackly/internal/errs"
)

type closer struct {
	name  string
	log   *[]string
	fails bool
}

func (c *closer) Close() error {
	*c.log = append(*c.log, c.name)
	if c.fails {
		return errors.New(c.name + " failed")
	}
	return nil
}

func TestScopeDisposeCascades(t *testing.T) {
	var log []string
	root := NewScope()
	child := root.Child()
	grandchild := child.Child()

	require.NoError(t, root.Track(&closer{name: "root-1", log: &log}))
	require.NoError(t, root.Track(&closer{name: "root-2", log: &log}))
	require.NoError(t, child.Track(&closer{name: "child", log: &log, fails: true}))
	require.NoError(t, grandchild.Track(&closer{name: "grandchild", log: &log}))

	err := root.Dispose()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "child failed")
	assert.Equal(t, []string{"grandchild", "child", "root-2", "root-1"}, log)
	assert.True(t, grandchild.Disposed())

	assert.NoError(t, root.Dispose())
	assert.Len(t, log, 4)
}

func TestTrackAfterDisposeClosesImmediately(t *testing.T) {
	var log []string
	s := NewScope()
	require.NoError(t, s.Dispose())
	require.NoError(t, s.Track(&closer{name: "late", log: &log}))
	assert.Equal(t, []string{"late"}, log)
	assert.True(t, s.Child().Disposed())
}

func TestSessionRoles(t *testing.T) {
	user := Session{User: domain.User{ID: "u1", Role: domain.RoleUser}}
	admin := Session{User: domain.User{ID: "a1", Role: domain.RoleAdmin}}

	assert.True(t, user.CanActFor("u1"))
	assert.False(t, user.CanActFor("u2"))
	assert.True(t, admin.CanActFor("u2"))

	var fe errs.ForbiddenError
	require.ErrorAs(t, user.RequireAdmin("review reports"), &fe)
	assert.Equal(t, "review reports", fe.Action)
	assert.NoError(t, admin.RequireAdmin("review reports"))

	ctx := With(context.Background(), admin)
	got, ok := From(ctx)
	require.True(t, ok)
	assert.Equal(t, "a1", got.ActorID())
}
