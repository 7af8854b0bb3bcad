package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trackly/internal/docstore"
	"trackly/internal/docstore/storetest"
	"trackly/internal/domain"
	"trackly/internal/errs"
)

func newTestService(t *testing.T) *Service {
	s := NewService(storetest.New(t), func() time.Time { return storetest.Clock }, nil)
	s.Cost = bcrypt.MinCost
	return s
}

func TestCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	u, err := s.Create(ctx, CreateOptions{Name: "Alice", Email: " Alice@Example.com ", Role: domain.RoleUser, Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.True(t, u.Active)
	assert.True(t, CheckPassword(u, "correct horse"))
	assert.False(t, CheckPassword(u, "wrong"))

	got, err := s.ByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.Create(ctx, CreateOptions{Name: "Alice 2", Email: "alice@example.com", Role: domain.RoleUser, Password: "another pass"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = s.ByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	cases := map[string]CreateOptions{
		"email":    {Name: "A", Email: "not-an-email", Role: domain.RoleUser, Password: "longenough"},
		"role":     {Name: "A", Email: "a@example.com", Role: "owner", Password: "longenough"},
		"password": {Name: "A", Email: "a@example.com", Role: domain.RoleUser, Password: "short"},
		"name":     {Email: "a@example.com", Role: domain.RoleUser, Password: "longenough"},
	}
	for field, opts := range cases {
		_, err := s.Create(ctx, opts)
		var ve errs.ValidationError
		require.ErrorAs(t, err, &ve, field)
		assert.Equal(t, field, ve.Field)
	}
}

func TestListAndDeactivate(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	bob, err := s.Create(ctx, CreateOptions{Name: "Bob", Email: "bob@example.com", Role: domain.RoleUser, Password: "password1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, CreateOptions{Name: "Ann", Email: "ann@example.com", Role: domain.RoleAdmin, Password: "password2"})
	require.NoError(t, err)

	list, err := s.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ann", list[0].Name)
	assert.Empty(t, list[0].PasswordHash)

	off, err := s.SetActive(ctx, bob.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Active)

	active, err := s.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Ann", active[0].Name)
}
