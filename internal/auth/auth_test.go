package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trackly/internal/docstore/storetest"
	"trackly/internal/domain"
	"trackly/internal/users"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestProvider(t *testing.T) (*Provider, domain.User, *clock) {
	t.Helper()
	store := storetest.New(t)
	c := &clock{t: storetest.Clock}
	us := users.NewService(store, c.now, nil)
	us.Cost = bcrypt.MinCost
	u, err := us.Create(context.Background(), users.CreateOptions{Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser, Password: "password1"})
	require.NoError(t, err)
	p := NewProvider(us, store.DB, Config{Secret: "test-secret-0123456789", TTL: time.Hour, Issuer: "trackly"}, c.now, nil)
	return p, u, c
}

func TestSignInVerifySignOut(t *testing.T) {
	ctx := context.Background()
	p, u, _ := newTestProvider(t)

	var changes []StateChange
	stop := p.OnAuthStateChange(func(c StateChange) { changes = append(changes, c) })

	login, err := p.SignIn(ctx, "ALICE@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, login.User.ID)
	assert.Empty(t, login.User.PasswordHash)

	pr, err := p.Verify(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, pr.UserID)
	assert.Equal(t, domain.RoleUser, pr.Role)

	got, err := p.Authenticate(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)

	require.NoError(t, p.SignOut(ctx, login.Token))
	_, err = p.Verify(ctx, login.Token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	assert.Equal(t, []StateChange{{UserID: u.ID, SignedIn: true}, {UserID: u.ID, SignedIn: false}}, changes)
	stop()
	stop()
	_, err = p.SignIn(ctx, "alice@example.com", "password1")
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestSignInRejects(t *testing.T) {
	ctx := context.Background()
	p, u, _ := newTestProvider(t)

	_, err := p.SignIn(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = p.SignIn(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.Users.SetActive(ctx, u.ID, false)
	require.NoError(t, err)
	_, err = p.SignIn(ctx, "alice@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	ctx := context.Background()
	p, u, c := newTestProvider(t)

	login, err := p.Issue(u)
	require.NoError(t, err)
	c.t = c.t.Add(2 * time.Hour)
	_, err = p.Verify(ctx, login.Token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	other := NewProvider(p.Users, p.DB, Config{Secret: "another-secret-98765", TTL: time.Hour, Issuer: "trackly"}, c.now, nil)
	foreign, err := other.Issue(u)
	require.NoError(t, err)
	_, err = p.Verify(ctx, foreign.Token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.Verify(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
