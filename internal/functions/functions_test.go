package functions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trackly/internal/config"
	"trackly/internal/docstore/storetest"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/session"
	"trackly/internal/settings"
	"trackly/internal/users"
)

var (
	admin = session.Session{User: domain.User{ID: "root", Role: domain.RoleAdmin}}
	user  = session.Session{User: domain.User{ID: "alice", Role: domain.RoleUser}}
)

func TestInvokeUnknown(t *testing.T) {
	g := NewGateway(nil)
	_, err := g.Invoke(context.Background(), admin, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestCreateUserIssuesPassword(t *testing.T) {
	ctx := context.Background()
	svc := users.NewService(storetest.New(t), func() time.Time { return storetest.Clock }, nil)
	svc.Cost = bcrypt.MinCost
	g := NewGateway(nil)
	g.Register("createUser", CreateUser(svc))
	assert.Equal(t, []string{"createUser"}, g.Names())

	payload := json.RawMessage(`{"name":"Carol","email":"carol@example.com"}`)
	_, err := g.Invoke(ctx, user, "createUser", payload)
	assert.True(t, errs.IsForbidden(err))

	out, err := g.Invoke(ctx, admin, "createUser", payload)
	require.NoError(t, err)
	res := out.(CreateUserResult)
	assert.Equal(t, domain.RoleUser, res.User.Role)
	assert.Len(t, res.Password, 24)

	stored, err := svc.ByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.True(t, users.CheckPassword(stored, res.Password))

	_, err = g.Invoke(ctx, admin, "createUser", json.RawMessage(`{`))
	assert.True(t, errs.IsValidation(err))
}

func TestFetchIssue(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "bot" || p != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/rest/api/2/issue/TRK-7" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key":"TRK-7","fields":{"summary":"Fix export","status":{"name":"In Progress"},"assignee":{"displayName":"Alice"}}}`))
	}))
	defer srv.Close()

	set := settings.NewService(storetest.New(t), config.Features{}, nil, nil)
	g := NewGateway(nil)
	g.Register("fetchIssue", FetchIssue(IssueTracker{BaseURL: srv.URL, User: "bot", APIToken: "tok"}, set))

	_, err := g.Invoke(ctx, user, "fetchIssue", json.RawMessage(`{"key":"TRK-7"}`))
	assert.True(t, errs.IsValidation(err), "disabled integration")

	on := true
	_, err = set.Update(ctx, admin, settings.UpdateOptions{JiraIntegration: &on})
	require.NoError(t, err)

	out, err := g.Invoke(ctx, user, "fetchIssue", json.RawMessage(`{"key":" trk-7 "}`))
	require.NoError(t, err)
	issue := out.(Issue)
	assert.Equal(t, Issue{Key: "TRK-7", Summary: "Fix export", Status: "In Progress", Assignee: "Alice", URL: srv.URL + "/browse/TRK-7"}, issue)

	_, err = g.Invoke(ctx, user, "fetchIssue", json.RawMessage(`{"key":"TRK-8"}`))
	assert.True(t, errs.IsValidation(err))
}
