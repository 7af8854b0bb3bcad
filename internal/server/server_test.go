package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"trackly/internal/app"
	"trackly/internal/config"
	"trackly/internal/domain"
	tracklysdk "trackly/sdk/go"
)

const (
	adminEmail    = "root@example.com"
	adminPassword = "root-password"
)

type testServer struct {
	URL   string
	App   *app.App
	close func()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Bootstrap.Admin.Email = adminEmail
	cfg.Bootstrap.Admin.Password = adminPassword
	a, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Config: cfg})
	if err != nil {
		t.Fatalf("open app: %v", err)
	}
	a.Users.Cost = bcrypt.MinCost
	handler, err := New(Config{App: a, BasePath: "/v1"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL: "http://" + ln.Addr().String(),
		App: a,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			a.Close()
		},
	}
	t.Cleanup(ts.close)
	return ts
}

func (s *testServer) login(t *testing.T, email, password string) *tracklysdk.Client {
	t.Helper()
	c := tracklysdk.New(s.URL)
	_, err := c.Login(context.Background(), email, password)
	require.NoError(t, err)
	return c
}

// withUser signs in as admin and creates a regular user.
func (s *testServer) withUser(t *testing.T) (admin, user *tracklysdk.Client, userID string) {
	t.Helper()
	admin = s.login(t, adminEmail, adminPassword)
	u, err := admin.CreateUser(context.Background(), "Alice", "alice@example.com", "user", "alice-password")
	require.NoError(t, err)
	return admin, s.login(t, "alice@example.com", "alice-password"), u.ID
}

func apiCode(t *testing.T, err error) (int, string) {
	t.Helper()
	var apiErr *tracklysdk.APIError
	require.True(t, errors.As(err, &apiErr), "expected api error, got %v", err)
	return apiErr.StatusCode, apiErr.Code
}

func TestPublicAndProtectedRoutes(t *testing.T) {
	srv := newTestServer(t)

	res, err := http.Get(srv.URL + "/v1/health")
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, err = http.Get(srv.URL + "/v1/openapi.json")
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "bearerAuth")

	res, err = http.Get(srv.URL + "/v1/me")
	require.NoError(t, err)
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&env))
	res.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "unauthorized", env.Error.Code)

	_, err = tracklysdk.New(srv.URL).Login(context.Background(), adminEmail, "wrong")
	status, code := apiCode(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid_credentials", code)
}

func TestLogoutRevokesToken(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	c := srv.login(t, adminEmail, adminPassword)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", me.User.Role)
	assert.True(t, me.Settings.KanbanEnabled)

	require.NoError(t, c.Logout(ctx))
	_, err = c.Me(ctx)
	status, _ := apiCode(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRecordsRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	admin, alice, aliceID := srv.withUser(t)

	rec, err := alice.LogHours(ctx, "2025-03-03", 6, "planning")
	require.NoError(t, err)
	assert.Equal(t, aliceID, rec.UserID)
	assert.Equal(t, "created", rec.ActionType)
	_, err = alice.LogHours(ctx, "2025-03-04", 4, "")
	require.NoError(t, err)

	_, err = alice.LogHours(ctx, "2025-03-05", 30, "")
	status, code := apiCode(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "bad_request", code)

	sum, err := alice.Summary(ctx, "me", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, 10.0, sum.Metrics.Total)
	assert.Equal(t, 2, sum.Metrics.DaysWorked)

	edited, err := alice.EditRecord(ctx, rec.ID, map[string]any{"hours": 8})
	require.NoError(t, err)
	assert.Equal(t, 8.0, edited.Hours)
	assert.Equal(t, "edited", edited.ActionType)

	deleted, err := admin.DeleteRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	visible, err := alice.Records(ctx, "", "2025-03", false)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
	all, err := alice.Records(ctx, "", "2025-03", true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	restored, err := alice.RestoreRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, restored.Deleted)

	_, err = alice.Summary(ctx, "someone-else", "2025-03")
	status, _ = apiCode(t, err)
	assert.Equal(t, http.StatusForbidden, status)

	inact, err := admin.Inactivity(ctx, aliceID)
	require.NoError(t, err)
	assert.False(t, inact.NeverActive)
	assert.Equal(t, "2025-03-04", inact.LastDate)

	rows, err := admin.Stats(ctx, "2025-03")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	_, err = alice.Stats(ctx, "2025-03")
	status, code = apiCode(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", code)

	xlsx, err := admin.ExportStats(ctx, "2025-03")
	require.NoError(t, err)
	assert.Equal(t, "PK", string(xlsx[:2]))
}

func TestReportWorkflow(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	admin, alice, aliceID := srv.withUser(t)

	_, err := alice.LogHours(ctx, "2025-03-03", 7.5, "")
	require.NoError(t, err)
	rep, err := alice.SubmitReport(ctx, "", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, "submitted", rep.Status)
	assert.Equal(t, 7.5, rep.TotalHours)
	assert.Equal(t, aliceID, rep.UserID)

	_, err = alice.SubmitReport(ctx, "", "2025-03")
	status, code := apiCode(t, err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "pending_report", code)

	_, err = alice.ReviewReport(ctx, rep.ID, "approved", "")
	status, _ = apiCode(t, err)
	assert.Equal(t, http.StatusForbidden, status)

	_, err = admin.ReviewReport(ctx, rep.ID, "rejected", "  ")
	status, code = apiCode(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "note_required", code)

	reviewed, err := admin.ReviewReport(ctx, rep.ID, "rejected", "missing friday")
	require.NoError(t, err)
	assert.Equal(t, "rejected", reviewed.Status)
	assert.Equal(t, "missing friday", reviewed.AdminNote)

	mine, err := alice.Reports(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "rejected", mine[0].Status)
}

func TestStatusesAndWorkItems(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	admin, alice, _ := srv.withUser(t)

	list, err := alice.Statuses(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "todo", list[0].Key)

	_, err = admin.CreateStatus(ctx, "TODO", "Again")
	status, code := apiCode(t, err)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "duplicate_key", code)

	_, err = alice.ReorderStatuses(ctx, []string{list[2].ID, list[1].ID, list[0].ID})
	status, _ = apiCode(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	reordered, err := admin.ReorderStatuses(ctx, []string{list[2].ID, list[1].ID, list[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "done", reordered[0].Key)

	_, err = alice.CreateWorkItem(ctx, "Write report", "")
	status, code = apiCode(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", code)

	item, err := admin.CreateWorkItem(ctx, "Write report", "")
	require.NoError(t, err)
	assert.Equal(t, "done", item.Status)

	_, err = alice.MoveWorkItem(ctx, item.ID, "doing")
	status, code = apiCode(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", code)

	moved, err := admin.MoveWorkItem(ctx, item.ID, "doing")
	require.NoError(t, err)
	assert.Equal(t, "doing", moved.Status)

	doing, err := alice.WorkItems(ctx, "doing")
	require.NoError(t, err)
	require.Len(t, doing, 1)
	assert.Equal(t, item.ID, doing[0].ID)
}

func TestWorkItemStreamReleasesSubscription(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	admin, _, _ := srv.withUser(t)
	item, err := admin.CreateWorkItem(ctx, "Stream me", "")
	require.NoError(t, err)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, srv.URL+"/v1/workItems/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+admin.BearerToken)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/event-stream")

	var event, data string
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if v, ok := strings.CutPrefix(line, "event: "); ok {
			event = v
		}
		if v, ok := strings.CutPrefix(line, "data: "); ok {
			data = v
			break
		}
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, "snapshot", event)
	var snap WorkItemSnapshot
	require.NoError(t, json.Unmarshal([]byte(data), &snap))
	require.Len(t, snap.Items, 1)
	assert.Equal(t, item.ID, snap.Items[0].ID)
	assert.Equal(t, 1, srv.App.Store.Subscribers(domain.CollectionWorkItems))

	cancel()
	res.Body.Close()
	deadline := time.Now().Add(2 * time.Second)
	for srv.App.Store.Subscribers(domain.CollectionWorkItems) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream subscription was not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSettingsFunctionsAndNotifications(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	admin, alice, _ := srv.withUser(t)

	perm, err := alice.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, "denied", perm)

	_, err = alice.UpdateSettings(ctx, map[string]bool{"pushNotifications": true})
	status, _ := apiCode(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	updated, err := admin.UpdateSettings(ctx, map[string]bool{"pushNotifications": true})
	require.NoError(t, err)
	assert.True(t, updated.PushNotifications)

	perm, err = alice.RequestPermission(ctx)
	require.NoError(t, err)
	assert.Equal(t, "granted", perm)
	token, err := alice.DeliveryToken(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	var created struct {
		User     tracklysdk.User `json:"user"`
		Password string          `json:"password"`
	}
	require.NoError(t, admin.Invoke(ctx, "createUser", map[string]any{"name": "Bob", "email": "bob@example.com"}, &created))
	assert.Equal(t, "bob@example.com", created.User.Email)
	srv.login(t, "bob@example.com", created.Password)

	err = alice.Invoke(ctx, "createUser", map[string]any{"name": "Eve", "email": "eve@example.com"}, nil)
	status, _ = apiCode(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	err = admin.Invoke(ctx, "nope", nil, nil)
	status, code := apiCode(t, err)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "unknown_function", code)

	hol, err := admin.SetHolidays(ctx, 2025, []string{"2025-12-25", "2025-01-01"})
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01", "2025-12-25"}, hol.Days)
	got, err := alice.Holidays(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, hol, got)

	page, err := admin.EventsPage(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.NotEmpty(t, page.NextCursor)
	assert.Greater(t, page.Items[0].ID, page.Items[1].ID)
	next, err := admin.EventsPage(ctx, 2, page.NextCursor)
	require.NoError(t, err)
	require.NotEmpty(t, next.Items)
	assert.Less(t, next.Items[0].ID, page.Items[1].ID)
}
