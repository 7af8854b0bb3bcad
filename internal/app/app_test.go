package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/config"
	"trackly/internal/domain"
)

func TestOpenSeedsWorkspace(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	cfg := config.Default()
	cfg.Bootstrap.Admin.Email = "Root@Example.com"
	cfg.Bootstrap.Admin.Password = "correct-horse"
	cfg.Statuses = []config.StatusSeed{{Key: "backlog", Label: "Backlog"}, {Key: "done", Label: "Done"}}

	a, err := Open(ctx, Options{Workspace: ws, Config: cfg})
	require.NoError(t, err)
	list, err := a.Statuses.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "backlog", list[0].Key)

	admin, err := a.Users.ByEmail(ctx, "root@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, admin.Role)
	assert.Equal(t, []string{"createUser", "fetchIssue"}, a.Functions.Names())
	require.NoError(t, a.Close())

	again, err := Open(ctx, Options{Workspace: ws, Config: cfg})
	require.NoError(t, err)
	defer again.Close()
	all, err := again.Users.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	list, err = again.Statuses.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestSinksFromConfig(t *testing.T) {
	cfg := config.Default()
	assert.Empty(t, sinks(cfg))
	cfg.Notifications.Webhooks = []config.Webhook{{URL: "http://127.0.0.1:9/hook"}}
	cfg.Notifications.Slack.Token = "xoxb-1"
	cfg.Notifications.Slack.Channel = "#hours"
	got := sinks(cfg)
	require.Len(t, got, 2)
	assert.Equal(t, "webhook http://127.0.0.1:9/hook", got[0].Name())
	assert.Equal(t, "slack #hours", got[1].Name())
}
