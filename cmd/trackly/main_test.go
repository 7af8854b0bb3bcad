package main

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/app"
	"trackly/internal/config"
	"trackly/internal/session"
	"trackly/internal/workitems"
)

func TestLoadConfigOverrides(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(config.GenerateDefault("file-secret-0123456789")), 0o600))

	viper.Set("jwt-secret", "")
	cfg, err := loadConfig(ws)
	require.NoError(t, err)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.JWTSecret)

	viper.Set("jwt-secret", "short")
	t.Cleanup(func() { viper.Set("jwt-secret", "") })
	_, err = loadConfig(ws)
	assert.Error(t, err)
}

func TestNewLoggerLevels(t *testing.T) {
	ctx := context.Background()
	l := newLogger("json", "warn")
	assert.False(t, l.Enabled(ctx, slog.LevelInfo))
	assert.True(t, l.Enabled(ctx, slog.LevelWarn))
	assert.True(t, newLogger("text", "bogus").Enabled(ctx, slog.LevelInfo))
}

func TestBoardMoveThroughCLIHelpers(t *testing.T) {
	ws := t.TempDir()
	viper.Set("workspace", ws)
	t.Cleanup(func() { viper.Set("workspace", ".") })
	ctx := context.Background()

	var itemID string
	require.NoError(t, withApp(ctx, func(ctx context.Context, a *app.App, sess session.Session) error {
		item, err := a.WorkItems.Create(ctx, sess, workitems.CreateOptions{Title: "Draft"})
		itemID = item.ID
		return err
	}))
	require.NoError(t, withApp(ctx, func(ctx context.Context, a *app.App, sess session.Session) error {
		scope := session.NewScope()
		defer scope.Dispose()
		board, err := loadBoard(ctx, a, scope)
		require.NoError(t, err)
		require.NoError(t, board.DragStart(itemID))
		moved, err := board.DragEnd(ctx, "done")
		require.NoError(t, err)
		assert.True(t, moved)
		got, err := a.WorkItems.Get(ctx, itemID)
		require.NoError(t, err)
		assert.Equal(t, "done", got.Status)
		assert.Equal(t, cliActor, got.UpdatedBy)
		return nil
	}))
}
