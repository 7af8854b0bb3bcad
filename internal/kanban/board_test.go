package kanban

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackly/internal/docstore/storetest"
	"trackly/internal/domain"
	"trackly/internal/session"
	"trackly/internal/statuses"
	"trackly/internal/workitems"
)

type move struct{ id, status, actor string }

type fakeUpdater struct {
	mu    sync.Mutex
	moves []move
	err   error
}

func (f *fakeUpdater) UpdateStatus(ctx context.Context, itemID, status, actorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, move{itemID, status, actorID})
	return f.err
}

func cols() []domain.Status {
	return []domain.Status{
		{ID: "s3", Key: "done", Label: "Done", Order: 2, Active: true},
		{ID: "s1", Key: "todo", Label: "To do", Order: 0, Active: true},
		{ID: "s2", Key: "doing", Label: "Doing", Order: 1, Active: true},
		{ID: "s4", Key: "archived", Label: "Archived", Order: 3, Active: false},
	}
}

func card(id, status string) domain.WorkItem {
	return domain.WorkItem{ID: id, Title: id, Status: status, Active: true}
}

func newBoard(u Updater) *Board {
	b := NewBoard(u, "root", nil)
	b.Now = func() time.Time { return storetest.Clock }
	b.SetColumns(cols())
	b.ApplySnapshot([]domain.WorkItem{card("a", "todo"), card("b", "doing")})
	return b
}

func TestSnapshotsHeldWhileDragging(t *testing.T) {
	b := newBoard(&fakeUpdater{})

	require.NoError(t, b.DragStart("a"))
	assert.True(t, b.Dragging())
	applied := b.ApplySnapshot([]domain.WorkItem{card("a", "done")})
	assert.False(t, applied)
	assert.Equal(t, []domain.WorkItem{card("a", "todo"), card("b", "doing")}, b.Items())

	b.DragCancel()
	assert.False(t, b.Dragging())
	assert.Equal(t, []domain.WorkItem{card("a", "done")}, b.Items())

	assert.True(t, b.ApplySnapshot([]domain.WorkItem{card("z", "todo")}))
	assert.Equal(t, []domain.WorkItem{card("z", "todo")}, b.Items())
}

func TestDragEndMovesOptimistically(t *testing.T) {
	u := &fakeUpdater{}
	b := newBoard(u)

	require.NoError(t, b.DragStart("a"))
	b.ApplySnapshot([]domain.WorkItem{card("a", "todo")})
	moved, err := b.DragEnd(context.Background(), "Done")
	require.NoError(t, err)
	assert.True(t, moved)
	assert.False(t, b.Dragging())

	items := b.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "done", items[0].Status)
	assert.Equal(t, "root", items[0].UpdatedBy)
	assert.Equal(t, "2025-03-10T12:00:00Z", items[0].UpdatedAt)
	assert.Equal(t, []move{{"a", "done", "root"}}, u.moves)
}

func TestDragEndNoops(t *testing.T) {
	cases := map[string]string{
		"same column":   "todo",
		"no target":     "",
		"hidden column": "archived",
		"unknown":       "backlog",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			u := &fakeUpdater{}
			b := newBoard(u)
			require.NoError(t, b.DragStart("a"))
			b.ApplySnapshot([]domain.WorkItem{card("a", "todo"), card("b", "done")})

			moved, err := b.DragEnd(context.Background(), target)
			require.NoError(t, err)
			assert.False(t, moved)
			assert.False(t, b.Dragging())
			assert.Empty(t, u.moves)
			assert.Equal(t, []domain.WorkItem{card("a", "todo"), card("b", "done")}, b.Items())
		})
	}
}

func TestDragEndFailureKeepsLocalMove(t *testing.T) {
	u := &fakeUpdater{err: errors.New("store unreachable")}
	b := newBoard(u)

	require.NoError(t, b.DragStart("b"))
	moved, err := b.DragEnd(context.Background(), "done")
	require.Error(t, err)
	assert.True(t, moved)
	assert.False(t, b.Dragging())
	assert.Equal(t, "done", b.Items()[1].Status)

	assert.True(t, b.ApplySnapshot([]domain.WorkItem{card("a", "todo"), card("b", "doing")}))
	assert.Equal(t, "doing", b.Items()[1].Status)
}

func TestDragStartRules(t *testing.T) {
	b := newBoard(&fakeUpdater{})
	assert.ErrorIs(t, b.DragStart("ghost"), ErrUnknownItem)
	assert.False(t, b.Dragging())
	require.NoError(t, b.DragStart("a"))
	assert.ErrorIs(t, b.DragStart("b"), ErrDragInProgress)
	moved, err := b.DragEnd(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, moved)
	moved, err = b.DragEnd(context.Background(), "done")
	require.NoError(t, err)
	assert.False(t, moved, "drag end without drag start")
}

func TestDragStartRejectsHiddenCards(t *testing.T) {
	u := &fakeUpdater{}
	b := newBoard(u)
	inactive := card("d", "todo")
	inactive.Active = false
	b.ApplySnapshot([]domain.WorkItem{card("a", "todo"), card("h", "archived"), card("x", "backlog"), inactive})

	for _, id := range []string{"h", "x", "d"} {
		assert.ErrorIs(t, b.DragStart(id), ErrNotOnBoard, id)
		assert.False(t, b.Dragging())
		moved, err := b.DragEnd(context.Background(), "todo")
		require.NoError(t, err)
		assert.False(t, moved)
	}
	assert.Empty(t, u.moves)
	require.NoError(t, b.DragStart("a"))
}

func TestColumnsPartitionVisibleItems(t *testing.T) {
	b := newBoard(&fakeUpdater{})
	hidden := card("c", "archived")
	inactive := card("d", "todo")
	inactive.Active = false
	b.ApplySnapshot([]domain.WorkItem{card("a", "todo"), card("b", "done"), hidden, inactive})

	got := b.Columns()
	require.Len(t, got, 3)
	assert.Equal(t, "todo", got[0].Status.Key)
	assert.Equal(t, "doing", got[1].Status.Key)
	assert.Equal(t, "done", got[2].Status.Key)
	assert.Equal(t, []domain.WorkItem{card("a", "todo")}, got[0].Items)
	assert.Empty(t, got[1].Items)
	assert.Equal(t, []domain.WorkItem{card("b", "done")}, got[2].Items)
}

func TestRunFollowsStoreFeeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := storetest.New(t)
	reg := statuses.NewRegistry(store, nil)
	_, err := reg.SeedDefaults(ctx, statuses.DefaultSeeds())
	require.NoError(t, err)
	svc := workitems.NewService(store, reg, func() time.Time { return storetest.Clock }, nil)
	admin := session.Session{User: domain.User{ID: "root", Role: domain.RoleAdmin}}
	item, err := svc.Create(ctx, admin, workitems.CreateOptions{Title: "Card"})
	require.NoError(t, err)

	itemSub, err := svc.Watch(ctx, workitems.ListFilter{})
	require.NoError(t, err)
	statusSub, err := reg.Watch(ctx)
	require.NoError(t, err)
	b := NewBoard(svc, "root", nil)
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, itemSub, statusSub) }()

	waitFor(t, b, func() bool { return len(b.Columns()) == 3 && len(b.Items()) == 1 })

	require.NoError(t, b.DragStart(item.ID))
	moved, err := b.DragEnd(ctx, "doing")
	require.NoError(t, err)
	require.True(t, moved)

	waitFor(t, b, func() bool {
		got, err := svc.Get(ctx, item.ID)
		return err == nil && got.Status == "doing" && b.Items()[0].Status == "doing"
	})

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}

func waitFor(t *testing.T, b *Board, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-b.Changed():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("condition not met")
		}
	}
}
