// Package kanban keeps a locally rendered board of work items in step with
// the realtime feeds while a card is being dragged.
package kanban

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/statuses"
)

var (
	ErrUnknownItem    = errors.New("unknown work item")
	ErrDragInProgress = errors.New("a drag is already in progress")
	ErrNotOnBoard     = errors.New("work item is not on the board")
)

// Updater persists a status change for one item.
type Updater interface {
	UpdateStatus(ctx context.Context, itemID, status, actorID string) error
}

type Column struct {
	Status domain.Status     `json:"status"`
	Items  []domain.WorkItem `json:"items"`
}

// Board holds the items as displayed. While a drag is in flight incoming
// snapshots are held instead of applied.
type Board struct {
	Now func() time.Time

	updater Updater
	actorID string
	logger  *slog.Logger

	mu       sync.Mutex
	items    []domain.WorkItem
	columns  []domain.Status
	dragging bool
	dragID   string
	held     []domain.WorkItem
	hasHeld  bool
	changed  chan struct{}
}

func NewBoard(u Updater, actorID string, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		Now:     time.Now,
		updater: u,
		actorID: actorID,
		logger:  logger,
		changed: make(chan struct{}, 1),
	}
}

// Changed signals after the displayed state changes. Signals coalesce.
func (b *Board) Changed() <-chan struct{} {
	return b.changed
}

func (b *Board) signal() {
	select {
	case b.changed <- struct{}{}:
	default:
	}
}

// ApplySnapshot replaces the displayed items unless a drag is in flight.
// It reports whether the snapshot was applied.
func (b *Board) ApplySnapshot(items []domain.WorkItem) bool {
	cp := append([]domain.WorkItem(nil), items...)
	b.mu.Lock()
	if b.dragging {
		b.held, b.hasHeld = cp, true
		b.mu.Unlock()
		return false
	}
	b.items = cp
	b.mu.Unlock()
	b.signal()
	return true
}

// SetColumns installs the active statuses as columns in board order.
func (b *Board) SetColumns(list []domain.Status) {
	cols := statuses.ActiveOnly(list)
	statuses.Sort(cols)
	b.mu.Lock()
	b.columns = cols
	b.mu.Unlock()
	b.signal()
}

func (b *Board) DragStart(itemID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dragging {
		return ErrDragInProgress
	}
	idx := b.indexOf(itemID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownItem, itemID)
	}
	if it := b.items[idx]; !it.Active || !b.visible(it.Status) {
		return fmt.Errorf("%w: %s", ErrNotOnBoard, itemID)
	}
	b.dragging = true
	b.dragID = itemID
	return nil
}

// DragCancel ends the drag without moving anything. A snapshot held
// during the drag is applied.
func (b *Board) DragCancel() {
	b.mu.Lock()
	applied := b.endDrag(true)
	b.mu.Unlock()
	if applied {
		b.signal()
	}
}

// DragEnd drops the dragged item on target. Dropping on the same column,
// on no column or on a hidden column changes nothing. Otherwise the item
// is moved locally before the updater is called; an updater failure is
// logged and returned and the local move stays until the next snapshot.
func (b *Board) DragEnd(ctx context.Context, target string) (bool, error) {
	b.mu.Lock()
	id := b.dragID
	wasDragging := b.dragging
	idx := b.indexOf(id)
	target = statuses.NormalizeKey(target)
	if !wasDragging || target == "" || idx < 0 || b.items[idx].Status == target || !b.visible(target) {
		applied := b.endDrag(true)
		b.mu.Unlock()
		if applied {
			b.signal()
		}
		return false, nil
	}
	b.endDrag(false)
	moved := b.items[idx]
	moved.Status = target
	moved.UpdatedBy = b.actorID
	moved.UpdatedAt = b.Now().UTC().Format(time.RFC3339)
	items := append([]domain.WorkItem(nil), b.items...)
	items[idx] = moved
	b.items = items
	b.mu.Unlock()
	b.signal()

	if err := b.updater.UpdateStatus(ctx, id, target, b.actorID); err != nil {
		b.logger.Error("move work item failed", "item", id, "status", target, "err", err)
		return true, err
	}
	return true, nil
}

// endDrag clears the drag state. With apply set a held snapshot replaces
// the items, otherwise it is dropped. Callers hold mu.
func (b *Board) endDrag(apply bool) bool {
	held, hasHeld := b.held, b.hasHeld
	b.dragging = false
	b.dragID = ""
	b.held, b.hasHeld = nil, false
	if apply && hasHeld {
		b.items = held
		return true
	}
	return false
}

func (b *Board) indexOf(id string) int {
	for i, it := range b.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (b *Board) visible(key string) bool {
	for _, c := range b.columns {
		if c.Key == key {
			return true
		}
	}
	return false
}

func (b *Board) Dragging() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dragging
}

// Items returns a copy of the displayed items.
func (b *Board) Items() []domain.WorkItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.WorkItem(nil), b.items...)
}

// Columns partitions active items by visible column. Items whose status
// is hidden are not shown.
func (b *Board) Columns() []Column {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Column, 0, len(b.columns))
	pos := make(map[string]int, len(b.columns))
	for i, st := range b.columns {
		pos[st.Key] = i
		out = append(out, Column{Status: st, Items: []domain.WorkItem{}})
	}
	for _, it := range b.items {
		if !it.Active {
			continue
		}
		if i, ok := pos[it.Status]; ok {
			out[i].Items = append(out[i].Items, it)
		}
	}
	return out
}

// Run feeds the board from a work item and a status subscription until
// ctx ends or both subscriptions close.
func (b *Board) Run(ctx context.Context, items, cols *docstore.Subscription) error {
	itemC, colC := items.C, cols.C
	for itemC != nil || colC != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-itemC:
			if !ok {
				itemC = nil
				continue
			}
			if snap.Err != nil {
				b.logger.Warn("work item feed error", "err", snap.Err)
				continue
			}
			list, err := docstore.Decode[domain.WorkItem](snap.Docs)
			if err != nil {
				b.logger.Warn("decode work items", "err", err)
				continue
			}
			b.ApplySnapshot(list)
		case snap, ok := <-colC:
			if !ok {
				colC = nil
				continue
			}
			if snap.Err != nil {
				b.logger.Warn("status feed error", "err", snap.Err)
				continue
			}
			list, err := statuses.Decode(snap.Docs)
			if err != nil {
				b.logger.Warn("decode statuses", "err", err)
				continue
			}
			b.SetColumns(list)
		}
	}
	return nil
}
