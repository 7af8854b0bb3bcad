// Package statuses manages the ordered workflow states shown as kanban columns.
package statuses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/session"
)

var ErrDuplicateKey = errors.New("status key already exists")

type Registry struct {
	Store  docstore.Store
	Logger *slog.Logger
}

func NewRegistry(store docstore.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{Store: store, Logger: logger}
}

func ref(id string) docstore.Ref {
	return docstore.Ref{Collection: domain.CollectionStatuses, ID: id}
}

func orderedQuery() docstore.Query {
	return docstore.Collection(domain.CollectionStatuses).OrderBy("order", false).OrderBy("key", false)
}

// NormalizeKey trims and lowercases a status key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Sort orders statuses ascending by order, then key.
func Sort(list []domain.Status) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Order != list[j].Order {
			return list[i].Order < list[j].Order
		}
		return list[i].Key < list[j].Key
	})
}

// ActiveOnly projects the statuses the board shows as columns.
func ActiveOnly(list []domain.Status) []domain.Status {
	out := make([]domain.Status, 0, len(list))
	for _, st := range list {
		if st.Active {
			out = append(out, st)
		}
	}
	return out
}

// List returns every status, inactive ones included, in board order.
func (r *Registry) List(ctx context.Context) ([]domain.Status, error) {
	docs, err := r.Store.Query(ctx, orderedQuery())
	if err != nil {
		return nil, fmt.Errorf("list statuses: %w", err)
	}
	return Decode(docs)
}

// Decode converts a status snapshot into board order.
func Decode(docs []docstore.Document) ([]domain.Status, error) {
	list, err := docstore.Decode[domain.Status](docs)
	if err != nil {
		return nil, err
	}
	Sort(list)
	return list, nil
}

func (r *Registry) Get(ctx context.Context, id string) (domain.Status, error) {
	doc, err := r.Store.Get(ctx, ref(id))
	if err != nil {
		return domain.Status{}, err
	}
	var st domain.Status
	if err := doc.DataTo(&st); err != nil {
		return domain.Status{}, err
	}
	return st, nil
}

// ByKey finds a status by key, case-insensitively.
func (r *Registry) ByKey(ctx context.Context, key string) (domain.Status, error) {
	list, err := r.List(ctx)
	if err != nil {
		return domain.Status{}, err
	}
	key = NormalizeKey(key)
	for _, st := range list {
		if NormalizeKey(st.Key) == key {
			return st, nil
		}
	}
	return domain.Status{}, docstore.ErrNotFound
}

func (r *Registry) Watch(ctx context.Context) (*docstore.Subscription, error) {
	return r.Store.Subscribe(ctx, orderedQuery())
}

type CreateOptions struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Create adds an active status at the end of the board.
func (r *Registry) Create(ctx context.Context, sess session.Session, opts CreateOptions) (domain.Status, error) {
	if err := sess.RequireAdmin("create statuses"); err != nil {
		return domain.Status{}, err
	}
	return r.create(ctx, opts)
}

func (r *Registry) create(ctx context.Context, opts CreateOptions) (domain.Status, error) {
	key := NormalizeKey(opts.Key)
	label := strings.TrimSpace(opts.Label)
	if key == "" {
		return domain.Status{}, errs.Invalid("key", "is required")
	}
	if label == "" {
		return domain.Status{}, errs.Invalid("label", "is required")
	}
	list, err := r.List(ctx)
	if err != nil {
		return domain.Status{}, err
	}
	order := 0
	for i, st := range list {
		if NormalizeKey(st.Key) == key {
			return domain.Status{}, fmt.Errorf("%w: %s", ErrDuplicateKey, key)
		}
		if i == 0 || st.Order+1 > order {
			order = st.Order + 1
		}
	}
	st := domain.Status{Key: key, Label: label, Order: order, Active: true}
	fields, err := docstore.Fields(st)
	if err != nil {
		return domain.Status{}, err
	}
	id, err := r.Store.Create(ctx, domain.CollectionStatuses, fields)
	if err != nil {
		return domain.Status{}, fmt.Errorf("create status %s: %w", key, err)
	}
	st.ID = id
	r.Logger.Info("status created", "key", key, "order", order)
	return st, nil
}

// UpdateLabel renames a status. The key never changes.
func (r *Registry) UpdateLabel(ctx context.Context, sess session.Session, id, label string) (domain.Status, error) {
	if err := sess.RequireAdmin("rename statuses"); err != nil {
		return domain.Status{}, err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return domain.Status{}, errs.Invalid("label", "is required")
	}
	st, err := r.Get(ctx, id)
	if err != nil {
		return domain.Status{}, err
	}
	if err := r.Store.Update(ctx, ref(id), map[string]any{"label": label}); err != nil {
		return domain.Status{}, fmt.Errorf("rename status %s: %w", st.Key, err)
	}
	st.Label = label
	return st, nil
}

// ToggleActive flips active and leaves order untouched.
func (r *Registry) ToggleActive(ctx context.Context, sess session.Session, id string) (domain.Status, error) {
	if err := sess.RequireAdmin("toggle statuses"); err != nil {
		return domain.Status{}, err
	}
	st, err := r.Get(ctx, id)
	if err != nil {
		return domain.Status{}, err
	}
	st.Active = !st.Active
	if err := r.Store.Update(ctx, ref(id), map[string]any{"active": st.Active}); err != nil {
		return domain.Status{}, fmt.Errorf("toggle status %s: %w", st.Key, err)
	}
	r.Logger.Info("status toggled", "key", st.Key, "active", st.Active)
	return st, nil
}

// Reorder assigns each status its index in ids. ids must name every
// status exactly once. Changed orders are written in one batch.
func (r *Registry) Reorder(ctx context.Context, sess session.Session, ids []string) ([]domain.Status, error) {
	if err := sess.RequireAdmin("reorder statuses"); err != nil {
		return nil, err
	}
	list, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Status, len(list))
	for _, st := range list {
		byID[st.ID] = st
	}
	if len(ids) != len(list) {
		return nil, errs.Invalid("ids", "expected %d statuses, got %d", len(list), len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, errs.Invalid("ids", "unknown status %s", id)
		}
		if seen[id] {
			return nil, errs.Invalid("ids", "status %s listed twice", id)
		}
		seen[id] = true
	}

	var writes []docstore.Write
	out := make([]domain.Status, 0, len(ids))
	for i, id := range ids {
		st := byID[id]
		if st.Order != i {
			writes = append(writes, docstore.Write{Ref: ref(id), Fields: map[string]any{"order": i}})
			st.Order = i
		}
		out = append(out, st)
	}
	if err := r.Store.BatchUpdate(ctx, writes); err != nil {
		return nil, fmt.Errorf("reorder statuses: %w", err)
	}
	r.Logger.Info("statuses reordered", "changed", len(writes))
	return out, nil
}

// SeedDefaults creates seeds when the registry is empty.
func (r *Registry) SeedDefaults(ctx context.Context, seeds []CreateOptions) (int, error) {
	list, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(list) > 0 {
		return 0, nil
	}
	for i, seed := range seeds {
		if _, err := r.create(ctx, seed); err != nil {
			return i, err
		}
	}
	return len(seeds), nil
}

// DefaultSeeds are used when no statuses are configured.
func DefaultSeeds() []CreateOptions {
	return []CreateOptions{
		{Key: "todo", Label: "To do"},
		{Key: "doing", Label: "In progress"},
		{Key: "done", Label: "Done"},
	}
}
