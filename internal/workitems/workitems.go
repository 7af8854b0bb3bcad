// Package workitems stores kanban cards.
package workitems

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/session"
	"trackly/internal/statuses"
)

type Service struct {
	Store    docstore.Store
	Statuses *statuses.Registry
	Now      func() time.Time
	Logger   *slog.Logger
	Validate *validator.Validate
}

func NewService(store docstore.Store, reg *statuses.Registry, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Statuses: reg, Now: now, Logger: logger, Validate: errs.NewValidator()}
}

type CreateOptions struct {
	Title         string   `json:"title" validate:"required,max=200"`
	Description   string   `json:"description,omitempty" validate:"max=5000"`
	Status        string   `json:"status,omitempty"`
	Priority      string   `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	ProjectID     string   `json:"projectId,omitempty"`
	AssignedTo    string   `json:"assignedTo,omitempty"`
	EstimateHours *float64 `json:"estimateHours,omitempty" validate:"omitempty,gte=0"`
}

type UpdateOptions struct {
	Title         *string  `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description   *string  `json:"description,omitempty" validate:"omitempty,max=5000"`
	Priority      *string  `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	ProjectID     *string  `json:"projectId,omitempty"`
	AssignedTo    *string  `json:"assignedTo,omitempty"`
	EstimateHours *float64 `json:"estimateHours,omitempty" validate:"omitempty,gte=0"`
	ActualHours   *float64 `json:"actualHours,omitempty" validate:"omitempty,gte=0"`
	Active        *bool    `json:"active,omitempty"`
}

type ListFilter struct {
	Status     string
	AssignedTo string
	ActiveOnly bool
}

func ref(id string) docstore.Ref {
	return docstore.Ref{Collection: domain.CollectionWorkItems, ID: id}
}

func (s *Service) ts() string {
	return s.Now().UTC().Format(time.RFC3339)
}

// activeStatus resolves key to an active status, or the first active
// status when key is empty.
func (s *Service) activeStatus(ctx context.Context, key string) (domain.Status, error) {
	list, err := s.Statuses.List(ctx)
	if err != nil {
		return domain.Status{}, err
	}
	active := statuses.ActiveOnly(list)
	if key == "" {
		if len(active) == 0 {
			return domain.Status{}, errs.Invalid("status", "no active status available")
		}
		return active[0], nil
	}
	key = statuses.NormalizeKey(key)
	for _, st := range list {
		if st.Key != key {
			continue
		}
		if !st.Active {
			return domain.Status{}, errs.Invalid("status", "status %s is inactive", key)
		}
		return st, nil
	}
	return domain.Status{}, errs.Invalid("status", "unknown status %s", key)
}

func (s *Service) Create(ctx context.Context, sess session.Session, opts CreateOptions) (domain.WorkItem, error) {
	if err := sess.RequireAdmin("create work items"); err != nil {
		return domain.WorkItem{}, err
	}
	opts.Title = strings.TrimSpace(opts.Title)
	if err := errs.FromValidator(s.Validate.Struct(opts)); err != nil {
		return domain.WorkItem{}, err
	}
	st, err := s.activeStatus(ctx, opts.Status)
	if err != nil {
		return domain.WorkItem{}, err
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	item := domain.WorkItem{
		Title:         opts.Title,
		Description:   opts.Description,
		Status:        st.Key,
		Priority:      opts.Priority,
		ProjectID:     opts.ProjectID,
		AssignedTo:    opts.AssignedTo,
		EstimateHours: opts.EstimateHours,
		Active:        true,
		CreatedAt:     s.ts(),
		CreatedBy:     sess.ActorID(),
	}
	fields, err := docstore.Fields(item)
	if err != nil {
		return domain.WorkItem{}, err
	}
	id, err := s.Store.Create(ctx, domain.CollectionWorkItems, fields)
	if err != nil {
		return domain.WorkItem{}, fmt.Errorf("create work item: %w", err)
	}
	item.ID = id
	s.Logger.Info("work item created", "item", id, "status", item.Status, "actor", sess.ActorID())
	return item, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.WorkItem, error) {
	doc, err := s.Store.Get(ctx, ref(id))
	if err != nil {
		return domain.WorkItem{}, err
	}
	var item domain.WorkItem
	if err := doc.DataTo(&item); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

func (s *Service) Update(ctx context.Context, sess session.Session, id string, opts UpdateOptions) (domain.WorkItem, error) {
	if err := sess.RequireAdmin("edit work items"); err != nil {
		return domain.WorkItem{}, err
	}
	if err := errs.FromValidator(s.Validate.Struct(opts)); err != nil {
		return domain.WorkItem{}, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return domain.WorkItem{}, err
	}
	fields := map[string]any{}
	if opts.Title != nil {
		fields["title"] = strings.TrimSpace(*opts.Title)
	}
	if opts.Description != nil {
		fields["description"] = *opts.Description
	}
	if opts.Priority != nil {
		fields["priority"] = *opts.Priority
	}
	if opts.ProjectID != nil {
		fields["projectId"] = *opts.ProjectID
	}
	if opts.AssignedTo != nil {
		fields["assignedTo"] = *opts.AssignedTo
	}
	if opts.EstimateHours != nil {
		fields["estimateHours"] = *opts.EstimateHours
	}
	if opts.ActualHours != nil {
		fields["actualHours"] = *opts.ActualHours
	}
	if opts.Active != nil {
		fields["active"] = *opts.Active
	}
	if len(fields) == 0 {
		return domain.WorkItem{}, errs.Invalid("", "no fields to update")
	}
	fields["updatedAt"] = s.ts()
	fields["updatedBy"] = sess.ActorID()
	if err := s.Store.Update(ctx, ref(id), fields); err != nil {
		return domain.WorkItem{}, fmt.Errorf("update work item %s: %w", id, err)
	}
	return s.Get(ctx, id)
}

// UpdateStatus moves an item to an active status column.
func (s *Service) UpdateStatus(ctx context.Context, itemID, status, actorID string) error {
	if strings.TrimSpace(status) == "" {
		return errs.Invalid("status", "is required")
	}
	st, err := s.activeStatus(ctx, status)
	if err != nil {
		return err
	}
	err = s.Store.Update(ctx, ref(itemID), map[string]any{
		"status":    st.Key,
		"updatedAt": s.ts(),
		"updatedBy": actorID,
	})
	if err != nil {
		return fmt.Errorf("move work item %s: %w", itemID, err)
	}
	s.Logger.Info("work item moved", "item", itemID, "status", st.Key, "actor", actorID)
	return nil
}

// Move is UpdateStatus for a session.
func (s *Service) Move(ctx context.Context, sess session.Session, itemID, status string) (domain.WorkItem, error) {
	if err := sess.RequireAdmin("move work items"); err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.UpdateStatus(ctx, itemID, status, sess.ActorID()); err != nil {
		return domain.WorkItem{}, err
	}
	return s.Get(ctx, itemID)
}

func query(f ListFilter) docstore.Query {
	q := docstore.Collection(domain.CollectionWorkItems)
	if f.Status != "" {
		q = q.Where("status", statuses.NormalizeKey(f.Status))
	}
	if f.AssignedTo != "" {
		q = q.Where("assignedTo", f.AssignedTo)
	}
	if f.ActiveOnly {
		q = q.Where("active", true)
	}
	return q.OrderBy("createdAt", false)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.WorkItem, error) {
	docs, err := s.Store.Query(ctx, query(f))
	if err != nil {
		return nil, fmt.Errorf("list work items: %w", err)
	}
	return docstore.Decode[domain.WorkItem](docs)
}

func (s *Service) Watch(ctx context.Context, f ListFilter) (*docstore.Subscription, error) {
	return s.Store.Subscribe(ctx, query(f))
}
