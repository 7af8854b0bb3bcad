package hours

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/session"
)

// Service stores time records and keeps their audit fields current.
type Service struct {
	Store    docstore.Store
	Now      func() time.Time
	Logger   *slog.Logger
	Validate *validator.Validate
}

func NewService(store docstore.Store, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Now: now, Logger: logger, Validate: errs.NewValidator()}
}

type LogOptions struct {
	UserID      string  `json:"userId" validate:"required"`
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	Hours       float64 `json:"hours" validate:"gte=0,lte=24"`
	Project     string  `json:"project,omitempty" validate:"max=200"`
	TaskID      string  `json:"taskId,omitempty"`
	TaskTypeID  string  `json:"taskTypeId,omitempty"`
	JiraIssue   string  `json:"jiraIssue,omitempty" validate:"max=64"`
	Description string  `json:"description" validate:"max=2000"`
}

type EditOptions struct {
	Date        *string  `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Hours       *float64 `json:"hours,omitempty" validate:"omitempty,gte=0,lte=24"`
	Project     *string  `json:"project,omitempty" validate:"omitempty,max=200"`
	TaskID      *string  `json:"taskId,omitempty"`
	TaskTypeID  *string  `json:"taskTypeId,omitempty"`
	JiraIssue   *string  `json:"jiraIssue,omitempty" validate:"omitempty,max=64"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
}

func (s *Service) ts() string {
	return s.Now().UTC().Format(time.RFC3339)
}

func ref(id string) docstore.Ref {
	return docstore.Ref{Collection: domain.CollectionTimeRecords, ID: id}
}

func (s *Service) Log(ctx context.Context, sess session.Session, opts LogOptions) (domain.TimeRecord, error) {
	if err := errs.FromValidator(s.Validate.Struct(opts)); err != nil {
		return domain.TimeRecord{}, err
	}
	if !sess.CanActFor(opts.UserID) {
		return domain.TimeRecord{}, errs.ForbiddenError{Action: "log hours for another user"}
	}
	rec := domain.TimeRecord{
		UserID:        opts.UserID,
		Date:          opts.Date,
		Hours:         opts.Hours,
		Project:       opts.Project,
		TaskID:        opts.TaskID,
		TaskTypeID:    opts.TaskTypeID,
		JiraIssue:     opts.JiraIssue,
		Description:   opts.Description,
		ActionType:    domain.ActionCreated,
		CreatedBy:     sess.ActorID(),
		CreatedByRole: sess.Role(),
		CreatedAt:     s.ts(),
	}
	fields, err := docstore.Fields(rec)
	if err != nil {
		return domain.TimeRecord{}, err
	}
	id, err := s.Store.Create(ctx, domain.CollectionTimeRecords, fields)
	if err != nil {
		return domain.TimeRecord{}, fmt.Errorf("log hours: %w", err)
	}
	rec.ID = id
	s.Logger.Info("hours logged", "record", id, "user", rec.UserID, "date", rec.Date, "hours", rec.Hours, "actor", sess.ActorID())
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.TimeRecord, error) {
	doc, err := s.Store.Get(ctx, ref(id))
	if err != nil {
		return domain.TimeRecord{}, err
	}
	var rec domain.TimeRecord
	if err := doc.DataTo(&rec); err != nil {
		return domain.TimeRecord{}, err
	}
	return rec, nil
}

func (s *Service) owned(ctx context.Context, sess session.Session, id, action string) (domain.TimeRecord, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return domain.TimeRecord{}, err
	}
	if !sess.CanActFor(rec.UserID) {
		return domain.TimeRecord{}, errs.ForbiddenError{Action: action + " another user's record"}
	}
	return rec, nil
}

func (s *Service) Edit(ctx context.Context, sess session.Session, id string, opts EditOptions) (domain.TimeRecord, error) {
	if err := errs.FromValidator(s.Validate.Struct(opts)); err != nil {
		return domain.TimeRecord{}, err
	}
	rec, err := s.owned(ctx, sess, id, "edit")
	if err != nil {
		return domain.TimeRecord{}, err
	}
	if rec.Deleted {
		return domain.TimeRecord{}, errs.Invalid("id", "record %s is deleted; restore it first", id)
	}
	fields := map[string]any{}
	setString := func(key string, v *string, dst *string) {
		if v != nil {
			fields[key] = *v
			*dst = *v
		}
	}
	setString("date", opts.Date, &rec.Date)
	setString("project", opts.Project, &rec.Project)
	setString("taskId", opts.TaskID, &rec.TaskID)
	setString("taskTypeId", opts.TaskTypeID, &rec.TaskTypeID)
	setString("jiraIssue", opts.JiraIssue, &rec.JiraIssue)
	setString("description", opts.Description, &rec.Description)
	if opts.Hours != nil {
		fields["hours"] = *opts.Hours
		rec.Hours = *opts.Hours
	}
	if len(fields) == 0 {
		return domain.TimeRecord{}, errs.Invalid("", "no fields to update")
	}
	rec.ActionType = domain.ActionEdited
	rec.ModifiedBy = sess.ActorID()
	rec.ModifiedByRole = sess.Role()
	rec.UpdatedAt = s.ts()
	fields["actionType"] = rec.ActionType
	fields["modifiedBy"] = rec.ModifiedBy
	fields["modifiedByRole"] = rec.ModifiedByRole
	fields["updatedAt"] = rec.UpdatedAt
	if err := s.Store.Update(ctx, ref(id), fields); err != nil {
		return domain.TimeRecord{}, fmt.Errorf("edit record %s: %w", id, err)
	}
	return rec, nil
}

// Delete soft-deletes a record. Deleting a deleted record changes nothing.
func (s *Service) Delete(ctx context.Context, sess session.Session, id string) (domain.TimeRecord, error) {
	rec, err := s.owned(ctx, sess, id, "delete")
	if err != nil {
		return domain.TimeRecord{}, err
	}
	if rec.Deleted {
		return rec, nil
	}
	rec.Deleted = true
	rec.ActionType = domain.ActionDeleted
	rec.DeletedBy = sess.ActorID()
	rec.DeletedByRole = sess.Role()
	rec.UpdatedAt = s.ts()
	err = s.Store.Update(ctx, ref(id), map[string]any{
		"deleted":       true,
		"actionType":    rec.ActionType,
		"deletedBy":     rec.DeletedBy,
		"deletedByRole": rec.DeletedByRole,
		"updatedAt":     rec.UpdatedAt,
	})
	if err != nil {
		return domain.TimeRecord{}, fmt.Errorf("delete record %s: %w", id, err)
	}
	s.Logger.Info("record deleted", "record", id, "actor", sess.ActorID())
	return rec, nil
}

func (s *Service) Restore(ctx context.Context, sess session.Session, id string) (domain.TimeRecord, error) {
	rec, err := s.owned(ctx, sess, id, "restore")
	if err != nil {
		return domain.TimeRecord{}, err
	}
	if !rec.Deleted {
		return rec, nil
	}
	rec.Deleted = false
	rec.ActionType = domain.ActionRestored
	rec.ModifiedBy = sess.ActorID()
	rec.ModifiedByRole = sess.Role()
	rec.UpdatedAt = s.ts()
	err = s.Store.Update(ctx, ref(id), map[string]any{
		"deleted":        false,
		"actionType":     rec.ActionType,
		"modifiedBy":     rec.ModifiedBy,
		"modifiedByRole": rec.ModifiedByRole,
		"updatedAt":      rec.UpdatedAt,
	})
	if err != nil {
		return domain.TimeRecord{}, fmt.Errorf("restore record %s: %w", id, err)
	}
	return rec, nil
}

func userQuery(userID string) docstore.Query {
	return docstore.Collection(domain.CollectionTimeRecords).Where("userId", userID).OrderBy("date", false)
}

// List returns a user's records, optionally limited to month (YYYY-MM).
func (s *Service) List(ctx context.Context, userID, month string, includeDeleted bool) ([]domain.TimeRecord, error) {
	if month != "" {
		if err := ValidMonth(month); err != nil {
			return nil, err
		}
	}
	docs, err := s.Store.Query(ctx, userQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return DecodeRecords(docs, month, includeDeleted)
}

// DecodeRecords turns a snapshot of time records into values, keeping
// month (when set) and dropping deleted records unless includeDeleted.
func DecodeRecords(docs []docstore.Document, month string, includeDeleted bool) ([]domain.TimeRecord, error) {
	recs, err := docstore.Decode[domain.TimeRecord](docs)
	if err != nil {
		return nil, err
	}
	if month != "" {
		recs = FilterMonth(recs, month)
	}
	if includeDeleted {
		return recs, nil
	}
	out := recs[:0]
	for _, r := range recs {
		if !r.Deleted {
			out = append(out, r)
		}
	}
	return out, nil
}

// Watch subscribes to all of a user's records. Decode snapshots with
// DecodeRecords to narrow them to a month.
func (s *Service) Watch(ctx context.Context, userID string) (*docstore.Subscription, error) {
	return s.Store.Subscribe(ctx, userQuery(userID))
}

func (s *Service) Summary(ctx context.Context, userID, month string) (Summary, error) {
	if err := ValidMonth(month); err != nil {
		return Summary{}, err
	}
	recs, err := s.List(ctx, userID, month, false)
	if err != nil {
		return Summary{}, err
	}
	return Aggregate(recs), nil
}

type Activity struct {
	At   *time.Time `json:"at,omitempty"`
	Date string     `json:"date,omitempty"`
}

// LastActivity returns the latest createdAt and the latest valid date among
// the user's non-deleted records, or a zero Activity.
func (s *Service) LastActivity(ctx context.Context, userID string) (Activity, error) {
	recs, err := s.List(ctx, userID, "", false)
	if err != nil {
		return Activity{}, err
	}
	return lastActivity(recs), nil
}

func lastActivity(recs []domain.TimeRecord) Activity {
	var act Activity
	dates := make([]string, 0, len(recs))
	for _, r := range recs {
		if _, err := time.Parse(dateLayout, r.Date); err == nil {
			dates = append(dates, r.Date)
		}
		at, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			continue
		}
		if act.At == nil || at.After(*act.At) {
			act.At = &at
		}
	}
	sort.Strings(dates)
	if len(dates) > 0 {
		act.Date = dates[len(dates)-1]
	}
	return act
}

// Inactivity reports how long the user has been idle as of Now.
func (s *Service) Inactivity(ctx context.Context, userID string, alertsEnabled bool) (Inactivity, error) {
	act, err := s.LastActivity(ctx, userID)
	if err != nil {
		return Inactivity{}, err
	}
	return CheckInactivity(act.At, s.Now(), alertsEnabled), nil
}
