// Package reports implements the monthly report submission and review flow.
package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/hours"
	"trackly/internal/session"
)

var (
	ErrPendingReport   = errors.New("a submitted report already exists for this month")
	ErrNoteRequired    = errors.New("a review note is required")
	ErrInvalidDecision = errors.New("decision must be approved or rejected")
)

// UserLookup resolves display names for report owners.
type UserLookup interface {
	Get(ctx context.Context, id string) (domain.User, error)
}

type Service struct {
	Store  docstore.Store
	Hours  *hours.Service
	Users  UserLookup
	Now    func() time.Time
	Logger *slog.Logger
}

func NewService(store docstore.Store, hrs *hours.Service, users UserLookup, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Hours: hrs, Users: users, Now: now, Logger: logger}
}

func ref(id string) docstore.Ref {
	return docstore.Ref{Collection: domain.CollectionReports, ID: id}
}

// CanTransition reports whether a report in from may be moved to to.
// Reports start submitted; admins may revise approved and rejected
// decisions, but nothing returns to submitted.
func CanTransition(from, to string) bool {
	switch to {
	case domain.ReportApproved, domain.ReportRejected:
	default:
		return false
	}
	switch from {
	case domain.ReportSubmitted, domain.ReportApproved, domain.ReportRejected:
		return true
	}
	return false
}

// Submit creates a submitted report for userID and month with the total
// of the user's countable records. A report already pending for the same
// month blocks submission; approved or rejected ones do not.
func (s *Service) Submit(ctx context.Context, sess session.Session, userID, month string) (domain.MonthlyReport, error) {
	if userID == "" {
		userID = sess.ActorID()
	}
	if !sess.CanActFor(userID) {
		return domain.MonthlyReport{}, errs.ForbiddenError{Action: "submit reports for another user"}
	}
	if err := hours.ValidMonth(month); err != nil {
		return domain.MonthlyReport{}, err
	}
	existing, err := s.List(ctx, Filter{UserID: userID, Month: month, Status: domain.ReportSubmitted})
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	if len(existing) > 0 {
		return domain.MonthlyReport{}, fmt.Errorf("%w: %s %s", ErrPendingReport, userID, month)
	}
	sum, err := s.Hours.Summary(ctx, userID, month)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	name := userID
	if s.Users != nil {
		if u, err := s.Users.Get(ctx, userID); err == nil {
			name = u.Name
		} else if !errors.Is(err, docstore.ErrNotFound) {
			return domain.MonthlyReport{}, err
		}
	}
	rep := domain.MonthlyReport{
		UserID:      userID,
		UserName:    name,
		Month:       month,
		TotalHours:  sum.Metrics.Total,
		Status:      domain.ReportSubmitted,
		SubmittedAt: s.Now().UTC().Format(time.RFC3339),
	}
	fields, err := docstore.Fields(rep)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	id, err := s.Store.Create(ctx, domain.CollectionReports, fields)
	if err != nil {
		return domain.MonthlyReport{}, fmt.Errorf("submit report: %w", err)
	}
	rep.ID = id
	s.Logger.Info("report submitted", "report", id, "user", userID, "month", month, "total", rep.TotalHours)
	return rep, nil
}

// Review records an admin decision with a mandatory note.
func (s *Service) Review(ctx context.Context, sess session.Session, id, decision, note string) (domain.MonthlyReport, error) {
	if err := sess.RequireAdmin("review reports"); err != nil {
		return domain.MonthlyReport{}, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return domain.MonthlyReport{}, ErrNoteRequired
	}
	rep, err := s.Get(ctx, id)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	if !CanTransition(rep.Status, decision) {
		return domain.MonthlyReport{}, fmt.Errorf("%w: got %q", ErrInvalidDecision, decision)
	}
	rep.Status = decision
	rep.AdminNote = note
	rep.ReviewedAt = s.Now().UTC().Format(time.RFC3339)
	rep.ReviewedBy = sess.ActorID()
	err = s.Store.Update(ctx, ref(id), map[string]any{
		"status":     rep.Status,
		"adminNote":  rep.AdminNote,
		"reviewedAt": rep.ReviewedAt,
		"reviewedBy": rep.ReviewedBy,
	})
	if err != nil {
		return domain.MonthlyReport{}, fmt.Errorf("review report %s: %w", id, err)
	}
	s.Logger.Info("report reviewed", "report", id, "status", decision, "actor", sess.ActorID())
	return rep, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.MonthlyReport, error) {
	doc, err := s.Store.Get(ctx, ref(id))
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	var rep domain.MonthlyReport
	if err := doc.DataTo(&rep); err != nil {
		return domain.MonthlyReport{}, err
	}
	return rep, nil
}

type Filter struct {
	UserID string
	Month  string
	Status string
}

// List returns matching reports, newest submission first.
func (s *Service) List(ctx context.Context, f Filter) ([]domain.MonthlyReport, error) {
	q := docstore.Collection(domain.CollectionReports)
	if f.UserID != "" {
		q = q.Where("userId", f.UserID)
	}
	if f.Month != "" {
		q = q.Where("month", f.Month)
	}
	if f.Status != "" {
		q = q.Where("status", f.Status)
	}
	docs, err := s.Store.Query(ctx, q.OrderBy("submittedAt", true))
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return docstore.Decode[domain.MonthlyReport](docs)
}

// ListFor applies the session's visibility: users see only their own.
func (s *Service) ListFor(ctx context.Context, sess session.Session, f Filter) ([]domain.MonthlyReport, error) {
	if !sess.IsAdmin() {
		f.UserID = sess.ActorID()
	}
	return s.List(ctx, f)
}
