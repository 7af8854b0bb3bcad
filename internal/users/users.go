// Package users keeps accounts and their password hashes.
package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/errs"
)

var ErrEmailTaken = errors.New("email already registered")

type Service struct {
	Store    docstore.Store
	Now      func() time.Time
	Logger   *slog.Logger
	Validate *validator.Validate
	// Cost is the bcrypt cost; tests lower it.
	Cost int
}

func NewService(store docstore.Store, now func() time.Time, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Now: now, Logger: logger, Validate: errs.NewValidator(), Cost: bcrypt.DefaultCost}
}

type CreateOptions struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Role     string `json:"role" validate:"required,oneof=admin user"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

func ref(id string) docstore.Ref {
	return docstore.Ref{Collection: domain.CollectionUsers, ID: id}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Create(ctx context.Context, opts CreateOptions) (domain.User, error) {
	opts.Email = NormalizeEmail(opts.Email)
	opts.Name = strings.TrimSpace(opts.Name)
	if err := errs.FromValidator(s.Validate.Struct(opts)); err != nil {
		return domain.User{}, err
	}
	if _, err := s.ByEmail(ctx, opts.Email); err == nil {
		return domain.User{}, fmt.Errorf("%w: %s", ErrEmailTaken, opts.Email)
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return domain.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), s.Cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := domain.User{
		Name:         opts.Name,
		Email:        opts.Email,
		Role:         opts.Role,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    s.Now().UTC().Format(time.RFC3339),
	}
	fields, err := docstore.Fields(u)
	if err != nil {
		return domain.User{}, err
	}
	id, err := s.Store.Create(ctx, domain.CollectionUsers, fields)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	u.ID = id
	s.Logger.Info("user created", "user", id, "email", u.Email, "role", u.Role)
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.User, error) {
	doc, err := s.Store.Get(ctx, ref(id))
	if err != nil {
		return domain.User{}, err
	}
	var u domain.User
	if err := doc.DataTo(&u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *Service) ByEmail(ctx context.Context, email string) (domain.User, error) {
	docs, err := s.Store.Query(ctx, docstore.Collection(domain.CollectionUsers).Where("email", NormalizeEmail(email)).Take(1))
	if err != nil {
		return domain.User{}, err
	}
	if len(docs) == 0 {
		return domain.User{}, docstore.ErrNotFound
	}
	var u domain.User
	if err := docs[0].DataTo(&u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// List returns users ordered by name, without password hashes.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.User, error) {
	q := docstore.Collection(domain.CollectionUsers).OrderBy("name", false)
	if activeOnly {
		q = q.Where("active", true)
	}
	docs, err := s.Store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	list, err := docstore.Decode[domain.User](docs)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].PasswordHash = ""
	}
	return list, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool) (domain.User, error) {
	if err := s.Store.Update(ctx, ref(id), map[string]any{"active": active}); err != nil {
		return domain.User{}, fmt.Errorf("update user %s: %w", id, err)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	u.PasswordHash = ""
	return u, nil
}

// CheckPassword reports whether password matches the user's hash.
func CheckPassword(u domain.User, password string) bool {
	return u.PasswordHash != "" && bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Public strips secrets before a user leaves the service layer.
func Public(u domain.User) domain.User {
	u.PasswordHash = ""
	return u
}
