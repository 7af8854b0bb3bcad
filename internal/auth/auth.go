// Package auth signs users in with a password and issues HS256 tokens.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/users"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Config struct {
	Secret string
	TTL    time.Duration
	Issuer string
}

// Principal is what a verified token says about its bearer.
type Principal struct {
	UserID    string
	Role      string
	TokenID   string
	ExpiresAt time.Time
}

// Login is the result of a successful sign-in.
type Login struct {
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expiresAt" format:"date-time"`
	User      domain.User `json:"user"`
}

// StateChange is delivered to OnAuthStateChange listeners.
type StateChange struct {
	UserID   string
	SignedIn bool
}

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type Provider struct {
	Users  *users.Service
	DB     *sql.DB
	Config Config
	Now    func() time.Time
	Logger *slog.Logger

	mu        sync.Mutex
	nextID    int
	listeners map[int]func(StateChange)
}

func NewProvider(u *users.Service, db *sql.DB, cfg Config, now func() time.Time, logger *slog.Logger) *Provider {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Provider{Users: u, DB: db, Config: cfg, Now: now, Logger: logger, listeners: map[int]func(StateChange){}}
}

// SignIn checks the password of an active user and issues a token.
func (p *Provider) SignIn(ctx context.Context, email, password string) (Login, error) {
	u, err := p.Users.ByEmail(ctx, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return Login{}, ErrInvalidCredentials
	}
	if err != nil {
		return Login{}, err
	}
	if !u.Active || !users.CheckPassword(u, password) {
		p.Logger.Warn("sign-in rejected", "email", users.NormalizeEmail(email))
		return Login{}, ErrInvalidCredentials
	}
	login, err := p.Issue(u)
	if err != nil {
		return Login{}, err
	}
	p.emit(StateChange{UserID: u.ID, SignedIn: true})
	return login, nil
}

// Issue signs a token for u without checking a password.
func (p *Provider) Issue(u domain.User) (Login, error) {
	if strings.TrimSpace(p.Config.Secret) == "" {
		return Login{}, errors.New("jwt secret not configured")
	}
	now := p.Now().UTC()
	exp := now.Add(p.Config.TTL)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    p.Config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: u.Role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(p.Config.Secret))
	if err != nil {
		return Login{}, fmt.Errorf("sign token: %w", err)
	}
	return Login{Token: signed, ExpiresAt: exp.Format(time.RFC3339), User: users.Public(u)}, nil
}

func (p *Provider) parse(token string) (*claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.Now),
		jwt.WithExpirationRequired(),
	}
	if p.Config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.Config.Issuer))
	}
	c := &claims{}
	parsed, err := jwt.NewParser(opts...).ParseWithClaims(token, c, func(t *jwt.Token) (any, error) {
		return []byte(p.Config.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidCredentials
	}
	if c.Subject == "" || c.ID == "" {
		return nil, ErrInvalidCredentials
	}
	return c, nil
}

// Verify validates the signature, expiry and revocation state of token.
func (p *Provider) Verify(ctx context.Context, token string) (Principal, error) {
	c, err := p.parse(token)
	if err != nil {
		return Principal{}, err
	}
	var n int
	err = p.DB.QueryRowContext(ctx, `SELECT count(*) FROM revoked_tokens WHERE token_id=?`, c.ID).Scan(&n)
	if err != nil {
		return Principal{}, fmt.Errorf("check revocation: %w", err)
	}
	if n > 0 {
		return Principal{}, ErrInvalidCredentials
	}
	return Principal{UserID: c.Subject, Role: c.Role, TokenID: c.ID, ExpiresAt: c.ExpiresAt.Time}, nil
}

// Authenticate verifies token and loads its user, which must be active.
func (p *Provider) Authenticate(ctx context.Context, token string) (domain.User, error) {
	pr, err := p.Verify(ctx, token)
	if err != nil {
		return domain.User{}, err
	}
	u, err := p.Users.Get(ctx, pr.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if !u.Active {
		return domain.User{}, ErrInvalidCredentials
	}
	return users.Public(u), nil
}

// SignOut revokes token until it would have expired.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	pr, err := p.Verify(ctx, token)
	if err != nil {
		return err
	}
	now := p.Now().UTC()
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < ?`, now.Format(time.RFC3339)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO revoked_tokens(token_id,user_id,revoked_at,expires_at) VALUES (?,?,?,?)`,
		pr.TokenID, pr.UserID, now.Format(time.RFC3339), pr.ExpiresAt.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	p.emit(StateChange{UserID: pr.UserID, SignedIn: false})
	return nil
}

// OnAuthStateChange registers cb for sign-in and sign-out events and
// returns a function that removes it.
func (p *Provider) OnAuthStateChange(cb func(StateChange)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = cb
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) emit(change StateChange) {
	p.mu.Lock()
	cbs := make([]func(StateChange), 0, len(p.listeners))
	for _, cb := range p.listeners {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(change)
	}
}
