// Package notify registers push delivery tokens and fans store events out
// to webhooks and Slack.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/settings"
	"trackly/internal/session"
)

const (
	PermissionGranted = "granted"
	PermissionDenied  = "denied"
)

// Registrar tracks per-user push permission and delivery tokens.
type Registrar struct {
	Store    docstore.Store
	Settings *settings.Service
	Now      func() time.Time
}

func tokenRef(userID string) docstore.Ref {
	return docstore.Ref{Collection: domain.CollectionDeviceTokens, ID: userID}
}

// RequestPermission grants push delivery when the pushNotifications
// setting is on, issuing a token on first grant.
func (r *Registrar) RequestPermission(ctx context.Context, sess session.Session) (string, error) {
	cfg, err := r.Settings.Get(ctx)
	if err != nil {
		return "", err
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	rec := domain.DeviceToken{UserID: sess.ActorID(), Granted: cfg.PushNotifications, UpdatedAt: now().UTC().Format(time.RFC3339)}
	if rec.Granted {
		existing, err := r.token(ctx, sess.ActorID())
		if err != nil {
			return "", err
		}
		rec.Token = existing.Token
		if rec.Token == "" {
			rec.Token = uuid.NewString()
		}
	}
	fields, err := docstore.Fields(rec)
	if err != nil {
		return "", err
	}
	if err := r.Store.Set(ctx, tokenRef(rec.UserID), fields); err != nil {
		return "", fmt.Errorf("save device token: %w", err)
	}
	if rec.Granted {
		return PermissionGranted, nil
	}
	return PermissionDenied, nil
}

func (r *Registrar) token(ctx context.Context, userID string) (domain.DeviceToken, error) {
	doc, err := r.Store.Get(ctx, tokenRef(userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.DeviceToken{UserID: userID}, nil
	}
	if err != nil {
		return domain.DeviceToken{}, err
	}
	var rec domain.DeviceToken
	if err := doc.DataTo(&rec); err != nil {
		return domain.DeviceToken{}, err
	}
	return rec, nil
}

// DeliveryToken returns the user's token, or "" when none was granted.
func (r *Registrar) DeliveryToken(ctx context.Context, userID string) (string, error) {
	rec, err := r.token(ctx, userID)
	if err != nil {
		return "", err
	}
	if !rec.Granted {
		return "", nil
	}
	return rec.Token, nil
}
