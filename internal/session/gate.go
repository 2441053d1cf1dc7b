// Package session keeps a user's social-network access token usable.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pders01/fwrdpost/internal/debuglog"
	"github.com/pders01/fwrdpost/internal/model"
)

const (
	// DefaultValidity applies when the provider did not report a lifetime.
	DefaultValidity = 7200 * time.Second
	// RefreshMargin is how long before expiry a token is already treated as expired.
	RefreshMargin = 300 * time.Second
)

// Store persists tokens. LoadSession returns model.ErrNotFound when the user
// has no stored session. StoreSession upserts and returns the stored token.
type Store interface {
	LoadSession(ctx context.Context, userID string) (model.Token, error)
	StoreSession(ctx context.Context, tok model.Token) (model.Token, error)
}

// Refresher exchanges a refresh token for a new token.
type Refresher interface {
	Refresh(ctx context.Context, userID, refreshToken string) (model.Token, error)
}

// Gate hands out access tokens that are valid for at least RefreshMargin.
type Gate struct {
	store     Store
	refresher Refresher
	now       func() time.Time
}

func NewGate(store Store, refresher Refresher) *Gate {
	return &Gate{store: store, refresher: refresher, now: time.Now}
}

// WithClock replaces the time source.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// ExpiresAt is the instant after which tok must be refreshed before use.
func ExpiresAt(tok model.Token) time.Time {
	validity := DefaultValidity
	if tok.Validity != nil {
		validity = *tok.Validity
	}
	return tok.IssuedAt.Add(validity - RefreshMargin)
}

// Expired reports whether tok needs a refresh at now.
func Expired(tok model.Token, now time.Time) bool {
	return !now.Before(ExpiresAt(tok))
}

// EnsureValid returns a usable token for userID, refreshing and persisting
// it first when it is about to expire.
func (g *Gate) EnsureValid(ctx context.Context, userID string) (model.Token, error) {
	tok, err := g.store.LoadSession(ctx, userID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Token{}, fmt.Errorf("%w: no session stored for user %s", model.ErrSessionUnavailable, userID)
		}
		return model.Token{}, fmt.Errorf("loading session for %s: %w", userID, err)
	}

	if !Expired(tok, g.now()) {
		return tok, nil
	}

	if tok.RefreshToken == nil || *tok.RefreshToken == "" {
		return model.Token{}, fmt.Errorf("user %s: %w", userID, model.ErrRefreshUnavailable)
	}

	debuglog.WithFields(map[string]interface{}{"user": userID}).
		Debugf("access token expired at %s, refreshing", ExpiresAt(tok).Format(time.RFC3339))

	fresh, err := g.refresher.Refresh(ctx, userID, *tok.RefreshToken)
	if err != nil {
		return model.Token{}, fmt.Errorf("refreshing session for %s: %w", userID, err)
	}
	fresh.UserID = userID
	if fresh.RefreshToken == nil {
		fresh.RefreshToken = tok.RefreshToken
	}

	stored, err := g.store.StoreSession(ctx, fresh)
	if err != nil {
		return model.Token{}, fmt.Errorf("storing refreshed session for %s: %w", userID, err)
	}
	return stored, nil
}
