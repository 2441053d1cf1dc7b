package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/fwrdpost/internal/model"
)

type memStore struct {
	tokens map[string]model.Token
	stored []model.Token
	err    error
}

func (m *memStore) LoadSession(_ context.Context, userID string) (model.Token, error) {
	if m.err != nil {
		return model.Token{}, m.err
	}
	tok, ok := m.tokens[userID]
	if !ok {
		return model.Token{}, model.ErrNotFound
	}
	return tok, nil
}

func (m *memStore) StoreSession(_ context.Context, tok model.Token) (model.Token, error) {
	m.stored = append(m.stored, tok)
	m.tokens[tok.UserID] = tok
	return tok, nil
}

type fakeRefresher struct {
	calls []string
	tok   model.Token
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, userID, refreshToken string) (model.Token, error) {
	f.calls = append(f.calls, userID+":"+refreshToken)
	return f.tok, f.err
}

var now = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func TestExpired(t *testing.T) {
	hour := time.Hour
	tests := []struct {
		name     string
		issued   time.Duration
		validity *time.Duration
		want     bool
	}{
		{name: "fresh default validity", issued: 100 * time.Second, want: false},
		{name: "inside refresh margin", issued: 7100 * time.Second, want: true},
		{name: "exactly at margin boundary", issued: 6900 * time.Second, want: true},
		{name: "just before boundary", issued: 6899 * time.Second, want: false},
		{name: "explicit validity", issued: 3000 * time.Second, validity: &hour, want: false},
		{name: "explicit validity expired", issued: 3400 * time.Second, validity: &hour, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := model.Token{IssuedAt: now.Add(-tt.issued), Validity: tt.validity}
			assert.Equal(t, tt.want, Expired(tok, now))
		})
	}
}

func TestEnsureValid_FreshTokenIsReturned(t *testing.T) {
	store := &memStore{tokens: map[string]model.Token{
		"u1": {UserID: "u1", AccessToken: "a1", RefreshToken: strPtr("r1"), IssuedAt: now.Add(-100 * time.Second)},
	}}
	ref := &fakeRefresher{}
	gate := NewGate(store, ref).WithClock(func() time.Time { return now })

	tok, err := gate.EnsureValid(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)
	assert.Empty(t, ref.calls)
	assert.Empty(t, store.stored)
}

func TestEnsureValid_ExpiredTokenIsRefreshedAndPersisted(t *testing.T) {
	store := &memStore{tokens: map[string]model.Token{
		"u1": {UserID: "u1", AccessToken: "old", RefreshToken: strPtr("r1"), IssuedAt: now.Add(-7100 * time.Second)},
	}}
	ref := &fakeRefresher{tok: model.Token{AccessToken: "new", RefreshToken: strPtr("r2"), IssuedAt: now}}
	gate := NewGate(store, ref).WithClock(func() time.Time { return now })

	tok, err := gate.EnsureValid(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "new", tok.AccessToken)
	assert.Equal(t, "u1", tok.UserID)
	assert.Equal(t, []string{"u1:r1"}, ref.calls)
	require.Len(t, store.stored, 1)
	assert.Equal(t, "new", store.stored[0].AccessToken)
}

func TestEnsureValid_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	store := &memStore{tokens: map[string]model.Token{
		"u1": {UserID: "u1", AccessToken: "old", RefreshToken: strPtr("r1"), IssuedAt: now.Add(-2 * time.Hour)},
	}}
	ref := &fakeRefresher{tok: model.Token{AccessToken: "new", IssuedAt: now}}
	gate := NewGate(store, ref).WithClock(func() time.Time { return now })

	tok, err := gate.EnsureValid(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, tok.RefreshToken)
	assert.Equal(t, "r1", *tok.RefreshToken)
}

func TestEnsureValid_Failures(t *testing.T) {
	expired := model.Token{UserID: "u1", AccessToken: "old", IssuedAt: now.Add(-3 * time.Hour)}

	tests := []struct {
		name    string
		store   *memStore
		ref     *fakeRefresher
		wantErr error
	}{
		{
			name:    "no session",
			store:   &memStore{tokens: map[string]model.Token{}},
			ref:     &fakeRefresher{},
			wantErr: model.ErrSessionUnavailable,
		},
		{
			name:    "expired without refresh token",
			store:   &memStore{tokens: map[string]model.Token{"u1": expired}},
			ref:     &fakeRefresher{},
			wantErr: model.ErrRefreshUnavailable,
		},
		{
			name: "refresh rejected",
			store: &memStore{tokens: map[string]model.Token{"u1": func() model.Token {
				t := expired
				t.RefreshToken = strPtr("r1")
				return t
			}()}},
			ref:     &fakeRefresher{err: model.ErrUpstreamRejected},
			wantErr: model.ErrUpstreamRejected,
		},
		{
			name:    "store failure",
			store:   &memStore{err: errors.New("disk on fire")},
			ref:     &fakeRefresher{},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := NewGate(tt.store, tt.ref).WithClock(func() time.Time { return now })
			_, err := gate.EnsureValid(context.Background(), "u1")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Empty(t, tt.store.stored)
		})
	}
}

func TestRefreshUnavailableIsSessionUnavailable(t *testing.T) {
	assert.ErrorIs(t, model.ErrRefreshUnavailable, model.ErrSessionUnavailable)
}
