// Package sessions keeps the server-side browser session that holds the upstream tokens.
// A Session only exists once the user is authenticated.
package sessions

import (
	"sync"
	"time"

	"github.com/jrsteele09/charger-dashboard/internal/errors"
)

// NowTimeFunc is the clock used for session lifetimes, overridden in tests.
var NowTimeFunc = time.Now

// Record is the stored form of a session.
type Record struct {
	ID             string     `json:"id"`
	AccessToken    string     `json:"accessToken"`
	RefreshToken   string     `json:"refreshToken,omitempty"`
	TokenExpiresAt *time.Time `json:"tokenExpiresAt,omitempty"` // nil when the upstream did not say
	CreatedAt      time.Time  `json:"createdAt"`
	ExpiresAt      time.Time  `json:"expiresAt"`
}

// Tokens is the token set applied at login and after each refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Session is safe for concurrent use; one live update pass may refresh it from two goroutines.
type Session struct {
	mu     sync.RWMutex
	record Record
}

// New starts a session for freshly issued tokens.
func New(id string, tokens Tokens, maxAge time.Duration) (*Session, error) {
	now := NowTimeFunc()
	return FromRecord(Record{
		ID:             id,
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		TokenExpiresAt: tokens.ExpiresAt,
		CreatedAt:      now,
		ExpiresAt:      now.Add(maxAge),
	})
}

// FromRecord rebuilds a session from storage.
func FromRecord(record Record) (*Session, error) {
	if record.ID == "" {
		return nil, errors.ErrSessionNotFound
	}
	if record.AccessToken == "" {
		return nil, errors.ErrNotAuthenticated
	}
	return &Session{record: record}, nil
}

func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.ID
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.AccessToken
}

func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.RefreshToken
}

func (s *Session) TokenExpiresAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record.TokenExpiresAt == nil {
		return nil
	}
	t := *s.record.TokenExpiresAt
	return &t
}

// Record returns a copy of the stored form.
func (s *Session) Record() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record
}

// ApplyTokens replaces the access token and expiry. The refresh token is only replaced
// when a new one is supplied.
func (s *Session) ApplyTokens(tokens Tokens) error {
	if tokens.AccessToken == "" {
		return errors.ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		s.record.RefreshToken = tokens.RefreshToken
	}
	s.record.TokenExpiresAt = tokens.ExpiresAt
	return nil
}

// adopt takes over a newer stored record with the same identity.
func (s *Session) adopt(record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == s.record.ID && record.AccessToken != "" {
		s.record = record
	}
}
