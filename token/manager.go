// Package token keeps the upstream access token of a session fresh. Calls made through Do
// are retried exactly once after a successful refresh when the upstream answers 401.
package token

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/charger-dashboard/easee"
	"github.com/jrsteele09/charger-dashboard/internal/errors"
	"github.com/jrsteele09/charger-dashboard/sessions"
	"github.com/rs/zerolog/log"
)

// DefaultLeeway is how close to expiry a token is refreshed before use.
const DefaultLeeway = 30 * time.Second

// Refresher exchanges a refresh token for new credentials.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (easee.Credentials, error)
}

// ClientFactory binds an upstream client to an access token.
type ClientFactory interface {
	For(accessToken string) *easee.Client
}

// SessionStore persists refreshed sessions.
type SessionStore interface {
	Save(ctx context.Context, s *sessions.Session) error
	Reload(ctx context.Context, s *sessions.Session) error
}

// Recorder observes refresh outcomes.
type Recorder interface {
	TokenRefresh(ok bool)
}

type Manager struct {
	refresher Refresher
	factory   ClientFactory
	store     SessionStore
	recorder  Recorder
	leeway    time.Duration
	nowFunc   func() time.Time
	locks     *keyedMutex
}

type ManagerOption func(*Manager)

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithLeeway(leeway time.Duration) ManagerOption {
	return func(m *Manager) {
		m.leeway = leeway
	}
}

func WithRecorder(recorder Recorder) ManagerOption {
	return func(m *Manager) {
		m.recorder = recorder
	}
}

func NewManager(refresher Refresher, factory ClientFactory, store SessionStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		refresher: refresher,
		factory:   factory,
		store:     store,
		leeway:    DefaultLeeway,
		nowFunc:   time.Now,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureFresh refreshes the session when its token expires within the leeway. An
// unknown expiry is left alone and the outcome of the refresh is ignored.
func (m *Manager) EnsureFresh(ctx context.Context, s *sessions.Session) {
	expiresAt := s.TokenExpiresAt()
	if expiresAt == nil {
		return
	}
	if expiresAt.Sub(m.nowFunc()) < m.leeway {
		m.Refresh(ctx, s)
	}
}

// Refresh exchanges the session's refresh token and persists the new tokens before
// returning. Every failure collapses to false. Refreshes of one session are serialized;
// a caller that waited on another refresh adopts its result.
func (m *Manager) Refresh(ctx context.Context, s *sessions.Session) bool {
	return m.refreshFrom(ctx, s, s.AccessToken())
}

// refreshFrom refreshes unless the session has already moved past the token seen. A
// session that is no longer stored was logged out or expired and is never written back.
func (m *Manager) refreshFrom(ctx context.Context, s *sessions.Session, seen string) bool {
	unlock := m.locks.Lock(s.ID())
	defer unlock()

	if s.AccessToken() != seen {
		return true
	}
	switch err := m.store.Reload(ctx, s); {
	case errors.Is(err, errors.ErrSessionNotFound), errors.Is(err, errors.ErrSessionExpired):
		log.Debug().Err(err).Str("session", s.ID()).Msg("[token Refresh] session is gone, not refreshing")
		return false
	case err == nil && s.AccessToken() != seen:
		return true
	case err != nil:
		log.Warn().Err(err).Str("session", s.ID()).Msg("[token Refresh] failed to reload session")
	}

	err := m.refresh(ctx, s)
	if err != nil {
		log.Debug().Err(err).Str("session", s.ID()).Msg("[token Refresh] refresh failed")
	}
	if m.recorder != nil {
		m.recorder.TokenRefresh(err == nil)
	}
	return err == nil
}

func (m *Manager) refresh(ctx context.Context, s *sessions.Session) error {
	refreshToken := s.RefreshToken()
	if refreshToken == "" {
		return errors.ErrNoRefreshToken
	}

	creds, err := m.refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		return errors.Wrapf(err, "[token Refresh] upstream refresh")
	}
	if creds.AccessToken == "" {
		return errors.ErrNoAccessToken
	}

	previous := s.Record()
	if err := s.ApplyTokens(sessions.Tokens{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    ExpiresAt(creds, m.nowFunc()),
	}); err != nil {
		return err
	}
	if err := m.store.Save(ctx, s); err != nil {
		restore(s, previous)
		log.Err(err).Str("session", s.ID()).Msg("[token Refresh] failed to persist refreshed session")
		return err
	}
	return nil
}

func restore(s *sessions.Session, previous sessions.Record) {
	_ = s.ApplyTokens(sessions.Tokens{
		AccessToken:  previous.AccessToken,
		RefreshToken: previous.RefreshToken,
		ExpiresAt:    previous.TokenExpiresAt,
	})
}

// Client returns an upstream client bound to the session's current access token.
func (m *Manager) Client(s *sessions.Session) *easee.Client {
	return m.factory.For(s.AccessToken())
}

// Do runs op against the upstream on behalf of s. On a 401 it refreshes once and, if that
// worked, runs op exactly once more. When the refresh fails the original error is returned.
func Do[T any](ctx context.Context, m *Manager, s *sessions.Session, op func(context.Context, *easee.Client) (T, error)) (T, error) {
	m.EnsureFresh(ctx, s)

	used := s.AccessToken()
	result, err := op(ctx, m.factory.For(used))
	if err == nil || easee.StatusCode(err) != http.StatusUnauthorized {
		return result, err
	}

	if !m.refreshFrom(ctx, s, used) {
		return result, err
	}
	return op(ctx, m.Client(s))
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
