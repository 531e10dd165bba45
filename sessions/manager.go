package sessions

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/charger-dashboard/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/hkdf"
)

// CookieName is the browser cookie carrying the signed session id.
const CookieName = "charger_sid"

const keyInfo = "charger-dashboard session cookie v1"

// Manager ties sessions to signed browser cookies.
type Manager struct {
	repo   Repo
	key    []byte
	maxAge time.Duration
}

// NewManager derives the cookie signing key from secret.
func NewManager(repo Repo, secret string, maxAge time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("[sessions NewManager] session secret is required")
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("[sessions NewManager] derive signing key: %w", err)
	}
	return &Manager{repo: repo, key: key, maxAge: maxAge}, nil
}

func (m *Manager) Repo() Repo {
	return m.repo
}

// Load returns the authenticated session for the request's cookie.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, errors.ErrNotAuthenticated
	}
	sessionID, ok := m.verify(cookie.Value)
	if !ok {
		return nil, errors.ErrInvalidCookie
	}
	record, err := m.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return FromRecord(record)
}

// Create starts a session under a new id, dropping whatever session the request carried.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, r *http.Request, tokens Tokens) (*Session, error) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if oldID, ok := m.verify(cookie.Value); ok {
			if err := m.repo.Delete(ctx, oldID); err != nil {
				log.Warn().Err(err).Msg("[sessions Create] failed to drop previous session")
			}
		}
	}

	s, err := New(uuid.NewString(), tokens, m.maxAge)
	if err != nil {
		return nil, err
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	m.setCookie(w, r, m.sign(s.ID()), int(m.maxAge/time.Second))
	return s, nil
}

// Save persists the current state of s.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if err := m.repo.Upsert(ctx, s.Record()); err != nil {
		return errors.Wrapf(err, "[sessions Save] persist session")
	}
	return nil
}

// Reload replaces the in-memory state of s with the stored record when it is newer.
func (m *Manager) Reload(ctx context.Context, s *Session) error {
	record, err := m.repo.Get(ctx, s.ID())
	if err != nil {
		return err
	}
	s.adopt(record)
	return nil
}

// Destroy deletes the request's session and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	defer m.setCookie(w, r, "", -1)

	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	sessionID, ok := m.verify(cookie.Value)
	if !ok {
		return nil
	}
	return m.repo.Delete(ctx, sessionID)
}

func (m *Manager) sign(sessionID string) string {
	return sessionID + "." + m.signature(sessionID)
}

func (m *Manager) signature(sessionID string) string {
	mac := hmac.New(sha256.New, m.key)
	mac.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (m *Manager) verify(value string) (string, bool) {
	sessionID, sig, ok := strings.Cut(value, ".")
	if !ok || sessionID == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(m.signature(sessionID))) {
		return "", false
	}
	return sessionID, true
}

func (m *Manager) setCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
