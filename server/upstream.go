package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jrsteele09/charger-dashboard/easee"
	"github.com/jrsteele09/charger-dashboard/history"
	"github.com/jrsteele09/charger-dashboard/sessions"
	"github.com/jrsteele09/charger-dashboard/token"
)

// chargerSource reads charger data on behalf of one session. It is the upstream side of
// both the request handlers and the live stream.
type chargerSource struct {
	tokens  *token.Manager
	session *sessions.Session
}

func (s *Server) sourceFor(session *sessions.Session) chargerSource {
	return chargerSource{tokens: s.tokens, session: session}
}

func (c chargerSource) Chargers(ctx context.Context) (json.RawMessage, error) {
	return token.Do(ctx, c.tokens, c.session, func(ctx context.Context, client *easee.Client) (json.RawMessage, error) {
		return client.Chargers(ctx)
	})
}

func (c chargerSource) State(ctx context.Context, chargerID string) (json.RawMessage, error) {
	return token.Do(ctx, c.tokens, c.session, func(ctx context.Context, client *easee.Client) (json.RawMessage, error) {
		return client.State(ctx, chargerID)
	})
}

// ongoingSession reports found=false when the upstream has no ongoing session.
func (c chargerSource) ongoingSession(ctx context.Context, chargerID string) (json.RawMessage, bool, error) {
	data, err := token.Do(ctx, c.tokens, c.session, func(ctx context.Context, client *easee.Client) (json.RawMessage, error) {
		return client.OngoingSession(ctx, chargerID)
	})
	if easee.StatusCode(err) == http.StatusNotFound {
		return json.RawMessage("null"), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return passthrough(data), true, nil
}

func (c chargerSource) OngoingSession(ctx context.Context, chargerID string) (json.RawMessage, error) {
	data, _, err := c.ongoingSession(ctx, chargerID)
	return data, err
}

// Sessions lists past sessions, a 404 or a body that is not a list reads as none.
func (c chargerSource) Sessions(ctx context.Context, chargerID, from, to string) ([]any, error) {
	data, err := token.Do(ctx, c.tokens, c.session, func(ctx context.Context, client *easee.Client) (json.RawMessage, error) {
		return client.Sessions(ctx, chargerID, from, to)
	})
	if easee.StatusCode(err) == http.StatusNotFound {
		return []any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return history.ParseSessions(data), nil
}

func (c chargerSource) window(ctx context.Context, chargerID, from, to string) (history.Window, error) {
	records, err := c.Sessions(ctx, chargerID, from, to)
	if err != nil {
		return history.Window{}, err
	}
	return history.Aggregate(from, to, records), nil
}

// cached returns the value under key, calling fetch and storing its result on a miss.
// Failed fetches are never stored.
func cached[T any](s *Server, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}
	v, err := fetch()
	if err != nil {
		return v, err
	}
	s.cache.Set(key, v, ttl)
	return v, nil
}
