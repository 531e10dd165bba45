package sessions

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/charger-dashboard/internal/errors"
)

// Repo stores session records until they expire.
type Repo interface {
	Upsert(ctx context.Context, record Record) error
	Get(ctx context.Context, sessionID string) (Record, error)
	Delete(ctx context.Context, sessionID string) error
}

// InMemoryRepo is a process-local Repo. Expired records are dropped when read.
type InMemoryRepo struct {
	mu       sync.RWMutex
	sessions map[string]Record
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		sessions: make(map[string]Record),
	}
}

func (r *InMemoryRepo) Upsert(_ context.Context, record Record) error {
	if record.ID == "" {
		return fmt.Errorf("sessionID is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[record.ID] = record
	return nil
}

func (r *InMemoryRepo) Get(_ context.Context, sessionID string) (Record, error) {
	if sessionID == "" {
		return Record{}, errors.ErrSessionNotFound
	}

	r.mu.RLock()
	record, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return Record{}, errors.ErrSessionNotFound
	}

	if !NowTimeFunc().Before(record.ExpiresAt) {
		r.mu.Lock()
		delete(r.sessions, sessionID)
		r.mu.Unlock()
		return Record{}, errors.ErrSessionExpired
	}
	return record, nil
}

func (r *InMemoryRepo) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}
