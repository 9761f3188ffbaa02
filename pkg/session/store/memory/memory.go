// Package memory provides an in-process session store. It is the default
// for single-node deployments and the backend used by tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/wheelseye/devicegateway/pkg/session"
)

type entry struct {
	session   *session.DeviceSession
	expiresAt time.Time
}

type indexEntry struct {
	sessionID string
	expiresAt time.Time
}

// Store keeps sessions in maps with lazy TTL expiry.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]entry
	index    map[string]indexEntry

	// now is replaceable for tests.
	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sessions: make(map[string]entry),
		index:    make(map[string]indexEntry),
		now:      time.Now,
	}
}

func (s *Store) PutSession(_ context.Context, ds *session.DeviceSession, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[ds.ID] = entry{session: ds.Clone(), expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*session.DeviceSession, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || s.now().After(e.expiresAt) {
		return nil, session.ErrNotFound
	}
	return e.session.Clone(), nil
}

func (s *Store) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *Store) PutIMEIIndex(_ context.Context, imei, sessionID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[imei] = indexEntry{sessionID: sessionID, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *Store) GetIMEIIndex(_ context.Context, imei string) (string, error) {
	s.mu.RLock()
	e, ok := s.index[imei]
	s.mu.RUnlock()
	if !ok || s.now().After(e.expiresAt) {
		return "", session.ErrNotFound
	}
	return e.sessionID, nil
}

func (s *Store) DeleteIMEIIndex(_ context.Context, imei string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.index, imei)
	return nil
}

func (s *Store) ListSessions(_ context.Context) ([]*session.DeviceSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]*session.DeviceSession, 0, len(s.sessions))
	for _, e := range s.sessions {
		if now.After(e.expiresAt) {
			continue
		}
		out = append(out, e.session.Clone())
	}
	return out, nil
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() error { return nil }
