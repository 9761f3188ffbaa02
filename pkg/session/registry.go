package session

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/wheelseye/devicegateway/internal/logger"
	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
)

// Registry defaults.
const (
	DefaultTTL           = 10 * time.Minute
	DefaultIdleTimeout   = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

// lockStripes is the number of per-IMEI mutex stripes. Power of two.
const lockStripes = 64

// RegistryConfig tunes session lifetime management.
type RegistryConfig struct {
	// TTL applied to every store write. Zero means DefaultTTL.
	TTL time.Duration
	// IdleTimeout after which the sweeper evicts a session. Zero means
	// DefaultIdleTimeout.
	IdleTimeout time.Duration
	// SweepInterval between sweeper passes. Zero means
	// DefaultSweepInterval.
	SweepInterval time.Duration
}

// ConnectionCloser is invoked by the sweeper when an evicted session still
// has a bound connection, so the transport can close it.
type ConnectionCloser func(connectionID string)

// EvictionObserver is notified after the sweeper removes an idle session.
// The session is a snapshot; mutations have no effect.
type EvictionObserver func(s *DeviceSession)

// Registry is the authoritative session index. Persistent state (session
// records, IMEI index) lives in the Store; the connection binding is
// process-local because connections cannot survive a process restart.
//
// All mutations for a given IMEI are serialized through a striped lock, so
// a reconnecting device racing its own dying connection cannot produce two
// live sessions.
type Registry struct {
	store Store
	cfg   RegistryConfig

	mu           sync.RWMutex
	byConnection map[string]string // connection id -> session id

	stripes [lockStripes]sync.Mutex

	closer  ConnectionCloser
	onEvict EvictionObserver
}

// NewRegistry creates a registry on top of the given store.
func NewRegistry(store Store, cfg RegistryConfig) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Registry{
		store:        store,
		cfg:          cfg,
		byConnection: make(map[string]string),
	}
}

// SetConnectionCloser registers the transport callback used during
// eviction. Must be called before StartSweeper.
func (r *Registry) SetConnectionCloser(c ConnectionCloser) {
	r.closer = c
}

// SetEvictionObserver registers a callback for evicted sessions. Must be
// called before StartSweeper.
func (r *Registry) SetEvictionObserver(o EvictionObserver) {
	r.onEvict = o
}

func (r *Registry) stripe(imei string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(imei))
	return &r.stripes[h.Sum32()%lockStripes]
}

// CreateOrRebind resolves a login to a session. If the IMEI already has a
// live session the existing record is rebound to the new connection,
// keeping its id and accumulated flags; otherwise a new session is created.
// The returned rebound flag distinguishes the two.
func (r *Registry) CreateOrRebind(ctx context.Context, imei, connectionID, remoteAddress string, variant gt06.Variant) (*DeviceSession, bool, error) {
	mu := r.stripe(imei)
	mu.Lock()
	defer mu.Unlock()

	existing, err := r.lookupByIMEI(ctx, imei)
	if err != nil && err != ErrNotFound {
		return nil, false, fmt.Errorf("resolving session for %s: %w", imei, err)
	}

	if existing != nil {
		oldConnection := existing.ConnectionID
		existing.ConnectionID = connectionID
		existing.RemoteAddress = remoteAddress
		existing.Authenticated = true
		if existing.Variant == "" || existing.Variant == gt06.VariantUnknown {
			existing.Variant = variant
		}
		existing.Touch()

		if err := r.persist(ctx, existing); err != nil {
			return nil, false, err
		}

		r.mu.Lock()
		if oldConnection != "" && oldConnection != connectionID {
			delete(r.byConnection, oldConnection)
		}
		r.byConnection[connectionID] = existing.ID
		r.mu.Unlock()

		return existing, true, nil
	}

	s := NewDeviceSession(imei, connectionID, remoteAddress, variant)
	if err := r.persist(ctx, s); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	r.byConnection[connectionID] = s.ID
	r.mu.Unlock()

	return s, false, nil
}

// Save refreshes the session record and its TTL after activity.
func (r *Registry) Save(ctx context.Context, s *DeviceSession) error {
	mu := r.stripe(s.IMEI)
	mu.Lock()
	defer mu.Unlock()
	return r.persist(ctx, s)
}

// persist writes the session and its IMEI index under the configured TTL.
// Callers hold the IMEI stripe lock.
func (r *Registry) persist(ctx context.Context, s *DeviceSession) error {
	if err := r.store.PutSession(ctx, s, r.cfg.TTL); err != nil {
		return fmt.Errorf("persisting session %s: %w", s.ID, err)
	}
	if err := r.store.PutIMEIIndex(ctx, s.IMEI, s.ID, r.cfg.TTL); err != nil {
		return fmt.Errorf("persisting IMEI index for %s: %w", s.IMEI, err)
	}
	return nil
}

// lookupByIMEI resolves the index and loads the session. A dangling index
// entry (session expired first) reads as not found.
func (r *Registry) lookupByIMEI(ctx context.Context, imei string) (*DeviceSession, error) {
	id, err := r.store.GetIMEIIndex(ctx, imei)
	if err != nil {
		return nil, err
	}
	s, err := r.store.GetSession(ctx, id)
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	return s, err
}

// GetByIMEI returns the live session for a device, or ErrNotFound.
func (r *Registry) GetByIMEI(ctx context.Context, imei string) (*DeviceSession, error) {
	return r.lookupByIMEI(ctx, imei)
}

// GetByID returns a session by its id, or ErrNotFound.
func (r *Registry) GetByID(ctx context.Context, id string) (*DeviceSession, error) {
	return r.store.GetSession(ctx, id)
}

// GetByConnection returns the session bound to a connection, or
// ErrNotFound.
func (r *Registry) GetByConnection(ctx context.Context, connectionID string) (*DeviceSession, error) {
	r.mu.RLock()
	id, ok := r.byConnection[connectionID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.store.GetSession(ctx, id)
}

// List returns all live sessions.
func (r *Registry) List(ctx context.Context) ([]*DeviceSession, error) {
	return r.store.ListSessions(ctx)
}

// ReleaseConnection unbinds a closed connection from its session. The
// session record itself stays in the store so the device can rebind after
// reconnecting; it ages out through the TTL and the sweeper.
func (r *Registry) ReleaseConnection(ctx context.Context, connectionID string) (*DeviceSession, error) {
	r.mu.Lock()
	id, ok := r.byConnection[connectionID]
	delete(r.byConnection, connectionID)
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	s, err := r.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	mu := r.stripe(s.IMEI)
	mu.Lock()
	defer mu.Unlock()

	// The device may have already rebound to a newer connection.
	if s.ConnectionID == connectionID {
		s.ConnectionID = ""
		if err := r.persist(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// FindIdle returns sessions without traffic for strictly longer than the
// given duration.
func (r *Registry) FindIdle(ctx context.Context, olderThan time.Duration) ([]*DeviceSession, error) {
	all, err := r.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var idle []*DeviceSession
	for _, s := range all {
		if s.IdleFor(now) > olderThan {
			idle = append(idle, s)
		}
	}
	return idle, nil
}

// Sweep runs one eviction pass: idle sessions are removed from the store
// and any still-bound connections are handed to the closer.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	idle, err := r.FindIdle(ctx, r.cfg.IdleTimeout)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, s := range idle {
		if err := r.evict(ctx, s); err != nil {
			logger.Warn("failed to evict idle session",
				logger.SessionID(s.ID),
				logger.IMEI(s.IMEI),
				logger.Err(err))
			continue
		}
		evicted++
	}
	return evicted, nil
}

func (r *Registry) evict(ctx context.Context, s *DeviceSession) error {
	mu := r.stripe(s.IMEI)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock: the device may have just sent traffic.
	current, err := r.store.GetSession(ctx, s.ID)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if current.IdleFor(time.Now().UTC()) <= r.cfg.IdleTimeout {
		return nil
	}

	if err := r.store.DeleteSession(ctx, current.ID); err != nil {
		return err
	}
	// Only drop the index if it still points at this session.
	if id, err := r.store.GetIMEIIndex(ctx, current.IMEI); err == nil && id == current.ID {
		if err := r.store.DeleteIMEIIndex(ctx, current.IMEI); err != nil {
			return err
		}
	}

	r.mu.Lock()
	if r.byConnection[current.ConnectionID] == current.ID {
		delete(r.byConnection, current.ConnectionID)
	}
	r.mu.Unlock()

	if current.Bound() && r.closer != nil {
		r.closer(current.ConnectionID)
	}
	if r.onEvict != nil {
		r.onEvict(current)
	}

	logger.Info("evicted idle session",
		logger.SessionID(current.ID),
		logger.IMEI(current.IMEI),
		logger.ConnectionID(current.ConnectionID))
	return nil
}

// StartSweeper launches the periodic eviction loop. It stops when ctx is
// canceled.
func (r *Registry) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := r.Sweep(ctx); err != nil {
					logger.Warn("session sweep failed", logger.Err(err))
				} else if n > 0 {
					logger.Debug("session sweep complete", logger.Count(n))
				}
			}
		}
	}()
}
