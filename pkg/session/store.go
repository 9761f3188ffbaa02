package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a session or index entry does not
// exist or has expired.
var ErrNotFound = errors.New("session: not found")

// Key prefixes shared by all store backends.
const (
	// SessionKeyPrefix namespaces session records by session id.
	SessionKeyPrefix = "session:"
	// IMEIIndexKeyPrefix namespaces the IMEI-to-session-id index.
	IMEIIndexKeyPrefix = "imei-index:"
)

// Store persists sessions and the IMEI index. Implementations must honor
// the TTL so that dead sessions age out without a sweeper in the common
// case; the registry still sweeps explicitly to close idle connections.
type Store interface {
	// PutSession writes or refreshes a session record with the given TTL.
	PutSession(ctx context.Context, s *DeviceSession, ttl time.Duration) error

	// GetSession fetches a session by id, or ErrNotFound.
	GetSession(ctx context.Context, id string) (*DeviceSession, error)

	// DeleteSession removes a session record. Deleting a missing record
	// is not an error.
	DeleteSession(ctx context.Context, id string) error

	// PutIMEIIndex maps an IMEI to its session id with the given TTL.
	PutIMEIIndex(ctx context.Context, imei, sessionID string, ttl time.Duration) error

	// GetIMEIIndex resolves an IMEI to a session id, or ErrNotFound.
	GetIMEIIndex(ctx context.Context, imei string) (string, error)

	// DeleteIMEIIndex removes an index entry. Missing entries are not an
	// error.
	DeleteIMEIIndex(ctx context.Context, imei string) error

	// ListSessions returns all live session records. Order is
	// unspecified.
	ListSessions(ctx context.Context) ([]*DeviceSession, error)

	// Close releases backend resources.
	Close() error
}
