// Package session tracks the device sessions behind tracker connections.
//
// A session represents a device identity (IMEI) rather than a TCP
// connection: trackers on cellular links reconnect constantly, and the
// session survives those reconnects. Sessions are persisted through a
// pluggable Store with a TTL, while the connection binding is process-local
// and dies with the connection.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
)

// DeviceSession is the authoritative state for one logged-in device.
type DeviceSession struct {
	ID            string `json:"id"`
	IMEI          string `json:"imei"`
	ConnectionID  string `json:"connection_id,omitempty"`
	RemoteAddress string `json:"remote_address,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	Authenticated bool         `json:"authenticated"`
	Variant       gt06.Variant `json:"variant"`

	// HasReceivedStatusAdvice records that the one-time advisory about a
	// status-only device has been logged for this session.
	HasReceivedStatusAdvice bool `json:"has_received_status_advice"`
	// HasReceivedLocation records that at least one position fix arrived.
	HasReceivedLocation bool `json:"has_received_location"`

	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewDeviceSession creates an authenticated session for a fresh login.
func NewDeviceSession(imei, connectionID, remoteAddress string, variant gt06.Variant) *DeviceSession {
	now := time.Now().UTC()
	return &DeviceSession{
		ID:             uuid.NewString(),
		IMEI:           imei,
		ConnectionID:   connectionID,
		RemoteAddress:  remoteAddress,
		CreatedAt:      now,
		LastActivityAt: now,
		Authenticated:  true,
		Variant:        variant,
	}
}

// Touch records activity on the session.
func (s *DeviceSession) Touch() {
	s.LastActivityAt = time.Now().UTC()
}

// IdleFor returns how long the session has been without traffic.
func (s *DeviceSession) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// Bound reports whether the session currently has a live connection.
func (s *DeviceSession) Bound() bool {
	return s.ConnectionID != ""
}

// SetAttribute sets a free-form attribute, allocating the map on first use.
func (s *DeviceSession) SetAttribute(key, value string) {
	if s.Attributes == nil {
		s.Attributes = make(map[string]string)
	}
	s.Attributes[key] = value
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *DeviceSession) Clone() *DeviceSession {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Attributes != nil {
		clone.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			clone.Attributes[k] = v
		}
	}
	return &clone
}
