// Package telemetry publishes decoded device activity to downstream
// consumers. Events fan out through a broadcaster to pluggable sinks, each
// behind an async queue and a retry wrapper, so a slow or failing consumer
// never blocks the device read path.
package telemetry

import (
	"time"

	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
)

// Topic routes an event class to its consumers.
type Topic string

const (
	TopicSessions Topic = "device.sessions"
	TopicLocation Topic = "device.location"
	TopicStatus   Topic = "device.status"
)

// SessionEventType describes a session lifecycle transition.
type SessionEventType string

const (
	SessionConnected    SessionEventType = "connected"
	SessionRebound      SessionEventType = "rebound"
	SessionDisconnected SessionEventType = "disconnected"
	SessionEvicted      SessionEventType = "evicted"
)

// Envelope is the unit written to sinks. Payload holds one of the typed
// event structs below.
type Envelope struct {
	Topic     Topic     `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	IMEI      string    `json:"imei"`
	SessionID string    `json:"session_id"`
	Payload   any       `json:"payload"`
}

// SessionEvent reports a lifecycle transition on TopicSessions.
type SessionEvent struct {
	Type          SessionEventType `json:"type"`
	Variant       gt06.Variant     `json:"variant,omitempty"`
	RemoteAddress string           `json:"remote_address,omitempty"`
}

// LocationEvent reports a position fix on TopicLocation.
type LocationEvent struct {
	Protocol   byte      `json:"protocol"`
	DeviceTime time.Time `json:"device_time,omitempty"`
	Valid      bool      `json:"valid"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Speed      uint8     `json:"speed"`
	Course     uint16    `json:"course"`
	Satellites uint8     `json:"satellites"`
	Altitude   *int16    `json:"altitude,omitempty"`
}

// StatusEvent reports device health on TopicStatus.
type StatusEvent struct {
	Ignition     bool   `json:"ignition"`
	Charging     bool   `json:"charging"`
	Defense      bool   `json:"defense"`
	GPSTracking  bool   `json:"gps_tracking"`
	OilCut       bool   `json:"oil_cut"`
	Alarm        string `json:"alarm"`
	VoltageLevel uint8  `json:"voltage_level"`
	SignalLevel  uint8  `json:"signal_level"`
}

// LBSEvent reports a cell-tower observation on TopicLocation for devices
// without a GPS fix.
type LBSEvent struct {
	Protocol   byte        `json:"protocol"`
	DeviceTime time.Time   `json:"device_time"`
	Cells      []gt06.Cell `json:"cells"`
}

// UnparsableEvent marks a frame whose body failed to decode. The frame was
// still acknowledged to the device; the marker lets stream consumers see
// the gap instead of a silent drop.
type UnparsableEvent struct {
	Unparsable bool   `json:"unparsable"`
	Protocol   byte   `json:"protocol"`
	BodyLength int    `json:"body_length"`
	Reason     string `json:"reason"`
}

// CommandResponseEvent reports a device's reply to a server command on
// TopicStatus.
type CommandResponseEvent struct {
	ServerFlag uint32 `json:"server_flag"`
	Content    string `json:"content"`
}

// NewLocationEvent converts a decoded location into its event form.
func NewLocationEvent(protocol byte, loc *gt06.Location) *LocationEvent {
	ev := &LocationEvent{
		Protocol:   protocol,
		DeviceTime: loc.Timestamp,
		Valid:      loc.Valid,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Speed:      loc.Speed,
		Course:     loc.Course,
		Satellites: loc.Satellites,
	}
	if loc.HasAltitude {
		alt := loc.Altitude
		ev.Altitude = &alt
	}
	return ev
}

// NewStatusEvent converts a decoded status record into its event form.
func NewStatusEvent(st *gt06.Status) *StatusEvent {
	return &StatusEvent{
		Ignition:     st.Ignition,
		Charging:     st.Charging,
		Defense:      st.Defense,
		GPSTracking:  st.GPSTracking,
		OilCut:       st.OilDisconnected,
		Alarm:        st.Alarm.String(),
		VoltageLevel: st.VoltageLevel,
		SignalLevel:  st.SignalLevel,
	}
}
