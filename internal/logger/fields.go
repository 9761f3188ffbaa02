package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that devices,
// sessions, and connections can be correlated during log aggregation.
const (
	// ========================================================================
	// Device Identification
	// ========================================================================
	KeyIMEI    = "imei"    // 15-digit device identifier
	KeyVariant = "variant" // Device variant: V5, SK05, GT06_STANDARD, GT06_UNKNOWN

	// ========================================================================
	// Protocol & Framing
	// ========================================================================
	KeyProtocol = "protocol"  // GT06 protocol opcode (hex formatted)
	KeySerial   = "serial"    // Frame sequence number
	KeyFrameLen = "frame_len" // Total frame size on the wire
	KeyBodyLen  = "body_len"  // Frame body size
	KeyCRC      = "crc"       // Frame CRC (hex formatted)
	KeyStopBits = "stop_bits" // Frame stop bits (hex formatted)
	KeySkipped  = "skipped"   // Bytes discarded while hunting for a header
	KeyRawHex   = "raw_hex"   // Hex dump of raw bytes

	// ========================================================================
	// Session & Connection
	// ========================================================================
	KeySessionID    = "session_id"    // Session UUID
	KeyConnectionID = "connection_id" // Connection short-id
	KeyClientAddr   = "client_addr"   // Remote peer address
	KeyClientIP     = "client_ip"     // Client IP address (without port)

	// ========================================================================
	// Telemetry & Commands
	// ========================================================================
	KeyTopic   = "topic"   // Telemetry bus topic
	KeyCommand = "command" // Outbound command kind

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyCount      = "count"       // Generic item count

	// ========================================================================
	// Session Store
	// ========================================================================
	KeyStoreType = "store_type" // Store backend: memory, badger, redis
	KeyTTL       = "ttl"        // Record time-to-live
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// IMEI returns a slog.Attr for the device identifier.
func IMEI(imei string) slog.Attr {
	return slog.String(KeyIMEI, imei)
}

// Variant returns a slog.Attr for the device variant.
func Variant(v string) slog.Attr {
	return slog.String(KeyVariant, v)
}

// Protocol returns a slog.Attr for a GT06 opcode, hex formatted.
func Protocol(opcode byte) slog.Attr {
	return slog.String(KeyProtocol, fmt.Sprintf("0x%02X", opcode))
}

// Serial returns a slog.Attr for a frame sequence number.
func Serial(serial uint16) slog.Attr {
	return slog.Int(KeySerial, int(serial))
}

// FrameLen returns a slog.Attr for a total frame size.
func FrameLen(n int) slog.Attr {
	return slog.Int(KeyFrameLen, n)
}

// BodyLen returns a slog.Attr for a frame body size.
func BodyLen(n int) slog.Attr {
	return slog.Int(KeyBodyLen, n)
}

// CRC returns a slog.Attr for a frame CRC, hex formatted.
func CRC(crc uint16) slog.Attr {
	return slog.String(KeyCRC, fmt.Sprintf("0x%04X", crc))
}

// StopBits returns a slog.Attr for frame stop bits, hex formatted.
func StopBits(stop uint16) slog.Attr {
	return slog.String(KeyStopBits, fmt.Sprintf("0x%04X", stop))
}

// Skipped returns a slog.Attr for bytes discarded as garbage.
func Skipped(n int) slog.Attr {
	return slog.Int(KeySkipped, n)
}

// RawHex returns a slog.Attr with a hex dump of raw bytes.
func RawHex(b []byte) slog.Attr {
	return slog.String(KeyRawHex, fmt.Sprintf("%x", b))
}

// SessionID returns a slog.Attr for a session UUID.
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// ConnectionID returns a slog.Attr for a connection short-id.
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// ClientAddr returns a slog.Attr for a remote peer address.
func ClientAddr(addr string) slog.Attr {
	return slog.String(KeyClientAddr, addr)
}

// ClientIP returns a slog.Attr for a client IP address.
func ClientIP(ip string) slog.Attr {
	return slog.String(KeyClientIP, ip)
}

// Topic returns a slog.Attr for a telemetry bus topic.
func Topic(topic string) slog.Attr {
	return slog.String(KeyTopic, topic)
}

// Command returns a slog.Attr for an outbound command kind.
func Command(kind string) slog.Attr {
	return slog.String(KeyCommand, kind)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Count returns a slog.Attr for a generic item count.
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// StoreType returns a slog.Attr for a session store backend name.
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}
