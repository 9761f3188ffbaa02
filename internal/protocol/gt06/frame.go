package gt06

import (
	"encoding/binary"
	"fmt"
)

// Frame boundary constants.
const (
	// HeaderStandard marks a frame with a one-byte length field.
	HeaderStandard uint16 = 0x7878
	// HeaderExtended marks a frame with a two-byte length field.
	HeaderExtended uint16 = 0x7979

	// StopBits is the nominal frame terminator.
	StopBits uint16 = 0x0D0A

	// MinDeclaredLength is the smallest valid length field value: an empty
	// body still carries protocol (1), serial (2) and CRC (2).
	MinDeclaredLength = 5

	// DefaultMaxFrameLength caps the total frame size on the wire. Anything
	// declaring more is treated as garbage rather than buffered
	// indefinitely.
	DefaultMaxFrameLength = 1024
)

// frameOverhead is the number of declared-length bytes that are not body.
const frameOverhead = 5

// lenientStopBits are terminator variants observed from real devices and
// accepted alongside the nominal 0x0D0A.
var lenientStopBits = map[uint16]bool{
	0x0D0A: true,
	0x0A0D: true,
	0x0000: true,
	0xFFFF: true,
}

// Frame is a single validated GT06 frame.
type Frame struct {
	Header   uint16 // HeaderStandard or HeaderExtended
	Protocol byte
	Body     []byte
	Serial   uint16
	CRC      uint16 // as received on the wire
	Stop     uint16 // as received on the wire

	// CRCValid reports whether the received CRC matched the computed
	// CRC-ITU value. With strict CRC checking disabled a frame can be
	// delivered with CRCValid false.
	CRCValid bool
	// StopValid reports whether the terminator was one of the accepted
	// variants.
	StopValid bool
}

// Extended reports whether the frame uses the two-byte length header.
func (f *Frame) Extended() bool {
	return f.Header == HeaderExtended
}

// DeclaredLength returns the value the length field carries for this frame.
func (f *Frame) DeclaredLength() int {
	return len(f.Body) + frameOverhead
}

// Encode serializes the frame to wire format. The length field, CRC and stop
// bits are computed; Serial and Protocol are taken from the frame. Standard
// frames reject bodies whose declared length exceeds 255.
func (f *Frame) Encode() ([]byte, error) {
	declared := f.DeclaredLength()

	var lenWidth int
	switch f.Header {
	case HeaderStandard:
		if declared > 0xFF {
			return nil, fmt.Errorf("body of %d bytes does not fit a standard frame", len(f.Body))
		}
		lenWidth = 1
	case HeaderExtended:
		if declared > 0xFFFF {
			return nil, fmt.Errorf("body of %d bytes does not fit an extended frame", len(f.Body))
		}
		lenWidth = 2
	default:
		return nil, fmt.Errorf("invalid frame header 0x%04X", f.Header)
	}

	out := make([]byte, 0, 2+lenWidth+declared+2)
	out = binary.BigEndian.AppendUint16(out, f.Header)
	if lenWidth == 1 {
		out = append(out, byte(declared))
	} else {
		out = binary.BigEndian.AppendUint16(out, uint16(declared))
	}
	out = append(out, f.Protocol)
	out = append(out, f.Body...)
	out = binary.BigEndian.AppendUint16(out, f.Serial)

	// CRC covers length field through serial.
	crc := ChecksumITU(out[2:])
	out = binary.BigEndian.AppendUint16(out, crc)
	out = binary.BigEndian.AppendUint16(out, StopBits)
	return out, nil
}

// NewFrame builds a standard-header frame for the given opcode and body.
func NewFrame(protocol byte, body []byte, serial uint16) *Frame {
	return &Frame{
		Header:   HeaderStandard,
		Protocol: protocol,
		Body:     body,
		Serial:   serial,
	}
}

// BuildAck builds the generic acknowledgement frame for a received opcode,
// echoing the device serial. Devices expect an ACK for every frame type they
// send, including ones the server cannot parse.
func BuildAck(protocol byte, serial uint16) []byte {
	out, err := NewFrame(protocol, nil, serial).Encode()
	if err != nil {
		// Empty body on a standard header cannot fail.
		panic(err)
	}
	return out
}

// BuildLoginAck builds the login acknowledgement. Devices do not start
// streaming location data until they receive it.
func BuildLoginAck(serial uint16) []byte {
	return BuildAck(MsgLogin, serial)
}
