package gt06

import (
	"encoding/binary"
	"errors"
)

// ErrNeedMoreBytes is returned by Decoder.Next when the buffered bytes do
// not yet contain a complete frame. It is not a failure; the caller should
// read more bytes from the transport and feed them in.
var ErrNeedMoreBytes = errors.New("gt06: need more bytes")

// DecoderConfig controls frame validation behavior.
type DecoderConfig struct {
	// MaxFrameLength caps the total frame size on the wire, header
	// through stop bits. Zero means DefaultMaxFrameLength.
	MaxFrameLength int

	// StrictCRC rejects frames whose CRC does not match. When false,
	// mismatching frames are delivered with Frame.CRCValid set to false.
	// Cheap tracker clones routinely ship broken CRC firmware, so the
	// default is lenient.
	StrictCRC bool

	// StrictStopBits rejects frames whose terminator is outside the
	// accepted variant set. When false any terminator is delivered, with
	// Frame.StopValid reporting whether it was a known variant.
	StrictStopBits bool
}

// Decoder is a streaming GT06 frame decoder. Bytes are appended with Feed
// and complete frames extracted with Next. The decoder resynchronizes on
// garbage by scanning forward to the next plausible header, so interleaved
// line noise or a partially missed frame does not wedge the stream.
//
// A Decoder is not safe for concurrent use; each connection owns one.
type Decoder struct {
	cfg DecoderConfig
	buf []byte

	skipped  uint64
	rejected uint64
}

// NewDecoder returns a decoder with the given configuration.
func NewDecoder(cfg DecoderConfig) *Decoder {
	if cfg.MaxFrameLength <= 0 {
		cfg.MaxFrameLength = DefaultMaxFrameLength
	}
	return &Decoder{cfg: cfg}
}

// Feed appends raw transport bytes to the decode buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes held but not yet consumed.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Skipped returns the cumulative count of garbage bytes discarded while
// scanning for frame headers.
func (d *Decoder) Skipped() uint64 { return d.skipped }

// Rejected returns the cumulative count of candidate frames discarded for
// failing validation (bad length, CRC or terminator under strict modes).
func (d *Decoder) Rejected() uint64 { return d.rejected }

// Next extracts the next complete frame from the buffer. It returns
// ErrNeedMoreBytes when no complete frame is available yet. Malformed
// candidates are discarded internally one byte at a time and scanning
// resumes, so Next never returns a parse error.
func (d *Decoder) Next() (*Frame, error) {
	for {
		d.scanToHeader()

		if len(d.buf) < 2 {
			return nil, ErrNeedMoreBytes
		}

		header := binary.BigEndian.Uint16(d.buf[:2])
		lenWidth := 1
		if header == HeaderExtended {
			lenWidth = 2
		}

		if len(d.buf) < 2+lenWidth {
			return nil, ErrNeedMoreBytes
		}

		var declared int
		if lenWidth == 1 {
			declared = int(d.buf[2])
		} else {
			declared = int(binary.BigEndian.Uint16(d.buf[2:4]))
		}

		total := 2 + lenWidth + declared + 2
		if declared < MinDeclaredLength || total > d.cfg.MaxFrameLength {
			// Implausible length: the header bytes were likely payload
			// noise. Drop one byte and rescan.
			d.reject(1)
			continue
		}

		if len(d.buf) < total {
			return nil, ErrNeedMoreBytes
		}

		raw := d.buf[:total]
		frame, ok := d.validate(raw, header, lenWidth, declared)
		if !ok {
			d.reject(1)
			continue
		}

		d.consume(total)
		return frame, nil
	}
}

// scanToHeader discards leading bytes until the buffer starts with a frame
// header or fewer than two bytes remain.
func (d *Decoder) scanToHeader() {
	i := 0
	for i+1 < len(d.buf) {
		if (d.buf[i] == 0x78 && d.buf[i+1] == 0x78) ||
			(d.buf[i] == 0x79 && d.buf[i+1] == 0x79) {
			break
		}
		i++
	}
	if i > 0 {
		d.skipped += uint64(i)
		d.consume(i)
	}
}

// validate parses a complete candidate frame and applies the CRC and stop
// bit policies. It returns ok=false when the candidate must be discarded.
func (d *Decoder) validate(raw []byte, header uint16, lenWidth, declared int) (*Frame, bool) {
	total := len(raw)
	bodyStart := 2 + lenWidth + 1
	bodyLen := declared - frameOverhead

	serial := binary.BigEndian.Uint16(raw[total-6 : total-4])
	wireCRC := binary.BigEndian.Uint16(raw[total-4 : total-2])
	stop := binary.BigEndian.Uint16(raw[total-2:])

	// CRC covers length field through serial.
	crcValid := ChecksumITU(raw[2:total-4]) == wireCRC
	if !crcValid && d.cfg.StrictCRC {
		return nil, false
	}

	stopValid := lenientStopBits[stop]
	if !stopValid && d.cfg.StrictStopBits {
		return nil, false
	}

	body := make([]byte, bodyLen)
	copy(body, raw[bodyStart:bodyStart+bodyLen])

	return &Frame{
		Header:    header,
		Protocol:  raw[2+lenWidth],
		Body:      body,
		Serial:    serial,
		CRC:       wireCRC,
		Stop:      stop,
		CRCValid:  crcValid,
		StopValid: stopValid,
	}, true
}

func (d *Decoder) reject(n int) {
	d.rejected++
	d.skipped += uint64(n)
	d.consume(n)
}

// consume drops n leading bytes, compacting the buffer in place.
func (d *Decoder) consume(n int) {
	remaining := copy(d.buf, d.buf[n:])
	d.buf = d.buf[:remaining]
}
