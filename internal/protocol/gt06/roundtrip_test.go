package gt06

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestFrameRoundTrip checks that any frame the encoder can produce survives
// the decoder unchanged, including with noise prepended and arbitrary feed
// fragmentation.
func TestFrameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		protocol := rapid.Byte().Draw(t, "protocol")
		serial := rapid.Uint16().Draw(t, "serial")
		extended := rapid.Bool().Draw(t, "extended")

		maxBody := 200
		if extended {
			maxBody = 600
		}
		body := rapid.SliceOfN(rapid.Byte(), 0, maxBody).Draw(t, "body")

		header := HeaderStandard
		if extended {
			header = HeaderExtended
		}
		raw, err := (&Frame{Header: header, Protocol: protocol, Body: body, Serial: serial}).Encode()
		require.NoError(t, err)

		// Prepend noise that cannot contain a header pair.
		noise := rapid.SliceOfN(
			rapid.ByteRange(0x00, 0x40), 0, 16).Draw(t, "noise")

		d := NewDecoder(DecoderConfig{StrictCRC: true})
		stream := append(append([]byte{}, noise...), raw...)
		for len(stream) > 0 {
			n := rapid.IntRange(1, len(stream)).Draw(t, "chunk")
			d.Feed(stream[:n])
			stream = stream[n:]
		}

		frame, err := d.Next()
		require.NoError(t, err)
		require.Equal(t, header, frame.Header)
		require.Equal(t, protocol, frame.Protocol)
		require.Equal(t, serial, frame.Serial)
		require.True(t, bytes.Equal(body, frame.Body))
		require.True(t, frame.CRCValid)
		require.True(t, frame.StopValid)
	})
}
