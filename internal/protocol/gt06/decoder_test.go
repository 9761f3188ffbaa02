package gt06

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// loginFrame is the canonical login frame for IMEI 123456789012345.
var loginFrame = []byte{
	0x78, 0x78, 0x0D, 0x01,
	0x01, 0x23, 0x45, 0x67, 0x89, 0x01, 0x23, 0x45,
	0x00, 0x01, 0x8C, 0xDD, 0x0D, 0x0A,
}

func TestDecoderHappyPath(t *testing.T) {
	t.Run("GoldenLoginFrame", func(t *testing.T) {
		d := NewDecoder(DecoderConfig{})
		d.Feed(loginFrame)

		frame, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, HeaderStandard, frame.Header)
		assert.Equal(t, byte(MsgLogin), frame.Protocol)
		assert.Equal(t, uint16(1), frame.Serial)
		assert.Equal(t, uint16(0x8CDD), frame.CRC)
		assert.True(t, frame.CRCValid)
		assert.True(t, frame.StopValid)
		assert.Equal(t, []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0x01, 0x23, 0x45}, frame.Body)
		assert.Equal(t, 0, d.Buffered())
	})

	t.Run("BackToBackFrames", func(t *testing.T) {
		heartbeat := BuildAck(MsgHeartbeat, 2)
		d := NewDecoder(DecoderConfig{})
		d.Feed(loginFrame)
		d.Feed(heartbeat)

		f1, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, byte(MsgLogin), f1.Protocol)

		f2, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, byte(MsgHeartbeat), f2.Protocol)
		assert.Equal(t, uint16(2), f2.Serial)

		_, err = d.Next()
		assert.ErrorIs(t, err, ErrNeedMoreBytes)
	})

	t.Run("ExtendedHeaderFrame", func(t *testing.T) {
		f := &Frame{Header: HeaderExtended, Protocol: MsgLocationExt, Body: make([]byte, 300), Serial: 5}
		raw, err := f.Encode()
		require.NoError(t, err)

		d := NewDecoder(DecoderConfig{})
		d.Feed(raw)

		got, err := d.Next()
		require.NoError(t, err)
		assert.True(t, got.Extended())
		assert.Equal(t, byte(MsgLocationExt), got.Protocol)
		assert.Len(t, got.Body, 300)
		assert.True(t, got.CRCValid)
	})
}

func TestDecoderStreaming(t *testing.T) {
	t.Run("ByteAtATime", func(t *testing.T) {
		d := NewDecoder(DecoderConfig{})

		for i, b := range loginFrame {
			d.Feed([]byte{b})
			frame, err := d.Next()
			if i < len(loginFrame)-1 {
				require.ErrorIs(t, err, ErrNeedMoreBytes, "byte %d", i)
			} else {
				require.NoError(t, err)
				assert.Equal(t, byte(MsgLogin), frame.Protocol)
			}
		}
	})

	t.Run("SplitMidLengthField", func(t *testing.T) {
		d := NewDecoder(DecoderConfig{})
		d.Feed(loginFrame[:3])

		_, err := d.Next()
		assert.ErrorIs(t, err, ErrNeedMoreBytes)

		d.Feed(loginFrame[3:])
		frame, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, byte(MsgLogin), frame.Protocol)
	})
}

func TestDecoderResync(t *testing.T) {
	t.Run("LeadingGarbageSkipped", func(t *testing.T) {
		garbage := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x13}
		d := NewDecoder(DecoderConfig{})
		d.Feed(garbage)
		d.Feed(loginFrame)

		frame, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, byte(MsgLogin), frame.Protocol)
		assert.Equal(t, uint64(len(garbage)), d.Skipped())
	})

	t.Run("FalseHeaderInsideNoise", func(t *testing.T) {
		// 0x7878 followed by an implausible length forces a one-byte
		// advance rather than swallowing the real frame behind it.
		noise := []byte{0x78, 0x78, 0x02}
		d := NewDecoder(DecoderConfig{})
		d.Feed(noise)
		d.Feed(loginFrame)

		frame, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, byte(MsgLogin), frame.Protocol)
		assert.Positive(t, d.Rejected())
	})

	t.Run("OversizedLengthTreatedAsGarbage", func(t *testing.T) {
		d := NewDecoder(DecoderConfig{MaxFrameLength: 64})
		d.Feed([]byte{0x78, 0x78, 0xFF})
		d.Feed(loginFrame)

		frame, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, byte(MsgLogin), frame.Protocol)
	})

	t.Run("CapAppliesToTotalWireSize", func(t *testing.T) {
		// 55 body bytes declare 60, which is 65 bytes on the wire.
		over, err := NewFrame(MsgGPSLBS1, make([]byte, 55), 9).Encode()
		require.NoError(t, err)
		require.Len(t, over, 65)

		d := NewDecoder(DecoderConfig{MaxFrameLength: 64})
		d.Feed(over)
		d.Feed(loginFrame)

		frame, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, byte(MsgLogin), frame.Protocol)
		assert.Positive(t, d.Rejected())
	})

	t.Run("FrameAtCapAccepted", func(t *testing.T) {
		// 54 body bytes declare 59, exactly 64 bytes on the wire.
		fit, err := NewFrame(MsgGPSLBS1, make([]byte, 54), 9).Encode()
		require.NoError(t, err)
		require.Len(t, fit, 64)

		d := NewDecoder(DecoderConfig{MaxFrameLength: 64})
		d.Feed(fit)

		frame, err := d.Next()
		require.NoError(t, err)
		assert.Len(t, frame.Body, 54)
	})
}

func TestDecoderValidationPolicy(t *testing.T) {
	corrupt := func() []byte {
		bad := make([]byte, len(loginFrame))
		copy(bad, loginFrame)
		bad[5] ^= 0xFF // body byte, invalidates CRC
		return bad
	}

	t.Run("LenientCRCDeliversFlagged", func(t *testing.T) {
		d := NewDecoder(DecoderConfig{})
		d.Feed(corrupt())

		frame, err := d.Next()
		require.NoError(t, err)
		assert.False(t, frame.CRCValid)
	})

	t.Run("StrictCRCRejectsAndResyncs", func(t *testing.T) {
		d := NewDecoder(DecoderConfig{StrictCRC: true})
		d.Feed(corrupt())
		d.Feed(loginFrame)

		frame, err := d.Next()
		require.NoError(t, err)
		assert.True(t, frame.CRCValid)
		assert.Equal(t, uint16(0x8CDD), frame.CRC)
		assert.Positive(t, d.Rejected())
	})

	t.Run("AlternateStopBitsAccepted", func(t *testing.T) {
		for _, stop := range [][2]byte{{0x0A, 0x0D}, {0x00, 0x00}, {0xFF, 0xFF}} {
			alt := make([]byte, len(loginFrame))
			copy(alt, loginFrame)
			alt[16], alt[17] = stop[0], stop[1]

			d := NewDecoder(DecoderConfig{})
			d.Feed(alt)

			frame, err := d.Next()
			require.NoError(t, err)
			assert.True(t, frame.StopValid)
		}
	})

	t.Run("UnknownStopBitsLenientByDefault", func(t *testing.T) {
		alt := make([]byte, len(loginFrame))
		copy(alt, loginFrame)
		alt[16], alt[17] = 0x99, 0x99

		d := NewDecoder(DecoderConfig{})
		d.Feed(alt)

		frame, err := d.Next()
		require.NoError(t, err)
		assert.False(t, frame.StopValid)
		assert.True(t, frame.CRCValid)
	})

	t.Run("StrictStopBitsRejects", func(t *testing.T) {
		alt := make([]byte, len(loginFrame))
		copy(alt, loginFrame)
		alt[16], alt[17] = 0x99, 0x99

		d := NewDecoder(DecoderConfig{StrictStopBits: true})
		d.Feed(alt)

		_, err := d.Next()
		assert.ErrorIs(t, err, ErrNeedMoreBytes)
		assert.Positive(t, d.Rejected())
	})
}
