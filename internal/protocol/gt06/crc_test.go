package gt06

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumITU(t *testing.T) {
	t.Run("LoginAckVector", func(t *testing.T) {
		// Canonical login ACK from the protocol documentation.
		content := []byte{0x05, 0x01, 0x00, 0x01}
		assert.Equal(t, uint16(0xD9DC), ChecksumITU(content))
	})

	t.Run("LoginFrameVector", func(t *testing.T) {
		content := []byte{
			0x0D, 0x01,
			0x01, 0x23, 0x45, 0x67, 0x89, 0x01, 0x23, 0x45,
			0x00, 0x01,
		}
		assert.Equal(t, uint16(0x8CDD), ChecksumITU(content))
	})

	t.Run("EmptyInput", func(t *testing.T) {
		assert.Equal(t, uint16(0x0000), ChecksumITU(nil))
	})

	t.Run("SingleBitChangesChecksum", func(t *testing.T) {
		a := []byte{0x05, 0x01, 0x00, 0x01}
		b := []byte{0x05, 0x01, 0x00, 0x00}
		assert.NotEqual(t, ChecksumITU(a), ChecksumITU(b))
	})
}
