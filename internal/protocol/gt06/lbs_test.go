package gt06

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLBS(t *testing.T) {
	single := []byte{
		0x18, 0x05, 0x01, 0x0C, 0x00, 0x00, // 2024-05-01 12:00:00
		0x01, 0x94, // MCC 404
		0x2D,       // MNC 45
		0x10, 0x01, // LAC 0x1001
		0x00, 0xA2, 0x3F, // CID 0x00A23F
	}

	t.Run("SingleCell", func(t *testing.T) {
		lbs, err := ParseLBS(MsgLBSPhone, single)
		require.NoError(t, err)

		assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), lbs.Timestamp)
		require.Len(t, lbs.Cells, 1)
		assert.Equal(t, uint16(404), lbs.Cells[0].MCC)
		assert.Equal(t, uint8(45), lbs.Cells[0].MNC)
		assert.Equal(t, uint16(0x1001), lbs.Cells[0].LAC)
		assert.Equal(t, uint32(0x00A23F), lbs.Cells[0].CID)
	})

	t.Run("MultipleCellsWithNeighbors", func(t *testing.T) {
		body := append([]byte{}, single...)
		// two neighbor records and one all-zero pad record
		body = append(body, 0x10, 0x02, 0x00, 0xA2, 0x40, 0x1E)
		body = append(body, 0x10, 0x03, 0x00, 0xA2, 0x41, 0x14)
		body = append(body, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00)

		lbs, err := ParseLBS(MsgLBSMultiple, body)
		require.NoError(t, err)

		require.Len(t, lbs.Cells, 3)
		assert.Equal(t, uint16(404), lbs.Cells[1].MCC)
		assert.Equal(t, uint16(0x1002), lbs.Cells[1].LAC)
		assert.Equal(t, uint8(0x1E), lbs.Cells[1].RSSI)
		assert.Equal(t, uint32(0x00A241), lbs.Cells[2].CID)
	})

	t.Run("NeighborsIgnoredForSingleCellOpcodes", func(t *testing.T) {
		body := append([]byte{}, single...)
		body = append(body, 0x10, 0x02, 0x00, 0xA2, 0x40, 0x1E)

		lbs, err := ParseLBS(MsgLBSExtend, body)
		require.NoError(t, err)
		assert.Len(t, lbs.Cells, 1)
	})

	t.Run("BodyTooShort", func(t *testing.T) {
		_, err := ParseLBS(MsgLBSPhone, single[:10])
		assert.Error(t, err)
	})

	t.Run("InvalidTimestamp", func(t *testing.T) {
		bad := append([]byte{}, single...)
		bad[3] = 25 // hour
		_, err := ParseLBS(MsgLBSPhone, bad)
		assert.Error(t, err)
	})
}
