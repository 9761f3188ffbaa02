package gt06

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Cell identifies a single GSM cell tower.
type Cell struct {
	MCC  uint16 // mobile country code
	MNC  uint8  // mobile network code
	LAC  uint16 // location area code
	CID  uint32 // cell id (24-bit on the wire)
	RSSI uint8  // signal strength, only set for multi-cell records
}

// LBS is a decoded cell-tower report (0x17, 0x18, 0x24).
type LBS struct {
	Timestamp time.Time
	Cells     []Cell
}

// singleCellLen is datetime(6) + mcc(2) + mnc(1) + lac(2) + cid(3).
const singleCellLen = 14

// multiCellRecordLen is lac(2) + cid(3) + rssi(1) per neighbor record.
const multiCellRecordLen = 6

// ParseLBS decodes a cell-tower body. 0x17 and 0x18 carry a single cell;
// 0x24 carries the serving cell followed by up to six neighbor records.
func ParseLBS(protocol byte, body []byte) (*LBS, error) {
	if len(body) < singleCellLen {
		return nil, fmt.Errorf("LBS body too short: %d bytes", len(body))
	}

	ts, err := parseDeviceTime(body[:6])
	if err != nil {
		return nil, err
	}

	mcc := binary.BigEndian.Uint16(body[6:8])
	mnc := body[8]
	serving := Cell{
		MCC: mcc,
		MNC: mnc,
		LAC: binary.BigEndian.Uint16(body[9:11]),
		CID: uint32(body[11])<<16 | uint32(body[12])<<8 | uint32(body[13]),
	}

	lbs := &LBS{Timestamp: ts, Cells: []Cell{serving}}

	if protocol != MsgLBSMultiple {
		return lbs, nil
	}

	// Neighbor records share the serving MCC/MNC.
	rest := body[singleCellLen:]
	for len(rest) >= multiCellRecordLen && len(lbs.Cells) < 7 {
		cell := Cell{
			MCC:  mcc,
			MNC:  mnc,
			LAC:  binary.BigEndian.Uint16(rest[0:2]),
			CID:  uint32(rest[2])<<16 | uint32(rest[3])<<8 | uint32(rest[4]),
			RSSI: rest[5],
		}
		// All-zero records pad the fixed-size neighbor table.
		if cell.LAC != 0 || cell.CID != 0 {
			lbs.Cells = append(lbs.Cells, cell)
		}
		rest = rest[multiCellRecordLen:]
	}
	return lbs, nil
}
