// Package gt06 implements the GT06 family wire protocol used by GT06,
// GT02, GT05, SK05 and V5 vehicle trackers.
//
// The package is transport-agnostic: the Decoder consumes raw bytes fed by
// the caller and yields validated frames, the payload parsers turn frame
// bodies into typed records, and the builders produce frames ready to be
// written back to a device. No I/O happens inside this package.
//
// Frame grammar (big-endian throughout):
//
//	frame   := header length protocol body serial crc stop
//	header  := 0x7878 | 0x7979
//	length  := u8  (header=0x7878) | u16 (header=0x7979)
//	protocol:= u8
//	body    := bytes[length - 5]       -- 5 = |protocol|+|serial|+|crc|
//	serial  := u16
//	crc     := u16                     -- CRC-ITU (X.25) over length..serial
//	stop    := u16                     -- nominally 0x0D0A
package gt06

// Protocol opcodes understood by the gateway. Anything else is ACKed and
// logged but not decoded.
const (
	MsgLogin           = 0x01 // IMEI BCD in first 8 body bytes
	MsgGPSLBS1         = 0x12 // GPS + LBS, standard location layout
	MsgStatus          = 0x13 // Battery, signal, alarm bits
	MsgGPSOffline      = 0x15 // Buffered GPS, standard layout
	MsgGPSLBSStatus1   = 0x16 // GPS + LBS + status
	MsgLBSPhone        = 0x17 // Cell info only
	MsgLBSExtend       = 0x18 // Cell info only
	MsgGPSPhone        = 0x1A // 4-byte phone prefix, then standard layout
	MsgGPSLBS2         = 0x22 // GPS + LBS, standard location layout
	MsgHeartbeat       = 0x23 // Session keepalive
	MsgLBSMultiple     = 0x24 // Multiple cell records
	MsgGPSLBSStatus2   = 0x26 // GPS + LBS + status
	MsgGPSDog          = 0x32 // GPS "dog" variant, standard layout
	MsgServerCommand   = 0x80 // Server-to-device command carrier
	MsgCommandResponse = 0x8A // Echo of a server-sent command
	MsgLocationExt     = 0x94 // Extended location, vendor-specific layout
)

// IsLocationOpcode reports whether the opcode carries GPS location data in
// one of the known layouts.
func IsLocationOpcode(op byte) bool {
	switch op {
	case MsgGPSLBS1, MsgGPSLBS2, MsgGPSLBSStatus1, MsgGPSLBSStatus2,
		MsgGPSOffline, MsgGPSPhone, MsgGPSDog, MsgLocationExt:
		return true
	}
	return false
}

// IsLBSOpcode reports whether the opcode carries cell-tower data only.
func IsLBSOpcode(op byte) bool {
	switch op {
	case MsgLBSPhone, MsgLBSExtend, MsgLBSMultiple:
		return true
	}
	return false
}

// OpcodeName returns a short human-readable name for logging.
func OpcodeName(op byte) string {
	switch op {
	case MsgLogin:
		return "LOGIN"
	case MsgGPSLBS1, MsgGPSLBS2:
		return "GPS_LBS"
	case MsgGPSLBSStatus1, MsgGPSLBSStatus2:
		return "GPS_LBS_STATUS"
	case MsgStatus:
		return "STATUS"
	case MsgGPSOffline:
		return "GPS_OFFLINE"
	case MsgLBSPhone:
		return "LBS_PHONE"
	case MsgLBSExtend:
		return "LBS_EXTEND"
	case MsgGPSPhone:
		return "GPS_PHONE"
	case MsgHeartbeat:
		return "HEARTBEAT"
	case MsgLBSMultiple:
		return "LBS_MULTIPLE"
	case MsgGPSDog:
		return "GPS_DOG"
	case MsgServerCommand:
		return "SERVER_COMMAND"
	case MsgCommandResponse:
		return "COMMAND_RESPONSE"
	case MsgLocationExt:
		return "LOCATION_EXT"
	}
	return "UNKNOWN"
}
