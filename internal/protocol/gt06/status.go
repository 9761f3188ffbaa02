package gt06

import "fmt"

// Status is a decoded heartbeat/status (0x13) record.
type Status struct {
	// Terminal information bits.
	OilDisconnected bool // fuel/electricity cut active
	GPSTracking     bool
	Charging        bool
	Ignition        bool // ACC line high
	Defense         bool // armed

	Alarm AlarmType

	VoltageLevel uint8 // 0 (off) .. 6 (full)
	SignalLevel  uint8 // 0 (none) .. 4 (strong)

	// Trailing alarm/language bytes, present on most firmwares.
	AlarmByte    uint8
	LanguageByte uint8
}

// AlarmType is the 3-bit alarm field of the terminal information byte.
type AlarmType uint8

const (
	AlarmNone       AlarmType = 0
	AlarmSOS        AlarmType = 1
	AlarmPowerCut   AlarmType = 2
	AlarmShock      AlarmType = 3
	AlarmFenceEnter AlarmType = 4
	AlarmFenceExit  AlarmType = 5
	AlarmOverspeed  AlarmType = 6
	AlarmMovement   AlarmType = 7
)

func (a AlarmType) String() string {
	switch a {
	case AlarmNone:
		return "none"
	case AlarmSOS:
		return "sos"
	case AlarmPowerCut:
		return "power_cut"
	case AlarmShock:
		return "shock"
	case AlarmFenceEnter:
		return "fence_enter"
	case AlarmFenceExit:
		return "fence_exit"
	case AlarmOverspeed:
		return "overspeed"
	case AlarmMovement:
		return "movement"
	}
	return "unknown"
}

// ParseStatus decodes a 0x13 body:
//
//	terminal_info[1] voltage[1] gsm_signal[1] [alarm[1] language[1]]
func ParseStatus(body []byte) (*Status, error) {
	if len(body) < 3 {
		return nil, fmt.Errorf("status body too short: %d bytes", len(body))
	}

	info := body[0]
	st := &Status{
		Defense:         info&(1<<0) != 0,
		Ignition:        info&(1<<1) != 0,
		Charging:        info&(1<<2) != 0,
		Alarm:           AlarmType((info >> 3) & 0x07),
		GPSTracking:     info&(1<<6) != 0,
		OilDisconnected: info&(1<<7) != 0,
		VoltageLevel:    body[1],
		SignalLevel:     body[2],
	}

	if st.VoltageLevel > 6 {
		return nil, fmt.Errorf("voltage level %d out of range", st.VoltageLevel)
	}
	if st.SignalLevel > 4 {
		return nil, fmt.Errorf("signal level %d out of range", st.SignalLevel)
	}

	if len(body) >= 5 {
		st.AlarmByte = body[3]
		st.LanguageByte = body[4]
	}
	return st, nil
}
