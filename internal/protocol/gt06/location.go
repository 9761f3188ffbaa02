package gt06

import (
	"encoding/binary"
	"fmt"
	"time"
)

// coordScale converts raw GT06 coordinate words to decimal degrees:
// raw = degrees * 60 * 30000.
const coordScale = 1800000.0

// Course/status word bits.
const (
	courseMask     = 0x03FF // bits 0-9: heading in degrees
	flagLatSouth   = 1 << 10
	flagLonWest    = 1 << 11
	flagGPSFixed   = 1 << 12
	phonePrefixLen = 4 // 0x1A frames carry a 4-byte phone prefix
)

// Location is a decoded GPS position record.
type Location struct {
	Timestamp  time.Time // device-reported UTC, zero when the frame has none
	Valid      bool      // GPS fix flag from the course/status word
	Satellites uint8
	Latitude   float64 // decimal degrees, negative south
	Longitude  float64 // decimal degrees, negative west
	Speed      uint8   // km/h
	Course     uint16  // degrees, 0-360

	HasAltitude bool
	Altitude    int16 // meters, only meaningful when HasAltitude

	// ScanOffset is the body offset at which coordinates were found, for
	// extended (0x94) frames located by scanning. Zero for fixed layouts.
	ScanOffset int

	// IMEIEcho is the IMEI echoed inside an extended frame body, when
	// present. Fixed layouts leave it empty.
	IMEIEcho string
}

// ParseLocation decodes the body of a location-bearing frame. The layout is
// selected by opcode: 0x1A skips its phone prefix, 0x94 uses coordinate
// scanning, everything else is the standard fixed layout.
func ParseLocation(protocol byte, body []byte) (*Location, error) {
	switch protocol {
	case MsgGPSPhone:
		if len(body) < phonePrefixLen {
			return nil, fmt.Errorf("0x1A body too short: %d bytes", len(body))
		}
		return parseStandardLocation(body[phonePrefixLen:])
	case MsgLocationExt:
		return parseExtendedLocation(body)
	default:
		return parseStandardLocation(body)
	}
}

// parseStandardLocation decodes the fixed GPS layout shared by 0x12, 0x22,
// 0x16, 0x26, 0x15, 0x32 and (after prefix strip) 0x1A:
//
//	datetime[6] gpsinfo[1] lat[4] lon[4] speed[1] course_status[2] [alt[2]]
func parseStandardLocation(body []byte) (*Location, error) {
	if len(body) < 18 {
		return nil, fmt.Errorf("location body too short: %d bytes", len(body))
	}

	ts, err := parseDeviceTime(body[:6])
	if err != nil {
		return nil, err
	}

	gpsInfo := body[6]
	gpsLen := gpsInfo >> 4
	if gpsLen == 0 {
		return nil, fmt.Errorf("frame carries no GPS data")
	}

	latRaw := binary.BigEndian.Uint32(body[7:11])
	lonRaw := binary.BigEndian.Uint32(body[11:15])
	speed := body[15]
	courseStatus := binary.BigEndian.Uint16(body[16:18])

	loc := &Location{
		Timestamp:  ts,
		Valid:      courseStatus&flagGPSFixed != 0,
		Satellites: gpsInfo & 0x0F,
		Latitude:   float64(latRaw) / coordScale,
		Longitude:  float64(lonRaw) / coordScale,
		Speed:      speed,
		Course:     courseStatus & courseMask,
	}

	if courseStatus&flagLatSouth != 0 {
		loc.Latitude = -loc.Latitude
	}
	if courseStatus&flagLonWest != 0 {
		loc.Longitude = -loc.Longitude
	}

	if len(body) >= 20 {
		loc.HasAltitude = true
		loc.Altitude = int16(binary.BigEndian.Uint16(body[18:20]))
	}

	if err := validateCoordinates(loc.Latitude, loc.Longitude); err != nil {
		return nil, err
	}
	return loc, nil
}

// parseExtendedLocation decodes vendor-specific 0x94 frames. These have no
// published layout, but every variant observed embeds two consecutive
// big-endian coordinate words. The parser scans the body for the first
// offset yielding a plausible coordinate pair.
func parseExtendedLocation(body []byte) (*Location, error) {
	if len(body) < 8 {
		return nil, fmt.Errorf("extended location body too short: %d bytes", len(body))
	}

	loc := &Location{Valid: true}

	start := 0
	if len(body) > 20 {
		// Longer variants echo the login IMEI in the first 8 bytes.
		if imei, err := DecodeIMEI(body[:imeiBCDLen]); err == nil {
			loc.IMEIEcho = imei
			start = imeiBCDLen
		}
	}

	for off := start; off+8 <= len(body); off++ {
		lat := float64(binary.BigEndian.Uint32(body[off:off+4])) / coordScale
		lon := float64(binary.BigEndian.Uint32(body[off+4:off+8])) / coordScale
		if lat == 0 && lon == 0 {
			continue
		}
		if lat > 90 || lon > 180 {
			continue
		}
		loc.Latitude = lat
		loc.Longitude = lon
		loc.ScanOffset = off
		return loc, nil
	}
	return nil, fmt.Errorf("no plausible coordinates in extended body")
}

// parseDeviceTime decodes the 6-byte on-wire timestamp. Two-digit years
// above 50 are 19xx, the rest 20xx.
func parseDeviceTime(b []byte) (time.Time, error) {
	yy, mo, dd := int(b[0]), int(b[1]), int(b[2])
	hh, mi, ss := int(b[3]), int(b[4]), int(b[5])

	year := 2000 + yy
	if yy > 50 {
		year = 1900 + yy
	}

	if mo < 1 || mo > 12 || dd < 1 || dd > 31 || hh > 23 || mi > 59 || ss > 59 {
		return time.Time{}, fmt.Errorf("invalid device timestamp %02d-%02d-%02d %02d:%02d:%02d",
			yy, mo, dd, hh, mi, ss)
	}
	return time.Date(year, time.Month(mo), dd, hh, mi, ss, 0, time.UTC), nil
}

func validateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("coordinates out of range: %.6f, %.6f", lat, lon)
	}
	return nil
}
