package gt06

import (
	"fmt"
)

// imeiBCDLen is the number of body bytes carrying the IMEI in a login frame.
const imeiBCDLen = 8

// DecodeIMEI extracts the device IMEI from a login frame body. The IMEI is
// packed BCD in the first 8 bytes: 16 nibbles, of which the leading one is a
// zero pad. The result is always 15 decimal digits.
func DecodeIMEI(body []byte) (string, error) {
	if len(body) < imeiBCDLen {
		return "", fmt.Errorf("login body too short for IMEI: %d bytes", len(body))
	}

	digits := make([]byte, 0, 16)
	for _, b := range body[:imeiBCDLen] {
		hi := b >> 4
		lo := b & 0x0F
		if hi > 9 || lo > 9 {
			return "", fmt.Errorf("invalid BCD nibble in IMEI byte 0x%02X", b)
		}
		digits = append(digits, '0'+hi, '0'+lo)
	}

	if digits[0] != '0' {
		return "", fmt.Errorf("IMEI pad nibble is %c, want 0", digits[0])
	}
	return string(digits[1:]), nil
}
