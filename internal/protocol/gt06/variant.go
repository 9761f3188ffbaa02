package gt06

// Variant identifies the device family inferred at login time. Tracker
// clones reuse the GT06 framing but differ in login payload size and in
// which opcodes carry primary traffic.
type Variant string

const (
	VariantV5       Variant = "V5"
	VariantSK05     Variant = "SK05"
	VariantStandard Variant = "GT06_STANDARD"
	VariantUnknown  Variant = "GT06_UNKNOWN"
)

// DetectVariant classifies a device from its login body length. The login
// body always starts with the 8-byte IMEI; what follows varies by family.
// Detection happens once per session and the result never changes.
func DetectVariant(loginBodyLen int) Variant {
	switch {
	case loginBodyLen >= 8 && loginBodyLen <= 12:
		return VariantV5
	case loginBodyLen >= 13 && loginBodyLen <= 16:
		return VariantSK05
	case loginBodyLen > 16:
		return VariantStandard
	default:
		return VariantUnknown
	}
}

// StatusIsPrimaryTraffic reports whether 0x13 frames are the variant's
// normal reporting channel rather than an occasional heartbeat. V5 units
// stream status packets continuously between position fixes.
func (v Variant) StatusIsPrimaryTraffic() bool {
	return v == VariantV5
}
