package gt06

// ChecksumITU computes the CRC-ITU (CRC-16/X-25) checksum used by the GT06
// protocol: polynomial 0x1021 bit-reversed to 0x8408, initial value 0xFFFF,
// final complement. Devices compute it over the bytes from the length field
// through the serial number inclusive.
func ChecksumITU(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0x8408
			} else {
				crc >>= 1
			}
		}
	}
	return ^crc
}
