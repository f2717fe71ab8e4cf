package telemetry

// crc16 is the table-driven CRC16 (polynomial 0x1021) used by GDL90-style
// framing. The data byte is folded in after the table lookup, so it does not
// match the XMODEM check value.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc16Table[crc>>8] ^ (crc << 8) ^ uint16(b)
	}
	return crc
}

var crc16Table = func() [256]uint16 {
	var table [256]uint16
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if (crc & 0x8000) != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		table[i] = crc
	}
	return table
}()
