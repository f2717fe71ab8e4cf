// Package telemetry encodes published path segments for ground stations
// and recorders.
//
// Messages are byte-stuffed between 0x7E flags with a trailing CRC16, the
// same framing most small-UAS and EFB links use, so one serial or UDP
// stream can carry several message types.
package telemetry

import "fmt"

const (
	flagByte   = 0x7E
	escapeByte = 0x7D
	escapeXor  = 0x20
)

// Frame appends the CRC16 (low byte first) to message, escapes flag and
// escape bytes and wraps the result in 0x7E flags.
func Frame(message []byte) []byte {
	crc := crc16(message)

	withCRC := make([]byte, 0, len(message)+2)
	withCRC = append(withCRC, message...)
	withCRC = append(withCRC, byte(crc&0xFF), byte((crc>>8)&0xFF))

	out := make([]byte, 0, 2+len(withCRC)*2)
	out = append(out, flagByte)
	for _, b := range withCRC {
		if b == flagByte || b == escapeByte {
			out = append(out, escapeByte, b^escapeXor)
			continue
		}
		out = append(out, b)
	}
	out = append(out, flagByte)
	return out
}

// Unframe reverses Frame. It returns the message (ID + payload, no CRC) and
// whether the CRC matched; malformed framing is an error.
func Unframe(frame []byte) (msg []byte, crcOK bool, err error) {
	if len(frame) < 4 {
		return nil, false, fmt.Errorf("telemetry: frame too short: %d", len(frame))
	}
	if frame[0] != flagByte || frame[len(frame)-1] != flagByte {
		return nil, false, fmt.Errorf("telemetry: missing start/end flags")
	}

	raw := make([]byte, 0, len(frame))
	for i := 1; i < len(frame)-1; i++ {
		b := frame[i]
		if b == escapeByte {
			i++
			if i >= len(frame)-1 {
				return nil, false, fmt.Errorf("telemetry: truncated escape at end of frame")
			}
			raw = append(raw, frame[i]^escapeXor)
			continue
		}
		raw = append(raw, b)
	}
	if len(raw) < 3 {
		return nil, false, fmt.Errorf("telemetry: unescaped payload too short: %d", len(raw))
	}

	msg = raw[:len(raw)-2]
	crcGot := uint16(raw[len(raw)-2]) | (uint16(raw[len(raw)-1]) << 8)
	return msg, crcGot == crc16(msg), nil
}
