package protocol

import "errors"

var ErrPayloadTooLong = errors.New("payload too long for one frame")

// Frame is a decoded link frame
type Frame struct {
	Sequence uint8
	Payload  []byte // aliases the scanned buffer
}

// IsAck reports whether the frame carries no commands
func (f Frame) IsAck() bool {
	return len(f.Payload) == 0
}

// AppendFrame appends a complete frame holding payload to dst
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	if len(payload) > PayloadMax {
		return dst, ErrPayloadTooLong
	}
	start := len(dst)
	dst = append(dst, byte(len(payload)+LengthMin), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), SyncByte), nil
}

// NextFrame scans the front of data for one frame.
//
// It returns the number of bytes the caller should drop. When ok is false and
// consumed is zero the buffer holds a partial frame and more input is needed;
// when consumed is non-zero corrupt input was skipped up to the next sync byte.
func NextFrame(data []byte) (f Frame, consumed int, ok bool) {
	i := 0
	for i < len(data) && data[i] == SyncByte {
		i++
	}
	buf := data[i:]
	if len(buf) < LengthMin {
		return Frame{}, i, false
	}

	msgLen := int(buf[positionLen])
	seq := buf[positionSeq]
	if msgLen < LengthMin || msgLen > LengthMax || seq&^SeqMask != SeqDest {
		return Frame{}, i + resync(buf), false
	}
	if len(buf) < msgLen {
		return Frame{}, i, false
	}
	if buf[msgLen-trailerSync] != SyncByte {
		return Frame{}, i + resync(buf), false
	}
	want := uint16(buf[msgLen-trailerCRC])<<8 | uint16(buf[msgLen-trailerCRC+1])
	if CRC16(buf[:msgLen-TrailerSize]) != want {
		return Frame{}, i + resync(buf), false
	}

	f = Frame{
		Sequence: seq,
		Payload:  buf[HeaderSize : msgLen-TrailerSize],
	}
	return f, i + msgLen, true
}

// resync returns how many bytes to drop to reach the next sync byte,
// never less than one so scanning always makes progress
func resync(buf []byte) int {
	for j := 1; j < len(buf); j++ {
		if buf[j] == SyncByte {
			return j + 1
		}
	}
	return len(buf)
}
