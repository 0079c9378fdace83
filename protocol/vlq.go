package protocol

import "errors"

var (
	ErrShortBuffer = errors.New("buffer too short")
	ErrTooLong     = errors.New("value too long")
)

// AppendVLQ appends the variable length encoding of v to dst.
// Each byte carries 7 bits, most significant group first, with the high bit
// set on every byte but the last. Values in [-32, 96) take a single byte.
func AppendVLQ(dst []byte, v int32) []byte {
	for shift := uint(28); shift >= 7; shift -= 7 {
		if v < -(1<<(shift-2)) || v >= 3<<(shift-2) {
			dst = append(dst, byte((v>>shift)&0x7F)|0x80)
		}
	}
	return append(dst, byte(v&0x7F))
}

// AppendVLQUint appends an unsigned value; the bit pattern is sent as int32
func AppendVLQUint(dst []byte, v uint32) []byte {
	return AppendVLQ(dst, int32(v))
}

// AppendVLQBytes appends a length prefixed byte string
func AppendVLQBytes(dst []byte, b []byte) []byte {
	dst = AppendVLQUint(dst, uint32(len(b)))
	return append(dst, b...)
}

// ReadVLQ decodes one value from the front of *data and advances it
func ReadVLQ(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrShortBuffer
	}
	c := uint32(buf[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		// negative, sign extend
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(buf) {
			return 0, ErrShortBuffer
		}
		if i > 4 {
			return 0, ErrTooLong
		}
		c = uint32(buf[i])
		v = v<<7 | c&0x7F
		i++
	}
	*data = buf[i:]
	return int32(v), nil
}

// ReadVLQUint decodes an unsigned value
func ReadVLQUint(data *[]byte) (uint32, error) {
	v, err := ReadVLQ(data)
	return uint32(v), err
}

// ReadVLQBytes decodes a length prefixed byte string. The result aliases *data.
func ReadVLQBytes(data *[]byte) ([]byte, error) {
	n, err := ReadVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrShortBuffer
	}
	b := (*data)[:n]
	*data = (*data)[n:]
	return b, nil
}
