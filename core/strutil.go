package core

// String helpers that avoid pulling fmt into the firmware image.

// itoa converts an integer to its decimal representation
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	neg := n < 0
	u := uint64(n)
	if neg {
		u = uint64(-n)
	}
	for u > 0 {
		pos--
		buf[pos] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// ftoa formats a duty value with three decimals, e.g. 7.5 -> "7.500"
func ftoa(f float32) string {
	neg := f < 0
	if neg {
		f = -f
	}
	milli := int(f*1000 + 0.5)
	frac := milli % 1000
	s := itoa(milli/1000) + "."
	switch {
	case frac < 10:
		s += "00"
	case frac < 100:
		s += "0"
	}
	s += itoa(frac)
	if neg {
		return "-" + s
	}
	return s
}

// identityString renders an identity for debug output
func identityString(id Identity) string {
	if id == NoIdentity {
		return "-"
	}
	return string([]byte{byte(id)})
}
