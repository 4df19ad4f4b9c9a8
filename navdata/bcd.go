package navdata

// Nibbles splits each byte of b into its high and low nibble, in that
// order, mirroring how the firmware packs two BCD digits per byte. Exported
// for cfgmem's identifier (MMSI/ATIS) records, which use the same BCD
// convention outside of a full waypoint record.
func Nibbles(b []byte) []int { return nibbles(b) }

// PackNibbles is the inverse of Nibbles, exported for the same reason.
func PackNibbles(vals []int) []byte { return packNibbles(vals) }

// nibbles splits each byte of b into its high and low nibble, in that
// order, mirroring how the firmware packs two BCD digits per byte.
func nibbles(b []byte) []int {
	out := make([]int, 0, len(b)*2)
	for _, x := range b {
		out = append(out, int(x>>4), int(x&0x0F))
	}
	return out
}

// packNibbles is the inverse of nibbles: every two values become one byte,
// high nibble first. len(vals) must be even.
func packNibbles(vals []int) []byte {
	out := make([]byte, len(vals)/2)
	for i := range out {
		out[i] = byte(vals[2*i]<<4) | byte(vals[2*i+1]&0x0F)
	}
	return out
}

func allOnes(b []byte) bool {
	for _, x := range b {
		if x != 0xFF {
			return false
		}
	}
	return true
}

func digitsToString(vals []int) string {
	b := make([]byte, len(vals))
	for i, v := range vals {
		b[i] = byte('0' + v)
	}
	return string(b)
}

func digitsFromString(s string) ([]int, bool) {
	out := make([]int, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return nil, false
		}
		out[i] = int(s[i] - '0')
	}
	return out, true
}
