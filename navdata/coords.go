package navdata

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cr/hx870/errs"
)

// decodeLat reconstructs a signed decimal-degree latitude from the
// device's 5-byte field: 1 byte BCD degrees, 3 bytes BCD minutes scaled by
// 1e4, 1 ASCII direction byte.
func decodeLat(degByte byte, minBytes []byte, dir byte) (float64, error) {
	degVals := nibbles([]byte{degByte})
	deg := float64(degVals[0]*10 + degVals[1])
	minVals := nibbles(minBytes)
	rawMin := 0
	for _, v := range minVals {
		rawMin = rawMin*10 + v
	}
	minutes := float64(rawMin) / 10000.0
	decimal := deg + minutes/60.0
	switch dir {
	case 'N':
		return decimal, nil
	case 'S':
		return -decimal, nil
	default:
		return 0, errs.NewProtocolError("invalid latitude direction byte %q", dir)
	}
}

// encodeLat is decodeLat's inverse.
func encodeLat(decimal float64) (degByte byte, minBytes [3]byte, dir byte) {
	dir = 'N'
	if decimal < 0 {
		dir = 'S'
		decimal = -decimal
	}
	deg := int(decimal)
	rawMin := int(0.5 + (decimal-float64(deg))*60.0*10000.0)
	degByte = packNibbles([]int{deg / 10, deg % 10})[0]
	mv := minuteDigits(rawMin, 6)
	copy(minBytes[:], packNibbles(mv))
	return
}

// decodeLon reconstructs a signed decimal-degree longitude. Only the low
// two digits of the 4-digit degrees field are significant — the peer never
// sets the leading pair, a documented hardware quirk this codec preserves
// rather than papers over.
func decodeLon(degBytes []byte, minBytes []byte, dir byte) (float64, error) {
	degVals := nibbles(degBytes)
	deg := 0
	for _, v := range degVals[len(degVals)-2:] {
		deg = deg*10 + v
	}
	minVals := nibbles(minBytes)
	rawMin := 0
	for _, v := range minVals {
		rawMin = rawMin*10 + v
	}
	minutes := float64(rawMin) / 10000.0
	decimal := float64(deg) + minutes/60.0
	switch dir {
	case 'E':
		return decimal, nil
	case 'W':
		return -decimal, nil
	default:
		return 0, errs.NewProtocolError("invalid longitude direction byte %q", dir)
	}
}

func encodeLon(decimal float64) (degBytes [2]byte, minBytes [3]byte, dir byte) {
	dir = 'E'
	if decimal < 0 {
		dir = 'W'
		decimal = -decimal
	}
	deg := int(decimal) % 100
	rawMin := int(0.5 + (decimal-float64(int(decimal)))*60.0*10000.0)
	copy(degBytes[:], packNibbles([]int{0, 0, deg / 10, deg % 10}))
	copy(minBytes[:], packNibbles(minuteDigits(rawMin, 6)))
	return
}

func minuteDigits(raw, width int) []int {
	out := make([]int, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = raw % 10
		raw /= 10
	}
	return out
}

// FormatCoordinate renders a decimal-degree coordinate as the legacy
// "DD[NS]MM.MMMM" / "DDD[EW]MM.MMMM" string form.
func FormatCoordinate(decimal float64, isLat bool) string {
	pos, neg := "N", "S"
	width := 2
	if !isLat {
		pos, neg = "E", "W"
		width = 3
	}
	dir := pos
	if decimal < 0 {
		dir = neg
		decimal = -decimal
	}
	deg := int(decimal)
	minutes := (decimal - float64(deg)) * 60.0
	return fmt.Sprintf("%0*d%s%07.4f", width, deg, dir, minutes)
}

// ParseCoordinate parses the legacy "DD[NS]MM.MMMM" / "DDD[EW]MM.MMMM"
// string form into a signed decimal-degree float.
func ParseCoordinate(s string, isLat bool) (float64, error) {
	width := 2
	if !isLat {
		width = 3
	}
	if len(s) <= width {
		return 0, errs.NewProtocolError("coordinate string %q too short", s)
	}
	degStr := s[:width]
	dirByte := s[width]
	rest := s[width+1:]

	deg, err := strconv.Atoi(degStr)
	if err != nil {
		return 0, errs.WrapProtocolError(err, "invalid degrees in coordinate %q", s)
	}
	minutes, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, errs.WrapProtocolError(err, "invalid minutes in coordinate %q", s)
	}
	decimal := float64(deg) + minutes/60.0

	dir := strings.ToUpper(string(dirByte))
	switch dir {
	case "N", "E":
		return decimal, nil
	case "S", "W":
		return -decimal, nil
	default:
		return 0, errs.NewProtocolError("invalid direction %q in coordinate %q", dir, s)
	}
}
