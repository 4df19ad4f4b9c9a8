// Package navdata implements the binary codecs for the device's waypoint
// and route tables: BCD-encoded coordinates and MMSI, fixed 32-byte
// records, and the legacy degrees-minutes string form alongside a
// canonical s2.LatLng.
package navdata

import (
	"strings"

	"github.com/golang/geo/s2"

	"github.com/cr/hx870/errs"
)

const WaypointRecordSize = 32

// Waypoint is the decoded form of one 32-byte waypoint slot. Both the
// decimal-degree floats and the legacy "DD[NS]MM.MMMM" strings are carried
// alongside the canonical s2.LatLng, matching every representation the
// device and its callers are observed to use.
type Waypoint struct {
	ID        int // 1..200
	MMSI      string
	Name      string
	LatDegree float64
	LonDegree float64
	LatString string
	LonString string
	Point     s2.LatLng
}

// NewWaypointFromDecimal builds a Waypoint from decimal-degree coordinates,
// filling in the derived string and s2.LatLng forms.
func NewWaypointFromDecimal(id int, name, mmsi string, latDeg, lonDeg float64) Waypoint {
	return Waypoint{
		ID:        id,
		MMSI:      mmsi,
		Name:      name,
		LatDegree: latDeg,
		LonDegree: lonDeg,
		LatString: FormatCoordinate(latDeg, true),
		LonString: FormatCoordinate(lonDeg, false),
		Point:     s2.LatLngFromDegrees(latDeg, lonDeg),
	}
}

// NewWaypointFromStrings builds a Waypoint from the legacy
// "DD[NS]MM.MMMM" / "DDD[EW]MM.MMMM" coordinate strings.
func NewWaypointFromStrings(id int, name, mmsi, latStr, lonStr string) (Waypoint, error) {
	lat, err := ParseCoordinate(latStr, true)
	if err != nil {
		return Waypoint{}, err
	}
	lon, err := ParseCoordinate(lonStr, false)
	if err != nil {
		return Waypoint{}, err
	}
	return NewWaypointFromDecimal(id, name, mmsi, lat, lon), nil
}

// DecodeWaypoint unpacks a 32-byte record. The returned bool reports
// whether the slot is occupied (id byte != 0xFF); an empty slot yields a
// zero Waypoint and false, not an error.
func DecodeWaypoint(b []byte) (Waypoint, bool, error) {
	if len(b) != WaypointRecordSize {
		return Waypoint{}, false, errs.NewProtocolError("waypoint record must be %d bytes, got %d", WaypointRecordSize, len(b))
	}
	if b[31] == 0xFF {
		return Waypoint{}, false, nil
	}

	mmsi, err := decodeWaypointMMSI(b[0:5])
	if err != nil {
		return Waypoint{}, false, err
	}

	lat, err := decodeLat(b[5], b[6:9], b[9])
	if err != nil {
		return Waypoint{}, false, err
	}
	lon, err := decodeLon(b[10:12], b[12:15], b[15])
	if err != nil {
		return Waypoint{}, false, err
	}

	name := strings.TrimRight(string(b[16:31]), "\xff")

	w := NewWaypointFromDecimal(int(b[31]), name, mmsi, lat, lon)
	return w, true, nil
}

// PackWaypoint packs a Waypoint into its 32-byte record. The caller's id
// field is written verbatim; a zero-value ID is almost certainly a bug on
// the caller's side (valid ids are 1..200) but is not itself rejected
// here — the encode layer is not the place to own slot-table policy.
func PackWaypoint(w Waypoint) ([]byte, error) {
	out := make([]byte, WaypointRecordSize)

	mmsiBytes, err := encodeWaypointMMSI(w.MMSI)
	if err != nil {
		return nil, err
	}
	copy(out[0:5], mmsiBytes)

	degByte, latMin, latDir := encodeLat(w.LatDegree)
	out[5] = degByte
	copy(out[6:9], latMin[:])
	out[9] = latDir

	lonDeg, lonMin, lonDir := encodeLon(w.LonDegree)
	copy(out[10:12], lonDeg[:])
	copy(out[12:15], lonMin[:])
	out[15] = lonDir

	name := w.Name
	if len(name) > 15 {
		name = name[:15]
	}
	for i := 16; i < 31; i++ {
		out[i] = 0xFF
	}
	copy(out[16:31], name)

	if w.ID < 0 || w.ID > 0xFF {
		return nil, errs.NewProtocolError("waypoint id %d out of range", w.ID)
	}
	out[31] = byte(w.ID)
	return out, nil
}

// decodeWaypointMMSI reads the waypoint-embedded MMSI: the high nibble of
// byte 0 is unused padding, the remaining 9 nibbles are the decimal MMSI
// digits. All-0xFF bytes mean no MMSI is recorded.
func decodeWaypointMMSI(b []byte) (string, error) {
	if allOnes(b) {
		return "", nil
	}
	n := nibbles(b)
	digits := n[1:10]
	for _, d := range digits {
		if d > 9 {
			return "", errs.NewProtocolError("non-BCD nibble in waypoint MMSI field")
		}
	}
	return digitsToString(digits), nil
}

func encodeWaypointMMSI(mmsi string) ([]byte, error) {
	if mmsi == "" {
		return []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, nil
	}
	if len(mmsi) != 9 {
		return nil, errs.NewProtocolError("MMSI must be 9 digits, got %q", mmsi)
	}
	digits, ok := digitsFromString(mmsi)
	if !ok {
		return nil, errs.NewProtocolError("MMSI must be all decimal digits, got %q", mmsi)
	}
	vals := make([]int, 10)
	vals[0] = 0
	copy(vals[1:], digits)
	return packNibbles(vals), nil
}
