// Package locus decodes and encodes MediaTek's on-chip binary GPS log
// format: a 16-byte header, a slot-usage bitmap, and a stream of
// variable-layout waypoint records whose field set is driven by the
// header's content bitmap.
package locus

import (
	"encoding/binary"
	"math"

	"github.com/cr/hx870/errs"
)

const (
	HeaderSize     = 16
	SlotBitmapSize = 38
	UnknownSize    = 4
	PreambleSize   = HeaderSize + SlotBitmapSize + UnknownSize
)

// Content bitmap bits, in the fixed field order spec.md §3/§4.6 define.
const (
	ContentUTC      = 1 << 0
	ContentFixType  = 1 << 1
	ContentLat      = 1 << 2
	ContentLon      = 1 << 3
	ContentHeight   = 1 << 4
	ContentSpeed    = 1 << 5
	ContentHeading  = 1 << 6
	ContentHDOP     = 1 << 7
	ContentNSat     = 1 << 8
)

// Header is the 16-byte LOCUS dump header.
type Header struct {
	LoggingType uint8
	LoggingMode uint8
	LogContent  uint16
	Interval    uint16
	Distance    uint16
	// Speed's unit is not documented in the source this was ported from;
	// exposed as a raw integer per spec.md §9's documented ambiguity.
	Speed    uint16
	Reserved [5]byte
}

func xorAll(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return x
}

// DecodeHeader validates the header's XOR checksum (byte 15 over bytes
// 0..14) and unpacks its little-endian fields.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, errs.NewProtocolError("LOCUS header must be %d bytes, got %d", HeaderSize, len(b))
	}
	want := xorAll(b[:15])
	if want != b[15] {
		return Header{}, errs.NewLocusError("LOCUS header checksum mismatch: computed %#02x, got %#02x", want, b[15])
	}
	h := Header{
		LoggingType: b[0],
		LoggingMode: b[1],
		LogContent:  binary.LittleEndian.Uint16(b[2:4]),
		Interval:    binary.LittleEndian.Uint16(b[4:6]),
		Distance:    binary.LittleEndian.Uint16(b[6:8]),
		Speed:       binary.LittleEndian.Uint16(b[8:10]),
	}
	copy(h.Reserved[:], b[10:15])
	return h, nil
}

// EncodeHeader is DecodeHeader's inverse.
func EncodeHeader(h Header) []byte {
	out := make([]byte, HeaderSize)
	out[0] = h.LoggingType
	out[1] = h.LoggingMode
	binary.LittleEndian.PutUint16(out[2:4], h.LogContent)
	binary.LittleEndian.PutUint16(out[4:6], h.Interval)
	binary.LittleEndian.PutUint16(out[6:8], h.Distance)
	binary.LittleEndian.PutUint16(out[8:10], h.Speed)
	copy(out[10:15], h.Reserved[:])
	out[15] = xorAll(out[:15])
	return out
}

// Waypoint is one decoded LOCUS log record; a field is nil iff its
// content-bitmap bit was not set for this dump.
type Waypoint struct {
	UTC     *uint32
	FixType *uint8
	Lat     *float32
	Lon     *float32
	Height  *int16
	Speed   *uint16
	Heading *uint16
	HDOP    *uint16
	NSat    *uint8
}

type field struct {
	bit  uint16
	size int
}

// fieldOrder is the fixed wire order of the nine optional fields.
var fieldOrder = []field{
	{ContentUTC, 4},
	{ContentFixType, 1},
	{ContentLat, 4},
	{ContentLon, 4},
	{ContentHeight, 2},
	{ContentSpeed, 2},
	{ContentHeading, 2},
	{ContentHDOP, 2},
	{ContentNSat, 1},
}

// RecordSize returns the number of data bytes (excluding the trailing
// checksum byte) a waypoint record occupies for the given content bitmap.
func RecordSize(content uint16) int {
	n := 0
	for _, f := range fieldOrder {
		if content&f.bit != 0 {
			n += f.size
		}
	}
	return n
}

// isEmptySlot reports whether the first 6 bytes of a record are all-0x00
// or all-0xFF, the documented sentinel for an unused log slot. Bytes
// 0x10..0x36 (the slot-usage bitmap) are read but not consulted for
// slot-boundary determination — spec.md §9 flags this as a known
// limitation rather than a guess this codec should paper over.
func isEmptySlot(b []byte) bool {
	if len(b) < 6 {
		return false
	}
	allZero, allFF := true, true
	for _, c := range b[:6] {
		if c != 0x00 {
			allZero = false
		}
		if c != 0xFF {
			allFF = false
		}
	}
	return allZero || allFF
}

// DecodeWaypoint unpacks one record (data bytes plus trailing checksum)
// for the given content bitmap. ok is false, with no error, for an empty
// slot.
func DecodeWaypoint(b []byte, content uint16) (w Waypoint, ok bool, err error) {
	dataSize := RecordSize(content)
	if len(b) != dataSize+1 {
		return Waypoint{}, false, errs.NewLocusError("LOCUS record must be %d bytes, got %d", dataSize+1, len(b))
	}
	if isEmptySlot(b) {
		return Waypoint{}, false, nil
	}
	want := xorAll(b[:dataSize])
	if want != b[dataSize] {
		return Waypoint{}, false, errs.NewLocusError("LOCUS record checksum mismatch: computed %#02x, got %#02x", want, b[dataSize])
	}

	off := 0
	for _, f := range fieldOrder {
		if content&f.bit == 0 {
			continue
		}
		chunk := b[off : off+f.size]
		switch f.bit {
		case ContentUTC:
			v := binary.LittleEndian.Uint32(chunk)
			w.UTC = &v
		case ContentFixType:
			v := chunk[0]
			w.FixType = &v
		case ContentLat:
			v := math.Float32frombits(binary.LittleEndian.Uint32(chunk))
			w.Lat = &v
		case ContentLon:
			v := math.Float32frombits(binary.LittleEndian.Uint32(chunk))
			w.Lon = &v
		case ContentHeight:
			v := int16(binary.LittleEndian.Uint16(chunk))
			w.Height = &v
		case ContentSpeed:
			v := binary.LittleEndian.Uint16(chunk)
			w.Speed = &v
		case ContentHeading:
			v := binary.LittleEndian.Uint16(chunk)
			w.Heading = &v
		case ContentHDOP:
			v := binary.LittleEndian.Uint16(chunk)
			w.HDOP = &v
		case ContentNSat:
			v := chunk[0]
			w.NSat = &v
		}
		off += f.size
	}
	return w, true, nil
}

// EncodeWaypoint packs a Waypoint back into its wire record for the given
// content bitmap. Fields the bitmap does not select are ignored even if
// set on w.
func EncodeWaypoint(w Waypoint, content uint16) []byte {
	dataSize := RecordSize(content)
	out := make([]byte, dataSize+1)
	off := 0
	for _, f := range fieldOrder {
		if content&f.bit == 0 {
			continue
		}
		chunk := out[off : off+f.size]
		switch f.bit {
		case ContentUTC:
			if w.UTC != nil {
				binary.LittleEndian.PutUint32(chunk, *w.UTC)
			}
		case ContentFixType:
			if w.FixType != nil {
				chunk[0] = *w.FixType
			}
		case ContentLat:
			if w.Lat != nil {
				binary.LittleEndian.PutUint32(chunk, math.Float32bits(*w.Lat))
			}
		case ContentLon:
			if w.Lon != nil {
				binary.LittleEndian.PutUint32(chunk, math.Float32bits(*w.Lon))
			}
		case ContentHeight:
			if w.Height != nil {
				binary.LittleEndian.PutUint16(chunk, uint16(*w.Height))
			}
		case ContentSpeed:
			if w.Speed != nil {
				binary.LittleEndian.PutUint16(chunk, *w.Speed)
			}
		case ContentHeading:
			if w.Heading != nil {
				binary.LittleEndian.PutUint16(chunk, *w.Heading)
			}
		case ContentHDOP:
			if w.HDOP != nil {
				binary.LittleEndian.PutUint16(chunk, *w.HDOP)
			}
		case ContentNSat:
			if w.NSat != nil {
				chunk[0] = *w.NSat
			}
		}
		off += f.size
	}
	out[dataSize] = xorAll(out[:dataSize])
	return out
}

// Log is a fully decoded LOCUS dump.
type Log struct {
	Header     Header
	SlotBitmap [SlotBitmapSize]byte
	Unknown    [UnknownSize]byte
	Waypoints  []Waypoint
}

// Decode parses a full LOCUS dump, stopping at the first empty slot or
// truncated trailing record.
func Decode(data []byte) (Log, error) {
	if len(data) < PreambleSize {
		return Log{}, errs.NewLocusError("LOCUS dump shorter than preamble: %d bytes", len(data))
	}
	header, err := DecodeHeader(data[:HeaderSize])
	if err != nil {
		return Log{}, err
	}
	var log Log
	log.Header = header
	copy(log.SlotBitmap[:], data[HeaderSize:HeaderSize+SlotBitmapSize])
	copy(log.Unknown[:], data[HeaderSize+SlotBitmapSize:PreambleSize])

	recSize := RecordSize(header.LogContent) + 1
	if recSize <= 1 {
		return Log{}, errs.NewLocusError("LOCUS header's content bitmap selects no fields")
	}

	off := PreambleSize
	for off+recSize <= len(data) {
		rec := data[off : off+recSize]
		w, ok, err := DecodeWaypoint(rec, header.LogContent)
		if err != nil {
			return Log{}, err
		}
		if !ok {
			break
		}
		log.Waypoints = append(log.Waypoints, w)
		off += recSize
	}
	return log, nil
}

// Encode serializes the header, slot bitmap, unknown bytes, and every
// waypoint in order. It is the left inverse of Decode up to the trailing
// empty-slot padding Decode does not retain.
func Encode(l Log) []byte {
	out := EncodeHeader(l.Header)
	out = append(out, l.SlotBitmap[:]...)
	out = append(out, l.Unknown[:]...)
	for _, w := range l.Waypoints {
		out = append(out, EncodeWaypoint(w, l.Header.LogContent)...)
	}
	return out
}
