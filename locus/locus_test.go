package locus_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cr/hx870/locus"
)

func u32(v uint32) *uint32 { return &v }
func u16(v uint16) *uint16 { return &v }
func u8(v uint8) *uint8    { return &v }
func i16(v int16) *int16   { return &v }
func f32(v float32) *float32 { return &v }

func sampleHeader(content uint16) locus.Header {
	return locus.Header{
		LoggingType: 2,
		LoggingMode: 0x1E,
		LogContent:  content,
		Interval:    60,
		Distance:    0,
		Speed:       0,
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := sampleHeader(locus.ContentUTC | locus.ContentLat | locus.ContentLon | locus.ContentFixType)
	b := locus.EncodeHeader(h)
	require.Len(t, b, locus.HeaderSize)

	got, err := locus.DecodeHeader(b)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderRejectsBadChecksum(t *testing.T) {
	h := sampleHeader(locus.ContentUTC)
	b := locus.EncodeHeader(h)
	b[15] ^= 0xFF

	_, err := locus.DecodeHeader(b)
	require.Error(t, err)
}

func TestWaypointRoundTrip(t *testing.T) {
	content := uint16(locus.ContentUTC | locus.ContentFixType | locus.ContentLat | locus.ContentLon |
		locus.ContentHeight | locus.ContentSpeed | locus.ContentHeading | locus.ContentHDOP | locus.ContentNSat)
	w := locus.Waypoint{
		UTC:     u32(1_700_000_000),
		FixType: u8(3),
		Lat:     f32(47.123456),
		Lon:     f32(9.654321),
		Height:  i16(-12),
		Speed:   u16(55),
		Heading: u16(271),
		HDOP:    u16(120),
		NSat:    u8(9),
	}

	rec := locus.EncodeWaypoint(w, content)
	require.Len(t, rec, locus.RecordSize(content)+1)

	got, ok, err := locus.DecodeWaypoint(rec, content)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, w, got)
}

func TestWaypointPartialContentOnlyPacksSelectedFields(t *testing.T) {
	content := uint16(locus.ContentUTC | locus.ContentLat)
	w := locus.Waypoint{
		UTC: u32(42),
		Lat: f32(1.5),
		// FixType etc set but not selected by content; must be ignored.
		FixType: u8(9),
	}

	rec := locus.EncodeWaypoint(w, content)
	assert.Equal(t, locus.RecordSize(content)+1, len(rec))

	got, ok, err := locus.DecodeWaypoint(rec, content)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, got.FixType)
	require.NotNil(t, got.UTC)
	assert.Equal(t, uint32(42), *got.UTC)
}

func TestWaypointEmptySlotZero(t *testing.T) {
	content := uint16(locus.ContentUTC | locus.ContentLat)
	rec := make([]byte, locus.RecordSize(content)+1)

	_, ok, err := locus.DecodeWaypoint(rec, content)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWaypointEmptySlotFF(t *testing.T) {
	content := uint16(locus.ContentUTC | locus.ContentLat)
	rec := make([]byte, locus.RecordSize(content)+1)
	for i := range rec {
		rec[i] = 0xFF
	}

	_, ok, err := locus.DecodeWaypoint(rec, content)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWaypointRejectsBadChecksum(t *testing.T) {
	content := uint16(locus.ContentUTC | locus.ContentLat)
	w := locus.Waypoint{UTC: u32(1), Lat: f32(2)}
	rec := locus.EncodeWaypoint(w, content)
	rec[len(rec)-1] ^= 0xFF

	_, _, err := locus.DecodeWaypoint(rec, content)
	require.Error(t, err)
}

// TestLogRoundTrip is spec.md §8's log-dump scenario: a header plus a
// handful of waypoint records followed by an all-0x00 empty slot.
func TestLogRoundTrip(t *testing.T) {
	content := uint16(locus.ContentUTC | locus.ContentFixType | locus.ContentLat | locus.ContentLon | locus.ContentSpeed)
	h := sampleHeader(content)

	l := locus.Log{Header: h}
	for i := 0; i < 3; i++ {
		l.Waypoints = append(l.Waypoints, locus.Waypoint{
			UTC:     u32(uint32(1_700_000_000 + i)),
			FixType: u8(3),
			Lat:     f32(47.0 + float32(i)),
			Lon:     f32(9.0 + float32(i)),
			Speed:   u16(uint16(10 * i)),
		})
	}

	raw := locus.Encode(l)

	recSize := locus.RecordSize(content) + 1
	raw = append(raw, make([]byte, recSize)...) // trailing empty (0x00) slot terminates decode

	got, err := locus.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, l.Header, got.Header)
	require.Len(t, got.Waypoints, 3)
	assert.Equal(t, l.Waypoints, got.Waypoints)
}

func TestDecodeRejectsShortPreamble(t *testing.T) {
	_, err := locus.Decode(make([]byte, 10))
	require.Error(t, err)
}

func TestWaypointPackUnpackProperty(t *testing.T) {
	content := uint16(locus.ContentUTC | locus.ContentFixType | locus.ContentLat | locus.ContentLon |
		locus.ContentHeight | locus.ContentSpeed | locus.ContentHeading | locus.ContentHDOP | locus.ContentNSat)

	rapid.Check(t, func(rt *rapid.T) {
		w := locus.Waypoint{
			UTC:     u32(rapid.Uint32().Draw(rt, "utc")),
			FixType: u8(rapid.Uint8().Draw(rt, "fixType")),
			Lat:     f32(float32(rapid.Float64Range(-90, 90).Draw(rt, "lat"))),
			Lon:     f32(float32(rapid.Float64Range(-180, 180).Draw(rt, "lon"))),
			Height:  i16(rapid.Int16().Draw(rt, "height")),
			Speed:   u16(rapid.Uint16().Draw(rt, "speed")),
			Heading: u16(rapid.Uint16().Draw(rt, "heading")),
			HDOP:    u16(rapid.Uint16().Draw(rt, "hdop")),
			NSat:    u8(rapid.Uint8().Draw(rt, "nsat")),
		}

		rec := locus.EncodeWaypoint(w, content)
		got, ok, err := locus.DecodeWaypoint(rec, content)
		require.NoError(rt, err)
		if !ok {
			// An all-0x00/0xFF sentinel collision is a valid, if vanishingly
			// rare, draw; only the sentinel case is allowed to report !ok.
			return
		}
		assert.Equal(rt, w, got)
	})
}
