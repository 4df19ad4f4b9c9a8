package navdata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cr/hx870/navdata"
)

func TestWaypointParseSample(t *testing.T) {
	raw := []byte{
		0xff, 0xff, 0xff, 0xff, 0xff, // no MMSI
		0x52, 0x50, 0x89, 0x10, 'N', // lat: 52 deg, 50.8910 min
		0x00, 0x13, 0x46, 0x12, 0x20, 'E', // lon: 13 deg, 46.1220 min
	}
	name := make([]byte, 15)
	for i := range name {
		name[i] = 0xFF
	}
	copy(name, "TESTPOINT")
	raw = append(raw, name...)
	raw = append(raw, 0x01)
	require.Len(t, raw, navdata.WaypointRecordSize)

	w, ok, err := navdata.DecodeWaypoint(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 52+50.8910/60.0, w.LatDegree, 1e-9)
	assert.InDelta(t, 13+46.1220/60.0, w.LonDegree, 1e-9)
	assert.Equal(t, "TESTPOINT", w.Name)
	assert.Equal(t, 1, w.ID)
	assert.Empty(t, w.MMSI)
}

func TestWaypointEmptySlot(t *testing.T) {
	raw := make([]byte, navdata.WaypointRecordSize)
	for i := range raw {
		raw[i] = 0xFF
	}
	w, ok, err := navdata.DecodeWaypoint(raw)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, navdata.Waypoint{}, w)
}

func TestWaypointRoundTripFromDecimal(t *testing.T) {
	w := navdata.NewWaypointFromDecimal(42, "HOME", "123456789", 52.50891, -13.46122)
	packed, err := navdata.PackWaypoint(w)
	require.NoError(t, err)
	require.Len(t, packed, navdata.WaypointRecordSize)

	decoded, ok, err := navdata.DecodeWaypoint(packed)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "HOME", decoded.Name)
	assert.Equal(t, "123456789", decoded.MMSI)
	assert.Equal(t, 42, decoded.ID)
	assert.InDelta(t, w.LatDegree, decoded.LatDegree, 1e-6)
	assert.InDelta(t, w.LonDegree, decoded.LonDegree, 1e-6)

	repacked, err := navdata.PackWaypoint(decoded)
	require.NoError(t, err)
	assert.Equal(t, packed, repacked)
}

func TestWaypointStringFormRoundTrip(t *testing.T) {
	w, err := navdata.NewWaypointFromStrings(5, "BUOY", "", "52N30.5346", "013E27.6732")
	require.NoError(t, err)
	assert.InDelta(t, 52+30.5346/60.0, w.LatDegree, 1e-9)
	assert.InDelta(t, 13+27.6732/60.0, w.LonDegree, 1e-9)
}

func TestRouteRoundTrip(t *testing.T) {
	r := navdata.Route{Name: "COASTAL", WaypointIDs: []int{1, 2, 3, 42}}
	packed, err := navdata.PackRoute(r)
	require.NoError(t, err)
	require.Len(t, packed, navdata.RouteRecordSize)

	decoded, ok, err := navdata.DecodeRoute(packed)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r, decoded)
}

func TestRouteEmptySlot(t *testing.T) {
	raw := make([]byte, navdata.RouteRecordSize)
	for i := range raw {
		raw[i] = 0xFF
	}
	_, ok, err := navdata.DecodeRoute(raw)
	require.NoError(t, err)
	assert.False(t, ok)
}

// Property: packing then unpacking a waypoint built from any in-range
// decimal coordinates reproduces the same bytes, per spec's waypoint
// round-trip invariant.
func TestWaypointPackUnpackProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		id := rapid.IntRange(1, 200).Draw(t, "id")
		lat := rapid.Float64Range(-89.9999, 89.9999).Draw(t, "lat")
		lon := rapid.Float64Range(-99.9999, 99.9999).Draw(t, "lon")
		name := rapid.StringMatching(`[A-Z ]{0,15}`).Draw(t, "name")
		hasMMSI := rapid.Bool().Draw(t, "hasMMSI")
		mmsi := ""
		if hasMMSI {
			mmsi = rapid.StringMatching(`[0-9]{9}`).Draw(t, "mmsi")
		}

		w := navdata.NewWaypointFromDecimal(id, name, mmsi, lat, lon)
		packed, err := navdata.PackWaypoint(w)
		require.NoError(t, err)

		decoded, ok, err := navdata.DecodeWaypoint(packed)
		require.NoError(t, err)
		require.True(t, ok)

		repacked, err := navdata.PackWaypoint(decoded)
		require.NoError(t, err)
		require.Equal(t, packed, repacked)
	})
}
