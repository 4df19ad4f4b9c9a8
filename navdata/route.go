package navdata

import (
	"strings"

	"github.com/cr/hx870/errs"
)

const RouteRecordSize = 32

// Route is the decoded form of one 32-byte route slot: a name and an
// ordered list of member waypoint ids. cfgmem.ReadNavData checks that each
// id names a decoded waypoint but keeps the ids as they are.
type Route struct {
	Name        string
	WaypointIDs []int
}

// DecodeRoute unpacks a 32-byte record. The returned bool reports whether
// the slot is occupied (first name byte != 0xFF).
func DecodeRoute(b []byte) (Route, bool, error) {
	if len(b) != RouteRecordSize {
		return Route{}, false, errs.NewProtocolError("route record must be %d bytes, got %d", RouteRecordSize, len(b))
	}
	if b[0] == 0xFF {
		return Route{}, false, nil
	}
	name := strings.TrimRight(string(b[0:16]), "\xff")

	var ids []int
	for _, id := range b[16:32] {
		if id == 0xFF {
			break
		}
		ids = append(ids, int(id))
	}
	return Route{Name: name, WaypointIDs: ids}, true, nil
}

// PackRoute packs a Route into its 32-byte record.
func PackRoute(r Route) ([]byte, error) {
	out := make([]byte, RouteRecordSize)
	for i := range out[0:16] {
		out[i] = 0xFF
	}
	name := r.Name
	if len(name) > 16 {
		name = name[:16]
	}
	copy(out[0:16], name)

	if len(r.WaypointIDs) > 16 {
		return nil, errs.NewProtocolError("route cannot hold more than 16 waypoint ids, got %d", len(r.WaypointIDs))
	}
	for i := range out[16:32] {
		out[16+i] = 0xFF
	}
	for i, id := range r.WaypointIDs {
		if id < 0 || id > 0xFE {
			return nil, errs.NewProtocolError("route waypoint id %d out of range", id)
		}
		out[16+i] = byte(id)
	}
	return out, nil
}
