package cfgmem

import (
	"github.com/cr/hx870/errs"
	"github.com/cr/hx870/navdata"
)

// NavData is the decoded waypoint/route table plus the small bookkeeping
// fields that live alongside it in memory.
type NavData struct {
	Waypoints     []navdata.Waypoint
	Routes        []navdata.Route
	NavStatus     byte
	WaypointTrail []byte
	RouteTrail    []byte
}

// ReadNavData reads the full waypoint and route region, decodes every
// occupied slot, and checks that each route's member ids name a decoded
// waypoint, failing with a ProtocolError otherwise. Routes are returned
// with their member ids only; they are not expanded into waypoint records.
func (e *Engine) ReadNavData() (NavData, error) {
	region := make([]byte, 0, navDataEnd-NavDataStart)
	for off := NavDataStart; off < navDataEnd; off += PageSize {
		data, err := e.ReadPage(off, PageSize)
		if err != nil {
			return NavData{}, err
		}
		region = append(region, data...)
	}

	byID := make(map[int]navdata.Waypoint, WaypointSlots)
	var waypoints []navdata.Waypoint
	for i := 0; i < WaypointSlots; i++ {
		start := i * navdata.WaypointRecordSize
		rec := region[start : start+navdata.WaypointRecordSize]
		w, ok, err := navdata.DecodeWaypoint(rec)
		if err != nil {
			return NavData{}, err
		}
		if !ok {
			continue
		}
		waypoints = append(waypoints, w)
		byID[w.ID] = w
	}

	var routes []navdata.Route
	routeBase := routeTableStart - NavDataStart
	for i := 0; i < RouteSlots; i++ {
		start := routeBase + i*navdata.RouteRecordSize
		rec := region[start : start+navdata.RouteRecordSize]
		r, ok, err := navdata.DecodeRoute(rec)
		if err != nil {
			return NavData{}, err
		}
		if !ok {
			continue
		}
		for _, id := range r.WaypointIDs {
			if _, known := byID[id]; !known {
				return NavData{}, errs.NewProtocolError("route %q references unknown waypoint id %d", r.Name, id)
			}
		}
		routes = append(routes, r)
	}

	statusByte, err := e.ReadPage(NavStatusAddr, 1)
	if err != nil {
		return NavData{}, err
	}
	wpTrail, err := e.ReadPage(WaypointHistAddr, HistoryLen)
	if err != nil {
		return NavData{}, err
	}
	rtTrail, err := e.ReadPage(RouteHistAddr, HistoryLen)
	if err != nil {
		return NavData{}, err
	}

	return NavData{
		Waypoints:     waypoints,
		Routes:        routes,
		NavStatus:     statusByte[0],
		WaypointTrail: stripFF(wpTrail),
		RouteTrail:    stripFF(rtTrail),
	}, nil
}

// WriteNavData packs up to WaypointSlots waypoints and RouteSlots routes
// into the nav-data region, padding unused slots with 0xFF, and resets the
// nav-status byte and both history trails, per spec.md §4.4.
func (e *Engine) WriteNavData(waypoints []navdata.Waypoint, routes []navdata.Route) error {
	if len(waypoints) > WaypointSlots {
		return errs.NewProtocolError("too many waypoints: %d > %d", len(waypoints), WaypointSlots)
	}
	if len(routes) > RouteSlots {
		return errs.NewProtocolError("too many routes: %d > %d", len(routes), RouteSlots)
	}

	region := make([]byte, navDataEnd-NavDataStart)
	for i := range region {
		region[i] = 0xFF
	}
	for i, w := range waypoints {
		packed, err := navdata.PackWaypoint(w)
		if err != nil {
			return err
		}
		start := i * navdata.WaypointRecordSize
		copy(region[start:start+navdata.WaypointRecordSize], packed)
	}
	routeBase := routeTableStart - NavDataStart
	for i, r := range routes {
		packed, err := navdata.PackRoute(r)
		if err != nil {
			return err
		}
		start := routeBase + i*navdata.RouteRecordSize
		copy(region[start:start+navdata.RouteRecordSize], packed)
	}

	for off := 0; off < len(region); off += PageSize {
		end := off + PageSize
		if end > len(region) {
			end = len(region)
		}
		if err := e.WritePage(NavDataStart+off, region[off:end]); err != nil {
			return err
		}
	}

	if err := e.WritePage(NavStatusAddr, []byte{0x00}); err != nil {
		return err
	}
	clearedHist := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if err := e.WritePage(WaypointHistAddr, clearedHist); err != nil {
		return err
	}
	return e.WritePage(RouteHistAddr, clearedHist)
}

func stripFF(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, x := range b {
		if x != 0xFF {
			out = append(out, x)
		}
	}
	return out
}
