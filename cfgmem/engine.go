// Package cfgmem implements the paged configuration-memory engine that
// runs over a session.Session in CP mode: readiness polling, page
// read/write, whole-config dump/flash, and the MMSI/ATIS/nav-data records
// layered on top of it.
package cfgmem

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/cr/hx870/errs"
	"github.com/cr/hx870/logx"
	"github.com/cr/hx870/navdata"
	"github.com/cr/hx870/session"
)

const (
	ConfigSize = 0x8000
	PageSize   = 0x40

	MagicLen     = 2
	RegionOffset = 0x010F
	FlashIDAddr  = 0x0100
	FlashIDLen   = 10

	MMSIAddr = 0x00B0
	ATISAddr = 0x00B6
	BCDLen   = 6

	NavStatusAddr    = 0x0005
	WaypointHistAddr = 0x05E0
	RouteHistAddr    = 0x05F0
	HistoryLen       = 6
	NavDataStart     = 0x4300
	WaypointSlots    = 200
	RouteSlots       = 20
)

// Nav-data region boundaries, derived from spec.md §4.4's statement that
// Nav-data read covers 0x4300..0x5E80: that range is exactly
// WaypointSlots+RouteSlots records of navdata.WaypointRecordSize bytes
// each, waypoints first. (The separate per-table byte ranges given in
// spec.md §3 don't arithmetically match the stated slot counts; this
// derivation from §4.4's total span is the internally consistent one.)
var (
	waypointTableSize = WaypointSlots * navdata.WaypointRecordSize
	routeTableSize    = RouteSlots * navdata.RouteRecordSize
	routeTableStart   = NavDataStart + waypointTableSize
	navDataEnd        = routeTableStart + routeTableSize
)

// ReadyTimeout is the maximum time wait_for_ready will poll before giving
// up with errs.Timeout.
const ReadyTimeout = 1 * time.Second

// Engine is the configuration memory engine bound to one CP-mode session.
type Engine struct {
	s   *session.Session
	log logx.Logger
}

// New builds an Engine over an already-synced CP-mode session.
func New(s *session.Session, log logx.Logger) *Engine {
	return &Engine{s: s, log: logx.Default(log)}
}

// WaitForReady polls #CEPSR/#CEPSD until the device reports status "00",
// acknowledging each #CEPSD it sees with #CMDOK, per spec.md §4.4.
func (e *Engine) WaitForReady() error {
	deadline := time.Now().Add(ReadyTimeout)
	for {
		if err := e.s.SendType("#CEPSR", "00"); err != nil {
			return err
		}
		ack, err := e.s.Receive(nil)
		if err != nil {
			return err
		}
		if ack.Type() != "#CMDOK" {
			return errs.NewProtocolError("unexpected #CEPSR ack %s", ack.Type())
		}
		status, err := e.s.Receive(nil)
		if err != nil {
			return err
		}
		if status.Type() != "#CEPSD" || len(status.Args()) < 1 {
			return errs.NewProtocolError("unexpected #CEPSR reply %s", status.Type())
		}
		if err := e.s.SendType("#CMDOK"); err != nil {
			return err
		}
		if status.Args()[0] == "00" {
			return nil
		}
		if time.Now().After(deadline) {
			return errs.NewTimeout("wait_for_ready")
		}
	}
}

// ReadPage reads up to PageSize bytes starting at offset via #CEPRD.
func (e *Engine) ReadPage(offset int, length int) ([]byte, error) {
	if length > PageSize {
		return nil, errs.NewProtocolError("read length %#x exceeds page size %#x", length, PageSize)
	}
	if err := e.WaitForReady(); err != nil {
		return nil, err
	}
	if err := e.s.SendType("#CEPRD", fmt.Sprintf("%04X", offset), fmt.Sprintf("%02X", length)); err != nil {
		return nil, err
	}
	ack, err := e.s.Receive(nil)
	if err != nil {
		return nil, err
	}
	if ack.Type() != "#CMDOK" {
		return nil, errs.NewProtocolError("unexpected #CEPRD ack %s", ack.Type())
	}
	reply, err := e.s.Receive(nil)
	if err != nil {
		return nil, err
	}
	args := reply.Args()
	if reply.Type() != "#CEPDT" || len(args) != 3 {
		return nil, errs.NewProtocolError("unexpected #CEPRD reply %s", reply.Type())
	}
	if !strings.EqualFold(args[0], fmt.Sprintf("%04X", offset)) || !strings.EqualFold(args[1], fmt.Sprintf("%02X", length)) {
		return nil, errs.NewProtocolError("#CEPDT offset/length mismatch: got %s/%s", args[0], args[1])
	}
	data, err := hex.DecodeString(args[2])
	if err != nil {
		return nil, errs.WrapProtocolError(err, "malformed #CEPDT payload")
	}
	if len(data) != length {
		return nil, errs.NewProtocolError("#CEPDT payload length mismatch: got %d want %d", len(data), length)
	}
	if err := e.s.SendType("#CMDOK"); err != nil {
		return nil, err
	}
	return data, nil
}

// WritePage writes up to PageSize bytes starting at offset via #CEPWR.
func (e *Engine) WritePage(offset int, data []byte) error {
	if len(data) > PageSize {
		return errs.NewProtocolError("write length %#x exceeds page size %#x", len(data), PageSize)
	}
	if err := e.WaitForReady(); err != nil {
		return err
	}
	payload := strings.ToUpper(hex.EncodeToString(data))
	if err := e.s.SendType("#CEPWR", fmt.Sprintf("%04X", offset), fmt.Sprintf("%02X", len(data)), payload); err != nil {
		return err
	}
	ack, err := e.s.Receive(nil)
	if err != nil {
		return err
	}
	if ack.Type() != "#CMDOK" {
		return errs.NewProtocolError("device rejected page write at %#x: %s", offset, ack.Type())
	}
	return nil
}

// ReadConfig dumps the whole 32KiB configuration memory, page by page.
func (e *Engine) ReadConfig() ([]byte, error) {
	out := make([]byte, 0, ConfigSize)
	for off := 0; off < ConfigSize; off += PageSize {
		data, err := e.ReadPage(off, PageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
		if off%0x1000 == 0 {
			e.log.Info("config read progress", "offset", fmt.Sprintf("%#04x", off))
		}
	}
	return out, nil
}

// WriteConfig flashes a full 32KiB configuration image, validating magic
// and region bytes first, per spec.md §4.4.
func (e *Engine) WriteConfig(data []byte, checkRegion bool) error {
	if len(data) != ConfigSize {
		return errs.NewProtocolError("config image must be %d bytes, got %d", ConfigSize, len(data))
	}

	head, err := e.ReadPage(0, MagicLen)
	if err != nil {
		return err
	}
	tail, err := e.ReadPage(ConfigSize-MagicLen, MagicLen)
	if err != nil {
		return err
	}
	if string(head) != string(data[:MagicLen]) || string(tail) != string(data[ConfigSize-MagicLen:]) {
		return errs.NewProtocolError("device magic does not match image magic")
	}

	region, err := e.ReadPage(RegionOffset, 1)
	if err != nil {
		return err
	}
	deviceIsUS := region[0] == 0xFF
	imageIsUS := data[RegionOffset] == 0xFF
	if deviceIsUS != imageIsUS {
		if checkRegion {
			return errs.NewProtocolError("region mismatch: device US=%v, image US=%v", deviceIsUS, imageIsUS)
		}
		e.log.Warn("region mismatch ignored", "deviceUS", deviceIsUS, "imageUS", imageIsUS)
	}

	if err := e.writeRange(data, MagicLen, 0x0010); err != nil {
		return err
	}
	if err := e.writeRange(data, 0x0010, 0x0040); err != nil {
		return err
	}
	for off := 0x0040; off < 0x7FC0; off += PageSize {
		if err := e.WritePage(off, data[off:off+PageSize]); err != nil {
			return err
		}
	}
	if err := e.writeRange(data, 0x7FC0, ConfigSize-MagicLen); err != nil {
		return err
	}
	return nil
}

func (e *Engine) writeRange(data []byte, start, end int) error {
	for off := start; off < end; off += PageSize {
		chunkEnd := off + PageSize
		if chunkEnd > end {
			chunkEnd = end
		}
		if err := e.WritePage(off, data[off:chunkEnd]); err != nil {
			return err
		}
	}
	return nil
}

// GetFlashID reads the flash-ID string directly at 0x0100, per spec.md
// §9's documented peer quirk: the #CMDNR/#CMDND handshake is unreliable
// and the canonical source is a direct memory read.
func (e *Engine) GetFlashID() (string, error) {
	data, err := e.ReadPage(FlashIDAddr, FlashIDLen)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\xff"), nil
}

// CheckFlashID reports whether the live device's flash-ID matches one of
// profile's accepted values, per hxtool.device.HX870.check_flash_id.
func (e *Engine) CheckFlashID(p Profile) (bool, error) {
	id, err := e.GetFlashID()
	if err != nil {
		return false, err
	}
	return p.AcceptsFlashID(id), nil
}

// ReadMMSI reads the programmed 9-digit MMSI and its status byte (ASCII hex).
func (e *Engine) ReadMMSI() (mmsi, status string, err error) {
	return e.readBCDRecord(MMSIAddr, 9)
}

// WriteMMSI programs a 9-digit decimal MMSI with the given status
// (defaults to "02" if empty), or clears the record if mmsi == "".
func (e *Engine) WriteMMSI(mmsi, status string) error {
	return e.writeBCDRecord(MMSIAddr, mmsi, status, 9, "02")
}

// ReadATIS reads the programmed 10-digit ATIS and its status byte.
func (e *Engine) ReadATIS() (atis, status string, err error) {
	return e.readBCDRecord(ATISAddr, 10)
}

// WriteATIS programs a 10-digit decimal ATIS (must start with '9') with
// the given status (defaults to "01" if empty), or clears the record.
func (e *Engine) WriteATIS(atis, status string) error {
	if atis != "" && (len(atis) != 10 || atis[0] != '9') {
		return errs.NewProtocolError("ATIS must be 10 digits starting with 9, got %q", atis)
	}
	return e.writeBCDRecord(ATISAddr, atis, status, 10, "01")
}

// readBCDRecord decodes wantLen BCD digits from the record at addr. MMSI
// records carry 9 significant digits in the 10 available nibbles
// (config.py:76); ATIS records carry all 10 (config.py:101).
func (e *Engine) readBCDRecord(addr, wantLen int) (digits, status string, err error) {
	data, err := e.ReadPage(addr, BCDLen)
	if err != nil {
		return "", "", err
	}
	if strings.EqualFold(hex.EncodeToString(data[:5]), "ffffffffff") {
		return "", fmt.Sprintf("%02X", data[5]), nil
	}
	n := navdata.Nibbles(data[:5])
	for _, d := range n[:wantLen] {
		if d > 9 {
			return "", "", errs.NewProtocolError("non-BCD nibble in identifier record at %#x", addr)
		}
	}
	b := make([]byte, wantLen)
	for i := 0; i < wantLen; i++ {
		b[i] = byte('0' + n[i])
	}
	return string(b), fmt.Sprintf("%02X", data[5]), nil
}

func (e *Engine) writeBCDRecord(addr int, digits, status string, wantLen int, defaultStatus string) error {
	if status == "" {
		status = defaultStatus
	}
	status = strings.ToUpper(status)
	switch status {
	case "00", "01", "02", "FF":
	default:
		return errs.NewProtocolError("identifier status must be one of 00/01/02/FF, got %q", status)
	}
	statusByte, err := hex.DecodeString(status)
	if err != nil || len(statusByte) != 1 {
		return errs.NewProtocolError("malformed identifier status %q", status)
	}

	record := make([]byte, BCDLen)
	if digits == "" {
		for i := 0; i < 5; i++ {
			record[i] = 0xFF
		}
		record[5] = statusByte[0]
		return e.WritePage(addr, record)
	}
	if len(digits) != wantLen {
		return errs.NewProtocolError("identifier must be %d digits, got %q", wantLen, digits)
	}
	vals := make([]int, 10)
	for i := 0; i < wantLen; i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return errs.NewProtocolError("identifier must be all decimal digits, got %q", digits)
		}
		vals[i] = int(digits[i] - '0')
	}
	copy(record, navdata.PackNibbles(vals))
	record[5] = statusByte[0]
	return e.WritePage(addr, record)
}
