// Package mtk implements the MediaTek ($PMTK) GPS sub-protocol that rides
// on the same NMEA-framed channel as the rest of the device's live
// telemetry: chipset sync, status query, streaming log dump, and erase.
package mtk

import (
	"encoding/hex"
	"strconv"
	"time"

	"github.com/cr/hx870/errs"
	"github.com/cr/hx870/logx"
	"github.com/cr/hx870/session"
	"github.com/cr/hx870/transport"
	"github.com/cr/hx870/wire"
)

// SyncTimeout bounds the total time Sync will retry sending $PMTK000.
const SyncTimeout = 5 * time.Second

// progressInterval is the minimum gap between log-dump progress events.
const progressInterval = 4 * time.Second

// Engine drives the MediaTek sub-protocol over an already CP-synced
// session.Session; it rides the identical Message codec, just in NMEA form.
type Engine struct {
	s      *session.Session
	log    logx.Logger
	filter session.ReceiveFilter
}

// New builds an Engine. The engine always drops $PMTK 010/011 chipset
// noise via the default receive filter; $PMTK LOG FULL_STOP is handled
// explicitly by Status since that call must observe it.
func New(s *session.Session, log logx.Logger) *Engine {
	opts := session.DefaultFilterOptions()
	opts.DropFullStop = false
	return &Engine{s: s, log: logx.Default(log), filter: session.NewReceiveFilter(opts)}
}

// Sync loops sending "$PMTK000" until the chipset answers "$PMTK001,0,3"
// or SyncTimeout elapses.
func (e *Engine) Sync() error {
	tr := e.s.Transport()
	tr.SetTimeout(500 * time.Millisecond)
	defer tr.SetTimeout(transport.DefaultTimeout)

	deadline := time.Now().Add(SyncTimeout)
	for time.Now().Before(deadline) {
		if err := e.s.Send(wire.NewNMEA("$PMTK", "000")); err != nil {
			return err
		}
		m, err := e.s.Receive(e.filter)
		if err != nil {
			continue
		}
		if isAck(m, "0") {
			return nil
		}
	}
	return errs.NewTimeout("mtk sync")
}

func isAck(m wire.Message, cmd string) bool {
	args := m.Args()
	return m.Type() == "$PMTK" && len(args) == 3 && args[0] == "001" && args[1] == cmd && args[2] == "3"
}

// Status is the decoded "$PMTK LOG ..." record returned by a $PMTK183
// query, per spec.md §4.5's fixed 11-field layout.
type Status struct {
	FullStop        bool
	PagesUsed       int
	LoggingType     int
	LoggingMode     int // hex
	LogContent      int
	IntervalSeconds int
	Distance        int
	Speed           int
	LoggingEnabled  int
	SlotsUsed       int
	UsagePercent    int
	// Reserved is the LOG record's eleventh field: spec.md §4.5 counts 11
	// fixed fields but names only 10; this carries the unnamed trailing one
	// through rather than silently dropping it.
	Reserved int
}

// Status runs the "$PMTK183" query.
func (e *Engine) Status() (Status, error) {
	if err := e.s.Send(wire.NewNMEA("$PMTK", "183")); err != nil {
		return Status{}, err
	}

	m, err := e.s.Receive(e.filter)
	if err != nil {
		return Status{}, err
	}
	fullStop := false
	if m.Type() == "$PMTK" && len(m.Args()) >= 2 && m.Args()[0] == "LOG" && m.Args()[1] == "FULL_STOP" {
		fullStop = true
		m, err = e.s.Receive(e.filter)
		if err != nil {
			return Status{}, err
		}
	}
	if m.Type() != "$PMTK" || len(m.Args()) != 12 || m.Args()[0] != "LOG" {
		return Status{}, errs.NewProtocolError("unexpected status reply %s", m.Type())
	}
	fields := m.Args()[1:]
	vals := make([]int, len(fields))
	for i, f := range fields {
		base := 10
		if i == 2 { // logging_mode is hex
			base = 16
		}
		n, err := strconv.ParseInt(f, base, 32)
		if err != nil {
			return Status{}, errs.WrapProtocolError(err, "malformed status field %d (%q)", i, f)
		}
		vals[i] = int(n)
	}

	ack, err := e.s.Receive(e.filter)
	if err != nil {
		return Status{}, err
	}
	if !isAck(ack, "183") {
		return Status{}, errs.NewProtocolError("unexpected status ack %s", ack.Type())
	}

	return Status{
		FullStop:        fullStop,
		PagesUsed:       vals[0],
		LoggingType:     vals[1],
		LoggingMode:     vals[2],
		LogContent:      vals[3],
		IntervalSeconds: vals[4],
		Distance:        vals[5],
		Speed:           vals[6],
		LoggingEnabled:  vals[7],
		SlotsUsed:       vals[8],
		UsagePercent:    vals[9],
		Reserved:        vals[10],
	}, nil
}

// LogDumpProgress reports lines received so far out of the announced total.
type LogDumpProgress struct {
	Received int
	Total    int
}

// LogDump runs "$PMTK622,1", validating that LINENO values arrive as
// 0,1,...,N-1 in strict order, and returns the concatenated raw log bytes.
// progress, if non-nil, is called at most once every 4 seconds.
func (e *Engine) LogDump(progress func(LogDumpProgress)) ([]byte, error) {
	if err := e.s.Send(wire.NewNMEA("$PMTK", "622", "1")); err != nil {
		return nil, err
	}

	announce, err := e.s.Receive(e.filter)
	if err != nil {
		return nil, err
	}
	if announce.Type() != "$PMTK" || len(announce.Args()) != 3 || announce.Args()[0] != "LOX" || announce.Args()[1] != "0" {
		return nil, errs.NewProtocolError("unexpected log dump announcement %s", announce.Type())
	}
	total, err := strconv.Atoi(announce.Args()[2])
	if err != nil {
		return nil, errs.WrapProtocolError(err, "malformed log dump line count")
	}

	var raw []byte
	lastProgress := time.Time{}
	for i := 0; i < total; i++ {
		m, err := e.s.Receive(e.filter)
		if err != nil {
			return nil, err
		}
		args := m.Args()
		if m.Type() != "$PMTK" || len(args) < 3 || args[0] != "LOX" || args[1] != "1" {
			return nil, errs.NewProtocolError("unexpected log dump sequence")
		}
		lineNo, err := strconv.Atoi(args[2])
		if err != nil || lineNo != i {
			return nil, errs.NewProtocolError("unexpected log dump sequence")
		}
		for _, word := range args[3:] {
			b, err := hex.DecodeString(word)
			if err != nil || len(b) != 4 {
				return nil, errs.NewProtocolError("malformed log dump word %q", word)
			}
			raw = append(raw, b...)
		}
		if progress != nil && time.Since(lastProgress) >= progressInterval {
			progress(LogDumpProgress{Received: i + 1, Total: total})
			lastProgress = time.Now()
		}
	}

	terminator, err := e.s.Receive(e.filter)
	if err != nil {
		return nil, err
	}
	if terminator.Type() != "$PMTK" || len(terminator.Args()) < 2 || terminator.Args()[0] != "LOX" || terminator.Args()[1] != "2" {
		return nil, errs.NewProtocolError("unexpected log dump sequence")
	}

	ack, err := e.s.Receive(e.filter)
	if err != nil {
		return nil, err
	}
	if !isAck(ack, "622") {
		return nil, errs.NewProtocolError("unexpected log dump ack %s", ack.Type())
	}
	return raw, nil
}

// Erase runs "$PMTK184,1".
func (e *Engine) Erase() error {
	if err := e.s.Send(wire.NewNMEA("$PMTK", "184", "1")); err != nil {
		return err
	}
	ack, err := e.s.Receive(e.filter)
	if err != nil {
		return err
	}
	if !isAck(ack, "184") {
		return errs.NewProtocolError("unexpected erase ack %s", ack.Type())
	}
	return nil
}
