// Package session implements the dual-mode line discipline on top of a
// transport.Transport: the CP-vs-NMEA probe, command-mode entry, the
// #CMDSY sync handshake, and the nuisance-message receive filter.
package session

import (
	"time"

	"github.com/cr/hx870/errs"
	"github.com/cr/hx870/logx"
	"github.com/cr/hx870/transport"
	"github.com/cr/hx870/wire"
)

// State describes what a probed device looks like. It is set once by
// Detect and never mutated afterwards — reconnecting means building a new
// Session from scratch.
type State struct {
	CPMode       bool
	NMEAMode     bool
	IsHXHardware bool
}

// Session is the long-lived handle a caller uses after mode detection.
type Session struct {
	t     transport.Transport
	log   logx.Logger
	State State
}

// Detect flushes both directions, probes with "P?", and classifies the
// reply per spec.md §4.3. It never returns an error: a non-responsive or
// unrecognized peer simply yields a State with every flag false.
func Detect(t transport.Transport, log logx.Logger) *Session {
	log = logx.Default(log)
	s := &Session{t: t, log: log}

	t.FlushIn()
	t.FlushOut()
	if _, err := t.Write([]byte("P?")); err != nil {
		log.Warn("probe write failed", "err", err)
		return s
	}

	b, err := t.Read(1)
	if err != nil {
		log.Warn("no response to probe, assuming non-HX hardware", "err", err)
		return s
	}

	switch b[0] {
	case 'P':
		log.Debug("device responds like HX hardware in NMEA mode")
		s.State = State{IsHXHardware: true, NMEAMode: true}
	case '$':
		log.Debug("probable race with NMEA chatter detected, assuming NMEA mode")
		t.FlushIn()
		s.State = State{IsHXHardware: true, NMEAMode: true}
	case '@':
		log.Debug("device responds like HX hardware in CP mode")
		s.State = State{IsHXHardware: true, CPMode: true}
	default:
		log.Warn("unrecognized probe reply, assuming non-HX hardware", "byte", b[0])
	}
	return s
}

// Send writes a message to the transport.
func (s *Session) Send(m wire.Message) error {
	_, err := s.t.Write(m.Bytes())
	return err
}

// SendType is a convenience wrapper for Send(wire.NewCP(msgType, args...)).
func (s *Session) SendType(msgType string, args ...string) error {
	return s.Send(wire.NewCP(msgType, args...))
}

// Receive reads one line and parses it as a Message, applying filter (if
// non-nil) to silently skip nuisance messages before returning the first
// one that passes.
func (s *Session) Receive(filter ReceiveFilter) (wire.Message, error) {
	for {
		line, err := s.t.ReadLine()
		if err != nil {
			return wire.Message{}, err
		}
		m, err := wire.Parse(line)
		if err != nil {
			return wire.Message{}, err
		}
		if filter == nil || !filter(m) {
			return m, nil
		}
		s.log.Debug("receive filter dropped nuisance message", "type", m.Type(), "args", m.Args())
	}
}

// ReceiveFilter reports whether a received message should be silently
// dropped rather than returned to the caller.
type ReceiveFilter func(m wire.Message) bool

// FilterOptions configures which nuisance GPS-chipset message classes the
// default receive filter elides. All three default to being dropped,
// matching spec.md §4.3's "default all on".
type FilterOptions struct {
	DropFullStop bool
	DropSystem   bool // $PMTK 010 ...
	DropText     bool // $PMTK 011 ...
}

// DefaultFilterOptions drops all three nuisance classes.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{DropFullStop: true, DropSystem: true, DropText: true}
}

// NewReceiveFilter builds a ReceiveFilter from FilterOptions. Different
// callers genuinely need different policies — the log-status path must see
// FULL_STOP — so this is an explicit predicate the caller configures rather
// than a single hard-coded rule, per spec.md §9.
func NewReceiveFilter(opts FilterOptions) ReceiveFilter {
	return func(m wire.Message) bool {
		if m.Kind() != wire.NMEA || m.Type() != "$PMTK" {
			return false
		}
		args := m.Args()
		if len(args) == 0 {
			return false
		}
		switch args[0] {
		case "LOG":
			return opts.DropFullStop && len(args) > 1 && args[1] == "FULL_STOP"
		case "010":
			return opts.DropSystem
		case "011":
			return opts.DropText
		default:
			return false
		}
	}
}

// cmdModeNudge is the literal bare bytes written ahead of #CMDSY to nudge a
// device that might still be chattering NMEA into CP mode. It carries no
// checksum; it is not a CP frame despite looking like one.
const cmdModeNudge = "0ACMD:002\r\n"

// EnterCommandMode writes the firmware's documented nudge sequence. It does
// not by itself guarantee CP mode — call Sync afterwards.
func (s *Session) EnterCommandMode() error {
	_, err := s.t.Write([]byte(cmdModeNudge))
	return err
}

// Sync runs the #CMDSY handshake with one retry, per spec.md §4.3: write
// #CMDSY, expect #CMDOK within the transport's timeout; on
// failure, flush output, wait 100ms, flush input, and try exactly once
// more before giving up.
func (s *Session) Sync() error {
	if err := s.trySync(); err == nil {
		return nil
	}
	s.log.Debug("device failed to sync, trying harder")
	s.t.FlushOut()
	time.Sleep(100 * time.Millisecond)
	s.t.FlushIn()
	if err := s.trySync(); err != nil {
		s.log.Debug("device failed to sync, giving up")
		return errs.NewProtocolError("device failed to sync")
	}
	return nil
}

func (s *Session) trySync() error {
	if err := s.SendType("#CMDSY"); err != nil {
		return err
	}
	m, err := s.Receive(nil)
	if err != nil {
		return err
	}
	if m.Type() != "#CMDOK" {
		return errs.NewProtocolError("unexpected sync reply %s", m.Type())
	}
	return nil
}

// GetFirmwareVersion runs the #CVRRQ / #CVRDQ exchange. Not named as an
// operation in the base spec, but exercised by every concrete end-to-end
// scenario and by the simulator's own #CVRRQ handler — see SPEC_FULL.md §4.3.
func (s *Session) GetFirmwareVersion() (string, error) {
	if err := s.SendType("#CVRRQ"); err != nil {
		return "", err
	}
	ack, err := s.Receive(nil)
	if err != nil {
		return "", err
	}
	if ack.Type() != "#CMDOK" {
		return "", errs.NewProtocolError("device did not acknowledge firmware version request")
	}
	reply, err := s.Receive(nil)
	if err != nil {
		return "", err
	}
	if reply.Type() != "#CVRDQ" || len(reply.Args()) < 1 {
		return "", errs.NewProtocolError("device did not reply with firmware version")
	}
	if err := s.SendType("#CMDOK"); err != nil {
		return "", err
	}
	final, err := s.Receive(nil)
	if err != nil {
		return "", err
	}
	if final.Type() != "#CMDOK" {
		return "", errs.NewProtocolError("device did not acknowledge firmware version ack")
	}
	return reply.Args()[0], nil
}

// Transport exposes the underlying transport for layers (cfgmem, mtk) that
// need to drive reads/writes directly alongside Session's framing helpers.
func (s *Session) Transport() transport.Transport { return s.t }
