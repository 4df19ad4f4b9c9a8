// Package simulator provides an in-process peer that speaks the device
// communication core's wire protocol over a pseudo-terminal, so the core can
// be exercised end to end without real hardware.
package simulator

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"os"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/cr/hx870/logx"
	"github.com/cr/hx870/wire"
)

// Mode selects which line discipline a Device speaks, mirroring
// session.State's two entry points.
type Mode int

const (
	CPMode Mode = iota
	NMEAMode
)

// DefaultNMEADelay is the interval between unsolicited dummy NMEA sentences
// in NMEAMode, matching original_source/hxtool/simulator.py's nmea_delay.
const DefaultNMEADelay = 3 * time.Second

// Option configures a Device at construction time.
type Option func(*Device)

// WithConfigMemory seeds the device's configuration EEPROM image instead of
// the default all-0xFF (erased) one.
func WithConfigMemory(m *ConfigMemory) Option {
	return func(d *Device) { d.mem = m }
}

// WithNMEADelay overrides DefaultNMEADelay.
func WithNMEADelay(delay time.Duration) Option {
	return func(d *Device) { d.nmeaDelay = delay }
}

// WithLogger attaches a logx.Logger; the default is logx.Nop.
func WithLogger(log logx.Logger) Option {
	return func(d *Device) { d.log = logx.Default(log) }
}

// Device is a single simulated radio: a pty pair, a CP or NMEA line
// discipline, and a 32KiB configuration memory. It answers the CP commands
// original_source/hxtool/simulator.py implements (CMDSY, CMDOK, CVRRQ,
// CEPSR, CEPRD) plus CEPWR, which the original leaves as a stub but which
// the read/write round trip through cfgmem.Engine requires; anything else
// gets "#CMDER", matching the original's documented "dummy" fallback.
type Device struct {
	mode      Mode
	mem       *ConfigMemory
	nmeaDelay time.Duration
	log       logx.Logger

	master *os.File
	slave  *os.File

	writeMu sync.Mutex

	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}

	ignoreCMDOK bool
}

// New opens a fresh pty pair and returns a Device ready to Start.
func New(mode Mode, opts ...Option) (*Device, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	d := &Device{
		mode:      mode,
		mem:       NewConfigMemory(),
		nmeaDelay: DefaultNMEADelay,
		log:       logx.Nop,
		master:    master,
		slave:     slave,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// SlavePath is the tty device file a transport.Open caller should use to
// reach this simulated device.
func (d *Device) SlavePath() string { return d.slave.Name() }

// Memory exposes the device's configuration EEPROM image, e.g. to assert on
// it after a WriteConfig round trip.
func (d *Device) Memory() *ConfigMemory { return d.mem }

// Start launches the device's handler loop in a background goroutine. A
// Device that has already been stopped refuses to restart.
func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return os.ErrClosed
	}
	if d.started {
		return nil
	}
	d.started = true
	go d.run()
	return nil
}

// Stop closes the simulator's end of the pty, unblocking the handler loop,
// and marks the Device as permanently stopped.
func (d *Device) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	d.mu.Unlock()

	_ = d.master.Close()
	_ = d.slave.Close()
	if !started {
		close(d.done)
	}
}

// Wait blocks until the handler loop has exited.
func (d *Device) Wait() {
	<-d.done
}

func (d *Device) run() {
	defer close(d.done)
	if d.mode == NMEAMode {
		stopTicker := make(chan struct{})
		defer close(stopTicker)
		go d.sendDummyNMEA(stopTicker)
	}

	r := bufio.NewReader(d.master)
	var message []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if len(message) > 0 {
			message = append(message, b)
			if bytes.HasSuffix(message, []byte("\r\n")) {
				d.dispatch(message)
				message = nil
			}
			continue
		}
		switch {
		case d.mode == CPMode && (b == '0' || b == '#'):
			message = []byte{b}
		case d.mode == CPMode && b == '?':
			d.write([]byte("@"))
		case d.mode == NMEAMode && b == '$':
			message = []byte{b}
		case d.mode == NMEAMode && b == 'P':
			d.write([]byte("P"))
		default:
			d.log.Debug("simulator ignoring unexpected input", "byte", b)
		}
	}
}

func (d *Device) sendDummyNMEA(stop <-chan struct{}) {
	ticker := time.NewTicker(d.nmeaDelay)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.write([]byte("$GPLL,,,,\r\n"))
		}
	}
}

func (d *Device) write(b []byte) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, _ = d.master.Write(b)
}

// dispatch handles one complete CP-mode line; in NMEAMode a complete
// sentence is only logged, never answered. The bare "0ACMD:002" cmd-mode
// nudge is accumulated like any other message but deliberately ignored —
// real hardware doesn't react to it either.
func (d *Device) dispatch(line []byte) {
	if d.mode == NMEAMode {
		d.log.Debug("simulator observed NMEA sentence", "line", line)
		return
	}
	if line[0] == '0' {
		d.log.Debug("simulator ignoring cmd-mode nudge", "line", line)
		return
	}
	m, err := wire.Parse(line)
	if err != nil {
		d.log.Debug("simulator ignoring unparseable message", "line", line, "err", err)
		return
	}

	switch m.Type() {
	case "#CMDOK":
		d.mu.Lock()
		ignore := d.ignoreCMDOK
		d.ignoreCMDOK = false
		d.mu.Unlock()
		if !ignore {
			d.write(wire.NewCP("#CMDOK").Bytes())
		}
	case "#CMDSY":
		d.write(wire.NewCP("#CMDOK").Bytes())
	case "#CVRRQ":
		d.write(wire.NewCP("#CMDOK").Bytes())
		d.write(wire.NewCP("#CVRDQ", "23.42").Bytes())
	case "#CEPSR":
		d.write(wire.NewCP("#CMDOK").Bytes())
		d.write(wire.NewCP("#CEPSD", "00").Bytes())
		d.mu.Lock()
		d.ignoreCMDOK = true
		d.mu.Unlock()
	case "#CEPRD":
		d.handleRead(m)
	case "#CEPWR":
		d.handleWrite(m)
	default:
		d.write(wire.NewCP("#CMDER").Bytes())
	}
}

func (d *Device) handleRead(m wire.Message) {
	d.write(wire.NewCP("#CMDOK").Bytes())
	args := m.Args()
	if len(args) < 2 {
		d.write(wire.NewCP("#CMDER").Bytes())
		return
	}
	offset, err1 := parseHex(args[0])
	length, err2 := parseHex(args[1])
	if err1 != nil || err2 != nil || offset < 0 || length < 0 || offset+length > ConfigMemorySize {
		d.write(wire.NewCP("#CMDER").Bytes())
		return
	}
	data := d.mem.Read(offset, length)
	d.write(wire.NewCP("#CEPDT", args[0], args[1], hex.EncodeToString(data)).Bytes())
	d.mu.Lock()
	d.ignoreCMDOK = true
	d.mu.Unlock()
}

// handleWrite implements "#CEPWR OOOO LL HEX": the offset/length are
// validated the same way handleRead validates them, the hex payload's byte
// length must match LL exactly, and on success it is written into memory.
func (d *Device) handleWrite(m wire.Message) {
	args := m.Args()
	if len(args) < 3 {
		d.write(wire.NewCP("#CMDER").Bytes())
		return
	}
	offset, err1 := parseHex(args[0])
	length, err2 := parseHex(args[1])
	data, err3 := hex.DecodeString(args[2])
	if err1 != nil || err2 != nil || err3 != nil || offset < 0 || length < 0 ||
		offset+length > ConfigMemorySize || len(data) != length {
		d.write(wire.NewCP("#CMDER").Bytes())
		return
	}
	d.mem.Write(offset, data)
	d.write(wire.NewCP("#CMDOK").Bytes())
}

func parseHex(s string) (int, error) {
	b, err := hex.DecodeString(pad(s))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range b {
		n = n<<8 | int(c)
	}
	return n, nil
}

func pad(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}
