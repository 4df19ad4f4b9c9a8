package transport

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/term"

	"github.com/cr/hx870/errs"
	"github.com/cr/hx870/logx"
)

// DefaultBaud is a conventional rate a caller may pass to Open; Open itself
// leaves the tty's speed unchanged when given 0. HX870/HX890-class radios
// are exposed over USB CDC-ACM where the baud rate is not actually
// negotiated with real hardware.
const DefaultBaud = 38400

// Serial is a Transport backed by github.com/pkg/term, the same library the
// teacher uses for its own serial_port_open/_write/_get1 trio. Because
// pkg/term has no portable read-deadline primitive, Serial runs one
// background goroutine that continuously drains the underlying file
// descriptor into an internal buffer; Read/ReadLine poll that buffer
// against a deadline instead of blocking the fd read itself.
type Serial struct {
	name string
	t    *term.Term
	log  logx.Logger

	mu      sync.Mutex
	buf     []byte
	readErr error

	outPendingMu sync.Mutex
	outPending   int

	timeout time.Duration
	closed  chan struct{}
}

// Open opens a serial device (a real port, or a simulator's published pty
// slave path — both are ordinary tty device files) at the given baud rate.
func Open(name string, baud int, log logx.Logger) (*Serial, error) {
	t, err := term.Open(name, term.RawMode)
	if err != nil {
		return nil, errs.WrapIoError("open "+name, err)
	}
	if baud != 0 {
		if err := t.SetSpeed(baud); err != nil {
			_ = t.Close()
			return nil, errs.WrapIoError("set speed", err)
		}
	}
	s := &Serial{
		name:    name,
		t:       t,
		log:     logx.Default(log),
		timeout: DefaultTimeout,
		closed:  make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// pump continuously reads from the underlying tty into s.buf until the
// transport is closed or the fd reports an error (including EOF on a
// closed pty master on the peer side).
func (s *Serial) pump() {
	tmp := make([]byte, 4096)
	for {
		n, err := s.t.Read(tmp)
		if n > 0 {
			s.mu.Lock()
			s.buf = append(s.buf, tmp[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			s.mu.Lock()
			if s.readErr == nil {
				s.readErr = err
			}
			s.mu.Unlock()
			return
		}
		select {
		case <-s.closed:
			return
		default:
		}
	}
}

func (s *Serial) SetTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = d
}

func (s *Serial) Write(data []byte) (int, error) {
	s.log.Debug("OUT", "bytes", data)
	n, err := s.t.Write(data)
	if err != nil {
		return n, errs.WrapIoError("write", err)
	}
	s.outPendingMu.Lock()
	s.outPending += n
	s.outPendingMu.Unlock()
	return n, nil
}

func (s *Serial) Read(n int) ([]byte, error) {
	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		if len(s.buf) >= n {
			out := append([]byte(nil), s.buf[:n]...)
			s.buf = s.buf[n:]
			s.mu.Unlock()
			s.log.Debug("IN", "bytes", out)
			return out, nil
		}
		readErr := s.readErr
		s.mu.Unlock()
		if readErr != nil && readErr != io.EOF {
			return nil, errs.WrapIoError("read", readErr)
		}
		if time.Now().After(deadline) {
			return nil, errs.NewTimeout("read")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (s *Serial) ReadLine() ([]byte, error) {
	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		if idx := indexCRLF(s.buf); idx >= 0 {
			out := append([]byte(nil), s.buf[:idx+2]...)
			s.buf = s.buf[idx+2:]
			s.mu.Unlock()
			s.log.Debug("IN", "line", out)
			return out, nil
		}
		readErr := s.readErr
		s.mu.Unlock()
		if readErr != nil && readErr != io.EOF {
			return nil, errs.WrapIoError("read_line", readErr)
		}
		if time.Now().After(deadline) {
			return nil, errs.NewTimeout("read_line")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func indexCRLF(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func (s *Serial) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// FlushIn discards buffered input, logging a warning when bytes were
// actually dropped — this is deliberately noisy because a non-zero flush
// count is a symptom of a protocol race the caller should know about.
func (s *Serial) FlushIn() {
	s.mu.Lock()
	dropped := len(s.buf)
	s.buf = s.buf[:0]
	s.mu.Unlock()
	if dropped > 0 {
		s.log.Warn("flushing input buffer", "device", s.name, "dropped", dropped)
	}
}

// FlushOut does not discard anything: Write hands bytes straight to the
// tty. It resets the count of bytes written since the last flush and logs
// a warning when that count is non-zero.
func (s *Serial) FlushOut() {
	s.outPendingMu.Lock()
	dropped := s.outPending
	s.outPending = 0
	s.outPendingMu.Unlock()
	if dropped > 0 {
		s.log.Warn("flushing output buffer", "device", s.name, "dropped", dropped)
	}
}

func (s *Serial) Close() error {
	close(s.closed)
	return s.t.Close()
}
