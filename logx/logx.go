// Package logx defines the abstract logging seam the device communication
// core logs through. Every package in the core accepts a Logger instead of
// calling a global, mirroring the teacher's logger = logging.getLogger(__name__)
// pattern from the original Python source; a *log.Logger from
// github.com/charmbracelet/log satisfies it without an adapter.
package logx

// Logger is the minimal structured-logging surface the core needs.
// github.com/charmbracelet/log.Logger implements this directly.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

// nopLogger discards everything. Used as the zero-value default so callers
// that don't care about logging don't have to construct one.
type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}
func (nopLogger) Info(interface{}, ...interface{})  {}
func (nopLogger) Warn(interface{}, ...interface{})  {}
func (nopLogger) Error(interface{}, ...interface{}) {}

// Nop is a Logger that discards every message.
var Nop Logger = nopLogger{}

// Default returns Nop if l is nil, otherwise l. Every package constructor in
// the core funnels its Logger argument through this so "no logger supplied"
// is a safe, silent default rather than a nil-pointer panic.
func Default(l Logger) Logger {
	if l == nil {
		return Nop
	}
	return l
}
