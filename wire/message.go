// Package wire implements the two framed message shapes that ride on the
// radio's serial line: Configuration-Programming ("CP", leading '#') frames
// and NMEA ('$') sentences. Both are modelled as a tagged variant per
// spec.md's "two Message shapes" design note — the checksum formula and
// framing differ enough between them that a single struct with optional
// fields would hide more than it would share.
package wire

import (
	"bytes"
	"strings"

	"github.com/cr/hx870/errs"
)

// Kind distinguishes the two wire forms a Message can take.
type Kind int

const (
	// CP identifies a Configuration-Programming frame: "#TTTTTT\targs...\tCHK\r\n".
	CP Kind = iota
	// NMEA identifies an NMEA sentence: "$TTTTTargs...*CHK\r\n".
	NMEA
)

func (k Kind) String() string {
	if k == CP {
		return "CP"
	}
	return "NMEA"
}

// unaryTypes never carry args or a checksum.
var unaryTypes = map[string]bool{
	"#CMDOK": true,
	"#CMDER": true,
	"#CMDUN": true,
	"#CMDSM": true,
	"#CMDSY": true,
}

// IsUnary reports whether a CP type is one of the five fixed unary types.
func IsUnary(cpType string) bool {
	return unaryTypes[cpType]
}

// Message is a parsed or constructed CP frame or NMEA sentence.
//
// Invariant: Type is never empty. When ChecksumRecv is set, Validate()
// compares it against the computed checksum. The five unary CP types never
// carry a checksum; Parse rejects them with args, NewCP does not.
type Message struct {
	kind         Kind
	msgType      string
	args         []string
	checksumRecv string
	hasRecv      bool
}

// NewCP builds a CP-form message with the given type and arguments. The type
// is expected to start with '#'; passing args for a unary type is a caller
// bug the wire layer does not try to prevent at construction time (Validate
// and reserialization still behave correctly either way, but Parse rejects
// it on the wire — see parseCP).
func NewCP(msgType string, args ...string) Message {
	return Message{kind: CP, msgType: msgType, args: append([]string(nil), args...)}
}

// NewNMEA builds an NMEA-form message with the given type and arguments. The
// type is expected to start with '$'.
func NewNMEA(msgType string, args ...string) Message {
	return Message{kind: NMEA, msgType: msgType, args: append([]string(nil), args...)}
}

// Kind reports which wire form this message uses.
func (m Message) Kind() Kind { return m.kind }

// Type returns the message's type tag, e.g. "#CEPRD" or "$PMTK".
func (m Message) Type() string { return m.msgType }

// Args returns the message's argument tokens, in order.
func (m Message) Args() []string { return m.args }

// ChecksumRecv returns the checksum that was present on the wire when this
// message was parsed, if any.
func (m Message) ChecksumRecv() (string, bool) { return m.checksumRecv, m.hasRecv }

// Checksum computes the checksum this message would carry on the wire. It
// returns ok=false for unary CP types, which never carry a checksum.
func (m Message) Checksum() (sum string, ok bool) {
	switch m.kind {
	case CP:
		if m.msgType == "" || !strings.HasPrefix(m.msgType, "#") || unaryTypes[m.msgType] {
			return "", false
		}
		preimage := strings.ToUpper(strings.Join(append([]string{m.msgType}, m.args...), "\t") + "\t")
		return xorChecksum([]byte(preimage)), true
	case NMEA:
		preimage := strings.TrimPrefix(m.msgType, "$") + strings.Join(m.args, ",")
		return xorChecksum([]byte(preimage)), true
	default:
		return "", false
	}
}

// xorChecksum XOR-folds every byte except '!' and prints the result as two
// uppercase hex digits. Skipping '!' is a deliberate carry-over from the
// original firmware's checksum routine: it lets a message class that embeds
// a literal '!' in an argument round-trip without disturbing the checksum.
func xorChecksum(data []byte) string {
	var x byte
	for _, b := range data {
		if b == '!' {
			continue
		}
		x ^= b
	}
	const hexDigits = "0123456789ABCDEF"
	return string([]byte{hexDigits[x>>4], hexDigits[x&0xf]})
}

// Validate reports whether the received checksum (if any) matches the
// computed one. A message with no received checksum (unary types, or a
// freshly built message) validates trivially.
func (m Message) Validate() bool {
	if !m.hasRecv {
		return true
	}
	sum, ok := m.Checksum()
	if !ok {
		// A received checksum on a message type that computes none at all
		// (shouldn't happen via Parse, but be conservative for hand-built
		// messages) never validates.
		return false
	}
	return sum == m.checksumRecv
}

// String renders the message exactly as it would appear on the wire. A
// received checksum takes precedence over the recomputed one so that a
// broken peer frame round-trips byte-exactly through parse/reserialize —
// useful for logging what a misbehaving device actually sent.
func (m Message) String() string {
	chk, hasChk := m.checksumRecv, m.hasRecv
	if !hasChk {
		chk, hasChk = m.Checksum()
	}
	switch m.kind {
	case CP:
		parts := append([]string{m.msgType}, m.args...)
		if hasChk {
			parts = append(parts, chk)
		}
		return strings.ToUpper(strings.Join(parts, "\t")) + "\r\n"
	case NMEA:
		body := m.msgType + strings.Join(m.args, ",")
		if hasChk {
			return body + "*" + chk + "\r\n"
		}
		return body + "\r\n"
	default:
		return ""
	}
}

// Bytes is String encoded as ASCII.
func (m Message) Bytes() []byte { return []byte(m.String()) }

// Equal reports whether two messages are equal per spec.md §4.2: their
// stringified forms excluding checksum agree, and their received checksums
// are not two different defined values.
func (m Message) Equal(other Message) bool {
	if m.kind != other.kind || m.msgType != other.msgType {
		return false
	}
	if len(m.args) != len(other.args) {
		return false
	}
	for i := range m.args {
		if m.args[i] != other.args[i] {
			return false
		}
	}
	if m.hasRecv && other.hasRecv && m.checksumRecv != other.checksumRecv {
		return false
	}
	return true
}

// Parse parses a single line (with or without trailing CRLF) into a
// Message, dispatching on the leading byte. Anything that isn't '#' or '$'
// fails with a ProtocolError.
func Parse(line []byte) (Message, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return Message{}, errs.NewProtocolError("empty message")
	}
	switch line[0] {
	case '#':
		return parseCP(string(line))
	case '$':
		return parseNMEA(string(line))
	default:
		return Message{}, errs.NewProtocolError("unrecognized message framing: %q", line)
	}
}

func parseCP(line string) (Message, error) {
	fields := strings.Split(line, "\t")
	msgType := fields[0]
	m := Message{kind: CP, msgType: msgType}
	if unaryTypes[msgType] {
		if len(fields) > 1 {
			return Message{}, errs.NewProtocolError("unary type %s carries arguments", msgType)
		}
		return m, nil
	}
	if len(fields) > 1 {
		m.checksumRecv = fields[len(fields)-1]
		m.hasRecv = true
	}
	if len(fields) > 2 {
		m.args = fields[1 : len(fields)-1]
	}
	return m, nil
}

func parseNMEA(line string) (Message, error) {
	if len(line) < 5 {
		return Message{}, errs.NewProtocolError("NMEA sentence too short: %q", line)
	}
	msgType := line[:5]
	rest := line[5:]
	m := Message{kind: NMEA, msgType: msgType}
	star := strings.IndexByte(rest, '*')
	body := rest
	if star >= 0 {
		body = rest[:star]
		m.checksumRecv = rest[star+1:]
		m.hasRecv = true
	}
	if body != "" {
		m.args = strings.Split(body, ",")
	}
	return m, nil
}
