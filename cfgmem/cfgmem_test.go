package cfgmem_test

import (
	"bufio"
	"io"
	"os"
	"testing"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cr/hx870/cfgmem"
	"github.com/cr/hx870/session"
	"github.com/cr/hx870/transport"
	"github.com/cr/hx870/wire"
)

// openEngine builds an Engine over a fresh pty, draining and acknowledging
// Detect's leading "P?" probe with "@" (CP mode) so the caller's bufio
// reader starts clean at the first real protocol line.
func openEngine(t *testing.T) (*cfgmem.Engine, *bufio.Reader, *os.File, func()) {
	t.Helper()
	master, slave, err := pty.Open()
	require.NoError(t, err)
	tr, err := transport.Open(slave.Name(), 0, nil)
	require.NoError(t, err)
	cleanup := func() {
		_ = tr.Close()
		_ = master.Close()
	}

	probeDone := make(chan struct{})
	go func() {
		defer close(probeDone)
		probe := make([]byte, 2)
		_, _ = io.ReadFull(master, probe)
		_, _ = master.Write([]byte("@"))
	}()
	s := session.Detect(tr, nil)
	<-probeDone

	r := bufio.NewReader(master)
	return cfgmem.New(s, nil), r, master, cleanup
}

func readyHandshake(t *testing.T, r *bufio.Reader, master *os.File) {
	t.Helper()
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "#CEPSR\t00\t74\r\n", line)
	_, err = master.Write([]byte("#CMDOK\r\n"))
	require.NoError(t, err)
	_, err = master.Write([]byte("#CEPSD\t00\t62\r\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "#CMDOK\r\n", line)
}

// TestPageReadScenario is spec.md §8's concrete scenario 3.
func TestPageReadScenario(t *testing.T) {
	e, r, master, cleanup := openEngine(t)
	defer cleanup()

	go func() {
		readyHandshake(t, r, master)
		line, _ := r.ReadString('\n')
		require.Equal(t, "#CEPRD\t0100\t0A\t1A\r\n", line)
		_, _ = master.Write([]byte("#CMDOK\r\n"))
		_, _ = master.Write([]byte("#CEPDT\t0100\t0A\t414D3035374E32FFFFFF\t11\r\n"))
		line, _ = r.ReadString('\n')
		require.Equal(t, "#CMDOK\r\n", line)
	}()

	data, err := e.ReadPage(0x0100, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x4D, 0x30, 0x35, 0x37, 0x4E, 0x32, 0xFF, 0xFF, 0xFF}, data)
}

// TestMMSIWriteScenario is spec.md §8's concrete scenario 4.
func TestMMSIWriteScenario(t *testing.T) {
	e, r, master, cleanup := openEngine(t)
	defer cleanup()

	go func() {
		readyHandshake(t, r, master)
		line, _ := r.ReadString('\n')
		require.Equal(t, "#CEPWR\t00B0\t06\t123456789002\t07\r\n", line)
		_, _ = master.Write([]byte("#CMDOK\r\n"))

		readyHandshake(t, r, master)
		line, _ = r.ReadString('\n')
		require.Equal(t, "#CEPRD\t00B0\t06\t1E\r\n", line)
		_, _ = master.Write([]byte("#CMDOK\r\n"))
		_, _ = master.Write([]byte("#CEPDT\t00B0\t06\t123456789002\t12\r\n"))
		line, _ = r.ReadString('\n')
		require.Equal(t, "#CMDOK\r\n", line)
	}()

	require.NoError(t, e.WriteMMSI("123456789", ""))
	mmsi, status, err := e.ReadMMSI()
	require.NoError(t, err)
	assert.Equal(t, "123456789", mmsi)
	assert.Equal(t, "02", status)
}

func TestMMSIClearScenario(t *testing.T) {
	e, r, master, cleanup := openEngine(t)
	defer cleanup()

	go func() {
		readyHandshake(t, r, master)
		line, _ := r.ReadString('\n')
		require.Equal(t, "#CEPWR\t00B0\t06\tFFFFFFFFFF00\t04\r\n", line)
		_, _ = master.Write([]byte("#CMDOK\r\n"))
	}()

	require.NoError(t, e.WriteMMSI("", "00"))
}

// TestATISWriteReadRoundTrip guards against readBCDRecord truncating ATIS
// (10 digits) to MMSI's digit count (9).
func TestATISWriteReadRoundTrip(t *testing.T) {
	e, r, master, cleanup := openEngine(t)
	defer cleanup()

	writeReq := wire.NewCP("#CEPWR", "00B6", "06", "912345678901")
	readReq := wire.NewCP("#CEPRD", "00B6", "06")
	readReply := wire.NewCP("#CEPDT", "00B6", "06", "912345678901")

	go func() {
		readyHandshake(t, r, master)
		line, _ := r.ReadString('\n')
		require.Equal(t, writeReq.String(), line)
		_, _ = master.Write([]byte("#CMDOK\r\n"))

		readyHandshake(t, r, master)
		line, _ = r.ReadString('\n')
		require.Equal(t, readReq.String(), line)
		_, _ = master.Write([]byte("#CMDOK\r\n"))
		_, _ = master.Write(readReply.Bytes())
		line, _ = r.ReadString('\n')
		require.Equal(t, "#CMDOK\r\n", line)
	}()

	require.NoError(t, e.WriteATIS("9123456789", ""))
	atis, status, err := e.ReadATIS()
	require.NoError(t, err)
	assert.Equal(t, "9123456789", atis)
	assert.Equal(t, "01", status)
}

func TestConfigWriteRejectsWrongLength(t *testing.T) {
	e, _, _, cleanup := openEngine(t)
	defer cleanup()

	err := e.WriteConfig(make([]byte, 100), true)
	require.Error(t, err)
}
