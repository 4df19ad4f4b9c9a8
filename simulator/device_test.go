package simulator_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cr/hx870/simulator"
	"github.com/cr/hx870/transport"
	"github.com/cr/hx870/wire"
)

func openDevice(t *testing.T, mode simulator.Mode, opts ...simulator.Option) (*simulator.Device, transport.Transport) {
	t.Helper()
	d, err := simulator.New(mode, opts...)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	t.Cleanup(func() {
		d.Stop()
		d.Wait()
	})

	tr, err := transport.Open(d.SlavePath(), 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return d, tr
}

// TestNMEASimulatorProbeAndDummyMessages mirrors
// original_source/tests/simulator_test.py's test_nmea_simulator.
func TestNMEASimulatorProbeAndDummyMessages(t *testing.T) {
	_, tr := openDevice(t, simulator.NMEAMode, simulator.WithNMEADelay(50*time.Millisecond))

	_, err := tr.Write([]byte("FOOP?IGNOREP"))
	require.NoError(t, err)

	b, err := tr.Read(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("P"), b)

	b, err = tr.Read(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("P"), b)

	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "$GPLL,,,,\r\n", string(line))

	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "$GPLL,,,,\r\n", string(line))
}

// TestCPSimulatorProbeAndSync mirrors
// original_source/tests/simulator_test.py's test_cp_simulator.
func TestCPSimulatorProbeAndSync(t *testing.T) {
	_, tr := openDevice(t, simulator.CPMode)

	_, err := tr.Write([]byte("FOOP?IGNORE?"))
	require.NoError(t, err)
	b, err := tr.Read(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("@"), b)
	b, err = tr.Read(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("@"), b)

	_, err = tr.Write([]byte("#CMDSY\r\n"))
	require.NoError(t, err)
	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#CMDOK\r\n", string(line))

	_, err = tr.Write([]byte("#CMDSY\r\n"))
	require.NoError(t, err)
	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#CMDOK\r\n", string(line))
}

func TestCPSimulatorUnknownCommandGetsCMDER(t *testing.T) {
	_, tr := openDevice(t, simulator.CPMode)

	_, err := tr.Write([]byte("#FOOBAR\tX\t00\r\n"))
	require.NoError(t, err)
	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#CMDER\r\n", string(line))
}

func TestCPSimulatorFirmwareVersion(t *testing.T) {
	_, tr := openDevice(t, simulator.CPMode)

	_, err := tr.Write([]byte("#CVRRQ\r\n"))
	require.NoError(t, err)
	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#CMDOK\r\n", string(line))
	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, wire.NewCP("#CVRDQ", "23.42").String(), string(line))
}

func TestCPSimulatorReadsBackSeededMemory(t *testing.T) {
	mem := simulator.NewConfigMemory()
	mem.Write(0x0100, []byte{0x41, 0x4D})
	_, tr := openDevice(t, simulator.CPMode, simulator.WithConfigMemory(mem))

	readReq := wire.NewCP("#CEPRD", "0100", "02")
	_, err := tr.Write(readReq.Bytes())
	require.NoError(t, err)

	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#CMDOK\r\n", string(line))
	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, wire.NewCP("#CEPDT", "0100", "02", "414D").String(), string(line))

	// The simulator swallows exactly one CMDOK ack after CEPRD/CEPSR, then
	// resumes echoing CMDOK like the rest of the dummy handler table.
	_, err = tr.Write([]byte("#CMDOK\r\n"))
	require.NoError(t, err)
	_, err = tr.Write([]byte("#CMDOK\r\n"))
	require.NoError(t, err)
	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#CMDOK\r\n", string(line))
}

func TestCPSimulatorWriteThenReadsBack(t *testing.T) {
	d, tr := openDevice(t, simulator.CPMode)

	writeReq := wire.NewCP("#CEPWR", "0100", "02", "414D")
	_, err := tr.Write(writeReq.Bytes())
	require.NoError(t, err)
	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#CMDOK\r\n", string(line))

	assert.Equal(t, []byte{0x41, 0x4D}, d.Memory().Read(0x0100, 2))

	readReq := wire.NewCP("#CEPRD", "0100", "02")
	_, err = tr.Write(readReq.Bytes())
	require.NoError(t, err)
	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#CMDOK\r\n", string(line))
	line, err = tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, wire.NewCP("#CEPDT", "0100", "02", "414D").String(), string(line))
}

func TestCPSimulatorWriteLengthMismatchGetsCMDER(t *testing.T) {
	_, tr := openDevice(t, simulator.CPMode)

	// LL says 2 bytes but the hex payload only carries 1.
	badReq := wire.NewCP("#CEPWR", "0100", "02", "41")
	_, err := tr.Write(badReq.Bytes())
	require.NoError(t, err)
	line, err := tr.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "#CMDER\r\n", string(line))
}

func TestStoppedDeviceCannotBeRestarted(t *testing.T) {
	d, err := simulator.New(simulator.CPMode)
	require.NoError(t, err)
	require.NoError(t, d.Start())
	d.Stop()
	d.Wait()

	require.Error(t, d.Start())
}

func TestSupervisorStopsAllDevices(t *testing.T) {
	sup := simulator.NewSupervisor()
	d1, err := simulator.New(simulator.CPMode)
	require.NoError(t, err)
	d2, err := simulator.New(simulator.NMEAMode)
	require.NoError(t, err)
	sup.Register(d1)
	sup.Register(d2)

	require.NoError(t, sup.StartAll())
	sup.StopAll()
	sup.JoinAll()
}
