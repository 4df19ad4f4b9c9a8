// Command hxcore is a thin demonstration binary that wires the device
// communication core together end to end: open a transport (a real serial
// port, or an in-process simulator.Device), detect its mode, and run
// whichever engine that mode supports. It performs no file export and no
// port enumeration of its own — that belongs to a real front-end, not here.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/cr/hx870/cfgmem"
	"github.com/cr/hx870/mtk"
	"github.com/cr/hx870/session"
	"github.com/cr/hx870/simulator"
	"github.com/cr/hx870/transport"
)

func main() {
	device := pflag.StringP("device", "d", "", "serial device path (e.g. /dev/ttyUSB0)")
	simulate := pflag.String("simulate", "", "run against an in-process simulator instead of --device: \"cp\" or \"nmea\"")
	profileHandle := pflag.String("profile", "hx870", "device profile used to validate the flash ID")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	logger := log.New(os.Stderr)
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if *device == "" && *simulate == "" {
		logger.Error("one of --device or --simulate is required")
		os.Exit(2)
	}

	devicePath := *device
	var sup *simulator.Supervisor
	if *simulate != "" {
		mode, err := simulatorMode(*simulate)
		if err != nil {
			logger.Error("invalid --simulate value", "err", err)
			os.Exit(2)
		}
		d, err := simulator.New(mode, simulator.WithLogger(logger))
		if err != nil {
			logger.Error("failed to start simulator", "err", err)
			os.Exit(1)
		}
		sup = simulator.NewSupervisor()
		sup.Register(d)
		if err := sup.StartAll(); err != nil {
			logger.Error("failed to start simulator", "err", err)
			os.Exit(1)
		}
		defer func() {
			sup.StopAll()
			sup.JoinAll()
		}()
		devicePath = d.SlavePath()
		logger.Info("simulator ready", "tty", devicePath, "mode", *simulate)
	}

	tr, err := transport.Open(devicePath, 0, logger)
	if err != nil {
		logger.Error("failed to open transport", "err", err)
		os.Exit(1)
	}
	defer tr.Close()

	s := session.Detect(tr, logger)
	switch {
	case s.State.CPMode:
		runCP(logger, s, *profileHandle)
	case s.State.NMEAMode:
		runNMEA(logger, s)
	default:
		logger.Error("device did not respond to mode probe")
		os.Exit(1)
	}
}

func simulatorMode(name string) (simulator.Mode, error) {
	switch name {
	case "cp":
		return simulator.CPMode, nil
	case "nmea":
		return simulator.NMEAMode, nil
	default:
		return 0, fmt.Errorf("unknown simulator mode %q", name)
	}
}

func runCP(logger *log.Logger, s *session.Session, profileHandle string) {
	if err := s.Sync(); err != nil {
		logger.Error("sync failed", "err", err)
		os.Exit(1)
	}

	version, err := s.GetFirmwareVersion()
	if err != nil {
		logger.Error("get firmware version failed", "err", err)
		os.Exit(1)
	}
	logger.Info("device ready", "firmware", version)

	e := cfgmem.New(s, logger)
	flashID, err := e.GetFlashID()
	if err != nil {
		logger.Error("get flash id failed", "err", err)
		os.Exit(1)
	}
	logger.Info("flash id", "id", flashID)

	if profile, ok := cfgmem.ProfileByHandle(profileHandle); ok {
		if !profile.AcceptsFlashID(flashID) {
			logger.Warn("flash id not in profile's accepted list", "profile", profileHandle, "id", flashID)
		}
	} else {
		logger.Warn("unknown device profile", "profile", profileHandle)
	}

	mmsi, status, err := e.ReadMMSI()
	if err != nil {
		logger.Error("read mmsi failed", "err", err)
		os.Exit(1)
	}
	logger.Info("mmsi", "value", mmsi, "status", status)
}

func runNMEA(logger *log.Logger, s *session.Session) {
	m := mtk.New(s, logger)
	if err := m.Sync(); err != nil {
		logger.Error("mtk sync failed", "err", err)
		os.Exit(1)
	}

	status, err := m.Status()
	if err != nil {
		logger.Error("mtk status failed", "err", err)
		os.Exit(1)
	}
	logger.Info("log status",
		"pagesUsed", status.PagesUsed,
		"slotsUsed", status.SlotsUsed,
		"usagePercent", status.UsagePercent,
		"loggingEnabled", status.LoggingEnabled,
	)
}
