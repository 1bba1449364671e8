// Command station is the S2E protocol engine's process entrypoint: it
// loads configuration (spec.md §6.3-§6.5), wires a radio and an LNS
// WebSocket endpoint into a pkg/engine.Engine, and runs it until a signal
// or an unrecoverable transport error stops it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"

	"go.station.network/s2e/pkg/config"
	"go.station.network/s2e/pkg/engine"
	"go.station.network/s2e/pkg/log"
	"go.station.network/s2e/pkg/ral/ralsim"
)

var (
	flagConfDir    string
	flagURI        string
	flagForce      bool
	flagNumUnits   int
	flagStationEUI string
)

func main() {
	os.Exit(int(run()))
}

func run() config.ExitCode {
	root := &cobra.Command{
		Use:           "station",
		Short:         "station runs the S2E protocol engine against an LNS endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfDir, "home", ".", "directory containing station.conf")
	root.PersistentFlags().StringVar(&flagURI, "tc", "", "LNS WebSocket URI (ws:// or wss://)")
	root.PersistentFlags().BoolVarP(&flagForce, "force", "f", false, "run even if another instance's lock file is present")
	root.PersistentFlags().IntVar(&flagNumUnits, "num-units", 1, "number of TX/RX radio units to manage")
	root.PersistentFlags().StringVar(&flagStationEUI, "station-eui", "", "override the station EUI advertised in the version handshake")

	exitCode := config.ExitOK
	root.RunE = func(cmd *cobra.Command, args []string) error {
		exitCode = runStation(cmd.Context(), root.PersistentFlags())
		if exitCode != config.ExitOK {
			return fmt.Errorf("exit %d", exitCode)
		}
		return nil
	}

	if err := root.Execute(); err != nil {
		if exitCode == config.ExitOK {
			exitCode = config.ExitFatalGeneric
		}
	}
	return exitCode
}

func runStation(ctx context.Context, flags *pflag.FlagSet) config.ExitCode {
	cfg := config.New()
	if err := cfg.BindPFlags(flags); err != nil {
		fmt.Fprintln(os.Stderr, "bind flags:", err)
		return config.ExitFatalGeneric
	}
	if home := os.Getenv("STATION_HOME"); home != "" {
		flagConfDir = home
	}
	if err := cfg.ReadStationConf(flagConfDir + "/station.conf"); err != nil {
		fmt.Fprintln(os.Stderr, "read station.conf:", err)
		return config.ExitFatalGeneric
	}

	lockPath := flagConfDir + "/station.pid"
	if acquireLock(lockPath) {
		defer os.Remove(lockPath)
	} else if !flagForce {
		fmt.Fprintln(os.Stderr, "another station instance appears to be running; use -f to override")
		return config.ExitNOP
	}

	logger := log.New(parseLevel(cfg.GetString("log_level")))

	uri := flagURI
	if uri == "" {
		uri = cfg.GetString("routerid")
	}
	if uri == "" {
		logger.Error("no LNS URI configured (set --tc or station.conf's routerid)")
		return config.ExitFatalGeneric
	}

	numUnits := flagNumUnits
	if numUnits <= 0 {
		numUnits = 1
	}

	e := engine.New(engine.Options{
		Radio:         ralsim.New(numUnits),
		TransportURL:  uri,
		NumTxUnits:    numUnits,
		Station:       flagStationEUI,
		Firmware:      version,
		Package:       "s2e",
		Model:         "generic",
		ReconnectBase: time.Second,
		ReconnectMax:  time.Minute,
		Config:        cfg,
		Log:           logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var caughtSignal int32
	go func() {
		select {
		case sig := <-sigCh:
			if s, ok := sig.(syscall.Signal); ok {
				atomic.StoreInt32(&caughtSignal, int32(s))
			}
			e.Shutdown()
		case <-runCtx.Done():
		}
	}()

	err := e.Run(runCtx)
	if err != nil && err != context.Canceled {
		logger.WithError(err).Error("engine stopped")
		return config.ExitFatalGeneric
	}
	if sig := atomic.LoadInt32(&caughtSignal); sig != 0 {
		return config.SignalExitCode(int(sig))
	}
	return config.ExitOK
}

// version is overridden at build time via -ldflags.
var version = "dev"

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// acquireLock reports whether this process is the only station instance
// running, by attempting to create its lock file exclusively at path
// (spec.md §6.5 "another instance running" check). A stale lock from a
// crashed process is left for an operator to clear; -f bypasses it.
func acquireLock(path string) bool {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return false
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()
	return true
}
