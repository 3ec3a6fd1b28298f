// fuelgauged supervises one MAX17048 fuel gauge: it loads the battery
// model, runs the sampling and alert flows, and mirrors battery state
// onto the internal bus and (optionally) an MQTT broker.
//
// Without real hardware the daemon runs against the register simulator,
// which is enough to exercise configuration, the model load, and the
// full publish path end to end.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tinygo.org/x/drivers"

	"fuelgauge-go/bus"
	"fuelgauge-go/config"
	"fuelgauge-go/drivers/max17048"
	"fuelgauge-go/logging"
	"fuelgauge-go/services/bridge"
	"fuelgauge-go/services/gauge"
)

func main() {
	cfgPath := flag.String("config", "/etc/fuelgauge/config.yaml", "path to the YAML configuration")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fuelgauged:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Logging, cfg.Service)
	log.Info("starting", "config", cfgPath, "battery", cfg.Battery.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := bus.New(16)
	gaugeConn := b.NewConnection("gauge")
	defer gaugeConn.Disconnect()

	i2c := openTransport(cfg, log)

	g, err := gauge.Attach(ctx, gauge.Params{
		Name:                  cfg.Battery.Name,
		I2C:                   i2c,
		Addr:                  cfg.Battery.Addr,
		Model:                 cfg.Battery.Model.Model(),
		Interval:              cfg.Sampler.Interval(),
		NormalThresholdMilliA: cfg.Battery.Policy.CurrentNormalMilliA,
		ThresholdTable:        thresholdTable(cfg.Battery.Policy.CurrentThreshold),
		ThrottleTable:         throttleTable(cfg.Battery.Policy.Throttle),
		Bus:                   gaugeConn,
		Log:                   log,
	})
	if err != nil {
		return err
	}

	bridgeDone := make(chan struct{})
	if cfg.MQTT.Enabled {
		bridgeConn := b.NewConnection("bridge")
		go func() {
			defer close(bridgeDone)
			defer bridgeConn.Disconnect()
			if err := bridge.Start(ctx, bridgeConn, cfg.MQTT, log); err != nil {
				log.Error("bridge stopped", "err", err)
			}
		}()
	} else {
		close(bridgeDone)
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.Shutdown(shutdownCtx); err != nil {
		log.Error("gauge shutdown incomplete", "err", err)
	}
	<-bridgeDone
	return nil
}

// openTransport returns the bus the gauge talks over. Board builds swap
// in the platform I2C here; the default build runs the simulator.
func openTransport(cfg *config.Config, log *slog.Logger) drivers.I2C {
	log.Info("using simulated transport", "addr", cfg.Battery.Addr)
	return max17048.NewSim(0x12)
}

func thresholdTable(entries []config.ThresholdEntry) []gauge.ThresholdEntry {
	out := make([]gauge.ThresholdEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, gauge.ThresholdEntry{SOC: e.SOC, MilliA: e.MilliA})
	}
	return out
}

func throttleTable(entries []config.ThrottleEntry) []gauge.ThrottleEntry {
	out := make([]gauge.ThrottleEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, gauge.ThrottleEntry{SOC: e.SOC, MilliW: e.MilliW})
	}
	return out
}
