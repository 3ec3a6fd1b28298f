// Package gauge runs the control core for one MAX17048 fuel gauge: a
// periodic sampling worker deriving user-facing battery state, an
// interrupt-driven alert handler, thermal compensation, and the policy
// callbacks that throttle the platform as charge runs down.
package gauge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tinygo.org/x/drivers"

	"fuelgauge-go/bus"
	"fuelgauge-go/drivers/max17048"
	"fuelgauge-go/errcode"
	"fuelgauge-go/types"
)

const (
	batteryFull = 100
	batteryLow  = 15

	batteryHotMilliC  = 60_000
	batteryColdMilliC = -10_000
)

// AlertSource delivers hardware alert-line events; typically backed by a
// falling-edge GPIO stream. The channel closing stops alert handling.
type AlertSource interface {
	Events() <-chan struct{}
}

// WakeControl toggles whether the alert line wakes the system from
// suspend. Optional.
type WakeControl interface {
	SetWakeEnabled(bool)
}

// TemperatureFunc supplies the battery temperature in milli-degrees
// Celsius; it stands in for the platform's thermal-zone lookup.
type TemperatureFunc func() (int64, error)

// Params configures one gauge instance.
type Params struct {
	Name     string
	I2C      drivers.I2C
	Addr     uint16
	Model    max17048.Model
	Interval time.Duration // sampling period; default 10s

	NormalThresholdMilliA int
	ThresholdTable        []ThresholdEntry
	ThrottleTable         []ThrottleEntry

	// External collaborators; all optional.
	SetCurrentThreshold func(milliA int, prio ThresholdPriority) error
	SetThrottle         func(milliW uint32)
	Temperature         TemperatureFunc
	Alerts              AlertSource
	Wake                WakeControl

	Bus *bus.Connection
	Log *slog.Logger
}

// Gauge is the handle returned at attach time; all external query and
// notify entry points hang off it. There is no package-level instance.
type Gauge struct {
	name string
	dev  *max17048.Device
	st   deviceState
	p    Params
	log  *slog.Logger
	conn *bus.Connection

	stateTopic bus.Topic
	eventTopic bus.Topic

	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	ctrl     chan ctrlOp

	samplerDone chan struct{}
	alertDone   chan struct{}
	down        bool
}

type ctrlOp uint8

const (
	ctrlPause ctrlOp = iota
	ctrlResume
)

// Attach verifies and initializes the chip, seeds device state, arms the
// periodic sampler and (when an alert source is supplied) the alert
// handler. Initialization is strictly sequential: neither flow starts
// until the model load has completed and verified.
func Attach(ctx context.Context, p Params) (*Gauge, error) {
	if p.I2C == nil {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "attach", Err: errors.New("nil I2C transport")}
	}
	if p.Log == nil {
		p.Log = slog.Default()
	}
	if p.Name == "" {
		p.Name = "battery"
	}
	if p.Interval <= 0 {
		p.Interval = 10 * time.Second
	}

	g := &Gauge{
		name:       p.Name,
		dev:        max17048.New(p.I2C, p.Addr, p.Model),
		p:          p,
		log:        p.Log.With("battery", p.Name),
		conn:       p.Bus,
		stateTopic: bus.Topic{"power", "battery", p.Name, "state"},
		eventTopic: bus.Topic{"power", "battery", p.Name, "event"},
		interval:   p.Interval,
		ctrl:       make(chan ctrlOp, 2),
	}

	if v, err := g.dev.Version(); err != nil {
		g.log.Warn("version read failed", "err", err)
	} else {
		g.log.Info("fuel gauge detected", "version", v)
	}

	if err := g.dev.Initialize(); err != nil {
		g.log.Error("initialization failed", "err", err)
		return nil, err
	}

	g.st.setStatus(types.StatusDischarging)
	g.st.setLastStatus(types.StatusDischarging)
	g.st.throttleMilliW.Store(ThrottleUnlimited)
	g.st.tempMilliC.Store(tempDefaultMilliC)
	g.st.lastTempMilliC.Store(tempDefaultMilliC)
	if p.NormalThresholdMilliA > 0 {
		g.st.thresholdMilliA.Store(int32(p.NormalThresholdMilliA))
		g.st.lastThresholdMilliA.Store(int32(p.NormalThresholdMilliA))
	}

	gctx, cancel := context.WithCancel(ctx)
	g.ctx = gctx
	g.cancel = cancel

	// Drop stale causes before the first interrupt can fire.
	if err := g.dev.ClearStatus(); err != nil {
		cancel()
		return nil, &errcode.E{C: errcode.InitFailed, Op: "clear_status", Err: err}
	}
	if err := g.dev.ClearAlertPending(); err != nil {
		cancel()
		return nil, &errcode.E{C: errcode.InitFailed, Op: "clear_alert_pending", Err: err}
	}

	if p.Alerts != nil {
		g.alertDone = make(chan struct{})
		go g.alertLoop()
	}

	g.samplerDone = make(chan struct{})
	go g.worker()

	return g, nil
}

// worker owns the sampling schedule. The first pass runs immediately;
// afterwards the timer re-arms with the fixed interval no matter how the
// pass went. Suspend/resume pause and restart the same schedule.
func (g *Gauge) worker() {
	defer close(g.samplerDone)

	timer := time.NewTimer(0)
	defer timer.Stop()
	paused := false

	for {
		select {
		case <-g.ctx.Done():
			return
		case op := <-g.ctrl:
			switch op {
			case ctrlPause:
				paused = true
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case ctrlResume:
				if paused {
					paused = false
					timer.Reset(g.interval)
				}
			}
		case <-timer.C:
			if paused {
				continue
			}
			g.samplePass()
			timer.Reset(g.interval)
		}
	}
}

func (g *Gauge) alertLoop() {
	defer close(g.alertDone)
	events := g.p.Alerts.Events()
	for {
		select {
		case <-g.ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			g.ServiceAlert()
		}
	}
}

// notify publishes the retained snapshot, plus an event message when tag
// is set. This is the power-supply-changed boundary.
func (g *Gauge) notify(tag string) {
	if g.conn == nil {
		return
	}
	now := time.Now()
	g.conn.Publish(g.stateTopic, g.st.snapshot(now), true)
	if tag != "" {
		g.conn.Publish(g.eventTopic, types.BatteryEvent{Tag: tag, TS: now.UnixMilli()}, false)
	}
}

// ---------------- External entry points ----------------

// ReportChargingTransition tells the gauge the charger state changed.
// The reported status becomes the shadow the sampler restores from.
func (g *Gauge) ReportChargingTransition(isCharging bool) {
	if isCharging {
		g.st.setStatus(types.StatusCharging)
	} else {
		g.st.setStatus(types.StatusDischarging)
	}
	g.notify("charging_transition")
	g.st.setLastStatus(g.st.getStatus())
}

// Voltage returns the last sampled terminal voltage in millivolts.
func (g *Gauge) Voltage() int { return int(g.st.vcellMilliV.Load()) }

// RawChargeState returns the unclamped internal SOC percentage.
func (g *Gauge) RawChargeState() int { return int(g.st.internalSOC.Load()) }

// OpenCircuitVoltage reads the chip's OCV estimate in microvolts.
func (g *Gauge) OpenCircuitVoltage() (int, error) { return g.dev.OCVMicroVolts() }

// ProbeCompatibleVersion reports whether the attached chip is a
// supported revision; errcode.VersionMismatch means "device absent".
func (g *Gauge) ProbeCompatibleVersion() error { return g.dev.ProbeVersion() }

// Temperature returns the current battery temperature in milli-°C.
func (g *Gauge) Temperature() int64 { return g.st.tempMilliC.Load() }

// SetTemperature feeds an externally measured battery temperature; used
// when no TemperatureFunc is wired.
func (g *Gauge) SetTemperature(milliC int64) { g.st.tempMilliC.Store(milliC) }

// Snapshot returns the current derived battery state.
func (g *Gauge) Snapshot() types.BatterySnapshot { return g.st.snapshot(time.Now()) }

// ---------------- Power transitions ----------------

// Suspend pauses the sampling schedule and parks the chip in hibernate.
// Not a shutdown: Resume restores the same schedule.
func (g *Gauge) Suspend() error {
	if err := g.dev.SetSOCChangeAlert(false); err != nil {
		g.log.Error("failed to clear soc-change alert", "err", err)
	}
	if g.p.Wake != nil {
		g.p.Wake.SetWakeEnabled(true)
	}
	g.sendCtrl(ctrlPause)
	if err := g.dev.EnterHibernate(); err != nil {
		g.log.Error("failed to enter hibernate", "err", err)
		return err
	}
	return nil
}

// Resume exits hibernate and re-arms the sampling schedule.
func (g *Gauge) Resume() error {
	if err := g.dev.ExitHibernate(); err != nil {
		g.log.Error("failed to exit hibernate", "err", err)
		return err
	}
	g.sendCtrl(ctrlResume)
	if g.p.Wake != nil {
		g.p.Wake.SetWakeEnabled(false)
	}
	if err := g.dev.SetSOCChangeAlert(true); err != nil {
		g.log.Error("failed to set soc-change alert", "err", err)
	}
	return nil
}

func (g *Gauge) sendCtrl(op ctrlOp) {
	select {
	case g.ctrl <- op:
	case <-g.ctx.Done():
	}
}

// Shutdown restores the default compensation byte, stops alert delivery,
// cancels and awaits the sampler, then fences the transport so every
// later transaction fails fast.
func (g *Gauge) Shutdown(ctx context.Context) error {
	if g.down {
		return nil
	}
	g.down = true

	if err := g.dev.RestoreDefaultRCOMP(); err != nil {
		g.log.Error("failed to restore default rcomp", "err", err)
	}

	g.cancel()
	if g.alertDone != nil {
		select {
		case <-g.alertDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case <-g.samplerDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.dev.Fence()
	return nil
}
