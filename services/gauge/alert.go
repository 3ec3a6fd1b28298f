package gauge

import (
	"fuelgauge-go/drivers/max17048"
	"fuelgauge-go/types"
)

// alertHandler binds one STATUS cause to its tag and reaction. Handlers
// run in declaration order so that a voltage-low override is applied
// before the SOC handlers refresh state, and a SOC-change restore runs
// last.
type alertHandler struct {
	bit max17048.StatusBits
	tag string
	fn  func(*Gauge)
}

var alertHandlers = []alertHandler{
	{max17048.StatusReset, "reset", nil},
	{max17048.StatusVoltageHigh, "voltage_high", nil},
	{max17048.StatusVoltageLow, "voltage_low", (*Gauge).alertVoltageLow},
	{max17048.StatusVoltageReset, "voltage_reset", nil},
	{max17048.StatusSOCLow, "soc_low", (*Gauge).alertSOCLow},
	{max17048.StatusSOCChange, "soc_change", (*Gauge).alertSOCChange},
	{max17048.StatusEnVResetAlert, "voltage_reset_armed", nil},
}

// ServiceAlert handles one alert-line assertion: read the causes, run
// the matching handlers in order, clear the serviced causes, and always
// de-assert the line so the next event can fire even if a read failed.
func (g *Gauge) ServiceAlert() {
	status, err := g.dev.ReadStatus()
	if err != nil {
		g.log.Error("status read failed", "err", err)
	} else if status != 0 {
		for _, h := range alertHandlers {
			if !status.Has(h.bit) {
				continue
			}
			g.log.Info("alert", "cause", h.tag)
			if h.fn != nil {
				h.fn(g)
			}
		}
		if err := g.dev.ClearStatus(); err != nil {
			g.log.Error("failed to clear status", "err", err)
		}
	}
	if err := g.dev.ClearAlertPending(); err != nil {
		g.log.Error("failed to clear alert pending", "err", err)
	}
}

// alertVoltageLow pins the battery empty: the cell sagged below the
// alert floor, so the fuel estimate can no longer be trusted upward.
// The low-voltage alert is muted until SOC recovers, otherwise a cell
// bouncing on the floor storms the line.
func (g *Gauge) alertVoltageLow() {
	g.st.soc.Store(0)
	g.st.lastSOC.Store(0)
	g.restoreReportedStatus()
	g.st.setHealth(types.HealthDead)
	g.st.setCapacity(types.CapacityCritical)
	g.notify("voltage_low")
	if err := g.dev.MuteLowVoltageAlert(); err != nil {
		g.log.Error("failed to mute low-voltage alert", "err", err)
	}
}

// alertSOCLow refreshes voltage and charge immediately instead of waiting
// for the next scheduled pass.
func (g *Gauge) alertSOCLow() {
	g.readVCell()
	g.readSOC()
	g.deriveFromSOC()
	g.st.lastSOC.Store(g.st.soc.Load())
	g.notify("soc_low")
}

// alertSOCChange is the 1% step notification: full refresh, policy
// re-evaluation, and — once the cell is off the floor — restore of the
// voltage alert window muted by alertVoltageLow.
func (g *Gauge) alertSOCChange() {
	g.readVCell()
	g.readSOC()
	g.deriveFromSOC()
	g.applyCurrentThreshold()
	g.applyThrottle()
	g.st.lastSOC.Store(g.st.soc.Load())
	g.notify("soc_change")

	if g.st.internalSOC.Load() >= 1 {
		if err := g.dev.RestoreVoltageAlert(); err != nil {
			g.log.Error("failed to restore voltage alert", "err", err)
		}
	}
}
