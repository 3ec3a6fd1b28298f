package gauge

import (
	"fuelgauge-go/types"
	"fuelgauge-go/x/mathx"
)

const (
	tempDefaultMilliC = 20_000

	// Compensation is rewritten only when the temperature moved enough
	// to matter; smaller drift is noise against the RCOMP LSB.
	tempDriftMilliC = 1_500
)

// samplePass is one scheduled refresh. Reads and derivations run in a
// fixed order; a failed register read logs and lets the pass continue on
// the last known value rather than aborting the whole cycle.
func (g *Gauge) samplePass() {
	g.readVCell()
	g.readSOC()
	g.deriveFromSOC()
	g.applyCurrentThreshold()
	g.applyThrottle()
	g.checkTemperature()
	g.detectChange()
}

func (g *Gauge) readVCell() {
	mv, err := g.dev.VCellMilliVolts()
	if err != nil {
		g.log.Error("vcell read failed", "err", err)
		return
	}
	g.st.vcellMilliV.Store(int32(mv))
}

func (g *Gauge) readSOC() {
	soc, err := g.dev.InternalSOC()
	if err != nil {
		g.log.Error("soc read failed", "err", err)
		return
	}
	g.st.internalSOC.Store(int32(soc))
}

// deriveFromSOC maps the internal percentage onto the user-facing SOC,
// status, health, and capacity level. Runs on whatever internalSOC holds,
// even if the read just failed.
func (g *Gauge) deriveFromSOC() {
	internal := int(g.st.internalSOC.Load())

	soc := internal
	if soc > batteryFull {
		soc = batteryFull
	}
	if soc < 0 {
		soc = 0
	}
	g.st.soc.Store(int32(soc))

	switch {
	case soc >= batteryFull:
		// Full is only believable while a charger is attached; a
		// discharging battery reading 100 keeps its reported status.
		if g.st.getLastStatus() == types.StatusCharging {
			g.st.setStatus(types.StatusFull)
		} else {
			g.restoreReportedStatus()
		}
		g.st.setCapacity(types.CapacityFull)
		g.st.setHealth(types.HealthGood)
	case soc < batteryLow:
		g.st.setCapacity(types.CapacityCritical)
		g.st.setHealth(types.HealthDead)
		g.restoreReportedStatus()
	default:
		g.st.setCapacity(types.CapacityNormal)
		g.st.setHealth(types.HealthGood)
		g.restoreReportedStatus()
	}
}

// restoreReportedStatus makes the shadow written by
// ReportChargingTransition authoritative again once the gauge is no
// longer pinning status to Full.
func (g *Gauge) restoreReportedStatus() {
	g.st.setStatus(g.st.getLastStatus())
}

func (g *Gauge) applyCurrentThreshold() {
	if g.p.SetCurrentThreshold == nil || g.p.NormalThresholdMilliA <= 0 {
		return
	}
	// The unclamped percentage keys the scan, so an overfull battery
	// falls through to the normal threshold rather than matching a
	// 100-bound entry.
	soc := int(g.st.internalSOC.Load())
	milliA, prio := selectThreshold(g.p.ThresholdTable, g.p.NormalThresholdMilliA, soc)
	if int32(milliA) == g.st.thresholdMilliA.Load() {
		return
	}
	if err := g.p.SetCurrentThreshold(milliA, prio); err != nil {
		g.log.Error("failed to apply current threshold", "milli_a", milliA, "err", err)
		return
	}
	g.st.thresholdMilliA.Store(int32(milliA))
	g.st.lastThresholdMilliA.Store(int32(milliA))
}

// applyThrottle asserts the power limit every pass; the consumer is
// expected to treat repeated identical limits as idempotent.
func (g *Gauge) applyThrottle() {
	if g.p.SetThrottle == nil {
		return
	}
	soc := int(g.st.internalSOC.Load())
	milliW := selectThrottle(g.p.ThrottleTable, soc)
	g.p.SetThrottle(milliW)
	g.st.throttleMilliW.Store(milliW)
}

// checkTemperature refreshes the thermal reading, updates health for
// out-of-range batteries, and rewrites the compensation byte whenever the
// temperature moved since the last compensation update.
func (g *Gauge) checkTemperature() {
	if g.p.Temperature != nil {
		milliC, err := g.p.Temperature()
		if err != nil {
			g.log.Error("temperature read failed", "err", err)
			milliC = tempDefaultMilliC
		}
		g.st.tempMilliC.Store(milliC)
	}

	milliC := g.st.tempMilliC.Load()
	switch {
	case milliC > batteryHotMilliC:
		g.st.setHealth(types.HealthOverheat)
		g.notify("")
	case milliC < batteryColdMilliC:
		g.st.setHealth(types.HealthCold)
		g.notify("")
	}

	if mathx.Abs(milliC-g.st.lastTempMilliC.Load()) < tempDriftMilliC {
		return
	}
	if err := g.dev.UpdateRCOMP(milliC); err != nil {
		g.log.Error("failed to update rcomp", "temp_milli_c", milliC, "err", err)
		return
	}
	g.st.lastTempMilliC.Store(milliC)
	g.notify("")
}

// detectChange publishes a retained snapshot when the user-facing SOC
// or the status moved since the previous pass. The status shadow is not
// written here; ReportChargingTransition owns it, so a derived status
// that diverges from the reported one keeps notifying each pass.
func (g *Gauge) detectChange() {
	soc := g.st.soc.Load()
	if soc == g.st.lastSOC.Load() && g.st.getStatus() == g.st.getLastStatus() {
		return
	}
	g.st.lastSOC.Store(soc)
	g.notify("")
}
