package gauge

import (
	"sync/atomic"
	"time"

	"fuelgauge-go/types"
)

// deviceState is the one mutable record shared by the sampler and alert
// flows. Fields are individual atomics on purpose: the two flows are
// synchronized only at the granularity of bus transactions, so a sampler
// pass and an alert pass may interleave mid-update. Last writer wins per
// field; callers must not assume a snapshot is internally consistent
// across fields.
type deviceState struct {
	vcellMilliV     atomic.Int32
	soc             atomic.Int32
	internalSOC     atomic.Int32
	status          atomic.Uint32
	health          atomic.Uint32
	capacity        atomic.Uint32
	tempMilliC      atomic.Int64
	thresholdMilliA atomic.Int32
	throttleMilliW  atomic.Uint32

	// Shadows for change detection across passes. lastStatus doubles as
	// the restore source when a pass cannot trust the live status.
	lastSOC             atomic.Int32
	lastStatus          atomic.Uint32
	lastTempMilliC      atomic.Int64
	lastThresholdMilliA atomic.Int32
}

func (s *deviceState) getStatus() types.BatteryStatus {
	return types.BatteryStatus(s.status.Load())
}
func (s *deviceState) setStatus(v types.BatteryStatus) { s.status.Store(uint32(v)) }

func (s *deviceState) getLastStatus() types.BatteryStatus {
	return types.BatteryStatus(s.lastStatus.Load())
}
func (s *deviceState) setLastStatus(v types.BatteryStatus) { s.lastStatus.Store(uint32(v)) }

func (s *deviceState) setHealth(v types.BatteryHealth)   { s.health.Store(uint32(v)) }
func (s *deviceState) setCapacity(v types.CapacityLevel) { s.capacity.Store(uint32(v)) }

func (s *deviceState) snapshot(ts time.Time) types.BatterySnapshot {
	return types.BatterySnapshot{
		VCellMilliV:     int(s.vcellMilliV.Load()),
		SOC:             int(s.soc.Load()),
		InternalSOC:     int(s.internalSOC.Load()),
		Status:          types.BatteryStatus(s.status.Load()).String(),
		Health:          types.BatteryHealth(s.health.Load()).String(),
		CapacityLevel:   types.CapacityLevel(s.capacity.Load()).String(),
		TempMilliC:      s.tempMilliC.Load(),
		ThresholdMilliA: int(s.thresholdMilliA.Load()),
		ThrottleMilliW:  s.throttleMilliW.Load(),
		TS:              ts.UnixMilli(),
	}
}
