package types

// ------------------------
// Battery fuel gauge (max17048)
// ------------------------

// BatteryStatus mirrors the host power-supply status vocabulary.
type BatteryStatus uint8

const (
	StatusUnknown BatteryStatus = iota
	StatusCharging
	StatusDischarging
	StatusFull
)

func (s BatteryStatus) String() string {
	switch s {
	case StatusCharging:
		return "charging"
	case StatusDischarging:
		return "discharging"
	case StatusFull:
		return "full"
	default:
		return "unknown"
	}
}

type BatteryHealth uint8

const (
	HealthUnknown BatteryHealth = iota
	HealthGood
	HealthDead
	HealthOverheat
	HealthCold
)

func (h BatteryHealth) String() string {
	switch h {
	case HealthGood:
		return "good"
	case HealthDead:
		return "dead"
	case HealthOverheat:
		return "overheat"
	case HealthCold:
		return "cold"
	default:
		return "unknown"
	}
}

type CapacityLevel uint8

const (
	CapacityUnknown CapacityLevel = iota
	CapacityNormal
	CapacityFull
	CapacityCritical
)

func (c CapacityLevel) String() string {
	switch c {
	case CapacityNormal:
		return "normal"
	case CapacityFull:
		return "full"
	case CapacityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// BatterySnapshot is the retained value published on
// power/battery/<name>/state after every sampling or alert pass.
type BatterySnapshot struct {
	VCellMilliV     int    `json:"vcell_mV"`
	SOC             int    `json:"soc"`
	InternalSOC     int    `json:"internal_soc"`
	Status          string `json:"status"`
	Health          string `json:"health"`
	CapacityLevel   string `json:"capacity_level"`
	TempMilliC      int64  `json:"temp_mC"`
	ThresholdMilliA int    `json:"current_threshold_mA"`
	ThrottleMilliW  uint32 `json:"throttle_mW"` // max uint32 when unrestricted
	TS              int64  `json:"ts_ms"`
}

// BatteryEvent is published on power/battery/<name>/event for alert tags
// and degraded conditions.
type BatteryEvent struct {
	Tag string `json:"tag"`
	Err string `json:"error,omitempty"`
	TS  int64  `json:"ts_ms"`
}
