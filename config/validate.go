package config

import (
	"fmt"

	"fuelgauge-go/errcode"
)

// Validate checks configuration correctness. It performs declarative
// validation only and MUST NOT mutate the configuration.
func Validate(cfg *Config) error {
	m := cfg.Battery.Model

	if m.Bits != 18 && m.Bits != 19 {
		return invalid("model: bits must be 18 or 19, got %d", m.Bits)
	}
	if m.AlertThreshold < 1 || m.AlertThreshold > 32 {
		return invalid("model: alert_threshold %d outside [1,32]", m.AlertThreshold)
	}
	if m.Bits == 19 && m.AlertThreshold > 16 {
		return invalid("model: alert_threshold %d exceeds 16 for 19-bit precision", m.AlertThreshold)
	}
	if len(m.DataTable) != 64 {
		return invalid("model: data_tbl must hold exactly 64 bytes, got %d", len(m.DataTable))
	}
	for i, v := range m.DataTable {
		if v < 0 || v > 0xFF {
			return invalid("model: data_tbl[%d] = %d outside byte range", i, v)
		}
	}
	if m.SOCCheckA > m.SOCCheckB {
		return invalid("model: soccheck window inverted (%d > %d)", m.SOCCheckA, m.SOCCheckB)
	}
	if m.VAlertMinMilliV > m.VAlertMaxMilliV {
		return invalid("model: valert window inverted (%d > %d)", m.VAlertMinMilliV, m.VAlertMaxMilliV)
	}
	if m.MinusTCoHot < 0 || m.MinusTCoCold < 0 {
		return invalid("model: minus_t_co_hot/cold are magnitudes and must be non-negative")
	}

	p := cfg.Battery.Policy
	if len(p.CurrentThreshold) > 0 && p.CurrentNormalMilliA <= 0 {
		return invalid("policy: current_threshold table requires current_normal_ma > 0")
	}
	for i := 1; i < len(p.CurrentThreshold); i++ {
		if p.CurrentThreshold[i].SOC <= p.CurrentThreshold[i-1].SOC {
			return invalid("policy: current_threshold soc bounds must be strictly ascending at index %d", i)
		}
	}
	for i := 1; i < len(p.Throttle); i++ {
		if p.Throttle[i].SOC <= p.Throttle[i-1].SOC {
			return invalid("policy: throttle soc bounds must be strictly ascending at index %d", i)
		}
	}

	if cfg.Sampler.IntervalMs <= 0 {
		return invalid("sampler: interval_ms must be positive")
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.BrokerURL == "" {
			return invalid("mqtt: broker_url required when enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return invalid("mqtt: qos %d outside [0,2]", cfg.MQTT.QoS)
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return &errcode.E{
		C:   errcode.InvalidConfig,
		Op:  "validate",
		Err: fmt.Errorf(format, args...),
	}
}
