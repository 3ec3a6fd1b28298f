// Package config loads and validates the daemon configuration: one YAML
// document covering the battery model, sampling, policy tables, logging
// and the MQTT uplink. The document is validated as a whole at load time;
// model fields are never silently defaulted.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fuelgauge-go/drivers/max17048"
	"fuelgauge-go/logging"
)

type Config struct {
	Service string         `yaml:"service"`
	Logging logging.Config `yaml:"logging"`
	Sampler SamplerConfig  `yaml:"sampler"`
	Battery BatteryConfig  `yaml:"battery"`
	MQTT    MQTTConfig     `yaml:"mqtt"`
}

type SamplerConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

func (s SamplerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

type BatteryConfig struct {
	Name   string       `yaml:"name"`
	Addr   uint16       `yaml:"addr"`
	Model  ModelConfig  `yaml:"model"`
	Policy PolicyConfig `yaml:"policy"`
}

// ModelConfig mirrors the vendor characterization sheet field-for-field;
// Model() performs the packing and unit scaling the chip expects.
type ModelConfig struct {
	Bits               int    `yaml:"bits"`
	AlertThreshold     int    `yaml:"alert_threshold"`
	OnePercentAlerts   bool   `yaml:"one_percent_alerts"`
	VAlertMaxMilliV    int    `yaml:"valert_max_mv"` // 20 mV LSB
	VAlertMinMilliV    int    `yaml:"valert_min_mv"` // 20 mV LSB
	VResetMilliV       int    `yaml:"vreset_threshold_mv"` // 40 mV LSB
	VResetDisable      bool   `yaml:"vreset_disable"`
	HibThreshold       int    `yaml:"hib_threshold"`
	HibActiveThreshold int    `yaml:"hib_active_threshold"`
	RCOMP              int    `yaml:"rcomp"`
	RCOMPSeg           uint16 `yaml:"rcomp_seg"`
	SOCCheckA          int    `yaml:"soccheck_a"`
	SOCCheckB          int    `yaml:"soccheck_b"`
	OCVTest            uint16 `yaml:"ocvtest"`
	MinusTCoHot        int64  `yaml:"minus_t_co_hot"`  // stored negated, like the sheet
	MinusTCoCold       int64  `yaml:"minus_t_co_cold"`
	DataTable          []int  `yaml:"data_tbl"` // exactly 64 byte values
}

// Model packs the sheet values into register form: VALRT max in the high
// byte and min in the low, VRESET threshold on a 40 mV LSB with its
// disable bit, hibernate enter/exit packed high/low, coefficients negated.
func (m ModelConfig) Model() max17048.Model {
	valert := uint16(m.VAlertMaxMilliV/20&0xFF)<<8 | uint16(m.VAlertMinMilliV/20&0xFF)

	// Threshold in bits [15:9] on a 40 mV LSB; bit 8 disables the
	// reset comparator.
	vreset := uint16(m.VResetMilliV/40&0x7F) << 9
	if m.VResetDisable {
		vreset |= 1 << 8
	}

	var onePercent uint16
	if m.OnePercentAlerts {
		onePercent = 0x40
	}

	model := max17048.Model{
		Bits:             m.Bits,
		AlertThreshold:   m.AlertThreshold,
		OnePercentAlerts: onePercent,
		VAlert:           valert,
		VReset:           vreset,
		Hibernate:        uint16(m.HibThreshold&0xFF)<<8 | uint16(m.HibActiveThreshold&0xFF),
		RCOMP:            m.RCOMP,
		RCOMPSeg:         m.RCOMPSeg,
		SOCCheckA:        m.SOCCheckA,
		SOCCheckB:        m.SOCCheckB,
		OCVTest:          m.OCVTest,
		TCoHot:           -m.MinusTCoHot,
		TCoCold:          -m.MinusTCoCold,
	}
	for i, v := range m.DataTable {
		if i >= len(model.Table) {
			break
		}
		model.Table[i] = byte(v)
	}
	return model
}

type PolicyConfig struct {
	CurrentNormalMilliA int              `yaml:"current_normal_ma"`
	CurrentThreshold    []ThresholdEntry `yaml:"current_threshold"`
	Throttle            []ThrottleEntry  `yaml:"throttle"`
}

type ThresholdEntry struct {
	SOC    int `yaml:"soc"`
	MilliA int `yaml:"ma"`
}

type ThrottleEntry struct {
	SOC    int    `yaml:"soc"`
	MilliW uint32 `yaml:"mw"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BrokerURL   string `yaml:"broker_url"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// Load reads, defaults and validates a configuration file. Any
// inconsistency fails the whole document.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service == "" {
		c.Service = "fuelgauge"
	}
	if c.Sampler.IntervalMs == 0 {
		c.Sampler.IntervalMs = 10_000
	}
	if c.Battery.Name == "" {
		c.Battery.Name = "battery"
	}
	if c.Battery.Addr == 0 {
		c.Battery.Addr = max17048.AddressDefault
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "power"
	}
}
