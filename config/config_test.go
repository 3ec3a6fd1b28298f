package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fuelgauge-go/errcode"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func tableYAML() string {
	var b strings.Builder
	b.WriteString("    data_tbl: [")
	for i := 0; i < 64; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("0x10")
	}
	b.WriteString("]\n")
	return b.String()
}

func validYAML() string {
	return `
battery:
  name: main
  model:
    bits: 19
    alert_threshold: 4
    valert_max_mv: 4000
    valert_min_mv: 1000
    vreset_threshold_mv: 2400
    rcomp: 90
    rcomp_seg: 128
    soccheck_a: 112
    soccheck_b: 116
    ocvtest: 0xD5A0
    minus_t_co_hot: 275
    minus_t_co_cold: 2250
` + tableYAML() + `
  policy:
    current_normal_ma: 1500
    current_threshold:
      - {soc: 30, ma: 500}
      - {soc: 60, ma: 900}
    throttle:
      - {soc: 25, mw: 5000}
`
}

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Service != "fuelgauge" {
		t.Errorf("service default: got %q", cfg.Service)
	}
	if cfg.Battery.Addr != 0x36 {
		t.Errorf("addr default: got 0x%02X", cfg.Battery.Addr)
	}
	if got := cfg.Sampler.Interval(); got != 10*time.Second {
		t.Errorf("interval default: got %v", got)
	}
	if cfg.Battery.Name != "main" {
		t.Errorf("name: got %q", cfg.Battery.Name)
	}
}

func TestModelPacking(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := cfg.Battery.Model.Model()

	// 4000/20=200=0xC8 max high, 1000/20=50=0x32 min low.
	if m.VAlert != 0xC832 {
		t.Errorf("VAlert: got 0x%04X, want 0xC832", m.VAlert)
	}
	// 2400/40=60 in bits [15:9], comparator enabled.
	if m.VReset != 60<<9 {
		t.Errorf("VReset: got 0x%04X, want 0x%04X", m.VReset, 60<<9)
	}
	if m.TCoHot != -275 || m.TCoCold != -2250 {
		t.Errorf("coefficients not negated: hot=%d cold=%d", m.TCoHot, m.TCoCold)
	}
	if m.OnePercentAlerts != 0 {
		t.Errorf("one-percent alerts unexpectedly enabled: 0x%02X", m.OnePercentAlerts)
	}
	for i, b := range m.Table {
		if b != 0x10 {
			t.Fatalf("table[%d] = 0x%02X, want 0x10", i, b)
		}
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad bits", func(c *Config) { c.Battery.Model.Bits = 16 }},
		{"threshold too high for 19-bit", func(c *Config) { c.Battery.Model.AlertThreshold = 20 }},
		{"short table", func(c *Config) { c.Battery.Model.DataTable = c.Battery.Model.DataTable[:32] }},
		{"inverted soccheck", func(c *Config) { c.Battery.Model.SOCCheckA = 120 }},
		{"inverted valert", func(c *Config) { c.Battery.Model.VAlertMinMilliV = 5000 }},
		{"negative coefficient magnitude", func(c *Config) { c.Battery.Model.MinusTCoHot = -1 }},
		{"threshold table without normal", func(c *Config) { c.Battery.Policy.CurrentNormalMilliA = 0 }},
		{"unsorted threshold table", func(c *Config) { c.Battery.Policy.CurrentThreshold[1].SOC = 30 }},
		{"zero interval", func(c *Config) { c.Sampler.IntervalMs = -1 }},
		{"mqtt enabled without broker", func(c *Config) { c.MQTT.Enabled = true }},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, validYAML()))
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			c.mutate(cfg)
			err = Validate(cfg)
			if !errors.Is(err, errcode.InvalidConfig) {
				t.Errorf("expected invalid_config, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "battery: [unclosed"))
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
