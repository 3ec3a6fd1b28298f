package bridge

import (
	"encoding/json"
	"strings"
	"testing"

	"fuelgauge-go/bus"
	"fuelgauge-go/config"
	"fuelgauge-go/types"
)

func TestRemoteTopicMapping(t *testing.T) {
	cases := []struct {
		prefix string
		topic  bus.Topic
		want   string
	}{
		{"power", bus.T("power/battery/main/state"), "power/battery/main/state"},
		{"site42/power", bus.T("power/battery/main/state"), "site42/power/battery/main/state"},
		{"", bus.T("power/battery/main/event"), "power/battery/main/event"},
	}
	for _, c := range cases {
		s := &Service{cfg: config.MQTTConfig{TopicPrefix: c.prefix}}
		if got := s.remoteTopic(c.topic); got != c.want {
			t.Errorf("prefix %q: got %q, want %q", c.prefix, got, c.want)
		}
	}
}

// The uplink payload is the JSON encoding of the bus payload; external
// consumers key on these field names.
func TestUplinkPayloadShape(t *testing.T) {
	snap := types.BatterySnapshot{
		VCellMilliV: 3900,
		SOC:         72,
		Status:      "discharging",
		Health:      "good",
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"vcell_mV", "soc", "status", "health", "capacity_level", "ts_ms"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing field %q in %s", key, raw)
		}
	}
}

func TestClientIDUnique(t *testing.T) {
	a, b := clientID("fg"), clientID("fg")
	if a == b {
		t.Errorf("client IDs collide: %q", a)
	}
	if !strings.HasPrefix(a, "fg-") {
		t.Errorf("prefix lost: %q", a)
	}
	if got := clientID(""); !strings.HasPrefix(got, "fuelgauge-") {
		t.Errorf("default base missing: %q", got)
	}
}
