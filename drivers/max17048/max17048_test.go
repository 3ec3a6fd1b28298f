package max17048

import (
	"errors"
	"testing"

	"fuelgauge-go/errcode"
)

func testModel() Model {
	m := Model{
		Bits:           19,
		AlertThreshold: 4,
		VAlert:         0xC832,
		VReset:         0x9600,
		Hibernate:      0x8030,
		RCOMP:          0x5A,
		RCOMPSeg:       0x0080,
		SOCCheckA:      70,
		SOCCheckB:      90,
		OCVTest:        0xD5A0,
		TCoHot:         -275,
		TCoCold:        -2250,
	}
	for i := range m.Table {
		m.Table[i] = byte(i)
	}
	return m
}

func TestVCellConversion(t *testing.T) {
	sim := NewSim(versionRev12)
	sim.SetWord(regVCell, 0x1000)
	d := New(sim, 0, testModel())

	mv, err := d.VCellMilliVolts()
	if err != nil {
		t.Fatalf("VCellMilliVolts: %v", err)
	}
	if mv != 320 {
		t.Errorf("expected 320 mV, got %d", mv)
	}
}

func TestInternalSOCScaling(t *testing.T) {
	sim := NewSim(versionRev12)
	sim.SetWord(regSOC, 0x3200)

	m := testModel()
	m.Bits = 18
	d := New(sim, 0, m)
	soc, err := d.InternalSOC()
	if err != nil {
		t.Fatalf("InternalSOC: %v", err)
	}
	if soc != 0x32 {
		t.Errorf("18-bit: expected %d, got %d", 0x32, soc)
	}

	m.Bits = 19
	d = New(sim, 0, m)
	soc, err = d.InternalSOC()
	if err != nil {
		t.Fatalf("InternalSOC: %v", err)
	}
	if soc != 0x19 {
		t.Errorf("19-bit: expected %d, got %d", 0x19, soc)
	}
}

func TestOCVMicroVoltsRelockAround(t *testing.T) {
	sim := NewSim(versionRev12)
	sim.SetWord(regOCV, 0xC800)
	d := New(sim, 0, testModel())

	uv, err := d.OCVMicroVolts()
	if err != nil {
		t.Fatalf("OCVMicroVolts: %v", err)
	}
	if uv != 0xC80*1250 {
		t.Errorf("expected %d uV, got %d", 0xC80*1250, uv)
	}
	if sim.Unlocked() {
		t.Error("model memory left unlocked after OCV read")
	}
}

func TestShutdownFence(t *testing.T) {
	sim := NewSim(versionRev12)
	d := New(sim, 0, testModel())

	d.Fence()

	_, err := d.VCellMilliVolts()
	if !errors.Is(err, errcode.NotReady) {
		t.Errorf("expected not_ready after fence, got %v", err)
	}
	if err := d.EnterHibernate(); !errors.Is(err, errcode.NotReady) {
		t.Errorf("expected not_ready on write after fence, got %v", err)
	}
}

func TestProbeVersion(t *testing.T) {
	for _, v := range []uint16{versionRev11, versionRev12} {
		d := New(NewSim(v), 0, testModel())
		if err := d.ProbeVersion(); err != nil {
			t.Errorf("version 0x%02X: unexpected error %v", v, err)
		}
	}

	d := New(NewSim(0x10), 0, testModel())
	err := d.ProbeVersion()
	if !errors.Is(err, errcode.VersionMismatch) {
		t.Errorf("expected version_mismatch for 0x10, got %v", err)
	}
}

func TestCompensatedRCOMPClamp(t *testing.T) {
	d := New(NewSim(versionRev12), 0, testModel())

	cases := []struct {
		tempMilliC int64
		want       int
	}{
		{20_000, 0x5A}, // pivot: base value untouched
		{500_000, 0},   // hot coefficient is negative, drives toward zero
		{-900_000, 255},
	}
	for _, c := range cases {
		if got := d.CompensatedRCOMP(c.tempMilliC); got != c.want {
			t.Errorf("temp %d: expected rcomp %d, got %d", c.tempMilliC, c.want, got)
		}
	}
}

func TestUpdateRCOMPPreservesConfigLowByte(t *testing.T) {
	sim := NewSim(versionRev12)
	sim.SetWord(regConfig, 0x5A1C)
	d := New(sim, 0, testModel())

	if err := d.UpdateRCOMP(-10_000); err != nil {
		t.Fatalf("UpdateRCOMP: %v", err)
	}
	got := sim.Word(regConfig)
	if got&0x00FF != 0x001C {
		t.Errorf("config low byte clobbered: 0x%04X", got)
	}
	if got>>8 == 0x5A {
		t.Error("rcomp byte not updated for cold battery")
	}
}

func TestMuteAndRestoreVoltageAlert(t *testing.T) {
	sim := NewSim(versionRev12)
	m := testModel()
	d := New(sim, 0, m)

	if err := d.RestoreVoltageAlert(); err != nil {
		t.Fatalf("RestoreVoltageAlert: %v", err)
	}
	if got := sim.Word(regVAlert); got != m.VAlert {
		t.Fatalf("expected VALRT 0x%04X, got 0x%04X", m.VAlert, got)
	}

	if err := d.MuteLowVoltageAlert(); err != nil {
		t.Fatalf("MuteLowVoltageAlert: %v", err)
	}
	got := sim.Word(regVAlert)
	if got&0xFF00 != m.VAlert&0xFF00 {
		t.Errorf("mute clobbered the max byte: 0x%04X", got)
	}
	if got&0x00FF != 0 {
		t.Errorf("mute left the min byte armed: 0x%04X", got)
	}
}

func TestClearAlertPendingPreservesConfig(t *testing.T) {
	sim := NewSim(versionRev12)
	sim.SetWord(regConfig, 0x5A00|configAlertPending|0x1C)
	d := New(sim, 0, testModel())

	if err := d.ClearAlertPending(); err != nil {
		t.Fatalf("ClearAlertPending: %v", err)
	}
	got := sim.Word(regConfig)
	if got&configAlertPending != 0 {
		t.Errorf("ALRT still set: 0x%04X", got)
	}
	if got != 0x5A1C {
		t.Errorf("other config bits disturbed: 0x%04X", got)
	}
}

func TestInitializeProtocol(t *testing.T) {
	sim := NewSim(versionRev12)
	sim.SetWord(regSOC, 0x5000) // high byte 80, inside [70,90]
	m := testModel()
	d := New(sim, 0, m)

	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// Unlock must precede the first table write; the final write locks.
	var unlockIdx, tableIdx = -1, -1
	for i, w := range sim.Writes {
		if w.Reg == regUnlock && unlockIdx == -1 {
			unlockIdx = i
		}
		if w.Reg == regTable && tableIdx == -1 {
			tableIdx = i
		}
	}
	if unlockIdx == -1 || tableIdx == -1 || unlockIdx > tableIdx {
		t.Errorf("table written before unlock (unlock=%d table=%d)", unlockIdx, tableIdx)
	}
	last := sim.Writes[len(sim.Writes)-1]
	if last.Reg != regUnlock || last.Data[0] != 0 || last.Data[1] != 0 {
		t.Errorf("final write is not the lock: reg=0x%02X data=%v", last.Reg, last.Data)
	}
	if sim.Unlocked() {
		t.Error("model memory left unlocked")
	}

	// CONFIG: rcomp in high byte, 19-bit threshold 4 -> 32-8=24.
	if got := sim.Word(regConfig); got != 0x5A00|24 {
		t.Errorf("CONFIG: expected 0x%04X, got 0x%04X", 0x5A00|24, got)
	}
	if got := sim.Word(regVAlert); got != m.VAlert {
		t.Errorf("VALRT: expected 0x%04X, got 0x%04X", m.VAlert, got)
	}
	if got := sim.Word(regVReset); got != m.VReset {
		t.Errorf("VRESET: expected 0x%04X, got 0x%04X", m.VReset, got)
	}
}

func TestInitializeOnePercentAlerts(t *testing.T) {
	sim := NewSim(versionRev12)
	sim.SetWord(regSOC, 0x5000)
	m := testModel()
	m.OnePercentAlerts = 0x40
	d := New(sim, 0, m)

	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := sim.Word(regConfig); got&0x40 == 0 {
		t.Errorf("1%% alert bit missing from CONFIG: 0x%04X", got)
	}
}

func TestInitializeVerifyWindow(t *testing.T) {
	sim := NewSim(versionRev12)
	sim.SetWord(regSOC, 0x2000) // high byte 32, outside [70,90]
	d := New(sim, 0, testModel())

	err := d.Initialize()
	if !errors.Is(err, errcode.ModelVerifyFailed) {
		t.Errorf("expected model_verify_failed, got %v", err)
	}
	if !errors.Is(err, errcode.InitFailed) {
		t.Errorf("expected init_failed wrapper, got %v", err)
	}
}

// lockedBus hides the unlock handshake so OCV always reads the locked
// sentinel.
type lockedBus struct{ *Sim }

func (l lockedBus) Tx(addr uint16, w, r []byte) error {
	if err := l.Sim.Tx(addr, w, r); err != nil {
		return err
	}
	if len(w) == 1 && w[0] == regOCV && len(r) >= 2 {
		r[0], r[1] = 0xFF, 0xFF
	}
	return nil
}

func TestInitializeModelLocked(t *testing.T) {
	d := New(lockedBus{NewSim(versionRev12)}, 0, testModel())

	err := d.Initialize()
	if !errors.Is(err, errcode.ModelLocked) {
		t.Errorf("expected model_locked, got %v", err)
	}
}

func TestRCOMPSegExpansion(t *testing.T) {
	sim := NewSim(versionRev12)
	sim.SetWord(regSOC, 0x5000)
	d := New(sim, 0, testModel())

	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var seg1 []byte
	for _, w := range sim.Writes {
		if w.Reg == regRCOMPSeg1 {
			seg1 = w.Data
		}
	}
	if len(seg1) != 16 {
		t.Fatalf("expected 16-byte segment write, got %d", len(seg1))
	}
	for i := 0; i < 16; i += 2 {
		if seg1[i] != 0x00 || seg1[i+1] != 0x80 {
			t.Fatalf("segment pattern wrong at %d: % X", i, seg1)
		}
	}
}
