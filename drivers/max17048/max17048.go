// Package max17048 drives the MAX17048/49 lithium-ion fuel gauge over a
// register-oriented serial bus.
//
// Design notes (datasheet references):
// • 16-bit register file, big-endian word order, converted in Transport.
// • Model memory is code-locked; the characterization table is written
//   through a one-shot unlock→write→verify→lock protocol.
// • RCOMP (CONFIG high byte) is temperature compensated from host-side
//   temperature readings; the chip has no thermistor input of its own.
// • STATUS latches alert causes; CONFIG.ALRT holds the interrupt line.
package max17048

import (
	"fuelgauge-go/errcode"
	"fuelgauge-go/x/mathx"

	"tinygo.org/x/drivers"
)

type Device struct {
	tr    *Transport
	model Model
}

func New(i2c drivers.I2C, addr uint16, model Model) *Device {
	return &Device{tr: NewTransport(i2c, addr), model: model}
}

// Model returns the installed battery model.
func (d *Device) Model() Model { return d.model }

// Fence raises the transport shutdown fence.
func (d *Device) Fence() { d.tr.Fence() }

// ---------------- Identification ----------------

func (d *Device) Version() (uint16, error) {
	return d.tr.ReadWord(regVersion)
}

// ProbeVersion confirms the attached part reports a supported silicon
// revision. A mismatch means "device absent", not a fault.
func (d *Device) ProbeVersion() error {
	v, err := d.tr.ReadWord(regVersion)
	if err != nil {
		return err
	}
	if v != versionRev11 && v != versionRev12 {
		return &errcode.E{C: errcode.VersionMismatch, Op: "probe_version", Reg: regVersion}
	}
	return nil
}

// ---------------- Telemetry ----------------

// VCellMilliVolts reads the terminal voltage. LSB is 1.25 mV on the
// upper 12 bits.
func (d *Device) VCellMilliVolts() (int, error) {
	raw, err := d.tr.ReadWord(regVCell)
	if err != nil {
		return 0, err
	}
	return int(raw>>4) * 125 / 100, nil
}

// RawSOC reads the unscaled charge-state register.
func (d *Device) RawSOC() (uint16, error) {
	return d.tr.ReadWord(regSOC)
}

// InternalSOC reads the charge state scaled per the model's precision.
// The 18-bit shift is smaller than the 19-bit one; that inversion is the
// part's documented behaviour and is preserved as-is.
func (d *Device) InternalSOC() (int, error) {
	raw, err := d.tr.ReadWord(regSOC)
	if err != nil {
		return 0, err
	}
	return d.scaleSOC(raw), nil
}

func (d *Device) scaleSOC(raw uint16) int {
	if d.model.Bits == 18 {
		return int(raw >> 8)
	}
	return int(raw >> 9)
}

// OCVMicroVolts reads the open-circuit voltage estimate. OCV lives in
// model memory, so the read is bracketed by unlock/lock. LSB is 1.25 mV
// on the upper 12 bits.
func (d *Device) OCVMicroVolts() (int, error) {
	if err := d.tr.WriteWord(regUnlock, unlockValue); err != nil {
		return 0, err
	}
	raw, err := d.tr.ReadWord(regOCV)
	if err != nil {
		return 0, err
	}
	if lockErr := d.tr.WriteWord(regUnlock, 0x0000); lockErr != nil {
		return 0, lockErr
	}
	return int(raw>>4) * 1250, nil
}

// ---------------- Thermal compensation ----------------

// CompensatedRCOMP derives the RCOMP byte for a temperature in
// milli-degrees Celsius. 20 °C is the pivot; the hot and cold
// coefficients scale the excursion in parts per million. Always clamped
// to a single byte.
func (d *Device) CompensatedRCOMP(tempMilliC int64) int {
	const pivot = 20_000
	var delta int64
	switch {
	case tempMilliC > pivot:
		delta = (tempMilliC - pivot) * d.model.TCoHot / 1_000_000
	case tempMilliC < pivot:
		delta = (tempMilliC - pivot) * d.model.TCoCold / 1_000_000
	}
	return int(mathx.Clamp(int64(d.model.RCOMP)+delta, 0, 255))
}

// UpdateRCOMP recomputes the compensation byte and rewrites only the
// CONFIG high byte, preserving the alert configuration below it.
func (d *Device) UpdateRCOMP(tempMilliC int64) error {
	return d.writeRCOMPByte(d.CompensatedRCOMP(tempMilliC))
}

// RestoreDefaultRCOMP puts the model's base byte back; used on shutdown.
func (d *Device) RestoreDefaultRCOMP() error {
	return d.writeRCOMPByte(d.model.RCOMP)
}

func (d *Device) writeRCOMPByte(rcomp int) error {
	val, err := d.tr.ReadWord(regConfig)
	if err != nil {
		return err
	}
	val = val&0x00FF | uint16(rcomp)<<8
	return d.tr.WriteWord(regConfig, val)
}

// ---------------- Hibernate ----------------

// EnterHibernate forces the low-power sampling mode unconditionally.
func (d *Device) EnterHibernate() error {
	return d.tr.WriteWord(regHibernate, hibernateAlways)
}

// ExitHibernate restores the model's enter/exit thresholds.
func (d *Device) ExitHibernate() error {
	return d.tr.WriteWord(regHibernate, d.model.Hibernate)
}

// ---------------- Alert plumbing ----------------

func (d *Device) ReadStatus() (StatusBits, error) {
	v, err := d.tr.ReadWord(regStatus)
	return StatusBits(v), err
}

// ClearStatus drops every latched alert cause.
func (d *Device) ClearStatus() error {
	return d.tr.WriteWord(regStatus, 0x0000)
}

// ClearAlertPending releases the interrupt line by clearing CONFIG.ALRT.
func (d *Device) ClearAlertPending() error {
	val, err := d.tr.ReadWord(regConfig)
	if err != nil {
		return err
	}
	val &^= configAlertPending
	return d.tr.WriteWord(regConfig, val)
}

// SetSOCChangeAlert toggles the model's 1% SOC-change alert bit in
// CONFIG; a no-op when the model does not enable those alerts.
func (d *Device) SetSOCChangeAlert(on bool) error {
	if d.model.OnePercentAlerts == 0 {
		return nil
	}
	val, err := d.tr.ReadWord(regConfig)
	if err != nil {
		return err
	}
	if on {
		val |= d.model.OnePercentAlerts
	} else {
		val &^= d.model.OnePercentAlerts
	}
	return d.tr.WriteWord(regConfig, val)
}

// MuteLowVoltageAlert zeroes the VALRT low byte (the min bound),
// preserving the max bound in the high byte, so an empty battery cannot
// hold the interrupt line down.
func (d *Device) MuteLowVoltageAlert() error {
	return d.tr.WriteWord(regVAlert, d.model.VAlert&0xFF00)
}

// RestoreVoltageAlert undoes MuteLowVoltageAlert.
func (d *Device) RestoreVoltageAlert() error {
	return d.tr.WriteWord(regVAlert, d.model.VAlert)
}
