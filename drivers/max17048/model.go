package max17048

import (
	"time"

	"fuelgauge-go/errcode"
	"fuelgauge-go/x/mathx"
)

// Model is the vendor characterization of one battery: the 64-byte
// discharge table plus the tunables that surround it. It is immutable
// once handed to New; the configuration layer is responsible for unit
// scaling (voltage LSBs, negated coefficients) before it gets here.
type Model struct {
	Bits             int    // SOC precision: 18 or 19
	AlertThreshold   int    // empty-alert threshold, percent
	OnePercentAlerts uint16 // 0x40 when 1% SOC-change alerts are enabled, else 0
	VAlert           uint16 // packed max(high)/min(low) bytes, 20 mV LSB
	VReset           uint16 // packed threshold + disable bit, 40 mV LSB
	Hibernate        uint16 // packed enter(high)/exit(low) thresholds
	RCOMP            int    // base compensation byte
	RCOMPSeg         uint16 // segment word duplicated across both table regions
	SOCCheckA        int    // verification window, inclusive lower bound
	SOCCheckB        int    // verification window, inclusive upper bound
	OCVTest          uint16
	TCoHot           int64 // ppm-style scaling, typically negative
	TCoCold          int64
	Table            [64]byte
}

// Post-load settle; the datasheet allows 150-600 ms.
const settleDelay = 200 * time.Millisecond

// loadModel runs the one-shot unlock->write->verify->lock protocol that
// installs the characterization table in chip RAM. The caller must have
// unlocked model memory already. Every step short-circuits; there is no
// retry here, a failed attempt is reported whole.
func (d *Device) loadModel() error {
	// The original OCV is restored at the end; reading it also proves
	// the unlock took effect.
	ocv, err := d.tr.ReadWord(regOCV)
	if err != nil {
		return err
	}
	if ocv == ocvLockedSentinel {
		return &errcode.E{C: errcode.ModelLocked, Op: "load_model", Reg: regOCV}
	}

	// Characterization table, four 16-byte blocks.
	for i := 0; i < 4; i++ {
		if err := d.tr.WriteBlock(uint8(regTable+i*16), d.model.Table[i*16:(i+1)*16]); err != nil {
			return err
		}
	}

	if err := d.tr.WriteWord(regOCV, d.model.OCVTest); err != nil {
		return err
	}

	if err := d.writeRCOMPSeg(d.model.RCOMPSeg); err != nil {
		return err
	}

	// Disable hibernate while the model settles.
	if err := d.tr.WriteWord(regHibernate, 0x0000); err != nil {
		return err
	}

	// Lock model access and let the chip run the test OCV.
	if err := d.tr.WriteWord(regUnlock, 0x0000); err != nil {
		return err
	}
	time.Sleep(settleDelay)

	// The SOC high byte must land inside the acceptance window.
	soc, err := d.tr.ReadWord(regSOC)
	if err != nil {
		return err
	}
	if !mathx.Between(int(soc>>8), d.model.SOCCheckA, d.model.SOCCheckB) {
		return &errcode.E{C: errcode.ModelVerifyFailed, Op: "load_model", Reg: regSOC}
	}

	// Unlock again and put the real OCV back.
	if err := d.tr.WriteWord(regUnlock, unlockValue); err != nil {
		return err
	}
	return d.tr.WriteWord(regOCV, ocv)
}

// writeRCOMPSeg expands the 16-bit segment word into the 32-byte
// duplicated pattern the chip expects: high byte at even offsets, low
// byte at odd, written to both table regions.
func (d *Device) writeRCOMPSeg(seg uint16) error {
	var buf [16]byte
	for i := 0; i < 16; i += 2 {
		buf[i] = byte(seg >> 8)
		buf[i+1] = byte(seg)
	}
	if err := d.tr.WriteBlock(regRCOMPSeg1, buf[:]); err != nil {
		return err
	}
	return d.tr.WriteBlock(regRCOMPSeg2, buf[:])
}

// Initialize unlocks model memory, installs the battery model, then
// programs the alert configuration, voltage alert and voltage reset
// registers. Fatal on any error: the chip is left uninitialized and the
// caller decides whether to attempt a fresh initialization.
func (d *Device) Initialize() error {
	if err := d.tr.WriteWord(regUnlock, unlockValue); err != nil {
		return &errcode.E{C: errcode.InitFailed, Op: "unlock", Reg: regUnlock, Err: err}
	}

	if err := d.loadModel(); err != nil {
		return &errcode.E{C: errcode.InitFailed, Op: "load_model", Err: err}
	}

	// Empty-alert threshold; the 19-bit part counts half-percent steps.
	var config uint16
	switch d.model.Bits {
	case 19:
		config = uint16(32 - d.model.AlertThreshold*2)
	case 18:
		config = uint16(32 - d.model.AlertThreshold)
	}
	config |= d.model.OnePercentAlerts

	if err := d.tr.WriteWord(regConfig, uint16(d.model.RCOMP)<<8|config); err != nil {
		return &errcode.E{C: errcode.InitFailed, Op: "write_config", Reg: regConfig, Err: err}
	}

	if err := d.tr.WriteWord(regVAlert, d.model.VAlert); err != nil {
		return &errcode.E{C: errcode.InitFailed, Op: "write_valert", Reg: regVAlert, Err: err}
	}
	if err := d.tr.WriteWord(regVReset, d.model.VReset); err != nil {
		return &errcode.E{C: errcode.InitFailed, Op: "write_vreset", Reg: regVReset, Err: err}
	}

	if err := d.tr.WriteWord(regUnlock, 0x0000); err != nil {
		return &errcode.E{C: errcode.InitFailed, Op: "lock", Reg: regUnlock, Err: err}
	}
	time.Sleep(settleDelay)
	return nil
}
