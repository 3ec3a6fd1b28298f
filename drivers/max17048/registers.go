package max17048

// Default 7-bit bus address.
const AddressDefault = 0x36

// Register map (16-bit words, big-endian on the wire).
const (
	regVCell     = 0x02
	regSOC       = 0x04
	regVersion   = 0x08
	regHibernate = 0x0A
	regConfig    = 0x0C
	regOCV       = 0x0E
	regVAlert    = 0x14
	regVReset    = 0x18
	regStatus    = 0x1A
	regUnlock    = 0x3E
	regTable     = 0x40
	regRCOMPSeg1 = 0x80
	regRCOMPSeg2 = 0x90
)

const (
	unlockValue = 0x4A57

	// OCV reads as all-ones while model memory is locked.
	ocvLockedSentinel = 0xFFFF

	// CONFIG low-byte alert bits.
	configAlertPending = 0x0020 // ALRT: alert latched, interrupt asserted

	// HIBRT value forcing hibernate on suspend.
	hibernateAlways = 0xFFFF

	// Supported silicon revisions.
	versionRev11 = 0x11
	versionRev12 = 0x12
)

// StatusBits is the STATUS register bitmask. Several bits may latch at
// once; each is serviced independently.
type StatusBits uint16

const (
	StatusReset         StatusBits = 0x0100 // RI: power-on reset
	StatusVoltageHigh   StatusBits = 0x0200 // VH
	StatusVoltageLow    StatusBits = 0x0400 // VL
	StatusVoltageReset  StatusBits = 0x0800 // VR
	StatusSOCLow        StatusBits = 0x1000 // HD
	StatusSOCChange     StatusBits = 0x2000 // SC: 1% SOC step
	StatusEnVResetAlert StatusBits = 0x4000 // EnVR
)

func (b StatusBits) Has(flag StatusBits) bool { return b&flag != 0 }
