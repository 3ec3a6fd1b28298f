package max17048

import (
	"sync"

	"tinygo.org/x/drivers"

	"fuelgauge-go/errcode"
)

// Transport owns every bus transaction against the chip. The mutex
// covers exactly one transaction; multi-step sequences (model load,
// read-modify-write) deliberately interleave with other callers, so the
// chip's word-at-a-time protocol is the only atomicity unit.
//
// Once Fence is called every future transaction fails fast with
// errcode.NotReady without touching the bus.
type Transport struct {
	mu   sync.Mutex
	i2c  drivers.I2C
	addr uint16
	down bool

	// Fixed buffers to avoid per-call heap allocations.
	w [3]byte
	r [2]byte
}

func NewTransport(i2c drivers.I2C, addr uint16) *Transport {
	if addr == 0 {
		addr = AddressDefault
	}
	return &Transport{i2c: i2c, addr: addr}
}

// ReadWord reads a 16-bit register, converting from the chip's
// big-endian order.
func (t *Transport) ReadWord(reg uint8) (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.down {
		return 0, errcode.NotReady
	}
	t.w[0] = reg
	if err := t.i2c.Tx(t.addr, t.w[:1], t.r[:2]); err != nil {
		return 0, &errcode.E{C: errcode.TransportError, Op: "read_word", Reg: reg, Err: err}
	}
	return uint16(t.r[0])<<8 | uint16(t.r[1]), nil
}

// WriteWord writes a 16-bit register in the chip's big-endian order.
func (t *Transport) WriteWord(reg uint8, val uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.down {
		return errcode.NotReady
	}
	t.w[0] = reg
	t.w[1] = byte(val >> 8)
	t.w[2] = byte(val)
	if err := t.i2c.Tx(t.addr, t.w[:3], nil); err != nil {
		return &errcode.E{C: errcode.TransportError, Op: "write_word", Reg: reg, Err: err}
	}
	return nil
}

// WriteBlock writes raw bytes starting at reg; the caller supplies them
// already in chip order.
func (t *Transport) WriteBlock(reg uint8, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.down {
		return errcode.NotReady
	}
	buf := make([]byte, 1+len(data))
	buf[0] = reg
	copy(buf[1:], data)
	if err := t.i2c.Tx(t.addr, buf, nil); err != nil {
		return &errcode.E{C: errcode.TransportError, Op: "write_block", Reg: reg, Err: err}
	}
	return nil
}

// Fence raises the shutdown fence. In-flight transactions finish; every
// later call returns NotReady. There is no way to lower the fence.
func (t *Transport) Fence() {
	t.mu.Lock()
	t.down = true
	t.mu.Unlock()
}
