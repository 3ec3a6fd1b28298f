package max17048

import (
	"errors"
	"sync"
)

// Sim is an in-memory register file standing in for the chip on a real
// bus. It models the behavior the driver depends on: big-endian word
// access, the model-memory unlock handshake, and the OCV read sentinel
// while locked. Used by the daemon's bench mode and by tests.
type Sim struct {
	mu       sync.Mutex
	regs     [256]byte
	unlocked bool

	// Fail injects an error on any access to a register.
	Fail map[uint8]error

	// Writes records every write transaction in order.
	Writes []SimWrite
}

type SimWrite struct {
	Reg  uint8
	Data []byte
}

// NewSim returns a simulator reporting the given silicon revision with a
// plausible idle operating point.
func NewSim(version uint16) *Sim {
	s := &Sim{}
	s.SetWord(regVersion, version)
	s.SetWord(regVCell, 0xC350) // ~3.9 V
	s.SetWord(regSOC, 0x5000)
	s.SetWord(regOCV, 0xC800)
	return s
}

// SetWord stores a register value directly, bypassing bus semantics.
func (s *Sim) SetWord(reg uint8, val uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[reg] = byte(val >> 8)
	s.regs[int(reg)+1] = byte(val)
}

// Word reads a register value directly, bypassing bus semantics.
func (s *Sim) Word(reg uint8) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint16(s.regs[reg])<<8 | uint16(s.regs[int(reg)+1])
}

// Tx implements drivers.I2C: w carries the register address followed by
// any bytes to write; r receives a readback starting at that register.
func (s *Sim) Tx(addr uint16, w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(w) == 0 {
		return errors.New("empty write buffer")
	}
	reg := w[0]
	if err := s.Fail[reg]; err != nil {
		return err
	}

	if len(w) > 1 {
		copy(s.regs[reg:], w[1:])
		s.Writes = append(s.Writes, SimWrite{Reg: reg, Data: append([]byte(nil), w[1:]...)})
		if reg == regUnlock {
			s.unlocked = uint16(w[1])<<8|uint16(w[2]) == unlockValue
		}
	}

	if len(r) > 0 {
		copy(r, s.regs[reg:])
		if reg == regOCV && !s.unlocked {
			r[0], r[1] = 0xFF, 0xFF
		}
	}
	return nil
}

// Unlocked reports whether model memory is currently open.
func (s *Sim) Unlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unlocked
}
