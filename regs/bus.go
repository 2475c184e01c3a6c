package regs

import (
	"encoding/binary"
	"fmt"
)

// Bus is the register window of one controller instance. Offsets are byte
// offsets from the start of the window.
type Bus interface {
	Read8(off uint32) uint8
	Read16(off uint32) uint16
	Read32(off uint32) uint32
	Write8(off uint32, v uint8)
	Write16(off uint32, v uint16)
	Write32(off uint32, v uint32)
}

// Memory is a Bus backed by plain memory. It has no side effects: status
// bits are not write-1-to-clear and nothing latches.
type Memory struct {
	mem []byte
}

// NewMemory returns a zeroed memory bus covering size bytes.
func NewMemory(size int) *Memory {
	return &Memory{mem: make([]byte, size)}
}

func (m *Memory) check(off uint32, n int) {
	if int(off)+n > len(m.mem) {
		panic(fmt.Sprintf("regs: access 0x%04X+%d outside %d-byte window", off, n, len(m.mem)))
	}
}

func (m *Memory) Read8(off uint32) uint8 {
	m.check(off, 1)
	return m.mem[off]
}

func (m *Memory) Read16(off uint32) uint16 {
	m.check(off, 2)
	return binary.LittleEndian.Uint16(m.mem[off:])
}

func (m *Memory) Read32(off uint32) uint32 {
	m.check(off, 4)
	return binary.LittleEndian.Uint32(m.mem[off:])
}

func (m *Memory) Write8(off uint32, v uint8) {
	m.check(off, 1)
	m.mem[off] = v
}

func (m *Memory) Write16(off uint32, v uint16) {
	m.check(off, 2)
	binary.LittleEndian.PutUint16(m.mem[off:], v)
}

func (m *Memory) Write32(off uint32, v uint32) {
	m.check(off, 4)
	binary.LittleEndian.PutUint32(m.mem[off:], v)
}
