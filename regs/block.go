package regs

import (
	"fmt"

	"github.com/ardnew/usbf/pkg"
)

// DefaultRetries is the iteration ceiling of hardware handshakes.
const DefaultRetries = 100000

// Block is a register group at a fixed base within a Bus: the top-level
// registers (base 0) or one EPn block.
type Block struct {
	Bus  Bus
	Base uint32
}

// Top returns the block holding the top-level, EP0 and system registers.
func Top(bus Bus) Block { return Block{Bus: bus} }

// EPn returns the register block of endpoint n >= 1.
func EPn(bus Bus, n int) Block { return Block{Bus: bus, Base: EPnOffset(n)} }

// Read returns the register at reg.
func (b Block) Read(reg uint32) uint32 {
	return b.Bus.Read32(b.Base + reg)
}

// Write stores v in the register at reg.
func (b Block) Write(reg, v uint32) {
	pkg.LogTrace(pkg.ComponentRegs, "write", "offset", b.Base+reg, "value", v)
	b.Bus.Write32(b.Base+reg, v)
}

// Get returns the value of field f.
func (b Block) Get(f Field) uint32 {
	return (b.Read(f.Reg()) & f.Mask()) >> f.Shift()
}

// IsSet reports whether any bit of f is set.
func (b Block) IsSet(f Field) bool {
	return b.Read(f.Reg())&f.Mask() != 0
}

// Set sets every bit of f with a read-modify-write.
func (b Block) Set(f Field) {
	b.Write(f.Reg(), b.Read(f.Reg())|f.Mask())
}

// Clear clears every bit of f with a read-modify-write.
func (b Block) Clear(f Field) {
	b.Write(f.Reg(), b.Read(f.Reg())&^f.Mask())
}

// SetN replaces the value of f with v.
func (b Block) SetN(f Field, v uint32) {
	b.Write(f.Reg(), b.Read(f.Reg())&^f.Mask()|f.Bits(v))
}

// Ack clears the status bits of f by writing them back as ones. Other
// bits of the register are written as zero and stay untouched.
func (b Block) Ack(f Field) {
	b.Write(f.Reg(), f.Mask())
}

// Poll evaluates cond up to attempts times and returns nil as soon as it
// holds. It returns an error wrapping pkg.ErrTimeout otherwise.
func Poll(attempts int, cond func() bool) error {
	for i := 0; i < attempts; i++ {
		if cond() {
			return nil
		}
	}
	return fmt.Errorf("condition not met after %d attempts: %w", attempts, pkg.ErrTimeout)
}

// PollField waits until every bit of f reads as set.
func (b Block) PollField(attempts int, f Field) error {
	if err := Poll(attempts, func() bool {
		return b.Read(f.Reg())&f.Mask() == f.Mask()
	}); err != nil {
		return fmt.Errorf("%s: %w", f, err)
	}
	return nil
}
