//go:build !linux

package mmio

import (
	"fmt"

	"github.com/ardnew/usbf/pkg"
)

// Bus is unavailable on this platform.
type Bus struct{}

// Open always fails outside Linux.
func Open(base int64, size int) (*Bus, error) {
	return nil, fmt.Errorf("mmio: %w", pkg.ErrNotSupported)
}

func (b *Bus) Close() error           { return nil }
func (b *Bus) Read8(uint32) uint8     { return 0 }
func (b *Bus) Read16(uint32) uint16   { return 0 }
func (b *Bus) Read32(uint32) uint32   { return 0 }
func (b *Bus) Write8(uint32, uint8)   {}
func (b *Bus) Write16(uint32, uint16) {}
func (b *Bus) Write32(uint32, uint32) {}
