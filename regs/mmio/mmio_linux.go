//go:build linux

package mmio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ardnew/usbf/pkg"
)

// DevMem is the physical memory device mapped by Open.
const DevMem = "/dev/mem"

// Bus is a register window mapped from physical memory.
type Bus struct {
	mem  []byte
	base int64
}

// Open maps size bytes of physical memory starting at base. base must be
// page aligned.
func Open(base int64, size int) (*Bus, error) {
	if size <= 0 || base%int64(os.Getpagesize()) != 0 {
		return nil, fmt.Errorf("mmio: base 0x%X size %d: %w", base, size, pkg.ErrInvalidParameter)
	}
	fd, err := unix.Open(DevMem, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open %s: %w", DevMem, err)
	}
	defer unix.Close(fd)

	mem, err := unix.Mmap(fd, base, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmio: map 0x%X: %w", base, err)
	}
	pkg.LogInfo(pkg.ComponentRegs, "mapped register window", "base", base, "size", size)
	return &Bus{mem: mem, base: base}, nil
}

// Close unmaps the window. The Bus must not be used afterwards.
func (b *Bus) Close() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}

func (b *Bus) ptr(off uint32, n uint32) unsafe.Pointer {
	if int(off+n) > len(b.mem) || off%n != 0 {
		panic(fmt.Sprintf("mmio: bad access 0x%04X/%d", off, n))
	}
	return unsafe.Pointer(&b.mem[off])
}

func (b *Bus) Read8(off uint32) uint8 { return *(*uint8)(b.ptr(off, 1)) }

func (b *Bus) Read16(off uint32) uint16 { return *(*uint16)(b.ptr(off, 2)) }

func (b *Bus) Read32(off uint32) uint32 {
	return atomic.LoadUint32((*uint32)(b.ptr(off, 4)))
}

func (b *Bus) Write8(off uint32, v uint8) { *(*uint8)(b.ptr(off, 1)) = v }

func (b *Bus) Write16(off uint32, v uint16) { *(*uint16)(b.ptr(off, 2)) = v }

func (b *Bus) Write32(off uint32, v uint32) {
	atomic.StoreUint32((*uint32)(b.ptr(off, 4)), v)
}
