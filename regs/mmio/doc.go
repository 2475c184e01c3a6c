// Package mmio maps a controller's physical register window from
// /dev/mem so the engine can drive real hardware from user space.
// Only Linux is supported; [Open] fails with pkg.ErrNotSupported elsewhere.
package mmio
