package regs

// USBF register offsets.
const (
	USBControl = 0x000
	USBStatus  = 0x004
	USBAddress = 0x008
	SetupData0 = 0x018
	SetupData1 = 0x01C
	USBIntSta  = 0x020
	USBIntEna  = 0x024

	EP0Control = 0x028
	EP0Status  = 0x02C
	EP0IntEna  = 0x030
	EP0Length  = 0x034
	EP0Read    = 0x038
	EP0Write   = 0x03C

	// Per-endpoint blocks for endpoints 1..n.
	EPnBase   = 0x040
	EPnStride = 0x20

	// AHB bridge and EPC system registers.
	AHBMCtr    = 0x1004
	AHBBInt    = 0x1008
	AHBBIntEna = 0x100C
	EPCtr      = 0x1010

	// WindowSize covers every register above.
	WindowSize = 0x1014
)

// Offsets within an EPn block.
const (
	EPnControl  = 0x00
	EPnStatus   = 0x04
	EPnIntEna   = 0x08
	EPnDMA      = 0x0C
	EPnPcktAdrs = 0x10
	EPnLenDcnt  = 0x14
	EPnRead     = 0x18
	EPnWrite    = 0x1C
)

// MaxEndpoints is the number of endpoints the block decodes, EP0 included.
const MaxEndpoints = 16

// EPnOffset returns the base of the register block for endpoint n >= 1.
func EPnOffset(n int) uint32 {
	return EPnBase + EPnStride*uint32(n-1)
}

// EPIntBit returns the top-level interrupt status/enable bit of endpoint n.
func EPIntBit(n int) uint32 {
	return 1 << (8 + uint(n))
}
