package regs

// Field is a symbolic register field. Its location is resolved through
// an explicit table rather than bit-field layout.
type Field uint8

type fieldDesc struct {
	name  string
	reg   uint32 // offset, relative to the Block base
	shift uint8
	width uint8
}

// USB_CONTROL.
const (
	CtrlPUE2 Field = iota
	CtrlConnectB
	CtrlDefault
	CtrlConf
	CtrlSuspend
	CtrlRsumIn
	CtrlSOFRcv
	CtrlForceFS
	CtrlIntSel
	CtrlSOFClkMode

	// USB_STATUS
	StatusSpeedMode

	// USB_ADDRESS
	Address

	// USB_INT_STA
	IntRsum
	IntSpnd
	IntUSBRst
	IntSOF
	IntSpeedMode
	IntEP

	// USB_INT_ENA
	IntEnRsum
	IntEnSpnd
	IntEnUSBRst
	IntEnSOF
	IntEnSpeedMode
	IntEnEP

	// EP0_CONTROL
	EP0ONAK
	EP0INAK
	EP0STL
	EP0INAKEn
	EP0DW
	EP0DEND
	EP0BCLR

	// EP0_STATUS
	EP0SetupInt
	EP0StgStartInt
	EP0StgEndInt
	EP0InInt
	EP0OutInt
	EP0InEmpty
	EP0InFull
	EP0OutEmpty
	EP0OutNull

	// EP0_INT_ENA
	EP0SetupEn
	EP0StgStartEn
	EP0StgEndEn
	EP0InEn
	EP0OutEn

	// EP0_LENGTH
	EP0Len

	// EPn_CONTROL, relative to the EPn block
	EPnONAK
	EPnOSTL
	EPnISTL
	EPnDW
	EPnDEND
	EPnCBCLR
	EPnBCLR
	EPnOPIDCLR
	EPnIPIDCLR
	EPnMode
	EPnDir0
	EPnEN

	// EPn_STATUS
	EPnInEmpty
	EPnInFull
	EPnInInt
	EPnInEndInt
	EPnOutEmpty
	EPnOutFull
	EPnOutNull
	EPnOutInt
	EPnOutEndInt

	// EPn_INT_ENA
	EPnInEn
	EPnInEndEn
	EPnOutNullEn
	EPnOutEn
	EPnOutEndEn

	// EPn_PCKT_ADRS and EPn_LEN_DCNT
	EPnMaxPacket
	EPnLen

	// AHB bridge / EPC system registers
	WBurstType
	VBusInt
	VBusIntEn
	EPCRst
	PLLRst
	PLLLock
	VBusLevel

	numFields
)

// EPnMode values.
const (
	ModeBulk      = 0
	ModeInterrupt = 1
	ModeIso       = 2
)

var fields = [numFields]fieldDesc{
	CtrlPUE2:       {"PUE2", USBControl, 2, 1},
	CtrlConnectB:   {"CONNECTB", USBControl, 3, 1},
	CtrlDefault:    {"DEFAULT", USBControl, 4, 1},
	CtrlConf:       {"CONF", USBControl, 5, 1},
	CtrlSuspend:    {"SUSPEND", USBControl, 6, 1},
	CtrlRsumIn:     {"RSUM_IN", USBControl, 7, 1},
	CtrlSOFRcv:     {"SOF_RCV", USBControl, 8, 1},
	CtrlForceFS:    {"FORCEFS", USBControl, 9, 1},
	CtrlIntSel:     {"INT_SEL", USBControl, 10, 1},
	CtrlSOFClkMode: {"SOF_CLK_MODE", USBControl, 11, 1},

	StatusSpeedMode: {"SPEED_MODE", USBStatus, 6, 1},

	Address: {"USB_ADDR", USBAddress, 16, 7},

	IntRsum:      {"RSUM_INT", USBIntSta, 1, 1},
	IntSpnd:      {"SPND_INT", USBIntSta, 2, 1},
	IntUSBRst:    {"USB_RST_INT", USBIntSta, 3, 1},
	IntSOF:       {"SOF_INT", USBIntSta, 4, 1},
	IntSpeedMode: {"SPEED_MODE_INT", USBIntSta, 6, 1},
	IntEP:        {"EP_INT", USBIntSta, 8, MaxEndpoints},

	IntEnRsum:      {"RSUM_EN", USBIntEna, 1, 1},
	IntEnSpnd:      {"SPND_EN", USBIntEna, 2, 1},
	IntEnUSBRst:    {"USB_RST_EN", USBIntEna, 3, 1},
	IntEnSOF:       {"SOF_EN", USBIntEna, 4, 1},
	IntEnSpeedMode: {"SPEED_MODE_EN", USBIntEna, 6, 1},
	IntEnEP:        {"EP_EN", USBIntEna, 8, MaxEndpoints},

	EP0ONAK:   {"EP0_ONAK", EP0Control, 0, 1},
	EP0INAK:   {"EP0_INAK", EP0Control, 1, 1},
	EP0STL:    {"EP0_STL", EP0Control, 2, 1},
	EP0INAKEn: {"EP0_INAK_EN", EP0Control, 4, 1},
	EP0DW:     {"EP0_DW", EP0Control, 5, 2},
	EP0DEND:   {"EP0_DEND", EP0Control, 7, 1},
	EP0BCLR:   {"EP0_BCLR", EP0Control, 8, 1},

	EP0SetupInt:    {"EP0_SETUP_INT", EP0Status, 0, 1},
	EP0StgStartInt: {"EP0_STG_START_INT", EP0Status, 1, 1},
	EP0StgEndInt:   {"EP0_STG_END_INT", EP0Status, 2, 1},
	EP0InInt:       {"EP0_IN_INT", EP0Status, 4, 1},
	EP0OutInt:      {"EP0_OUT_INT", EP0Status, 5, 1},
	EP0InEmpty:     {"EP0_IN_EMPTY", EP0Status, 8, 1},
	EP0InFull:      {"EP0_IN_FULL", EP0Status, 9, 1},
	EP0OutEmpty:    {"EP0_OUT_EMPTY", EP0Status, 12, 1},
	EP0OutNull:     {"EP0_OUT_NULL", EP0Status, 14, 1},

	EP0SetupEn:    {"EP0_SETUP_EN", EP0IntEna, 0, 1},
	EP0StgStartEn: {"EP0_STG_START_EN", EP0IntEna, 1, 1},
	EP0StgEndEn:   {"EP0_STG_END_EN", EP0IntEna, 2, 1},
	EP0InEn:       {"EP0_IN_EN", EP0IntEna, 4, 1},
	EP0OutEn:      {"EP0_OUT_EN", EP0IntEna, 5, 1},

	EP0Len: {"EP0_LDATA", EP0Length, 0, 11},

	EPnONAK:    {"EPN_ONAK", EPnControl, 0, 1},
	EPnOSTL:    {"EPN_OSTL", EPnControl, 2, 1},
	EPnISTL:    {"EPN_ISTL", EPnControl, 3, 1},
	EPnDW:      {"EPN_DW", EPnControl, 5, 2},
	EPnDEND:    {"EPN_DEND", EPnControl, 7, 1},
	EPnCBCLR:   {"EPN_CBCLR", EPnControl, 8, 1},
	EPnBCLR:    {"EPN_BCLR", EPnControl, 9, 1},
	EPnOPIDCLR: {"EPN_OPIDCLR", EPnControl, 10, 1},
	EPnIPIDCLR: {"EPN_IPIDCLR", EPnControl, 11, 1},
	EPnMode:    {"EPN_MODE", EPnControl, 24, 2},
	EPnDir0:    {"EPN_DIR0", EPnControl, 26, 1},
	EPnEN:      {"EPN_EN", EPnControl, 31, 1},

	EPnInEmpty:   {"EPN_IN_EMPTY", EPnStatus, 0, 1},
	EPnInFull:    {"EPN_IN_FULL", EPnStatus, 1, 1},
	EPnInInt:     {"EPN_IN_INT", EPnStatus, 3, 1},
	EPnInEndInt:  {"EPN_IN_END_INT", EPnStatus, 7, 1},
	EPnOutEmpty:  {"EPN_OUT_EMPTY", EPnStatus, 16, 1},
	EPnOutFull:   {"EPN_OUT_FULL", EPnStatus, 17, 1},
	EPnOutNull:   {"EPN_OUT_NULL_INT", EPnStatus, 18, 1},
	EPnOutInt:    {"EPN_OUT_INT", EPnStatus, 19, 1},
	EPnOutEndInt: {"EPN_OUT_END_INT", EPnStatus, 23, 1},

	EPnInEn:      {"EPN_IN_EN", EPnIntEna, 3, 1},
	EPnInEndEn:   {"EPN_IN_END_EN", EPnIntEna, 7, 1},
	EPnOutNullEn: {"EPN_OUT_NULL_EN", EPnIntEna, 18, 1},
	EPnOutEn:     {"EPN_OUT_EN", EPnIntEna, 19, 1},
	EPnOutEndEn:  {"EPN_OUT_END_EN", EPnIntEna, 23, 1},

	EPnMaxPacket: {"EPN_MPKT", EPnPcktAdrs, 0, 11},
	EPnLen:       {"EPN_LDATA", EPnLenDcnt, 0, 11},

	WBurstType: {"WBURST_TYPE", AHBMCtr, 2, 1},
	VBusInt:    {"VBUS_INT", AHBBInt, 13, 1},
	VBusIntEn:  {"VBUS_INTEN", AHBBIntEna, 13, 1},
	EPCRst:     {"EPC_RST", EPCtr, 0, 1},
	PLLRst:     {"PLL_RST", EPCtr, 2, 1},
	PLLLock:    {"PLL_LOCK", EPCtr, 4, 1},
	VBusLevel:  {"VBUS_LEVEL", EPCtr, 8, 1},
}

// Reg returns the register offset of f relative to its block.
func (f Field) Reg() uint32 { return fields[f].reg }

// Shift returns the bit position of the field's least significant bit.
func (f Field) Shift() uint { return uint(fields[f].shift) }

// Width returns the field width in bits.
func (f Field) Width() uint { return uint(fields[f].width) }

// Mask returns the in-register mask of f.
func (f Field) Mask() uint32 {
	return (uint32(1)<<f.Width() - 1) << f.Shift()
}

// Bits returns v positioned in the field, truncated to its width.
func (f Field) Bits(v uint32) uint32 {
	return (v << f.Shift()) & f.Mask()
}

// String returns the hardware name of the field.
func (f Field) String() string {
	if f >= numFields {
		return "INVALID"
	}
	return fields[f].name
}
