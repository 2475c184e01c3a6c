package sim

import (
	"encoding/binary"
	"errors"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
)

// Options configures a simulated controller.
type Options struct {
	// HighSpeed is the speed reported after reset.
	HighSpeed bool

	// VBus is the initial VBUS level.
	VBus bool

	// EP0MaxPacket splits host OUT data in Control. Defaults to 64.
	EP0MaxPacket int

	// MaxDeliveries bounds how often the interrupt routine is re-entered
	// for one host event while the line stays asserted. Defaults to 8.
	MaxDeliveries int
}

// epRegs locates the registers and bits of one endpoint.
type epRegs struct {
	control, status, intEna, length uint32
	read, write                     uint32

	dend, dw, bclr, stall, selfClear uint32
	dwShift                          uint

	inEmpty, inFull, outEmpty, outFull uint32
	outNull, outInt, inInt             uint32
	events                             uint32
}

type fifo struct {
	in  []byte // words written since the last commit
	out []byte // unread OUT payload
}

// Sim is a register-level model of the USBF controller and a scriptable
// host. It implements regs.Bus and the controller's interrupt mask.
//
// A Sim is not safe for concurrent use. Host events run the attached
// interrupt routine synchronously, the way a CPU takes an interrupt.
type Sim struct {
	opts Options
	reg  [regs.WindowSize / 4]uint32

	latched uint32 // bus causes of USB_INT_STA
	vbus    bool
	fifos   [regs.MaxEndpoints]fifo
	in      [regs.MaxEndpoints][][]byte
	stalls  [regs.MaxEndpoints]int

	isr    func() error
	inISR  bool
	masked bool
	errs   []error
	events []Event

	// HoldIN keeps committed IN packets in the buffer until DrainIN, so
	// IN_EMPTY stays clear.
	HoldIN bool
	// HoldBufferClear ignores buffer clear requests.
	HoldBufferClear bool
	// HoldPLL keeps the PLL from locking.
	HoldPLL bool
}

// New returns a simulator in its power-on state: controller in reset,
// pull-up off, every buffer empty.
func New(opts Options) *Sim {
	if opts.EP0MaxPacket == 0 {
		opts.EP0MaxPacket = 64
	}
	if opts.MaxDeliveries == 0 {
		opts.MaxDeliveries = 8
	}
	s := &Sim{opts: opts, vbus: opts.VBus}
	s.set(regs.USBControl, regs.CtrlConnectB.Mask())
	if opts.HighSpeed {
		s.set(regs.USBStatus, regs.StatusSpeedMode.Mask())
	}
	s.set(regs.EPCtr, regs.EPCRst.Mask()|regs.PLLRst.Mask())
	if s.vbus {
		s.set(regs.EPCtr, s.get(regs.EPCtr)|regs.VBusLevel.Mask())
	}
	for n := range regs.MaxEndpoints {
		r := s.epRegs(n)
		s.set(r.status, r.inEmpty|r.outEmpty)
	}
	return s
}

func (s *Sim) get(off uint32) uint32    { return s.reg[off/4] }
func (s *Sim) set(off uint32, v uint32) { s.reg[off/4] = v }

func (s *Sim) epRegs(n int) epRegs {
	if n == 0 {
		return epRegs{
			control: regs.EP0Control,
			status:  regs.EP0Status,
			intEna:  regs.EP0IntEna,
			length:  regs.EP0Length,
			read:    regs.EP0Read,
			write:   regs.EP0Write,

			dend:      regs.EP0DEND.Mask(),
			dw:        regs.EP0DW.Mask(),
			dwShift:   regs.EP0DW.Shift(),
			bclr:      regs.EP0BCLR.Mask(),
			stall:     regs.EP0STL.Mask(),
			selfClear: regs.EP0DEND.Mask() | regs.EP0DW.Mask() | regs.EP0BCLR.Mask(),

			inEmpty:  regs.EP0InEmpty.Mask(),
			inFull:   regs.EP0InFull.Mask(),
			outEmpty: regs.EP0OutEmpty.Mask(),
			outNull:  regs.EP0OutNull.Mask(),
			outInt:   regs.EP0OutInt.Mask(),
			inInt:    regs.EP0InInt.Mask(),
			events: regs.EP0SetupInt.Mask() | regs.EP0StgStartInt.Mask() |
				regs.EP0StgEndInt.Mask() | regs.EP0InInt.Mask() |
				regs.EP0OutInt.Mask() | regs.EP0OutNull.Mask(),
		}
	}
	base := regs.EPnOffset(n)
	return epRegs{
		control: base + regs.EPnControl,
		status:  base + regs.EPnStatus,
		intEna:  base + regs.EPnIntEna,
		length:  base + regs.EPnLenDcnt,
		read:    base + regs.EPnRead,
		write:   base + regs.EPnWrite,

		dend:    regs.EPnDEND.Mask(),
		dw:      regs.EPnDW.Mask(),
		dwShift: regs.EPnDW.Shift(),
		bclr:    regs.EPnBCLR.Mask(),
		stall:   regs.EPnISTL.Mask() | regs.EPnOSTL.Mask(),
		selfClear: regs.EPnDEND.Mask() | regs.EPnDW.Mask() | regs.EPnBCLR.Mask() |
			regs.EPnCBCLR.Mask() | regs.EPnIPIDCLR.Mask() | regs.EPnOPIDCLR.Mask(),

		inEmpty:  regs.EPnInEmpty.Mask(),
		inFull:   regs.EPnInFull.Mask(),
		outEmpty: regs.EPnOutEmpty.Mask(),
		outFull:  regs.EPnOutFull.Mask(),
		outNull:  regs.EPnOutNull.Mask(),
		outInt:   regs.EPnOutInt.Mask(),
		inInt:    regs.EPnInInt.Mask(),
		events: regs.EPnInInt.Mask() | regs.EPnInEndInt.Mask() |
			regs.EPnOutNull.Mask() | regs.EPnOutInt.Mask() | regs.EPnOutEndInt.Mask(),
	}
}

// endpointAt maps an EPn register offset to its endpoint and relative
// offset.
func endpointAt(off uint32) (n int, rel uint32, ok bool) {
	if off < regs.EPnBase || off >= regs.EPnOffset(regs.MaxEndpoints) {
		return 0, 0, false
	}
	return int((off-regs.EPnBase)/regs.EPnStride) + 1, (off - regs.EPnBase) % regs.EPnStride, true
}

// Read32 implements regs.Bus. Reads of a data port pop the OUT buffer.
func (s *Sim) Read32(off uint32) uint32 {
	switch off {
	case regs.USBIntSta:
		return s.intStatus()
	case regs.EP0Read:
		return s.pop(0)
	case regs.EP0Length:
		return uint32(len(s.fifos[0].out)) & regs.EP0Len.Mask()
	}
	if n, rel, ok := endpointAt(off); ok {
		switch rel {
		case regs.EPnRead:
			return s.pop(n)
		case regs.EPnLenDcnt:
			return uint32(len(s.fifos[n].out)) & regs.EPnLen.Mask()
		}
	}
	return s.get(off)
}

// Write32 implements regs.Bus with the side effects of the hardware.
// Status registers are write-1-to-clear.
func (s *Sim) Write32(off uint32, v uint32) {
	switch off {
	case regs.USBIntSta:
		s.latched &^= v
		return
	case regs.USBStatus, regs.EP0Read, regs.EP0Length:
		return
	case regs.EP0Control:
		s.writeControl(0, v)
		return
	case regs.EP0Status:
		s.ackStatus(0, v)
		return
	case regs.EP0Write:
		s.push(0, v)
		return
	case regs.AHBBInt:
		s.set(off, s.get(off)&^v)
		return
	case regs.EPCtr:
		s.writeEPCtr(v)
		return
	}
	if n, rel, ok := endpointAt(off); ok {
		switch rel {
		case regs.EPnControl:
			s.writeControl(n, v)
			return
		case regs.EPnStatus:
			s.ackStatus(n, v)
			return
		case regs.EPnWrite:
			s.push(n, v)
			return
		case regs.EPnRead, regs.EPnLenDcnt:
			return
		}
	}
	s.set(off, v)
}

// Read8 and Read16 return register contents without side effects.
func (s *Sim) Read8(off uint32) uint8 { return uint8(s.get(off&^3) >> (8 * (off & 3))) }

func (s *Sim) Read16(off uint32) uint16 { return uint16(s.get(off&^3) >> (8 * (off & 2))) }

// Write8 and Write16 merge into the containing word and write it back
// with Write32 side effects.
func (s *Sim) Write8(off uint32, v uint8) {
	shift := 8 * (off & 3)
	s.Write32(off&^3, s.get(off&^3)&^(0xFF<<shift)|uint32(v)<<shift)
}

func (s *Sim) Write16(off uint32, v uint16) {
	shift := 8 * (off & 2)
	s.Write32(off&^3, s.get(off&^3)&^(0xFFFF<<shift)|uint32(v)<<shift)
}

func (s *Sim) intStatus() uint32 {
	st := s.latched
	for n := range regs.MaxEndpoints {
		r := s.epRegs(n)
		if s.get(r.status)&s.get(r.intEna)&r.events != 0 {
			st |= regs.EPIntBit(n)
		}
	}
	return st
}

func (s *Sim) writeControl(n int, v uint32) {
	r := s.epRegs(n)
	old := s.get(r.control)

	if v&r.bclr != 0 && !s.HoldBufferClear {
		s.fifos[n] = fifo{}
		st := s.get(r.status)
		st &^= r.inFull | r.outFull | r.outNull
		s.set(r.status, st|r.inEmpty|r.outEmpty)
	}
	if stl := v & r.stall &^ old; stl != 0 {
		s.stalls[n]++
		s.log(EventStall, n, nil, "")
	}
	if v&r.dend != 0 {
		s.commit(n, r, (v&r.dw)>>r.dwShift)
	}
	s.set(r.control, v&^r.selfClear)
}

// commit moves the written words to the host as one IN packet. dw is the
// number of valid bytes in the last word, 0 meaning all four.
func (s *Sim) commit(n int, r epRegs, dw uint32) {
	data := s.fifos[n].in
	if dw != 0 && len(data) >= 4 {
		data = data[:len(data)-4+int(dw)]
	}
	s.fifos[n].in = nil
	s.in[n] = append(s.in[n], append([]byte{}, data...))
	s.log(EventIn, n, data, "")

	st := s.get(r.status)
	if s.HoldIN {
		st = st&^r.inEmpty | r.inFull
	} else {
		st = st&^r.inFull | r.inEmpty
	}
	s.set(r.status, st)
}

func (s *Sim) push(n int, v uint32) {
	r := s.epRegs(n)
	s.fifos[n].in = binary.LittleEndian.AppendUint32(s.fifos[n].in, v)
	s.set(r.status, s.get(r.status)&^r.inEmpty)
}

func (s *Sim) pop(n int) uint32 {
	r := s.epRegs(n)
	f := &s.fifos[n]
	var word [4]byte
	k := copy(word[:], f.out)
	f.out = f.out[k:]
	if len(f.out) == 0 {
		s.set(r.status, s.get(r.status)&^r.outFull|r.outEmpty)
	}
	return binary.LittleEndian.Uint32(word[:])
}

func (s *Sim) ackStatus(n int, v uint32) {
	r := s.epRegs(n)
	s.set(r.status, s.get(r.status)&^(v&r.events))
}

func (s *Sim) writeEPCtr(v uint32) {
	v &^= regs.PLLLock.Mask() | regs.VBusLevel.Mask()
	if v&regs.PLLRst.Mask() == 0 && !s.HoldPLL {
		v |= regs.PLLLock.Mask()
	}
	if s.vbus {
		v |= regs.VBusLevel.Mask()
	}
	s.set(regs.EPCtr, v)
}

// pending reports whether the interrupt line is asserted.
func (s *Sim) pending() bool {
	if s.get(regs.AHBBInt)&s.get(regs.AHBBIntEna)&regs.VBusInt.Mask() != 0 {
		return true
	}
	if s.get(regs.EPCtr)&regs.EPCRst.Mask() != 0 {
		return false
	}
	return s.intStatus()&s.get(regs.USBIntEna) != 0
}

// Attach installs the interrupt service routine, typically
// (*udc.Controller).HandleInterrupts.
func (s *Sim) Attach(isr func() error) { s.isr = isr }

// Disable masks interrupt delivery and reports whether it was unmasked.
func (s *Sim) Disable() bool {
	was := !s.masked
	s.masked = true
	return was
}

// Enable unmasks interrupt delivery and services anything pending.
func (s *Sim) Enable() {
	s.masked = false
	_ = s.deliver()
}

// deliver runs the interrupt routine while the line is asserted.
func (s *Sim) deliver() error {
	if s.isr == nil || s.inISR || s.masked {
		return nil
	}
	var errs []error
	for i := 0; i < s.opts.MaxDeliveries && s.pending(); i++ {
		s.inISR = true
		err := s.isr()
		s.inISR = false
		if err != nil {
			pkg.LogDebug(pkg.ComponentSim, "interrupt routine failed", "error", err)
			s.errs = append(s.errs, err)
			s.log(EventError, 0, nil, err.Error())
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Errors returns every error the interrupt routine reported.
func (s *Sim) Errors() []error { return append([]error(nil), s.errs...) }
