package udc

import (
	"fmt"

	"github.com/emirpasic/gods/lists/doublylinkedlist"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
	"github.com/ardnew/usbf/usb"
)

// packetFields are the registers one endpoint kind moves packets through.
type packetFields struct {
	read, write uint32
	dw          regs.Field
	dend        regs.Field
	bclr        regs.Field
	inEmpty     regs.Field
	outEmpty    regs.Field
	outNull     regs.Field
	length      regs.Field
}

var (
	ep0Fields = packetFields{
		read:     regs.EP0Read,
		write:    regs.EP0Write,
		dw:       regs.EP0DW,
		dend:     regs.EP0DEND,
		bclr:     regs.EP0BCLR,
		inEmpty:  regs.EP0InEmpty,
		outEmpty: regs.EP0OutEmpty,
		outNull:  regs.EP0OutNull,
		length:   regs.EP0Len,
	}
	epnFields = packetFields{
		read:     regs.EPnRead,
		write:    regs.EPnWrite,
		dw:       regs.EPnDW,
		dend:     regs.EPnDEND,
		bclr:     regs.EPnBCLR,
		inEmpty:  regs.EPnInEmpty,
		outEmpty: regs.EPnOutEmpty,
		outNull:  regs.EPnOutNull,
		length:   regs.EPnLen,
	}
)

// Stats counts the packets an endpoint moved.
type Stats struct {
	TxPackets  int // data packets written, ZLPs included
	TxZLPs     int // trailing zero-length packets
	TxBytes    int
	RxPackets  int
	RxBytes    int
	StatusZLPs int // control status stage packets
	Stalls     int
}

// control is the live control transfer context of endpoint 0.
type control struct {
	setup   usb.SetupPacket
	stage   Stage
	outcome Outcome

	status [2]byte
	reply  Request
}

// Endpoint is one hardware endpoint. All endpoints exist for the lifetime
// of the controller; function drivers enable and disable them.
type Endpoint struct {
	c     *Controller
	index int
	kind  Kind
	blk   regs.Block
	fld   *packetFields

	desc      *usb.EndpointDescriptor
	maxPacket int
	enabled   bool
	halted    bool
	in        bool
	polled    bool

	queue *doublylinkedlist.List
	ctl   *control // KindControl only
	stats Stats
}

func newEndpoint(c *Controller, index int) *Endpoint {
	ep := &Endpoint{
		c:     c,
		index: index,
		queue: doublylinkedlist.New(),
	}
	if index == 0 {
		ep.kind = KindControl
		ep.blk = regs.Top(c.bus)
		ep.fld = &ep0Fields
		ep.maxPacket = c.cfg.EP0MaxPacket
		ep.ctl = &control{}
	} else {
		ep.kind = KindGeneric
		ep.blk = regs.EPn(c.bus, index)
		ep.fld = &epnFields
		ep.maxPacket = c.cfg.EPXMaxPacket
	}
	return ep
}

// Index returns the endpoint number.
func (ep *Endpoint) Index() int { return ep.index }

// Kind returns the endpoint behavior.
func (ep *Endpoint) Kind() Kind { return ep.kind }

// Address returns the endpoint address including the direction bit.
func (ep *Endpoint) Address() uint8 {
	if ep.in {
		return uint8(ep.index) | usb.DirIn
	}
	return uint8(ep.index)
}

// Descriptor returns the active descriptor, or nil while disabled.
func (ep *Endpoint) Descriptor() *usb.EndpointDescriptor { return ep.desc }

// MaxPacket returns the packet size used to split transfers.
func (ep *Endpoint) MaxPacket() int { return ep.maxPacket }

// Enabled reports whether the endpoint accepts requests.
func (ep *Endpoint) Enabled() bool { return ep.enabled }

// Halted reports whether the endpoint is halted.
func (ep *Endpoint) Halted() bool { return ep.halted }

// IsIn reports whether the endpoint currently moves data to the host.
func (ep *Endpoint) IsIn() bool { return ep.in }

// Polled reports whether the endpoint is serviced by Controller.Poll
// instead of interrupts.
func (ep *Endpoint) Polled() bool { return ep.polled }

// Pending returns the number of queued requests.
func (ep *Endpoint) Pending() int { return ep.queue.Size() }

// Stats returns the packet counters.
func (ep *Endpoint) Stats() Stats { return ep.stats }

// String returns the endpoint name.
func (ep *Endpoint) String() string { return fmt.Sprintf("ep%d", ep.index) }

// Enable activates a generic endpoint with desc. Endpoint 0 is enabled
// by Controller.Bind.
func (ep *Endpoint) Enable(desc *usb.EndpointDescriptor) error {
	switch ep.kind {
	case KindControl:
		return fmt.Errorf("%s: enabled by bind: %w", ep, pkg.ErrInvalidEndpoint)
	case KindGeneric:
	}
	if desc == nil || desc.Number() != ep.index || desc.TransferType() == usb.XferControl {
		return fmt.Errorf("%s: bad descriptor: %w", ep, pkg.ErrInvalidParameter)
	}

	if masked := ep.c.irq.Disable(); masked {
		defer ep.c.irq.Enable()
	}

	ep.desc = desc
	ep.in = desc.IsIn()
	ep.halted = false

	top := ep.c.top
	if !ep.polled {
		top.Write(regs.USBIntEna, top.Read(regs.USBIntEna)|regs.EPIntBit(ep.index))
	}

	mode := uint32(regs.ModeBulk)
	switch desc.TransferType() {
	case usb.XferInterrupt:
		mode = regs.ModeInterrupt
	case usb.XferIsochronous:
		mode = regs.ModeIso
	}
	ctrl := regs.EPnEN.Mask() | regs.EPnMode.Bits(mode)
	if ep.in {
		ctrl |= regs.EPnDir0.Mask()
	}
	ep.blk.Write(regs.EPnControl, ctrl|regs.EPnBCLR.Mask())

	var ena uint32
	switch {
	case ep.polled:
	case ep.in:
		ena = regs.EPnInEn.Mask() | regs.EPnInEndEn.Mask()
	default:
		ena = regs.EPnOutEn.Mask() | regs.EPnOutEndEn.Mask()
	}
	ep.blk.Write(regs.EPnIntEna, ena)

	ep.setMaxPacket()
	ep.enabled = true

	pkg.LogDebug(pkg.ComponentEndpoint, "enabled",
		"ep", ep.index, "in", ep.in, "mode", mode, "maxpacket", ep.maxPacket, "polled", ep.polled)
	return nil
}

// Disable deactivates the endpoint. Queued requests complete with
// pkg.StatusShutdown.
func (ep *Endpoint) Disable() error {
	if !ep.enabled {
		return nil
	}
	if masked := ep.c.irq.Disable(); masked {
		defer ep.c.irq.Enable()
	}

	switch ep.kind {
	case KindControl:
		ep.blk.Write(regs.EP0IntEna, 0)
		ep.ctl.stage = StageIdle
	case KindGeneric:
		ep.blk.Write(regs.EPnIntEna, 0)
		ep.blk.Write(regs.EPnControl, regs.EPnBCLR.Mask())
	}
	top := ep.c.top
	top.Write(regs.USBIntEna, top.Read(regs.USBIntEna)&^regs.EPIntBit(ep.index))

	ep.enabled = false
	ep.halted = false
	if ep.kind == KindGeneric {
		ep.desc = nil
	}
	ep.flush(pkg.StatusShutdown)

	pkg.LogDebug(pkg.ComponentEndpoint, "disabled", "ep", ep.index)
	return nil
}

// SetHalt sets or clears the halt condition. On endpoint 0 a halt is a
// one-shot protocol stall and clearing it has no effect.
func (ep *Endpoint) SetHalt(halt bool) error {
	switch ep.kind {
	case KindControl:
		if halt {
			ep.stall()
		}
		return nil
	case KindGeneric:
	}
	if !ep.enabled {
		return fmt.Errorf("%s: halt while disabled: %w", ep, pkg.ErrInvalidState)
	}

	stl, pid := regs.EPnOSTL, regs.EPnOPIDCLR
	if ep.in {
		stl, pid = regs.EPnISTL, regs.EPnIPIDCLR
	}
	if halt {
		ep.blk.Set(stl)
		ep.stats.Stalls++
	} else {
		ep.blk.Write(regs.EPnControl, ep.blk.Read(regs.EPnControl)&^stl.Mask()|pid.Mask())
	}
	ep.halted = halt

	pkg.LogDebug(pkg.ComponentEndpoint, "halt", "ep", ep.index, "halt", halt)
	return nil
}

// setMaxPacket reprograms the packet size of a generic endpoint for the
// current bus speed.
func (ep *Endpoint) setMaxPacket() {
	if ep.kind != KindGeneric {
		return
	}
	mp := ep.c.cfg.EPXMaxPacket
	if ep.c.speed == SpeedFull && mp > fullSpeedBulkMax {
		mp = fullSpeedBulkMax
	}
	ep.maxPacket = mp
	ep.blk.SetN(regs.EPnMaxPacket, uint32(mp))
}

// interrupt services the endpoint's status events. Polled endpoints have
// no handler.
func (ep *Endpoint) interrupt() error {
	switch ep.kind {
	case KindControl:
		return ep.controlInterrupt()
	case KindGeneric:
		if ep.polled {
			return nil
		}
		return ep.genericInterrupt()
	}
	return nil
}

var epnEvents = regs.EPnInInt.Mask() | regs.EPnInEndInt.Mask() |
	regs.EPnOutInt.Mask() | regs.EPnOutEndInt.Mask()

func (ep *Endpoint) genericInterrupt() error {
	status := ep.blk.Read(regs.EPnStatus)
	events := status & ep.blk.Read(regs.EPnIntEna) & epnEvents
	if events == 0 {
		return nil
	}
	ep.blk.Write(regs.EPnStatus, events)
	pkg.LogTrace(pkg.ComponentEndpoint, "interrupt", "ep", ep.index, "status", status)
	return ep.processHead()
}

// poll services a polled endpoint.
func (ep *Endpoint) poll() error {
	if !ep.enabled || ep.queue.Empty() {
		return nil
	}
	if events := ep.blk.Read(regs.EPnStatus) & epnEvents; events != 0 {
		ep.blk.Write(regs.EPnStatus, events)
	}
	return ep.processHead()
}
