package udc

import (
	"errors"
	"fmt"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
	"github.com/ardnew/usbf/usb"
)

var ep0Descriptor = usb.EndpointDescriptor{
	EndpointAddress: usb.DirIn,
	Attributes:      usb.XferControl,
}

// enableControl arms endpoint 0. Called from Bind with interrupts masked.
func (ep *Endpoint) enableControl() {
	top := ep.c.top
	top.Write(regs.USBIntEna, top.Read(regs.USBIntEna)|regs.EPIntBit(0))
	top.Write(regs.EP0Control, regs.EP0INAKEn.Mask()|regs.EP0BCLR.Mask())
	top.Write(regs.EP0IntEna, regs.EP0SetupEn.Mask()|regs.EP0StgStartEn.Mask()|
		regs.EP0StgEndEn.Mask()|regs.EP0OutEn.Mask())

	desc := ep0Descriptor
	desc.MaxPacketSize = uint16(ep.c.cfg.EP0MaxPacket)
	ep.desc = &desc
	ep.in = true
	ep.maxPacket = ep.c.cfg.EP0MaxPacket
	ep.ctl.stage = StageIdle
	ep.enabled = true
}

// controlInterrupt handles endpoint 0 status events in hardware order:
// OUT data, then Setup, then stage start, then stage end.
func (ep *Endpoint) controlInterrupt() error {
	top := ep.c.top
	status := top.Read(regs.EP0Status)
	pkg.LogTrace(pkg.ComponentEP0, "interrupt", "status", status, "stage", ep.ctl.stage)

	var errs []error
	if status&regs.EP0OutInt.Mask() != 0 {
		top.Ack(regs.EP0OutInt)
		if ep.ctl.stage == StageStatus {
			// Status handshake of a control read.
			top.Ack(regs.EP0OutNull)
		}
		errs = append(errs, ep.processHead())
	}
	if status&regs.EP0SetupInt.Mask() != 0 {
		errs = append(errs, ep.handleSetup())
	}
	if status&regs.EP0StgStartInt.Mask() != 0 {
		errs = append(errs, ep.handleStageStart())
	}
	if status&regs.EP0StgEndInt.Mask() != 0 {
		top.Ack(regs.EP0StgEndInt)
		ep.ctl.stage = StageIdle
	}
	return errors.Join(errs...)
}

// handleSetup starts a new control transfer. A Setup packet always aborts
// the transfer in progress: requests left on endpoint 0 are cancelled.
func (ep *Endpoint) handleSetup() error {
	c, top, ctl := ep.c, ep.c.top, ep.ctl
	top.Ack(regs.EP0SetupInt)

	setup := usb.SetupFromWords(top.Read(regs.SetupData0), top.Read(regs.SetupData1))
	c.refreshSpeed()

	if n := ep.queue.Size(); n > 0 {
		pkg.LogDebug(pkg.ComponentEP0, "setup aborts transfer", "stage", ctl.stage, "pending", n)
		ep.flush(pkg.StatusCancelled)
	}
	ctl.setup = setup
	ctl.stage = StageSetupAction
	ctl.outcome = OutcomeIdle
	ep.in = setup.IsIn()
	pkg.LogDebug(pkg.ComponentEP0, "setup", "packet", setup.String())

	var errs []error
	switch {
	case setup.IsControlWrite():
		top.Clear(regs.EP0ONAK)
	case setup.IsControlRead():
		if err := ep.flushBuffer(regs.EP0InEmpty); err != nil {
			errs = append(errs, err)
		}
		ep.clearINAK()
	}

	ctl.outcome = ep.decode(&setup)
	if ctl.outcome == OutcomeStall {
		ep.stall()
	}
	if !setup.IsNoData() {
		ctl.stage = StageData
	}
	errs = append(errs, ep.processHead())
	return errors.Join(errs...)
}

// handleStageStart moves to the status stage. Control writes and no-data
// requests answer with a zero-length IN packet; control reads expect the
// host's zero-length OUT packet.
func (ep *Endpoint) handleStageStart() error {
	top, ctl := ep.c.top, ep.ctl
	top.Ack(regs.EP0StgStartInt)

	var err error
	switch s := ctl.setup; {
	case s.IsControlRead():
		top.Clear(regs.EP0ONAK)
	case s.IsControlWrite():
		err = ep.flushBuffer(regs.EP0OutEmpty)
		ep.clearINAK()
		ep.sendStatus()
	default:
		err = ep.flushBuffer(regs.EP0InEmpty)
		ep.clearINAK()
		ep.sendStatus()
	}
	ctl.stage = StageStatus
	return err
}

// decode resolves a Setup packet. Standard requests that change device
// state are handled here; everything else goes to the function driver.
func (ep *Endpoint) decode(setup *usb.SetupPacket) Outcome {
	if !setup.IsStandard() {
		return ep.delegate(setup)
	}
	switch setup.Request {
	case usb.RequestSetAddress:
		return ep.setAddress(setup)
	case usb.RequestSetConfiguration:
		return ep.setConfiguration(setup)
	case usb.RequestGetStatus:
		return ep.getStatus(setup)
	case usb.RequestClearFeature:
		return ep.feature(setup, false)
	case usb.RequestSetFeature:
		return ep.feature(setup, true)
	default:
		return ep.delegate(setup)
	}
}

func (ep *Endpoint) protocolStall(setup *usb.SetupPacket, why string) Outcome {
	pkg.LogDebug(pkg.ComponentEP0, "stall", "reason", why, "packet", setup.String(),
		"error", pkg.ErrProtocol)
	return OutcomeStall
}

func (ep *Endpoint) setAddress(setup *usb.SetupPacket) Outcome {
	if setup.IsIn() || setup.Recipient() != usb.RecipDevice ||
		setup.Length != 0 || setup.Value > usb.MaxAddress {
		return ep.protocolStall(setup, "bad SET_ADDRESS")
	}
	c := ep.c
	c.address = uint8(setup.Value)
	c.top.Write(regs.USBAddress, regs.Address.Bits(uint32(c.address)))
	c.state = StateAddress
	pkg.LogInfo(pkg.ComponentEP0, "set address", "address", c.address)
	return OutcomeFinish
}

func (ep *Endpoint) setConfiguration(setup *usb.SetupPacket) Outcome {
	c := ep.c
	if setup.IsIn() || setup.Recipient() != usb.RecipDevice {
		return ep.protocolStall(setup, "bad SET_CONFIGURATION")
	}
	if c.state != StateAddress && c.state != StateConfigured {
		return ep.protocolStall(setup, "SET_CONFIGURATION in state "+c.state.String())
	}

	value := uint8(setup.Value)
	if value == 0 {
		c.deconfigure()
	} else {
		c.top.Set(regs.CtrlConf)
		c.state = StateConfigured
	}
	pkg.LogInfo(pkg.ComponentEP0, "set configuration", "value", value)

	if out := ep.delegate(setup); out == OutcomeStall {
		c.deconfigure()
		return OutcomeStall
	}
	return OutcomeFinish
}

func (ep *Endpoint) getStatus(setup *usb.SetupPacket) Outcome {
	c, ctl := ep.c, ep.ctl
	if !setup.IsIn() || setup.Length < 2 {
		return ep.protocolStall(setup, "bad GET_STATUS")
	}

	var status uint16
	switch setup.Recipient() {
	case usb.RecipDevice:
		if c.cfg.SelfPowered {
			status |= usb.StatusSelfPowered
		}
	case usb.RecipIface:
	case usb.RecipEndpoint:
		target := c.EndpointByAddress(uint8(setup.Index))
		if target == nil {
			return ep.protocolStall(setup, "GET_STATUS of unknown endpoint")
		}
		if target.halted {
			status |= usb.StatusHalt
		}
	default:
		return ep.protocolStall(setup, "GET_STATUS of unknown recipient")
	}

	ctl.status = [2]byte{uint8(status), uint8(status >> 8)}
	ctl.reply = Request{
		Buf:      ctl.status[:],
		Length:   len(ctl.status),
		Complete: func(*Endpoint, *Request) {},
	}
	if err := ep.Queue(&ctl.reply); err != nil {
		pkg.LogWarn(pkg.ComponentEP0, "status reply rejected", "error", err)
		return OutcomeStall
	}
	return OutcomeFinish
}

func (ep *Endpoint) feature(setup *usb.SetupPacket, set bool) Outcome {
	if setup.IsIn() || setup.Length != 0 {
		return ep.protocolStall(setup, "bad FEATURE request")
	}
	if setup.Value != usb.FeatureEndpointHalt || setup.Recipient() != usb.RecipEndpoint {
		return ep.protocolStall(setup, fmt.Sprintf("unsupported feature %d", setup.Value))
	}
	target := ep.c.EndpointByAddress(uint8(setup.Index))
	if target == nil {
		return ep.protocolStall(setup, "FEATURE of unknown endpoint")
	}
	if target.kind == KindControl {
		return OutcomeFinish
	}
	if err := target.SetHalt(set); err != nil {
		pkg.LogDebug(pkg.ComponentEP0, "halt failed", "ep", target.index, "error", err)
		return OutcomeStall
	}
	return OutcomeFinish
}

// delegate hands the request to the function driver.
func (ep *Endpoint) delegate(setup *usb.SetupPacket) Outcome {
	drv := ep.c.driver
	if drv == nil {
		return ep.protocolStall(setup, "no function driver")
	}
	if err := drv.Setup(ep.c, setup); err != nil {
		pkg.LogDebug(pkg.ComponentEP0, "driver rejected setup", "packet", setup.String(), "error", err)
		return OutcomeStall
	}
	return OutcomeFinish
}

func (ep *Endpoint) stall() {
	ep.c.top.Set(regs.EP0STL)
	ep.stats.Stalls++
}

func (ep *Endpoint) clearINAK() {
	top := ep.c.top
	top.Write(regs.EP0Control, top.Read(regs.EP0Control)&^regs.EP0INAK.Mask()|regs.EP0INAKEn.Mask())
}

// sendStatus commits an empty IN packet for the status stage.
func (ep *Endpoint) sendStatus() {
	ep.c.top.Set(regs.EP0DEND)
	ep.stats.StatusZLPs++
}

// flushBuffer clears the endpoint buffer unless status already reports
// want, then waits for it within the retry budget.
func (ep *Endpoint) flushBuffer(want regs.Field) error {
	if ep.blk.IsSet(want) {
		return nil
	}
	ep.blk.Set(ep.fld.bclr)
	if err := ep.blk.PollField(ep.c.cfg.Retries, want); err != nil {
		pkg.LogWarn(pkg.ComponentEP0, "buffer clear timeout", "ep", ep.index, "want", want)
		return fmt.Errorf("%s: buffer clear: %w", ep, err)
	}
	return nil
}

// Setup returns the last Setup packet received on endpoint 0.
func (c *Controller) Setup() usb.SetupPacket { return c.eps[0].ctl.setup }

// Stage returns the control transfer stage of endpoint 0.
func (c *Controller) Stage() Stage { return c.eps[0].ctl.stage }

// Outcome returns how the last Setup packet was resolved.
func (c *Controller) Outcome() Outcome { return c.eps[0].ctl.outcome }
