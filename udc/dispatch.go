package udc

import (
	"errors"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
)

var busCauses = regs.IntUSBRst.Mask() | regs.IntSpeedMode.Mask() |
	regs.IntSpnd.Mask() | regs.IntRsum.Mask() | regs.IntSOF.Mask()

// HandleInterrupts services every pending interrupt cause. VBUS changes
// come first, then bus causes in the order reset, speed change, suspend,
// resume, then endpoint events with endpoint 0 first. Handler errors are
// collected and returned after all causes were serviced.
func (c *Controller) HandleInterrupts() error {
	var errs []error
	top := c.top

	if top.IsSet(regs.VBusInt) && top.IsSet(regs.VBusIntEn) {
		top.Ack(regs.VBusInt)
		c.handleVBus()
	}

	status := top.Read(regs.USBIntSta) & top.Read(regs.USBIntEna)
	if status == 0 {
		return nil
	}
	if bus := status & busCauses; bus != 0 {
		top.Write(regs.USBIntSta, bus)
	}
	pkg.LogTrace(pkg.ComponentDispatch, "interrupt", "status", status)

	if status&regs.IntUSBRst.Mask() != 0 {
		c.handleReset()
	}
	if status&regs.IntSpeedMode.Mask() != 0 {
		c.handleSpeedChange()
	}
	if status&regs.IntSpnd.Mask() != 0 {
		c.handleSuspend()
	}
	if status&regs.IntRsum.Mask() != 0 {
		c.handleResume()
	}

	for _, ep := range c.eps {
		if status&regs.EPIntBit(ep.index) == 0 {
			continue
		}
		if err := ep.interrupt(); err != nil {
			pkg.LogWarn(pkg.ComponentDispatch, "endpoint handler failed", "ep", ep.index, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Poll services the endpoints listed in Config.PolledEndpoints.
func (c *Controller) Poll() error {
	var errs []error
	for _, ep := range c.eps {
		if ep.polled {
			errs = append(errs, ep.poll())
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) handleVBus() {
	top := c.top
	ctrl := top.Read(regs.USBControl)
	if top.IsSet(regs.VBusLevel) {
		pkg.LogInfo(pkg.ComponentDispatch, "vbus on")
		ctrl = ctrl&^regs.CtrlConnectB.Mask() | regs.CtrlPUE2.Mask()
		c.pullup = true
		c.state = StatePowered
	} else {
		pkg.LogInfo(pkg.ComponentDispatch, "vbus off")
		ctrl = ctrl&^(regs.CtrlPUE2.Mask()|regs.CtrlDefault.Mask()|regs.CtrlConf.Mask()) |
			regs.CtrlConnectB.Mask()
		c.pullup = false
		c.state = StateNotAttached
		c.address = 0
		c.disconnect()
	}
	top.Write(regs.USBControl, ctrl)
}

// handleReset returns the device to its unaddressed state after a bus
// reset. Every endpoint buffer is cleared and the configured bit dropped.
func (c *Controller) handleReset() {
	for _, ep := range c.eps {
		if ep.kind == KindControl || ep.enabled {
			ep.blk.Set(ep.fld.bclr)
		}
	}
	ep0 := c.eps[0]
	ep0.flush(pkg.StatusShutdown)
	ep0.ctl.stage = StageIdle
	ep0.ctl.outcome = OutcomeIdle

	c.address = 0
	c.top.Write(regs.USBAddress, 0)
	c.top.Clear(regs.CtrlConf)
	c.state = StateNotAttached
	pkg.LogInfo(pkg.ComponentDispatch, "bus reset", "speed", c.speed)
	c.disconnect()
}

// disconnect drops the negotiated speed and tells the driver once.
func (c *Controller) disconnect() {
	if c.speed == SpeedUnknown {
		return
	}
	c.speed = SpeedUnknown
	if d, ok := c.driver.(Disconnecter); ok {
		d.Disconnect(c)
	}
}

func (c *Controller) handleSpeedChange() {
	c.refreshSpeed()
	pkg.LogInfo(pkg.ComponentDispatch, "speed change", "speed", c.speed)
	for _, ep := range c.eps {
		if ep.kind == KindGeneric && ep.enabled {
			ep.setMaxPacket()
		}
	}
}

func (c *Controller) handleSuspend() {
	if c.state == StateSuspended {
		return
	}
	c.saved = c.state
	c.state = StateSuspended
	pkg.LogInfo(pkg.ComponentDispatch, "suspend", "from", c.saved)
	if s, ok := c.driver.(Suspender); ok {
		s.Suspend(c)
	}
}

func (c *Controller) handleResume() {
	if c.state != StateSuspended {
		return
	}
	c.state = c.saved
	pkg.LogInfo(pkg.ComponentDispatch, "resume", "to", c.state)
	if r, ok := c.driver.(Resumer); ok {
		r.Resume(c)
	}
}
