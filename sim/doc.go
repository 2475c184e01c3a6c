// Package sim models the USBF register file and a USB host driving it.
//
// A [Sim] implements [regs.Bus] with the side effects the controller
// relies on: write-1-to-clear status registers, buffer clear, packet
// commit with a partial last word, the OUT read port and the PLL lock.
// It also implements the interrupt mask the controller takes around
// endpoint enable, and delivers interrupts synchronously to the routine
// installed with [Sim.Attach].
//
// The host side injects bus events:
//
//	s := sim.New(sim.Options{VBus: true})
//	c, _ := udc.New(s, udc.Config{IRQ: s})
//	s.Attach(c.HandleInterrupts)
//	_ = c.Bind(drv)
//	_ = s.BusReset()
//	reply, err := s.Control(usb.GetDescriptor(usb.DescDevice, 0, 18), nil)
//
// Knobs such as [Sim.HoldIN] freeze a handshake so timeout paths can be
// exercised.
package sim
