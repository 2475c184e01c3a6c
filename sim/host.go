package sim

import (
	"fmt"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
	"github.com/ardnew/usbf/usb"
)

// Setup delivers a Setup packet on endpoint 0. The hardware clears a
// pending EP0 stall when a new Setup arrives.
func (s *Sim) Setup(p usb.SetupPacket) error {
	lo, hi := p.Words()
	s.set(regs.SetupData0, lo)
	s.set(regs.SetupData1, hi)
	s.set(regs.EP0Control, s.get(regs.EP0Control)&^regs.EP0STL.Mask())
	s.set(regs.EP0Status, s.get(regs.EP0Status)|regs.EP0SetupInt.Mask())
	s.log(EventSetup, 0, nil, p.String())
	return s.deliver()
}

// Out delivers one OUT packet to endpoint n. An empty data is a
// zero-length packet. The previous packet must have been drained.
func (s *Sim) Out(n int, data []byte) error {
	if n < 0 || n >= regs.MaxEndpoints {
		return fmt.Errorf("sim: ep%d: %w", n, pkg.ErrInvalidEndpoint)
	}
	r := s.epRegs(n)
	if n > 0 {
		ctrl := s.get(r.control)
		if ctrl&regs.EPnEN.Mask() == 0 {
			return fmt.Errorf("sim: ep%d not enabled: %w", n, pkg.ErrInvalidEndpoint)
		}
		if ctrl&regs.EPnOSTL.Mask() != 0 {
			return fmt.Errorf("sim: ep%d: %w", n, pkg.ErrStall)
		}
	}
	if len(s.fifos[n].out) > 0 {
		return fmt.Errorf("sim: ep%d out buffer full: %w", n, pkg.ErrInvalidState)
	}

	st := s.get(r.status)
	if len(data) == 0 {
		st |= r.outNull
	} else {
		s.fifos[n].out = append([]byte(nil), data...)
		st = st&^r.outEmpty | r.outFull
	}
	s.set(r.status, st|r.outInt)
	s.log(EventOut, n, data, "")
	return s.deliver()
}

// OutPending reports how many bytes of the last OUT packet the device
// has not read.
func (s *Sim) OutPending(n int) int { return len(s.fifos[n].out) }

// StageStart signals the start of the status stage of a control transfer.
func (s *Sim) StageStart() error {
	s.set(regs.EP0Status, s.get(regs.EP0Status)|regs.EP0StgStartInt.Mask())
	s.log(EventStageStart, 0, nil, "")
	return s.deliver()
}

// StageEnd signals the end of the status stage.
func (s *Sim) StageEnd() error {
	s.set(regs.EP0Status, s.get(regs.EP0Status)|regs.EP0StgEndInt.Mask())
	s.log(EventStageEnd, 0, nil, "")
	return s.deliver()
}

// BusReset drives a USB reset. The address register returns to zero and
// the stall on endpoint 0 is released.
func (s *Sim) BusReset() error {
	s.set(regs.USBAddress, 0)
	s.set(regs.EP0Control, s.get(regs.EP0Control)&^regs.EP0STL.Mask())
	s.latched |= regs.IntUSBRst.Mask()
	s.log(EventReset, 0, nil, "")
	return s.deliver()
}

// SpeedChange reports the speed negotiated after reset.
func (s *Sim) SpeedChange(high bool) error {
	st := s.get(regs.USBStatus) &^ regs.StatusSpeedMode.Mask()
	note := "full"
	if high {
		st |= regs.StatusSpeedMode.Mask()
		note = "high"
	}
	s.set(regs.USBStatus, st)
	s.latched |= regs.IntSpeedMode.Mask()
	s.log(EventSpeed, 0, nil, note)
	return s.deliver()
}

// Suspend idles the bus.
func (s *Sim) Suspend() error {
	s.latched |= regs.IntSpnd.Mask()
	s.log(EventSuspend, 0, nil, "")
	return s.deliver()
}

// Resume signals bus activity after a suspend.
func (s *Sim) Resume() error {
	s.latched |= regs.IntRsum.Mask()
	s.log(EventResume, 0, nil, "")
	return s.deliver()
}

// VBus plugs or unplugs the cable.
func (s *Sim) VBus(on bool) error {
	s.vbus = on
	ctr := s.get(regs.EPCtr) &^ regs.VBusLevel.Mask()
	note := "off"
	if on {
		ctr |= regs.VBusLevel.Mask()
		note = "on"
	}
	s.set(regs.EPCtr, ctr)
	s.set(regs.AHBBInt, s.get(regs.AHBBInt)|regs.VBusInt.Mask())
	s.log(EventVBus, 0, nil, note)
	return s.deliver()
}

// DrainIN empties a held IN buffer of endpoint n so the device can write
// the next packet.
func (s *Sim) DrainIN(n int) error {
	r := s.epRegs(n)
	st := s.get(r.status)&^r.inFull | r.inEmpty | r.inInt
	s.set(r.status, st)
	return s.deliver()
}

// Control runs a complete control transfer: the Setup stage, the data
// stage and the status stage. For a control write data is sent in
// EP0 max packet chunks; for a control read the IN packets committed
// before the status stage are returned. A stall ends the transfer with
// pkg.ErrStall.
func (s *Sim) Control(p usb.SetupPacket, data []byte) ([]byte, error) {
	stalls := s.stalls[0]
	stalled := func() bool { return s.stalls[0] != stalls }

	s.in[0] = nil
	if err := s.Setup(p); err != nil {
		return nil, err
	}
	if stalled() {
		return nil, fmt.Errorf("sim: %s: %w", p, pkg.ErrStall)
	}

	if p.IsControlWrite() {
		mp := s.opts.EP0MaxPacket
		for off := 0; off < len(data); off += mp {
			if err := s.Out(0, data[off:min(off+mp, len(data))]); err != nil {
				return nil, err
			}
			if stalled() {
				return nil, fmt.Errorf("sim: %s: %w", p, pkg.ErrStall)
			}
		}
	}

	var reply []byte
	if p.IsControlRead() {
		for _, pkt := range s.in[0] {
			reply = append(reply, pkt...)
		}
	}
	s.in[0] = nil

	if err := s.StageStart(); err != nil {
		return reply, err
	}
	if stalled() {
		return reply, fmt.Errorf("sim: %s: %w", p, pkg.ErrStall)
	}
	if p.IsControlRead() {
		// The host acknowledges a control read with an OUT ZLP.
		if err := s.Out(0, nil); err != nil {
			return reply, err
		}
	} else if len(s.in[0]) == 0 {
		return reply, fmt.Errorf("sim: %s: no status packet: %w", p, pkg.ErrProtocol)
	}
	s.in[0] = nil

	if err := s.StageEnd(); err != nil {
		return reply, err
	}
	if len(reply) > int(p.Length) {
		reply = reply[:p.Length]
	}
	return reply, nil
}

// IN returns the IN packets committed on endpoint n since the last Take.
func (s *Sim) IN(n int) [][]byte {
	return append([][]byte(nil), s.in[n]...)
}

// TakeIN returns and forgets the IN packets of endpoint n.
func (s *Sim) TakeIN(n int) [][]byte {
	p := s.in[n]
	s.in[n] = nil
	return p
}

// Stalls returns how many times endpoint n entered a stall.
func (s *Sim) Stalls(n int) int { return s.stalls[n] }

// Stalled reports whether endpoint n currently stalls.
func (s *Sim) Stalled(n int) bool {
	r := s.epRegs(n)
	return s.get(r.control)&r.stall != 0
}

// Pullup reports whether the device presents itself on the bus.
func (s *Sim) Pullup() bool {
	ctrl := s.get(regs.USBControl)
	return ctrl&regs.CtrlPUE2.Mask() != 0 && ctrl&regs.CtrlConnectB.Mask() == 0
}

// Address returns the device address programmed into the controller.
func (s *Sim) Address() uint8 {
	return uint8((s.get(regs.USBAddress) & regs.Address.Mask()) >> regs.Address.Shift())
}

// Configured reports whether the configured flag is set.
func (s *Sim) Configured() bool {
	return s.get(regs.USBControl)&regs.CtrlConf.Mask() != 0
}

// InReset reports whether the endpoint controller is held in reset.
func (s *Sim) InReset() bool {
	return s.get(regs.EPCtr)&regs.EPCRst.Mask() != 0
}
