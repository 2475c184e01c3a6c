package gadget

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/udc"
	"github.com/ardnew/usbf/usb"
)

// standard handles the standard requests the controller delegates.
func (g *Gadget) standard(setup *usb.SetupPacket) error {
	switch setup.Request {
	case usb.RequestGetDescriptor:
		return g.getDescriptor(setup)
	case usb.RequestSetDescriptor:
		return fmt.Errorf("SET_DESCRIPTOR: %w", pkg.ErrNotSupported)
	case usb.RequestGetConfiguration:
		if !setup.IsIn() || setup.Length < 1 {
			return fmt.Errorf("bad GET_CONFIGURATION: %w", pkg.ErrInvalidRequest)
		}
		g.responseBuf[0] = g.config
		return g.respond(setup, g.responseBuf[:1])
	case usb.RequestSetConfiguration:
		return g.setConfiguration(uint8(setup.Value))
	case usb.RequestGetInterface:
		return g.getInterface(setup)
	case usb.RequestSetInterface:
		return g.setInterface(setup)
	default:
		return fmt.Errorf("standard request 0x%02X: %w", setup.Request, pkg.ErrInvalidRequest)
	}
}

func (g *Gadget) getDescriptor(setup *usb.SetupPacket) error {
	if !setup.IsIn() {
		return fmt.Errorf("GET_DESCRIPTOR with OUT direction: %w", pkg.ErrInvalidRequest)
	}
	index := setup.DescriptorIndex()

	var data []byte
	switch typ := setup.DescriptorType(); typ {
	case usb.DescDevice:
		data = g.device.AppendBinary(g.responseBuf[:0])

	case usb.DescConfiguration, usb.DescOtherSpeed:
		if index != 0 {
			return fmt.Errorf("configuration %d: %w", index, pkg.ErrInvalidRequest)
		}
		speed := g.c.Speed()
		if typ == usb.DescOtherSpeed {
			speed = otherSpeed(speed)
		}
		data = g.configuration(g.responseBuf[:0], speed)
		data[1] = typ

	case usb.DescString:
		if int(index) >= len(g.strings) || g.strings[index] == nil {
			return fmt.Errorf("string %d: %w", index, pkg.ErrInvalidRequest)
		}
		data = g.strings[index]

	case usb.DescDeviceQualifier:
		q := g.device.Qualifier()
		data = q.AppendBinary(g.responseBuf[:0])

	default:
		return fmt.Errorf("descriptor type 0x%02X: %w", typ, pkg.ErrInvalidRequest)
	}
	return g.respond(setup, data)
}

func otherSpeed(s udc.Speed) udc.Speed {
	if s == udc.SpeedHigh {
		return udc.SpeedFull
	}
	return udc.SpeedHigh
}

// bulkMaxPacket returns the bulk packet size announced at speed: the
// controller's packet size within the USB 2.0 bulk limits.
func (g *Gadget) bulkMaxPacket(s udc.Speed) uint16 {
	limit := 64
	if s == udc.SpeedHigh {
		limit = 512
	}
	return uint16(min(g.c.Config().EPXMaxPacket, limit))
}

// configuration appends the full configuration descriptor for speed.
func (g *Gadget) configuration(b []byte, speed udc.Speed) []byte {
	hdr := usb.ConfigDescriptor{
		NumInterfaces:      1,
		ConfigurationValue: configValue,
		MaxPower:           uint8(g.cfg.MaxPowerMA / 2),
	}
	if g.cfg.SelfPowered {
		hdr.Attributes |= usb.ConfigAttrSelfPowered
	}
	b = hdr.AppendBinary(b)

	iface := usb.InterfaceDescriptor{
		InterfaceClass: usb.ClassVendor,
	}
	if g.strings[stringInterface] != nil {
		iface.InterfaceIndex = stringInterface
	}
	if g.loop != nil {
		iface.NumEndpoints = 2
	}
	b = iface.AppendBinary(b)

	if g.loop != nil {
		for _, desc := range g.loop.descriptors(speed) {
			b = desc.AppendBinary(b)
		}
	}
	binary.LittleEndian.PutUint16(b[2:4], uint16(len(b)))
	return b
}

// setConfiguration runs after the controller applied the value.
func (g *Gadget) setConfiguration(value uint8) error {
	if g.loop != nil {
		g.loop.stop()
	}
	g.alt = 0
	switch value {
	case 0:
		g.config = 0
		pkg.LogInfo(pkg.ComponentGadget, "deconfigured")
		return nil
	case configValue:
	default:
		g.config = 0
		return fmt.Errorf("configuration %d: %w", value, pkg.ErrInvalidRequest)
	}

	if g.loop != nil {
		if err := g.loop.start(g.c.Speed()); err != nil {
			g.config = 0
			return err
		}
	}
	g.config = value
	pkg.LogInfo(pkg.ComponentGadget, "configured", "value", value, "speed", g.c.Speed())
	return nil
}

func (g *Gadget) getInterface(setup *usb.SetupPacket) error {
	switch {
	case g.config == 0:
		return fmt.Errorf("GET_INTERFACE unconfigured: %w", pkg.ErrInvalidState)
	case !setup.IsIn() || setup.Length < 1 || setup.Index != 0:
		return fmt.Errorf("bad GET_INTERFACE: %w", pkg.ErrInvalidRequest)
	}
	g.responseBuf[0] = g.alt
	return g.respond(setup, g.responseBuf[:1])
}

// setInterface selects alternate setting 0 again, which restarts the
// loopback.
func (g *Gadget) setInterface(setup *usb.SetupPacket) error {
	switch {
	case g.config == 0:
		return fmt.Errorf("SET_INTERFACE unconfigured: %w", pkg.ErrInvalidState)
	case setup.Index != 0 || setup.Value != 0:
		return fmt.Errorf("interface %d alt %d: %w", setup.Index, setup.Value, pkg.ErrInvalidRequest)
	}
	g.alt = 0
	if g.loop == nil {
		return nil
	}
	g.loop.stop()
	return g.loop.start(g.c.Speed())
}
