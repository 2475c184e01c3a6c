package gadget

import (
	"fmt"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/udc"
	"github.com/ardnew/usbf/usb"
)

// MaxResponseSize bounds descriptor replies built by the gadget.
const MaxResponseSize = 512

// Vendor requests answered by the gadget itself.
const (
	VendorStore = 0x01 // control write into the vendor buffer
	VendorEcho  = 0x02 // control read of the vendor buffer
)

// String descriptor indices.
const (
	stringManufacturer = 1
	stringProduct      = 2
	stringSerial       = 3
	stringInterface    = 4
	numStrings         = 5
)

// configValue is the only configuration the gadget offers.
const configValue = 1

// Config describes the gadget's identity and function.
type Config struct {
	VendorID      uint16
	ProductID     uint16
	DeviceVersion uint16

	Manufacturer string
	Product      string
	Serial       string

	// MaxPowerMA is the bus current drawn when configured, in mA.
	MaxPowerMA  int
	SelfPowered bool

	// Loopback adds a bulk IN/OUT pair echoing OUT data back to the host.
	Loopback    bool
	LoopbackIn  uint8
	LoopbackOut uint8

	// LoopbackBuffer is the largest transfer the loopback accepts.
	LoopbackBuffer int

	// VendorBuffer is the size of the VendorStore/VendorEcho buffer.
	VendorBuffer int
}

// DefaultConfig returns a loopback gadget with the Gadget Zero IDs.
func DefaultConfig() Config {
	return Config{
		VendorID:       0x0525,
		ProductID:      0xA4A0,
		DeviceVersion:  0x0100,
		Manufacturer:   "usbf",
		Product:        "usbf loopback",
		Serial:         "0001",
		MaxPowerMA:     100,
		Loopback:       true,
		LoopbackIn:     0x81,
		LoopbackOut:    0x02,
		LoopbackBuffer: 4096,
		VendorBuffer:   256,
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	switch {
	case c.MaxPowerMA < 0 || c.MaxPowerMA > 500:
		return fmt.Errorf("max power %d mA: %w", c.MaxPowerMA, pkg.ErrInvalidParameter)
	case c.VendorBuffer <= 0 || c.VendorBuffer > 0xFFFF:
		return fmt.Errorf("vendor buffer %d: %w", c.VendorBuffer, pkg.ErrInvalidParameter)
	}
	if !c.Loopback {
		return nil
	}
	in, out := c.LoopbackIn, c.LoopbackOut
	switch {
	case in&usb.DirIn == 0 || in&0x0F == 0 || in&0x70 != 0:
		return fmt.Errorf("loopback IN address 0x%02X: %w", in, pkg.ErrInvalidEndpoint)
	case out&usb.DirIn != 0 || out&0x0F == 0 || out&0x70 != 0:
		return fmt.Errorf("loopback OUT address 0x%02X: %w", out, pkg.ErrInvalidEndpoint)
	case in&0x0F == out&0x0F:
		return fmt.Errorf("loopback endpoints share number %d: %w", in&0x0F, pkg.ErrInvalidEndpoint)
	case c.LoopbackBuffer <= 0:
		return fmt.Errorf("loopback buffer %d: %w", c.LoopbackBuffer, pkg.ErrInvalidParameter)
	}
	return nil
}

// Stats counts what the gadget handled.
type Stats struct {
	Setups      int
	Rejected    int
	Disconnects int
	Suspends    int
	Resumes     int

	LoopbackTransfers int
	LoopbackBytes     int
}

// Gadget is a function driver serving descriptors, a small vendor
// protocol and an optional bulk loopback.
type Gadget struct {
	// Vendor answers vendor requests other than VendorStore and
	// VendorEcho. For a control read it returns the reply. Control
	// writes are not passed to it.
	Vendor func(setup *usb.SetupPacket) ([]byte, error)

	cfg     Config
	device  usb.DeviceDescriptor
	strings [numStrings][]byte

	c      *udc.Controller
	config uint8
	alt    uint8

	vendor []byte
	stored int

	responseBuf [MaxResponseSize]byte
	reply       udc.Request
	recv        udc.Request

	loop  *loopback
	stats Stats
}

// New creates a gadget from cfg.
func New(cfg Config) (*Gadget, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g := &Gadget{
		cfg:    cfg,
		vendor: make([]byte, cfg.VendorBuffer),
	}
	g.device = usb.DeviceDescriptor{
		USBVersion:        0x0200,
		DeviceClass:       usb.ClassPerInterface,
		VendorID:          cfg.VendorID,
		ProductID:         cfg.ProductID,
		DeviceVersion:     cfg.DeviceVersion,
		NumConfigurations: 1,
	}

	g.strings[0] = usb.LanguageDescriptor(usb.LangIDUSEnglish)
	for _, s := range []struct {
		index uint8
		text  string
		field *uint8
	}{
		{stringManufacturer, cfg.Manufacturer, &g.device.ManufacturerIndex},
		{stringProduct, cfg.Product, &g.device.ProductIndex},
		{stringSerial, cfg.Serial, &g.device.SerialNumberIndex},
		{stringInterface, "loopback", nil},
	} {
		if s.text == "" {
			continue
		}
		g.strings[s.index] = usb.StringDescriptor(s.text)
		if s.field != nil {
			*s.field = s.index
		}
	}

	if cfg.Loopback {
		g.loop = newLoopback(g, cfg.LoopbackBuffer)
	}
	return g, nil
}

// Config returns the gadget configuration.
func (g *Gadget) Config() Config { return g.cfg }

// Configuration returns the active configuration value, 0 when
// unconfigured.
func (g *Gadget) Configuration() uint8 { return g.config }

// Stats returns the gadget counters.
func (g *Gadget) Stats() Stats { return g.stats }

// Stored returns the contents of the vendor buffer.
func (g *Gadget) Stored() []byte { return g.vendor[:g.stored] }

// Bind implements udc.FunctionDriver.
func (g *Gadget) Bind(c *udc.Controller) error {
	if g.cfg.Loopback {
		for _, addr := range []uint8{g.cfg.LoopbackIn, g.cfg.LoopbackOut} {
			ep := c.Endpoint(int(addr & 0x0F))
			if ep == nil || ep.Kind() != udc.KindGeneric {
				return fmt.Errorf("gadget: loopback endpoint 0x%02X: %w", addr, pkg.ErrInvalidEndpoint)
			}
		}
	}
	g.device.MaxPacketSize0 = uint8(c.Config().EP0MaxPacket)
	g.c = c
	g.config = 0
	pkg.LogDebug(pkg.ComponentGadget, "bound",
		"vid", fmt.Sprintf("%04x", g.cfg.VendorID), "pid", fmt.Sprintf("%04x", g.cfg.ProductID),
		"loopback", g.cfg.Loopback)
	return nil
}

// Setup implements udc.FunctionDriver.
func (g *Gadget) Setup(c *udc.Controller, setup *usb.SetupPacket) error {
	g.stats.Setups++

	var err error
	switch setup.Type() {
	case usb.TypeStandard:
		err = g.standard(setup)
	case usb.TypeVendor:
		err = g.vendorRequest(setup)
	default:
		err = fmt.Errorf("class request 0x%02X: %w", setup.Request, pkg.ErrNotSupported)
	}
	if err != nil {
		g.stats.Rejected++
		pkg.LogDebug(pkg.ComponentGadget, "request rejected", "packet", setup.String(), "error", err)
	}
	return err
}

// Disconnect implements udc.Disconnecter.
func (g *Gadget) Disconnect(*udc.Controller) {
	g.stats.Disconnects++
	g.config = 0
	g.alt = 0
	if g.loop != nil {
		g.loop.stop()
	}
	pkg.LogInfo(pkg.ComponentGadget, "disconnected")
}

// Suspend implements udc.Suspender.
func (g *Gadget) Suspend(*udc.Controller) {
	g.stats.Suspends++
	pkg.LogDebug(pkg.ComponentGadget, "suspended")
}

// Resume implements udc.Resumer.
func (g *Gadget) Resume(*udc.Controller) {
	g.stats.Resumes++
	pkg.LogDebug(pkg.ComponentGadget, "resumed")
}

// respond queues data on endpoint 0 as the data stage of a control read,
// truncated to wLength. The buffer must stay untouched until the reply
// completes.
func (g *Gadget) respond(setup *usb.SetupPacket, data []byte) error {
	n := min(len(data), int(setup.Length))
	g.reply = udc.Request{
		Buf:      data[:n],
		Length:   n,
		Zero:     n < int(setup.Length),
		Complete: g.replied,
	}
	return g.c.Endpoint(0).Queue(&g.reply)
}

func (g *Gadget) replied(_ *udc.Endpoint, req *udc.Request) {
	if req.Err != nil {
		pkg.LogDebug(pkg.ComponentGadget, "reply failed", "status", req.Status, "error", req.Err)
	}
}

func (g *Gadget) vendorRequest(setup *usb.SetupPacket) error {
	switch setup.Request {
	case VendorStore:
		if setup.IsIn() {
			return fmt.Errorf("vendor store with IN direction: %w", pkg.ErrInvalidRequest)
		}
		if int(setup.Length) > len(g.vendor) {
			return fmt.Errorf("vendor store of %d bytes, buffer holds %d: %w",
				setup.Length, len(g.vendor), pkg.ErrInvalidRequest)
		}
		g.stored = 0
		g.recv = udc.Request{
			Buf:      g.vendor[:setup.Length],
			Length:   int(setup.Length),
			Complete: g.storeDone,
		}
		return g.c.Endpoint(0).Queue(&g.recv)

	case VendorEcho:
		if !setup.IsIn() {
			return fmt.Errorf("vendor echo with OUT direction: %w", pkg.ErrInvalidRequest)
		}
		return g.respond(setup, g.vendor[:g.stored])
	}

	if g.Vendor == nil || (!setup.IsIn() && setup.Length > 0) {
		return fmt.Errorf("vendor request 0x%02X: %w", setup.Request, pkg.ErrNotSupported)
	}
	data, err := g.Vendor(setup)
	if err != nil {
		return err
	}
	if setup.IsIn() {
		return g.respond(setup, data)
	}
	return nil
}

func (g *Gadget) storeDone(_ *udc.Endpoint, req *udc.Request) {
	if req.Status != pkg.StatusSuccess {
		pkg.LogDebug(pkg.ComponentGadget, "vendor store failed", "status", req.Status, "error", req.Err)
		return
	}
	g.stored = req.Actual
	pkg.LogDebug(pkg.ComponentGadget, "vendor store", "len", req.Actual)
}
