package udc

import (
	"fmt"
	"slices"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
)

// Config holds the controller build options.
type Config struct {
	// NumEndpoints is the number of endpoints including endpoint 0.
	NumEndpoints int

	EP0MaxPacket int
	EPXMaxPacket int

	// Retries bounds every hardware handshake.
	Retries int

	// SelfPowered is reported by GET_STATUS for the device recipient.
	SelfPowered bool

	// PolledEndpoints lists generic endpoints serviced by Poll instead of
	// interrupts.
	PolledEndpoints []int

	// IRQ masks interrupt delivery around endpoint enable. Nil means no
	// masking is needed.
	IRQ IRQ
}

// DefaultConfig returns the configuration of a full controller build.
func DefaultConfig() Config {
	return Config{
		NumEndpoints: regs.MaxEndpoints,
		EP0MaxPacket: DefaultEP0MaxPacket,
		EPXMaxPacket: DefaultEPXMaxPacket,
		Retries:      regs.DefaultRetries,
	}
}

func (cfg *Config) fill() error {
	def := DefaultConfig()
	if cfg.NumEndpoints == 0 {
		cfg.NumEndpoints = def.NumEndpoints
	}
	if cfg.EP0MaxPacket == 0 {
		cfg.EP0MaxPacket = def.EP0MaxPacket
	}
	if cfg.EPXMaxPacket == 0 {
		cfg.EPXMaxPacket = def.EPXMaxPacket
	}
	if cfg.Retries == 0 {
		cfg.Retries = def.Retries
	}
	if cfg.IRQ == nil {
		cfg.IRQ = noIRQ{}
	}

	switch {
	case cfg.NumEndpoints < 1 || cfg.NumEndpoints > regs.MaxEndpoints:
		return fmt.Errorf("endpoints %d outside 1..%d: %w",
			cfg.NumEndpoints, regs.MaxEndpoints, pkg.ErrInvalidParameter)
	case cfg.EP0MaxPacket%4 != 0 || cfg.EP0MaxPacket < 8 || cfg.EP0MaxPacket > 64:
		return fmt.Errorf("ep0 max packet %d: %w", cfg.EP0MaxPacket, pkg.ErrInvalidParameter)
	case cfg.EPXMaxPacket%4 != 0 || cfg.EPXMaxPacket > 1024:
		return fmt.Errorf("max packet %d: %w", cfg.EPXMaxPacket, pkg.ErrInvalidParameter)
	case cfg.Retries < 0:
		return fmt.Errorf("retries %d: %w", cfg.Retries, pkg.ErrInvalidParameter)
	}
	for _, n := range cfg.PolledEndpoints {
		if n < 1 || n >= cfg.NumEndpoints {
			return fmt.Errorf("polled endpoint %d: %w", n, pkg.ErrInvalidEndpoint)
		}
	}
	return nil
}

// Controller is one USBF device controller instance. It is not safe for
// concurrent use: interrupt handling, polling and endpoint calls must be
// serialized by the caller.
type Controller struct {
	bus regs.Bus
	top regs.Block
	cfg Config
	irq IRQ
	eps []*Endpoint

	driver FunctionDriver

	state   State
	saved   State
	address uint8
	speed   Speed
	pullup  bool
}

// New creates a controller on bus. The hardware is left in reset until
// Bind.
func New(bus regs.Bus, cfg Config) (*Controller, error) {
	if bus == nil {
		return nil, fmt.Errorf("nil bus: %w", pkg.ErrInvalidParameter)
	}
	if err := cfg.fill(); err != nil {
		return nil, err
	}
	c := &Controller{
		bus: bus,
		top: regs.Top(bus),
		cfg: cfg,
		irq: cfg.IRQ,
	}
	c.eps = make([]*Endpoint, cfg.NumEndpoints)
	for i := range c.eps {
		c.eps[i] = newEndpoint(c, i)
		c.eps[i].polled = i > 0 && slices.Contains(cfg.PolledEndpoints, i)
	}
	pkg.LogDebug(pkg.ComponentController, "created",
		"endpoints", cfg.NumEndpoints, "ep0_maxpacket", cfg.EP0MaxPacket,
		"maxpacket", cfg.EPXMaxPacket)
	return c, nil
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// State returns the device state.
func (c *Controller) State() State { return c.state }

// Address returns the assigned device address.
func (c *Controller) Address() uint8 { return c.address }

// Speed returns the negotiated bus speed.
func (c *Controller) Speed() Speed { return c.speed }

// PulledUp reports whether the D+ pull-up is connected.
func (c *Controller) PulledUp() bool { return c.pullup }

// Driver returns the bound function driver, or nil.
func (c *Controller) Driver() FunctionDriver { return c.driver }

// Endpoints returns every endpoint in index order.
func (c *Controller) Endpoints() []*Endpoint { return c.eps }

// Endpoint returns endpoint n, or nil when it does not exist.
func (c *Controller) Endpoint(n int) *Endpoint {
	if n < 0 || n >= len(c.eps) {
		return nil
	}
	return c.eps[n]
}

// EndpointByAddress returns the endpoint addressed by addr. Generic
// endpoints must be enabled in the addressed direction.
func (c *Controller) EndpointByAddress(addr uint8) *Endpoint {
	ep := c.Endpoint(int(addr & 0x0F))
	if ep == nil || ep.kind == KindControl {
		return ep
	}
	if !ep.enabled || ep.in != (addr&0x80 != 0) {
		return nil
	}
	return ep
}

// Pullup connects or disconnects the D+ pull-up. It does nothing when the
// pull-up is already in the requested state.
func (c *Controller) Pullup(on bool) {
	if on == c.pullup {
		return
	}
	ctrl := c.top.Read(regs.USBControl)
	if on {
		c.state = StatePowered
		ctrl = ctrl&^regs.CtrlConnectB.Mask() | regs.CtrlPUE2.Mask()
	} else {
		c.state = StateNotAttached
		c.address = 0
		c.top.Write(regs.USBAddress, 0)
		ctrl = ctrl&^regs.CtrlPUE2.Mask() | regs.CtrlConnectB.Mask()
	}
	c.pullup = on
	c.top.Write(regs.USBControl, ctrl)
	pkg.LogInfo(pkg.ComponentController, "pullup", "on", on)
}

// Bind brings the controller out of reset, enables endpoint 0 and the bus
// interrupts, and binds drv. On failure the hardware is put back into
// reset and the pull-up stays off.
func (c *Controller) Bind(drv FunctionDriver) error {
	if drv == nil {
		return fmt.Errorf("bind: nil driver: %w", pkg.ErrInvalidParameter)
	}
	if c.driver != nil {
		return fmt.Errorf("bind: %w", pkg.ErrAlreadyRunning)
	}

	top := c.top
	top.Clear(regs.EPCRst)
	top.Clear(regs.PLLRst)
	if err := top.PollField(c.cfg.Retries, regs.PLLLock); err != nil {
		c.reset()
		return fmt.Errorf("bind: pll lock: %w", err)
	}
	top.Set(regs.WBurstType)
	top.Write(regs.USBControl, regs.CtrlIntSel.Mask()|regs.CtrlSOFRcv.Mask()|
		regs.CtrlSOFClkMode.Mask()|regs.CtrlConnectB.Mask())
	c.pullup = false
	c.state = StateNotAttached

	top.Write(regs.USBIntEna, regs.IntEnUSBRst.Mask()|regs.IntEnSpeedMode.Mask()|
		regs.IntEnSpnd.Mask()|regs.IntEnRsum.Mask())
	top.Set(regs.VBusIntEn)

	masked := c.irq.Disable()
	c.eps[0].enableControl()
	if masked {
		c.irq.Enable()
	}

	if err := drv.Bind(c); err != nil {
		c.reset()
		return fmt.Errorf("bind: driver: %w", err)
	}
	c.driver = drv
	pkg.LogInfo(pkg.ComponentController, "driver bound", "driver", fmt.Sprintf("%T", drv))
	return nil
}

// Unregister withdraws the pull-up, shuts every endpoint down and puts the
// controller back into reset. No interrupt fires afterwards.
func (c *Controller) Unregister() error {
	if c.driver == nil {
		return fmt.Errorf("unregister: no driver bound: %w", pkg.ErrInvalidState)
	}
	c.Pullup(false)
	c.reset()
	c.driver = nil
	pkg.LogInfo(pkg.ComponentController, "driver unregistered")
	return nil
}

// reset disables every endpoint, masks all interrupts and holds the EPC
// and PLL in reset.
func (c *Controller) reset() {
	for _, ep := range c.eps {
		_ = ep.Disable()
	}
	top := c.top
	top.Write(regs.USBIntEna, 0)
	top.Clear(regs.VBusIntEn)
	top.Set(regs.EPCRst)
	top.Set(regs.PLLRst)
	c.speed = SpeedUnknown
}

// deconfigure disables every generic endpoint and returns to the Address
// state.
func (c *Controller) deconfigure() {
	for _, ep := range c.eps[1:] {
		_ = ep.Disable()
	}
	c.top.Clear(regs.CtrlConf)
	c.state = StateAddress
}

func (c *Controller) refreshSpeed() {
	if c.top.IsSet(regs.StatusSpeedMode) {
		c.speed = SpeedHigh
	} else {
		c.speed = SpeedFull
	}
}
