package udc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbf/sim"
	"github.com/ardnew/usbf/usb"
)

type testDriver struct {
	bindErr error
	onSetup func(c *Controller, p *usb.SetupPacket) error

	setups      []usb.SetupPacket
	disconnects int
	suspends    int
	resumes     int
}

func (d *testDriver) Bind(*Controller) error { return d.bindErr }

func (d *testDriver) Setup(c *Controller, p *usb.SetupPacket) error {
	d.setups = append(d.setups, *p)
	if d.onSetup != nil {
		return d.onSetup(c, p)
	}
	return nil
}

func (d *testDriver) Disconnect(*Controller) { d.disconnects++ }
func (d *testDriver) Suspend(*Controller)    { d.suspends++ }
func (d *testDriver) Resume(*Controller)     { d.resumes++ }

// rig is a bound controller on a simulated bus.
type rig struct {
	t *testing.T
	c *Controller
	s *sim.Sim
	d *testDriver
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	s := sim.New(sim.Options{HighSpeed: true})
	cfg.IRQ = s
	if cfg.Retries == 0 {
		cfg.Retries = 32
	}
	c, err := New(s, cfg)
	require.NoError(t, err)
	s.Attach(c.HandleInterrupts)

	d := &testDriver{}
	require.NoError(t, c.Bind(d))
	return &rig{t: t, c: c, s: s, d: d}
}

// connect plugs the cable and resets the bus at high speed.
func (r *rig) connect() {
	r.t.Helper()
	require.NoError(r.t, r.s.VBus(true))
	require.NoError(r.t, r.s.BusReset())
	require.NoError(r.t, r.s.SpeedChange(true))
}

// configure connects, addresses and configures the device.
func (r *rig) configure() {
	r.t.Helper()
	r.connect()
	r.control(usb.SetAddress(7), nil)
	r.control(usb.SetConfiguration(1), nil)
}

func (r *rig) control(p usb.SetupPacket, data []byte) []byte {
	r.t.Helper()
	reply, err := r.s.Control(p, data)
	require.NoError(r.t, err)
	return reply
}

func (r *rig) enable(addr, attr uint8) *Endpoint {
	r.t.Helper()
	ep := r.c.Endpoint(int(addr & 0x0F))
	require.NotNil(r.t, ep)
	require.NoError(r.t, ep.Enable(&usb.EndpointDescriptor{
		EndpointAddress: addr,
		Attributes:      attr,
		MaxPacketSize:   512,
	}))
	return ep
}

// completions records every completed request in order.
type completions []*Request

func (l *completions) request(buf []byte) *Request {
	return &Request{
		Buf:    buf,
		Length: len(buf),
		Complete: func(_ *Endpoint, req *Request) {
			*l = append(*l, req)
		},
	}
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}
