package udc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
	"github.com/ardnew/usbf/sim"
	"github.com/ardnew/usbf/usb"
)

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"defaults", Config{}, nil},
		{"too many endpoints", Config{NumEndpoints: regs.MaxEndpoints + 1}, pkg.ErrInvalidParameter},
		{"odd ep0 packet", Config{EP0MaxPacket: 10}, pkg.ErrInvalidParameter},
		{"large ep0 packet", Config{EP0MaxPacket: 128}, pkg.ErrInvalidParameter},
		{"large packet", Config{EPXMaxPacket: 2048}, pkg.ErrInvalidParameter},
		{"negative retries", Config{Retries: -1}, pkg.ErrInvalidParameter},
		{"polled ep0", Config{PolledEndpoints: []int{0}}, pkg.ErrInvalidEndpoint},
		{"polled out of range", Config{NumEndpoints: 4, PolledEndpoints: []int{4}}, pkg.ErrInvalidEndpoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(regs.NewMemory(regs.WindowSize), tt.cfg)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Len(t, c.Endpoints(), regs.MaxEndpoints)
			assert.Equal(t, DefaultEP0MaxPacket, c.Endpoint(0).MaxPacket())
			assert.Equal(t, DefaultEPXMaxPacket, c.Endpoint(1).MaxPacket())
			assert.Equal(t, regs.DefaultRetries, c.Config().Retries)
		})
	}

	_, err := New(nil, Config{})
	assert.ErrorIs(t, err, pkg.ErrInvalidParameter)
}

func TestEndpointKinds(t *testing.T) {
	c, err := New(regs.NewMemory(regs.WindowSize), Config{NumEndpoints: 4, PolledEndpoints: []int{2}})
	require.NoError(t, err)

	assert.Equal(t, KindControl, c.Endpoint(0).Kind())
	for n := 1; n < 4; n++ {
		ep := c.Endpoint(n)
		assert.Equal(t, KindGeneric, ep.Kind())
		assert.Equal(t, n == 2, ep.Polled())
		assert.False(t, ep.Enabled())
	}
	assert.Nil(t, c.Endpoint(4))
	assert.Nil(t, c.Endpoint(-1))
}

func TestBind(t *testing.T) {
	r := newRig(t, Config{})

	assert.False(t, r.s.InReset())
	assert.Same(t, r.d, r.c.Driver())
	assert.Equal(t, StateNotAttached, r.c.State())
	assert.False(t, r.c.PulledUp())
	assert.False(t, r.s.Pullup())
	assert.True(t, r.c.Endpoint(0).Enabled())

	ena := r.s.Read32(regs.USBIntEna)
	for _, f := range []regs.Field{regs.IntEnUSBRst, regs.IntEnSpeedMode, regs.IntEnSpnd, regs.IntEnRsum} {
		assert.NotZero(t, ena&f.Mask(), f.String())
	}
	assert.NotZero(t, ena&regs.EPIntBit(0))
	assert.NotZero(t, r.s.Read32(regs.AHBBIntEna)&regs.VBusIntEn.Mask())
	assert.NotZero(t, r.s.Read32(regs.AHBMCtr)&regs.WBurstType.Mask())

	assert.ErrorIs(t, r.c.Bind(&testDriver{}), pkg.ErrAlreadyRunning)
	assert.ErrorIs(t, r.c.Bind(nil), pkg.ErrInvalidParameter)
}

func TestBindFailure(t *testing.T) {
	tests := []struct {
		name    string
		holdPLL bool
		bindErr error
		want    error
	}{
		{"pll never locks", true, nil, pkg.ErrTimeout},
		{"driver refuses", false, pkg.ErrNotSupported, pkg.ErrNotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sim.New(sim.Options{VBus: true})
			s.HoldPLL = tt.holdPLL
			c, err := New(s, Config{IRQ: s, Retries: 16})
			require.NoError(t, err)
			s.Attach(c.HandleInterrupts)

			err = c.Bind(&testDriver{bindErr: tt.bindErr})
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, s.InReset())
			assert.False(t, s.Pullup())
			assert.Nil(t, c.Driver())
			assert.False(t, c.Endpoint(0).Enabled())
			assert.Zero(t, s.Read32(regs.USBIntEna))

			// The failed bind leaves nothing behind.
			s.HoldPLL = false
			require.NoError(t, c.Bind(&testDriver{}))
			assert.True(t, c.Endpoint(0).Enabled())
		})
	}
}

func TestUnregister(t *testing.T) {
	r := newRig(t, Config{})
	r.configure()
	ep := r.enable(0x02, usb.XferBulk)

	var done completions
	req := done.request(make([]byte, 16))
	require.NoError(t, ep.Queue(req))

	require.NoError(t, r.c.Unregister())
	require.Len(t, done, 1)
	assert.Equal(t, pkg.StatusShutdown, req.Status)
	assert.ErrorIs(t, req.Err, pkg.ErrShutdown)

	assert.Nil(t, r.c.Driver())
	assert.True(t, r.s.InReset())
	assert.False(t, r.s.Pullup())
	assert.Equal(t, StateNotAttached, r.c.State())
	assert.Zero(t, r.c.Address())
	assert.Equal(t, SpeedUnknown, r.c.Speed())
	for _, ep := range r.c.Endpoints() {
		assert.False(t, ep.Enabled(), ep.String())
	}

	// No interrupt reaches the controller afterwards.
	require.NoError(t, r.s.VBus(false))
	require.NoError(t, r.s.BusReset())
	assert.Empty(t, r.s.Errors())
	assert.Zero(t, r.d.disconnects)

	assert.ErrorIs(t, r.c.Unregister(), pkg.ErrInvalidState)
}

func TestPullup(t *testing.T) {
	r := newRig(t, Config{})

	r.c.Pullup(true)
	assert.True(t, r.c.PulledUp())
	assert.True(t, r.s.Pullup())
	assert.Equal(t, StatePowered, r.c.State())

	r.control(usb.SetAddress(9), nil)
	require.Equal(t, uint8(9), r.s.Address())

	// Idempotent: the state is not touched again.
	r.c.Pullup(true)
	assert.Equal(t, StateAddress, r.c.State())

	r.c.Pullup(false)
	assert.False(t, r.s.Pullup())
	assert.Equal(t, StateNotAttached, r.c.State())
	assert.Zero(t, r.c.Address())
	assert.Zero(t, r.s.Address())

	r.c.Pullup(false)
	assert.Equal(t, StateNotAttached, r.c.State())
}

func TestEndpointByAddress(t *testing.T) {
	r := newRig(t, Config{})
	r.configure()
	r.enable(0x81, usb.XferBulk)
	r.enable(0x02, usb.XferBulk)

	tests := []struct {
		addr uint8
		want int
	}{
		{0x00, 0},
		{0x80, 0},
		{0x81, 1},
		{0x01, -1},
		{0x02, 2},
		{0x82, -1},
		{0x05, -1},
		{0x1F, -1},
	}
	for _, tt := range tests {
		ep := r.c.EndpointByAddress(tt.addr)
		if tt.want < 0 {
			assert.Nil(t, ep, "0x%02X", tt.addr)
			continue
		}
		require.NotNil(t, ep, "0x%02X", tt.addr)
		assert.Equal(t, tt.want, ep.Index())
	}
}

func TestEnableRejects(t *testing.T) {
	r := newRig(t, Config{})
	tests := []struct {
		name string
		ep   int
		desc *usb.EndpointDescriptor
		want error
	}{
		{"control endpoint", 0, &usb.EndpointDescriptor{EndpointAddress: 0x80}, pkg.ErrInvalidEndpoint},
		{"nil descriptor", 1, nil, pkg.ErrInvalidParameter},
		{"wrong number", 1, &usb.EndpointDescriptor{EndpointAddress: 0x82, Attributes: usb.XferBulk}, pkg.ErrInvalidParameter},
		{"control type", 1, &usb.EndpointDescriptor{EndpointAddress: 0x81, Attributes: usb.XferControl}, pkg.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.c.Endpoint(tt.ep).Enable(tt.desc)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestEnableProgramsHardware(t *testing.T) {
	tests := []struct {
		name string
		addr uint8
		attr uint8
		mode uint32
		ena  uint32
	}{
		{"bulk in", 0x81, usb.XferBulk, regs.ModeBulk, regs.EPnInEn.Mask() | regs.EPnInEndEn.Mask()},
		{"interrupt in", 0x83, usb.XferInterrupt, regs.ModeInterrupt, regs.EPnInEn.Mask() | regs.EPnInEndEn.Mask()},
		{"iso out", 0x04, usb.XferIsochronous, regs.ModeIso, regs.EPnOutEn.Mask() | regs.EPnOutEndEn.Mask()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, Config{})
			r.configure()
			ep := r.enable(tt.addr, tt.attr)
			base := regs.EPnOffset(ep.Index())

			ctrl := r.s.Read32(base + regs.EPnControl)
			assert.NotZero(t, ctrl&regs.EPnEN.Mask())
			assert.Equal(t, tt.mode, (ctrl&regs.EPnMode.Mask())>>regs.EPnMode.Shift())
			assert.Equal(t, tt.addr&usb.DirIn != 0, ctrl&regs.EPnDir0.Mask() != 0)
			assert.Equal(t, tt.ena, r.s.Read32(base+regs.EPnIntEna))
			assert.NotZero(t, r.s.Read32(regs.USBIntEna)&regs.EPIntBit(ep.Index()))
			assert.Equal(t, uint32(DefaultEPXMaxPacket), r.s.Read32(base+regs.EPnPcktAdrs)&regs.EPnMaxPacket.Mask())
			assert.Equal(t, tt.addr, ep.Address())

			require.NoError(t, ep.Disable())
			assert.Zero(t, r.s.Read32(base+regs.EPnControl)&regs.EPnEN.Mask())
			assert.Zero(t, r.s.Read32(regs.USBIntEna)&regs.EPIntBit(ep.Index()))
			assert.Nil(t, ep.Descriptor())
			assert.NoError(t, ep.Disable())
		})
	}
}
