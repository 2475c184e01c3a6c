package udc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
	"github.com/ardnew/usbf/usb"
)

func TestBusReset(t *testing.T) {
	v := newVendorRig(t, Config{})
	v.control(usb.SetAddress(7), nil)
	require.Equal(t, SpeedHigh, v.c.Speed())

	// A control write is interrupted by the reset.
	require.NoError(t, v.s.Setup(vendor(vendorStore, false, 32)))
	require.Equal(t, 1, v.c.Endpoint(0).Pending())

	require.NoError(t, v.s.BusReset())
	assert.Equal(t, 1, v.d.disconnects)
	assert.Equal(t, SpeedUnknown, v.c.Speed())
	assert.Equal(t, StateNotAttached, v.c.State())
	assert.Zero(t, v.c.Address())
	assert.Zero(t, v.s.Address())
	assert.Equal(t, StageIdle, v.c.Stage())

	require.Len(t, v.done, 1)
	assert.Equal(t, pkg.StatusShutdown, v.done[0].Status)

	// No speed known: the next reset does not disconnect again.
	require.NoError(t, v.s.BusReset())
	assert.Equal(t, 1, v.d.disconnects)
}

func TestBusResetClearsBuffers(t *testing.T) {
	r := newRig(t, Config{})
	r.configure()
	r.enable(0x02, usb.XferBulk)
	require.NoError(t, r.s.Out(2, payload(10)))
	require.Equal(t, 10, r.s.OutPending(2))

	require.NoError(t, r.s.BusReset())
	assert.Zero(t, r.s.OutPending(2))
}

func TestBusResetDropsConfiguration(t *testing.T) {
	r := newRig(t, Config{})
	r.configure()
	require.True(t, r.s.Configured())

	require.NoError(t, r.s.BusReset())
	assert.False(t, r.s.Configured())
	assert.Zero(t, r.s.Read32(regs.USBControl)&regs.CtrlConf.Mask())
	assert.Equal(t, StateNotAttached, r.c.State())
}

func TestVBus(t *testing.T) {
	r := newRig(t, Config{})

	require.NoError(t, r.s.VBus(true))
	assert.True(t, r.c.PulledUp())
	assert.True(t, r.s.Pullup())
	assert.Equal(t, StatePowered, r.c.State())

	require.NoError(t, r.s.BusReset())
	require.NoError(t, r.s.SpeedChange(false))
	r.control(usb.SetAddress(4), nil)
	r.control(usb.SetConfiguration(1), nil)
	require.True(t, r.s.Configured())

	require.NoError(t, r.s.VBus(false))
	assert.False(t, r.c.PulledUp())
	assert.False(t, r.s.Pullup())
	assert.False(t, r.s.Configured())
	assert.Zero(t, r.s.Read32(regs.USBControl)&regs.CtrlDefault.Mask())
	assert.Equal(t, StateNotAttached, r.c.State())
	assert.Zero(t, r.c.Address())
	assert.Equal(t, SpeedUnknown, r.c.Speed())
	assert.Equal(t, 1, r.d.disconnects)
}

func TestSpeedChange(t *testing.T) {
	r := newRig(t, Config{})
	r.configure()
	ep := r.enable(0x81, usb.XferBulk)
	base := regs.EPnOffset(1)
	require.Equal(t, DefaultEPXMaxPacket, ep.MaxPacket())

	require.NoError(t, r.s.SpeedChange(false))
	assert.Equal(t, SpeedFull, r.c.Speed())
	assert.Equal(t, fullSpeedBulkMax, ep.MaxPacket())
	assert.Equal(t, uint32(fullSpeedBulkMax), r.s.Read32(base+regs.EPnPcktAdrs)&regs.EPnMaxPacket.Mask())

	require.NoError(t, r.s.SpeedChange(true))
	assert.Equal(t, SpeedHigh, r.c.Speed())
	assert.Equal(t, DefaultEPXMaxPacket, ep.MaxPacket())
	assert.Equal(t, DefaultEP0MaxPacket, r.c.Endpoint(0).MaxPacket())
}

func TestSuspendResume(t *testing.T) {
	r := newRig(t, Config{})
	r.configure()

	require.NoError(t, r.s.Suspend())
	assert.Equal(t, StateSuspended, r.c.State())
	assert.Equal(t, 1, r.d.suspends)

	require.NoError(t, r.s.Suspend())
	assert.Equal(t, 1, r.d.suspends, "already suspended")

	require.NoError(t, r.s.Resume())
	assert.Equal(t, StateConfigured, r.c.State())
	assert.Equal(t, 1, r.d.resumes)

	require.NoError(t, r.s.Resume())
	assert.Equal(t, 1, r.d.resumes, "not suspended")
}

func TestHandleInterruptsAcksBusCauses(t *testing.T) {
	r := newRig(t, Config{})
	r.connect()
	assert.Zero(t, r.s.Read32(regs.USBIntSta)&busCauses)
	assert.Zero(t, r.s.Read32(regs.AHBBInt)&regs.VBusInt.Mask())

	// Nothing pending is not an error.
	assert.NoError(t, r.c.HandleInterrupts())
}

func TestHandleInterruptsJoinsErrors(t *testing.T) {
	r := newRig(t, Config{})
	r.configure()
	one := r.enable(0x01, usb.XferBulk)
	two := r.enable(0x02, usb.XferBulk)

	var done completions
	require.NoError(t, one.Queue(done.request(make([]byte, 4))))
	require.NoError(t, two.Queue(done.request(make([]byte, 4))))

	// Both packets arrive before the interrupt is taken.
	require.True(t, r.s.Disable())
	require.NoError(t, r.s.Out(1, payload(8)))
	require.NoError(t, r.s.Out(2, payload(8)))

	err := r.c.HandleInterrupts()
	require.ErrorIs(t, err, pkg.ErrOverrun)
	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok)
	assert.Len(t, joined.Unwrap(), 2)

	require.Len(t, done, 2)
	for _, req := range done {
		assert.Equal(t, pkg.StatusOverrun, req.Status)
	}
	r.s.Enable()
	assert.Empty(t, r.s.Errors())
}

func TestDispatchOrder(t *testing.T) {
	t.Run("endpoint 0 before data endpoints", func(t *testing.T) {
		r := newRig(t, Config{})
		r.configure()
		ep := r.enable(0x02, usb.XferBulk)

		var done completions
		req := done.request(make([]byte, 64))
		require.NoError(t, ep.Queue(req))

		// Both causes are latched before the routine runs once.
		r.s.Disable()
		require.NoError(t, r.s.Out(2, payload(16)))
		require.NoError(t, r.s.Setup(usb.SetConfiguration(0)))
		require.Empty(t, done)

		require.NoError(t, r.c.HandleInterrupts())
		assert.Equal(t, StateAddress, r.c.State())
		assert.False(t, ep.Enabled())
		require.Len(t, done, 1)
		assert.Equal(t, pkg.StatusShutdown, req.Status)
		assert.Zero(t, req.Actual)
	})

	t.Run("bus causes before endpoint 0", func(t *testing.T) {
		r := newRig(t, Config{})
		r.configure()

		suspendsAtSetup := -1
		r.d.onSetup = func(*Controller, *usb.SetupPacket) error {
			suspendsAtSetup = r.d.suspends
			return nil
		}

		r.s.Disable()
		require.NoError(t, r.s.Setup(vendor(vendorStore, false, 0)))
		require.NoError(t, r.s.Suspend())

		require.NoError(t, r.c.HandleInterrupts())
		assert.Equal(t, 1, r.d.suspends)
		assert.Equal(t, 1, suspendsAtSetup, "suspend is handled before the setup")
		assert.Equal(t, StateSuspended, r.c.State())
	})
}
