package udc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
	"github.com/ardnew/usbf/usb"
)

const (
	vendorStore = 0x01
	vendorEcho  = 0x02
)

// vendorRig answers vendor requests: vendorStore receives the data stage
// into stored, vendorEcho replies with stored.
type vendorRig struct {
	*rig
	stored []byte
	done   completions
	zero   bool
}

func newVendorRig(t *testing.T, cfg Config) *vendorRig {
	v := &vendorRig{rig: newRig(t, cfg)}
	v.d.onSetup = func(c *Controller, p *usb.SetupPacket) error {
		if p.Type() != usb.TypeVendor {
			return nil
		}
		switch p.Request {
		case vendorStore:
			v.stored = make([]byte, p.Length)
			return c.Endpoint(0).Queue(v.done.request(v.stored))
		case vendorEcho:
			req := v.done.request(v.stored[:min(len(v.stored), int(p.Length))])
			req.Zero = v.zero
			return c.Endpoint(0).Queue(req)
		}
		return pkg.ErrNotSupported
	}
	v.connect()
	return v
}

func vendor(request uint8, in bool, length uint16) usb.SetupPacket {
	dir := uint8(usb.DirOut)
	if in {
		dir = usb.DirIn
	}
	return usb.SetupPacket{
		RequestType: dir | usb.TypeVendor | usb.RecipDevice,
		Request:     request,
		Length:      length,
	}
}

func TestNoDataSetupGoesToStatus(t *testing.T) {
	r := newRig(t, Config{})
	r.connect()

	require.NoError(t, r.s.Setup(usb.SetAddress(7)))
	assert.Equal(t, StageSetupAction, r.c.Stage())
	assert.Equal(t, OutcomeFinish, r.c.Outcome())
	assert.Empty(t, r.s.IN(0), "no data stage")

	require.NoError(t, r.s.StageStart())
	assert.Equal(t, StageStatus, r.c.Stage())
	pkts := r.s.TakeIN(0)
	require.Len(t, pkts, 1)
	assert.Empty(t, pkts[0], "status stage is a zero-length packet")

	ep0 := r.c.Endpoint(0).Stats()
	assert.Equal(t, 1, ep0.StatusZLPs)
	assert.Zero(t, ep0.TxPackets)

	require.NoError(t, r.s.StageEnd())
	assert.Equal(t, StageIdle, r.c.Stage())
}

func TestSetAddress(t *testing.T) {
	tests := []struct {
		name  string
		setup usb.SetupPacket
		stall bool
	}{
		{"valid", usb.SetAddress(7), false},
		{"highest", usb.SetAddress(usb.MaxAddress), false},
		{"out of range", usb.SetAddress(200), true},
		{"with data", func() usb.SetupPacket {
			p := usb.SetAddress(7)
			p.Length = 1
			return p
		}(), true},
		{"wrong recipient", func() usb.SetupPacket {
			p := usb.SetAddress(7)
			p.RequestType |= usb.RecipIface
			return p
		}(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, Config{})
			r.connect()

			_, err := r.s.Control(tt.setup, make([]byte, tt.setup.Length))
			if tt.stall {
				assert.ErrorIs(t, err, pkg.ErrStall)
				assert.Equal(t, OutcomeStall, r.c.Outcome())
				assert.Equal(t, 1, r.s.Stalls(0))
				assert.Zero(t, r.s.Address())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, OutcomeFinish, r.c.Outcome())
			assert.Equal(t, StateAddress, r.c.State())
			assert.Equal(t, uint8(tt.setup.Value), r.c.Address())
			assert.Equal(t, uint32(tt.setup.Value)<<16, r.s.Read32(regs.USBAddress))
		})
	}
}

func TestSetConfiguration(t *testing.T) {
	r := newRig(t, Config{})
	r.connect()

	// Not addressed yet.
	_, err := r.s.Control(usb.SetConfiguration(1), nil)
	assert.ErrorIs(t, err, pkg.ErrStall)
	assert.Empty(t, r.d.setups)

	r.control(usb.SetAddress(7), nil)
	r.control(usb.SetConfiguration(1), nil)
	assert.Equal(t, StateConfigured, r.c.State())
	assert.True(t, r.s.Configured())
	require.Len(t, r.d.setups, 1)
	assert.Equal(t, uint8(usb.RequestSetConfiguration), r.d.setups[0].Request)

	// Driver refusal reverts to the addressed state.
	r.d.onSetup = func(*Controller, *usb.SetupPacket) error { return pkg.ErrNotSupported }
	_, err = r.s.Control(usb.SetConfiguration(2), nil)
	assert.ErrorIs(t, err, pkg.ErrStall)
	assert.Equal(t, StateAddress, r.c.State())
	assert.False(t, r.s.Configured())
}

func TestSetConfigurationZero(t *testing.T) {
	r := newRig(t, Config{})
	r.configure()
	in := r.enable(0x81, usb.XferBulk)
	out := r.enable(0x02, usb.XferBulk)

	var done completions
	req := done.request(make([]byte, 64))
	require.NoError(t, out.Queue(req))

	r.control(usb.SetConfiguration(0), nil)
	assert.Equal(t, StateAddress, r.c.State())
	assert.False(t, r.s.Configured())
	assert.False(t, in.Enabled())
	assert.False(t, out.Enabled())
	assert.True(t, r.c.Endpoint(0).Enabled())

	require.Len(t, done, 1)
	assert.Equal(t, pkg.StatusShutdown, req.Status)
}

func TestGetStatus(t *testing.T) {
	tests := []struct {
		name        string
		selfPowered bool
		setup       usb.SetupPacket
		halt        bool
		want        []byte
	}{
		{"device bus powered", false, usb.GetStatus(usb.RecipDevice, 0), false, []byte{0x00, 0x00}},
		{"device self powered", true, usb.GetStatus(usb.RecipDevice, 0), false, []byte{0x01, 0x00}},
		{"interface", true, usb.GetStatus(usb.RecipIface, 0), false, []byte{0x00, 0x00}},
		{"endpoint running", false, usb.GetStatus(usb.RecipEndpoint, 0x81), false, []byte{0x00, 0x00}},
		{"endpoint halted", false, usb.GetStatus(usb.RecipEndpoint, 0x81), true, []byte{0x01, 0x00}},
		{"endpoint zero", false, usb.GetStatus(usb.RecipEndpoint, 0x80), false, []byte{0x00, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, Config{SelfPowered: tt.selfPowered})
			r.configure()
			ep := r.enable(0x81, usb.XferBulk)
			require.NoError(t, ep.SetHalt(tt.halt))

			require.NoError(t, r.s.Setup(tt.setup))
			assert.Equal(t, StageData, r.c.Stage())
			pkts := r.s.IN(0)
			require.Len(t, pkts, 1, "one packet and no zero-length packet")
			assert.Equal(t, tt.want, pkts[0])

			require.NoError(t, r.s.StageStart())
			assert.Len(t, r.s.IN(0), 1)
			require.NoError(t, r.s.Out(0, nil))
			require.NoError(t, r.s.StageEnd())
			assert.Equal(t, StageIdle, r.c.Stage())
			assert.Empty(t, r.s.Errors())
		})
	}
}

func TestGetStatusStalls(t *testing.T) {
	tests := []struct {
		name  string
		setup usb.SetupPacket
	}{
		{"unknown endpoint", usb.GetStatus(usb.RecipEndpoint, 0x85)},
		{"unknown recipient", usb.GetStatus(usb.RecipOther, 0)},
		{"direction mismatch", usb.SetupPacket{
			RequestType: usb.DirOut | usb.TypeStandard | usb.RecipDevice,
			Request:     usb.RequestGetStatus,
			Length:      2,
		}},
		{"short", func() usb.SetupPacket {
			p := usb.GetStatus(usb.RecipDevice, 0)
			p.Length = 1
			return p
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, Config{})
			r.configure()
			_, err := r.s.Control(tt.setup, make([]byte, 2))
			assert.ErrorIs(t, err, pkg.ErrStall)
			assert.Equal(t, 1, r.c.Endpoint(0).Stats().Stalls)
		})
	}
}

func TestEndpointHaltFeature(t *testing.T) {
	r := newRig(t, Config{})
	r.configure()
	ep := r.enable(0x81, usb.XferBulk)

	r.control(usb.SetFeature(usb.RecipEndpoint, usb.FeatureEndpointHalt, 0x81), nil)
	assert.True(t, ep.Halted())
	assert.True(t, r.s.Stalled(1))
	assert.Equal(t, []byte{0x01, 0x00}, r.control(usb.GetStatus(usb.RecipEndpoint, 0x81), nil))

	r.control(usb.ClearFeature(usb.RecipEndpoint, usb.FeatureEndpointHalt, 0x81), nil)
	assert.False(t, ep.Halted())
	assert.False(t, r.s.Stalled(1))

	// Halting endpoint 0 through a feature request is accepted and ignored.
	r.control(usb.SetFeature(usb.RecipEndpoint, usb.FeatureEndpointHalt, 0x00), nil)
	assert.Zero(t, r.s.Stalls(0))
}

func TestFeatureStalls(t *testing.T) {
	tests := []struct {
		name  string
		setup usb.SetupPacket
	}{
		{"remote wakeup", usb.SetFeature(usb.RecipDevice, usb.FeatureDeviceRemoteWakeup, 0)},
		{"test mode", usb.SetFeature(usb.RecipDevice, usb.FeatureTestMode, 0)},
		{"halt on device", usb.ClearFeature(usb.RecipDevice, usb.FeatureEndpointHalt, 0)},
		{"unknown endpoint", usb.ClearFeature(usb.RecipEndpoint, usb.FeatureEndpointHalt, 0x83)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, Config{})
			r.configure()
			_, err := r.s.Control(tt.setup, nil)
			assert.ErrorIs(t, err, pkg.ErrStall)
		})
	}
}

func TestDelegation(t *testing.T) {
	r := newRig(t, Config{})
	r.connect()

	r.control(usb.SetInterface(0, 1), nil)
	require.Len(t, r.d.setups, 1)
	assert.Equal(t, uint8(usb.RequestSetInterface), r.d.setups[0].Request)

	r.d.onSetup = func(*Controller, *usb.SetupPacket) error { return pkg.ErrNotSupported }
	_, err := r.s.Control(usb.GetDescriptor(usb.DescDevice, 0, 18), nil)
	assert.ErrorIs(t, err, pkg.ErrStall)
	assert.Equal(t, OutcomeStall, r.c.Outcome())
}

func TestControlRead(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wLength uint16
		zero    bool
		packets int
	}{
		{"short", 10, 64, false, 1},
		{"one full packet", 64, 64, false, 1},
		{"full packet with zlp", 64, 255, true, 2},
		{"two packets", 100, 100, false, 2},
		{"two full packets with zlp", 128, 255, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVendorRig(t, Config{})
			v.zero = tt.zero
			v.control(vendor(vendorStore, false, uint16(tt.size)), payload(tt.size))

			require.NoError(t, v.s.Setup(vendor(vendorEcho, true, tt.wLength)))
			assert.Len(t, v.s.IN(0), tt.packets)
			require.NoError(t, v.s.StageStart())
			require.NoError(t, v.s.Out(0, nil))
			require.NoError(t, v.s.StageEnd())

			var got []byte
			for _, p := range v.s.IN(0) {
				assert.LessOrEqual(t, len(p), DefaultEP0MaxPacket)
				got = append(got, p...)
			}
			assert.Equal(t, payload(tt.size), got)

			require.Len(t, v.done, 2)
			assert.Equal(t, pkg.StatusSuccess, v.done[1].Status)
			assert.Equal(t, tt.size, v.done[1].Actual)
		})
	}
}

func TestControlWrite(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"one byte", 1},
		{"partial word", 7},
		{"one packet", 64},
		{"packet and a half", 96},
		{"two packets", 128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVendorRig(t, Config{})
			data := payload(tt.size)

			require.NoError(t, v.s.Setup(vendor(vendorStore, false, uint16(tt.size))))
			assert.Equal(t, StageData, v.c.Stage())
			for off := 0; off < tt.size; off += DefaultEP0MaxPacket {
				require.NoError(t, v.s.Out(0, data[off:min(off+DefaultEP0MaxPacket, tt.size)]))
			}
			require.Len(t, v.done, 1)
			assert.Equal(t, tt.size, v.done[0].Actual)
			assert.Equal(t, data, v.stored)

			require.NoError(t, v.s.StageStart())
			assert.Equal(t, StageStatus, v.c.Stage())
			pkts := v.s.TakeIN(0)
			require.Len(t, pkts, 1)
			assert.Empty(t, pkts[0])

			// A round trip through the echo request returns the same bytes.
			assert.Equal(t, data, v.control(vendor(vendorEcho, true, uint16(tt.size)), nil))
		})
	}
}

func TestControlWriteOverrun(t *testing.T) {
	v := newVendorRig(t, Config{})
	require.NoError(t, v.s.Setup(vendor(vendorStore, false, 4)))

	err := v.s.Out(0, payload(8))
	assert.ErrorIs(t, err, pkg.ErrOverrun)
	require.Len(t, v.done, 1)
	assert.Equal(t, pkg.StatusOverrun, v.done[0].Status)
	assert.Equal(t, payload(4), v.stored)
	assert.Zero(t, v.s.OutPending(0))
}

func TestSetupAbortsTransfer(t *testing.T) {
	v := newVendorRig(t, Config{})
	require.NoError(t, v.s.Setup(vendor(vendorStore, false, 100)))
	require.NoError(t, v.s.Out(0, payload(64)))
	require.Empty(t, v.done)
	aborted := v.stored

	// The host gives up and starts over.
	v.control(usb.SetAddress(3), nil)
	require.Len(t, v.done, 1)
	assert.Equal(t, pkg.StatusCancelled, v.done[0].Status)
	assert.Equal(t, 64, v.done[0].Actual)
	assert.Equal(t, payload(64), aborted[:64])
	assert.Zero(t, v.c.Endpoint(0).Pending())
	assert.Equal(t, StateAddress, v.c.State())
}

func TestBufferClearTimeout(t *testing.T) {
	r := newRig(t, Config{Retries: 8})
	r.configure()
	r.s.HoldIN = true
	r.s.HoldBufferClear = true

	// The first reply stays in the IN buffer; the next control read cannot
	// flush it.
	require.NoError(t, r.s.Setup(usb.GetStatus(usb.RecipDevice, 0)))
	err := r.s.Setup(usb.GetStatus(usb.RecipDevice, 0))
	assert.ErrorIs(t, err, pkg.ErrTimeout)
	assert.NotEmpty(t, r.s.Errors())
}

func TestEP0Halt(t *testing.T) {
	r := newRig(t, Config{})
	r.connect()
	ep0 := r.c.Endpoint(0)

	require.NoError(t, ep0.SetHalt(true))
	assert.True(t, r.s.Stalled(0))
	assert.False(t, ep0.Halted(), "protocol stall is not a halt")
	require.NoError(t, ep0.SetHalt(false))
	assert.True(t, r.s.Stalled(0), "cleared by the next setup only")

	r.control(usb.SetAddress(1), nil)
	assert.False(t, r.s.Stalled(0))
}
