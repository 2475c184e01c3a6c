package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/usbf/gadget"
	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/udc"
	"github.com/ardnew/usbf/usb"
)

func TestDefault(t *testing.T) {
	f := Default()
	require.NoError(t, f.Validate())
	assert.Equal(t, udc.DefaultConfig(), f.Controller.UDC())
	assert.Equal(t, gadget.DefaultConfig(), f.Gadget.Config())
	assert.True(t, f.Controller.HighSpeed)
	assert.Equal(t, "enumerate", f.Scenario.Name)
	assert.NotEmpty(t, f.Scenario.Steps)
}

func TestTemplateLoads(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatYAML, FormatTOML} {
		t.Run(format, func(t *testing.T) {
			data, err := Template(format)
			require.NoError(t, err)
			require.NotEmpty(t, data)

			path := filepath.Join(t.TempDir(), "usbfsim."+format)
			require.NoError(t, os.WriteFile(path, data, 0o644))
			f, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, Default(), f)
		})
	}
}

func TestDecodeKeepsDefaults(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		f, err := Decode([]byte(`
gadget:
  serial: XYZ
  loopback: false
  loopback_in: 0x83
scenario:
  name: custom
`), FormatYAML)
		require.NoError(t, err)
		assert.Equal(t, "XYZ", f.Gadget.Serial)
		assert.False(t, f.Gadget.Loopback)
		assert.Equal(t, uint8(0x83), f.Gadget.LoopbackIn)
		assert.Equal(t, "usbf", f.Gadget.Manufacturer)
		assert.Equal(t, Default().Controller, f.Controller)
		assert.Equal(t, "custom", f.Scenario.Name)
		assert.Equal(t, Enumerate().Steps, f.Scenario.Steps)
	})

	t.Run("toml", func(t *testing.T) {
		f, err := Decode([]byte(`
[controller]
endpoints = 4
high_speed = false
polled = [3]

[gadget]
product = "bench"
loopback_in = 0x83

[scenario]
name = "short"

[[scenario.steps]]
op = "vbus"
on = true

[[scenario.steps]]
op = "control"
request_type = 0x80
request = 6
value = 0x0100
length = 18
`), FormatTOML)
		require.NoError(t, err)
		assert.Equal(t, 4, f.Controller.Endpoints)
		assert.False(t, f.Controller.HighSpeed)
		assert.Equal(t, []int{3}, f.Controller.Polled)
		assert.Equal(t, udc.DefaultEPXMaxPacket, f.Controller.MaxPacket)
		assert.Equal(t, "bench", f.Gadget.Product)
		assert.Equal(t, uint8(0x83), f.Gadget.LoopbackIn)
		assert.Equal(t, uint8(0x02), f.Gadget.LoopbackOut)

		require.Len(t, f.Scenario.Steps, 2)
		assert.Equal(t, Step{Op: OpVBus, On: true}, f.Scenario.Steps[0])
		assert.Equal(t, usb.GetDescriptor(usb.DescDevice, 0, 18), f.Scenario.Steps[1].Setup())
	})

	t.Run("json", func(t *testing.T) {
		f, err := Decode([]byte(`{"controller":{"retries":64},"scenario":{"steps":[{"op":"reset"}]}}`), FormatJSON)
		require.NoError(t, err)
		assert.Equal(t, 64, f.Controller.Retries)
		assert.Equal(t, Default().Gadget, f.Gadget)
		assert.Empty(t, f.Scenario.Name)
		assert.Equal(t, []Step{{Op: OpReset}}, f.Scenario.Steps)
	})
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"no endpoints", `{"controller":{"endpoints":0}}`, pkg.ErrInvalidParameter},
		{"too many endpoints", `{"controller":{"endpoints":17}}`, pkg.ErrInvalidParameter},
		{"no retries", `{"controller":{"retries":0}}`, pkg.ErrInvalidParameter},
		{"polled ep0", `{"controller":{"polled":[0]}}`, pkg.ErrInvalidEndpoint},
		{"loopback beyond build", `{"controller":{"endpoints":2}}`, pkg.ErrInvalidEndpoint},
		{"gadget power", `{"gadget":{"max_power_ma":900}}`, pkg.ErrInvalidParameter},
		{"unknown op", `{"scenario":{"steps":[{"op":"jump"}]}}`, pkg.ErrInvalidParameter},
		{"endpoint range", `{"scenario":{"steps":[{"op":"out","ep":16}]}}`, pkg.ErrInvalidEndpoint},
		{"bad data", `{"scenario":{"steps":[{"op":"out","ep":2,"data":"zz"}]}}`, pkg.ErrInvalidParameter},
		{"bad expect", `{"scenario":{"steps":[{"op":"in","ep":1,"expect":"012"}]}}`, pkg.ErrInvalidParameter},
		{"write length", `{"scenario":{"steps":[{"op":"control","request_type":64,"request":1,"length":4,"data":"00"}]}}`,
			pkg.ErrInvalidParameter},
		{"read with data", `{"scenario":{"steps":[{"op":"control","request_type":192,"request":2,"length":4,"data":"00"}]}}`,
			pkg.ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc), FormatJSON)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Decode([]byte(`{`), FormatJSON)
	assert.Error(t, err)
	_, err = Decode([]byte(`controller = [`), FormatTOML)
	assert.Error(t, err)
	_, err = Decode(nil, "ini")
	assert.ErrorIs(t, err, pkg.ErrNotSupported)
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"a.json", FormatJSON},
		{"dir/a.YAML", FormatYAML},
		{"a.yml", FormatYAML},
		{"a.toml", FormatTOML},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := FormatOf("a.ini")
	assert.ErrorIs(t, err, pkg.ErrNotSupported)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.Equal(t, FormatYAML, NormalizeFormat("YML"))
	assert.Empty(t, NormalizeFormat("xml"))
}

func TestStep(t *testing.T) {
	s := Step{Op: OpControl, RequestType: 0x40, Request: 1, Length: 3, Data: "0a 0b\n0c", Expect: " "}
	require.NoError(t, s.Validate(16))

	data, err := s.Payload()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x0b, 0x0c}, data)

	_, ok, err := s.Expected()
	require.NoError(t, err)
	assert.False(t, ok)

	s.Expect = "FF"
	want, ok, err := s.Expected()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0xFF}, want)

	assert.Contains(t, s.String(), "req=0x01")
	assert.Equal(t, "out ep2", (&Step{Op: OpOut, EP: 2}).String())
	assert.Equal(t, "vbus on=true", (&Step{Op: OpVBus, On: true}).String())
	assert.Equal(t, "reset", (&Step{Op: OpReset}).String())

	assert.ErrorIs(t, (&Step{Op: OpIn, EP: 4}).Validate(4), pkg.ErrInvalidEndpoint)
}
