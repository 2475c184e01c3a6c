// Package config loads usbfsim configuration files: the controller build,
// the gadget identity and the scenario script to run against the
// simulator.
//
// Files are JSON, YAML or TOML, chosen by extension. Keys absent from a
// file keep their defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"

	"github.com/ardnew/usbf/gadget"
	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/regs"
	"github.com/ardnew/usbf/udc"
)

// Supported file formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// File is one configuration file.
type File struct {
	Controller Controller `json:"controller" yaml:"controller" toml:"controller"`
	Gadget     Gadget     `json:"gadget" yaml:"gadget" toml:"gadget"`
	Scenario   Scenario   `json:"scenario" yaml:"scenario" toml:"scenario"`
}

// Controller selects the controller build and the simulated bus.
type Controller struct {
	Endpoints    int   `json:"endpoints" yaml:"endpoints" toml:"endpoints"`
	EP0MaxPacket int   `json:"ep0_max_packet" yaml:"ep0_max_packet" toml:"ep0_max_packet"`
	MaxPacket    int   `json:"max_packet" yaml:"max_packet" toml:"max_packet"`
	Retries      int   `json:"retries" yaml:"retries" toml:"retries"`
	SelfPowered  bool  `json:"self_powered" yaml:"self_powered" toml:"self_powered"`
	Polled       []int `json:"polled,omitempty" yaml:"polled,omitempty" toml:"polled,omitempty"`

	// HighSpeed is the speed the simulated host negotiates at power on.
	HighSpeed bool `json:"high_speed" yaml:"high_speed" toml:"high_speed"`
}

// Gadget mirrors gadget.Config.
type Gadget struct {
	VendorID      uint16 `json:"vendor_id" yaml:"vendor_id" toml:"vendor_id"`
	ProductID     uint16 `json:"product_id" yaml:"product_id" toml:"product_id"`
	DeviceVersion uint16 `json:"device_version" yaml:"device_version" toml:"device_version"`

	Manufacturer string `json:"manufacturer" yaml:"manufacturer" toml:"manufacturer"`
	Product      string `json:"product" yaml:"product" toml:"product"`
	Serial       string `json:"serial" yaml:"serial" toml:"serial"`

	MaxPowerMA  int  `json:"max_power_ma" yaml:"max_power_ma" toml:"max_power_ma"`
	SelfPowered bool `json:"self_powered" yaml:"self_powered" toml:"self_powered"`

	Loopback       bool  `json:"loopback" yaml:"loopback" toml:"loopback"`
	LoopbackIn     uint8 `json:"loopback_in" yaml:"loopback_in" toml:"loopback_in"`
	LoopbackOut    uint8 `json:"loopback_out" yaml:"loopback_out" toml:"loopback_out"`
	LoopbackBuffer int   `json:"loopback_buffer" yaml:"loopback_buffer" toml:"loopback_buffer"`
	VendorBuffer   int   `json:"vendor_buffer" yaml:"vendor_buffer" toml:"vendor_buffer"`
}

// Default returns the configuration used when no file is given: a full
// controller build at high speed, the loopback gadget and the enumeration
// scenario.
func Default() *File {
	c := udc.DefaultConfig()
	g := gadget.DefaultConfig()
	return &File{
		Controller: Controller{
			Endpoints:    c.NumEndpoints,
			EP0MaxPacket: c.EP0MaxPacket,
			MaxPacket:    c.EPXMaxPacket,
			Retries:      c.Retries,
			SelfPowered:  c.SelfPowered,
			HighSpeed:    true,
		},
		Gadget: Gadget{
			VendorID:       g.VendorID,
			ProductID:      g.ProductID,
			DeviceVersion:  g.DeviceVersion,
			Manufacturer:   g.Manufacturer,
			Product:        g.Product,
			Serial:         g.Serial,
			MaxPowerMA:     g.MaxPowerMA,
			SelfPowered:    g.SelfPowered,
			Loopback:       g.Loopback,
			LoopbackIn:     g.LoopbackIn,
			LoopbackOut:    g.LoopbackOut,
			LoopbackBuffer: g.LoopbackBuffer,
			VendorBuffer:   g.VendorBuffer,
		},
		Scenario: Enumerate(),
	}
}

// UDC returns the controller configuration. The interrupt mask is left to
// the caller.
func (c *Controller) UDC() udc.Config {
	return udc.Config{
		NumEndpoints:    c.Endpoints,
		EP0MaxPacket:    c.EP0MaxPacket,
		EPXMaxPacket:    c.MaxPacket,
		Retries:         c.Retries,
		SelfPowered:     c.SelfPowered,
		PolledEndpoints: c.Polled,
	}
}

// Config returns the gadget configuration.
func (g *Gadget) Config() gadget.Config {
	return gadget.Config{
		VendorID:       g.VendorID,
		ProductID:      g.ProductID,
		DeviceVersion:  g.DeviceVersion,
		Manufacturer:   g.Manufacturer,
		Product:        g.Product,
		Serial:         g.Serial,
		MaxPowerMA:     g.MaxPowerMA,
		SelfPowered:    g.SelfPowered,
		Loopback:       g.Loopback,
		LoopbackIn:     g.LoopbackIn,
		LoopbackOut:    g.LoopbackOut,
		LoopbackBuffer: g.LoopbackBuffer,
		VendorBuffer:   g.VendorBuffer,
	}
}

// Validate reports the first configuration error.
func (f *File) Validate() error {
	c := &f.Controller
	switch {
	case c.Endpoints < 1 || c.Endpoints > regs.MaxEndpoints:
		return fmt.Errorf("controller: endpoints %d outside 1..%d: %w",
			c.Endpoints, regs.MaxEndpoints, pkg.ErrInvalidParameter)
	case c.Retries < 1:
		return fmt.Errorf("controller: retries %d: %w", c.Retries, pkg.ErrInvalidParameter)
	}
	for _, n := range c.Polled {
		if n < 1 || n >= c.Endpoints {
			return fmt.Errorf("controller: polled endpoint %d: %w", n, pkg.ErrInvalidEndpoint)
		}
	}

	g := f.Gadget.Config()
	if err := g.Validate(); err != nil {
		return fmt.Errorf("gadget: %w", err)
	}
	if g.Loopback {
		for _, addr := range []uint8{g.LoopbackIn, g.LoopbackOut} {
			if int(addr&0x0F) >= c.Endpoints {
				return fmt.Errorf("gadget: loopback endpoint 0x%02X beyond %d endpoints: %w",
					addr, c.Endpoints, pkg.ErrInvalidEndpoint)
			}
		}
	}

	for i := range f.Scenario.Steps {
		if err := f.Scenario.Steps[i].Validate(c.Endpoints); err != nil {
			return fmt.Errorf("scenario %q step %d: %w", f.Scenario.Name, i+1, err)
		}
	}
	return nil
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("config %s: unknown extension: %w", path, pkg.ErrNotSupported)
	}
}

// NormalizeFormat maps a user supplied format name to a Format constant,
// or returns "" when it is not supported.
func NormalizeFormat(s string) string {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	case "toml":
		return FormatTOML
	default:
		return ""
	}
}

// Load reads and validates the file at path.
func Load(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	pkg.LogDebug(pkg.ComponentScenario, "config loaded", "path", path, "format", format,
		"scenario", f.Scenario.Name, "steps", len(f.Scenario.Steps))
	return f, nil
}

// Decode parses data in format over the defaults and validates the
// result. A file without scenario steps runs the enumeration scenario.
func Decode(data []byte, format string) (*File, error) {
	f := Default()
	f.Scenario = Scenario{}

	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, f)
	case FormatYAML:
		err = yaml.Unmarshal(data, f)
	case FormatTOML:
		err = decodeTOML(data, f)
	default:
		return nil, fmt.Errorf("format %q: %w", format, pkg.ErrNotSupported)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}

	if len(f.Scenario.Steps) == 0 {
		name := f.Scenario.Name
		f.Scenario = Enumerate()
		if name != "" {
			f.Scenario.Name = name
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// decodeTOML goes through the generic map form so that keys absent from
// the document keep the values already in f.
func decodeTOML(data []byte, f *File) error {
	tree, err := toml.LoadBytes(data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(tree.ToMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, f)
}

// Encode renders f in format.
func Encode(f *File, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		b, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(f)
	case FormatTOML:
		return toml.Marshal(*f)
	default:
		return nil, fmt.Errorf("format %q: %w", format, pkg.ErrNotSupported)
	}
}

// Template renders the default configuration in format.
func Template(format string) ([]byte, error) {
	return Encode(Default(), format)
}
