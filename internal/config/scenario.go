package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ardnew/usbf/gadget"
	"github.com/ardnew/usbf/pkg"
	"github.com/ardnew/usbf/usb"
)

// Step operations.
const (
	OpVBus    = "vbus"    // plug (On) or unplug the cable
	OpReset   = "reset"   // bus reset
	OpSpeed   = "speed"   // speed negotiation, high speed when On
	OpSuspend = "suspend" // bus idle
	OpResume  = "resume"  // bus activity after suspend
	OpControl = "control" // complete control transfer on endpoint 0
	OpOut     = "out"     // one OUT packet to EP
	OpIn      = "in"      // collect the IN packets EP committed
	OpPoll    = "poll"    // service polled endpoints
)

// Scenario is a named list of host actions.
type Scenario struct {
	Name  string `json:"name" yaml:"name" toml:"name"`
	Steps []Step `json:"steps" yaml:"steps" toml:"steps"`
}

// Step is one host action. Data and Expect are hex strings; spaces are
// ignored. For a control step Expect is compared with the data stage
// reply, for an in step with the concatenated IN packets. Stall expects
// the control transfer to be stalled.
type Step struct {
	Op string `json:"op" yaml:"op" toml:"op"`
	On bool   `json:"on,omitempty" yaml:"on,omitempty" toml:"on,omitempty"`
	EP int    `json:"ep,omitempty" yaml:"ep,omitempty" toml:"ep,omitempty"`

	RequestType uint8  `json:"request_type,omitempty" yaml:"request_type,omitempty" toml:"request_type,omitempty"`
	Request     uint8  `json:"request,omitempty" yaml:"request,omitempty" toml:"request,omitempty"`
	Value       uint16 `json:"value,omitempty" yaml:"value,omitempty" toml:"value,omitempty"`
	Index       uint16 `json:"index,omitempty" yaml:"index,omitempty" toml:"index,omitempty"`
	Length      uint16 `json:"length,omitempty" yaml:"length,omitempty" toml:"length,omitempty"`

	Data   string `json:"data,omitempty" yaml:"data,omitempty" toml:"data,omitempty"`
	Expect string `json:"expect,omitempty" yaml:"expect,omitempty" toml:"expect,omitempty"`
	Stall  bool   `json:"stall,omitempty" yaml:"stall,omitempty" toml:"stall,omitempty"`
}

// Setup returns the Setup packet of a control step.
func (s *Step) Setup() usb.SetupPacket {
	return usb.SetupPacket{
		RequestType: s.RequestType,
		Request:     s.Request,
		Value:       s.Value,
		Index:       s.Index,
		Length:      s.Length,
	}
}

// Payload decodes Data.
func (s *Step) Payload() ([]byte, error) { return decodeHex(s.Data) }

// Expected decodes Expect. ok is false when the step has no expectation.
func (s *Step) Expected() (data []byte, ok bool, err error) {
	if strings.TrimSpace(s.Expect) == "" {
		return nil, false, nil
	}
	data, err = decodeHex(s.Expect)
	return data, err == nil, err
}

// String describes the step for logs and reports.
func (s *Step) String() string {
	switch s.Op {
	case OpVBus, OpSpeed:
		return fmt.Sprintf("%s on=%t", s.Op, s.On)
	case OpControl:
		p := s.Setup()
		return fmt.Sprintf("%s %s", s.Op, p.String())
	case OpOut, OpIn:
		return fmt.Sprintf("%s ep%d", s.Op, s.EP)
	default:
		return s.Op
	}
}

// Validate checks the step against a controller with endpoints
// endpoints.
func (s *Step) Validate(endpoints int) error {
	switch s.Op {
	case OpVBus, OpReset, OpSpeed, OpSuspend, OpResume, OpPoll:
	case OpControl:
		p := s.Setup()
		data, err := s.Payload()
		if err != nil {
			return err
		}
		if p.IsIn() && len(data) > 0 {
			return fmt.Errorf("control read with data: %w", pkg.ErrInvalidParameter)
		}
		if !p.IsIn() && len(data) != int(p.Length) {
			return fmt.Errorf("control write of %d bytes with wLength %d: %w",
				len(data), p.Length, pkg.ErrInvalidParameter)
		}
	case OpOut, OpIn:
		if s.EP < 0 || s.EP >= endpoints {
			return fmt.Errorf("%s on ep%d: %w", s.Op, s.EP, pkg.ErrInvalidEndpoint)
		}
		if _, err := s.Payload(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown op %q: %w", s.Op, pkg.ErrInvalidParameter)
	}
	if _, _, err := s.Expected(); err != nil {
		return err
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("hex %q: %w", s, pkg.ErrInvalidParameter)
	}
	return b, nil
}

// Enumerate returns the scenario run by default: connect at high speed,
// enumerate the gadget, exercise the vendor buffer and one loopback
// transfer.
func Enumerate() Scenario {
	const (
		stdIn  = usb.DirIn | usb.TypeStandard | usb.RecipDevice
		stdOut = usb.DirOut | usb.TypeStandard | usb.RecipDevice
		vndIn  = usb.DirIn | usb.TypeVendor | usb.RecipDevice
		vndOut = usb.DirOut | usb.TypeVendor | usb.RecipDevice
	)
	desc := func(typ, index uint8, length uint16) Step {
		return Step{Op: OpControl, RequestType: stdIn, Request: usb.RequestGetDescriptor,
			Value: uint16(typ)<<8 | uint16(index), Length: length}
	}
	return Scenario{
		Name: "enumerate",
		Steps: []Step{
			{Op: OpVBus, On: true},
			{Op: OpReset},
			{Op: OpSpeed, On: true},
			desc(usb.DescDevice, 0, 64),
			{Op: OpControl, RequestType: stdOut, Request: usb.RequestSetAddress, Value: 7},
			desc(usb.DescDevice, 0, usb.DeviceDescSize),
			desc(usb.DescConfiguration, 0, usb.ConfigDescSize),
			desc(usb.DescConfiguration, 0, 255),
			desc(usb.DescString, 0, 255),
			desc(usb.DescDeviceQualifier, 0, usb.QualifierDescSize),
			{Op: OpControl, RequestType: stdOut, Request: usb.RequestSetConfiguration, Value: 1},
			{Op: OpControl, RequestType: stdIn, Request: usb.RequestGetConfiguration, Length: 1,
				Expect: "01"},
			{Op: OpControl, RequestType: vndOut, Request: gadget.VendorStore, Length: 4,
				Data: "de ad be ef"},
			{Op: OpControl, RequestType: vndIn, Request: gadget.VendorEcho, Length: 64,
				Expect: "de ad be ef"},
			{Op: OpOut, EP: 2, Data: "00 01 02 03 04 05 06 07"},
			{Op: OpIn, EP: 1, Expect: "00 01 02 03 04 05 06 07"},
		},
	}
}
