package usb

import (
	"encoding/binary"
	"unicode/utf16"

	"github.com/ardnew/usbf/pkg"
)

// Descriptor types (USB 2.0 Table 9-5).
const (
	DescDevice          = 0x01
	DescConfiguration   = 0x02
	DescString          = 0x03
	DescInterface       = 0x04
	DescEndpoint        = 0x05
	DescDeviceQualifier = 0x06
	DescOtherSpeed      = 0x07
)

// Descriptor sizes.
const (
	DeviceDescSize    = 18
	ConfigDescSize    = 9
	InterfaceDescSize = 9
	EndpointDescSize  = 7
	QualifierDescSize = 10
)

// Endpoint attribute transfer types.
const (
	XferControl     = 0x00
	XferIsochronous = 0x01
	XferBulk        = 0x02
	XferInterrupt   = 0x03
	XferTypeMask    = 0x03
)

// Configuration attribute bits.
const (
	ConfigAttrOne          = 0x80 // reserved, always set
	ConfigAttrSelfPowered  = 0x40
	ConfigAttrRemoteWakeup = 0x20
)

// Class codes used by the bundled function driver.
const (
	ClassPerInterface = 0x00
	ClassVendor       = 0xFF
)

// LangIDUSEnglish is the language ID for US English.
const LangIDUSEnglish = 0x0409

// DeviceDescriptor is the standard device descriptor.
type DeviceDescriptor struct {
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	ManufacturerIndex uint8
	ProductIndex      uint8
	SerialNumberIndex uint8
	NumConfigurations uint8
}

// AppendBinary appends the 18-byte encoding to b.
func (d *DeviceDescriptor) AppendBinary(b []byte) []byte {
	b = append(b, DeviceDescSize, DescDevice)
	b = binary.LittleEndian.AppendUint16(b, d.USBVersion)
	b = append(b, d.DeviceClass, d.DeviceSubClass, d.DeviceProtocol, d.MaxPacketSize0)
	b = binary.LittleEndian.AppendUint16(b, d.VendorID)
	b = binary.LittleEndian.AppendUint16(b, d.ProductID)
	b = binary.LittleEndian.AppendUint16(b, d.DeviceVersion)
	return append(b, d.ManufacturerIndex, d.ProductIndex, d.SerialNumberIndex,
		d.NumConfigurations)
}

// QualifierDescriptor is the device qualifier a high-speed capable device
// reports for its other speed.
type QualifierDescriptor struct {
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	NumConfigurations uint8
}

// Qualifier derives the qualifier descriptor from a device descriptor.
func (d *DeviceDescriptor) Qualifier() QualifierDescriptor {
	return QualifierDescriptor{
		USBVersion:        d.USBVersion,
		DeviceClass:       d.DeviceClass,
		DeviceSubClass:    d.DeviceSubClass,
		DeviceProtocol:    d.DeviceProtocol,
		MaxPacketSize0:    d.MaxPacketSize0,
		NumConfigurations: d.NumConfigurations,
	}
}

// AppendBinary appends the 10-byte encoding to b.
func (q *QualifierDescriptor) AppendBinary(b []byte) []byte {
	b = append(b, QualifierDescSize, DescDeviceQualifier)
	b = binary.LittleEndian.AppendUint16(b, q.USBVersion)
	return append(b, q.DeviceClass, q.DeviceSubClass, q.DeviceProtocol,
		q.MaxPacketSize0, q.NumConfigurations, 0)
}

// ConfigDescriptor is the configuration descriptor header. TotalLength is
// filled in by the encoder of the full configuration.
type ConfigDescriptor struct {
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationIndex uint8
	Attributes         uint8
	MaxPower           uint8 // 2 mA units
}

// AppendBinary appends the 9-byte encoding to b.
func (c *ConfigDescriptor) AppendBinary(b []byte) []byte {
	b = append(b, ConfigDescSize, DescConfiguration)
	b = binary.LittleEndian.AppendUint16(b, c.TotalLength)
	return append(b, c.NumInterfaces, c.ConfigurationValue, c.ConfigurationIndex,
		c.Attributes|ConfigAttrOne, c.MaxPower)
}

// InterfaceDescriptor is the standard interface descriptor.
type InterfaceDescriptor struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceIndex    uint8
}

// AppendBinary appends the 9-byte encoding to b.
func (i *InterfaceDescriptor) AppendBinary(b []byte) []byte {
	return append(b, InterfaceDescSize, DescInterface, i.InterfaceNumber,
		i.AlternateSetting, i.NumEndpoints, i.InterfaceClass,
		i.InterfaceSubClass, i.InterfaceProtocol, i.InterfaceIndex)
}

// EndpointDescriptor is the standard endpoint descriptor.
type EndpointDescriptor struct {
	EndpointAddress uint8
	Attributes      uint8
	MaxPacketSize   uint16
	Interval        uint8
}

// AppendBinary appends the 7-byte encoding to b.
func (e *EndpointDescriptor) AppendBinary(b []byte) []byte {
	b = append(b, EndpointDescSize, DescEndpoint, e.EndpointAddress, e.Attributes)
	b = binary.LittleEndian.AppendUint16(b, e.MaxPacketSize)
	return append(b, e.Interval)
}

// ParseEndpointDescriptor decodes a 7-byte endpoint descriptor.
func ParseEndpointDescriptor(data []byte) (EndpointDescriptor, error) {
	if len(data) < EndpointDescSize {
		return EndpointDescriptor{}, pkg.ErrDescriptorTooShort
	}
	if data[1] != DescEndpoint {
		return EndpointDescriptor{}, pkg.ErrDescriptorTypeMismatch
	}
	return EndpointDescriptor{
		EndpointAddress: data[2],
		Attributes:      data[3],
		MaxPacketSize:   binary.LittleEndian.Uint16(data[4:6]),
		Interval:        data[6],
	}, nil
}

// Number returns the endpoint number without the direction bit.
func (e *EndpointDescriptor) Number() int { return int(e.EndpointAddress & 0x0F) }

// IsIn reports an IN (device to host) endpoint.
func (e *EndpointDescriptor) IsIn() bool { return e.EndpointAddress&DirIn != 0 }

// TransferType returns the transfer type bits of Attributes.
func (e *EndpointDescriptor) TransferType() uint8 { return e.Attributes & XferTypeMask }

// StringDescriptor encodes s as a UTF-16LE string descriptor, truncated to
// the 255-byte descriptor limit.
func StringDescriptor(s string) []byte {
	units := utf16.Encode([]rune(s))
	if limit := (255 - 2) / 2; len(units) > limit {
		units = units[:limit]
	}
	b := make([]byte, 2, 2+2*len(units))
	b[0] = uint8(2 + 2*len(units))
	b[1] = DescString
	for _, u := range units {
		b = binary.LittleEndian.AppendUint16(b, u)
	}
	return b
}

// LanguageDescriptor encodes string descriptor zero listing langIDs.
func LanguageDescriptor(langIDs ...uint16) []byte {
	b := []byte{uint8(2 + 2*len(langIDs)), DescString}
	for _, id := range langIDs {
		b = binary.LittleEndian.AppendUint16(b, id)
	}
	return b
}
