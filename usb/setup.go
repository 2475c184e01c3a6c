package usb

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/usbf/pkg"
)

// Standard request codes (USB 2.0 Table 9-4).
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestSetDescriptor    = 0x07
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
	RequestSynchFrame       = 0x0C
)

// Feature selectors (USB 2.0 Table 9-6).
const (
	FeatureEndpointHalt       = 0x00
	FeatureDeviceRemoteWakeup = 0x01
	FeatureTestMode           = 0x02
)

// bmRequestType fields.
const (
	DirMask       = 0x80
	DirOut        = 0x00 // Host to device
	DirIn         = 0x80 // Device to host
	TypeMask      = 0x60
	TypeStandard  = 0x00
	TypeClass     = 0x20
	TypeVendor    = 0x40
	RecipientMask = 0x1F
	RecipDevice   = 0x00
	RecipIface    = 0x01
	RecipEndpoint = 0x02
	RecipOther    = 0x03
)

// Device status bits returned by GET_STATUS.
const (
	StatusSelfPowered  = 1 << 0
	StatusRemoteWakeup = 1 << 1
	StatusHalt         = 1 << 0 // endpoint recipient
)

// MaxAddress is the largest address SET_ADDRESS may assign.
const MaxAddress = 127

// SetupSize is the length of a Setup packet in bytes.
const SetupSize = 8

// SetupPacket is the 8-byte header of a control transfer.
type SetupPacket struct {
	RequestType uint8  // bmRequestType
	Request     uint8  // bRequest
	Value       uint16 // wValue
	Index       uint16 // wIndex
	Length      uint16 // wLength
}

// ParseSetup decodes a Setup packet from its wire bytes.
func ParseSetup(data []byte) (SetupPacket, error) {
	if len(data) < SetupSize {
		return SetupPacket{}, pkg.ErrSetupPacketTooShort
	}
	return SetupPacket{
		RequestType: data[0],
		Request:     data[1],
		Value:       binary.LittleEndian.Uint16(data[2:4]),
		Index:       binary.LittleEndian.Uint16(data[4:6]),
		Length:      binary.LittleEndian.Uint16(data[6:8]),
	}, nil
}

// SetupFromWords decodes a Setup packet from the two little-endian
// register words the controller latches it into.
func SetupFromWords(lo, hi uint32) SetupPacket {
	var b [SetupSize]byte
	binary.LittleEndian.PutUint32(b[0:4], lo)
	binary.LittleEndian.PutUint32(b[4:8], hi)
	s, _ := ParseSetup(b[:])
	return s
}

// Words returns the packet as the two register words holding it.
func (s SetupPacket) Words() (lo, hi uint32) {
	b := s.AppendBinary(nil)
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8])
}

// AppendBinary appends the wire encoding of the packet to b.
func (s SetupPacket) AppendBinary(b []byte) []byte {
	b = append(b, s.RequestType, s.Request)
	b = binary.LittleEndian.AppendUint16(b, s.Value)
	b = binary.LittleEndian.AppendUint16(b, s.Index)
	return binary.LittleEndian.AppendUint16(b, s.Length)
}

// IsIn reports whether the data stage, if any, flows device to host.
func (s SetupPacket) IsIn() bool { return s.RequestType&DirMask == DirIn }

// Type returns the request type bits.
func (s SetupPacket) Type() uint8 { return s.RequestType & TypeMask }

// Recipient returns the recipient bits.
func (s SetupPacket) Recipient() uint8 { return s.RequestType & RecipientMask }

// IsStandard reports whether the request is a chapter 9 request.
func (s SetupPacket) IsStandard() bool { return s.Type() == TypeStandard }

// IsNoData reports a control transfer without a data stage.
func (s SetupPacket) IsNoData() bool { return s.Length == 0 }

// IsControlRead reports a control transfer with an IN data stage.
func (s SetupPacket) IsControlRead() bool { return s.Length > 0 && s.IsIn() }

// IsControlWrite reports a control transfer with an OUT data stage.
func (s SetupPacket) IsControlWrite() bool { return s.Length > 0 && !s.IsIn() }

// DescriptorType returns the descriptor type from the high byte of wValue.
func (s SetupPacket) DescriptorType() uint8 { return uint8(s.Value >> 8) }

// DescriptorIndex returns the descriptor index from the low byte of wValue.
func (s SetupPacket) DescriptorIndex() uint8 { return uint8(s.Value) }

// String returns a human-readable representation of the setup packet.
func (s SetupPacket) String() string {
	dir := "OUT"
	if s.IsIn() {
		dir = "IN"
	}
	typ := "std"
	switch s.Type() {
	case TypeClass:
		typ = "class"
	case TypeVendor:
		typ = "vendor"
	}
	return fmt.Sprintf("SETUP[%s %s %d] req=0x%02X val=0x%04X idx=0x%04X len=%d",
		dir, typ, s.Recipient(), s.Request, s.Value, s.Index, s.Length)
}

// SetAddress returns a SET_ADDRESS request.
func SetAddress(addr uint8) SetupPacket {
	return SetupPacket{RequestType: DirOut | TypeStandard | RecipDevice,
		Request: RequestSetAddress, Value: uint16(addr)}
}

// SetConfiguration returns a SET_CONFIGURATION request.
func SetConfiguration(value uint8) SetupPacket {
	return SetupPacket{RequestType: DirOut | TypeStandard | RecipDevice,
		Request: RequestSetConfiguration, Value: uint16(value)}
}

// GetConfiguration returns a GET_CONFIGURATION request.
func GetConfiguration() SetupPacket {
	return SetupPacket{RequestType: DirIn | TypeStandard | RecipDevice,
		Request: RequestGetConfiguration, Length: 1}
}

// GetDescriptor returns a GET_DESCRIPTOR request.
func GetDescriptor(typ, index uint8, length uint16) SetupPacket {
	return SetupPacket{RequestType: DirIn | TypeStandard | RecipDevice,
		Request: RequestGetDescriptor, Value: uint16(typ)<<8 | uint16(index),
		Length: length}
}

// GetStatus returns a GET_STATUS request for the given recipient.
func GetStatus(recipient uint8, index uint16) SetupPacket {
	return SetupPacket{RequestType: DirIn | TypeStandard | recipient,
		Request: RequestGetStatus, Index: index, Length: 2}
}

// SetFeature returns a SET_FEATURE request.
func SetFeature(recipient uint8, feature, index uint16) SetupPacket {
	return SetupPacket{RequestType: DirOut | TypeStandard | recipient,
		Request: RequestSetFeature, Value: feature, Index: index}
}

// ClearFeature returns a CLEAR_FEATURE request.
func ClearFeature(recipient uint8, feature, index uint16) SetupPacket {
	return SetupPacket{RequestType: DirOut | TypeStandard | recipient,
		Request: RequestClearFeature, Value: feature, Index: index}
}

// SetInterface returns a SET_INTERFACE request.
func SetInterface(iface, alt uint8) SetupPacket {
	return SetupPacket{RequestType: DirOut | TypeStandard | RecipIface,
		Request: RequestSetInterface, Value: uint16(alt), Index: uint16(iface)}
}

// GetInterface returns a GET_INTERFACE request.
func GetInterface(iface uint8) SetupPacket {
	return SetupPacket{RequestType: DirIn | TypeStandard | RecipIface,
		Request: RequestGetInterface, Index: uint16(iface), Length: 1}
}
