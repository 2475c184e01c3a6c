package usb

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/usbf/pkg"
)

func TestDeviceDescriptorAppend(t *testing.T) {
	d := DeviceDescriptor{
		USBVersion:        0x0200,
		MaxPacketSize0:    64,
		VendorID:          0x045B,
		ProductID:         0x0229,
		DeviceVersion:     0x0100,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		NumConfigurations: 1,
	}
	want := []byte{
		0x12, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x40,
		0x5B, 0x04, 0x29, 0x02, 0x00, 0x01, 0x01, 0x02, 0x00, 0x01,
	}
	if got := d.AppendBinary(nil); !bytes.Equal(got, want) {
		t.Errorf("AppendBinary() = % X, want % X", got, want)
	}

	q := d.Qualifier()
	qb := q.AppendBinary(nil)
	if len(qb) != QualifierDescSize {
		t.Fatalf("len(qualifier) = %d, want %d", len(qb), QualifierDescSize)
	}
	if qb[1] != DescDeviceQualifier || qb[7] != 64 || qb[8] != 1 {
		t.Errorf("qualifier = % X", qb)
	}
}

func TestConfigDescriptorAttributes(t *testing.T) {
	c := ConfigDescriptor{TotalLength: 32, NumInterfaces: 1, ConfigurationValue: 1,
		Attributes: ConfigAttrSelfPowered, MaxPower: 50}
	got := c.AppendBinary(nil)
	if len(got) != ConfigDescSize {
		t.Fatalf("len = %d, want %d", len(got), ConfigDescSize)
	}
	if got[7] != ConfigAttrOne|ConfigAttrSelfPowered {
		t.Errorf("bmAttributes = 0x%02X, want 0x%02X", got[7], ConfigAttrOne|ConfigAttrSelfPowered)
	}
	if got[2] != 32 || got[3] != 0 {
		t.Errorf("wTotalLength = % X, want 20 00", got[2:4])
	}
}

func TestParseEndpointDescriptor(t *testing.T) {
	in := EndpointDescriptor{EndpointAddress: 0x81, Attributes: XferBulk, MaxPacketSize: 512}
	got, err := ParseEndpointDescriptor(in.AppendBinary(nil))
	if err != nil {
		t.Fatalf("ParseEndpointDescriptor() error = %v", err)
	}
	if got != in {
		t.Errorf("ParseEndpointDescriptor() = %+v, want %+v", got, in)
	}
	if got.Number() != 1 || !got.IsIn() || got.TransferType() != XferBulk {
		t.Errorf("accessors: number=%d in=%v type=%d", got.Number(), got.IsIn(), got.TransferType())
	}

	if _, err := ParseEndpointDescriptor([]byte{7, 5, 1}); !errors.Is(err, pkg.ErrDescriptorTooShort) {
		t.Errorf("short error = %v, want %v", err, pkg.ErrDescriptorTooShort)
	}
	bad := in.AppendBinary(nil)
	bad[1] = DescInterface
	if _, err := ParseEndpointDescriptor(bad); !errors.Is(err, pkg.ErrDescriptorTypeMismatch) {
		t.Errorf("type error = %v, want %v", err, pkg.ErrDescriptorTypeMismatch)
	}
}

func TestStringDescriptor(t *testing.T) {
	got := StringDescriptor("Hi")
	want := []byte{6, DescString, 'H', 0, 'i', 0}
	if !bytes.Equal(got, want) {
		t.Errorf("StringDescriptor() = % X, want % X", got, want)
	}

	long := StringDescriptor(string(bytes.Repeat([]byte{'x'}, 300)))
	if len(long) != 254 || long[0] != 254 {
		t.Errorf("truncated length = %d (bLength %d), want 254", len(long), long[0])
	}
}

func TestLanguageDescriptor(t *testing.T) {
	got := LanguageDescriptor(LangIDUSEnglish)
	want := []byte{4, DescString, 0x09, 0x04}
	if !bytes.Equal(got, want) {
		t.Errorf("LanguageDescriptor() = % X, want % X", got, want)
	}
}
