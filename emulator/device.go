// Package emulator hosts an emulated USB device on a virtual host
// controller: a standard-request responder, the port-event reducer that
// drives enumeration, and the session loop tying both to a controller.
package emulator

import (
	"unicode/utf16"

	"github.com/MatthiasValvekens/usb-vhci/usb"
	"github.com/MatthiasValvekens/usb-vhci/vhci"
)

// Identity configures the emulated device's descriptor-visible identity.
type Identity struct {
	VendorID     uint16 `json:"vendorId"`
	ProductID    uint16 `json:"productId"`
	BCDDevice    uint16 `json:"bcdDevice"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	SerialNumber string `json:"serialNumber"`
}

// Device is a minimal full-speed USB device: one configuration, one
// interface, no endpoints beyond the default control pipe. It answers
// the standard enumeration requests and stalls everything else.
//
// Not safe for concurrent use; the session loop is its single caller.
type Device struct {
	deviceDesc []byte
	configDesc []byte
	strings    [][]byte

	addr vhci.Address
}

// NewDevice builds the descriptor set for the given identity. String
// descriptor indices are assigned in order to the non-empty identity
// strings.
func NewDevice(id Identity) *Device {
	d := &Device{
		// index 0 is the language-id table: English (US) only.
		strings: [][]byte{{4, byte(usb.DescriptorString), 0x09, 0x04}},
	}
	iManufacturer := d.internString(id.Manufacturer)
	iProduct := d.internString(id.Product)
	iSerial := d.internString(id.SerialNumber)

	d.deviceDesc = []byte{
		18,                          // bLength
		byte(usb.DescriptorDevice),  // bDescriptorType
		0x00, 0x02,                  // bcdUSB 2.0
		0, 0, 0, // class/subclass/protocol: per interface
		64, // bMaxPacketSize0
		byte(id.VendorID), byte(id.VendorID >> 8),
		byte(id.ProductID), byte(id.ProductID >> 8),
		byte(id.BCDDevice), byte(id.BCDDevice >> 8),
		iManufacturer,
		iProduct,
		iSerial,
		1, // bNumConfigurations
	}
	d.configDesc = []byte{
		9,                                 // bLength
		byte(usb.DescriptorConfiguration), // bDescriptorType
		18, 0,                             // wTotalLength: configuration + interface
		1,    // bNumInterfaces
		1,    // bConfigurationValue
		0,    // iConfiguration
		0x80, // bmAttributes
		0,    // bMaxPower

		9,                             // bLength
		byte(usb.DescriptorInterface), // bDescriptorType
		0,                             // bInterfaceNumber
		0,                             // bAlternateSetting
		0,                             // bNumEndpoints
		0, 0, 0,                       // class/subclass/protocol
		0, // iInterface
	}
	return d
}

// internString appends a UTF-16LE string descriptor and returns its
// index, or 0 for an empty string (no descriptor).
func (d *Device) internString(s string) uint8 {
	if s == "" {
		return 0
	}
	units := utf16.Encode([]rune(s))
	desc := make([]byte, 2, 2+2*len(units))
	desc[0] = byte(len(desc) + 2*len(units))
	desc[1] = byte(usb.DescriptorString)
	for _, u := range units {
		desc = append(desc, byte(u), byte(u>>8))
	}
	idx := uint8(len(d.strings))
	d.strings = append(d.strings, desc)
	return idx
}

// Address returns the device's current bus address; 0 until SET_ADDRESS.
func (d *Device) Address() vhci.Address { return d.addr }

// Reset drops any assigned address, returning the device to the default
// (anycast) address. The reducer calls this on connection changes and
// on reset completion.
func (d *Device) Reset() { d.addr = 0 }

// HandleURB processes one transfer and records its outcome on the URB.
// It never touches the transport; the caller performs give-back.
func (d *Device) HandleURB(u *vhci.Urb) {
	if u.DeviceAddress() != d.addr {
		u.Complete(vhci.StatusStall)
		return
	}
	if u.Kind() != vhci.UrbCtrl || u.Endpoint().Number() != 0 {
		u.Complete(vhci.StatusStall)
		return
	}
	s := u.Setup()
	if s.ControlType() != usb.CtrlStandard {
		u.Complete(vhci.StatusStall)
		return
	}
	switch s.Request() {
	case usb.RequestGetDescriptor:
		d.getDescriptor(u, s)
	case usb.RequestSetAddress:
		// 7-bit address space; anything above stalls.
		if s.WValue > 0x7f {
			u.Complete(vhci.StatusStall)
			return
		}
		d.addr = vhci.Address(s.WValue)
		u.Complete(vhci.StatusSuccess)
	case usb.RequestSetConfiguration, usb.RequestSetInterface:
		u.Complete(vhci.StatusSuccess)
	default:
		u.Complete(vhci.StatusStall)
	}
}

func (d *Device) getDescriptor(u *vhci.Urb, s usb.SetupPacket) {
	var desc []byte
	switch s.DescriptorType() {
	case usb.DescriptorDevice:
		desc = d.deviceDesc
	case usb.DescriptorConfiguration:
		desc = d.configDesc
	case usb.DescriptorString:
		idx := int(s.DescriptorIndex())
		if idx >= len(d.strings) {
			u.Complete(vhci.StatusStall)
			return
		}
		desc = d.strings[idx]
	default:
		u.Complete(vhci.StatusStall)
		return
	}
	// The host may ask for a prefix (typically the first 8 bytes of the
	// device descriptor before it knows the control packet size).
	n := len(desc)
	if int(s.WLength) < n {
		n = int(s.WLength)
	}
	if _, err := u.WriteIn(desc[:n]); err != nil {
		u.Complete(vhci.StatusStall)
		return
	}
	u.Complete(vhci.StatusSuccess)
}
