// Package usb decodes the standard USB control-request fields: the
// bmRequestType bitfields, request codes, and descriptor-type words.
// Everything here is pure and total; no decode can fail or panic.
package usb

// Direction is the transfer direction implied by bit 7 of bmRequestType
// or of an endpoint address.
type Direction uint8

const (
	// DirOut transfers host to device.
	DirOut Direction = 0
	// DirIn transfers device to host.
	DirIn Direction = 1
)

func (d Direction) String() string {
	if d == DirIn {
		return "in"
	}
	return "out"
}

// ControlType is the request-defining specification, bits 5-6 of
// bmRequestType.
type ControlType uint8

const (
	// CtrlStandard requests are defined by the USB standard.
	CtrlStandard ControlType = 0
	// CtrlClass requests are defined by a standard USB class spec.
	CtrlClass ControlType = 1
	// CtrlVendor requests are non-standard.
	CtrlVendor ControlType = 2
	// CtrlReserved is the remaining bit pattern.
	CtrlReserved ControlType = 3
)

// Recipient is the entity targeted by the request, bits 0-4 of
// bmRequestType.
type Recipient uint8

const (
	RecipientDevice    Recipient = 0
	RecipientInterface Recipient = 1
	RecipientEndpoint  Recipient = 2
	RecipientOther     Recipient = 3
)

// Request is a standard request code from bRequest.
type Request uint8

const (
	RequestGetStatus        Request = 0
	RequestClearFeature     Request = 1
	RequestSetFeature       Request = 3
	RequestSetAddress       Request = 5
	RequestGetDescriptor    Request = 6
	RequestSetDescriptor    Request = 7
	RequestGetConfiguration Request = 8
	RequestSetConfiguration Request = 9
	RequestGetInterface     Request = 10
	RequestSetInterface     Request = 11
	RequestSynchFrame       Request = 12
)

// DescriptorType is the descriptor class requested by GET_DESCRIPTOR,
// taken from the high byte of wValue.
type DescriptorType uint8

const (
	DescriptorDevice                  DescriptorType = 1
	DescriptorConfiguration           DescriptorType = 2
	DescriptorString                  DescriptorType = 3
	DescriptorInterface               DescriptorType = 4
	DescriptorEndpoint                DescriptorType = 5
	DescriptorDeviceQualifier         DescriptorType = 6
	DescriptorOtherSpeedConfiguration DescriptorType = 7
	DescriptorInterfacePower          DescriptorType = 8
	DescriptorHID                     DescriptorType = 33
	DescriptorHIDReport               DescriptorType = 34
)

// SetupPacket is the 8-byte control-transfer header.
type SetupPacket struct {
	BmRequestType uint8
	BRequest      uint8
	WValue        uint16
	WIndex        uint16
	WLength       uint16
}

// Direction decodes bit 7 of the request-type byte.
func (s SetupPacket) Direction() Direction {
	return Direction(s.BmRequestType >> 7)
}

// ControlType decodes bits 5-6 of the request-type byte.
func (s SetupPacket) ControlType() ControlType {
	return ControlType((s.BmRequestType >> 5) & 0x03)
}

// Recipient decodes bits 0-4 of the request-type byte. Values above
// RecipientOther are possible on the wire and are passed through.
func (s SetupPacket) Recipient() Recipient {
	return Recipient(s.BmRequestType & 0x1f)
}

// Request returns the request code.
func (s SetupPacket) Request() Request {
	return Request(s.BRequest)
}

// DescriptorType decodes the descriptor class of a GET_DESCRIPTOR
// request from the high byte of wValue.
func (s SetupPacket) DescriptorType() DescriptorType {
	return DescriptorType(s.WValue >> 8)
}

// DescriptorIndex returns the descriptor index of a GET_DESCRIPTOR
// request, the low byte of wValue.
func (s SetupPacket) DescriptorIndex() uint8 {
	return uint8(s.WValue)
}

// EncodeRequestType reassembles a bmRequestType byte from its decoded
// fields. Round-trips with the accessors above over their masked bits.
func EncodeRequestType(dir Direction, typ ControlType, rcpt Recipient) uint8 {
	return uint8(dir)<<7 | uint8(typ&0x03)<<5 | uint8(rcpt&0x1f)
}
