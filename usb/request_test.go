package usb

import "testing"

// Every bmRequestType byte decomposes into direction, control type and
// recipient, and reassembling those fields must reproduce the byte.
func TestRequestTypeRoundTrip(t *testing.T) {
	for b := 0; b < 256; b++ {
		s := SetupPacket{BmRequestType: uint8(b)}
		re := EncodeRequestType(s.Direction(), s.ControlType(), s.Recipient())
		if re != uint8(b) {
			t.Errorf("%#02x decomposed to (%v, %v, %v) but re-encoded to %#02x",
				b, s.Direction(), s.ControlType(), s.Recipient(), re)
		}
	}
}

func TestSetupPacketFields(t *testing.T) {
	// GET_DESCRIPTOR(String, index 2), device-to-host standard request.
	s := SetupPacket{
		BmRequestType: 0x80,
		BRequest:      uint8(RequestGetDescriptor),
		WValue:        0x0302,
		WIndex:        0x0409,
		WLength:       255,
	}
	if s.Direction() != DirIn {
		t.Errorf("direction is %v; want in", s.Direction())
	}
	if s.ControlType() != CtrlStandard {
		t.Errorf("control type is %v; want standard", s.ControlType())
	}
	if s.Recipient() != RecipientDevice {
		t.Errorf("recipient is %v; want device", s.Recipient())
	}
	if s.Request() != RequestGetDescriptor {
		t.Errorf("request is %v; want GET_DESCRIPTOR", s.Request())
	}
	if s.DescriptorType() != DescriptorString {
		t.Errorf("descriptor type is %v; want string", s.DescriptorType())
	}
	if s.DescriptorIndex() != 2 {
		t.Errorf("descriptor index is %d; want 2", s.DescriptorIndex())
	}
}

func TestClassifyInterfaceRequest(t *testing.T) {
	for _, tc := range []struct {
		bRequest uint8
		want     ClassRequest
	}{
		{0x01, ClassRequestSetCur},
		{0x02, ClassRequestSetMin},
		{0x03, ClassRequestSetMax},
		{0x04, ClassRequestSetRes},
		{0x81, ClassRequestGetCur},
		{0x82, ClassRequestGetMin},
		{0x83, ClassRequestGetMax},
		{0x84, ClassRequestGetRes},
		{0x09, ClassRequestSetReport},
		{0xa1, ClassRequestGetReport},
		{0xfe, ClassRequestGetMaxLUN},
		{0xff, ClassRequestMassStorageReset},
		{0x42, ClassRequestVendor},
		{0x00, ClassRequestVendor},
	} {
		if got := ClassifyInterfaceRequest(tc.bRequest); got != tc.want {
			t.Errorf("bRequest %#02x classified as %v; want %v", tc.bRequest, got, tc.want)
		}
	}
}
