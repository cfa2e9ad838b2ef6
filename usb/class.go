package usb

// ClassRequest names the vendor-extension byte of a Class-type,
// Interface-recipient request. The shared control pipe multiplexes
// several class specs over the same byte space; this table assigns one
// name per value. 0x01 doubles as the HID GET_REPORT code, which the
// HID spec sends device-to-host, so audio's host-to-device SetCur keeps
// the name here and HID consumers key off SetReport/GetReport below.
type ClassRequest uint8

const (
	ClassRequestSetCur ClassRequest = 0x01
	ClassRequestSetMin ClassRequest = 0x02
	ClassRequestSetMax ClassRequest = 0x03
	ClassRequestSetRes ClassRequest = 0x04
	ClassRequestGetCur ClassRequest = 0x81
	ClassRequestGetMin ClassRequest = 0x82
	ClassRequestGetMax ClassRequest = 0x83
	ClassRequestGetRes ClassRequest = 0x84

	ClassRequestSetReport ClassRequest = 0x09
	ClassRequestGetReport ClassRequest = 0xa1

	ClassRequestGetMaxLUN        ClassRequest = 0xfe
	ClassRequestMassStorageReset ClassRequest = 0xff

	// ClassRequestVendor is the pass-through classification for every
	// byte value without a named mapping.
	ClassRequestVendor ClassRequest = 0x00
)

var namedClassRequests = map[uint8]ClassRequest{
	0x01: ClassRequestSetCur,
	0x02: ClassRequestSetMin,
	0x03: ClassRequestSetMax,
	0x04: ClassRequestSetRes,
	0x81: ClassRequestGetCur,
	0x82: ClassRequestGetMin,
	0x83: ClassRequestGetMax,
	0x84: ClassRequestGetRes,
	0x09: ClassRequestSetReport,
	0xa1: ClassRequestGetReport,
	0xfe: ClassRequestGetMaxLUN,
	0xff: ClassRequestMassStorageReset,
}

// ClassifyInterfaceRequest maps the request byte of a Class-type,
// Interface-recipient request to a named class request. Unknown bytes
// classify as ClassRequestVendor; the decode is total.
func ClassifyInterfaceRequest(bRequest uint8) ClassRequest {
	if named, ok := namedClassRequests[bRequest]; ok {
		return named
	}
	return ClassRequestVendor
}
