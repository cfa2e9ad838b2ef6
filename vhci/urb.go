package vhci

import (
	"github.com/MatthiasValvekens/usb-vhci/usb"
	"github.com/MatthiasValvekens/usb-vhci/vhci/ioctl"
	"github.com/efficientgo/core/errors"
)

// UrbKind is the transfer type of a URB.
type UrbKind uint8

const (
	UrbIso UrbKind = iota
	UrbInt
	UrbCtrl
	UrbBulk
)

func (k UrbKind) String() string {
	switch k {
	case UrbIso:
		return "iso"
	case UrbInt:
		return "int"
	case UrbCtrl:
		return "ctrl"
	case UrbBulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// IsoPacket is one isochronous packet of an iso URB. Offset and Length
// are kernel-supplied by fetch-data; the consumer fills Actual and
// Status before give-back.
type IsoPacket struct {
	Offset uint32
	Length int32
	Actual int32
	Status Status
}

// Urb is the owned representation of one pending transfer. It holds
// its transfer buffer exclusively for the URB's lifetime; the transport
// layer borrows pointer+length views of it for fetch-data and give-back
// but never takes ownership.
//
// Buffer discipline follows the endpoint direction. For an OUT endpoint
// the buffer is allocated at the full requested length and filled by
// fetch-data before the consumer sees it. For an IN endpoint it starts
// at length zero with the requested length reserved as capacity, and
// grows only through WriteIn/SetBufferActual.
type Urb struct {
	kind     UrbKind
	status   Status
	handle   UrbHandle
	buf      []byte
	devAddr  Address
	endpoint Endpoint

	// ctrl
	setup usb.SetupPacket

	// iso
	isoPackets []IsoPacket
	errorCount int32
	isoASAP    bool

	// int/bulk
	shortNotOK bool
	zeroPacket bool
	interval   int32
}

func decodeUrb(handle UrbHandle, raw *ioctl.IocUrb) (*Urb, error) {
	if raw.BufferLength < 0 || raw.PacketCount < 0 {
		return nil, errors.Wrapf(errProtocol,
			"negative URB dimensions (buffer %d, packets %d)",
			raw.BufferLength, raw.PacketCount)
	}
	u := &Urb{
		status:   StatusPending,
		handle:   handle,
		devAddr:  Address(raw.Address),
		endpoint: Endpoint(raw.Endpoint),
		interval: raw.Interval,
	}
	switch raw.Type {
	case ioctl.UrbTypeIso:
		u.kind = UrbIso
		// Iso buffers always span the full transfer regardless of
		// direction; the packet array carries the per-packet framing.
		u.buf = make([]byte, raw.BufferLength)
		u.isoPackets = make([]IsoPacket, raw.PacketCount)
		for i := range u.isoPackets {
			u.isoPackets[i].Status = StatusPending
		}
		u.isoASAP = raw.Flags&ioctl.UrbFlagIsoASAP != 0
	case ioctl.UrbTypeInt:
		u.kind = UrbInt
		u.buf = directedBuffer(u.endpoint, raw.BufferLength)
		u.shortNotOK = raw.Flags&ioctl.UrbFlagShortNotOK != 0
	case ioctl.UrbTypeControl:
		u.kind = UrbCtrl
		u.buf = directedBuffer(u.endpoint, raw.BufferLength)
		u.setup = usb.SetupPacket{
			BmRequestType: raw.Setup.BmRequestType,
			BRequest:      raw.Setup.BRequest,
			WValue:        raw.Setup.WValue,
			WIndex:        raw.Setup.WIndex,
			WLength:       raw.Setup.WLength,
		}
	case ioctl.UrbTypeBulk:
		u.kind = UrbBulk
		u.buf = directedBuffer(u.endpoint, raw.BufferLength)
		u.zeroPacket = raw.Flags&ioctl.UrbFlagZeroPacket != 0
	default:
		return nil, errors.Wrapf(errProtocol, "unrecognized URB type tag %d", raw.Type)
	}
	return u, nil
}

// directedBuffer allocates the transfer buffer for a non-iso URB: OUT
// buffers are full-length (to be filled by fetch-data), IN buffers are
// empty with the requested length reserved.
func directedBuffer(ep Endpoint, length int32) []byte {
	if ep.Direction() == usb.DirOut {
		return make([]byte, length)
	}
	return make([]byte, 0, length)
}

// NewControlUrb assembles a control URB by hand, sized from the setup
// packet's wLength. URBs normally arrive through fetch-work; this is for
// consumer tests and alternative work producers.
func NewControlUrb(handle UrbHandle, addr Address, ep Endpoint, setup usb.SetupPacket) *Urb {
	return &Urb{
		kind:     UrbCtrl,
		status:   StatusPending,
		handle:   handle,
		buf:      directedBuffer(ep, int32(setup.WLength)),
		devAddr:  addr,
		endpoint: ep,
		setup:    setup,
	}
}

// NewBulkUrb assembles a bulk URB by hand; see NewControlUrb.
func NewBulkUrb(handle UrbHandle, addr Address, ep Endpoint, length int) *Urb {
	return &Urb{
		kind:     UrbBulk,
		status:   StatusPending,
		handle:   handle,
		buf:      directedBuffer(ep, int32(length)),
		devAddr:  addr,
		endpoint: ep,
	}
}

// Kind returns the transfer type.
func (u *Urb) Kind() UrbKind { return u.kind }

// Handle returns the kernel correlation key of this URB.
func (u *Urb) Handle() UrbHandle { return u.handle }

// DeviceAddress returns the target device address.
func (u *Urb) DeviceAddress() Address { return u.devAddr }

// Endpoint returns the target endpoint address.
func (u *Urb) Endpoint() Endpoint { return u.endpoint }

// Direction returns the transfer direction implied by the endpoint.
func (u *Urb) Direction() usb.Direction { return u.endpoint.Direction() }

// Setup returns the control setup packet; only meaningful for UrbCtrl.
func (u *Urb) Setup() usb.SetupPacket { return u.setup }

// Status returns the current completion status; StatusPending until the
// consumer completes the URB.
func (u *Urb) Status() Status { return u.status }

// Complete records the final status. It must be called exactly once,
// before give-back.
func (u *Urb) Complete(st Status) { u.status = st }

// Buffer returns the initialized portion of the transfer buffer.
func (u *Urb) Buffer() []byte { return u.buf }

// BufferLength returns the originally requested transfer length (the
// buffer's reserved capacity).
func (u *Urb) BufferLength() int { return cap(u.buf) }

// BufferActual returns how many buffer bytes are currently initialized.
func (u *Urb) BufferActual() int { return len(u.buf) }

// WriteIn appends response bytes to an IN-direction buffer. It fails
// rather than growing past the originally reported capacity.
func (u *Urb) WriteIn(p []byte) (int, error) {
	if len(u.buf)+len(p) > cap(u.buf) {
		return 0, errors.Newf("URB buffer overflow: %d+%d bytes exceeds capacity %d",
			len(u.buf), len(p), cap(u.buf))
	}
	u.buf = append(u.buf, p...)
	return len(p), nil
}

// SetBufferActual commits the initialized length of the buffer after
// the caller wrote into it directly. n attests how many bytes are
// valid; it may never exceed the reserved capacity.
func (u *Urb) SetBufferActual(n int) error {
	if n < 0 || n > cap(u.buf) {
		return errors.Newf("buffer length %d outside [0, %d]", n, cap(u.buf))
	}
	u.buf = u.buf[:n]
	return nil
}

// IsoPackets returns the iso packet array for in-place mutation. Empty
// for non-iso URBs.
func (u *Urb) IsoPackets() []IsoPacket { return u.isoPackets }

// PacketCount returns the iso packet count; zero for non-iso URBs.
func (u *Urb) PacketCount() int { return len(u.isoPackets) }

// ErrorCount returns the aggregate iso error count.
func (u *Urb) ErrorCount() int32 { return u.errorCount }

// SetErrorCount records the aggregate iso error count for give-back.
func (u *Urb) SetErrorCount(n int32) { u.errorCount = n }

// Interval returns the polling interval; meaningful for UrbInt and
// UrbIso.
func (u *Urb) Interval() int32 { return u.interval }

// IsoASAP reports the ISO_ASAP scheduling flag.
func (u *Urb) IsoASAP() bool { return u.isoASAP }

// ShortNotOK reports whether a short packet must be treated as an
// error; meaningful for UrbInt.
func (u *Urb) ShortNotOK() bool { return u.shortNotOK }

// ZeroPacket reports whether the transfer ends with a zero-length
// packet; meaningful for UrbBulk.
func (u *Urb) ZeroPacket() bool { return u.zeroPacket }

// RequiresFetchData reports whether a fetch-data call must complete
// before the consumer may inspect the URB: iso URBs with a non-empty
// packet array, and any other URB with a non-empty buffer.
func (u *Urb) RequiresFetchData() bool {
	if u.kind == UrbIso {
		return len(u.isoPackets) > 0
	}
	return len(u.buf) > 0
}

// statusErrno translates the final status with this URB's iso context.
func (u *Urb) statusErrno() int32 {
	return u.status.Errno(u.kind == UrbIso)
}
