package vhci

import (
	"testing"

	"github.com/MatthiasValvekens/usb-vhci/usb"
	"github.com/MatthiasValvekens/usb-vhci/vhci/ioctl"
	"github.com/efficientgo/core/errors"
	"golang.org/x/sys/unix"
)

func TestDecodePortStatWork(t *testing.T) {
	raw := ioctl.IocWork{Type: ioctl.WorkTypePortStat}
	*raw.PortStat() = ioctl.IocPortStat{
		Status: 0x0101, // power + connection
		Change: 0x0001,
		Index:  2,
		Flags:  ioctl.PortStatFlagResuming,
	}

	w, err := decodeWork(&raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	ps, ok := w.(PortStatWork)
	if !ok {
		t.Fatalf("decoded to %T; want PortStatWork", w)
	}
	if ps.Stat.Index != 2 {
		t.Errorf("port index is %d; want 2", ps.Stat.Index)
	}
	if !ps.Stat.Status.Has(PortStatusPower | PortStatusConnection) {
		t.Errorf("status %#04x lacks power+connection", ps.Stat.Status)
	}
	if !ps.Stat.Change.Has(PortChangeConnection) {
		t.Errorf("change %#04x lacks connection", ps.Stat.Change)
	}
	if !ps.Stat.Flags.Has(PortFlagResuming) {
		t.Errorf("flags %#02x lack resuming", ps.Stat.Flags)
	}
}

func TestDecodeCancelWork(t *testing.T) {
	raw := ioctl.IocWork{Handle: 42, Type: ioctl.WorkTypeCancelUrb}
	w, err := decodeWork(&raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	c, ok := w.(CancelUrb)
	if !ok {
		t.Fatalf("decoded to %T; want CancelUrb", w)
	}
	if c.Handle != 42 {
		t.Errorf("handle is %d; want 42", c.Handle)
	}
}

func TestDecodeControlUrb(t *testing.T) {
	raw := ioctl.IocWork{Handle: 7, Type: ioctl.WorkTypeProcessUrb}
	*raw.Urb() = ioctl.IocUrb{
		Setup: ioctl.IocSetupPacket{
			BmRequestType: 0x80,
			BRequest:      uint8(usb.RequestGetDescriptor),
			WValue:        0x0100,
			WLength:       18,
		},
		BufferLength: 18,
		Address:      0,
		Endpoint:     0x80, // EP0 IN
		Type:         ioctl.UrbTypeControl,
	}

	w, err := decodeWork(&raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	u := w.(ProcessUrb).Urb
	if u.Kind() != UrbCtrl {
		t.Fatalf("kind is %v; want ctrl", u.Kind())
	}
	if u.Handle() != 7 {
		t.Errorf("handle is %d; want 7", u.Handle())
	}
	if u.Direction() != usb.DirIn {
		t.Errorf("direction is %v; want in", u.Direction())
	}
	if u.Setup().Request() != usb.RequestGetDescriptor {
		t.Errorf("setup request is %v; want GET_DESCRIPTOR", u.Setup().Request())
	}
	if u.Status() != StatusPending {
		t.Errorf("fresh URB status is %v; want pending", u.Status())
	}
	// IN buffers start empty with the requested capacity reserved.
	if u.BufferActual() != 0 || u.BufferLength() != 18 {
		t.Errorf("IN buffer is len %d cap %d; want len 0 cap 18",
			u.BufferActual(), u.BufferLength())
	}
	if u.RequiresFetchData() {
		t.Error("empty IN buffer must not require fetch-data")
	}
}

func TestDecodeOutUrbPreSized(t *testing.T) {
	raw := ioctl.IocWork{Handle: 8, Type: ioctl.WorkTypeProcessUrb}
	*raw.Urb() = ioctl.IocUrb{
		BufferLength: 64,
		Endpoint:     0x02, // EP2 OUT
		Type:         ioctl.UrbTypeBulk,
		Flags:        ioctl.UrbFlagZeroPacket,
	}

	w, err := decodeWork(&raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	u := w.(ProcessUrb).Urb
	if u.Kind() != UrbBulk {
		t.Fatalf("kind is %v; want bulk", u.Kind())
	}
	// OUT buffers are pre-sized to the full requested length.
	if u.BufferActual() != 64 || u.BufferLength() != 64 {
		t.Errorf("OUT buffer is len %d cap %d; want len 64 cap 64",
			u.BufferActual(), u.BufferLength())
	}
	if !u.RequiresFetchData() {
		t.Error("non-empty OUT buffer must require fetch-data")
	}
	if !u.ZeroPacket() {
		t.Error("zero-packet flag lost in decode")
	}
	if u.PacketCount() != 0 {
		t.Errorf("bulk URB has %d iso packets; want 0", u.PacketCount())
	}
}

func TestDecodeIsoUrb(t *testing.T) {
	raw := ioctl.IocWork{Handle: 9, Type: ioctl.WorkTypeProcessUrb}
	*raw.Urb() = ioctl.IocUrb{
		BufferLength: 3 * 256,
		PacketCount:  3,
		Interval:     8,
		Endpoint:     0x81,
		Type:         ioctl.UrbTypeIso,
		Flags:        ioctl.UrbFlagIsoASAP,
	}

	w, err := decodeWork(&raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	u := w.(ProcessUrb).Urb
	if u.Kind() != UrbIso {
		t.Fatalf("kind is %v; want iso", u.Kind())
	}
	if u.PacketCount() != 3 {
		t.Fatalf("packet count is %d; want 3", u.PacketCount())
	}
	for i, p := range u.IsoPackets() {
		if p.Status != StatusPending {
			t.Errorf("packet %d status is %v; want pending", i, p.Status)
		}
	}
	// Iso buffers are full-length regardless of direction.
	if u.BufferActual() != 3*256 {
		t.Errorf("iso buffer len is %d; want %d", u.BufferActual(), 3*256)
	}
	if !u.IsoASAP() {
		t.Error("iso-asap flag lost in decode")
	}
	if !u.RequiresFetchData() {
		t.Error("iso URB with packets must require fetch-data")
	}
}

func TestDecodeInterruptUrbFlags(t *testing.T) {
	raw := ioctl.IocWork{Handle: 10, Type: ioctl.WorkTypeProcessUrb}
	*raw.Urb() = ioctl.IocUrb{
		BufferLength: 8,
		Interval:     10,
		Endpoint:     0x81,
		Type:         ioctl.UrbTypeInt,
		Flags:        ioctl.UrbFlagShortNotOK,
	}

	w, err := decodeWork(&raw)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	u := w.(ProcessUrb).Urb
	if u.Kind() != UrbInt {
		t.Fatalf("kind is %v; want int", u.Kind())
	}
	if !u.ShortNotOK() {
		t.Error("short-not-ok flag lost in decode")
	}
	if u.Interval() != 10 {
		t.Errorf("interval is %d; want 10", u.Interval())
	}
}

// Malformed envelopes must fail loudly with a protocol error, never be
// guessed around.
func TestDecodeRejectsMalformedEnvelopes(t *testing.T) {
	badTag := ioctl.IocWork{Type: 99}

	badUrbType := ioctl.IocWork{Type: ioctl.WorkTypeProcessUrb}
	badUrbType.Urb().Type = 7

	negativeDims := ioctl.IocWork{Type: ioctl.WorkTypeProcessUrb}
	*negativeDims.Urb() = ioctl.IocUrb{BufferLength: -1, Type: ioctl.UrbTypeBulk}

	badPort := ioctl.IocWork{Type: ioctl.WorkTypePortStat}
	badPort.PortStat().Index = 0

	for _, tc := range []struct {
		name string
		raw  *ioctl.IocWork
	}{
		{"unknown work tag", &badTag},
		{"unknown URB type", &badUrbType},
		{"negative dimensions", &negativeDims},
		{"impossible port index", &badPort},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeWork(tc.raw); !errors.Is(err, unix.EBADMSG) {
				t.Errorf("got %v; want EBADMSG", err)
			}
		})
	}
}
