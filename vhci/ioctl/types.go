// SPDX-License-Identifier: Apache-2.0

// Package ioctl holds the binary contract with the usb-vhci-hcd kernel
// module: the fixed-layout request structures and the five ioctl commands
// operating on /dev/usb-vhci. Layouts must match the kernel ABI
// bit-for-bit, padding included; endianness is host-native.
package ioctl

import "unsafe"

const (
	// Magic is the ioctl magic number of the vhci-hcd facility.
	Magic = 138

	cmdRegister  = 0
	cmdPortStat  = 1
	cmdFetchWork = 2
	cmdGiveBack  = 3
	cmdFetchData = 4
)

// Work type tag values reported in IocWork.Type.
const (
	WorkTypePortStat   = 0
	WorkTypeProcessUrb = 1
	WorkTypeCancelUrb  = 2
)

// URB type tag values reported in IocUrb.Type.
const (
	UrbTypeIso     = 0
	UrbTypeInt     = 1
	UrbTypeControl = 2
	UrbTypeBulk    = 3
)

// URB flag bits in IocUrb.Flags.
const (
	UrbFlagShortNotOK = 0x0001
	UrbFlagIsoASAP    = 0x0002
	UrbFlagZeroPacket = 0x0040
)

// PortStatFlagResuming is the only defined bit of IocPortStat.Flags.
const PortStatFlagResuming = 0x01

// TimeoutInfinite makes fetch-work block without a deadline. The driver
// never uses it; a bounded timeout keeps shutdown responsive.
const TimeoutInfinite = -1

// MaxIsoPackets caps the per-URB isochronous packet array, matching the
// kernel-side limit.
const MaxIsoPackets = 64

// IocRegister registers a virtual controller. PortCount is the input;
// the kernel fills in the controller id, USB bus number and bus id.
type IocRegister struct {
	ID        int32
	BusNum    int32
	BusID     [20]byte
	PortCount uint8
	_         [3]byte
}

// IocPortStat reports or signals the status of one root-hub port.
type IocPortStat struct {
	Status uint16
	Change uint16
	Index  uint8
	Flags  uint8
	_      uint8
	_      uint8
}

// IocSetupPacket is the 8-byte control-transfer setup packet.
type IocSetupPacket struct {
	BmRequestType uint8
	BRequest      uint8
	WValue        uint16
	WIndex        uint16
	WLength       uint16
}

// IocUrb describes one pending transfer inside a work item.
type IocUrb struct {
	Setup        IocSetupPacket
	BufferLength int32
	Interval     int32
	PacketCount  int32
	Flags        uint16
	Address      uint8
	Endpoint     uint8
	Type         uint8
	_            [3]byte
}

// IocWork is the fetch-work envelope. Work is a C union of IocUrb and
// IocPortStat; Type tells which member the kernel actually wrote.
// Timeout is the wait budget in whole milliseconds (input).
type IocWork struct {
	Handle  uint64
	Work    [workUnionSize]byte
	Timeout int16
	Type    uint8
	_       [1]byte
}

const workUnionSize = unsafe.Sizeof(IocUrb{})

// Urb reinterprets the work union as a URB descriptor. Only valid when
// Type == WorkTypeProcessUrb; this cast is the protocol's trust boundary
// and must stay confined to the work decoder.
func (w *IocWork) Urb() *IocUrb {
	return (*IocUrb)(unsafe.Pointer(&w.Work[0]))
}

// PortStat reinterprets the work union as a port-status report. Only
// valid when Type == WorkTypePortStat.
func (w *IocWork) PortStat() *IocPortStat {
	return (*IocPortStat)(unsafe.Pointer(&w.Work[0]))
}

// IocIsoPacketData is one entry of the iso-packet array filled by
// fetch-data: the kernel-assigned offset and requested length.
type IocIsoPacketData struct {
	Offset       uint32
	PacketLength uint32
}

// IocUrbData is the fetch-data request: the caller supplies the buffer
// and iso-packet array for the kernel to fill. Pointed-to memory must
// stay alive and unmoved for the duration of the call.
type IocUrbData struct {
	Handle       uint64
	Buffer       unsafe.Pointer
	IsoPackets   unsafe.Pointer // *IocIsoPacketData
	BufferLength int32
	PacketCount  int32
}

// IocIsoPacketGiveback is one entry of the iso-packet array consumed by
// give-back: actual length and per-packet status in errno convention.
type IocIsoPacketGiveback struct {
	PacketActual uint32
	Status       int32
}

// IocGiveback completes a URB: final status (signed errno), transferred
// byte count, and for iso transfers the packet results and error count.
type IocGiveback struct {
	Handle       uint64
	Buffer       unsafe.Pointer
	IsoPackets   unsafe.Pointer // *IocIsoPacketGiveback
	Status       int32
	BufferActual int32
	PacketCount  int32
	ErrorCount   int32
}

// The kernel headers pin these sizes; a mismatch here corrupts the
// ioctl command numbers as well as the payloads.
var (
	_ [32]byte = [unsafe.Sizeof(IocRegister{})]byte{}
	_ [8]byte  = [unsafe.Sizeof(IocPortStat{})]byte{}
	_ [8]byte  = [unsafe.Sizeof(IocSetupPacket{})]byte{}
	_ [28]byte = [unsafe.Sizeof(IocUrb{})]byte{}
	_ [40]byte = [unsafe.Sizeof(IocWork{})]byte{}
	_ [8]byte  = [unsafe.Sizeof(IocIsoPacketData{})]byte{}
	_ [32]byte = [unsafe.Sizeof(IocUrbData{})]byte{}
	_ [8]byte  = [unsafe.Sizeof(IocIsoPacketGiveback{})]byte{}
	_ [40]byte = [unsafe.Sizeof(IocGiveback{})]byte{}
)
