// SPDX-License-Identifier: Apache-2.0

package vhci

import (
	"math/bits"
	"os"
	"strings"
	"time"
	"unsafe"

	"github.com/MatthiasValvekens/usb-vhci/usb"
	"github.com/MatthiasValvekens/usb-vhci/vhci/ioctl"
	"github.com/efficientgo/core/errors"
	"golang.org/x/sys/unix"
)

// DeviceFile is the well-known special file of the vhci-hcd facility.
const DeviceFile = "/dev/usb-vhci"

// ErrTimeout is returned by fetch-work when no work item arrived within
// the wait budget. It is an expected condition, not a failure; callers
// should poll again.
var ErrTimeout = errors.New("no work within timeout")

// ErrReceiverSplit is returned when a work receiver is requested while
// one is already outstanding, and by Controller.FetchWork while the
// receive path is split off.
var ErrReceiverSplit = errors.New("work receiver already split off")

// transport binds the five vhci ioctls to one device descriptor. It is
// an interface so the controller state machine is testable without the
// kernel module.
type transport interface {
	register(*ioctl.IocRegister) error
	portStat(*ioctl.IocPortStat) error
	fetchWork(*ioctl.IocWork) error
	fetchData(*ioctl.IocUrbData) error
	giveBack(*ioctl.IocGiveback) error
}

// devTransport issues the ioctls against a raw descriptor. It holds the
// descriptor by value: once the owning Controller closes the file, every
// call fails with EBADF, which is exactly the stale-handle behavior the
// capability handles need.
type devTransport struct {
	fd int
}

func (t devTransport) register(req *ioctl.IocRegister) error { return ioctl.Register(t.fd, req) }
func (t devTransport) portStat(req *ioctl.IocPortStat) error { return ioctl.PortStat(t.fd, req) }
func (t devTransport) fetchWork(req *ioctl.IocWork) error    { return ioctl.FetchWork(t.fd, req) }
func (t devTransport) fetchData(req *ioctl.IocUrbData) error { return ioctl.FetchData(t.fd, req) }
func (t devTransport) giveBack(req *ioctl.IocGiveback) error { return ioctl.GiveBack(t.fd, req) }

// WorkReceiver is an exclusive handle limited to fetching work. At most
// one may be split off a Controller at a time, which keeps two threads
// from racing on the blocking fetch-work ioctl.
type WorkReceiver struct {
	tr transport
}

// FetchWork blocks until a work item arrives or timeout elapses.
// Timeout must be whole milliseconds within [MinFetchTimeout,
// MaxFetchTimeout]; expiry returns ErrTimeout.
func (r *WorkReceiver) FetchWork(timeout time.Duration) (Work, error) {
	millis, err := timeoutMillis(timeout)
	if err != nil {
		return nil, err
	}
	raw := ioctl.IocWork{Timeout: millis}
	if err := r.tr.fetchWork(&raw); err != nil {
		if errors.Is(err, unix.ETIMEDOUT) {
			return nil, ErrTimeout
		}
		return nil, errors.Wrap(err, "fetch-work ioctl failed")
	}
	return decodeWork(&raw)
}

// Remote is a freely copyable handle carrying the data-plane subset of
// the controller's capabilities: fetch-data, give-back and port
// signaling. It cannot register controllers or mutate port occupancy,
// so worker threads holding one can only move data and finalize URBs.
type Remote struct {
	tr transport
}

// FetchData asks the kernel to fill the URB's OUT payload and, for iso
// transfers, the per-packet framing. Must complete before the URB is
// handed to a consumer; each filled iso packet starts out Pending.
func (r Remote) FetchData(u *Urb) error {
	if u.PacketCount() > ioctl.MaxIsoPackets {
		return errors.Wrapf(errProtocol, "URB carries %d iso packets, limit is %d",
			u.PacketCount(), ioctl.MaxIsoPackets)
	}
	req := ioctl.IocUrbData{
		Handle:       uint64(u.handle),
		BufferLength: int32(u.BufferLength()),
		PacketCount:  int32(u.PacketCount()),
	}
	if u.BufferLength() > 0 {
		full := u.buf[:cap(u.buf)]
		req.Buffer = unsafe.Pointer(&full[0])
	}
	var pkts [ioctl.MaxIsoPackets]ioctl.IocIsoPacketData
	if u.PacketCount() > 0 {
		req.IsoPackets = unsafe.Pointer(&pkts[0])
	}
	if err := r.tr.fetchData(&req); err != nil {
		return errors.Wrap(err, "fetch-data ioctl failed")
	}
	for i := range u.isoPackets {
		u.isoPackets[i] = IsoPacket{
			Offset: pkts[i].Offset,
			Length: int32(pkts[i].PacketLength),
			Actual: 0,
			Status: StatusPending,
		}
	}
	return nil
}

// GiveBack completes the URB, transmitting its final status, actual
// transferred length and iso packet results. It must be the last
// operation on the URB's handle; give-back racing a kernel-side cancel
// is tolerated and reported as success by the transport.
func (r Remote) GiveBack(u *Urb) error {
	if u.PacketCount() > ioctl.MaxIsoPackets {
		return errors.Wrapf(errProtocol, "URB carries %d iso packets, limit is %d",
			u.PacketCount(), ioctl.MaxIsoPackets)
	}
	req := ioctl.IocGiveback{
		Handle:       uint64(u.handle),
		Status:       u.statusErrno(),
		BufferActual: int32(u.BufferActual()),
	}
	// IN payloads are only copied back when the consumer produced data.
	if u.Direction() == usb.DirIn && u.BufferActual() > 0 {
		req.Buffer = unsafe.Pointer(&u.buf[0])
	}
	var pkts [ioctl.MaxIsoPackets]ioctl.IocIsoPacketGiveback
	if u.kind == UrbIso {
		for i, p := range u.isoPackets {
			pkts[i] = ioctl.IocIsoPacketGiveback{
				PacketActual: uint32(p.Actual),
				Status:       p.Status.Errno(true),
			}
		}
		if u.PacketCount() > 0 {
			req.IsoPackets = unsafe.Pointer(&pkts[0])
		}
		req.PacketCount = int32(u.PacketCount())
		req.ErrorCount = u.errorCount
	}
	if err := r.tr.giveBack(&req); err != nil {
		// The originator canceled the URB while its give-back was in
		// flight. The kernel already discarded the handle; success.
		if errors.Is(err, unix.ECANCELED) {
			return nil
		}
		return errors.Wrap(err, "give-back ioctl failed")
	}
	return nil
}

// PortDisable signals an enable-change with the enable bit cleared.
func (r Remote) PortDisable(port Port) error {
	return r.signalPort(&ioctl.IocPortStat{
		Change: uint16(PortChangeEnable),
		Index:  uint8(port),
	})
}

// PortResumed signals that resume signaling for the port finished.
func (r Remote) PortResumed(port Port) error {
	return r.signalPort(&ioctl.IocPortStat{
		Change: uint16(PortChangeSuspend),
		Index:  uint8(port),
	})
}

// PortOvercurrent sets or clears the port's overcurrent condition.
func (r Remote) PortOvercurrent(port Port, set bool) error {
	req := ioctl.IocPortStat{
		Change: uint16(PortChangeOvercurrent),
		Index:  uint8(port),
	}
	if set {
		req.Status = uint16(PortStatusOvercurrent)
	}
	return r.signalPort(&req)
}

// PortResetDone signals completion of a port reset, optionally bringing
// the port up enabled.
func (r Remote) PortResetDone(port Port, enable bool) error {
	req := ioctl.IocPortStat{
		Change: uint16(PortChangeReset),
		Index:  uint8(port),
	}
	if enable {
		req.Status = uint16(PortStatusEnable)
	} else {
		req.Change |= uint16(PortChangeEnable)
	}
	return r.signalPort(&req)
}

func (r Remote) signalPort(req *ioctl.IocPortStat) error {
	if err := r.tr.portStat(req); err != nil {
		return errors.Wrapf(err, "port-stat ioctl failed for port %d", req.Index)
	}
	return nil
}

// Controller owns one registered virtual host controller: the open
// device descriptor, the port occupancy bitmap, and the receive-path
// split flag. It is not safe for concurrent use; split off Remote and
// WorkReceiver handles to distribute work across goroutines.
type Controller struct {
	dev *os.File
	tr  transport

	numPorts  uint8
	openPorts uint32 // bit i set = port i+1 connected

	id        int32
	busNum    int32
	busID     string
	recvSplit bool
}

// Open opens the vhci device file and registers a virtual controller
// with numPorts root-hub ports, 1 to MaxPorts.
func Open(numPorts uint8) (*Controller, error) {
	if numPorts < 1 || numPorts > MaxPorts {
		return nil, errors.Newf("port count %d outside [1, %d]", numPorts, MaxPorts)
	}
	dev, err := os.OpenFile(DeviceFile, os.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", DeviceFile)
	}
	c, err := newController(devTransport{fd: int(dev.Fd())}, numPorts)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	c.dev = dev
	return c, nil
}

func newController(tr transport, numPorts uint8) (*Controller, error) {
	reg := ioctl.IocRegister{PortCount: numPorts}
	if err := tr.register(&reg); err != nil {
		return nil, errors.Wrap(err, "register ioctl failed")
	}
	return &Controller{
		tr:       tr,
		numPorts: numPorts,
		id:       reg.ID,
		busNum:   reg.BusNum,
		busID:    strings.TrimRight(string(reg.BusID[:]), "\x00"),
	}, nil
}

// Close releases the device descriptor. Every operation on a Remote or
// WorkReceiver split off this controller fails with an I/O error
// afterwards.
func (c *Controller) Close() error {
	if c.dev == nil {
		return nil
	}
	err := c.dev.Close()
	c.dev = nil
	return err
}

// ID returns the kernel-assigned controller id. Informational only.
func (c *Controller) ID() int32 { return c.id }

// BusNum returns the USB bus number of the virtual controller.
// Informational only.
func (c *Controller) BusNum() int32 { return c.busNum }

// BusID returns the kernel bus-id string of the virtual controller.
// Informational only.
func (c *Controller) BusID() string { return c.busID }

// Remote splits off a data-plane handle over the same descriptor.
// Remotes are freely copyable and safe to use from multiple goroutines,
// each call being self-contained and handle- or port-addressed.
func (c *Controller) Remote() Remote {
	return Remote{tr: c.tr}
}

// WorkReceiver splits off the exclusive receive-path handle. Only one
// may be outstanding; a second request fails with ErrReceiverSplit
// until the first is returned.
func (c *Controller) WorkReceiver() (*WorkReceiver, error) {
	if c.recvSplit {
		return nil, ErrReceiverSplit
	}
	c.recvSplit = true
	return &WorkReceiver{tr: c.tr}, nil
}

// ReturnWorkReceiver revokes a split-off receiver, making fetch-work
// available on the controller again.
func (c *Controller) ReturnWorkReceiver(*WorkReceiver) {
	c.recvSplit = false
}

// FetchWork blocks until a work item arrives or timeout elapses. Fails
// with ErrReceiverSplit while a WorkReceiver is outstanding.
func (c *Controller) FetchWork(timeout time.Duration) (Work, error) {
	if c.recvSplit {
		return nil, ErrReceiverSplit
	}
	r := WorkReceiver{tr: c.tr}
	return r.FetchWork(timeout)
}

// FetchData fills a URB's OUT payload; see Remote.FetchData.
func (c *Controller) FetchData(u *Urb) error {
	return c.Remote().FetchData(u)
}

// GiveBack completes a URB; see Remote.GiveBack.
func (c *Controller) GiveBack(u *Urb) error {
	return c.Remote().GiveBack(u)
}

// PortConnect marks the port connected at the given data rate and
// records it in the occupancy bitmap.
func (c *Controller) PortConnect(port Port, rate DataRate) error {
	status := PortStatusConnection
	switch rate {
	case DataRateLow:
		status |= PortStatusLowSpeed
	case DataRateHigh:
		status |= PortStatusHighSpeed
	}
	err := c.Remote().signalPort(&ioctl.IocPortStat{
		Status: uint16(status),
		Change: uint16(PortChangeConnection),
		Index:  uint8(port),
	})
	if err != nil {
		return err
	}
	c.openPorts |= 1 << (uint8(port) - 1)
	return nil
}

// PortConnectAny connects the first free port and returns it. Fails
// when every port is occupied.
func (c *Controller) PortConnectAny(rate DataRate) (Port, error) {
	free := bits.TrailingZeros32(^c.openPorts)
	if free >= int(c.numPorts) {
		return 0, errors.Newf("all %d ports connected", c.numPorts)
	}
	port := Port(free + 1)
	if err := c.PortConnect(port, rate); err != nil {
		return 0, err
	}
	return port, nil
}

// PortDisconnect clears the port's connection bit and frees it in the
// occupancy bitmap.
func (c *Controller) PortDisconnect(port Port) error {
	err := c.Remote().signalPort(&ioctl.IocPortStat{
		Change: uint16(PortChangeConnection),
		Index:  uint8(port),
	})
	if err != nil {
		return err
	}
	c.openPorts &^= 1 << (uint8(port) - 1)
	return nil
}

// PortDisable signals an enable-change; see Remote.PortDisable.
func (c *Controller) PortDisable(port Port) error {
	return c.Remote().PortDisable(port)
}

// PortResumed signals resume completion; see Remote.PortResumed.
func (c *Controller) PortResumed(port Port) error {
	return c.Remote().PortResumed(port)
}

// PortOvercurrent signals an overcurrent condition; see
// Remote.PortOvercurrent.
func (c *Controller) PortOvercurrent(port Port, set bool) error {
	return c.Remote().PortOvercurrent(port, set)
}

// PortResetDone signals reset completion; see Remote.PortResetDone.
func (c *Controller) PortResetDone(port Port, enable bool) error {
	return c.Remote().PortResetDone(port, enable)
}

// Ports returns the registered port count.
func (c *Controller) Ports() int {
	return int(c.numPorts)
}

// PortConnected reports whether the port is marked connected in the
// occupancy bitmap.
func (c *Controller) PortConnected(port Port) bool {
	return c.openPorts&(1<<(uint8(port)-1)) != 0
}

// FreePorts returns how many ports are currently unconnected.
func (c *Controller) FreePorts() int {
	return int(c.numPorts) - bits.OnesCount32(c.openPorts)
}

// IsActive reports whether at least one port is connected.
func (c *Controller) IsActive() bool {
	return c.openPorts != 0
}
