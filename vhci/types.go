// SPDX-License-Identifier: Apache-2.0

// Package vhci drives the Linux virtual-USB-host-controller facility
// from user space. A Controller registers a virtual root hub over
// /dev/usb-vhci, receives work items (port events, URBs, cancellations)
// through the fetch-work ioctl, and completes URBs through the
// fetch-data/give-back handshake.
package vhci

import (
	"time"

	"github.com/MatthiasValvekens/usb-vhci/usb"
	"github.com/efficientgo/core/errors"
)

// MaxPorts is the largest port count a single controller may register.
const MaxPorts = 32

// Port identifies one virtual root-hub port, in [1, MaxPorts].
type Port uint8

// NewPort validates a raw port index.
func NewPort(n uint8) (Port, error) {
	if n < 1 || n > MaxPorts {
		return 0, errors.Newf("port index %d outside [1, %d]", n, MaxPorts)
	}
	return Port(n), nil
}

// MustPort is NewPort for literals; panics on out-of-range input.
func MustPort(n uint8) Port {
	p, err := NewPort(n)
	if err != nil {
		panic(err)
	}
	return p
}

// UrbHandle is the kernel-assigned correlation key of one pending URB.
// The protocol is handle-addressed: fetch-data and give-back name the
// URB they act on, so multiple URBs may be in flight concurrently and
// complete out of order.
type UrbHandle uint64

// Address is a USB device address byte.
type Address uint8

// IsAnycast reports whether the address targets any device that has not
// yet been assigned an address via SET_ADDRESS.
func (a Address) IsAnycast() bool {
	return a&0x7f == 0
}

// Endpoint is a USB endpoint address byte; bit 7 encodes the direction.
type Endpoint uint8

// Direction returns the transfer direction implied by the endpoint
// address.
func (e Endpoint) Direction() usb.Direction {
	return usb.Direction(e >> 7)
}

// Number returns the endpoint number without the direction bit.
func (e Endpoint) Number() uint8 {
	return uint8(e) & 0x0f
}

// DataRate selects the signaling speed advertised when connecting a
// port.
type DataRate uint8

const (
	DataRateFull DataRate = iota
	DataRateLow
	DataRateHigh
)

// PortStatus is the status bit set of one port.
type PortStatus uint16

const (
	PortStatusConnection  PortStatus = 0x0001
	PortStatusEnable      PortStatus = 0x0002
	PortStatusSuspend     PortStatus = 0x0004
	PortStatusOvercurrent PortStatus = 0x0008
	PortStatusReset       PortStatus = 0x0010
	PortStatusPower       PortStatus = 0x0100
	PortStatusLowSpeed    PortStatus = 0x0200
	PortStatusHighSpeed   PortStatus = 0x0400
)

// Has reports whether all bits of mask are set.
func (s PortStatus) Has(mask PortStatus) bool {
	return s&mask == mask
}

// PortChange marks which status bits toggled since the last snapshot.
type PortChange uint16

const (
	PortChangeConnection  PortChange = 0x0001
	PortChangeEnable      PortChange = 0x0002
	PortChangeSuspend     PortChange = 0x0004
	PortChangeOvercurrent PortChange = 0x0008
	PortChangeReset       PortChange = 0x0010
)

// Has reports whether all bits of mask are set.
func (c PortChange) Has(mask PortChange) bool {
	return c&mask == mask
}

// PortFlag carries the out-of-band port flags.
type PortFlag uint8

// PortFlagResuming signals that the port is in resume signaling.
const PortFlagResuming PortFlag = 0x01

// Has reports whether all bits of mask are set.
func (f PortFlag) Has(mask PortFlag) bool {
	return f&mask == mask
}

// PortStat is a snapshot of one port. Snapshots are transient: the
// driver loop retains the previous one itself to detect transitions.
type PortStat struct {
	Status PortStatus
	Change PortChange
	Index  Port
	Flags  PortFlag
}

// Fetch-work timeout bounds. The kernel takes whole milliseconds in a
// signed 16-bit field; the driver keeps the wait budget under a second
// so shutdown stays responsive.
const (
	MinFetchTimeout     = 1 * time.Millisecond
	MaxFetchTimeout     = 999 * time.Millisecond
	DefaultFetchTimeout = 100 * time.Millisecond
)

func timeoutMillis(timeout time.Duration) (int16, error) {
	if timeout < MinFetchTimeout || timeout > MaxFetchTimeout {
		return 0, errors.Newf("fetch-work timeout %v outside [%v, %v]",
			timeout, MinFetchTimeout, MaxFetchTimeout)
	}
	return int16(timeout / time.Millisecond), nil
}
