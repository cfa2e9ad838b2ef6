package vhci

import (
	"github.com/MatthiasValvekens/usb-vhci/vhci/ioctl"
	"github.com/efficientgo/core/errors"
	"golang.org/x/sys/unix"
)

// errProtocol marks a malformed work envelope. With a matching kernel
// module it is unreachable: the kernel always writes the union arm its
// type tag names. Seeing it means the user-space and kernel ABIs have
// diverged, which must fail loudly rather than be guessed around.
var errProtocol = unix.EBADMSG

// Work is one item produced by fetch-work. It is exactly one of
// CancelUrb, ProcessUrb or PortStatWork.
type Work interface {
	work()
}

// CancelUrb reports that the kernel canceled a previously delivered
// URB. The driver must not fetch-data or give-back that handle anymore.
type CancelUrb struct {
	Handle UrbHandle
}

// ProcessUrb asks the driver to process a pending transfer and give
// back the result.
type ProcessUrb struct {
	Urb *Urb
}

// PortStatWork reports a snapshot of one root-hub port.
type PortStatWork struct {
	Stat PortStat
}

func (CancelUrb) work()    {}
func (ProcessUrb) work()   {}
func (PortStatWork) work() {}

// decodeWork interprets a raw work envelope into an owned Work value.
// This is the sole place the kernel-written union is reinterpreted:
// the type tag is trusted to name the arm that was actually written,
// and no other code may touch the raw union bytes.
func decodeWork(raw *ioctl.IocWork) (Work, error) {
	switch raw.Type {
	case ioctl.WorkTypePortStat:
		ps := raw.PortStat()
		index, err := NewPort(ps.Index)
		if err != nil {
			return nil, errors.Wrap(errProtocol, "port status for impossible port index")
		}
		return PortStatWork{Stat: PortStat{
			Status: PortStatus(ps.Status),
			Change: PortChange(ps.Change),
			Index:  index,
			Flags:  PortFlag(ps.Flags),
		}}, nil
	case ioctl.WorkTypeProcessUrb:
		urb, err := decodeUrb(UrbHandle(raw.Handle), raw.Urb())
		if err != nil {
			return nil, err
		}
		return ProcessUrb{Urb: urb}, nil
	case ioctl.WorkTypeCancelUrb:
		return CancelUrb{Handle: UrbHandle(raw.Handle)}, nil
	default:
		return nil, errors.Wrapf(errProtocol, "unrecognized work type tag %d", raw.Type)
	}
}
