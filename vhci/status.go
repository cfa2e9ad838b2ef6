package vhci

import "golang.org/x/sys/unix"

// Status is the logical completion state of a URB or iso packet.
type Status int32

// The discriminant values match the vhci-hcd user-space header so logs
// line up with the C tooling.
const (
	StatusSuccess             Status = 0x00000000
	StatusPending             Status = 0x10000001
	StatusShortPacket         Status = 0x10000002
	StatusError               Status = 0x7ff00000
	StatusCanceled            Status = 0x30000001
	StatusTimedOut            Status = 0x30000002
	StatusDeviceDisabled      Status = 0x71000001
	StatusDeviceDisconnected  Status = 0x71000002
	StatusBitStuff            Status = 0x72000001
	StatusCrc                 Status = 0x72000002
	StatusNoResponse          Status = 0x72000003
	StatusBabble              Status = 0x72000004
	StatusStall               Status = 0x74000001
	StatusBufferOverrun       Status = 0x72100001
	StatusBufferUnderrun      Status = 0x72100002
	StatusAllIsoPacketsFailed Status = 0x78000001
)

// Errno translates a logical status to the kernel's signed-errno
// convention. Two statuses depend on the transfer context: on an
// isochronous transfer StatusError maps to -EXDEV and
// StatusAllIsoPacketsFailed to -EINVAL, while on every other transfer
// type both map to -EPROTO.
func (s Status) Errno(iso bool) int32 {
	switch s {
	case StatusSuccess:
		return 0
	case StatusPending:
		return -int32(unix.EINPROGRESS)
	case StatusShortPacket:
		return -int32(unix.EREMOTEIO)
	case StatusError:
		if iso {
			return -int32(unix.EXDEV)
		}
		return -int32(unix.EPROTO)
	case StatusCanceled:
		return -int32(unix.ECONNRESET)
	case StatusTimedOut:
		return -int32(unix.ETIMEDOUT)
	case StatusDeviceDisabled:
		return -int32(unix.ESHUTDOWN)
	case StatusDeviceDisconnected:
		return -int32(unix.ENODEV)
	case StatusBitStuff:
		return -int32(unix.EPROTO)
	case StatusCrc:
		return -int32(unix.EILSEQ)
	case StatusNoResponse:
		return -int32(unix.ETIME)
	case StatusBabble:
		return -int32(unix.EOVERFLOW)
	case StatusStall:
		return -int32(unix.EPIPE)
	case StatusBufferOverrun:
		return -int32(unix.ECOMM)
	case StatusBufferUnderrun:
		return -int32(unix.ENOSR)
	case StatusAllIsoPacketsFailed:
		if iso {
			return -int32(unix.EINVAL)
		}
		return -int32(unix.EPROTO)
	default:
		if iso {
			return -int32(unix.EXDEV)
		}
		return -int32(unix.EPROTO)
	}
}

// StatusFromErrno translates a kernel signed-errno code back to the
// logical status, the inverse of Status.Errno over the canonical codes.
// Unknown codes classify as StatusError.
func StatusFromErrno(errno int32, iso bool) Status {
	switch -errno {
	case 0:
		return StatusSuccess
	case int32(unix.EINPROGRESS):
		return StatusPending
	case int32(unix.EREMOTEIO):
		return StatusShortPacket
	case int32(unix.ENOENT), int32(unix.ECONNRESET):
		return StatusCanceled
	case int32(unix.ETIMEDOUT):
		return StatusTimedOut
	case int32(unix.ESHUTDOWN):
		return StatusDeviceDisabled
	case int32(unix.ENODEV):
		return StatusDeviceDisconnected
	case int32(unix.EPROTO):
		return StatusBitStuff
	case int32(unix.EILSEQ):
		return StatusCrc
	case int32(unix.ETIME):
		return StatusNoResponse
	case int32(unix.EOVERFLOW):
		return StatusBabble
	case int32(unix.EPIPE):
		return StatusStall
	case int32(unix.ECOMM):
		return StatusBufferOverrun
	case int32(unix.ENOSR):
		return StatusBufferUnderrun
	case int32(unix.EXDEV):
		return StatusError
	case int32(unix.EINVAL):
		if iso {
			return StatusAllIsoPacketsFailed
		}
		return StatusError
	default:
		return StatusError
	}
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPending:
		return "pending"
	case StatusShortPacket:
		return "short-packet"
	case StatusError:
		return "error"
	case StatusCanceled:
		return "canceled"
	case StatusTimedOut:
		return "timed-out"
	case StatusDeviceDisabled:
		return "device-disabled"
	case StatusDeviceDisconnected:
		return "device-disconnected"
	case StatusBitStuff:
		return "bit-stuff"
	case StatusCrc:
		return "crc"
	case StatusNoResponse:
		return "no-response"
	case StatusBabble:
		return "babble"
	case StatusStall:
		return "stall"
	case StatusBufferOverrun:
		return "buffer-overrun"
	case StatusBufferUnderrun:
		return "buffer-underrun"
	case StatusAllIsoPacketsFailed:
		return "all-iso-packets-failed"
	default:
		return "unknown"
	}
}
