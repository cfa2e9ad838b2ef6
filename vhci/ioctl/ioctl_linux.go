// SPDX-License-Identifier: Apache-2.0

package ioctl

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocNrShift   = 0
	iocTypeShift = 8
	iocSizeShift = 16
	iocDirShift  = 30

	iocWrite = 1
	iocRead  = 2
)

func ioc(dir, nr uint32, size uintptr) uint32 {
	return dir<<iocDirShift | Magic<<iocTypeShift | nr<<iocNrShift | uint32(size)<<iocSizeShift
}

func iow(nr uint32, size uintptr) uint32 {
	return ioc(iocWrite, nr, size)
}

func iowr(nr uint32, size uintptr) uint32 {
	return ioc(iocRead|iocWrite, nr, size)
}

// The five command numbers of the vhci-hcd ioctl surface.
var (
	IocRegisterCmd  = iowr(cmdRegister, unsafe.Sizeof(IocRegister{}))
	IocPortStatCmd  = iow(cmdPortStat, unsafe.Sizeof(IocPortStat{}))
	IocFetchWorkCmd = iowr(cmdFetchWork, unsafe.Sizeof(IocWork{}))
	IocGiveBackCmd  = iow(cmdGiveBack, unsafe.Sizeof(IocGiveback{}))
	IocFetchDataCmd = iow(cmdFetchData, unsafe.Sizeof(IocUrbData{}))
)

func doIoctl(fd int, cmd uint32, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(cmd), uintptr(arg))
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return errno
		}
		return nil
	}
}

// Register registers a virtual host controller with req.PortCount ports.
// The kernel fills in the controller id, bus number and bus id.
func Register(fd int, req *IocRegister) error {
	err := doIoctl(fd, IocRegisterCmd, unsafe.Pointer(req))
	runtime.KeepAlive(req)
	return err
}

// PortStat reports a port status change to the kernel.
func PortStat(fd int, req *IocPortStat) error {
	err := doIoctl(fd, IocPortStatCmd, unsafe.Pointer(req))
	runtime.KeepAlive(req)
	return err
}

// FetchWork blocks until the kernel produces a work item or req.Timeout
// milliseconds elapse. A timeout surfaces as unix.ETIMEDOUT; callers are
// expected to treat it as "no work yet" and poll again.
func FetchWork(fd int, req *IocWork) error {
	err := doIoctl(fd, IocFetchWorkCmd, unsafe.Pointer(req))
	runtime.KeepAlive(req)
	return err
}

// FetchData asks the kernel to copy a pending URB's OUT payload into
// req.Buffer and its iso-packet framing into req.IsoPackets. The memory
// behind both pointers must be kept alive by the caller across the call.
func FetchData(fd int, req *IocUrbData) error {
	err := doIoctl(fd, IocFetchDataCmd, unsafe.Pointer(req))
	runtime.KeepAlive(req)
	return err
}

// GiveBack returns a completed URB to the kernel. If the URB was already
// canceled by its originator the kernel answers ECANCELED; callers treat
// that as a normal race, not a failure.
func GiveBack(fd int, req *IocGiveback) error {
	err := doIoctl(fd, IocGiveBackCmd, unsafe.Pointer(req))
	runtime.KeepAlive(req)
	return err
}
