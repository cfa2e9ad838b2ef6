// SPDX-License-Identifier: Apache-2.0

package ioctl

import (
	"testing"

	"golang.org/x/sys/unix"
)

// The command words are a hard contract with the kernel module; the
// expected values are the ones the C header macros produce on amd64.
func TestCommandCodes(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  uint32
		want uint32
	}{
		{"register", IocRegisterCmd, 0xc0208a00},
		{"port-stat", IocPortStatCmd, 0x40088a01},
		{"fetch-work", IocFetchWorkCmd, 0xc0288a02},
		{"give-back", IocGiveBackCmd, 0x40288a03},
		{"fetch-data", IocFetchDataCmd, 0x40208a04},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("command word is %#08x; want %#08x", tc.got, tc.want)
			}
		})
	}
}

func TestWorkUnionAliasing(t *testing.T) {
	var w IocWork

	w.Urb().BufferLength = 512
	w.Urb().Endpoint = 0x81
	if w.Urb().BufferLength != 512 || w.Urb().Endpoint != 0x81 {
		t.Fatalf("URB view did not alias the union bytes")
	}

	w = IocWork{}
	w.PortStat().Status = 0x0101
	w.PortStat().Index = 3
	if w.PortStat().Status != 0x0101 || w.PortStat().Index != 3 {
		t.Fatalf("port-stat view did not alias the union bytes")
	}
}

// A stale descriptor must surface as an I/O error, never a crash.
func TestStaleDescriptor(t *testing.T) {
	var stat IocPortStat
	if err := PortStat(-1, &stat); err != unix.EBADF {
		t.Errorf("got %v; want EBADF", err)
	}
	var gb IocGiveback
	if err := GiveBack(-1, &gb); err != unix.EBADF {
		t.Errorf("got %v; want EBADF", err)
	}
}
