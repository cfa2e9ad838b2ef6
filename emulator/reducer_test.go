package emulator

import (
	"testing"

	"github.com/MatthiasValvekens/usb-vhci/vhci"
)

func assertActions(t *testing.T, got, want []Action) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got actions %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got actions %v; want %v", got, want)
		}
	}
}

func TestReducePowerRise(t *testing.T) {
	r := NewPortReducer()

	stat := vhci.PortStat{Status: vhci.PortStatusPower, Index: 1}
	assertActions(t, r.Reduce(stat), []Action{ActionConnect})

	// Re-delivery of the identical snapshot fires nothing.
	assertActions(t, r.Reduce(stat), nil)
}

// Connection change with power still down invalidates the address but
// must not connect; the connect fires once power actually rises.
func TestReduceConnectionBeforePower(t *testing.T) {
	r := NewPortReducer()

	stat := vhci.PortStat{
		Status: vhci.PortStatusConnection,
		Change: vhci.PortChangeConnection,
		Index:  1,
	}
	assertActions(t, r.Reduce(stat), []Action{ActionInvalidateAddress})

	stat.Status |= vhci.PortStatusPower
	assertActions(t, r.Reduce(stat), []Action{ActionConnect})
}

func TestReduceResetSequence(t *testing.T) {
	r := NewPortReducer()

	// Connected and powered.
	base := vhci.PortStat{
		Status: vhci.PortStatusPower | vhci.PortStatusConnection,
		Index:  1,
	}
	assertActions(t, r.Reduce(base), []Action{ActionInvalidateAddress, ActionConnect})

	// Host drives a reset: reset+connection newly both set.
	resetting := base
	resetting.Status |= vhci.PortStatusReset
	assertActions(t, r.Reduce(resetting), []Action{ActionResetDone})
	assertActions(t, r.Reduce(resetting), nil)

	// Reset completes with the port enabled: back to the default address.
	done := base
	done.Status |= vhci.PortStatusEnable
	assertActions(t, r.Reduce(done), []Action{ActionDefaultAddress})
	assertActions(t, r.Reduce(done), nil)
}

func TestReduceResume(t *testing.T) {
	r := NewPortReducer()

	connected := vhci.PortStat{
		Status: vhci.PortStatusPower | vhci.PortStatusConnection | vhci.PortStatusEnable,
		Index:  1,
	}
	r.Reduce(connected)

	resuming := connected
	resuming.Flags = vhci.PortFlagResuming
	assertActions(t, r.Reduce(resuming), []Action{ActionResumed})
	assertActions(t, r.Reduce(resuming), nil)
}

// The resuming flag on a disconnected port is noise, not a resume.
func TestReduceResumeRequiresConnection(t *testing.T) {
	r := NewPortReducer()

	stat := vhci.PortStat{Flags: vhci.PortFlagResuming, Index: 1}
	assertActions(t, r.Reduce(stat), nil)
}

func TestReduceTracksPortsIndependently(t *testing.T) {
	r := NewPortReducer()

	r.Reduce(vhci.PortStat{Status: vhci.PortStatusPower, Index: 1})
	// The same rise on another port is its own edge.
	assertActions(t,
		r.Reduce(vhci.PortStat{Status: vhci.PortStatusPower, Index: 2}),
		[]Action{ActionConnect})
}

func TestReduceForget(t *testing.T) {
	r := NewPortReducer()

	stat := vhci.PortStat{Status: vhci.PortStatusPower, Index: 1}
	r.Reduce(stat)
	r.Forget(1)
	// After forgetting, the retained snapshot is gone and the edge
	// re-fires.
	assertActions(t, r.Reduce(stat), []Action{ActionConnect})
}
