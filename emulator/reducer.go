package emulator

import "github.com/MatthiasValvekens/usb-vhci/vhci"

// Action is a follow-up the session must perform after a port snapshot.
type Action uint8

const (
	// ActionConnect asks for a port-connect: the hub powered the port.
	ActionConnect Action = iota + 1
	// ActionResetDone asks for reset completion with the port enabled.
	ActionResetDone
	// ActionResumed asks for resume-completion signaling.
	ActionResumed
	// ActionInvalidateAddress drops the device's assigned bus address:
	// the port's connection state changed underneath it.
	ActionInvalidateAddress
	// ActionDefaultAddress marks the device back at the default address
	// after a completed reset; it must answer anycast again.
	ActionDefaultAddress
)

func (a Action) String() string {
	switch a {
	case ActionConnect:
		return "connect"
	case ActionResetDone:
		return "reset-done"
	case ActionResumed:
		return "resumed"
	case ActionInvalidateAddress:
		return "invalidate-address"
	case ActionDefaultAddress:
		return "default-address"
	default:
		return "unknown"
	}
}

// PortReducer turns port-status snapshots into actions. It is
// edge-triggered: it retains the previous snapshot per port and fires
// only on bit transitions, so re-delivery of an identical snapshot
// produces nothing.
type PortReducer struct {
	prev map[vhci.Port]vhci.PortStat
}

func NewPortReducer() *PortReducer {
	return &PortReducer{prev: make(map[vhci.Port]vhci.PortStat)}
}

// Reduce consumes one snapshot and returns the actions it triggers, in
// the order they should be applied.
func (r *PortReducer) Reduce(stat vhci.PortStat) []Action {
	prev := r.prev[stat.Index]
	r.prev[stat.Index] = stat

	risen := stat.Status &^ prev.Status
	fell := prev.Status &^ stat.Status

	var actions []Action
	if (stat.Status ^ prev.Status).Has(vhci.PortStatusConnection) {
		actions = append(actions, ActionInvalidateAddress)
	}
	if fell.Has(vhci.PortStatusReset) && stat.Status.Has(vhci.PortStatusEnable) {
		actions = append(actions, ActionDefaultAddress)
	}
	if risen.Has(vhci.PortStatusPower) {
		actions = append(actions, ActionConnect)
	}
	resetAndConn := vhci.PortStatusReset | vhci.PortStatusConnection
	if stat.Status.Has(resetAndConn) && !prev.Status.Has(resetAndConn) {
		actions = append(actions, ActionResetDone)
	}
	resuming := stat.Flags.Has(vhci.PortFlagResuming) && !prev.Flags.Has(vhci.PortFlagResuming)
	if resuming && stat.Status.Has(vhci.PortStatusConnection) {
		actions = append(actions, ActionResumed)
	}
	return actions
}

// Forget drops the retained snapshot for a port, e.g. after the session
// disconnected it.
func (r *PortReducer) Forget(port vhci.Port) {
	delete(r.prev, port)
}
