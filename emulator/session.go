package emulator

import (
	"context"
	"time"

	"github.com/MatthiasValvekens/usb-vhci/vhci"
	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments one session.
type Metrics struct {
	workItems      *prometheus.CounterVec
	fetchTimeouts  prometheus.Counter
	giveBacks      *prometheus.CounterVec
	connectedPorts prometheus.Gauge
}

// NewMetrics registers the session metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		workItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhci_work_items_total",
			Help: "Work items fetched from the virtual host controller, by type.",
		}, []string{"type"}),
		fetchTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vhci_fetch_timeouts_total",
			Help: "Fetch-work calls that elapsed without a work item.",
		}),
		giveBacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vhci_givebacks_total",
			Help: "URBs given back to the kernel, by final status.",
		}, []string{"status"}),
		connectedPorts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vhci_connected_ports",
			Help: "Root-hub ports currently holding a connected device.",
		}),
	}
	reg.MustRegister(m.workItems, m.fetchTimeouts, m.giveBacks, m.connectedPorts)
	return m
}

// Session runs one emulated device against one controller: it fetches
// work, reduces port events into hub signaling, routes URBs through the
// device, and gives results back.
type Session struct {
	ctrl    *vhci.Controller
	remote  vhci.Remote
	dev     *Device
	reducer *PortReducer
	rate    vhci.DataRate
	timeout time.Duration

	// Handles the kernel canceled before the session got to them.
	canceled map[vhci.UrbHandle]struct{}

	logger  log.Logger
	metrics *Metrics
}

// NewSession wires a device to a controller. The session owns the
// controller's receive path while running.
func NewSession(ctrl *vhci.Controller, dev *Device, logger log.Logger, metrics *Metrics) *Session {
	return &Session{
		ctrl:     ctrl,
		remote:   ctrl.Remote(),
		dev:      dev,
		reducer:  NewPortReducer(),
		rate:     vhci.DataRateFull,
		timeout:  vhci.DefaultFetchTimeout,
		canceled: make(map[vhci.UrbHandle]struct{}),
		logger:   logger,
		metrics:  metrics,
	}
}

// Run drives the session until ctx is canceled or a transport error
// occurs. Fetch-work timeouts are the polling cadence, not errors.
func (s *Session) Run(ctx context.Context) error {
	recv, err := s.ctrl.WorkReceiver()
	if err != nil {
		return err
	}
	defer s.ctrl.ReturnWorkReceiver(recv)

	_ = level.Info(s.logger).Log("msg", "session started",
		"busId", s.ctrl.BusID(), "busNum", s.ctrl.BusNum())

	for {
		if ctx.Err() != nil {
			return nil
		}
		w, err := recv.FetchWork(s.timeout)
		if errors.Is(err, vhci.ErrTimeout) {
			s.metrics.fetchTimeouts.Inc()
			continue
		}
		if err != nil {
			return errors.Wrap(err, "session receive path failed")
		}
		switch w := w.(type) {
		case vhci.PortStatWork:
			s.metrics.workItems.WithLabelValues("port_stat").Inc()
			if err := s.handlePortStat(w.Stat); err != nil {
				return err
			}
		case vhci.ProcessUrb:
			s.metrics.workItems.WithLabelValues("process_urb").Inc()
			if err := s.handleURB(w.Urb); err != nil {
				return err
			}
		case vhci.CancelUrb:
			s.metrics.workItems.WithLabelValues("cancel_urb").Inc()
			s.canceled[w.Handle] = struct{}{}
			_ = level.Debug(s.logger).Log("msg", "URB canceled", "handle", w.Handle)
		}
	}
}

func (s *Session) handlePortStat(stat vhci.PortStat) error {
	for _, action := range s.reducer.Reduce(stat) {
		_ = level.Debug(s.logger).Log("msg", "port action",
			"port", stat.Index, "action", action)
		var err error
		switch action {
		case ActionConnect:
			err = s.ctrl.PortConnect(stat.Index, s.rate)
		case ActionResetDone:
			err = s.remote.PortResetDone(stat.Index, true)
		case ActionResumed:
			err = s.remote.PortResumed(stat.Index)
		case ActionInvalidateAddress, ActionDefaultAddress:
			s.dev.Reset()
		}
		if err != nil {
			return errors.Wrapf(err, "port %d action %s failed", stat.Index, action)
		}
	}
	s.metrics.connectedPorts.Set(float64(s.ctrl.Ports() - s.ctrl.FreePorts()))
	return nil
}

func (s *Session) handleURB(u *vhci.Urb) error {
	if _, ok := s.canceled[u.Handle()]; ok {
		delete(s.canceled, u.Handle())
		return nil
	}
	if u.RequiresFetchData() {
		if err := s.remote.FetchData(u); err != nil {
			return errors.Wrapf(err, "fetch-data for handle %d failed", u.Handle())
		}
	}
	s.dev.HandleURB(u)
	if err := s.remote.GiveBack(u); err != nil {
		return errors.Wrapf(err, "give-back for handle %d failed", u.Handle())
	}
	s.metrics.giveBacks.WithLabelValues(u.Status().String()).Inc()
	_ = level.Debug(s.logger).Log("msg", "URB completed",
		"handle", u.Handle(), "kind", u.Kind(), "status", u.Status())
	return nil
}

// Disconnect tears down every connected port, typically during shutdown.
func (s *Session) Disconnect() {
	for port := vhci.Port(1); int(port) <= s.ctrl.Ports(); port++ {
		if !s.ctrl.PortConnected(port) {
			continue
		}
		if err := s.ctrl.PortDisconnect(port); err == nil {
			s.reducer.Forget(port)
		}
	}
	s.metrics.connectedPorts.Set(0)
}
