// Package metrics exposes the latest machine statuses as Prometheus gauges.
package metrics

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"laundry-status-exporter/internal/parse"
	"laundry-status-exporter/internal/session"
	"laundry-status-exporter/internal/status"
)

const namespace = "laundry"

var machineLabels = []string{"machine", "location", "kind"}

// Exporter keeps one set of gauges per machine. Raw fields are exported even
// when the machine's state could not be derived.
type Exporter struct {
	running                    *prometheus.GaugeVec
	reserved                   *prometheus.GaugeVec
	inMaintenance              *prometheus.GaugeVec
	gatewayOffline             *prometheus.GaugeVec
	remainingTimeIsFromMachine *prometheus.GaugeVec
	remainingTime              *prometheus.GaugeVec
	starter                    *prometheus.GaugeVec
	reserver                   *prometheus.GaugeVec
	controllerLogic            *prometheus.GaugeVec
	state                      *prometheus.GaugeVec
	stateError                 *prometheus.GaugeVec
	info                       *prometheus.GaugeVec

	polls           *prometheus.CounterVec
	authentications prometheus.Counter
	invalidations   prometheus.Counter

	mu    sync.Mutex
	known map[string]map[string]struct{} // location -> machine names
}

// NewExporter registers the collectors with reg.
func NewExporter(reg prometheus.Registerer) *Exporter {
	f := promauto.With(reg)
	gauge := func(name, help string, extra ...string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "machine",
			Name:      name,
			Help:      help,
		}, append(append([]string{}, machineLabels...), extra...))
	}

	return &Exporter{
		running:                    gauge("running", "Whether the machine reports running (1) or not (0)."),
		reserved:                   gauge("reserved", "Whether the machine reports reserved (1) or not (0)."),
		inMaintenance:              gauge("in_maintenance", "Raw in_maintenance code: 0, 1 or an unknown byte."),
		gatewayOffline:             gauge("gateway_offline", "Raw gateway_offline code: 0, 1 or an unknown byte."),
		remainingTimeIsFromMachine: gauge("remaining_time_is_from_machine", "Raw remaining_time_is_from_machine code: 0, 1 or an unknown byte."),
		remainingTime:              gauge("remaining_time_seconds", "Remaining time of the current program."),
		starter:                    gauge("starter", "User id that started the machine, 0 for none."),
		reserver:                   gauge("reserver", "User id that reserved the machine, 0 for none."),
		controllerLogic:            gauge("controller_logic", "Opaque controller_logic value."),
		state:                      gauge("state", "One-hot machine state.", "state"),
		stateError:                 gauge("state_error", "1 when the machine state could not be derived."),
		info:                       gauge("info", "Maps a machine to its pay2wash id.", "machine_id"),

		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by result.",
		}, []string{"result"}),
		authentications: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authentications_total",
			Help:      "Successful logins.",
		}),
		invalidations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_invalidations_total",
			Help:      "Sessions dropped because the status endpoint redirected.",
		}),

		known: make(map[string]map[string]struct{}),
	}
}

// Report replaces the gauges of location with statuses.
func (e *Exporter) Report(_ context.Context, location string, statuses map[string]status.MachineStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{}, len(statuses))
	for name, ms := range statuses {
		seen[name] = struct{}{}
		e.set(location, name, ms)
	}

	for name := range e.known[location] {
		if _, ok := seen[name]; !ok {
			e.forget(location, name)
		}
	}
	e.known[location] = seen
	return nil
}

func (e *Exporter) set(location, name string, ms status.MachineStatus) {
	parsed, _ := parse.ParseName(name)
	labels := prometheus.Labels{"machine": name, "location": location, "kind": string(parsed.Kind)}
	raw := ms.Raw

	e.running.With(labels).Set(boolValue(raw.Running))
	e.reserved.With(labels).Set(boolValue(raw.Reserved))
	e.inMaintenance.With(labels).Set(float64(raw.InMaintenance.Raw()))
	e.gatewayOffline.With(labels).Set(float64(raw.GatewayOffline.Raw()))
	e.remainingTimeIsFromMachine.With(labels).Set(float64(raw.RemainingTimeIsFromMachine.Raw()))
	e.remainingTime.With(labels).Set(float64(raw.RemainingTime.Seconds()))
	e.starter.With(labels).Set(float64(raw.Starter))
	e.reserver.With(labels).Set(float64(raw.Reserver))
	e.controllerLogic.With(labels).Set(float64(raw.ControllerLogic))

	var current status.StateKind
	if ms.State != nil {
		current = ms.State.Kind()
	}
	for _, kind := range status.AllStateKinds {
		e.state.MustCurryWith(labels).WithLabelValues(string(kind)).Set(boolValue(kind == current))
	}
	e.stateError.With(labels).Set(boolValue(ms.Err != nil))
}

func (e *Exporter) forget(location, name string) {
	match := prometheus.Labels{"machine": name, "location": location}
	for _, vec := range []*prometheus.GaugeVec{
		e.running, e.reserved, e.inMaintenance, e.gatewayOffline, e.remainingTimeIsFromMachine,
		e.remainingTime, e.starter, e.reserver, e.controllerLogic, e.state, e.stateError, e.info,
	} {
		vec.DeletePartialMatch(match)
	}
}

// SessionStarted counts the login and publishes the machine id mapping.
func (e *Exporter) SessionStarted(_ context.Context, sess *session.Authenticated) error {
	e.authentications.Inc()
	e.info.DeletePartialMatch(prometheus.Labels{"location": sess.Location})
	for id, name := range sess.MachineMappings {
		parsed, _ := parse.ParseName(name)
		e.info.WithLabelValues(name, sess.Location, string(parsed.Kind), id).Set(1)
	}
	return nil
}

// PollFinished counts one poll cycle.
func (e *Exporter) PollFinished(result string) {
	e.polls.WithLabelValues(result).Inc()
}

// SessionInvalidated counts a session dropped after a redirect.
func (e *Exporter) SessionInvalidated() {
	e.invalidations.Inc()
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
