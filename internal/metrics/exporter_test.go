package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-status-exporter/internal/session"
	"laundry-status-exporter/internal/status"
)

func running() status.MachineStatus {
	return status.NewMachineStatus(status.JSONMachineStatus{
		Running:                    true,
		Starter:                    4711,
		InMaintenance:              status.False,
		RemainingTime:              status.RemainingTime(time.Hour + 5*time.Minute),
		GatewayOffline:             status.False,
		RemainingTimeIsFromMachine: status.True,
		ControllerLogic:            2,
	})
}

func broken() status.MachineStatus {
	return status.NewMachineStatus(status.JSONMachineStatus{
		InMaintenance:              status.Unknown(7),
		GatewayOffline:             status.Unknown(200),
		RemainingTimeIsFromMachine: status.False,
	})
}

func TestExporter_Report(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewExporter(reg)

	require.NoError(t, e.Report(context.Background(), "89", map[string]status.MachineStatus{
		"W1": running(),
		"D2": broken(),
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(e.running.WithLabelValues("W1", "89", "washer")))
	assert.Equal(t, 3900.0, testutil.ToFloat64(e.remainingTime.WithLabelValues("W1", "89", "washer")))
	assert.Equal(t, 4711.0, testutil.ToFloat64(e.starter.WithLabelValues("W1", "89", "washer")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.controllerLogic.WithLabelValues("W1", "89", "washer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.state.WithLabelValues("W1", "89", "washer", "running")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.state.WithLabelValues("W1", "89", "washer", "idle")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.stateError.WithLabelValues("W1", "89", "washer")))

	// Raw bytes survive a failed derivation.
	assert.Equal(t, 7.0, testutil.ToFloat64(e.inMaintenance.WithLabelValues("D2", "89", "dryer")))
	assert.Equal(t, 200.0, testutil.ToFloat64(e.gatewayOffline.WithLabelValues("D2", "89", "dryer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.stateError.WithLabelValues("D2", "89", "dryer")))
	for _, kind := range status.AllStateKinds {
		assert.Equal(t, 0.0, testutil.ToFloat64(e.state.WithLabelValues("D2", "89", "dryer", string(kind))), kind)
	}
}

func TestExporter_ReportForgetsVanishedMachines(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewExporter(reg)
	ctx := context.Background()

	require.NoError(t, e.Report(ctx, "89", map[string]status.MachineStatus{"W1": running(), "W2": running()}))
	require.NoError(t, e.Report(ctx, "90", map[string]status.MachineStatus{"W1": running()}))
	assert.Equal(t, 3, testutil.CollectAndCount(e.running))

	require.NoError(t, e.Report(ctx, "89", map[string]status.MachineStatus{"W1": running()}))
	assert.Equal(t, 2, testutil.CollectAndCount(e.running))
	assert.Equal(t, 2*len(status.AllStateKinds), testutil.CollectAndCount(e.state))
}

func TestExporter_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewExporter(reg)

	require.NoError(t, e.SessionStarted(context.Background(), &session.Authenticated{
		Location:        "89",
		MachineMappings: map[string]string{"475": "W1"},
	}))
	e.PollFinished("ok")
	e.PollFinished("ok")
	e.PollFinished("bad_session")
	e.SessionInvalidated()

	expected := `
# HELP laundry_polls_total Poll cycles by result.
# TYPE laundry_polls_total counter
laundry_polls_total{result="bad_session"} 1
laundry_polls_total{result="ok"} 2
# HELP laundry_authentications_total Successful logins.
# TYPE laundry_authentications_total counter
laundry_authentications_total 1
# HELP laundry_session_invalidations_total Sessions dropped because the status endpoint redirected.
# TYPE laundry_session_invalidations_total counter
laundry_session_invalidations_total 1
# HELP laundry_machine_info Maps a machine to its pay2wash id.
# TYPE laundry_machine_info gauge
laundry_machine_info{kind="washer",location="89",machine="W1",machine_id="475"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"laundry_polls_total", "laundry_authentications_total",
		"laundry_session_invalidations_total", "laundry_machine_info"))
}
