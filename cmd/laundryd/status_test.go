package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"laundry-status-exporter/internal/status"
)

func TestRenderStatuses(t *testing.T) {
	statuses := map[string]status.MachineStatus{
		"W2": {State: status.Running{Starter: 41, RemainingTime: status.RemainingTime(42 * time.Minute)}},
		"D1": {State: status.Idle{}},
		"W1": {State: status.Reserved{Reserver: 7}},
		"D2": {Err: errors.New("machine is running and reserved")},
	}

	var buf bytes.Buffer
	renderStatuses(&buf, "89", statuses)
	out := buf.String()

	assert.Contains(t, out, "Location 89")
	assert.Contains(t, out, "machine is running and reserved")

	// rows come out sorted by machine name
	d1 := strings.Index(out, "D1")
	d2 := strings.Index(out, "D2")
	w1 := strings.Index(out, "W1")
	w2 := strings.Index(out, "W2")
	assert.True(t, d1 < d2 && d2 < w1 && w1 < w2, "unexpected row order:\n%s", out)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name      string
		ms        status.MachineStatus
		state     string
		remaining string
		user      string
	}{
		{"idle", status.MachineStatus{State: status.Idle{}}, "idle", "", ""},
		{"maintenance", status.MachineStatus{State: status.Maintenance{}}, "maintenance", "", ""},
		{"running anonymous", status.MachineStatus{State: status.Running{RemainingTime: status.RemainingTime(90 * time.Second)}}, "running", status.RemainingTime(90 * time.Second).String(), ""},
		{"reserved", status.MachineStatus{State: status.Reserved{Reserver: 12}}, "reserved", "", "12"},
		{"undecodable", status.MachineStatus{Err: errors.New("boom")}, "error: boom", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, remaining, user := describe(tt.ms)
			assert.Equal(t, tt.state, state)
			assert.Equal(t, tt.remaining, remaining)
			assert.Equal(t, tt.user, user)
		})
	}
}

func TestNewLogger(t *testing.T) {
	assert.True(t, newLogger("DEBUG").Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, newLogger("").Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, newLogger("error").Enabled(context.Background(), slog.LevelWarn))
}
