package store

import (
	"context"
	"fmt"
	"time"

	"laundry-status-exporter/internal/session"
	"laundry-status-exporter/internal/status"
)

// Recorder persists every poll and passes machines that became idle to
// notify.
type Recorder struct {
	store  Store
	notify func(machineID int64)
	now    func() time.Time
}

// NewRecorder returns a Recorder writing to s. notify may be nil.
func NewRecorder(s Store, notify func(machineID int64)) *Recorder {
	return &Recorder{store: s, notify: notify, now: time.Now}
}

// SessionStarted records the machines listed on a freshly authenticated page.
func (r *Recorder) SessionStarted(ctx context.Context, sess *session.Authenticated) error {
	if err := r.store.UpsertMachines(ctx, sess.Location, sess.MachineMappings); err != nil {
		return fmt.Errorf("failed to upsert machines of location %s: %w", sess.Location, err)
	}
	return nil
}

// Report stores the statuses of one poll.
func (r *Recorder) Report(ctx context.Context, location string, statuses map[string]status.MachineStatus) error {
	idle, err := r.store.UpdateStatuses(ctx, r.now().UTC(), location, statuses)
	if err != nil {
		return fmt.Errorf("failed to update statuses of location %s: %w", location, err)
	}
	if r.notify != nil {
		for _, id := range idle {
			r.notify(id)
		}
	}
	return nil
}
