// Package scraper runs the polling loop that keeps one pay2wash session alive
// and hands every status snapshot to its sinks.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"laundry-status-exporter/internal/pay2wash"
	"laundry-status-exporter/internal/session"
	"laundry-status-exporter/internal/status"
)

// Poll results passed to PollObserver.
const (
	ResultOK         = "ok"
	ResultBadSession = "bad_session"
	ResultError      = "error"
)

// Client is the part of *pay2wash.Client the poller needs.
type Client interface {
	Authenticate(ctx context.Context) (*session.Authenticated, error)
	GetMachineStatuses(ctx context.Context, sess *session.Authenticated) (map[string]status.MachineStatus, error)
}

// Sink receives the statuses of every successful poll.
type Sink interface {
	Report(ctx context.Context, location string, statuses map[string]status.MachineStatus) error
}

// SessionObserver is implemented by sinks that want to see each new session.
type SessionObserver interface {
	SessionStarted(ctx context.Context, sess *session.Authenticated) error
}

// PollObserver is implemented by sinks that count poll outcomes.
type PollObserver interface {
	PollFinished(result string)
	SessionInvalidated()
}

// Service polls the status feed on a fixed interval.
type Service struct {
	client   Client
	interval time.Duration
	sinks    []Sink
}

// NewService creates a poller. Sinks are called in order after each
// successful poll.
func NewService(client Client, interval time.Duration, sinks ...Sink) *Service {
	return &Service{client: client, interval: interval, sinks: sinks}
}

// Run polls until ctx is cancelled or a poll fails with anything other than
// an expired session. Ticks missed while a poll is in flight are dropped.
func (s *Service) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "starting poller", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var (
		sess *session.Authenticated
		err  error
	)
	for {
		sess, err = s.Tick(ctx, sess)
		if err != nil {
			if ctx.Err() != nil {
				slog.InfoContext(ctx, "poller shutting down")
				return nil
			}
			var docErr *pay2wash.DocumentError
			if errors.As(err, &docErr) {
				slog.ErrorContext(ctx, "unusable document from pay2wash", "op", docErr.Op, "document", docErr.Document)
			}
			return err
		}

		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "poller shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one poll. sess is the session kept from the previous tick, or
// nil when there is none; the returned session is the one to pass next time.
// A nil session with a nil error means the session expired and the next tick
// logs in again. Any returned error is fatal.
func (s *Service) Tick(ctx context.Context, sess *session.Authenticated) (*session.Authenticated, error) {
	if sess == nil {
		auth, err := s.client.Authenticate(ctx)
		if err != nil {
			s.pollFinished(ResultError)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
		slog.InfoContext(ctx, "authenticated", "location", auth.Location, "machines", len(auth.MachineMappings))
		s.sessionStarted(ctx, auth)
		sess = auth
	}

	statuses, err := s.client.GetMachineStatuses(ctx, sess)
	if errors.Is(err, pay2wash.ErrBadSession) {
		slog.WarnContext(ctx, "session expired, logging in again on the next tick", "location", sess.Location, "err", err)
		s.sessionInvalidated()
		s.pollFinished(ResultBadSession)
		return nil, nil
	}
	if err != nil {
		s.pollFinished(ResultError)
		return sess, fmt.Errorf("failed to get machine statuses: %w", err)
	}

	slog.DebugContext(ctx, "poll finished", "location", sess.Location, "machines", len(statuses))
	for _, sink := range s.sinks {
		if err := sink.Report(ctx, sess.Location, statuses); err != nil {
			slog.ErrorContext(ctx, "sink failed to record statuses", "sink", fmt.Sprintf("%T", sink), "err", err)
		}
	}
	s.pollFinished(ResultOK)
	return sess, nil
}

func (s *Service) sessionStarted(ctx context.Context, sess *session.Authenticated) {
	for _, sink := range s.sinks {
		if o, ok := sink.(SessionObserver); ok {
			if err := o.SessionStarted(ctx, sess); err != nil {
				slog.ErrorContext(ctx, "sink failed to record session", "sink", fmt.Sprintf("%T", sink), "err", err)
			}
		}
	}
}

func (s *Service) pollFinished(result string) {
	for _, sink := range s.sinks {
		if o, ok := sink.(PollObserver); ok {
			o.PollFinished(result)
		}
	}
}

func (s *Service) sessionInvalidated() {
	for _, sink := range s.sinks {
		if o, ok := sink.(PollObserver); ok {
			o.SessionInvalidated()
		}
	}
}
