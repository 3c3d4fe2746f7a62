package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-status-exporter/internal/pay2wash"
	"laundry-status-exporter/internal/session"
	"laundry-status-exporter/internal/status"
)

type statusResult struct {
	statuses map[string]status.MachineStatus
	err      error
}

// fakeClient replays scripted results; it fails the test when it runs out.
type fakeClient struct {
	t         *testing.T
	mu        sync.Mutex
	authErrs  []error
	results   []statusResult
	authCalls int
	seen      []*session.Authenticated
}

func (c *fakeClient) Authenticate(context.Context) (*session.Authenticated, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authCalls++
	if len(c.authErrs) > 0 {
		err := c.authErrs[0]
		c.authErrs = c.authErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &session.Authenticated{
		CSRF:            fmt.Sprintf("csrf-%d", c.authCalls),
		UserToken:       4711,
		Location:        "89",
		MachineMappings: map[string]string{"475": "W1"},
	}, nil
}

func (c *fakeClient) GetMachineStatuses(_ context.Context, sess *session.Authenticated) (map[string]status.MachineStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, sess)
	if len(c.results) == 0 {
		c.t.Error("unexpected GetMachineStatuses call")
		return nil, errors.New("script exhausted")
	}
	r := c.results[0]
	c.results = c.results[1:]
	return r.statuses, r.err
}

// recordingSink implements Sink, SessionObserver and PollObserver.
type recordingSink struct {
	mu            sync.Mutex
	reports       []map[string]status.MachineStatus
	sessions      []*session.Authenticated
	results       []string
	invalidations int
	err           error
	onReport      func()
}

func (s *recordingSink) Report(_ context.Context, location string, statuses map[string]status.MachineStatus) error {
	s.mu.Lock()
	s.reports = append(s.reports, statuses)
	onReport := s.onReport
	s.mu.Unlock()
	if onReport != nil {
		onReport()
	}
	return s.err
}

func (s *recordingSink) SessionStarted(_ context.Context, sess *session.Authenticated) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sess)
	return s.err
}

func (s *recordingSink) PollFinished(result string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
}

func (s *recordingSink) SessionInvalidated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidations++
}

// plainSink implements only Sink.
type plainSink struct{ calls int }

func (s *plainSink) Report(context.Context, string, map[string]status.MachineStatus) error {
	s.calls++
	return nil
}

func idle() map[string]status.MachineStatus {
	return map[string]status.MachineStatus{
		"W1": status.NewMachineStatus(status.JSONMachineStatus{
			InMaintenance:              status.False,
			GatewayOffline:             status.False,
			RemainingTimeIsFromMachine: status.False,
		}),
	}
}

func TestTick_WithoutSessionAuthenticatesAndReports(t *testing.T) {
	client := &fakeClient{t: t, results: []statusResult{{statuses: idle()}}}
	sink := &recordingSink{}
	plain := &plainSink{}
	svc := NewService(client, time.Minute, sink, plain)

	sess, err := svc.Tick(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, 1, client.authCalls)
	assert.Equal(t, []*session.Authenticated{sess}, client.seen)
	assert.Equal(t, []*session.Authenticated{sess}, sink.sessions)
	assert.Len(t, sink.reports, 1)
	assert.Equal(t, []string{ResultOK}, sink.results)
	assert.Equal(t, 1, plain.calls)
}

func TestTick_KeepsSession(t *testing.T) {
	client := &fakeClient{t: t, results: []statusResult{{statuses: idle()}, {statuses: idle()}}}
	sink := &recordingSink{}
	svc := NewService(client, time.Minute, sink)

	first, err := svc.Tick(context.Background(), nil)
	require.NoError(t, err)
	second, err := svc.Tick(context.Background(), first)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, client.authCalls)
	assert.Len(t, sink.sessions, 1)
	assert.Len(t, sink.reports, 2)
}

func TestTick_BadSessionDropsSession(t *testing.T) {
	badSession := fmt.Errorf("%w: redirected to %q", pay2wash.ErrBadSession, "/login")
	client := &fakeClient{t: t, results: []statusResult{{err: badSession}}}
	sink := &recordingSink{}
	svc := NewService(client, time.Minute, sink)

	live := &session.Authenticated{Location: "89"}
	sess, err := svc.Tick(context.Background(), live)
	require.NoError(t, err)
	assert.Nil(t, sess)

	assert.Equal(t, 0, client.authCalls)
	assert.Empty(t, sink.reports)
	assert.Equal(t, 1, sink.invalidations)
	assert.Equal(t, []string{ResultBadSession}, sink.results)
}

func TestTick_FatalErrors(t *testing.T) {
	unknown := &pay2wash.UnknownMachineIDError{ID: "999", Location: "89"}
	authFailed := fmt.Errorf("POST login form: %w", pay2wash.ErrAuthenticationFailed)

	testCases := []struct {
		name     string
		client   *fakeClient
		sess     *session.Authenticated
		expected error
	}{
		{
			name:     "Authentication rejected",
			client:   &fakeClient{authErrs: []error{authFailed}},
			expected: pay2wash.ErrAuthenticationFailed,
		},
		{
			name:     "Schema drift",
			client:   &fakeClient{results: []statusResult{{err: unknown}}},
			sess:     &session.Authenticated{Location: "89"},
			expected: unknown,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tc.client.t = t
			sink := &recordingSink{}
			svc := NewService(tc.client, time.Minute, sink)

			_, err := svc.Tick(context.Background(), tc.sess)
			require.ErrorIs(t, err, tc.expected)
			assert.Empty(t, sink.reports)
			assert.Equal(t, []string{ResultError}, sink.results)
		})
	}
}

func TestTick_SinkErrorsAreNotFatal(t *testing.T) {
	client := &fakeClient{t: t, results: []statusResult{{statuses: idle()}}}
	failing := &recordingSink{err: errors.New("database is locked")}
	healthy := &recordingSink{}
	svc := NewService(client, time.Minute, failing, healthy)

	sess, err := svc.Tick(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, sess)
	assert.Len(t, healthy.reports, 1)
}

func TestRun_ReauthenticatesThenStopsOnFatalError(t *testing.T) {
	badSession := fmt.Errorf("%w: redirected", pay2wash.ErrBadSession)
	boom := &pay2wash.TransportError{Op: "GET machine statuses", StatusCode: 500}
	client := &fakeClient{t: t, results: []statusResult{
		{statuses: idle()},
		{err: badSession},
		{statuses: idle()},
		{err: boom},
	}}
	sink := &recordingSink{}
	svc := NewService(client, time.Millisecond, sink)

	err := svc.Run(context.Background())
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 2, client.authCalls)
	assert.Len(t, sink.reports, 2)
	assert.Equal(t, 1, sink.invalidations)
	assert.Equal(t, []string{ResultOK, ResultBadSession, ResultOK, ResultError}, sink.results)
	require.Len(t, client.seen, 4)
	assert.Same(t, client.seen[0], client.seen[1])
	assert.NotSame(t, client.seen[1], client.seen[2])
}

func TestRun_LogsOffendingDocumentOnFatalError(t *testing.T) {
	var logs bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	decodeErr := &pay2wash.DocumentError{
		Op:       "decode machine statuses",
		Document: `{"475": {"running": true, "marker": "feed-excerpt-4711"}}`,
		Err:      errors.New("machine status is missing fields"),
	}
	client := &fakeClient{t: t, results: []statusResult{{err: decodeErr}}}
	svc := NewService(client, time.Millisecond)

	err := svc.Run(context.Background())
	require.ErrorAs(t, err, &decodeErr)

	out := logs.String()
	assert.Contains(t, out, "unusable document from pay2wash")
	assert.Contains(t, out, "feed-excerpt-4711")
	assert.Contains(t, out, "op=\"decode machine statuses\"")
}

func TestRun_StopsWhenContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeClient{t: t, results: []statusResult{{statuses: idle()}}}
	sink := &recordingSink{onReport: cancel}
	svc := NewService(client, time.Hour, sink)

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Len(t, sink.reports, 1)
}
