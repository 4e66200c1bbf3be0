package reaper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ronflow/pkg/platform/audit"
)

// =============================================================================
// Reaper Test Suite
// =============================================================================

type fakeSessionReaper struct {
	mu             sync.Mutex
	pending        int
	scheduledGrace time.Duration
	activeGrace    time.Duration
	err            error
}

func (f *fakeSessionReaper) CancelStale(_ context.Context, scheduledGrace, activeGrace time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduledGrace = scheduledGrace
	f.activeGrace = activeGrace
	if f.err != nil {
		return 0, f.err
	}
	n := f.pending
	f.pending = 0
	return n, nil
}

type fakeCodeReaper struct {
	mu      sync.Mutex
	pending int
	err     error
}

func (f *fakeCodeReaper) ExpireStale(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n := f.pending
	f.pending = 0
	return n, nil
}

type fakeTokenReaper struct {
	mu      sync.Mutex
	pending int
	err     error
}

func (f *fakeTokenReaper) DeleteExpired(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	n := f.pending
	f.pending = 0
	return n, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (p *recordingPublisher) Emit(_ context.Context, e audit.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type ReaperSuite struct {
	suite.Suite
	sessions *fakeSessionReaper
	codes    *fakeCodeReaper
	tokens   *fakeTokenReaper
	recorder *recordingPublisher
	reaper   *Reaper
}

func TestReaperSuite(t *testing.T) {
	suite.Run(t, new(ReaperSuite))
}

func (s *ReaperSuite) SetupTest() {
	s.sessions = &fakeSessionReaper{}
	s.codes = &fakeCodeReaper{}
	s.tokens = &fakeTokenReaper{}
	s.recorder = &recordingPublisher{}
	s.reaper = New(s.sessions, s.codes, s.tokens,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditPublisher(s.recorder),
	)
}

// =============================================================================
// Sweep Tests
// =============================================================================

func (s *ReaperSuite) TestSweep() {
	s.Run("aggregates counts across the three passes", func() {
		s.sessions.pending = 2
		s.codes.pending = 3
		s.tokens.pending = 5

		result, err := s.reaper.Sweep(context.Background())
		s.Require().NoError(err)
		s.Equal(2, result.SessionsCancelled)
		s.Equal(3, result.CodesExpired)
		s.Equal(5, result.TokensDeleted)
	})

	s.Run("passes the configured session graces through", func() {
		_, err := s.reaper.Sweep(context.Background())
		s.Require().NoError(err)
		s.Equal(24*time.Hour, s.sessions.scheduledGrace)
		s.Equal(4*time.Hour, s.sessions.activeGrace)

		tuned := New(s.sessions, s.codes, s.tokens,
			WithSessionGraces(48*time.Hour, time.Hour),
		)
		_, err = tuned.Sweep(context.Background())
		s.Require().NoError(err)
		s.Equal(48*time.Hour, s.sessions.scheduledGrace)
		s.Equal(time.Hour, s.sessions.activeGrace)
	})

	s.Run("a failing pass does not stop the others", func() {
		s.codes.err = errors.New("connection refused")
		s.sessions.pending = 1
		s.tokens.pending = 4

		result, err := s.reaper.Sweep(context.Background())
		s.Require().Error(err)
		s.Equal(1, result.SessionsCancelled)
		s.Equal(4, result.TokensDeleted)
	})
}

// =============================================================================
// Audit Tests
// =============================================================================

func (s *ReaperSuite) TestSweepAudit() {
	s.Run("quiet sweeps stay out of the audit trail", func() {
		_, err := s.reaper.Sweep(context.Background())
		s.Require().NoError(err)
		s.Empty(s.recorder.events)
	})

	s.Run("a sweep that cleaned anything is recorded with counts", func() {
		s.tokens.pending = 7
		_, err := s.reaper.Sweep(context.Background())
		s.Require().NoError(err)

		s.Require().Len(s.recorder.events, 1)
		event := s.recorder.events[0]
		s.Equal(string(audit.EventReaperSwept), event.Action)
		s.Equal("0", event.Detail["sessions_cancelled"])
		s.Equal("0", event.Detail["codes_expired"])
		s.Equal("7", event.Detail["tokens_deleted"])
	})

	s.Run("a second sweep over clean stores is a no-op", func() {
		s.tokens.pending = 7
		_, err := s.reaper.Sweep(context.Background())
		s.Require().NoError(err)

		result, err := s.reaper.Sweep(context.Background())
		s.Require().NoError(err)
		s.Equal(&SweepResult{}, result)
		s.Len(s.recorder.events, 1)
	})
}
