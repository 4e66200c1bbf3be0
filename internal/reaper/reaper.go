// Package reaper sweeps time-bound credentials and sessions past their
// lifetime: abandoned RON sessions get cancelled, stale access codes get
// demoted, and expired signature tokens get purged. Sweeps are idempotent,
// so overlapping deployments running the reaper concurrently are safe.
package reaper

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	dErrors "ronflow/pkg/domain-errors"
	"ronflow/pkg/platform/audit"
	"ronflow/pkg/requestcontext"
)

// DefaultInterval is how often the reaper sweeps when no interval is
// configured.
const DefaultInterval = 5 * time.Minute

// SessionReaper cancels abandoned sessions.
type SessionReaper interface {
	CancelStale(ctx context.Context, scheduledGrace, activeGrace time.Duration) (int, error)
}

// CodeReaper demotes access codes past their TTL.
type CodeReaper interface {
	ExpireStale(ctx context.Context) (int, error)
}

// TokenReaper purges expired signature tokens.
type TokenReaper interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// SweepResult reports what one sweep cleaned up.
type SweepResult struct {
	SessionsCancelled int `json:"sessions_cancelled"`
	CodesExpired      int `json:"codes_expired"`
	TokensDeleted     int `json:"tokens_deleted"`
}

// Reaper drives periodic expiry sweeps across the modules.
type Reaper struct {
	sessions SessionReaper
	codes    CodeReaper
	tokens   TokenReaper

	scheduledGrace time.Duration
	activeGrace    time.Duration
	logger         *slog.Logger
	auditPublisher audit.Publisher
}

type Option func(*Reaper)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reaper) { r.logger = logger }
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(r *Reaper) { r.auditPublisher = publisher }
}

// WithSessionGraces overrides how long scheduled and active sessions may
// linger before cancellation.
func WithSessionGraces(scheduled, active time.Duration) Option {
	return func(r *Reaper) {
		r.scheduledGrace = scheduled
		r.activeGrace = active
	}
}

func New(sessions SessionReaper, codes CodeReaper, tokens TokenReaper, opts ...Option) *Reaper {
	r := &Reaper{
		sessions:       sessions,
		codes:          codes,
		tokens:         tokens,
		scheduledGrace: 24 * time.Hour,
		activeGrace:    4 * time.Hour,
		logger:         slog.Default(),
		auditPublisher: audit.NopPublisher{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sweep runs the three expiry passes concurrently. A failure in one pass
// does not stop the others; the first error is returned after all finish.
func (r *Reaper) Sweep(ctx context.Context) (*SweepResult, error) {
	var sessions, codes, tokens atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := r.sessions.CancelStale(gctx, r.scheduledGrace, r.activeGrace)
		sessions.Store(int64(n))
		return err
	})
	g.Go(func() error {
		n, err := r.codes.ExpireStale(gctx)
		codes.Store(int64(n))
		return err
	})
	g.Go(func() error {
		n, err := r.tokens.DeleteExpired(gctx)
		tokens.Store(int64(n))
		return err
	})
	sweepErr := g.Wait()

	result := &SweepResult{
		SessionsCancelled: int(sessions.Load()),
		CodesExpired:      int(codes.Load()),
		TokensDeleted:     int(tokens.Load()),
	}

	if result.SessionsCancelled > 0 || result.CodesExpired > 0 || result.TokensDeleted > 0 {
		if err := r.auditPublisher.Emit(ctx, audit.Event{
			Timestamp: requestcontext.Now(ctx),
			Action:    string(audit.EventReaperSwept),
			Detail: map[string]string{
				"sessions_cancelled": strconv.Itoa(result.SessionsCancelled),
				"codes_expired":      strconv.Itoa(result.CodesExpired),
				"tokens_deleted":     strconv.Itoa(result.TokensDeleted),
			},
		}); err != nil {
			r.logger.ErrorContext(ctx, "audit emit failed", "action", audit.EventReaperSwept, "error", err)
			if sweepErr == nil {
				sweepErr = dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
			}
		}
	}
	return result, sweepErr
}

// Run sweeps on a fixed interval until the context is cancelled. One sweep
// runs immediately on start so a restart never extends credential lifetimes.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	r.sweepAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepAndLog(ctx)
		}
	}
}

func (r *Reaper) sweepAndLog(ctx context.Context) {
	sweepCtx := requestcontext.WithTime(ctx, time.Now())
	result, err := r.Sweep(sweepCtx)
	if err != nil {
		r.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
		return
	}
	if result.SessionsCancelled > 0 || result.CodesExpired > 0 || result.TokensDeleted > 0 {
		r.logger.InfoContext(ctx, "reaper sweep finished",
			"sessions_cancelled", result.SessionsCancelled,
			"codes_expired", result.CodesExpired,
			"tokens_deleted", result.TokensDeleted,
		)
	}
}
