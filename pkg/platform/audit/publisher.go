package audit

import (
	"context"
	"fmt"
	"log/slog"
)

// StorePublisher emits events with fail-closed semantics. All writes are
// synchronous: the caller blocks until persistence succeeds or fails, and a
// failed append MUST fail the calling operation. The notarization evidence
// chain is only as strong as its audit trail.
type StorePublisher struct {
	store  Store
	logger *slog.Logger
}

// Option configures the StorePublisher.
type Option func(*StorePublisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *StorePublisher) {
		p.logger = logger
	}
}

// NewStorePublisher creates a fail-closed publisher over the given store.
func NewStorePublisher(store Store, opts ...Option) *StorePublisher {
	p := &StorePublisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes an event to the audit store.
// Returns error if persistence fails - the caller MUST fail its operation.
func (p *StorePublisher) Emit(ctx context.Context, event Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("audit event requires Timestamp")
	}
	if event.Category == "" {
		event.Category = AuditEvent(event.Action).Category()
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: audit persistence failed",
				"action", event.Action,
				"user_id", event.UserID,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}
	return nil
}

// NopPublisher discards events. For tests that don't assert on audit output.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
