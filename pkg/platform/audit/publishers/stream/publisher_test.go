package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	audit "ronflow/pkg/platform/audit"
)

// The server wires the publisher as the process-wide audit sink and flushes
// it through a bounded context on shutdown. Pin that contract here so a
// signature change surfaces in this package, not in cmd/server.
var _ interface {
	Emit(context.Context, audit.Event) error
	Close(context.Context) error
} = (*Publisher)(nil)

type failingPublisher struct {
	err error
}

func (f failingPublisher) Emit(context.Context, audit.Event) error {
	return f.err
}

func TestEmitFailsClosedOnStoreFailure(t *testing.T) {
	storeErr := errors.New("audit store unavailable")
	p := &Publisher{
		inner:  failingPublisher{err: storeErr},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	err := p.Emit(context.Background(), audit.Event{
		Category:  audit.CategorySecurity,
		Timestamp: time.Now(),
		Action:    string(audit.EventCodeUsed),
	})
	require.ErrorIs(t, err, storeErr, "store write is the source of truth; its failure must not be swallowed")
}
