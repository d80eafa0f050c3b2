package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
	"github.com/MegaGrindStone/go-sql-rag/internal/metrics"
)

// Async hands trace records to a background worker so the request never waits on the sink.
// Close must be called to flush the queued records.
type Async struct {
	next    sqlrag.Tracer
	timeout time.Duration
	records chan sqlrag.TraceRecord

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool

	logger *slog.Logger
}

var (
	// ErrQueueFull is returned by Async.Trace when the queue has no room for the record.
	ErrQueueFull = errors.New("trace queue full")
	// ErrClosed is returned by Async.Trace after Close.
	ErrClosed = errors.New("tracer closed")
)

const defaultAsyncTimeout = 10 * time.Second

// NewAsync starts a worker forwarding up to size queued records to next.
func NewAsync(next sqlrag.Tracer, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 1
	}

	a := &Async{
		next:    next,
		timeout: defaultAsyncTimeout,
		records: make(chan sqlrag.TraceRecord, size),
		done:    make(chan struct{}),
		logger:  logger.With(slog.String("module", "tracing_async")),
	}
	go a.run()

	return a
}

// Trace queues the record. It never blocks.
func (a *Async) Trace(_ context.Context, record sqlrag.TraceRecord) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}

	select {
	case a.records <- record:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting records and waits until the queued ones are forwarded or ctx is done.
func (a *Async) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.records)
		a.mu.Unlock()
	})

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)

	for record := range a.records {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Trace(ctx, record); err != nil {
			metrics.TraceDropped()
			a.logger.Warn("Failed to record trace", "id", record.ID,
				"error", fmt.Errorf("%w: %w", sqlrag.ErrTracingFailure, err))
		}
		cancel()
	}
}
