package tracing

import (
	"context"
	"errors"

	sqlrag "github.com/MegaGrindStone/go-sql-rag"
)

// Multi sends every record to all of its tracers.
type Multi []sqlrag.Tracer

// Trace calls every tracer, even after one fails, and joins their errors.
func (m Multi) Trace(ctx context.Context, record sqlrag.TraceRecord) error {
	var errs []error
	for _, tracer := range m {
		if err := tracer.Trace(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
