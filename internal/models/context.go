package models

import (
	"context"
	"time"
)

type batchContextKey struct{}

// BatchContext carries the runner invocation through context so row-level
// logs in the pipelines can be correlated with the job that claimed the row.
type BatchContext struct {
	RunId     string    // one id per Runner.RunOnce invocation
	Job       string    // job name, e.g. "purchases.credit_due"
	StartedAt time.Time // when the invocation began
}

// WithBatchContext attaches runner data to a context.
func WithBatchContext(ctx context.Context, bc *BatchContext) context.Context {
	return context.WithValue(ctx, batchContextKey{}, bc)
}

// GetBatchContext retrieves runner data from context, or nil if absent.
func GetBatchContext(ctx context.Context) *BatchContext {
	bc, _ := ctx.Value(batchContextKey{}).(*BatchContext)
	return bc
}
