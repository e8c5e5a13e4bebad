package binding

import (
	"context"

	"github.com/chain-gate/chaingate/internal/domain/interceptor"
)

// NopProgress drops every progress report. Bound when the invocation
// carries no progress token.
type NopProgress struct{}

// Emit implements ProgressEmitter.
func (NopProgress) Emit(ctx context.Context, progress, total float64, message string) {}

// Compile-time check that NopProgress implements ProgressEmitter.
var _ interceptor.ProgressEmitter = NopProgress{}

// ProgressFunc adapts a function to the ProgressEmitter interface.
type ProgressFunc func(ctx context.Context, progress, total float64, message string)

// Emit implements ProgressEmitter.
func (f ProgressFunc) Emit(ctx context.Context, progress, total float64, message string) {
	f(ctx, progress, total, message)
}

// Compile-time check that ProgressFunc implements ProgressEmitter.
var _ interceptor.ProgressEmitter = ProgressFunc(nil)
