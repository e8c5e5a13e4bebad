// Package inbound defines the inbound port interfaces for the engine core.
// Inbound adapters (stdio transport, admin HTTP) call these interfaces.
package inbound

import (
	"context"

	"github.com/chain-gate/chaingate/internal/domain/interceptor"
)

// InterceptorService is the inbound port for the dispatch engine.
type InterceptorService interface {
	// Invoke runs a single interceptor.
	Invoke(ctx context.Context, req *interceptor.Request, progress interceptor.ProgressEmitter) (*interceptor.Result, error)

	// ExecuteChain runs an interceptor chain to one aggregated result.
	ExecuteChain(ctx context.Context, req *interceptor.ChainRequest, progress interceptor.ProgressEmitter) (*interceptor.ChainResult, error)

	// List returns a stable page of registered interceptor descriptors.
	List(ctx context.Context, pageToken string) (*interceptor.Page, error)
}
