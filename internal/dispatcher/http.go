package dispatcher

import (
	"context"
	"errors"

	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
)

// ErrHTTPUnsupported is returned by HTTPDispatcher's methods. Callers
// should never reach them in practice: ConcurrencyManager.Start checks
// SupportsDynamicConcurrency before ever calling WorkerStatuses or
// StartWorkerChannel (SPEC_FULL.md §4.2 "HttpUnsupported").
var ErrHTTPUnsupported = errors.New("dispatcher: dynamic concurrency is not supported for HTTP-hosted functions")

// HTTPDispatcher is the Dispatcher the host wires up when function apps
// run behind a single long-lived HTTP worker rather than a scalable RPC
// worker pool. The manager recognizes it via SupportsDynamicConcurrency
// and refuses to scale it, transitioning straight to HttpUnsupported.
type HTTPDispatcher struct{}

// NewHTTPDispatcher returns a Dispatcher stub for HTTP-hosted function
// apps.
func NewHTTPDispatcher() *HTTPDispatcher {
	return &HTTPDispatcher{}
}

func (HTTPDispatcher) WorkerStatuses(ctx context.Context) (map[string]concurrency.WorkerView, error) {
	return nil, ErrHTTPUnsupported
}

func (HTTPDispatcher) StartWorkerChannel(ctx context.Context) error {
	return ErrHTTPUnsupported
}

func (HTTPDispatcher) SupportsDynamicConcurrency() bool {
	return false
}
