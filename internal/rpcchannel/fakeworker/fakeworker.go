// Package fakeworker is an in-process stand-in for an out-of-process
// language worker's GetStatus RPC, used by the Scenario I integration test
// (SPEC_FULL.md §8) to drive the gRPC transport path end-to-end without
// spawning a real Node/Java/Python/PowerShell process.
package fakeworker

import (
	"context"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/qsdfplkj/azure-functions-host/internal/rpcchannel"
)

// Worker answers GetStatus with a caller-controlled, concurrency-safe
// readiness flag and latency, so a test can simulate a worker that is
// ready-but-overloaded or still warming up.
type Worker struct {
	mu      sync.RWMutex
	ready   bool
	latency time.Duration
}

// New returns a worker that reports the given readiness flag and fixed
// latency until SetReady or SetLatency changes them.
func New(ready bool, latency time.Duration) *Worker {
	return &Worker{ready: ready, latency: latency}
}

// SetLatency updates the latency every subsequent GetStatus call reports.
func (w *Worker) SetLatency(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.latency = d
}

// SetReady updates the readiness flag every subsequent GetStatus call
// reports.
func (w *Worker) SetReady(ready bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ready = ready
}

// GetStatus implements rpcchannel.WorkerChannelServer.
func (w *Worker) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	w.mu.RLock()
	ready, latency := w.ready, w.latency
	w.mu.RUnlock()

	return structpb.NewStruct(map[string]interface{}{
		rpcchannel.FieldIsReady:   ready,
		rpcchannel.FieldLatencyMs: float64(latency.Milliseconds()),
	})
}

var _ rpcchannel.WorkerChannelServer = (*Worker)(nil)
