// Package dispatcher implements the host-side Dispatcher that owns the
// worker pool: it tracks every live worker's WorkerChannel and
// WorkerChannelMonitor, answers the manager's per-tick status query, and
// launches new workers on request.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
)

// WorkerFactory launches one new worker process/connection and returns the
// WorkerChannel used to probe it, plus a closer released on dispatcher
// shutdown. Grounded on the host's out-of-process worker launcher (out of
// scope per SPEC_FULL.md §1; this is the concrete stand-in).
type WorkerFactory func(ctx context.Context, workerID string) (concurrency.WorkerChannel, func() error, error)

type worker struct {
	id      string
	channel concurrency.WorkerChannel
	monitor *concurrency.WorkerChannelMonitor
	closeFn func() error
}

// RPCDispatcher is the Dispatcher implementation used for RPC-mode
// (non-HTTP) function workers. It owns every worker and its monitor
// exclusively; the manager only ever sees it through the concurrency.
// Dispatcher interface (SPEC_FULL.md §3 "Ownership").
type RPCDispatcher struct {
	mu      sync.RWMutex
	workers []*worker

	pendingAdds int
	maxWorkers  int

	monitorOptions concurrency.Options
	factory        WorkerFactory
	logger         *zap.Logger

	// limiter throttles StartWorkerChannel independent of the manager's own
	// AdjustmentPeriod cooldown (SPEC_FULL.md §2.2 "scale-up throttle"). It
	// guards direct/manual callers; the manager's own cadence never exceeds
	// it in practice.
	limiter *rate.Limiter
}

// Options configures an RPCDispatcher's bootstrap behavior. Separate from
// concurrency.Options because the dispatcher needs launch-time concerns
// (initial pool size, throttle) the control loop itself does not.
type Options struct {
	InitialWorkerCount int
	MaxWorkerCount     int
	ScaleUpThrottle    rate.Limit
}

// NewRPCDispatcher builds a dispatcher and launches its initial worker
// pool synchronously so the host never starts with zero workers.
func NewRPCDispatcher(ctx context.Context, opts Options, factory WorkerFactory, monitorOptions concurrency.Options, logger *zap.Logger) (*RPCDispatcher, error) {
	throttle := opts.ScaleUpThrottle
	if throttle == 0 {
		throttle = rate.Every(0) // effectively unlimited unless overridden
	}

	d := &RPCDispatcher{
		maxWorkers:     opts.MaxWorkerCount,
		monitorOptions: monitorOptions,
		factory:        factory,
		logger:         logger,
		limiter:        rate.NewLimiter(throttle, 1),
	}

	for i := 0; i < opts.InitialWorkerCount; i++ {
		if err := d.addWorker(ctx); err != nil {
			return nil, fmt.Errorf("dispatcher: failed to launch initial worker %d: %w", i, err)
		}
	}

	return d, nil
}

// WorkerStatuses returns a defensive copy of every worker's current view,
// combining each monitor's readiness flag and latency history.
func (d *RPCDispatcher) WorkerStatuses(ctx context.Context) (map[string]concurrency.WorkerView, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]concurrency.WorkerView, len(d.workers))
	for _, w := range d.workers {
		out[w.id] = concurrency.WorkerView{
			IsReady: w.monitor.IsReady(),
			History: w.monitor.Stats(),
		}
	}
	return out, nil
}

// StartWorkerChannel launches exactly one additional worker, reserving its
// slot before releasing the lock so concurrent callers cannot overshoot
// MaxWorkerCount (grounded on the orchestrator Pool.addWorker
// pendingAdds idiom).
func (d *RPCDispatcher) StartWorkerChannel(ctx context.Context) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("dispatcher: scale-up throttled: %w", err)
	}
	return d.addWorker(ctx)
}

func (d *RPCDispatcher) addWorker(ctx context.Context) error {
	d.mu.Lock()
	if d.maxWorkers > 0 && len(d.workers)+d.pendingAdds >= d.maxWorkers {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher: at max worker count (%d)", d.maxWorkers)
	}
	d.pendingAdds++
	d.mu.Unlock()

	id := uuid.NewString()
	channel, closeFn, err := d.factory(ctx, id)
	if err != nil {
		d.mu.Lock()
		d.pendingAdds--
		d.mu.Unlock()
		return fmt.Errorf("dispatcher: failed to launch worker %s: %w", id, err)
	}

	monitor := concurrency.NewWorkerChannelMonitor(id, channel, d.monitorOptions, d.logger)
	monitor.EnsureStarted()

	d.mu.Lock()
	d.workers = append(d.workers, &worker{id: id, channel: channel, monitor: monitor, closeFn: closeFn})
	d.pendingAdds--
	count := len(d.workers)
	d.mu.Unlock()

	d.logger.Info("worker channel started", zap.String("worker_id", id), zap.Int("worker_count", count))
	return nil
}

// SupportsDynamicConcurrency always reports true: this is the RPC-mode
// dispatcher the manager is permitted to scale (SPEC_FULL.md §9 "Dispatcher
// polymorphism").
func (d *RPCDispatcher) SupportsDynamicConcurrency() bool {
	return true
}

// WorkerCount returns the number of live workers, primarily for tests.
func (d *RPCDispatcher) WorkerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.workers)
}

// Shutdown disposes every worker's monitor and releases its channel.
func (d *RPCDispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, w := range d.workers {
		w.monitor.Dispose()
		if w.closeFn != nil {
			if err := w.closeFn(); err != nil {
				d.logger.Warn("failed to close worker channel", zap.String("worker_id", w.id), zap.Error(err))
			}
		}
	}
}
