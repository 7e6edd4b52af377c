package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// State is the manager's lifecycle state per SPEC_FULL.md §4.2's state
// machine table.
type State int32

const (
	StateNew State = iota
	StateDisabled
	StateHTTPUnsupported
	StateWarmingUp
	StateRunning
	StateStopped
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "Disabled"
	case StateHTTPUnsupported:
		return "HttpUnsupported"
	case StateWarmingUp:
		return "WarmingUp"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	case StateDisposed:
		return "Disposed"
	default:
		return "New"
	}
}

// MetricsRecorder is the observability sink the manager reports to on every
// tick and scale-up. Implemented by internal/metrics against Prometheus.
type MetricsRecorder interface {
	SetWorkerCount(n int)
	ObserveWorkerLatency(workerID string, d time.Duration)
	IncScaleUps()
	ObserveTickDuration(d time.Duration)
}

// EventPublisher announces a successful scale-up to an external telemetry
// channel. Best-effort: a failure here is logged and never affects the
// tick's outcome. Implemented by internal/eventbus.
type EventPublisher interface {
	PublishWorkerAdded(ctx context.Context, workerID string, snapshot map[string]WorkerView) error
}

type noopMetrics struct{}

func (noopMetrics) SetWorkerCount(int)                       {}
func (noopMetrics) ObserveWorkerLatency(string, time.Duration) {}
func (noopMetrics) IncScaleUps()                             {}
func (noopMetrics) ObserveTickDuration(time.Duration)        {}

type noopPublisher struct{}

func (noopPublisher) PublishWorkerAdded(context.Context, string, map[string]WorkerView) error {
	return nil
}

// ConcurrencyManager runs the single process-wide control loop described in
// SPEC_FULL.md §4.2. It is safe to construct but performs no work until
// Start is called.
type ConcurrencyManager struct {
	options    Options
	dispatcher Dispatcher
	logger     *zap.Logger
	metrics    MetricsRecorder
	publisher  EventPublisher

	state int32 // atomic State

	lastAddTime      time.Time
	lastLogStateTime time.Time

	snapshot atomic.Value // map[string]WorkerView, for read-only external callers

	done     chan struct{}
	closeDoneOnce sync.Once
	wg       sync.WaitGroup
}

// NewConcurrencyManager constructs a manager bound to dispatcher. It does
// not read the dispatcher's tag or start ticking until Start is called.
func NewConcurrencyManager(options Options, dispatcher Dispatcher, logger *zap.Logger, metrics MetricsRecorder, publisher EventPublisher) *ConcurrencyManager {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &ConcurrencyManager{
		options:    options,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics,
		publisher:  publisher,
		state:      int32(StateNew),
		done:       make(chan struct{}),
	}
}

func (m *ConcurrencyManager) setState(s State) {
	atomic.StoreInt32(&m.state, int32(s))
}

// State returns the manager's current lifecycle state.
func (m *ConcurrencyManager) State() State {
	return State(atomic.LoadInt32(&m.state))
}

// Snapshot returns the WorkerView map as of the last completed tick, or nil
// before the first tick has run. Safe for concurrent use by the admin HTTP
// surface without touching the dispatcher or the manager's internal state.
func (m *ConcurrencyManager) Snapshot() map[string]WorkerView {
	v, _ := m.snapshot.Load().(map[string]WorkerView)
	return v
}

// Start implements SPEC_FULL.md §4.2's start() contract: if disabled, logs
// and returns; otherwise waits one AdjustmentPeriod for cold-start damping,
// refuses HTTP-mode dispatchers, and arms the non-reentrant tick loop.
func (m *ConcurrencyManager) Start(ctx context.Context) {
	if !m.options.Enabled {
		m.logger.Debug("dynamic concurrency disabled")
		m.setState(StateDisabled)
		return
	}

	if !m.dispatcher.SupportsDynamicConcurrency() {
		m.logger.Info("dispatcher does not support dynamic concurrency", zap.Error(newHTTPUnsupportedError()))
		m.setState(StateHTTPUnsupported)
		return
	}

	m.lastAddTime = time.Now()
	m.lastLogStateTime = time.Now()
	m.setState(StateWarmingUp)

	m.wg.Add(1)
	go m.run(ctx)
}

// Stop halts the tick loop. Safe to call even if Start was never called.
func (m *ConcurrencyManager) Stop() {
	m.closeDoneOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
	if m.State() == StateRunning || m.State() == StateWarmingUp {
		m.setState(StateStopped)
	}
}

// Dispose releases timer resources. Idempotent; safe after Stop or without
// a prior Start.
func (m *ConcurrencyManager) Dispose() {
	m.Stop()
	m.setState(StateDisposed)
}

func (m *ConcurrencyManager) run(ctx context.Context) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("concurrency manager panicked; control loop terminated", zap.Any("panic", r))
		}
	}()

	// Cold-start damping: wait one full adjustment period before the first
	// decision so a just-started pool never trips an immediate scale-up.
	warmup := time.NewTimer(m.options.AdjustmentPeriod)
	select {
	case <-m.done:
		warmup.Stop()
		return
	case <-warmup.C:
	}

	m.setState(StateRunning)

	timer := time.NewTimer(m.options.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-timer.C:
			m.tick(ctx)
			select {
			case <-m.done:
				return
			default:
				timer.Reset(m.options.CheckInterval)
			}
		}
	}
}

// tick implements SPEC_FULL.md §4.2's tick algorithm.
func (m *ConcurrencyManager) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("concurrency manager tick panicked; continuing on next tick", zap.Any("panic", r))
		}
	}()

	start := time.Now()
	defer func() { m.metrics.ObserveTickDuration(time.Since(start)) }()

	tickCtx, cancel := context.WithTimeout(ctx, m.options.CheckInterval)
	defer cancel()

	statuses, err := m.dispatcher.WorkerStatuses(tickCtx)
	if err != nil {
		m.logger.Error("failed to query worker statuses", zap.Error(newDispatcherQueryError(err)))
		return
	}

	m.snapshot.Store(statuses)
	m.metrics.SetWorkerCount(len(statuses))
	for id, view := range statuses {
		if len(view.History) > 0 {
			m.metrics.ObserveWorkerLatency(id, view.History[len(view.History)-1])
		}
	}

	sinceLastAdd := time.Since(m.lastAddTime)
	shouldAdd := decide(statuses, sinceLastAdd, m.options)

	now := time.Now()
	if shouldAdd || now.Sub(m.lastLogStateTime) >= LogStateInterval {
		m.logState(statuses, shouldAdd)
		m.lastLogStateTime = now
	}

	if !shouldAdd {
		return
	}

	if err := m.dispatcher.StartWorkerChannel(tickCtx); err != nil {
		m.logger.Error("failed to start worker channel", zap.Error(newStartWorkerError(err)))
		return
	}

	m.lastAddTime = now
	m.metrics.IncScaleUps()
	m.logger.Debug("New worker is added.")

	if err := m.publisher.PublishWorkerAdded(tickCtx, "", statuses); err != nil {
		m.logger.Warn("failed to publish worker-added event", zap.Error(err))
	}
}

func (m *ConcurrencyManager) logState(statuses map[string]WorkerView, shouldAdd bool) {
	for id, view := range statuses {
		var sum, max time.Duration
		for _, d := range view.History {
			sum += d
			if d > max {
				max = d
			}
		}
		var avg time.Duration
		if len(view.History) > 0 {
			avg = sum / time.Duration(len(view.History))
		}
		m.logger.Debug("worker concurrency state",
			zap.String("worker_id", id),
			zap.Bool("is_ready", view.IsReady),
			zap.Bool("overloaded", isOverloaded(view.History, m.options)),
			zap.Any("history", view.History),
			zap.Duration("avg_latency", avg),
			zap.Duration("max_latency", max),
			zap.Bool("should_add_worker", shouldAdd))
	}
}
