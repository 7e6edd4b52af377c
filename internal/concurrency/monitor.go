package concurrency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// WorkerChannelMonitor maintains a bounded, time-ordered history of RPC
// probe latencies for exactly one worker channel. Its background probe is a
// self-rearming, non-reentrant timer loop: the next tick is scheduled only
// after the previous one's body has returned, so a slow probe can never
// pile up (SPEC_FULL.md §4.1, §9).
type WorkerChannelMonitor struct {
	workerID string
	channel  WorkerChannel
	options  Options
	logger   *zap.Logger

	mu          sync.Mutex
	history     []time.Duration
	latestReady bool

	started int32 // atomic; guards ensureStarted idempotence
	done    chan struct{}
	doneCh  sync.Once
}

// NewWorkerChannelMonitor constructs a monitor for channel. The monitor
// does not start probing until ensureStarted is called, either directly or
// lazily via Stats.
func NewWorkerChannelMonitor(workerID string, channel WorkerChannel, options Options, logger *zap.Logger) *WorkerChannelMonitor {
	return &WorkerChannelMonitor{
		workerID: workerID,
		channel:  channel,
		options:  options,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// EnsureStarted idempotently arms the periodic probe. A no-op when the
// feature is disabled or when called more than once.
func (m *WorkerChannelMonitor) EnsureStarted() {
	if !m.options.Enabled {
		return
	}
	if !atomic.CompareAndSwapInt32(&m.started, 0, 1) {
		return
	}
	go m.run()
}

// Stats returns a copy of the current latency history, oldest first. It
// also performs a lazy EnsureStarted, matching SPEC_FULL.md §4.1.
func (m *WorkerChannelMonitor) Stats() []time.Duration {
	m.EnsureStarted()

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, len(m.history))
	copy(out, m.history)
	return out
}

// IsReady reports the readiness flag observed by the most recent
// successful probe. Workers with no successful probe yet report false, so
// the manager correctly treats them as still warming up.
func (m *WorkerChannelMonitor) IsReady() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestReady
}

// Dispose stops the periodic probe and releases timer resources. Safe to
// call multiple times and from any goroutine.
func (m *WorkerChannelMonitor) Dispose() {
	m.doneCh.Do(func() {
		close(m.done)
	})
}

func (m *WorkerChannelMonitor) run() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("worker channel monitor panicked; probe loop terminated",
				zap.String("worker_id", m.workerID), zap.Any("panic", r))
		}
	}()

	timer := time.NewTimer(m.options.CheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-timer.C:
			m.probeOnce()
			select {
			case <-m.done:
				return
			default:
				timer.Reset(m.options.CheckInterval)
			}
		}
	}
}

// probeOnce runs exactly one probe tick: call GetStatus, append the sample
// on success, silently swallow on failure (SPEC_FULL.md §4.1 steps 2-4).
func (m *WorkerChannelMonitor) probeOnce() {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("worker probe panicked; continuing on next tick",
				zap.String("worker_id", m.workerID), zap.Any("panic", r))
		}
	}()

	select {
	case <-m.done:
		return
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.options.CheckInterval)
	defer cancel()

	status, err := m.channel.GetStatus(ctx)
	if err != nil {
		// TransientProbeError: expected during shutdown, swallowed.
		m.logger.Debug("worker probe failed, swallowing",
			zap.String("worker_id", m.workerID), zap.Error(newTransientProbeError(m.workerID, err)))
		return
	}

	m.append(status)
}

func (m *WorkerChannelMonitor) append(status WorkerStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latestReady = status.IsReady
	m.history = append(m.history, status.Latency)
	if len(m.history) > m.options.HistorySize {
		m.history = m.history[len(m.history)-m.options.HistorySize:]
	}
}
