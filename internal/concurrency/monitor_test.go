package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	mu      sync.Mutex
	latency time.Duration
	ready   bool
	fail    bool
	calls   int32
}

func (f *fakeChannel) GetStatus(ctx context.Context) (WorkerStatus, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return WorkerStatus{}, errors.New("probe failed")
	}
	return WorkerStatus{IsReady: f.ready, Latency: f.latency}, nil
}

func (f *fakeChannel) setLatency(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latency = d
}

func (f *fakeChannel) setReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

func (f *fakeChannel) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeChannel) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

func TestWorkerChannelMonitor_Disabled(t *testing.T) {
	ch := &fakeChannel{ready: true, latency: time.Millisecond}
	o := DefaultOptions()
	o.Enabled = false

	m := NewWorkerChannelMonitor("w1", ch, o, zap.NewNop())
	assert.Empty(t, m.Stats())

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, ch.callCount(), "disabled monitor must never probe")
}

func TestWorkerChannelMonitor_HistoryBounded(t *testing.T) {
	ch := &fakeChannel{ready: true, latency: time.Millisecond}
	o := DefaultOptions()
	o.Enabled = true
	o.CheckInterval = 5 * time.Millisecond
	o.HistorySize = 3

	m := NewWorkerChannelMonitor("w1", ch, o, zap.NewNop())
	defer m.Dispose()

	require.Eventually(t, func() bool {
		return len(m.Stats()) == 3
	}, time.Second, 5*time.Millisecond)

	// invariant 1: history never exceeds historySize even after more ticks.
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, len(m.Stats()), o.HistorySize)
}

func TestWorkerChannelMonitor_EnsureStartedIdempotent(t *testing.T) {
	ch := &fakeChannel{ready: true, latency: time.Millisecond}
	o := DefaultOptions()
	o.Enabled = true
	o.CheckInterval = 5 * time.Millisecond

	m := NewWorkerChannelMonitor("w1", ch, o, zap.NewNop())
	defer m.Dispose()

	m.EnsureStarted()
	m.EnsureStarted()
	m.EnsureStarted()

	time.Sleep(20 * time.Millisecond)
	assert.True(t, atomic.LoadInt32(&m.started) == 1)
}

func TestWorkerChannelMonitor_ProbeFailureSwallowed(t *testing.T) {
	ch := &fakeChannel{ready: true, latency: time.Millisecond, fail: true}
	o := DefaultOptions()
	o.Enabled = true
	o.CheckInterval = 5 * time.Millisecond

	m := NewWorkerChannelMonitor("w1", ch, o, zap.NewNop())
	defer m.Dispose()

	m.EnsureStarted()
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, m.Stats())
	assert.Greater(t, ch.callCount(), int32(0))
}

func TestWorkerChannelMonitor_StatsIsCopy(t *testing.T) {
	ch := &fakeChannel{ready: true, latency: time.Millisecond}
	o := DefaultOptions()
	o.Enabled = true
	o.CheckInterval = 5 * time.Millisecond
	o.HistorySize = 5

	m := NewWorkerChannelMonitor("w1", ch, o, zap.NewNop())
	defer m.Dispose()

	require.Eventually(t, func() bool { return len(m.Stats()) > 0 }, time.Second, 5*time.Millisecond)

	snap := m.Stats()
	snap[0] = 999 * time.Hour

	fresh := m.Stats()
	assert.NotEqual(t, snap[0], fresh[0])
}

func TestWorkerChannelMonitor_DisposeStopsProbing(t *testing.T) {
	ch := &fakeChannel{ready: true, latency: time.Millisecond}
	o := DefaultOptions()
	o.Enabled = true
	o.CheckInterval = 5 * time.Millisecond

	m := NewWorkerChannelMonitor("w1", ch, o, zap.NewNop())
	m.EnsureStarted()
	time.Sleep(20 * time.Millisecond)

	m.Dispose()
	m.Dispose() // must be safe to call twice

	before := ch.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, ch.callCount())
}
