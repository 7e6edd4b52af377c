package concurrency

import (
	"runtime"
	"time"
)

// Default values per SPEC_FULL.md §3 / Scenario G.
const (
	DefaultCheckInterval    = time.Second
	DefaultAdjustmentPeriod = 10 * time.Second
	DefaultHistorySize      = 10
	DefaultHistoryThreshold = 1.0
	DefaultLatencyThreshold = time.Second

	// LogStateInterval is the maximum cadence of the manager's debug-level
	// per-worker state dump when no scale-up decision was made.
	LogStateInterval = 60 * time.Second
)

// Options is the immutable configuration record for the control loop.
// Once constructed by Setup, an Options value is never mutated.
type Options struct {
	// Enabled is the master switch. When false, neither the manager nor any
	// monitor ever schedules a probe.
	Enabled bool

	// CheckInterval is the tick period shared by every monitor and by the
	// manager itself.
	CheckInterval time.Duration

	// AdjustmentPeriod is the minimum wall-clock gap between two successive
	// add-worker decisions.
	AdjustmentPeriod time.Duration

	// HistorySize is the sliding-window length kept per worker.
	HistorySize int

	// HistoryThreshold is the fraction, in (0, 1], of samples in the window
	// that must meet or exceed LatencyThreshold for a worker to be
	// considered overloaded.
	HistoryThreshold float64

	// LatencyThreshold is the per-sample threshold used by the overload
	// predicate.
	LatencyThreshold time.Duration

	// MaxWorkerCount is the hard cap on pool size. Zero means "not yet
	// resolved"; Setup/ResolveMaxWorkerCount replaces it with 2*cores+2.
	MaxWorkerCount int
}

// DefaultOptions returns the zero-value-safe defaults described in
// SPEC_FULL.md §3 (Scenario G): disabled, with every numeric field at its
// documented default and MaxWorkerCount left at 0 (unresolved).
func DefaultOptions() Options {
	return Options{
		Enabled:          false,
		CheckInterval:    DefaultCheckInterval,
		AdjustmentPeriod: DefaultAdjustmentPeriod,
		HistorySize:      DefaultHistorySize,
		HistoryThreshold: DefaultHistoryThreshold,
		LatencyThreshold: DefaultLatencyThreshold,
		MaxWorkerCount:   0,
	}
}

// ResolveMaxWorkerCount returns o with MaxWorkerCount set to 2*cores+2 when
// it was left at zero, per SPEC_FULL.md §4.3 step 4. It never mutates o.
func (o Options) ResolveMaxWorkerCount() Options {
	if o.MaxWorkerCount == 0 {
		o.MaxWorkerCount = 2*runtime.NumCPU() + 2
	}
	return o
}
