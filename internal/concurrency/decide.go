package concurrency

import "time"

// isOverloaded implements SPEC_FULL.md §4.2.1: a worker is overloaded iff
// its history is full and at least historyThreshold of its samples meet or
// exceed latencyThreshold. Order-independent by construction (it only
// counts), matching invariant 5 in §8.
func isOverloaded(history []time.Duration, o Options) bool {
	if len(history) < o.HistorySize {
		return false
	}

	var over int
	for _, sample := range history {
		if sample >= o.LatencyThreshold {
			over++
		}
	}

	return float64(over)/float64(o.HistorySize) >= o.HistoryThreshold
}

// decide implements the top-level SPEC_FULL.md §4.2 predicate: true iff the
// cooldown has elapsed, every worker is ready, the pool has room to grow,
// and at least one worker is overloaded.
func decide(statuses map[string]WorkerView, sinceLastAdd time.Duration, o Options) bool {
	if sinceLastAdd < o.AdjustmentPeriod {
		return false
	}

	if len(statuses) >= o.MaxWorkerCount {
		return false
	}

	anyOverloaded := false
	for _, view := range statuses {
		if !view.IsReady {
			return false
		}
		if isOverloaded(view.History, o) {
			anyOverloaded = true
		}
	}

	return anyOverloaded
}
