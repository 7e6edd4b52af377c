package concurrency

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Scenario G.
func TestDefaultOptions(t *testing.T) {
	o := DefaultOptions()

	assert.False(t, o.Enabled)
	assert.Equal(t, time.Second, o.CheckInterval)
	assert.Equal(t, 10*time.Second, o.AdjustmentPeriod)
	assert.Equal(t, 10, o.HistorySize)
	assert.Equal(t, 1.0, o.HistoryThreshold)
	assert.Equal(t, time.Second, o.LatencyThreshold)
	assert.Equal(t, 0, o.MaxWorkerCount)
}

func TestResolveMaxWorkerCount(t *testing.T) {
	o := DefaultOptions()
	resolved := o.ResolveMaxWorkerCount()
	assert.Equal(t, 2*runtime.NumCPU()+2, resolved.MaxWorkerCount)

	preset := DefaultOptions()
	preset.MaxWorkerCount = 5
	assert.Equal(t, 5, preset.ResolveMaxWorkerCount().MaxWorkerCount)
}
