package dispatcher_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
	"github.com/qsdfplkj/azure-functions-host/internal/dispatcher"
	"github.com/qsdfplkj/azure-functions-host/internal/rpcchannel"
	"github.com/qsdfplkj/azure-functions-host/internal/rpcchannel/fakeworker"
)

// TestScenarioI_OverloadedWorkerTriggersScaleUp exercises SPEC_FULL.md §8
// Scenario I against the real gRPC transport: one live worker whose probe
// latency is held at >= 2s causes the dispatcher to gain a second worker.
func TestScenarioI_OverloadedWorkerTriggersScaleUp(t *testing.T) {
	logger := zap.NewNop()

	var servers []*rpcchannel.Server
	var stopFns []func()
	t.Cleanup(func() {
		for _, stop := range stopFns {
			stop()
		}
	})

	factory := func(ctx context.Context, workerID string) (concurrency.WorkerChannel, func() error, error) {
		worker := fakeworker.New(true, 2*time.Second)
		srv, err := rpcchannel.NewServer("127.0.0.1:0", worker)
		if err != nil {
			return nil, nil, err
		}
		servers = append(servers, srv)

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = srv.Serve()
		}()
		stopFns = append(stopFns, func() {
			srv.Stop()
			<-done
		})

		ch, err := rpcchannel.Dial(ctx, srv.Addr())
		if err != nil {
			return nil, nil, err
		}
		return ch, ch.Close, nil
	}

	monitorOpts := concurrency.Options{
		Enabled:          true,
		CheckInterval:    20 * time.Millisecond,
		HistorySize:      3,
		HistoryThreshold: 1.0,
		LatencyThreshold: 500 * time.Millisecond,
		AdjustmentPeriod: 0,
		MaxWorkerCount:   2,
	}

	d, err := dispatcher.NewRPCDispatcher(context.Background(), dispatcher.Options{
		InitialWorkerCount: 1,
		MaxWorkerCount:     2,
	}, factory, monitorOpts, logger)
	require.NoError(t, err)
	defer d.Shutdown()

	manager := concurrency.NewConcurrencyManager(monitorOpts, d, logger, nil, nil)
	manager.Start(context.Background())
	defer manager.Dispose()

	require.Eventually(t, func() bool {
		return d.WorkerCount() == 2
	}, 10*time.Second, 50*time.Millisecond, "dispatcher should grow to 2 workers once the first is observed overloaded")

	assert.Equal(t, 2, d.WorkerCount())
}
