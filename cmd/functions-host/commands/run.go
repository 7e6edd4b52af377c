package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/qsdfplkj/azure-functions-host/internal/adminhttp"
	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
	"github.com/qsdfplkj/azure-functions-host/internal/dispatcher"
	"github.com/qsdfplkj/azure-functions-host/internal/eventbus"
	"github.com/qsdfplkj/azure-functions-host/internal/hostconfig"
	"github.com/qsdfplkj/azure-functions-host/internal/metrics"
	"github.com/qsdfplkj/azure-functions-host/internal/rpcchannel"
	"github.com/qsdfplkj/azure-functions-host/internal/rpcchannel/fakeworker"
)

var (
	adminAddr          string
	initialWorkerCount int
	kafkaBrokersFlag   []string
	kafkaTopicFlag     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the host: dispatcher, concurrency manager, and admin HTTP surface",
	RunE:  runHost,
}

func init() {
	runCmd.Flags().StringVar(&adminAddr, "admin-addr", ":8090", "address for the read-only admin HTTP surface")
	runCmd.Flags().IntVar(&initialWorkerCount, "initial-workers", 1, "number of worker channels to launch at startup")
	runCmd.Flags().StringSliceVar(&kafkaBrokersFlag, "kafka-brokers", nil, "Kafka broker list for scale-up event publication (omit to disable)")
	runCmd.Flags().StringVar(&kafkaTopicFlag, "kafka-topic", "functions-host.worker-scale-events", "Kafka topic for scale-up events")
}

func runHost(cmd *cobra.Command, args []string) error {
	opts, err := hostconfig.Setup(hostconfig.OSLookup, v)
	if err != nil {
		return fmt.Errorf("failed to resolve worker concurrency options: %w", err)
	}
	logger.Info("resolved worker concurrency options",
		zap.Bool("enabled", opts.Enabled),
		zap.Duration("check_interval", opts.CheckInterval),
		zap.Duration("adjustment_period", opts.AdjustmentPeriod),
		zap.Int("history_size", opts.HistorySize),
		zap.Float64("history_threshold", opts.HistoryThreshold),
		zap.Duration("latency_threshold", opts.LatencyThreshold),
		zap.Int("max_worker_count", opts.MaxWorkerCount))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, cleanupFactory := devWorkerFactory(logger)
	defer cleanupFactory()

	resolved := opts.ResolveMaxWorkerCount()
	d, err := dispatcher.NewRPCDispatcher(ctx, dispatcher.Options{
		InitialWorkerCount: initialWorkerCount,
		MaxWorkerCount:     resolved.MaxWorkerCount,
		ScaleUpThrottle:    rate.Every(100 * time.Millisecond),
	}, factory, opts, logger)
	if err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	defer d.Shutdown()

	publisher := eventPublisher(logger)
	if closer, ok := publisher.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	manager := concurrency.NewConcurrencyManager(opts, d, logger, metrics.NewRecorder(), publisher)
	manager.Start(ctx)
	defer manager.Dispose()

	admin := adminhttp.New(adminAddr, manager, logger)
	go func() {
		if err := admin.Serve(); err != nil {
			logger.Error("admin HTTP server exited", zap.Error(err))
		}
	}()

	logger.Info("functions-host started", zap.String("admin_addr", adminAddr))

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin HTTP server shutdown error", zap.Error(err))
	}
	manager.Stop()

	return nil
}

// devWorkerFactory returns a dispatcher.WorkerFactory that launches an
// in-process fake gRPC worker per channel. A real deployment would spawn
// an out-of-process language runtime (SPEC_FULL.md §1 "out of scope");
// this stand-in lets the host run end-to-end without one.
func devWorkerFactory(logger *zap.Logger) (dispatcher.WorkerFactory, func()) {
	var servers []*rpcchannel.Server
	var dones []chan struct{}

	factory := func(ctx context.Context, workerID string) (concurrency.WorkerChannel, func() error, error) {
		worker := fakeworker.New(false, 0)
		srv, err := rpcchannel.NewServer("127.0.0.1:0", worker)
		if err != nil {
			return nil, nil, err
		}
		servers = append(servers, srv)

		done := make(chan struct{})
		dones = append(dones, done)
		go func() {
			defer close(done)
			if err := srv.Serve(); err != nil {
				logger.Debug("worker server stopped", zap.String("worker_id", workerID), zap.Error(err))
			}
		}()

		// Simulate worker warm-up completing shortly after launch.
		go func() {
			time.Sleep(500 * time.Millisecond)
			worker.SetReady(true)
			worker.SetLatency(50 * time.Millisecond)
		}()

		channel, err := rpcchannel.Dial(ctx, srv.Addr())
		if err != nil {
			return nil, nil, err
		}
		return channel, channel.Close, nil
	}

	cleanup := func() {
		for _, srv := range servers {
			srv.Stop()
		}
		for _, done := range dones {
			<-done
		}
	}

	return factory, cleanup
}

func eventPublisher(logger *zap.Logger) concurrency.EventPublisher {
	if len(kafkaBrokersFlag) == 0 {
		return eventbus.NoopPublisher{}
	}
	publisher, err := eventbus.NewSaramaPublisher(eventbus.Config{Brokers: kafkaBrokersFlag, Topic: kafkaTopicFlag}, logger)
	if err != nil {
		logger.Warn("failed to connect scale-event publisher, falling back to no-op", zap.Error(err))
		return eventbus.NoopPublisher{}
	}
	return publisher
}
