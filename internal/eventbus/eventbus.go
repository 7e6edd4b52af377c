// Package eventbus publishes best-effort "worker added" scale events to an
// external telemetry topic, grounded on the reference corpus's
// producer/kafka Sarama producer wiring.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
)

// Config configures the Kafka-backed publisher. A nil/empty Brokers list
// means "no broker configured"; callers should use NoopPublisher instead
// of constructing a SaramaPublisher in that case.
type Config struct {
	Brokers []string
	Topic   string
}

// scaleEvent is the JSON payload published to Topic on every successful
// scale-up.
type scaleEvent struct {
	WorkerID     string    `json:"worker_id"`
	WorkerCount  int       `json:"worker_count"`
	PublishedAt  time.Time `json:"published_at"`
	WorkerIDList []string  `json:"worker_ids"`
}

// SaramaPublisher publishes scale events to Kafka using a synchronous
// producer, matching the corpus's SaramaProducer.PushToQueue use of
// sarama.SyncProducer for the rare, low-volume publish path (as opposed to
// the async producer used for high-throughput order placement).
type SaramaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewSaramaPublisher dials the given brokers and returns a publisher bound
// to topic. Grounded on producer/kafka.NewProducer's sarama.NewConfig setup.
func NewSaramaPublisher(cfg Config, logger *zap.Logger) (*SaramaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("eventbus: failed to connect to kafka brokers %v: %w", cfg.Brokers, err)
	}

	return &SaramaPublisher{producer: producer, topic: cfg.Topic, logger: logger}, nil
}

// PublishWorkerAdded implements concurrency.EventPublisher. It is
// best-effort: the manager logs and discards any returned error without
// affecting the tick outcome (SPEC_FULL.md §4.2 "Scale-event publication").
func (p *SaramaPublisher) PublishWorkerAdded(ctx context.Context, workerID string, snapshot map[string]concurrency.WorkerView) error {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}

	payload, err := json.Marshal(scaleEvent{
		WorkerID:     workerID,
		WorkerCount:  len(snapshot),
		PublishedAt:  time.Now(),
		WorkerIDList: ids,
	})
	if err != nil {
		return fmt.Errorf("eventbus: failed to marshal scale event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(payload),
	}

	_, _, err = p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("eventbus: failed to publish scale event: %w", err)
	}
	return nil
}

// Close releases the underlying Sarama producer.
func (p *SaramaPublisher) Close() error {
	return p.producer.Close()
}

// NoopPublisher is used when no Kafka broker is configured; every publish
// call is a silent success.
type NoopPublisher struct{}

func (NoopPublisher) PublishWorkerAdded(context.Context, string, map[string]concurrency.WorkerView) error {
	return nil
}

var (
	_ concurrency.EventPublisher = (*SaramaPublisher)(nil)
	_ concurrency.EventPublisher = NoopPublisher{}
)
