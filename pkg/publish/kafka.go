package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"k8s.io/klog/v2"

	"github.com/susgrid/poweff-collector/pkg/models"
)

// KafkaConfig holds broker and topic settings for the Kafka sink.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// KafkaSink produces metric envelopes to a Kafka topic. Records are keyed
// by device hostname so per-device ordering survives partitioning.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink builds a connected Kafka producer.
func NewKafkaSink(config KafkaConfig) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		config.Brokers = []string{"localhost:9092"}
	}
	if config.Topic == "" {
		config.Topic = "poweff-metrics"
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(config.Brokers...),
		kgo.DefaultProduceTopic(config.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	klog.Infof("[kafka] producer ready, topic %q", config.Topic)
	return &KafkaSink{client: client, topic: config.Topic}, nil
}

// Publish produces one envelope synchronously.
func (s *KafkaSink) Publish(ctx context.Context, envelope models.MetricEnvelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(envelope.Device),
		Value: body,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce envelope: %w", err)
	}
	return nil
}

// Close flushes and releases the producer.
func (s *KafkaSink) Close() error {
	s.client.Close()
	return nil
}
