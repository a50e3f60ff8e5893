// Package publish delivers normalised metric envelopes to a message
// broker. The broker is hidden behind the Sink boundary so the pipeline
// never sees transport details.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/susgrid/poweff-collector/pkg/models"
)

const (
	// KindRabbitMQ selects the AMQP sink. Default.
	KindRabbitMQ = "rabbitmq"
	// KindKafka selects the franz-go sink.
	KindKafka = "kafka"

	DefaultMaxAttempts = 3
	DefaultBackoffBase = 1 * time.Second
)

// Sink is the delivery boundary. Publish blocks until the broker has
// accepted the envelope or the context ends.
type Sink interface {
	Publish(ctx context.Context, envelope models.MetricEnvelope) error
	Close() error
}

// Config selects and tunes the sink.
type Config struct {
	// Kind is "rabbitmq" (default) or "kafka".
	Kind string `mapstructure:"kind"`

	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`

	// MaxAttempts bounds delivery retries per envelope.
	MaxAttempts int `mapstructure:"max_attempts"`

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// NewSink builds the configured sink. The returned sink is not yet
// connected for RabbitMQ; Connect happens lazily on first Publish.
func NewSink(cfg Config) (Sink, error) {
	switch cfg.Kind {
	case "", KindRabbitMQ:
		return NewRabbitMQSink(cfg.RabbitMQ), nil
	case KindKafka:
		return NewKafkaSink(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unknown publisher kind %q", cfg.Kind)
	}
}
