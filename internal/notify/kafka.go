// Package notify publishes notification events to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/spec-kit/msp-sla/internal/config"
	"github.com/spec-kit/msp-sla/internal/observability"
)

// ErrUnknownTopic is returned for topics the publisher has no writer for.
var ErrUnknownTopic = errors.New("unknown notification topic")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON messages keyed by ticket id. All topics share one
// circuit breaker so an unreachable cluster fails fast.
type KafkaPublisher struct {
	writers map[string]messageWriter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewKafkaPublisher creates one writer per configured topic.
func NewKafkaPublisher(cfg config.KafkaConfig, notifyCfg config.NotificationConfig, metrics *observability.Metrics, logger *zap.Logger) *KafkaPublisher {
	writers := make(map[string]messageWriter)
	for _, topic := range []string{cfg.EscalationTopic, cfg.AssignmentTopic} {
		if topic == "" {
			continue
		}
		writers[topic] = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: cfg.WriteTimeout,
		}
	}
	return newPublisher(writers, breakerSettings(notifyCfg, logger), cfg.WriteTimeout, metrics, logger)
}

func newPublisher(writers map[string]messageWriter, settings gobreaker.Settings, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{
		writers: writers,
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

func breakerSettings(cfg config.NotificationConfig, logger *zap.Logger) gobreaker.Settings {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.Settings{
		Name:        "kafka-notifications",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	}
}

// Publish marshals payload and writes it to topic.
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key, eventType string, payload any) error {
	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", eventType, err)
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		writeCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			writeCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		return nil, writer.WriteMessages(writeCtx, msg)
	})
	p.metrics.RecordNotification(topic, err)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", eventType, topic, err)
	}
	p.logger.Debug("notification published",
		zap.String("topic", topic),
		zap.String("key", key),
		zap.String("event_type", eventType))
	return nil
}

// Close closes every writer.
func (p *KafkaPublisher) Close() error {
	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s writer: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}
