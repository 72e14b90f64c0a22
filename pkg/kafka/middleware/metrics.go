package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"innkeep/pkg/kafka"
	"innkeep/pkg/logger"
)

// Metrics counts Kafka operations for one process. Durations are in nanoseconds.
type Metrics struct {
	messagesPublished       atomic.Int64
	messagesPublishedFailed atomic.Int64
	publishDurationTotal    atomic.Int64

	messagesConsumed       atomic.Int64
	messagesConsumedFailed atomic.Int64
	consumeDurationTotal   atomic.Int64
}

type Snapshot struct {
	Published          int64
	PublishFailed      int64
	AvgPublishDuration time.Duration
	Consumed           int64
	ConsumeFailed      int64
	AvgConsumeDuration time.Duration
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Reset resets all metrics (useful for testing)
func (m *Metrics) Reset() {
	m.messagesPublished.Store(0)
	m.messagesPublishedFailed.Store(0)
	m.publishDurationTotal.Store(0)
	m.messagesConsumed.Store(0)
	m.messagesConsumedFailed.Store(0)
	m.consumeDurationTotal.Store(0)
}

func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		Published:     m.messagesPublished.Load(),
		PublishFailed: m.messagesPublishedFailed.Load(),
		Consumed:      m.messagesConsumed.Load(),
		ConsumeFailed: m.messagesConsumedFailed.Load(),
	}
	if n := s.Published + s.PublishFailed; n > 0 {
		s.AvgPublishDuration = time.Duration(m.publishDurationTotal.Load() / n)
	}
	if n := s.Consumed + s.ConsumeFailed; n > 0 {
		s.AvgConsumeDuration = time.Duration(m.consumeDurationTotal.Load() / n)
	}
	return s
}

// ProducerMiddleware tracks producer metrics
func (m *Metrics) ProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()

		err := next(ctx, msg)

		m.publishDurationTotal.Add(int64(time.Since(start)))
		if err != nil {
			m.messagesPublishedFailed.Add(1)
		} else {
			m.messagesPublished.Add(1)
		}

		return err
	}
}

// ConsumerMiddleware tracks consumer metrics. Each handler attempt counts once.
func (m *Metrics) ConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()

		err := next(ctx, msg)

		m.consumeDurationTotal.Add(int64(time.Since(start)))
		if err != nil {
			m.messagesConsumedFailed.Add(1)
		} else {
			m.messagesConsumed.Add(1)
		}

		return err
	}
}

// ReportEvery logs a snapshot on every tick until ctx is done.
func (m *Metrics) ReportEvery(ctx context.Context, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := m.Snapshot()
			log.Info("Kafka metrics",
				"published", s.Published,
				"publish_failed", s.PublishFailed,
				"avg_publish_duration", s.AvgPublishDuration,
				"consumed", s.Consumed,
				"consume_failed", s.ConsumeFailed,
				"avg_consume_duration", s.AvgConsumeDuration,
			)
		}
	}
}
