package kafka_middleware

import (
	"context"
	"errors"
	"time"

	"innkeep/pkg/kafka"
	"innkeep/pkg/logger"
)

// LoggingProducerMiddleware logs message publishing operations
func LoggingProducerMiddleware(log *logger.Logger) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()

		log.Debug("Publishing message",
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"event_type", msg.GetEventType(),
			"correlation_id", msg.GetCorrelationID(),
		)

		err := next(ctx, msg)

		duration := time.Since(start)

		if err != nil {
			log.Error("Failed to publish message",
				"key", msg.Key,
				"event_id", msg.GetEventID(),
				"duration", duration,
				"error", err,
			)
		} else {
			log.Info("Published message",
				"key", msg.Key,
				"event_id", msg.GetEventID(),
				"correlation_id", msg.GetCorrelationID(),
				"duration", duration,
			)
		}

		return err
	}
}

// LoggingConsumerMiddleware logs every handler attempt, retries included.
func LoggingConsumerMiddleware(log *logger.Logger) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()

		log.Debug("Processing message",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"correlation_id", msg.GetCorrelationID(),
			"retry_count", msg.GetRetryCount(),
		)

		err := next(ctx, msg)

		duration := time.Since(start)

		if err != nil {
			logFailure := log.Warn
			// Permanent failures go straight to the dead-letter topic.
			var kafkaErr *kafka.KafkaError
			if errors.As(err, &kafkaErr) && kafkaErr.IsPermanent() {
				logFailure = log.Error
			}
			logFailure("Failed to process message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", msg.Key,
				"event_id", msg.GetEventID(),
				"correlation_id", msg.GetCorrelationID(),
				"duration", duration,
				"error_type", kafka.ClassifyError(err).String(),
				"error", err,
			)
		} else {
			log.Info("Processed message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", msg.Key,
				"duration", duration,
			)
		}

		return err
	}
}
