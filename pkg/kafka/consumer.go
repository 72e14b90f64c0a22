package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	kafka_config "innkeep/pkg/kafka/config"
	"innkeep/pkg/logger"

	"github.com/segmentio/kafka-go"
)

const (
	laneBuffer    = 16
	fetchBackoff  = time.Second
	commitTimeout = 5 * time.Second
)

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer fetches from one topic and fans messages out to a fixed set of lanes.
// A partition always maps to the same lane, so messages sharing a key are handled
// in order and a retrying message only blocks its own lane.
type Consumer struct {
	reader     reader
	dlqWriter  writer
	topic      string
	groupID    string
	dlqTopic   string
	retry      RetryPolicy
	workers    int
	handler    MessageHandler
	middleware []ConsumerMiddleware
	log        *logger.Logger
	closed     bool
	mu         sync.RWMutex
	wg         sync.WaitGroup
}

type ConsumerMiddleware func(ctx context.Context, msg Message, next MessageHandler) error

func NewConsumer(cfg *kafka_config.Config, topic string, groupID string, dlqTopic string, handler MessageHandler, log *logger.Logger) (*Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}

	if topic == "" {
		return nil, fmt.Errorf("topic cannot be empty")
	}

	if groupID == "" {
		return nil, fmt.Errorf("group ID cannot be empty")
	}

	if handler == nil {
		return nil, fmt.Errorf("message handler cannot be nil")
	}

	kafkaLog := log.With("component", "kafka-reader", "topic", topic)
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          cfg.ConsumerMinBytes,
		MaxBytes:          cfg.ConsumerMaxBytes,
		MaxWait:           cfg.ConsumerMaxWait,
		CommitInterval:    cfg.ConsumerCommitInterval,
		HeartbeatInterval: cfg.ConsumerHeartbeatInterval,
		SessionTimeout:    cfg.ConsumerSessionTimeout,
		RebalanceTimeout:  cfg.ConsumerRebalanceTimeout,
		StartOffset:       cfg.ConsumerStartOffset,
		Logger:            kafka.LoggerFunc(func(msg string, args ...any) {}), // Silence default logger
		ErrorLogger:       kafka.LoggerFunc(errorLogger(kafkaLog)),
	})

	var w writer
	if dlqTopic != "" {
		w = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        dlqTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  compressionCodec(cfg.ProducerCompression),
			MaxAttempts:  3,
			Logger:       kafka.LoggerFunc(func(msg string, args ...any) {}),
			ErrorLogger:  kafka.LoggerFunc(errorLogger(kafkaLog)),
		}
	}

	policy := RetryPolicy{
		MaxRetries:  cfg.ConsumerMaxRetries,
		BaseBackoff: cfg.ConsumerRetryBackoff,
		MaxBackoff:  cfg.ConsumerMaxBackoff,
	}

	return newConsumer(r, w, topic, groupID, dlqTopic, policy, cfg.ConsumerWorkers, handler, log), nil
}

func newConsumer(r reader, w writer, topic, groupID, dlqTopic string, policy RetryPolicy, workers int, handler MessageHandler, log *logger.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		reader:     r,
		dlqWriter:  w,
		topic:      topic,
		groupID:    groupID,
		dlqTopic:   dlqTopic,
		retry:      policy,
		workers:    workers,
		handler:    handler,
		middleware: make([]ConsumerMiddleware, 0),
		log:        log.With("topic", topic, "group_id", groupID),
	}
}

func (c *Consumer) Use(middleware ConsumerMiddleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middleware = append(c.middleware, middleware)
}

// Start consumes until ctx is cancelled or the reader is closed.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return ErrConsumerClosed
	}
	c.wg.Add(1)
	c.mu.RUnlock()
	defer c.wg.Done()

	handler := c.chain()

	lanes := make([]chan kafka.Message, c.workers)
	var lanesWG sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, laneBuffer)
		lanesWG.Add(1)
		go func(lane <-chan kafka.Message) {
			defer lanesWG.Done()
			c.runLane(ctx, lane, handler)
		}(lanes[i])
	}
	defer func() {
		for _, lane := range lanes {
			close(lane)
		}
		lanesWG.Wait()
	}()

	c.log.Info("Kafka consumer started", "workers", c.workers, "dlq_topic", c.dlqTopic)

	for {
		kafkaMsg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return ErrConsumerClosed
			}
			c.log.Error("Kafka consumer error fetching message", "error", err)
			if !sleepCtx(ctx, fetchBackoff) {
				return ctx.Err()
			}
			continue
		}

		lane := lanes[laneFor(kafkaMsg.Partition, c.workers)]
		select {
		case lane <- kafkaMsg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func laneFor(partition, workers int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % workers
}

func (c *Consumer) runLane(ctx context.Context, lane <-chan kafka.Message, handler MessageHandler) {
	for kafkaMsg := range lane {
		if ctx.Err() != nil {
			// Drain without committing; the group redelivers after restart.
			continue
		}

		d := c.deliver(ctx, c.convertMessage(kafkaMsg), handler)
		if !d.Settled() {
			c.log.Warn("Message left uncommitted",
				"partition", kafkaMsg.Partition,
				"offset", kafkaMsg.Offset,
				"state", d.State.String(),
				"attempts", d.Attempts,
			)
			continue
		}

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
		if err := c.reader.CommitMessages(commitCtx, kafkaMsg); err != nil {
			c.log.Error("Kafka consumer error committing offset",
				"partition", kafkaMsg.Partition,
				"offset", kafkaMsg.Offset,
				"error", err,
			)
		}
		cancel()
	}
}

// deliver runs the handler through the bounded retry state machine.
func (c *Consumer) deliver(ctx context.Context, msg Message, handler MessageHandler) Delivery {
	d := Delivery{State: StatePending}

	for {
		if ctx.Err() != nil {
			d.State = StateInterrupted
			return d
		}

		d.Attempts++
		err := handler(ctx, msg)
		if err == nil {
			d.State = StateSucceeded
			d.LastErr = nil
			return d
		}
		d.LastErr = err

		if ctx.Err() != nil {
			d.State = StateInterrupted
			return d
		}

		retries := d.Attempts - 1
		if ShouldRetry(err, retries, c.retry.MaxRetries) {
			d.State = StateRetrying
			msg.IncrementRetryCount()
			wait := c.retry.Backoff(d.Attempts)
			c.log.Warn("Retrying message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", msg.Key,
				"retry", d.Attempts,
				"max_retries", c.retry.MaxRetries,
				"backoff", wait,
				"error", err,
			)
			if !sleepCtx(ctx, wait) {
				d.State = StateInterrupted
				return d
			}
			continue
		}

		if c.dlqWriter == nil {
			d.State = StateExhausted
			c.log.Error("Giving up on message, no dead-letter topic configured",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", msg.Key,
				"attempts", d.Attempts,
				"error", err,
			)
			return d
		}

		if dlqErr := c.sendToDLQ(ctx, msg, err); dlqErr != nil {
			d.State = StateInterrupted
			return d
		}

		d.State = StateDeadLettered
		c.log.Warn("Message sent to DLQ",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", msg.Key,
			"attempts", d.Attempts,
			"error_type", ClassifyError(err).String(),
			"error", err,
		)
		return d
	}
}

func (c *Consumer) chain() MessageHandler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	handler := c.handler
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := handler
		handler = func(ctx context.Context, m Message) error {
			return middleware(ctx, m, next)
		}
	}
	return handler
}

// sendToDLQ keeps trying until the write succeeds or ctx is cancelled, so a
// failed message is never committed without reaching the dead-letter topic.
func (c *Consumer) sendToDLQ(ctx context.Context, msg Message, originalErr error) error {
	headers := make(map[string]string, len(msg.Headers)+4)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[HeaderOriginalTopic] = c.topic
	headers[HeaderDLQError] = originalErr.Error()
	headers[HeaderDLQTimestamp] = time.Now().UTC().Format(time.RFC3339)
	headers[HeaderDLQConsumerGroup] = c.groupID

	kafkaMsg := kafka.Message{
		Key:   []byte(msg.Key),
		Value: msg.Value,
		Time:  time.Now(),
	}
	for k, v := range headers {
		kafkaMsg.Headers = append(kafkaMsg.Headers, kafka.Header{
			Key:   k,
			Value: []byte(v),
		})
	}

	for attempt := 1; ; attempt++ {
		err := c.dlqWriter.WriteMessages(ctx, kafkaMsg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Error("Failed to send message to DLQ, retrying",
			"key", msg.Key,
			"attempt", attempt,
			"error", err,
			"original_error", originalErr,
		)
		if !sleepCtx(ctx, c.retry.Backoff(attempt)) {
			return ctx.Err()
		}
	}
}

// convertMessage converts a kafka-go message to internal Message type
func (c *Consumer) convertMessage(kafkaMsg kafka.Message) Message {
	msg := Message{
		Key:       string(kafkaMsg.Key),
		Value:     kafkaMsg.Value,
		Headers:   make(map[string]string),
		Topic:     kafkaMsg.Topic,
		Partition: kafkaMsg.Partition,
		Offset:    kafkaMsg.Offset,
		Timestamp: kafkaMsg.Time,
	}

	for _, header := range kafkaMsg.Headers {
		msg.Headers[header.Key] = string(header.Value)
	}

	return msg
}

// Close waits for Start to return, then closes the reader and DLQ writer.
// Cancel the context passed to Start before calling Close.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.wg.Wait()

	var err error
	if c.reader != nil {
		err = c.reader.Close()
	}

	if c.dlqWriter != nil {
		dlqErr := c.dlqWriter.Close()
		if err == nil {
			err = dlqErr
		}
	}

	return err
}

// Stats returns consumer statistics
func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// Lag returns the current consumer lag
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}

func errorLogger(log *logger.Logger) func(msg string, args ...any) {
	return func(msg string, args ...any) {
		log.Error(fmt.Sprintf(msg, args...))
	}
}
