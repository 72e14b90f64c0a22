package kafka_config

import "time"

const (
	// Default Kafka broker
	DefaultKafkaBrokers = "localhost:9092"

	DefaultCommitTopic         = "bookings.commit"
	DefaultCommitDLQTopic      = "bookings.commit.dlq"
	DefaultCommitGroupID       = "bookings-commit-worker"
	DefaultCompensationGroupID = "bookings-compensation"

	// Producer defaults
	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1 // Require all replicas
	DefaultProducerCompression  = "snappy"

	// Consumer defaults
	DefaultConsumerStartOffset       = -2 // Oldest, so commits queued before a deploy are not skipped
	DefaultConsumerMinBytes          = 1
	DefaultConsumerMaxBytes          = 10 * 1024 * 1024 // 10MB
	DefaultConsumerMaxWait           = 500 * time.Millisecond
	DefaultConsumerCommitInterval    = 1 * time.Second
	DefaultConsumerHeartbeatInterval = 3 * time.Second
	DefaultConsumerSessionTimeout    = 10 * time.Second
	DefaultConsumerRebalanceTimeout  = 60 * time.Second
	DefaultConsumerMaxRetries        = 5
	DefaultConsumerRetryBackoff      = 200 * time.Millisecond
	DefaultConsumerMaxBackoff        = 10 * time.Second
	DefaultConsumerWorkers           = 4

	// Middleware defaults
	DefaultEnableMiddleware = true
	DefaultMetricsInterval  = time.Minute
)
