package kafka_config

const (
	// Kafka broker configuration
	EnvKafkaBrokers = "KAFKA_BROKERS"

	// Topics and consumer groups
	EnvKafkaCommitTopic         = "KAFKA_COMMIT_TOPIC"
	EnvKafkaCommitDLQTopic      = "KAFKA_COMMIT_DLQ_TOPIC"
	EnvKafkaCommitGroupID       = "KAFKA_COMMIT_GROUP_ID"
	EnvKafkaCompensationGroupID = "KAFKA_COMPENSATION_GROUP_ID"

	// Producer configuration
	EnvKafkaProducerMaxAttempts  = "KAFKA_PRODUCER_MAX_ATTEMPTS"
	EnvKafkaProducerBatchTimeout = "KAFKA_PRODUCER_BATCH_TIMEOUT"
	EnvKafkaProducerRequireAcks  = "KAFKA_PRODUCER_REQUIRE_ACKS"
	EnvKafkaProducerCompression  = "KAFKA_PRODUCER_COMPRESSION"

	// Consumer configuration
	EnvKafkaConsumerStartOffset       = "KAFKA_CONSUMER_START_OFFSET"
	EnvKafkaConsumerMinBytes          = "KAFKA_CONSUMER_MIN_BYTES"
	EnvKafkaConsumerMaxBytes          = "KAFKA_CONSUMER_MAX_BYTES"
	EnvKafkaConsumerMaxWait           = "KAFKA_CONSUMER_MAX_WAIT"
	EnvKafkaConsumerCommitInterval    = "KAFKA_CONSUMER_COMMIT_INTERVAL"
	EnvKafkaConsumerHeartbeatInterval = "KAFKA_CONSUMER_HEARTBEAT_INTERVAL"
	EnvKafkaConsumerSessionTimeout    = "KAFKA_CONSUMER_SESSION_TIMEOUT"
	EnvKafkaConsumerRebalanceTimeout  = "KAFKA_CONSUMER_REBALANCE_TIMEOUT"
	EnvKafkaConsumerMaxRetries        = "KAFKA_CONSUMER_MAX_RETRIES"
	EnvKafkaConsumerRetryBackoff      = "KAFKA_CONSUMER_RETRY_BACKOFF"
	EnvKafkaConsumerMaxBackoff        = "KAFKA_CONSUMER_MAX_BACKOFF"
	EnvKafkaConsumerWorkers           = "KAFKA_CONSUMER_WORKERS"

	// Middleware configuration
	EnvKafkaEnableMiddleware = "KAFKA_ENABLE_MIDDLEWARE"
	EnvKafkaMetricsInterval  = "KAFKA_METRICS_INTERVAL"
)
