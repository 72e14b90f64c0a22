package kafka_config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all Kafka configuration
type Config struct {
	// Broker configuration
	Brokers []string

	CommitTopic         string
	CommitDLQTopic      string
	CommitGroupID       string
	CompensationGroupID string

	// Producer configuration
	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerRequireAcks  int    // -1 = all, 0 = none, 1 = leader only
	ProducerCompression  string // "none", "gzip", "snappy", "lz4", "zstd"

	// Consumer configuration
	ConsumerStartOffset       int64 // -1 = newest, -2 = oldest
	ConsumerMinBytes          int
	ConsumerMaxBytes          int
	ConsumerMaxWait           time.Duration
	ConsumerCommitInterval    time.Duration
	ConsumerHeartbeatInterval time.Duration
	ConsumerSessionTimeout    time.Duration
	ConsumerRebalanceTimeout  time.Duration
	ConsumerMaxRetries        int
	ConsumerRetryBackoff      time.Duration
	ConsumerMaxBackoff        time.Duration
	ConsumerWorkers           int

	// Middleware configuration
	EnableMiddleware bool
	MetricsInterval  time.Duration
}

// Load creates a Kafka config from environment variables
func Load() *Config {
	cfg := FromViper(newViper())

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Kafka configuration validation failed: %v", err))
	}

	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(EnvKafkaBrokers, DefaultKafkaBrokers)

	v.SetDefault(EnvKafkaCommitTopic, DefaultCommitTopic)
	v.SetDefault(EnvKafkaCommitDLQTopic, DefaultCommitDLQTopic)
	v.SetDefault(EnvKafkaCommitGroupID, DefaultCommitGroupID)
	v.SetDefault(EnvKafkaCompensationGroupID, DefaultCompensationGroupID)

	v.SetDefault(EnvKafkaProducerMaxAttempts, DefaultProducerMaxAttempts)
	v.SetDefault(EnvKafkaProducerBatchTimeout, DefaultProducerBatchTimeout)
	v.SetDefault(EnvKafkaProducerRequireAcks, DefaultProducerRequireAcks)
	v.SetDefault(EnvKafkaProducerCompression, DefaultProducerCompression)

	v.SetDefault(EnvKafkaConsumerStartOffset, DefaultConsumerStartOffset)
	v.SetDefault(EnvKafkaConsumerMinBytes, DefaultConsumerMinBytes)
	v.SetDefault(EnvKafkaConsumerMaxBytes, DefaultConsumerMaxBytes)
	v.SetDefault(EnvKafkaConsumerMaxWait, DefaultConsumerMaxWait)
	v.SetDefault(EnvKafkaConsumerCommitInterval, DefaultConsumerCommitInterval)
	v.SetDefault(EnvKafkaConsumerHeartbeatInterval, DefaultConsumerHeartbeatInterval)
	v.SetDefault(EnvKafkaConsumerSessionTimeout, DefaultConsumerSessionTimeout)
	v.SetDefault(EnvKafkaConsumerRebalanceTimeout, DefaultConsumerRebalanceTimeout)
	v.SetDefault(EnvKafkaConsumerMaxRetries, DefaultConsumerMaxRetries)
	v.SetDefault(EnvKafkaConsumerRetryBackoff, DefaultConsumerRetryBackoff)
	v.SetDefault(EnvKafkaConsumerMaxBackoff, DefaultConsumerMaxBackoff)
	v.SetDefault(EnvKafkaConsumerWorkers, DefaultConsumerWorkers)

	v.SetDefault(EnvKafkaEnableMiddleware, DefaultEnableMiddleware)
	v.SetDefault(EnvKafkaMetricsInterval, DefaultMetricsInterval)

	return v
}

func FromViper(v *viper.Viper) *Config {
	brokers := strings.Split(v.GetString(EnvKafkaBrokers), ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	return &Config{
		Brokers: brokers,

		CommitTopic:         v.GetString(EnvKafkaCommitTopic),
		CommitDLQTopic:      v.GetString(EnvKafkaCommitDLQTopic),
		CommitGroupID:       v.GetString(EnvKafkaCommitGroupID),
		CompensationGroupID: v.GetString(EnvKafkaCompensationGroupID),

		ProducerMaxAttempts:  v.GetInt(EnvKafkaProducerMaxAttempts),
		ProducerBatchTimeout: v.GetDuration(EnvKafkaProducerBatchTimeout),
		ProducerRequireAcks:  v.GetInt(EnvKafkaProducerRequireAcks),
		ProducerCompression:  v.GetString(EnvKafkaProducerCompression),

		ConsumerStartOffset:       v.GetInt64(EnvKafkaConsumerStartOffset),
		ConsumerMinBytes:          v.GetInt(EnvKafkaConsumerMinBytes),
		ConsumerMaxBytes:          v.GetInt(EnvKafkaConsumerMaxBytes),
		ConsumerMaxWait:           v.GetDuration(EnvKafkaConsumerMaxWait),
		ConsumerCommitInterval:    v.GetDuration(EnvKafkaConsumerCommitInterval),
		ConsumerHeartbeatInterval: v.GetDuration(EnvKafkaConsumerHeartbeatInterval),
		ConsumerSessionTimeout:    v.GetDuration(EnvKafkaConsumerSessionTimeout),
		ConsumerRebalanceTimeout:  v.GetDuration(EnvKafkaConsumerRebalanceTimeout),
		ConsumerMaxRetries:        v.GetInt(EnvKafkaConsumerMaxRetries),
		ConsumerRetryBackoff:      v.GetDuration(EnvKafkaConsumerRetryBackoff),
		ConsumerMaxBackoff:        v.GetDuration(EnvKafkaConsumerMaxBackoff),
		ConsumerWorkers:           v.GetInt(EnvKafkaConsumerWorkers),

		EnableMiddleware: v.GetBool(EnvKafkaEnableMiddleware),
		MetricsInterval:  v.GetDuration(EnvKafkaMetricsInterval),
	}
}

// Validate validates the Kafka configuration
func (cfg *Config) Validate() error {
	var errors []string

	if len(cfg.Brokers) == 0 {
		errors = append(errors, "At least one Kafka broker is required")
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			errors = append(errors, fmt.Sprintf("Broker %d cannot be empty", i))
		}
	}

	if cfg.CommitTopic == "" {
		errors = append(errors, "CommitTopic cannot be empty")
	}
	if cfg.CommitDLQTopic == "" {
		errors = append(errors, "CommitDLQTopic cannot be empty")
	}
	if cfg.CommitTopic != "" && cfg.CommitTopic == cfg.CommitDLQTopic {
		errors = append(errors, fmt.Sprintf("CommitDLQTopic must differ from CommitTopic, both are %s", cfg.CommitTopic))
	}
	if cfg.CommitGroupID == "" || cfg.CompensationGroupID == "" {
		errors = append(errors, "CommitGroupID and CompensationGroupID cannot be empty")
	}

	if cfg.ProducerMaxAttempts <= 0 {
		errors = append(errors, fmt.Sprintf("ProducerMaxAttempts must be positive, got: %d", cfg.ProducerMaxAttempts))
	}

	if cfg.ProducerBatchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ProducerBatchTimeout must be positive, got: %s", cfg.ProducerBatchTimeout))
	}

	validCompressions := map[string]bool{
		"none": true, "gzip": true, "snappy": true, "lz4": true, "zstd": true,
	}
	if !validCompressions[cfg.ProducerCompression] {
		errors = append(errors, fmt.Sprintf("ProducerCompression must be one of [none, gzip, snappy, lz4, zstd], got: %s", cfg.ProducerCompression))
	}

	validAcks := map[int]bool{-1: true, 0: true, 1: true}
	if !validAcks[cfg.ProducerRequireAcks] {
		errors = append(errors, fmt.Sprintf("ProducerRequireAcks must be -1, 0, or 1, got: %d", cfg.ProducerRequireAcks))
	}

	if cfg.ConsumerStartOffset != -1 && cfg.ConsumerStartOffset != -2 && cfg.ConsumerStartOffset < 0 {
		errors = append(errors, fmt.Sprintf("ConsumerStartOffset must be -1 (newest), -2 (oldest), or >= 0, got: %d", cfg.ConsumerStartOffset))
	}

	if cfg.ConsumerMinBytes <= 0 {
		errors = append(errors, fmt.Sprintf("ConsumerMinBytes must be positive, got: %d", cfg.ConsumerMinBytes))
	}

	if cfg.ConsumerMaxBytes <= 0 {
		errors = append(errors, fmt.Sprintf("ConsumerMaxBytes must be positive, got: %d", cfg.ConsumerMaxBytes))
	}

	if cfg.ConsumerMaxWait <= 0 {
		errors = append(errors, fmt.Sprintf("ConsumerMaxWait must be positive, got: %s", cfg.ConsumerMaxWait))
	}

	if cfg.ConsumerCommitInterval < 0 {
		errors = append(errors, fmt.Sprintf("ConsumerCommitInterval cannot be negative, got: %s", cfg.ConsumerCommitInterval))
	}

	if cfg.ConsumerHeartbeatInterval <= 0 {
		errors = append(errors, fmt.Sprintf("ConsumerHeartbeatInterval must be positive, got: %s", cfg.ConsumerHeartbeatInterval))
	}

	if cfg.ConsumerSessionTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ConsumerSessionTimeout must be positive, got: %s", cfg.ConsumerSessionTimeout))
	}

	if cfg.ConsumerRebalanceTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ConsumerRebalanceTimeout must be positive, got: %s", cfg.ConsumerRebalanceTimeout))
	}

	if cfg.ConsumerMaxRetries < 0 {
		errors = append(errors, fmt.Sprintf("ConsumerMaxRetries cannot be negative, got: %d", cfg.ConsumerMaxRetries))
	}

	if cfg.ConsumerRetryBackoff <= 0 {
		errors = append(errors, fmt.Sprintf("ConsumerRetryBackoff must be positive, got: %s", cfg.ConsumerRetryBackoff))
	}

	if cfg.ConsumerMaxBackoff < cfg.ConsumerRetryBackoff {
		errors = append(errors, fmt.Sprintf("ConsumerMaxBackoff (%s) must be >= ConsumerRetryBackoff (%s)", cfg.ConsumerMaxBackoff, cfg.ConsumerRetryBackoff))
	}

	if cfg.ConsumerWorkers <= 0 {
		errors = append(errors, fmt.Sprintf("ConsumerWorkers must be positive, got: %d", cfg.ConsumerWorkers))
	}

	if cfg.MetricsInterval <= 0 {
		errors = append(errors, fmt.Sprintf("MetricsInterval must be positive, got: %s", cfg.MetricsInterval))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

// LogConfiguration logs the Kafka configuration (requires logger)
func (cfg *Config) LogConfiguration(logFunc func(msg string, keysAndValues ...any)) {
	if logFunc == nil {
		return
	}

	logFunc("Kafka configuration loaded successfully",
		"brokers", cfg.Brokers,
		"commit_topic", cfg.CommitTopic,
		"commit_dlq_topic", cfg.CommitDLQTopic,
		"commit_group_id", cfg.CommitGroupID,
		"compensation_group_id", cfg.CompensationGroupID,
		"producer_max_attempts", cfg.ProducerMaxAttempts,
		"producer_batch_timeout", cfg.ProducerBatchTimeout,
		"producer_require_acks", cfg.ProducerRequireAcks,
		"producer_compression", cfg.ProducerCompression,
		"consumer_start_offset", cfg.ConsumerStartOffset,
		"consumer_max_wait", cfg.ConsumerMaxWait,
		"consumer_commit_interval", cfg.ConsumerCommitInterval,
		"consumer_session_timeout", cfg.ConsumerSessionTimeout,
		"consumer_max_retries", cfg.ConsumerMaxRetries,
		"consumer_retry_backoff", cfg.ConsumerRetryBackoff,
		"consumer_max_backoff", cfg.ConsumerMaxBackoff,
		"consumer_workers", cfg.ConsumerWorkers,
		"enable_middleware", cfg.EnableMiddleware,
		"metrics_interval", cfg.MetricsInterval,
	)
}
