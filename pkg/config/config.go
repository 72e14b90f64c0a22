package config

import (
	"fmt"
	"innkeep/pkg/client"
	"innkeep/pkg/logger"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr        string
	RedisPassword    string
	RedisCacheDB     int
	RedisQueueDB     int
	RedisConnTimeout time.Duration

	Port string

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RoomLockTTL  time.Duration
	RoomLockWait time.Duration

	PricingTimeZone string
	PricingLocation *time.Location

	SweepInterval       time.Duration
	ReleaseTaskMaxRetry int
	WorkerConcurrency   int

	Log    *logger.Logger
	Client *client.Client
}

// Load reads configuration from the environment (and CONFIG_FILE when set),
// validates it and logs the effective values. Invalid configuration is fatal.
func Load(serviceName string) *Config {
	v := newViper()

	cfg := FromViper(v)
	cfg.Log = logger.New(logger.Config{
		Level:     v.GetString(EnvLogLevel),
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})
	cfg.Client = client.NewClient()

	if file := v.GetString(EnvConfigFile); file != "" {
		cfg.Log.Info("Configuration file loaded", "path", file)
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(EnvMongoURI, DefaultMongoURI)
	v.SetDefault(EnvMongoDatabaseName, DefaultMongoDatabaseName)
	v.SetDefault(EnvMongoConnTimeout, DefaultMongoConnTimeout)

	v.SetDefault(EnvRedisAddr, DefaultRedisAddr)
	v.SetDefault(EnvRedisPassword, "")
	v.SetDefault(EnvRedisCacheDB, DefaultRedisCacheDB)
	v.SetDefault(EnvRedisQueueDB, DefaultRedisQueueDB)
	v.SetDefault(EnvRedisConnTimeout, DefaultRedisConnTimeout)

	v.SetDefault(EnvPort, DefaultPort)
	v.SetDefault(EnvLogLevel, DefaultLogLevel)

	v.SetDefault(EnvRequestTimeout, DefaultRequestTimeout)
	v.SetDefault(EnvIdempotencyTTL, DefaultIdempotencyTTL)
	v.SetDefault(EnvMaxRequestSize, DefaultMaxRequestSize)

	v.SetDefault(EnvReadTimeout, DefaultReadTimeout)
	v.SetDefault(EnvWriteTimeout, DefaultWriteTimeout)
	v.SetDefault(EnvIdleTimeout, DefaultIdleTimeout)
	v.SetDefault(EnvShutdownTimeout, DefaultShutdownTimeout)

	v.SetDefault(EnvRoomLockTTL, DefaultRoomLockTTL)
	v.SetDefault(EnvRoomLockWait, DefaultRoomLockWait)

	v.SetDefault(EnvPricingTimeZone, DefaultPricingTimeZone)

	v.SetDefault(EnvSweepInterval, DefaultSweepInterval)
	v.SetDefault(EnvReleaseTaskMaxRetry, DefaultReleaseTaskMaxRetry)
	v.SetDefault(EnvWorkerConcurrency, DefaultWorkerConcurrency)

	if file := v.GetString(EnvConfigFile); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			panic(fmt.Sprintf("failed to read config file %s: %v", file, err))
		}
	}

	return v
}

// FromViper builds a Config from an already-populated viper instance.
// Logger and clients are left for the caller to attach.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		MongoURI:          v.GetString(EnvMongoURI),
		MongoDatabaseName: v.GetString(EnvMongoDatabaseName),
		MongoConnTimeout:  v.GetDuration(EnvMongoConnTimeout),

		RedisAddr:        v.GetString(EnvRedisAddr),
		RedisPassword:    v.GetString(EnvRedisPassword),
		RedisCacheDB:     v.GetInt(EnvRedisCacheDB),
		RedisQueueDB:     v.GetInt(EnvRedisQueueDB),
		RedisConnTimeout: v.GetDuration(EnvRedisConnTimeout),

		Port: v.GetString(EnvPort),

		RequestTimeout: v.GetDuration(EnvRequestTimeout),
		IdempotencyTTL: v.GetDuration(EnvIdempotencyTTL),
		MaxRequestSize: v.GetInt(EnvMaxRequestSize),

		ReadTimeout:     v.GetDuration(EnvReadTimeout),
		WriteTimeout:    v.GetDuration(EnvWriteTimeout),
		IdleTimeout:     v.GetDuration(EnvIdleTimeout),
		ShutdownTimeout: v.GetDuration(EnvShutdownTimeout),

		RoomLockTTL:  v.GetDuration(EnvRoomLockTTL),
		RoomLockWait: v.GetDuration(EnvRoomLockWait),

		PricingTimeZone: v.GetString(EnvPricingTimeZone),

		SweepInterval:       v.GetDuration(EnvSweepInterval),
		ReleaseTaskMaxRetry: v.GetInt(EnvReleaseTaskMaxRetry),
		WorkerConcurrency:   v.GetInt(EnvWorkerConcurrency),
	}

	if loc, err := time.LoadLocation(cfg.PricingTimeZone); err == nil {
		cfg.PricingLocation = loc
	}
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisCacheDB, cfg.RedisConnTimeout)
}

func (cfg *Config) SetQueue() {
	cfg.Client.SetQueue(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisQueueDB)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
	}
	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}
	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}

	if cfg.RedisAddr == "" {
		errors = append(errors, "RedisAddr cannot be empty")
	}
	if cfg.RedisCacheDB < 0 || cfg.RedisQueueDB < 0 {
		errors = append(errors, fmt.Sprintf("Redis DB numbers cannot be negative, got cache=%d queue=%d", cfg.RedisCacheDB, cfg.RedisQueueDB))
	}
	if cfg.RedisCacheDB == cfg.RedisQueueDB {
		errors = append(errors, fmt.Sprintf("RedisCacheDB and RedisQueueDB must differ, both are %d", cfg.RedisCacheDB))
	}
	if cfg.RedisConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RedisConnTimeout must be positive, got: %s", cfg.RedisConnTimeout))
	}

	for name, d := range map[string]time.Duration{
		"RequestTimeout":  cfg.RequestTimeout,
		"IdempotencyTTL":  cfg.IdempotencyTTL,
		"ReadTimeout":     cfg.ReadTimeout,
		"WriteTimeout":    cfg.WriteTimeout,
		"IdleTimeout":     cfg.IdleTimeout,
		"ShutdownTimeout": cfg.ShutdownTimeout,
		"RoomLockTTL":     cfg.RoomLockTTL,
		"RoomLockWait":    cfg.RoomLockWait,
		"SweepInterval":   cfg.SweepInterval,
	} {
		if d <= 0 {
			errors = append(errors, fmt.Sprintf("%s must be positive, got: %s", name, d))
		}
	}

	if cfg.RoomLockWait > cfg.RoomLockTTL {
		errors = append(errors, fmt.Sprintf("RoomLockWait (%s) must not exceed RoomLockTTL (%s)", cfg.RoomLockWait, cfg.RoomLockTTL))
	}
	// Store reads run while the room is locked.
	if cfg.ReadTimeout >= cfg.RoomLockTTL {
		errors = append(errors, fmt.Sprintf("ReadTimeout (%s) must be shorter than RoomLockTTL (%s)", cfg.ReadTimeout, cfg.RoomLockTTL))
	}

	if cfg.PricingLocation == nil {
		errors = append(errors, fmt.Sprintf("PricingTimeZone must be a valid IANA zone, got: %s", cfg.PricingTimeZone))
	}

	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReleaseTaskMaxRetry < 0 {
		errors = append(errors, fmt.Sprintf("ReleaseTaskMaxRetry cannot be negative, got: %d", cfg.ReleaseTaskMaxRetry))
	}
	if cfg.WorkerConcurrency <= 0 {
		errors = append(errors, fmt.Sprintf("WorkerConcurrency must be positive, got: %d", cfg.WorkerConcurrency))
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

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_addr", cfg.RedisAddr,
		"redis_password_set", cfg.RedisPassword != "",
		"redis_cache_db", cfg.RedisCacheDB,
		"redis_queue_db", cfg.RedisQueueDB,
		"port", cfg.Port,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"room_lock_ttl", cfg.RoomLockTTL,
		"room_lock_wait", cfg.RoomLockWait,
		"pricing_time_zone", cfg.PricingTimeZone,
		"sweep_interval", cfg.SweepInterval,
		"release_task_max_retry", cfg.ReleaseTaskMaxRetry,
		"worker_concurrency", cfg.WorkerConcurrency,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log)
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
