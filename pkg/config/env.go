package config

const (
	EnvConfigFile = "CONFIG_FILE"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisPassword    = "REDIS_PASSWORD"
	EnvRedisCacheDB     = "REDIS_CACHE_DB"
	EnvRedisQueueDB     = "REDIS_QUEUE_DB"
	EnvRedisConnTimeout = "REDIS_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvRoomLockTTL  = "ROOM_LOCK_TTL"
	EnvRoomLockWait = "ROOM_LOCK_WAIT"

	EnvPricingTimeZone = "PRICING_TIME_ZONE"

	EnvSweepInterval       = "SWEEP_INTERVAL"
	EnvReleaseTaskMaxRetry = "RELEASE_TASK_MAX_RETRY"
	EnvWorkerConcurrency   = "WORKER_CONCURRENCY"
)
