package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "innkeep"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultRedisAddr        = "localhost:6379"
	DefaultRedisCacheDB     = 0
	DefaultRedisQueueDB     = 1
	DefaultRedisConnTimeout = 2 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 5 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultRoomLockTTL  = 10 * time.Second
	DefaultRoomLockWait = 3 * time.Second

	DefaultPricingTimeZone = "UTC"

	DefaultSweepInterval       = 5 * time.Minute
	DefaultReleaseTaskMaxRetry = 10
	DefaultWorkerConcurrency   = 4

	DefaultPaginationLimit = 100
)
