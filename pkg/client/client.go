package client

import (
	"context"
	"innkeep/pkg/logger"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const disconnectTimeout = 10 * time.Second

type Client struct {
	Mongo *mongo.Client
	Redis *redis.Client
	Queue *asynq.Client

	// QueueOpt is kept so workers and schedulers can share the queue connection settings.
	QueueOpt asynq.RedisClientOpt
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) SetMongo(log *logger.Logger, mongoURI string, mongoConnTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoConnTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB", "error", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB", "error", err)
	}

	log.Info("Successfully connected to MongoDB")
	c.Mongo = client
}

func (c *Client) SetRedis(log *logger.Logger, addr, password string, db int, connTimeout time.Duration) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: connTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to ping Redis", "error", err, "addr", addr)
	}

	log.Info("Successfully connected to Redis", "addr", addr, "db", db)
	c.Redis = rdb
}

func (c *Client) SetQueue(log *logger.Logger, addr, password string, db int) {
	c.QueueOpt = asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
	c.Queue = asynq.NewClient(c.QueueOpt)
	log.Info("Task queue client configured", "addr", addr, "db", db)
}

func (c *Client) GracefulShutdown(log *logger.Logger) {
	if c.Queue != nil {
		if err := c.Queue.Close(); err != nil {
			log.Error("Failed to close task queue client", "error", err)
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Error("Failed to close Redis client", "error", err)
		}
	}

	if c.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
		defer cancel()
		if err := c.Mongo.Disconnect(ctx); err != nil {
			log.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}

	log.Info("Clients closed")
}
