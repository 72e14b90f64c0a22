package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"innkeep/pkg/logger"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	idempotencyPrefix     = "idempotency:"
	idempotencyLockPrefix = "idempotency_lock:"
	maxIdempotencyKeyLen  = 255
)

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Set(ctx context.Context, key string, response *CachedResponse) error
	// Claim marks key as in flight. It reports false when another request holds it.
	Claim(ctx context.Context, key string) (bool, error)
	Unclaim(ctx context.Context, key string) error
}

type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
	Body       []byte      `json:"body"`
	CreatedAt  time.Time   `json:"created_at"`
}

// RedisIdempotencyStore keeps replayable responses in Redis so every API
// replica sees the same keys.
type RedisIdempotencyStore struct {
	rdb      *redis.Client
	ttl      time.Duration
	claimTTL time.Duration
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl, claimTTL time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{
		rdb:      rdb,
		ttl:      ttl,
		claimTTL: claimTTL,
	}
}

func (s *RedisIdempotencyStore) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	raw, err := s.rdb.Get(ctx, idempotencyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, err
	}
	return &cached, true, nil
}

func (s *RedisIdempotencyStore) Set(ctx context.Context, key string, response *CachedResponse) error {
	response.CreatedAt = time.Now().UTC()
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, idempotencyPrefix+key, raw, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, idempotencyLockPrefix+key, 1, s.claimTTL).Result()
}

func (s *RedisIdempotencyStore) Unclaim(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idempotencyLockPrefix+key).Err()
}

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated POST carrying the same
// key, and rejects a duplicate that arrives while the first is still running.
// Store outages fail open: the request is served without replay protection.
func Idempotency(store IdempotencyStore, headerName string, log *logger.Logger) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = "Idempotency-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(headerName)
			if r.Method != http.MethodPost || header == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(header) > maxIdempotencyKeyLen {
				writeErrorBody(w, http.StatusBadRequest, `{"error":"Idempotency key too long"}`)
				return
			}

			ctx := r.Context()
			key := r.Method + " " + r.URL.Path + ":" + header

			cached, found, err := store.Get(ctx, key)
			if err != nil {
				log.Warn("Idempotency lookup failed, serving without replay protection", "request_id", RequestIDFrom(ctx), "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if found {
				replayCachedResponse(w, cached)
				return
			}

			claimed, err := store.Claim(ctx, key)
			if err != nil {
				log.Warn("Idempotency claim failed, serving without replay protection", "request_id", RequestIDFrom(ctx), "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				writeErrorBody(w, http.StatusConflict, `{"error":"A request with this idempotency key is already in progress"}`)
				return
			}
			defer func() {
				if err := store.Unclaim(context.WithoutCancel(ctx), key); err != nil {
					log.Warn("Failed to release idempotency claim", "error", err)
				}
			}()

			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(capture, r)

			if !shouldCacheResponse(capture.statusCode) {
				return
			}
			response := &CachedResponse{
				StatusCode: capture.statusCode,
				Headers:    w.Header().Clone(),
				Body:       capture.body.Bytes(),
			}
			if err := store.Set(context.WithoutCancel(ctx), key, response); err != nil {
				log.Warn("Failed to store idempotent response", "request_id", RequestIDFrom(ctx), "error", err)
			}
		})
	}
}

func replayCachedResponse(w http.ResponseWriter, cached *CachedResponse) {
	for key, values := range cached.Headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(cached.StatusCode)
	_, _ = w.Write(cached.Body)
}

func shouldCacheResponse(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
