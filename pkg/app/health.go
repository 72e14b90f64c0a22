package app

import (
	"context"
	"net/http"
	"time"

	httputil "innkeep/pkg/http"
	"innkeep/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/mongo"
)

const readinessTimeout = 2 * time.Second

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Check is one dependency probed by /ready.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	checks []Check
	log    *logger.Logger
}

func NewHealthHandler(log *logger.Logger, checks ...Check) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		log:    log,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	resp := HealthResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	for _, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			h.log.Error("Dependency health check failed",
				"dependency", c.Name,
				"error", err,
				"path", r.URL.Path,
			)
			resp.Checks[c.Name] = "error"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

func MongoCheck(client *mongo.Client) Check {
	return Check{
		Name: "mongo",
		Ping: func(ctx context.Context) error { return client.Ping(ctx, nil) },
	}
}

func RedisCheck(rdb *redis.Client) Check {
	return Check{
		Name: "redis",
		Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
}
