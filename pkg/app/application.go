package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"innkeep/pkg/config"
	"innkeep/pkg/middleware"

	"github.com/julienschmidt/httprouter"
)

type Handler interface {
	RegisterRoutes(*httprouter.Router)
}

// Runner is a background loop that lives as long as the application. It must
// return once ctx is cancelled.
type Runner func(ctx context.Context) error

type namedRunner struct {
	name string
	run  Runner
}

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

type Application struct {
	cfg            *config.Config
	server         *http.Server
	healthHandler  http.Handler
	appHttpHandler http.Handler
	runners        []namedRunner
	hooks          []shutdownHook
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// SetApp wires the public API behind the full middleware stack.
func (a *Application) SetApp(appHandler Handler, checks ...Check) {
	a.setHealthHandler(checks)
	a.setAppHandler(appHandler)
	a.setAppServer()
}

// SetHealthOnly is for worker processes that expose nothing but probes.
func (a *Application) SetHealthOnly(checks ...Check) {
	a.setHealthHandler(checks)
	a.setAppServer()
}

func (a *Application) AddRunner(name string, run Runner) {
	a.runners = append(a.runners, namedRunner{name: name, run: run})
}

// OnShutdown registers cleanup that runs after the server and runners stopped,
// in reverse registration order.
func (a *Application) OnShutdown(name string, fn func(ctx context.Context) error) {
	a.hooks = append(a.hooks, shutdownHook{name: name, fn: fn})
}

func (a *Application) setHealthHandler(checks []Check) {
	healthRouter := httprouter.New()
	NewHealthHandler(a.cfg.Log, checks...).RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

func (a *Application) setAppHandler(appHandler Handler) {
	appRouter := httprouter.New()
	appHandler.RegisterRoutes(appRouter)

	idempotencyStore := middleware.NewRedisIdempotencyStore(a.cfg.Client.Redis, a.cfg.IdempotencyTTL, 2*a.cfg.RequestTimeout)

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(idempotencyStore, "Idempotency-Key", a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) setAppServer() {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	if a.appHttpHandler != nil {
		mux.Handle("/", a.appHttpHandler)
	}

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      mux,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

// Run blocks until a shutdown signal, a server failure or a runner failure.
func (a *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrors := make(chan error, 1)
	runnerErrors := make(chan error, len(a.runners))

	var wg sync.WaitGroup
	for _, r := range a.runners {
		wg.Add(1)
		go func(r namedRunner) {
			defer wg.Done()
			a.cfg.Log.Info("Starting background runner", "runner", r.name)
			err := r.run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.cfg.Log.Error("Background runner stopped", "runner", r.name, "error", err)
				runnerErrors <- err
				return
			}
			a.cfg.Log.Info("Background runner stopped", "runner", r.name)
		}(r)
	}

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			a.cfg.Log.Error("HTTP server failed", "error", err)
		}
	case err := <-runnerErrors:
		a.cfg.Log.Error("Shutting down after runner failure", "error", err)
	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
	}

	cancel()
	a.gracefulShutdown(&wg)
}

func (a *Application) gracefulShutdown(runners *sync.WaitGroup) {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server gracefully", "error", err)
		}
	}

	a.cfg.Log.Info("Stopping background runners...")
	stopped := make(chan struct{})
	go func() {
		runners.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		a.cfg.Log.Info("Background runners stopped")
	case <-ctx.Done():
		a.cfg.Log.Warn("Background runners did not stop before the shutdown timeout")
	}

	for i := len(a.hooks) - 1; i >= 0; i-- {
		h := a.hooks[i]
		if err := h.fn(context.WithoutCancel(ctx)); err != nil {
			a.cfg.Log.Error("Shutdown hook failed", "hook", h.name, "error", err)
		}
	}

	a.cfg.GracefulShutdown()
	a.cfg.Log.Info("Server stopped gracefully")
}
