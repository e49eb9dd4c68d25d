package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown. It must respect
// the deadline on ctx.
type ShutdownFunc func(context.Context) error

type shutdownHook struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains the HTTP server on SIGINT/SIGTERM and then
// runs the registered hooks, all under a single deadline. The main
// server is drained first so in-flight checks complete before their
// cache and audit sinks close.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	hooks   []shutdownHook
	timeout time.Duration
	mu      sync.Mutex
}

func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// Register adds a named hook to run after the server drains.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, shutdownHook{name: name, fn: fn})
}

// WaitForShutdown blocks until a termination signal arrives, then
// performs the drain. It returns once everything released or the
// deadline passed.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.WithField("signal", sig.String()).Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("server drain failed")
			return fmt.Errorf("server shutdown: %w", err)
		}
		sm.logger.Info("server drained")
	}

	sm.mu.Lock()
	hooks := sm.hooks
	sm.mu.Unlock()

	var wg sync.WaitGroup
	errChan := make(chan error, len(hooks))
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook shutdownHook) {
			defer wg.Done()
			if err := hook.fn(ctx); err != nil {
				sm.logger.WithError(err).WithField("hook", hook.name).Error("shutdown hook failed")
				errChan <- fmt.Errorf("%s: %w", hook.name, err)
			}
		}(hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.logger.Warn("shutdown deadline reached")
		return fmt.Errorf("shutdown timeout after %s", sm.timeout)
	}

	close(errChan)
	var failed int
	for range errChan {
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d failed hooks", failed)
	}

	sm.logger.Info("graceful shutdown complete")
	return nil
}
