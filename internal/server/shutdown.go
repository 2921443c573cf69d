package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ShutdownHandler runs ordered cleanup hooks on SIGINT/SIGTERM or on demand.
type ShutdownHandler struct {
	mu           sync.Mutex
	hooks        []ShutdownHook
	timeout      time.Duration
	signals      []os.Signal
	logger       *slog.Logger
	shutdownCh   chan struct{}
	doneCh       chan struct{}
	started      bool
	failed       []string
	shutdownOnce sync.Once
	doneOnce     sync.Once
}

// ShutdownHook is a function called during shutdown.
type ShutdownHook struct {
	Name     string
	Priority int // Lower priority runs first
	Fn       func(ctx context.Context) error
}

// ShutdownConfig configures the shutdown handler.
type ShutdownConfig struct {
	// Timeout for graceful shutdown (default: 30s)
	Timeout time.Duration
	// Signals to listen for (default: SIGTERM, SIGINT)
	Signals []os.Signal
	Logger  *slog.Logger
}

// DefaultShutdownConfig returns default configuration.
func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// NewShutdownHandler creates a new shutdown handler.
func NewShutdownHandler(config *ShutdownConfig) *ShutdownHandler {
	def := DefaultShutdownConfig()
	if config == nil {
		config = def
	}
	h := &ShutdownHandler{
		timeout:    config.Timeout,
		signals:    config.Signals,
		logger:     config.Logger,
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	if h.timeout <= 0 {
		h.timeout = def.Timeout
	}
	if len(h.signals) == 0 {
		h.signals = def.Signals
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// RegisterHook adds a shutdown hook. Hooks with equal priority run in
// registration order.
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.Register(ShutdownHook{Name: name, Priority: priority, Fn: fn})
}

// Register adds a prepared hook such as TemporalWorkerShutdownHook.
func (s *ShutdownHandler) Register(hook ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
	sort.SliceStable(s.hooks, func(i, j int) bool {
		return s.hooks[i].Priority < s.hooks[j].Priority
	})
}

// Start begins listening for shutdown signals.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, s.signals...)

	go func() {
		select {
		case sig := <-sigCh:
			signal.Stop(sigCh)
			s.logger.Info("shutdown signal received", "signal", sig.String())
			s.trigger()
		case <-s.shutdownCh:
			signal.Stop(sigCh)
		}
		s.shutdown()
	}()
}

// Shutdown triggers a manual shutdown. It is a no-op before Start.
func (s *ShutdownHandler) Shutdown() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.trigger()
	}
}

func (s *ShutdownHandler) trigger() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

// Wait blocks until shutdown is complete.
func (s *ShutdownHandler) Wait() {
	<-s.doneCh
}

// WaitWithTimeout blocks until shutdown is complete or timeout.
func (s *ShutdownHandler) WaitWithTimeout(timeout time.Duration) bool {
	select {
	case <-s.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns a channel that closes when shutdown is complete.
func (s *ShutdownHandler) Done() <-chan struct{} {
	return s.doneCh
}

// ShutdownCh returns a channel that closes when shutdown starts.
func (s *ShutdownHandler) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

// Failed lists the hooks that returned an error, in run order.
func (s *ShutdownHandler) Failed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.failed...)
}

func (s *ShutdownHandler) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]ShutdownHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	// A failing hook does not stop the rest.
	for _, hook := range hooks {
		if err := hook.Fn(ctx); err != nil {
			s.logger.Warn("shutdown hook failed", "hook", hook.Name, "error", err)
			s.mu.Lock()
			s.failed = append(s.failed, hook.Name)
			s.mu.Unlock()
		}
	}

	s.doneOnce.Do(func() {
		close(s.doneCh)
	})
}

// Common shutdown hooks

// HTTPServerShutdownHook stops an HTTP server before anything else.
func HTTPServerShutdownHook(name string, shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: name, Priority: 10, Fn: shutdownFn}
}

// TemporalWorkerShutdownHook stops the worker so in-flight scans finish.
func TemporalWorkerShutdownHook(stopFn func()) ShutdownHook {
	return ShutdownHook{
		Name:     "temporal-worker",
		Priority: 20,
		Fn: func(ctx context.Context) error {
			stopFn()
			return nil
		},
	}
}

// GraphStoreShutdownHook closes the graph repository after the worker stops.
func GraphStoreShutdownHook(closeFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "graph-store", Priority: 70, Fn: closeFn}
}

// TracingShutdownHook flushes pending spans.
func TracingShutdownHook(shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "tracing", Priority: 80, Fn: shutdownFn}
}

// AuditLoggerShutdownHook closes the audit log last so it sees every event.
func AuditLoggerShutdownHook(closeFn func() error) ShutdownHook {
	return ShutdownHook{
		Name:     "audit-logger",
		Priority: 95,
		Fn: func(ctx context.Context) error {
			return closeFn()
		},
	}
}

// WorkerServer combines health checks with shutdown handling.
type WorkerServer struct {
	Health   *HealthServer
	Shutdown *ShutdownHandler
}

// NewWorkerServer creates a health server whose readiness drops as soon as
// shutdown begins.
func NewWorkerServer(healthConfig *HealthConfig, shutdownConfig *ShutdownConfig) *WorkerServer {
	health := NewHealthServer(healthConfig)
	shutdown := NewShutdownHandler(shutdownConfig)

	shutdown.RegisterHook("health-server", 5, func(ctx context.Context) error {
		health.Shutdown()
		return nil
	})

	go func() {
		<-shutdown.ShutdownCh()
		health.SetReady(false)
	}()

	return &WorkerServer{Health: health, Shutdown: shutdown}
}

// Start serves health endpoints on addr and listens for signals. Serve
// errors are returned on the channel.
func (w *WorkerServer) Start(addr string) <-chan error {
	w.Shutdown.Start()

	errCh := make(chan error, 1)
	go func() {
		if err := w.Health.ListenAndServe(addr); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	w.Health.SetReady(true)
	return errCh
}

// Wait waits for shutdown to complete.
func (w *WorkerServer) Wait() {
	w.Shutdown.Wait()
}
