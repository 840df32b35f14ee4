package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/psantana5/edgecap/pkg/logging"
)

// Manager runs registered cleanup functions once, newest first
type Manager struct {
	mu      sync.Mutex
	funcs   []namedFunc
	timeout time.Duration
	logger  *logging.Logger
	done    chan struct{}
	once    sync.Once
	ran     bool
}

type namedFunc struct {
	name string
	fn   func(context.Context) error
}

// New creates a manager whose cleanup gets timeout in total
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup function. Functions run in reverse order (LIFO).
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, namedFunc{name: name, fn: fn})
}

// Done is closed once shutdown has been triggered
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Trigger starts shutdown without a signal
func (m *Manager) Trigger() {
	m.once.Do(func() { close(m.done) })
}

// Wait blocks until SIGINT/SIGTERM, ctx is cancelled or Trigger is called,
// then runs the cleanup functions
func (m *Manager) Wait(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		m.logger.Info("Received signal, shutting down", map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
		m.logger.Info("Context cancelled, shutting down")
	case <-m.done:
		m.logger.Info("Shutdown requested")
	}

	m.Trigger()
	return m.Shutdown()
}

// Shutdown runs every registered function within the timeout and returns
// the first error. Later calls do nothing.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ran {
		return nil
	}
	m.ran = true
	m.Trigger()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var first error
	for i := len(m.funcs) - 1; i >= 0; i-- {
		f := m.funcs[i]
		if err := f.fn(ctx); err != nil {
			m.logger.Error("Shutdown step failed", map[string]interface{}{
				"step":  f.name,
				"error": err.Error(),
			})
			if first == nil {
				first = fmt.Errorf("%s: %w", f.name, err)
			}
			continue
		}
		m.logger.Debug("Shutdown step complete", map[string]interface{}{"step": f.name})
	}

	m.logger.Info("Graceful shutdown complete")
	return first
}

// StopHTTPServer adapts an http.Server to a cleanup function
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// CloseResource adapts an io.Closer to a cleanup function
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
