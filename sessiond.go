// Package sessiond tracks concurrently running agent sessions across
// independent processes and enforces configurable resource limits. The
// shared state is a single JSON registry file protected by advisory file
// locking and atomic replacement, so any number of embedding processes can
// cooperate without a database.
package sessiond

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loykin/sessiond/internal/config"
	"github.com/loykin/sessiond/internal/history"
	"github.com/loykin/sessiond/internal/logger"
	"github.com/loykin/sessiond/internal/manager"
	"github.com/loykin/sessiond/internal/metrics"
	"github.com/loykin/sessiond/internal/probe"
	"github.com/loykin/sessiond/internal/registry"
	iapi "github.com/loykin/sessiond/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type ResourceConfig = config.ResourceConfig

type SessionEntry = registry.SessionEntry

type Status = manager.Status

type Options = manager.Options

type HistorySink = history.Sink

// Error types callers are expected to match with errors.As.

type SessionLimitError = manager.SessionLimitError

type ProcessLimitError = manager.ProcessLimitError

type PathTraversalError = manager.PathTraversalError

type PersistError = registry.PersistError

// Prober is the process-liveness capability; supply a fake in tests.
type Prober = probe.Prober

// LogConfig configures the application logger.
type LogConfig = logger.Config

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

// New constructs a manager with defaults: registry in the OS temp dir,
// limits from the RESOURCE_* environment variables, the system prober.
func New() (*Manager, error) { return NewWithOptions(Options{}) }

// NewWithOptions constructs a manager with explicit options.
func NewWithOptions(o Options) (*Manager, error) {
	m, err := manager.New(o)
	if err != nil {
		return nil, err
	}
	return &Manager{inner: m}, nil
}

func (m *Manager) RegisterSession(repoPath string, estimated int) (string, error) {
	return m.inner.RegisterSession(repoPath, estimated)
}
func (m *Manager) UnregisterSession(id string) error { return m.inner.UnregisterSession(id) }
func (m *Manager) CheckResourceLimits(operation string) (Status, error) {
	return m.inner.CheckResourceLimits(operation)
}
func (m *Manager) CleanupStaleSessions() (int, error) { return m.inner.CleanupStaleSessions() }
func (m *Manager) ResourceStatus() Status             { return m.inner.ResourceStatus() }
func (m *Manager) Config() ResourceConfig             { return m.inner.Config() }
func (m *Manager) RegistryPath() string               { return m.inner.RegistryPath() }
func (m *Manager) SetHistorySinks(sinks ...HistorySink) {
	m.inner.SetHistorySinks(sinks...)
}

// ConfigFromEnv loads and validates limits from the environment.
func ConfigFromEnv() (ResourceConfig, error) { return config.FromEnv() }

// DefaultRegistryPath returns the well-known registry file location.
func DefaultRegistryPath() string { return config.DefaultRegistryPath() }

// NewHTTPServer starts an HTTP server exposing the manager API.
func NewHTTPServer(addr, basePath string, m *Manager) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, m.inner)
}

// NewLogger builds an slog logger from cfg. The closer releases the
// rotating file writer when one was opened.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer, error) { return logger.New(cfg) }

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
