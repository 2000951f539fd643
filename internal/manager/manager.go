// Package manager implements the session resource manager: a host-wide,
// file-backed registry of running agent sessions with configurable limits
// and automatic reaping of sessions whose process has died.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/loykin/sessiond/internal/config"
	"github.com/loykin/sessiond/internal/history"
	"github.com/loykin/sessiond/internal/logger"
	"github.com/loykin/sessiond/internal/metrics"
	"github.com/loykin/sessiond/internal/probe"
	"github.com/loykin/sessiond/internal/registry"
)

// Manager coordinates session registration across processes and threads.
// The internal mutex serializes threads of this process; independent
// processes are serialized by the registry store's file-locking protocol.
// Every mutating operation is a full load-prune-modify-write cycle so a
// crashed peer's entries self-heal and no registration is blindly
// overwritten.
type Manager struct {
	mu     sync.Mutex
	cfg    config.ResourceConfig
	store  *registry.Store
	prober probe.Prober
	log    *slog.Logger
	sinks  []history.Sink
	pid    int
}

// Options configures a Manager. Zero values select the documented defaults:
// registry under the OS temp dir, limits from the environment, the gopsutil
// system prober, and a stderr logger.
type Options struct {
	RegistryPath string
	Config       *config.ResourceConfig
	Prober       probe.Prober
	Logger       *slog.Logger
}

// New constructs a Manager. It fails when the limit configuration is invalid
// or when the registry path already exists as a symlink.
func New(opts Options) (*Manager, error) {
	cfg, err := resolveConfig(opts.Config)
	if err != nil {
		return nil, err
	}
	path := opts.RegistryPath
	if path == "" {
		path = config.DefaultRegistryPath()
	}
	st, err := registry.NewStore(path)
	if err != nil {
		return nil, err
	}
	pr := opts.Prober
	if pr == nil {
		pr = probe.System{}
	}
	lg := opts.Logger
	if lg == nil {
		lg = logger.Default()
	}
	return &Manager{cfg: cfg, store: st, prober: pr, log: lg, pid: os.Getpid()}, nil
}

func resolveConfig(c *config.ResourceConfig) (config.ResourceConfig, error) {
	if c == nil {
		return config.FromEnv()
	}
	// Re-validate explicit configs so a hand-built struct cannot bypass the
	// construction-time checks.
	return config.NewResourceConfig(c.MaxSessions, c.ProcessWarnThreshold, c.ProcessHardLimit)
}

// Config returns the immutable limit configuration.
func (m *Manager) Config() config.ResourceConfig { return m.cfg }

// RegistryPath returns the backing registry file path.
func (m *Manager) RegistryPath() string { return m.store.Path() }

// SetHistorySinks configures external event sinks (SQLite, PostgreSQL,
// ClickHouse). Passing no sinks clears the list.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.mu.Lock()
	m.sinks = append([]history.Sink(nil), sinks...)
	m.mu.Unlock()
}

// RegisterSession records a new session for repoPath owned by the calling
// process and returns its id. estimated <= 0 selects the default estimate.
// Registration is idempotent per (repoPath, pid): re-registering from the
// same process and workspace returns the existing id.
func (m *Manager) RegisterSession(repoPath string, estimated int) (string, error) {
	if strings.Contains(repoPath, "..") {
		metrics.IncRejected("path_traversal")
		return "", &PathTraversalError{Path: repoPath}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, loadErr := m.store.Load()
	if loadErr != nil {
		m.log.Warn("registry load degraded", "error", loadErr)
	}
	if _, err := m.reconcile(&reg); err != nil {
		return "", err
	}

	if existing := reg.FindByOwner(repoPath, m.pid); existing != nil {
		m.log.Debug("session already registered", "session_id", existing.SessionID, "repo_path", repoPath)
		return existing.SessionID, nil
	}

	if len(reg.Sessions) >= m.cfg.MaxSessions {
		metrics.IncRejected("session_limit")
		return "", &SessionLimitError{Active: len(reg.Sessions), Max: m.cfg.MaxSessions}
	}

	entry := registry.NewEntry(repoPath, m.pid, estimated)
	reg.Sessions = append(reg.Sessions, entry)
	if err := m.store.Save(&reg); err != nil {
		return "", err
	}

	metrics.IncRegistered()
	metrics.SetActiveSessions(len(reg.Sessions))
	m.emit(history.EventRegister, entry)
	m.log.Info("session registered", "session_id", entry.SessionID, "repo_path", repoPath, "pid", entry.PID)
	return entry.SessionID, nil
}

// UnregisterSession removes the entry with the given id. Removing an unknown
// id is not an error. The pass timestamp is refreshed and persisted either
// way so registry freshness stays observable.
func (m *Manager) UnregisterSession(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, loadErr := m.store.Load()
	if loadErr != nil {
		m.log.Warn("registry load degraded", "error", loadErr)
	}
	var removed *registry.SessionEntry
	if i := reg.FindByID(sessionID); i >= 0 {
		e := reg.Sessions[i]
		removed = &e
		reg.Sessions = append(reg.Sessions[:i], reg.Sessions[i+1:]...)
	}
	reg.LastCleanup = registry.Now()
	if err := m.store.Save(&reg); err != nil {
		return err
	}

	metrics.SetActiveSessions(len(reg.Sessions))
	if removed != nil {
		metrics.IncUnregistered()
		m.emit(history.EventUnregister, *removed)
		m.log.Info("session unregistered", "session_id", sessionID)
	}
	return nil
}

// CheckResourceLimits prunes stale sessions, samples the host process count,
// and returns a fresh snapshot. It returns a ProcessLimitError when the hard
// ceiling is breached; the caller must not proceed with the operation it was
// about to start. Soft conditions surface as warnings on the status instead.
func (m *Manager) CheckResourceLimits(operation string) (Status, error) {
	if operation == "" {
		operation = "general"
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, loadErr := m.store.Load()
	if loadErr != nil {
		m.log.Warn("registry load degraded", "error", loadErr)
	}
	if _, err := m.reconcile(&reg); err != nil {
		return Status{}, err
	}

	total := 0
	if n, err := m.prober.Total(); err == nil {
		total = n
	} else {
		m.log.Warn("process count probe unavailable", "error", err)
	}
	metrics.SetProcessesObserved(total)
	metrics.SetActiveSessions(len(reg.Sessions))

	if total >= m.cfg.ProcessHardLimit {
		metrics.IncRejected("process_limit")
		m.log.Error("process hard limit reached", "operation", operation, "total", total, "limit", m.cfg.ProcessHardLimit)
		return Status{}, &ProcessLimitError{Total: total, Limit: m.cfg.ProcessHardLimit}
	}

	st := Status{
		ActiveSessions:       len(reg.Sessions),
		MaxSessions:          m.cfg.MaxSessions,
		TotalProcesses:       total,
		ProcessWarnThreshold: m.cfg.ProcessWarnThreshold,
		ProcessHardLimit:     m.cfg.ProcessHardLimit,
		Sessions:             append([]registry.SessionEntry(nil), reg.Sessions...),
	}
	if loadErr != nil {
		st.Warnings = append(st.Warnings, fmt.Sprintf("registry read degraded: %v", loadErr))
	}
	if total >= m.cfg.ProcessWarnThreshold {
		st.Warnings = append(st.Warnings,
			fmt.Sprintf("process count %d at or above warning threshold %d", total, m.cfg.ProcessWarnThreshold))
	}
	if len(reg.Sessions) >= m.cfg.MaxSessions {
		st.Warnings = append(st.Warnings,
			fmt.Sprintf("session capacity reached: %d of %d", len(reg.Sessions), m.cfg.MaxSessions))
	}
	return st, nil
}

// CleanupStaleSessions forces a reconciliation pass and returns how many
// entries were removed.
func (m *Manager) CleanupStaleSessions() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, loadErr := m.store.Load()
	if loadErr != nil {
		m.log.Warn("registry load degraded", "error", loadErr)
	}
	removed, err := m.reconcile(&reg)
	if err != nil {
		return removed, err
	}
	metrics.SetActiveSessions(len(reg.Sessions))
	return removed, nil
}

// ResourceStatus is the non-throwing variant of CheckResourceLimits for
// monitoring callers that must never crash. Any internal failure, including
// a tripped hard limit, degrades to a best-effort status carrying a warning.
func (m *Manager) ResourceStatus() Status {
	st, err := m.CheckResourceLimits("status")
	if err == nil {
		return st
	}
	degraded := Status{
		MaxSessions:          m.cfg.MaxSessions,
		ProcessWarnThreshold: m.cfg.ProcessWarnThreshold,
		ProcessHardLimit:     m.cfg.ProcessHardLimit,
		Warnings:             []string{fmt.Sprintf("status degraded: %v", err)},
	}
	return degraded
}

// reconcile drops entries whose process is no longer alive. An entry owned
// by this process's own pid is always kept, so a session can never evict
// itself mid-flight. The pass timestamp is refreshed on every run; the
// registry is persisted when entries were removed, or when it was already
// empty so last_cleanup freshness stays observable with zero sessions.
func (m *Manager) reconcile(reg *registry.Registry) (int, error) {
	wasEmpty := len(reg.Sessions) == 0

	kept := reg.Sessions[:0]
	var reaped []registry.SessionEntry
	for _, e := range reg.Sessions {
		if e.PID == m.pid || m.prober.Alive(e.PID) {
			kept = append(kept, e)
			continue
		}
		reaped = append(reaped, e)
	}
	reg.Sessions = kept
	reg.LastCleanup = registry.Now()

	if len(reaped) > 0 || wasEmpty {
		if err := m.store.Save(reg); err != nil {
			return len(reaped), err
		}
	}

	if len(reaped) > 0 {
		metrics.AddReaped(len(reaped))
		for _, e := range reaped {
			m.emit(history.EventReap, e)
			m.log.Info("stale session reaped", "session_id", e.SessionID, "pid", e.PID)
		}
	}
	return len(reaped), nil
}

// emit fans an event out to the configured sinks. Sink failures are logged
// and otherwise ignored; history is advisory.
func (m *Manager) emit(t history.EventType, e registry.SessionEntry) {
	if len(m.sinks) == 0 {
		return
	}
	evt := history.Event{Type: t, OccurredAt: time.Now().UTC(), Session: e}
	for _, s := range m.sinks {
		if err := s.Send(context.Background(), evt); err != nil {
			m.log.Warn("history sink send failed", "event", string(t), "error", err)
		}
	}
}
