package manager

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/loykin/sessiond/internal/config"
	"github.com/loykin/sessiond/internal/registry"
)

// fakeProber gives tests full control over liveness answers.
type fakeProber struct {
	alive    map[int]bool
	total    int
	totalErr error
}

func (f *fakeProber) Alive(pid int) bool { return f.alive[pid] }

func (f *fakeProber) Total() (int, error) {
	if f.totalErr != nil {
		return 0, f.totalErr
	}
	return f.total, nil
}

func testManager(t *testing.T, cfg config.ResourceConfig, pr *fakeProber) *Manager {
	t.Helper()
	if pr.alive == nil {
		pr.alive = make(map[int]bool)
	}
	m, err := New(Options{
		RegistryPath: filepath.Join(t.TempDir(), "sessions.lock"),
		Config:       &cfg,
		Prober:       pr,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func defaultCfg() config.ResourceConfig {
	c, _ := config.NewResourceConfig(3, 1500, 2000)
	return c
}

func TestRegisterReturnsWellFormedID(t *testing.T) {
	m := testManager(t, defaultCfg(), &fakeProber{total: 10})
	id, err := m.RegisterSession("/tmp/demo", 0)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !regexp.MustCompile(`^session-\d{8}-\d{6}-[0-9a-f]{6}$`).MatchString(id) {
		t.Fatalf("bad id %q", id)
	}
	reg := loadRegistry(t, m)
	if len(reg.Sessions) != 1 {
		t.Fatalf("want 1 entry, got %d", len(reg.Sessions))
	}
	if reg.Sessions[0].EstimatedProcesses != registry.DefaultEstimatedProcesses {
		t.Fatalf("want default estimate, got %d", reg.Sessions[0].EstimatedProcesses)
	}
	if reg.Sessions[0].PID != os.Getpid() {
		t.Fatalf("entry pid %d != own pid", reg.Sessions[0].PID)
	}
}

func TestRegisterDedupSameOwner(t *testing.T) {
	m := testManager(t, defaultCfg(), &fakeProber{total: 10})
	id1, err := m.RegisterSession("/tmp/demo", 15)
	if err != nil {
		t.Fatalf("first register: %v", err)
	}
	id2, err := m.RegisterSession("/tmp/demo", 15)
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("dedup broken: %q vs %q", id1, id2)
	}
	if n := len(loadRegistry(t, m).Sessions); n != 1 {
		t.Fatalf("registry grew to %d entries", n)
	}
}

func TestRegisterCapacityEnforced(t *testing.T) {
	cfg, _ := config.NewResourceConfig(2, 1500, 2000)
	pr := &fakeProber{total: 10, alive: map[int]bool{9001: true, 9002: true}}
	m := testManager(t, cfg, pr)

	// Seed two live foreign sessions.
	seed := registry.Registry{Sessions: []registry.SessionEntry{
		registry.NewEntry("/repo/1", 9001, 15),
		registry.NewEntry("/repo/2", 9002, 15),
	}}
	saveRegistry(t, m, &seed)

	_, err := m.RegisterSession("/repo/3", 15)
	if err == nil {
		t.Fatalf("expected session limit error")
	}
	var sle *SessionLimitError
	if !errors.As(err, &sle) {
		t.Fatalf("want SessionLimitError, got %T: %v", err, err)
	}
	if sle.Active != 2 || sle.Max != 2 {
		t.Fatalf("unexpected counts: %+v", sle)
	}
	if n := len(loadRegistry(t, m).Sessions); n != 2 {
		t.Fatalf("registry should still have 2 entries, got %d", n)
	}
}

func TestRegisterRejectsPathTraversal(t *testing.T) {
	m := testManager(t, defaultCfg(), &fakeProber{total: 10})
	_, err := m.RegisterSession("../../etc", 15)
	if err == nil {
		t.Fatalf("expected rejection")
	}
	var pte *PathTraversalError
	if !errors.As(err, &pte) {
		t.Fatalf("want PathTraversalError, got %T", err)
	}
	if _, statErr := os.Stat(m.RegistryPath()); !os.IsNotExist(statErr) {
		t.Fatalf("registry must not be written on rejected input")
	}
}

func TestUnregisterIdempotent(t *testing.T) {
	m := testManager(t, defaultCfg(), &fakeProber{total: 10})
	id, err := m.RegisterSession("/tmp/demo", 15)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.UnregisterSession(id); err != nil {
		t.Fatalf("first unregister: %v", err)
	}
	if err := m.UnregisterSession(id); err != nil {
		t.Fatalf("second unregister must not error: %v", err)
	}
	reg := loadRegistry(t, m)
	if len(reg.Sessions) != 0 {
		t.Fatalf("want empty registry, got %d entries", len(reg.Sessions))
	}
	if reg.LastCleanup == "" {
		t.Fatalf("unregister must refresh last_cleanup")
	}
}

func TestCleanupReapsStaleSessions(t *testing.T) {
	pr := &fakeProber{total: 10, alive: map[int]bool{9001: true}}
	m := testManager(t, defaultCfg(), pr)
	seed := registry.Registry{Sessions: []registry.SessionEntry{
		registry.NewEntry("/x", 999999999, 15), // dead
		registry.NewEntry("/y", 9001, 15),      // alive
	}}
	saveRegistry(t, m, &seed)

	removed, err := m.CleanupStaleSessions()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("want 1 removed, got %d", removed)
	}
	reg := loadRegistry(t, m)
	if len(reg.Sessions) != 1 || reg.Sessions[0].RepoPath != "/y" {
		t.Fatalf("wrong survivor set: %+v", reg.Sessions)
	}
}

func TestSelfPidNeverReaped(t *testing.T) {
	// Prober says everything is dead, including our own pid.
	pr := &fakeProber{total: 10}
	m := testManager(t, defaultCfg(), pr)
	seed := registry.Registry{Sessions: []registry.SessionEntry{
		registry.NewEntry("/self", os.Getpid(), 15),
	}}
	saveRegistry(t, m, &seed)

	removed, err := m.CleanupStaleSessions()
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 0 {
		t.Fatalf("own entry was reaped")
	}
	if n := len(loadRegistry(t, m).Sessions); n != 1 {
		t.Fatalf("own entry missing from registry")
	}
}

func TestCheckHardLimitFatal(t *testing.T) {
	cfg, _ := config.NewResourceConfig(3, 0, 1)
	m := testManager(t, cfg, &fakeProber{total: 5})
	_, err := m.CheckResourceLimits("heavy")
	if err == nil {
		t.Fatalf("expected process limit error")
	}
	var ple *ProcessLimitError
	if !errors.As(err, &ple) {
		t.Fatalf("want ProcessLimitError, got %T: %v", err, err)
	}
	if ple.Total != 5 || ple.Limit != 1 {
		t.Fatalf("unexpected counts: %+v", ple)
	}
}

func TestCheckWarnThreshold(t *testing.T) {
	cfg, _ := config.NewResourceConfig(3, 4, 100)
	m := testManager(t, cfg, &fakeProber{total: 5})
	st, err := m.CheckResourceLimits("")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(st.Warnings) != 1 {
		t.Fatalf("want 1 warning, got %v", st.Warnings)
	}
	if st.TotalProcesses != 5 || st.ActiveSessions != 0 {
		t.Fatalf("bad snapshot: %+v", st)
	}
}

func TestCheckCapacityWarningNonFatal(t *testing.T) {
	cfg, _ := config.NewResourceConfig(1, 1500, 2000)
	m := testManager(t, cfg, &fakeProber{total: 10})
	if _, err := m.RegisterSession("/tmp/demo", 15); err != nil {
		t.Fatalf("register: %v", err)
	}
	st, err := m.CheckResourceLimits("general")
	if err != nil {
		t.Fatalf("check must not fail at session capacity: %v", err)
	}
	if len(st.Warnings) != 1 {
		t.Fatalf("want capacity warning, got %v", st.Warnings)
	}
}

func TestCheckProbeUnavailableDegrades(t *testing.T) {
	m := testManager(t, defaultCfg(), &fakeProber{totalErr: errors.New("no procfs")})
	st, err := m.CheckResourceLimits("general")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if st.TotalProcesses != 0 {
		t.Fatalf("want 0 processes on probe failure, got %d", st.TotalProcesses)
	}
}

func TestCheckTriggersReconcile(t *testing.T) {
	pr := &fakeProber{total: 10}
	m := testManager(t, defaultCfg(), pr)
	seed := registry.Registry{Sessions: []registry.SessionEntry{
		registry.NewEntry("/x", 999999999, 15),
	}}
	saveRegistry(t, m, &seed)

	st, err := m.CheckResourceLimits("general")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if st.ActiveSessions != 0 || len(st.Sessions) != 0 {
		t.Fatalf("stale entry not pruned: %+v", st)
	}
	if n := len(loadRegistry(t, m).Sessions); n != 0 {
		t.Fatalf("prune not persisted")
	}
}

func TestReconcileRefreshesLastCleanupWhenEmpty(t *testing.T) {
	m := testManager(t, defaultCfg(), &fakeProber{total: 10})
	if _, err := m.CleanupStaleSessions(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	reg := loadRegistry(t, m)
	if reg.LastCleanup == "" {
		t.Fatalf("last_cleanup must be persisted even for an empty registry")
	}
}

func TestResourceStatusNeverThrows(t *testing.T) {
	cfg, _ := config.NewResourceConfig(3, 0, 1)
	m := testManager(t, cfg, &fakeProber{total: 5})
	st := m.ResourceStatus()
	if len(st.Warnings) == 0 {
		t.Fatalf("degraded status must carry a warning")
	}
	if st.MaxSessions != 3 || st.ProcessHardLimit != 1 {
		t.Fatalf("limits missing from degraded status: %+v", st)
	}
}

func TestResourceStatusWithCorruptRegistry(t *testing.T) {
	m := testManager(t, defaultCfg(), &fakeProber{total: 10})
	if err := os.WriteFile(m.RegistryPath(), []byte("{broken"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	st := m.ResourceStatus()
	if st.ActiveSessions != 0 {
		t.Fatalf("corrupt registry must read as empty: %+v", st)
	}
	found := false
	for _, w := range st.Warnings {
		if strings.Contains(w, "registry read degraded") {
			found = true
		}
	}
	if !found {
		t.Fatalf("corruption must surface as a status warning, got %v", st.Warnings)
	}
	// The degraded pass rewrote the file, so the next status is clean.
	st = m.ResourceStatus()
	if len(st.Warnings) != 0 {
		t.Fatalf("warnings should clear once the registry is rewritten: %v", st.Warnings)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	bad := config.ResourceConfig{MaxSessions: 0, ProcessWarnThreshold: 10, ProcessHardLimit: 20}
	_, err := New(Options{
		RegistryPath: filepath.Join(t.TempDir(), "sessions.lock"),
		Config:       &bad,
	})
	if err == nil {
		t.Fatalf("hand-built invalid config must be rejected")
	}
}

func loadRegistry(t *testing.T, m *Manager) registry.Registry {
	t.Helper()
	st, err := registry.NewStore(m.RegistryPath())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	reg, err := st.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return reg
}

func saveRegistry(t *testing.T, m *Manager, reg *registry.Registry) {
	t.Helper()
	st, err := registry.NewStore(m.RegistryPath())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := st.Save(reg); err != nil {
		t.Fatalf("seed save: %v", err)
	}
}
