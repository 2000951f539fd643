package registry

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// DefaultEstimatedProcesses is used when a caller does not provide its own
// estimate of how many children a session may spawn.
const DefaultEstimatedProcesses = 15

// TimeLayout is the timestamp format used for start_time and last_cleanup.
const TimeLayout = "2006-01-02T15:04:05.000000"

// SessionEntry is one registered agent session. Entries are created by the
// manager, pruned when their process dies, and otherwise never mutated.
type SessionEntry struct {
	SessionID          string `json:"session_id"`
	PID                int    `json:"pid"`
	RepoPath           string `json:"repo_path"`
	StartTime          string `json:"start_time"`
	EstimatedProcesses int    `json:"estimated_processes"`
}

// Validate reports whether the entry carries the minimum fields required to
// be meaningful. Entries failing validation are dropped on load.
func (e SessionEntry) Validate() error {
	if e.SessionID == "" {
		return errors.New("empty session_id")
	}
	if e.PID <= 0 {
		return fmt.Errorf("invalid pid %d", e.PID)
	}
	if e.RepoPath == "" {
		return errors.New("empty repo_path")
	}
	return nil
}

// NewEntry creates an entry for the given workspace and pid. estimated <= 0
// selects DefaultEstimatedProcesses.
func NewEntry(repoPath string, pid, estimated int) SessionEntry {
	if estimated <= 0 {
		estimated = DefaultEstimatedProcesses
	}
	return SessionEntry{
		SessionID:          NewSessionID(),
		PID:                pid,
		RepoPath:           repoPath,
		StartTime:          Now(),
		EstimatedProcesses: estimated,
	}
}

// NewSessionID returns an id of the form session-<UTC yyyymmdd-HHMMSS>-<6 hex>.
func NewSessionID() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("session-%s-%s", time.Now().UTC().Format("20060102-150405"), hex.EncodeToString(b[:]))
}

// Now returns the current UTC time in TimeLayout form.
func Now() string { return time.Now().UTC().Format(TimeLayout) }

// Registry is the persisted aggregate: the ordered session list plus the
// timestamp of the last reconciliation pass. Order is insertion order and is
// preserved across save/load round-trips.
type Registry struct {
	Sessions    []SessionEntry `json:"sessions"`
	LastCleanup string         `json:"last_cleanup,omitempty"`
}

// FindByID returns the index of the entry with the given session id, or -1.
func (r *Registry) FindByID(id string) int {
	for i, e := range r.Sessions {
		if e.SessionID == id {
			return i
		}
	}
	return -1
}

// FindByOwner returns the first entry registered for the same workspace path
// by the same process, or nil. This pair is the dedup identity used to make
// re-registration idempotent.
func (r *Registry) FindByOwner(repoPath string, pid int) *SessionEntry {
	for i := range r.Sessions {
		if r.Sessions[i].RepoPath == repoPath && r.Sessions[i].PID == pid {
			return &r.Sessions[i]
		}
	}
	return nil
}
