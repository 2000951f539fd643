package manager

import "github.com/loykin/sessiond/internal/registry"

// Status is a point-in-time snapshot of sessions and limits. It is built
// fresh on every check and never cached or persisted.
type Status struct {
	ActiveSessions       int                     `json:"active_sessions"`
	MaxSessions          int                     `json:"max_sessions"`
	TotalProcesses       int                     `json:"total_processes"`
	ProcessWarnThreshold int                     `json:"process_warn_threshold"`
	ProcessHardLimit     int                     `json:"process_hard_limit"`
	Sessions             []registry.SessionEntry `json:"sessions"`
	Warnings             []string                `json:"warnings,omitempty"`
}
