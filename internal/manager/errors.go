package manager

import "fmt"

// PathTraversalError reports a repo_path that was refused because it
// contains a parent-directory sequence. The check is a plain substring test,
// matching the historical behavior; it is not full canonicalization.
type PathTraversalError struct {
	Path string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("repo path %q rejected: contains '..'", e.Path)
}

// SessionLimitError is returned when a registration is refused because the
// live session count is already at capacity. Callers should treat it as
// "retry later", not as a bug.
type SessionLimitError struct {
	Active int
	Max    int
}

func (e *SessionLimitError) Error() string {
	return fmt.Sprintf("session limit reached: %d active of max %d", e.Active, e.Max)
}

// ProcessLimitError is returned when the observed host process count is at
// or above the hard ceiling. The operation that triggered the check must not
// proceed.
type ProcessLimitError struct {
	Total int
	Limit int
}

func (e *ProcessLimitError) Error() string {
	return fmt.Sprintf("process hard limit reached: %d processes, limit %d", e.Total, e.Limit)
}
