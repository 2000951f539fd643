// Package probe answers two questions about the host: is a given pid alive,
// and how many processes exist right now. Implementations must be safe for
// concurrent use.
package probe

import "github.com/shirou/gopsutil/v4/process"

// Prober is the liveness capability the session manager depends on.
type Prober interface {
	// Alive reports whether a process with the given pid exists.
	Alive(pid int) bool
	// Total returns the number of processes currently visible on the host.
	Total() (int, error)
}

// System probes the host via gopsutil, falling back to a raw signal-0 check
// when gopsutil cannot answer.
type System struct{}

func (System) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	if err != nil {
		return pidAlive(pid)
	}
	return ok
}

func (System) Total() (int, error) {
	pids, err := process.Pids()
	if err != nil {
		return 0, err
	}
	return len(pids), nil
}
