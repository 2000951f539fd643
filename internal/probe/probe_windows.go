//go:build windows

package probe

import "os"

// pidAlive is a best-effort fallback on Windows; FindProcess fails only for
// nonexistent pids there.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
