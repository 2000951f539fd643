//go:build windows

package registry

import "os"

// Windows has no flock(2). Readers rely solely on the atomic-replace write
// protocol; this is a documented platform limitation.
func lockShared(_ *os.File) error { return nil }

func unlock(_ *os.File) error { return nil }
