package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrSymlinkedPath is returned by NewStore when the registry path already
// exists as a symlink. Writing through a symlink would let an attacker
// redirect the registry outside its intended location.
var ErrSymlinkedPath = errors.New("registry path is a symlink")

// PersistError reports a failed registry write. Unlike read failures, which
// degrade to an empty registry, a failed write is always surfaced: the
// registration it carried has not taken effect.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist registry %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Store persists a Registry as JSON at a single well-known path. Multiple
// Store instances pointed at the same path are safe to use from independent
// processes: correctness lives in the shared-lock read and atomic-rename
// write protocol, not in any in-memory state.
type Store struct {
	path string
}

// NewStore creates a store for path. It fails immediately when the path
// already exists as a symlink.
func NewStore(path string) (*Store, error) {
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymlinkedPath, path)
	}
	return &Store{path: path}, nil
}

// Path returns the registry file path.
func (s *Store) Path() string { return s.path }

// rawRegistry defers per-entry decoding so one malformed entry does not
// abort the whole load.
type rawRegistry struct {
	Sessions    []json.RawMessage `json:"sessions"`
	LastCleanup string            `json:"last_cleanup"`
}

// Load reads the registry under a shared advisory lock. A missing file,
// unreadable file, or undecodable payload all yield an empty registry: a
// corrupted registry file must never permanently block new registrations.
// The returned error is advisory only. It describes why the registry read
// back empty or partial, so monitoring callers can surface the condition;
// the Registry is usable regardless. A missing file is not an error.
// Individual entries that fail to decode or validate are skipped.
func (s *Store) Load() (Registry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Registry{}, nil
		}
		return Registry{}, fmt.Errorf("registry unreadable: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := lockShared(f); err != nil {
		return Registry{}, fmt.Errorf("registry lock failed: %w", err)
	}
	defer func() { _ = unlock(f) }()

	var raw rawRegistry
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return Registry{}, fmt.Errorf("registry corrupt, treating as empty: %w", err)
	}

	reg := Registry{LastCleanup: raw.LastCleanup}
	for _, rm := range raw.Sessions {
		var e SessionEntry
		if err := json.Unmarshal(rm, &e); err != nil {
			continue
		}
		if err := e.Validate(); err != nil {
			continue
		}
		reg.Sessions = append(reg.Sessions, e)
	}
	return reg, nil
}

// Save writes the registry with the temp-file-then-rename pattern. The temp
// file is created in the target directory so the rename stays on one
// filesystem and is atomic; concurrent readers therefore never observe a
// partially written file. The file ends up mode 0600.
func (s *Store) Save(reg *Registry) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &PersistError{Path: s.path, Err: err}
	}

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return &PersistError{Path: s.path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".sessions-*.tmp")
	if err != nil {
		return &PersistError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &PersistError{Path: s.path, Err: err}
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return &PersistError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &PersistError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return &PersistError{Path: s.path, Err: err}
	}
	return nil
}
