package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/loykin/sessiond/internal/history"
	"github.com/loykin/sessiond/internal/registry"
)

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for blank path")
	}
}

func TestSendAndQuery(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()

	entry := registry.NewEntry("/tmp/demo", 4321, 20)
	events := []history.EventType{history.EventRegister, history.EventUnregister, history.EventReap}
	for _, et := range events {
		e := history.Event{Type: et, OccurredAt: time.Now(), Session: entry}
		if err := s.Send(context.Background(), e); err != nil {
			t.Fatalf("send %s: %v", et, err)
		}
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM session_history WHERE session_id = ?`, entry.SessionID).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != len(events) {
		t.Fatalf("want %d rows, got %d", len(events), n)
	}

	var event, repo string
	var pid int
	err = s.db.QueryRow(`
		SELECT event, repo_path, pid FROM session_history
		WHERE session_id = ? ORDER BY id LIMIT 1`, entry.SessionID).Scan(&event, &repo, &pid)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if event != string(history.EventRegister) || repo != "/tmp/demo" || pid != 4321 {
		t.Fatalf("row mismatch: %s %s %d", event, repo, pid)
	}
}
