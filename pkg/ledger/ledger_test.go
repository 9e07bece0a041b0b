// Copyright 2024-2026 Aiku AI

package ledger

import (
	"path/filepath"
	"testing"

	"github.com/aiku/slack2discord/pkg/importer"
)

func TestMemory(t *testing.T) {
	t.Parallel()
	m := NewMemory()

	if _, ok := m.Get("general/1.000100"); ok {
		t.Error("empty ledger reported a hit")
	}
	if err := m.Put("general/1.000100", "dest-1"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	dest, ok := m.Get("general/1.000100")
	if !ok || dest != "dest-1" {
		t.Errorf("Get = (%q, %v)", dest, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d", m.Len())
	}
}

func TestSQLite(t *testing.T) {
	t.Parallel()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	defer s.Close()

	id := importer.MakeSourceMessageID("general", "1659123456.000200")
	if _, ok := s.Get(id); ok {
		t.Error("empty ledger reported a hit")
	}
	if err := s.Put(id, "dest-42"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	dest, ok := s.Get(id)
	if !ok || dest != "dest-42" {
		t.Errorf("Get = (%q, %v)", dest, ok)
	}

	// Re-recording the same source message overwrites, not duplicates.
	if err := s.Put(id, "dest-43"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if dest, _ := s.Get(id); dest != "dest-43" {
		t.Errorf("Get after overwrite = %q", dest)
	}
	if n, err := s.Len(); err != nil || n != 1 {
		t.Errorf("Len = (%d, %v), want 1", n, err)
	}
}

func TestSQLitePersists(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite error: %v", err)
	}
	if err := s.Put("general/1.000100", "dest-1"); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()
	dest, ok := s2.Get("general/1.000100")
	if !ok || dest != "dest-1" {
		t.Errorf("Get after reopen = (%q, %v)", dest, ok)
	}
}
