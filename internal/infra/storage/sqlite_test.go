package storage

import (
	"path/filepath"
	"testing"
)

func setupTestDB(t *testing.T) *SQLiteStore {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestSetAndGet(t *testing.T) {
	s := setupTestDB(t)

	// 1. Missing
	if _, ok, err := s.Get("cash"); err != nil || ok {
		t.Fatalf("Get on empty store = ok:%v err:%v", ok, err)
	}

	// 2. Create
	if err := s.Set("cash", "100.25"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// 3. Get
	v, ok, err := s.Get("cash")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok:%v err:%v", ok, err)
	}
	if v != "100.25" {
		t.Errorf("expected 100.25, got %s", v)
	}
}

func TestSetOverwrites(t *testing.T) {
	s := setupTestDB(t)
	s.Set("mode", "false")

	if err := s.Set("mode", "true"); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	v, _, _ := s.Get("mode")
	if v != "true" {
		t.Errorf("expected 'true', got '%s'", v)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected a single row, got %d", len(all))
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Set("assetList", `[{"symbol":"AAPL"}]`)
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	v, ok, _ := s.Get("assetList")
	if !ok || v != `[{"symbol":"AAPL"}]` {
		t.Errorf("value lost across reopen: %q", v)
	}
}
