package store

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"x"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestMigrationFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.sql", "0001_a.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("-- x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0000_dir.sql"), 0o700); err != nil {
		t.Fatal(err)
	}
	files, err := migrationFiles(dir)
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "0001_a.sql" || filepath.Base(files[1]) != "0002_b.sql" {
		t.Fatalf("unexpected files: %v", files)
	}
}

func TestRepoMigrationsPresent(t *testing.T) {
	files, err := migrationFiles("../../db/migrations")
	if err != nil {
		t.Fatalf("migrationFiles: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("expected solve_runs and callback_deliveries migrations, got %v", files)
	}
}

func TestJSONOrNil(t *testing.T) {
	var p *Run
	if v, err := jsonOrNil(p); err != nil || v != nil {
		t.Fatalf("nil pointer -> nil expected, got %v %v", v, err)
	}
	v, err := jsonOrNil(&Run{ID: "x"})
	if err != nil || v == nil {
		t.Fatalf("non-nil expected, got %v %v", v, err)
	}
}
