package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mesh-intelligence/moji/pkg/types"
)

func testConfig(dir string) types.Config {
	cfg := types.DefaultConfig()
	cfg.DataDir = dir
	return cfg
}

func TestBackend_Attach(t *testing.T) {
	tmpDir := t.TempDir()

	b := NewBackend()
	config := testConfig(tmpDir)

	if err := b.Attach(config); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	// Verify database file created
	dbPath := filepath.Join(tmpDir, DatabaseFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("backups.db not created")
	}
	if b.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", b.Path(), dbPath)
	}

	// Verify double attach fails
	if err := b.Attach(config); err != types.ErrAlreadyAttached {
		t.Errorf("expected ErrAlreadyAttached, got %v", err)
	}

	b.Detach()
}

func TestBackend_AttachCreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	b := NewBackend()
	if err := b.Attach(testConfig(dir)); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer b.Detach()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestBackend_AttachRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.CapacityBytes = 0

	b := NewBackend()
	if err := b.Attach(cfg); err != types.ErrCapacityInvalid {
		t.Errorf("expected ErrCapacityInvalid, got %v", err)
	}
}

func TestBackend_Detach(t *testing.T) {
	b := NewBackend()
	if err := b.Attach(testConfig(t.TempDir())); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}

	if err := b.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}

	// Verify idempotent
	if err := b.Detach(); err != nil {
		t.Errorf("second Detach failed: %v", err)
	}

	if _, err := b.conn(); err != types.ErrStoreDetached {
		t.Errorf("expected ErrStoreDetached, got %v", err)
	}
}

func TestBackend_ReattachKeepsSchemaVersion(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		b := NewBackend()
		if err := b.Attach(testConfig(dir)); err != nil {
			t.Fatalf("Attach %d failed: %v", i, err)
		}
		db, err := b.conn()
		if err != nil {
			t.Fatal(err)
		}
		v, err := currentVersion(ctx, db)
		if err != nil {
			t.Fatal(err)
		}
		if v != schemaVersion {
			t.Errorf("schema version = %d, want %d", v, schemaVersion)
		}
		b.Detach()
	}
}

func TestBackend_RejectsNewerSchema(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b := NewBackend()
	if err := b.Attach(testConfig(dir)); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	db, _ := b.conn()
	if _, err := db.ExecContext(ctx, `UPDATE schema_version SET version = ? WHERE component = ?`, schemaVersion+1, component); err != nil {
		t.Fatal(err)
	}
	b.Detach()

	b2 := NewBackend()
	if err := b2.Attach(testConfig(dir)); err == nil {
		b2.Detach()
		t.Fatal("expected Attach to fail on a newer schema")
	}
}
