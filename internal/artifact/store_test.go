package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAllocateUniquePaths(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "zips"))
	a, err := store.Allocate("student/lab", "abc123")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	b, err := store.Allocate("student/lab", "abc123")
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if a == b {
		t.Error("two allocations returned the same path")
	}
	if filepath.Dir(a) != store.BaseDir {
		t.Errorf("allocated %s outside %s", a, store.BaseDir)
	}
	if !strings.HasSuffix(a, ".zip") {
		t.Errorf("allocated name %s has no zip suffix", a)
	}
	if _, err := os.Stat(store.BaseDir); err != nil {
		t.Errorf("base dir not created: %v", err)
	}
}

func TestRemove(t *testing.T) {
	store := NewStore(t.TempDir())
	path, err := store.Allocate("student/lab", "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still present after Remove")
	}
}

func TestRemoveRefusesOutsidePaths(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := store.Remove("/etc/passwd"); err == nil {
		t.Error("Remove accepted a path outside the store")
	}
	if err := store.Remove(filepath.Join(store.BaseDir, "..", "x")); err == nil {
		t.Error("Remove accepted a traversal path")
	}
}
