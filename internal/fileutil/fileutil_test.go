package fileutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicCreatesParents(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "scene", "nested", "base-0-0.0.png")
	data := []byte("tile bytes")

	if err := WriteFileAtomic(dst, data, 0o644); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("content = %q, want %q", got, data)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o644 {
		t.Fatalf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "tile.png")
	for _, payload := range []string{"first", "second"} {
		if err := WriteFileAtomic(dst, []byte(payload), 0o644); err != nil {
			t.Fatalf("WriteFileAtomic(%s): %v", payload, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, got %d entries", len(entries))
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "second" {
		t.Fatalf("content = %q, want overwrite", got)
	}
}

func TestWriteFileAtomicFailsWhenParentIsFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(filepath.Join(blocker, "tile.png"), []byte("x"), 0o644); err == nil {
		t.Fatal("expected error when parent is a regular file")
	}
}

func TestDigest(t *testing.T) {
	const emptySHA = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Digest(nil); got != emptySHA {
		t.Fatalf("Digest(nil) = %s", got)
	}
	if Digest([]byte("a")) == Digest([]byte("b")) {
		t.Fatal("distinct inputs share a digest")
	}
}
