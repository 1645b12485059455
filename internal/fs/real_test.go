package fs

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// Real FS Tests
//
// These tests verify our Real implementation's helper methods work correctly.
// We're NOT testing os.Open, os.Remove etc (that's Go's job).
// We ARE testing:
//   - Exists() - our convenience method
//   - WriteFileAtomic() - our atomic write wrapper
// =============================================================================

// -----------------------------------------------------------------------------
// Exists() Tests
// -----------------------------------------------------------------------------

// TestReal_Exists_ReturnsFalseForNonExistent verifies that Exists() returns
// (false, nil) for files that don't exist - not an error.
func TestReal_Exists_ReturnsFalseForNonExistent(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()

	exists, err := fs.Exists(filepath.Join(dir, "does-not-exist.gcm"))

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}

	if got, want := exists, false; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

// TestReal_Exists_ReturnsTrueForFile verifies that Exists() returns
// (true, nil) for files that exist.
func TestReal_Exists_ReturnsTrueForFile(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "exists.gcm")

	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	exists, err := fs.Exists(path)

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}

	if got, want := exists, true; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

// -----------------------------------------------------------------------------
// WriteFileAtomic() Tests
// -----------------------------------------------------------------------------

// TestReal_WriteFileAtomic_CreatesFile verifies basic atomic write creates file.
func TestReal_WriteFileAtomic_CreatesFile(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.gcm")

	err := fs.WriteFileAtomic(path, bytes.NewReader([]byte("hello")))

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("WriteFileAtomic err=%v, want=%v", got, want)
	}

	data, err := os.ReadFile(path)
	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("ReadFile err=%v, want=%v", got, want)
	}

	if got, want := string(data), "hello"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}
}

// TestReal_WriteFileAtomic_OverwritesExisting verifies atomic write overwrites.
func TestReal_WriteFileAtomic_OverwritesExisting(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.gcm")

	if err := fs.WriteFileAtomic(path, bytes.NewReader([]byte("first"))); err != nil {
		t.Fatalf("setup: %v", err)
	}

	err := fs.WriteFileAtomic(path, bytes.NewReader([]byte("second")))

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("WriteFileAtomic err=%v, want=%v", got, want)
	}

	data, _ := os.ReadFile(path)
	if got, want := string(data), "second"; got != want {
		t.Fatalf("content=%q, want=%q", got, want)
	}
}

// TestReal_WriteFileAtomic_NoTempFileLeftOnSuccess verifies the directory
// only holds the target after a successful write.
func TestReal_WriteFileAtomic_NoTempFileLeftOnSuccess(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.gcm")

	if err := fs.WriteFileAtomic(path, bytes.NewReader([]byte("hello"))); err != nil {
		t.Fatalf("WriteFileAtomic: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if got, want := len(entries), 1; got != want {
		t.Fatalf("entries=%d, want=%d (%v)", got, want, entries)
	}
}

func TestReal_Chmod_SetsPermissions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out.gcm")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if err := NewReal().Chmod(path, 0o644); err != nil {
		t.Fatalf("Chmod: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}

	if got := info.Mode().Perm(); got != 0o644 {
		t.Fatalf("mode=%v, want=%v", got, os.FileMode(0o644))
	}
}

// -----------------------------------------------------------------------------
// Faulty Tests
// -----------------------------------------------------------------------------

// TestFaulty_FailsMatchingPathOnly verifies rules only hit paths containing
// the marker and that injected errors are recognisable.
func TestFaulty_FailsMatchingPathOnly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.gcm")
	work := filepath.Join(dir, ".keep.gcm.mangle-1.img")

	for _, p := range []string{keep, work} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("setup: %v", err)
		}
	}

	fs := NewFaulty(NewReal())
	fs.Fail(OpRemove, ".mangle-")

	err := fs.Remove(work)
	if !IsInjected(err) {
		t.Fatalf("Remove(work) err=%v, want injected", err)
	}

	if !os.IsNotExist(fs.Remove(filepath.Join(dir, "missing"))) {
		t.Fatal("Remove(missing) should pass through to the real fs")
	}

	if err := fs.Remove(keep); err != nil {
		t.Fatalf("Remove(keep) err=%v, want nil", err)
	}

	if got, want := fs.Calls(OpRemove), 3; got != want {
		t.Fatalf("calls=%d, want=%d", got, want)
	}

	fs.Heal()

	if err := fs.Remove(work); err != nil {
		t.Fatalf("Remove after Heal err=%v, want nil", err)
	}
}
