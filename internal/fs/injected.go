package fs

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
)

// Op names a filesystem operation that [Faulty] can fail.
type Op string

// Operations recognised by [Faulty].
const (
	OpOpen            Op = "open"
	OpOpenFile        Op = "openfile"
	OpWriteFileAtomic Op = "writefileatomic"
	OpStat            Op = "stat"
	OpRemove          Op = "remove"
	OpChmod           Op = "chmod"
)

// InjectedError marks an error as intentionally injected by [Faulty].
//
// It wraps the underlying error so errors.Is/As continue to work.
type InjectedError struct {
	Op  Op
	Err error
}

// Error returns the underlying error's message prefixed with the operation.
func (e *InjectedError) Error() string {
	return "injected " + string(e.Op) + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *InjectedError) Unwrap() error {
	return e.Err
}

// IsInjected reports whether err (or any wrapped error) was injected by [Faulty].
// Returns false if err is nil.
func IsInjected(err error) bool {
	if err == nil {
		return false
	}

	var injected *InjectedError

	return errors.As(err, &injected)
}

// Faulty wraps an [FS] and fails operations on paths containing a marker.
//
// A rule registered with [Faulty.Fail] applies to every later call of that
// operation whose path contains the substring. Rules can be cleared with
// [Faulty.Heal]. Safe for concurrent use.
type Faulty struct {
	inner FS

	mu    sync.Mutex
	rules map[Op][]string
	calls map[Op]int
}

// NewFaulty wraps inner. Panics if inner is nil.
func NewFaulty(inner FS) *Faulty {
	if inner == nil {
		panic("inner fs is nil")
	}

	return &Faulty{
		inner: inner,
		rules: make(map[Op][]string),
		calls: make(map[Op]int),
	}
}

// Fail makes op fail with EIO for every path containing substr.
// An empty substr matches all paths.
func (f *Faulty) Fail(op Op, substr string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules[op] = append(f.rules[op], substr)
}

// Heal removes all rules.
func (f *Faulty) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rules = make(map[Op][]string)
}

// Calls returns how many times op was called, failed or not.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[op]
}

func (f *Faulty) check(op Op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++

	for _, substr := range f.rules[op] {
		if strings.Contains(path, substr) {
			return &InjectedError{Op: op, Err: &os.PathError{Op: string(op), Path: path, Err: syscall.EIO}}
		}
	}

	return nil
}

func (f *Faulty) Open(path string) (File, error) {
	if err := f.check(OpOpen, path); err != nil {
		return nil, err
	}

	return f.inner.Open(path)
}

func (f *Faulty) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	if err := f.check(OpOpenFile, path); err != nil {
		return nil, err
	}

	return f.inner.OpenFile(path, flag, perm)
}

func (f *Faulty) WriteFileAtomic(path string, r io.Reader) error {
	if err := f.check(OpWriteFileAtomic, path); err != nil {
		return err
	}

	return f.inner.WriteFileAtomic(path, r)
}

func (f *Faulty) Stat(path string) (os.FileInfo, error) {
	if err := f.check(OpStat, path); err != nil {
		return nil, err
	}

	return f.inner.Stat(path)
}

// Exists is routed through the stat rules.
func (f *Faulty) Exists(path string) (bool, error) {
	if err := f.check(OpStat, path); err != nil {
		return false, err
	}

	return f.inner.Exists(path)
}

func (f *Faulty) Remove(path string) error {
	if err := f.check(OpRemove, path); err != nil {
		return err
	}

	return f.inner.Remove(path)
}

func (f *Faulty) Chmod(path string, mode os.FileMode) error {
	if err := f.check(OpChmod, path); err != nil {
		return err
	}

	return f.inner.Chmod(path, mode)
}

// Compile-time interface check.
var _ FS = (*Faulty)(nil)
