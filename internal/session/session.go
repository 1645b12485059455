// Package session owns the working copy of an image for one corruption run.
//
// A session never writes to the original file. It copies the original to a
// working file when there is something to do, lets the engine mutate that
// copy, and on Save promotes the copy to the output path. Close removes any
// working file still on disk; callers defer it right after New.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/calvinalkan/mangle/internal/corrupt"
	"github.com/calvinalkan/mangle/internal/fs"
	"github.com/calvinalkan/mangle/internal/image"
)

// Error variables for the session lifecycle. Every fatal file failure wraps
// ErrInvalidFile.
var (
	ErrInvalidFile   = errors.New("invalid file")
	ErrOutputIsInput = errors.New("output path is the original or working file")
)

// State is the lifecycle position of a session.
type State int

// Session states. A working file exists on disk exactly in Staged and
// Mutated.
const (
	Uncreated State = iota
	Staged
	Mutated
	Saved
)

func (s State) String() string {
	switch s {
	case Uncreated:
		return "uncreated"
	case Staged:
		return "staged"
	case Mutated:
		return "mutated"
	case Saved:
		return "saved"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultExtension is appended to the derived output path.
const DefaultExtension = ".gcm"

const workingFileMaxAttempts = 10000

var workingFileCounter atomic.Uint64

// Options configures a [Session].
type Options struct {
	// Engine performs the corruption. Nil means an engine with default
	// options.
	Engine *corrupt.Engine

	// Extension is appended to the path given to [Session.Save] when the
	// config has no explicit output. Empty means [DefaultExtension].
	Extension string

	// Logger receives lifecycle diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Session stages, corrupts and promotes one image.
type Session struct {
	fs       fs.FS
	original string
	cfg      corrupt.Config
	engine   *corrupt.Engine
	ext      string
	log      *slog.Logger

	working string
	state   State
}

// New returns a session for the image at original. Nothing touches the
// filesystem until [Session.Stage].
func New(fsys fs.FS, original string, cfg corrupt.Config, opts Options) *Session {
	engine := opts.Engine
	if engine == nil {
		engine = corrupt.New(corrupt.Options{Logger: opts.Logger})
	}

	ext := opts.Extension
	if ext == "" {
		ext = DefaultExtension
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Session{
		fs:       fsys,
		original: original,
		cfg:      cfg,
		engine:   engine,
		ext:      ext,
		log:      log,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// WorkingPath returns the working file path, or "" before staging.
func (s *Session) WorkingPath() string {
	return s.working
}

// Config returns the config used by the next run.
func (s *Session) Config() corrupt.Config {
	return s.cfg
}

// Reconfigure replaces the config for later runs. The working copy and
// its mutations are kept.
func (s *Session) Reconfigure(cfg corrupt.Config) {
	s.cfg = cfg
}

// Stage copies the original to a fresh working file if the config is active
// (an operation and at least one target). It reports whether a working file
// exists afterwards. Staging an already staged session does nothing.
func (s *Session) Stage() (bool, error) {
	if s.state == Staged || s.state == Mutated {
		return true, nil
	}

	if !s.cfg.Active() {
		s.log.Debug("nothing to corrupt, not staging", "operation", s.cfg.Operation.String(), "targets", len(s.cfg.Targets))

		return false, nil
	}

	working, err := s.copyToWorking()
	if err != nil {
		return false, err
	}

	s.working = working
	s.state = Staged

	s.log.Info("staged working copy", "path", working)

	return true, nil
}

func (s *Session) copyToWorking() (string, error) {
	src, err := s.fs.Open(s.original)
	if err != nil {
		return "", fmt.Errorf("%w: open original: %w", ErrInvalidFile, err)
	}
	defer src.Close()

	dst, path, err := createWorkingFile(s.fs, s.original)
	if err != nil {
		return "", err
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()

	if err := errors.Join(copyErr, closeErr); err != nil {
		removeErr := s.fs.Remove(path)
		if removeErr != nil && !os.IsNotExist(removeErr) {
			err = errors.Join(err, fmt.Errorf("remove partial working file %q: %w", path, removeErr))
		}

		return "", fmt.Errorf("%w: copy to working file %q: %w", ErrInvalidFile, path, err)
	}

	return path, nil
}

func createWorkingFile(fsys fs.FS, original string) (fs.File, string, error) {
	dir, base := filepath.Split(original)
	if dir == "" {
		dir = "."
	}

	for range workingFileMaxAttempts {
		seq := workingFileCounter.Add(1)
		path := filepath.Join(dir, fmt.Sprintf(".%s.mangle-%d.img", base, seq))

		file, err := fsys.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("%w: create working file: %w", ErrInvalidFile, err)
	}

	return nil, "", fmt.Errorf("%w: exhausted working file names in %q", ErrInvalidFile, dir)
}

// Run corrupts the working copy with the current config. It does nothing
// unless the session is staged. Any committed mutation moves the session to
// [Mutated].
//
// img locates entries; it is usually parsed from the original, whose layout
// the working copy shares.
func (s *Session) Run(img image.Image) (corrupt.Result, error) {
	if s.state != Staged && s.state != Mutated {
		return corrupt.Result{}, nil
	}

	stream, err := s.fs.OpenFile(s.working, os.O_RDWR, 0)
	if err != nil {
		return corrupt.Result{}, fmt.Errorf("%w: open working file %q: %w", ErrInvalidFile, s.working, err)
	}

	result, runErr := s.engine.Corrupt(stream, img, s.cfg)

	closeErr := stream.Close()
	if closeErr != nil {
		closeErr = fmt.Errorf("%w: close working file %q: %w", ErrInvalidFile, s.working, closeErr)
	}

	if result.Mutations > 0 {
		s.state = Mutated
	}

	return result, errors.Join(runErr, closeErr)
}

// OutputPath resolves where [Session.Save] writes for the given base path.
func (s *Session) OutputPath(base string) string {
	if s.cfg.OutputPath != "" {
		return s.cfg.OutputPath
	}

	return base + s.ext
}

// Save promotes the working copy to the output path and returns that path.
// It does nothing (and returns "") unless the session is [Mutated].
//
// An existing file at the output path is removed first, unless it is the
// original or the working file, which is fatal before anything is touched.
// The output gets the original's permissions. The working file is removed
// after the copy. Failing either removal is fatal.
func (s *Session) Save(base string) (string, error) {
	if s.state != Mutated {
		return "", nil
	}

	out := s.OutputPath(base)

	original, err := s.fs.Stat(s.original)
	if err != nil {
		return "", fmt.Errorf("%w: stat original %q: %w", ErrInvalidFile, s.original, err)
	}

	exists, err := s.fs.Exists(out)
	if err != nil {
		return "", fmt.Errorf("%w: check output %q: %w", ErrInvalidFile, out, err)
	}

	if exists {
		err := s.checkOutputTarget(out, original)
		if err != nil {
			return "", err
		}

		err = s.fs.Remove(out)
		if err != nil {
			return "", fmt.Errorf("%w: could not delete existing output %q: %w", ErrInvalidFile, out, err)
		}
	}

	err = s.promote(out)
	if err != nil {
		return "", err
	}

	err = s.fs.Chmod(out, original.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("%w: set output mode %q: %w", ErrInvalidFile, out, err)
	}

	err = s.fs.Remove(s.working)
	if err != nil {
		return "", fmt.Errorf("%w: could not remove working file %q: %w", ErrInvalidFile, s.working, err)
	}

	s.log.Info("saved", "path", out)

	s.working = ""
	s.state = Saved

	return out, nil
}

// checkOutputTarget rejects an existing output that is the original or the
// working file under another name.
func (s *Session) checkOutputTarget(out string, original os.FileInfo) error {
	target, err := s.fs.Stat(out)
	if err != nil {
		return fmt.Errorf("%w: stat output %q: %w", ErrInvalidFile, out, err)
	}

	working, err := s.fs.Stat(s.working)
	if err != nil {
		return fmt.Errorf("%w: stat working file %q: %w", ErrInvalidFile, s.working, err)
	}

	if os.SameFile(target, original) || os.SameFile(target, working) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidFile, ErrOutputIsInput, out)
	}

	return nil
}

func (s *Session) promote(out string) error {
	src, err := s.fs.Open(s.working)
	if err != nil {
		return fmt.Errorf("%w: open working file %q: %w", ErrInvalidFile, s.working, err)
	}
	defer src.Close()

	err = s.fs.WriteFileAtomic(out, src)
	if err != nil {
		return fmt.Errorf("%w: write output %q: %w", ErrInvalidFile, out, err)
	}

	return nil
}

// Close removes the working file if it is still on disk. Close is
// idempotent. A removal failure is returned, never ignored.
func (s *Session) Close() error {
	if s.working == "" {
		return nil
	}

	exists, err := s.fs.Exists(s.working)
	if err != nil {
		return fmt.Errorf("%w: check working file %q: %w", ErrInvalidFile, s.working, err)
	}

	if exists {
		err := s.fs.Remove(s.working)
		if err != nil {
			return fmt.Errorf("%w: could not delete working file %q: %w", ErrInvalidFile, s.working, err)
		}

		s.log.Debug("removed working file", "path", s.working)
	}

	s.working = ""

	if s.state != Saved {
		s.state = Uncreated
	}

	return nil
}
