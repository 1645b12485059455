// Package corrupt implements the corruption engine: it walks a byte range
// of each target entry with a fixed stride and applies one transformation
// rule per visited index, committing a new value only when the configured
// [Validator] accepts it.
package corrupt

import (
	"fmt"
	"io"
	"log/slog"
	"math/bits"
	"math/rand/v2"

	"github.com/calvinalkan/mangle/internal/image"
)

// randomAttempts bounds how many random values are drawn for one index
// before the index is left alone.
const randomAttempts = 100

// Options configures an [Engine].
type Options struct {
	// Seed seeds the engine's random source. Two engines with the same seed
	// produce the same Random corruption.
	Seed uint64

	// Validator gates every commit. Nil means [AlwaysValid].
	Validator Validator

	// Logger receives per-entry diagnostics. Nil discards them.
	Logger *slog.Logger
}

// Engine applies a [Config] to entry buffers. It owns its random source, so
// it is not safe for concurrent use.
type Engine struct {
	rng   *rand.Rand
	valid Validator
	log   *slog.Logger
}

// New returns an engine configured by opts.
func New(opts Options) *Engine {
	valid := opts.Validator
	if valid == nil {
		valid = AlwaysValid
	}

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Engine{
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9E3779B97F4A7C15)),
		valid: valid,
		log:   log,
	}
}

// Stats counts what one pass over a buffer did.
type Stats struct {
	// Visited is the number of indices the range walk reached.
	Visited int

	// Mutations is the number of committed changes.
	Mutations int
}

// Skip explains why a target was not corrupted.
type Skip string

// Reasons a target can be skipped. Both are recoverable.
const (
	SkipNone     Skip = ""
	SkipNotFound Skip = "not found"
	SkipEmpty    Skip = "empty"
)

// EntryResult reports one processed target.
type EntryResult struct {
	// Name is the target as requested.
	Name string

	// Path is the entry the name resolved to. Empty for [SkipNotFound].
	Path string

	Offset  int64
	Size    int
	Skipped Skip

	// Err is the lookup error behind [SkipNotFound].
	Err error

	Stats
}

// Result reports a whole run.
type Result struct {
	Entries []EntryResult

	// Mutations is the total over all entries.
	Mutations int
}

// Skipped returns the targets that were not processed.
func (r Result) Skipped() []EntryResult {
	var skipped []EntryResult

	for _, e := range r.Entries {
		if e.Skipped != SkipNone {
			skipped = append(skipped, e)
		}
	}

	return skipped
}

// Stream is the working-file handle the engine reads and writes entries
// through.
type Stream interface {
	io.ReadWriteSeeker
}

// Corrupt applies cfg to every target of img in stream, in order.
//
// A target that img cannot resolve, or whose buffer is empty, is skipped and
// logged; the run continues. Read and write failures abort the run and are
// returned together with the partial result.
func (e *Engine) Corrupt(stream Stream, img image.Image, cfg Config) (Result, error) {
	var result Result

	e.log.Debug("corrupting", "targets", len(cfg.Targets), "operation", cfg.Operation.String())

	for _, name := range cfg.Targets {
		entry, err := img.Lookup(name)
		if err != nil {
			e.log.Warn("skipping entry", "entry", name, "reason", err)
			result.Entries = append(result.Entries, EntryResult{Name: name, Skipped: SkipNotFound, Err: err})

			continue
		}

		res, err := e.corruptEntry(stream, name, entry, cfg)
		result.Entries = append(result.Entries, res)
		result.Mutations += res.Mutations

		if err != nil {
			return result, err
		}
	}

	e.log.Info("corruption finished", "mutations", result.Mutations)

	return result, nil
}

func (e *Engine) corruptEntry(stream Stream, name string, entry image.Entry, cfg Config) (EntryResult, error) {
	res := EntryResult{Name: name, Path: entry.Name, Offset: entry.Offset}

	buf, err := entry.Read(stream)
	if err != nil {
		return res, fmt.Errorf("reading entry: %w", err)
	}

	res.Size = len(buf)

	if len(buf) == 0 {
		e.log.Warn("skipping entry", "entry", entry.Name, "reason", "no data")
		res.Skipped = SkipEmpty

		return res, nil
	}

	e.log.Info("corrupting entry", "entry", entry.Name, "size", len(buf))

	res.Stats = e.Apply(buf, cfg)

	err = entry.Write(stream, buf)
	if err != nil {
		return res, fmt.Errorf("writing entry: %w", err)
	}

	e.log.Debug("entry written", "entry", entry.Name, "visited", res.Visited, "mutations", res.Mutations)

	return res, nil
}

// Apply runs cfg's operation over buf in place and reports what changed.
//
// Index i is visited from RangeStart in steps of Stride while both
// i+Stride < len(buf) and i < RangeEnd hold. A None (or unknown) operation
// stops at the first visited index.
func (e *Engine) Apply(buf []byte, cfg Config) Stats {
	var stats Stats

	if cfg.Stride == 0 {
		return stats
	}

	n := uint64(len(buf))
	stride := uint64(cfg.Stride)
	end := uint64(cfg.RangeEnd)

	for i := uint64(cfg.RangeStart); i+stride < n && i < end; i += stride {
		if !e.step(buf, int(i), cfg.Operation, cfg.Operand, &stats) {
			break
		}
	}

	return stats
}

// step applies op at index i. It returns false when iteration must stop.
func (e *Engine) step(buf []byte, i int, op Operation, k byte, stats *Stats) bool {
	if _, known := operations[op]; !known || op == None {
		return false
	}

	stats.Visited++

	switch op {
	case Shift:
		j := i + int(k)
		if j < len(buf) && e.valid(buf[j], i) {
			buf[i] = buf[j]
			stats.Mutations++
		}

	case Swap:
		j := i + int(k)
		if j < len(buf) && e.valid(buf[j], i) && e.valid(buf[i], j) {
			buf[i], buf[j] = buf[j], buf[i]
			stats.Mutations++
		}

	case Add:
		e.commit(buf, i, buf[i]+k, stats)

	case Set:
		e.commit(buf, i, k, stats)

	case Random:
		for range randomAttempts {
			candidate := byte(e.rng.Uint32N(256))
			if e.commit(buf, i, candidate, stats) {
				break
			}
		}

	case RotateLeft:
		e.commit(buf, i, bits.RotateLeft8(buf[i], int(k)), stats)

	case RotateRight:
		e.commit(buf, i, bits.RotateLeft8(buf[i], -int(k)), stats)

	case And:
		e.commit(buf, i, buf[i]&k, stats)

	case Or:
		e.commit(buf, i, buf[i]|k, stats)

	case Xor:
		e.commit(buf, i, buf[i]^k, stats)

	case Complement:
		e.commit(buf, i, ^buf[i], stats)
	}

	return true
}

func (e *Engine) commit(buf []byte, i int, candidate byte, stats *Stats) bool {
	if !e.valid(candidate, i) {
		return false
	}

	buf[i] = candidate
	stats.Mutations++

	return true
}
