package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/mangle/internal/config"
	"github.com/calvinalkan/mangle/internal/corrupt"
	"github.com/calvinalkan/mangle/internal/fs"
	"github.com/calvinalkan/mangle/internal/gcm"
	"github.com/calvinalkan/mangle/internal/image"
	"github.com/calvinalkan/mangle/internal/report"
	"github.com/calvinalkan/mangle/internal/session"
)

var (
	errImageArg    = errors.New("exactly one image path is required")
	errInterrupted = errors.New("interrupted, output not saved")
)

// CorruptCmd returns the corrupt command.
func CorruptCmd(a *app) *Command {
	fs := flag.NewFlagSet("corrupt", flag.ContinueOnError)
	addRunFlags(fs)
	fs.Bool("dry-run", false, "Report what would change without writing any file")

	return &Command{
		Flags: fs,
		Usage: "corrupt <image> [flags]",
		Short: "Corrupt entries of an image into a new file",
		Long: `Copy the image to a working file, apply the operation to every --file
entry and save the result next to the image (or to --out). The original is
never modified. Nothing is written when no byte changed.

With --dry-run the passes run in memory against the original and only the
report is printed.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execCorrupt(ctx, o, a, fs, args)
		},
	}
}

// addRunFlags registers the flags that override config fields.
func addRunFlags(fs *flag.FlagSet) {
	fs.StringP("op", "o", "", "Operation (see 'mangle ops')")
	fs.String("value", "", "Operand byte (decimal or 0x hex)")
	fs.String("start", "", "First index inside each entry")
	fs.String("end", "", "Index bound inside each entry (exclusive)")
	fs.String("step", "", "Distance between visited indices")
	fs.StringArrayP("file", "f", nil, "Entry to corrupt (repeatable)")
	fs.String("out", "", "Output path (default: <image><extension>)")
	fs.String("ext", "", "Extension appended to the derived output path")
	fs.Uint64("seed", 0, "Seed for the random operation (default: pick one)")
	fs.String("valid", "", "Expression a new byte must satisfy, e.g. 'b != 0'")
	fs.StringArray("protect", nil, "Index range START-END to leave untouched (repeatable)")
	fs.StringSlice("forbid", nil, "Byte values never to write (comma separated)")
	fs.String("format", "", "Image format: gcm or raw")
}

// runFlagLayer turns the flags the user set into a config layer.
func runFlagLayer(fs *flag.FlagSet) (config.Layer, error) {
	var layer config.Layer

	if fs.Changed("op") {
		name, _ := fs.GetString("op")

		op, err := corrupt.ParseOperation(name)
		if err != nil {
			return config.Layer{}, err
		}

		layer.Operation = &op
	}

	numbers := []struct {
		flag string
		dst  **config.Number
	}{
		{"value", &layer.Value},
		{"start", &layer.Start},
		{"end", &layer.End},
		{"step", &layer.Step},
	}

	for _, n := range numbers {
		if !fs.Changed(n.flag) {
			continue
		}

		raw, _ := fs.GetString(n.flag)

		v, err := config.ParseNumber(raw)
		if err != nil {
			return config.Layer{}, fmt.Errorf("--%s: %w", n.flag, err)
		}

		*n.dst = &v
	}

	strs := []struct {
		flag string
		dst  **string
	}{
		{"out", &layer.Output},
		{"ext", &layer.Extension},
		{"valid", &layer.Valid},
		{"format", &layer.Format},
	}

	for _, s := range strs {
		if fs.Changed(s.flag) {
			v, _ := fs.GetString(s.flag)
			*s.dst = &v
		}
	}

	if fs.Changed("file") {
		files, _ := fs.GetStringArray("file")
		layer.Files = &files
	}

	if fs.Changed("protect") {
		ranges, _ := fs.GetStringArray("protect")
		layer.Protect = &ranges
	}

	if fs.Changed("forbid") {
		raw, _ := fs.GetStringSlice("forbid")

		values := make([]config.Number, 0, len(raw))

		for _, r := range raw {
			v, err := config.ParseNumber(r)
			if err != nil {
				return config.Layer{}, fmt.Errorf("--forbid: %w", err)
			}

			values = append(values, v)
		}

		layer.Forbid = &values
	}

	if fs.Changed("seed") {
		seed, _ := fs.GetUint64("seed")
		layer.Seed = &seed
	}

	return layer, nil
}

// resolveRunConfig merges the run flags over the loaded config.
func resolveRunConfig(base config.Config, fs *flag.FlagSet) (config.Config, error) {
	layer, err := runFlagLayer(fs)
	if err != nil {
		return config.Config{}, err
	}

	cfg := base.Merge(layer)

	err = cfg.Validate()
	if err != nil {
		return config.Config{}, err
	}

	if cfg.Output != "" && !filepath.IsAbs(cfg.Output) {
		cfg.Output = filepath.Join(cfg.EffectiveCwd, cfg.Output)
	}

	return cfg, nil
}

// openImage parses the image at path in the configured format. A
// structurally broken GameCube image is an error.
func openImage(fsys fs.FS, path, format string) (image.Image, error) {
	if format == config.FormatRaw {
		info, err := fsys.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("open image: %w", err)
		}

		return image.NewRaw(info.Size()), nil
	}

	img, err := gcm.Open(fsys, path)
	if err != nil {
		return nil, err
	}

	if !img.Valid() {
		return nil, fmt.Errorf("%w: %s: %w", corrupt.ErrInvalidImage, path, img.Problem())
	}

	return img, nil
}

// newEngine builds the engine for cfg, picking a seed when none is set.
func newEngine(a *app, cfg config.Config) (*corrupt.Engine, uint64, error) {
	valid, err := cfg.Validator()
	if err != nil {
		return nil, 0, err
	}

	seed := rand.Uint64()
	if cfg.Seed != nil {
		seed = *cfg.Seed
	}

	a.log.Info("engine", "seed", seed, "operation", cfg.Operation.String())

	return corrupt.New(corrupt.Options{Seed: seed, Validator: valid, Logger: a.log}), seed, nil
}

func execCorrupt(ctx context.Context, o *IO, a *app, fs *flag.FlagSet, args []string) (err error) {
	if len(args) != 1 {
		return errImageArg
	}

	cfg, err := resolveRunConfig(a.cfg, fs)
	if err != nil {
		return err
	}

	imagePath := a.path(args[0])

	img, err := openImage(a.fs, imagePath, cfg.Format)
	if err != nil {
		return err
	}

	engine, seed, err := newEngine(a, cfg)
	if err != nil {
		return err
	}

	runCfg := cfg.Corrupt()

	if !runCfg.Active() {
		o.Warn("nothing to corrupt: set an operation with --op and at least one --file")

		return nil
	}

	dryRun, _ := fs.GetBool("dry-run")
	if dryRun {
		return dryRunCorrupt(o, a, engine, img, imagePath, runCfg, seed)
	}

	sess := session.New(a.fs, imagePath, runCfg, session.Options{
		Engine:    engine,
		Extension: cfg.Extension,
		Logger:    a.log,
	})

	defer func() {
		closeErr := sess.Close()
		if closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}()

	_, err = sess.Stage()
	if err != nil {
		return err
	}

	res, err := sess.Run(img)
	if err != nil {
		return err
	}

	printResult(o, res, seed, runCfg)

	if ctx.Err() != nil {
		return errInterrupted
	}

	out, err := sess.Save(imagePath)
	if err != nil {
		return err
	}

	if out == "" {
		o.Println("no bytes changed, nothing written")

		return nil
	}

	return printSaved(o, a, out)
}

func printResult(o *IO, res corrupt.Result, seed uint64, cfg corrupt.Config) {
	for _, skipped := range res.Skipped() {
		o.Warn("%s skipped (%s)", skipped.Name, skipped.Skipped)
	}

	report.Result(o.Out(), res)

	if cfg.Operation == corrupt.Random {
		o.Printf("seed: %d\n", seed)
	}
}

func printSaved(o *IO, a *app, out string) error {
	digest, err := report.DigestFile(a.fs, out)
	if err != nil {
		return err
	}

	o.Success("wrote %s", out)
	o.Println("blake3:", digest)

	return nil
}

// dryRunCorrupt runs the engine against the original. Writes stay in
// memory so a target listed twice sees its first pass.
func dryRunCorrupt(o *IO, a *app, engine *corrupt.Engine, img image.Image, path string, cfg corrupt.Config, seed uint64) error {
	f, err := a.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	res, err := engine.Corrupt(&overlay{File: f}, img, cfg)
	if err != nil {
		return err
	}

	printResult(o, res, seed, cfg)
	o.Println("dry run, nothing written")

	return nil
}

// overlay makes a read-only file usable as an engine stream. Writes are
// recorded and laid over later reads of the same region.
type overlay struct {
	fs.File
	pos     int64
	patches []patch
}

type patch struct {
	off  int64
	data []byte
}

func (o *overlay) Seek(offset int64, whence int) (int64, error) {
	pos, err := o.File.Seek(offset, whence)
	if err != nil {
		return pos, err
	}

	o.pos = pos

	return pos, nil
}

func (o *overlay) Read(p []byte) (int, error) {
	n, err := o.File.Read(p)
	o.apply(p[:n])
	o.pos += int64(n)

	return n, err
}

func (o *overlay) Write(p []byte) (int, error) {
	if _, err := o.File.Seek(int64(len(p)), io.SeekCurrent); err != nil {
		return 0, err
	}

	o.patches = append(o.patches, patch{off: o.pos, data: bytes.Clone(p)})
	o.pos += int64(len(p))

	return len(p), nil
}

// apply copies recorded writes into buf, which was read at o.pos. Later
// patches win.
func (o *overlay) apply(buf []byte) {
	end := o.pos + int64(len(buf))

	for _, p := range o.patches {
		lo := max(o.pos, p.off)
		hi := min(end, p.off+int64(len(p.data)))

		if lo < hi {
			copy(buf[lo-o.pos:hi-o.pos], p.data[lo-p.off:hi-p.off])
		}
	}
}
