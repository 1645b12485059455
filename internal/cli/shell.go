package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/mangle/internal/config"
	"github.com/calvinalkan/mangle/internal/corrupt"
	"github.com/calvinalkan/mangle/internal/image"
	"github.com/calvinalkan/mangle/internal/report"
	"github.com/calvinalkan/mangle/internal/session"
)

const shellPrompt = "mangle> "

var shellCommands = []string{"ls", "files", "set", "show", "run", "save", "help", "quit"}

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	fs := flag.NewFlagSet("shell", flag.ContinueOnError)
	addRunFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "shell <image> [flags]",
		Short: "Apply several passes to one working copy interactively",
		Long: `Open an interactive shell on one working copy of the image. Each "run"
applies the current settings on top of earlier passes; "save" writes the
result. Reads commands line by line when stdin is not a terminal.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execShell(ctx, o, a, fs, args)
		},
	}
}

type lister interface {
	Entries() []image.Entry
}

type shell struct {
	o     *IO
	a     *app
	cfg   config.Config
	img   image.Image
	sess  *session.Session
	path  string
	seed  uint64
	liner *liner.State
}

func execShell(ctx context.Context, o *IO, a *app, fs *flag.FlagSet, args []string) (err error) {
	if len(args) != 1 {
		return errImageArg
	}

	cfg, err := resolveRunConfig(a.cfg, fs)
	if err != nil {
		return err
	}

	path := a.path(args[0])

	img, err := openImage(a.fs, path, cfg.Format)
	if err != nil {
		return err
	}

	engine, seed, err := newEngine(a, cfg)
	if err != nil {
		return err
	}

	sess := session.New(a.fs, path, cfg.Corrupt(), session.Options{
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

	sh := &shell{o: o, a: a, cfg: cfg, img: img, sess: sess, path: path, seed: seed}

	if f, ok := a.stdin.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return sh.interactive(ctx)
	}

	return sh.script(ctx, a.stdin)
}

// script executes newline separated commands from r until EOF or quit.
func (sh *shell) script(ctx context.Context, r io.Reader) error {
	if r == nil {
		return nil
	}

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return errInterrupted
		}

		quit, err := sh.exec(ctx, scanner.Text())
		if err != nil {
			return err
		}

		if quit {
			return nil
		}
	}

	return scanner.Err()
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".mangle_history")
}

// interactive runs the liner prompt loop.
func (sh *shell) interactive(ctx context.Context) error {
	sh.liner = liner.NewLiner()
	defer sh.liner.Close()

	sh.liner.SetCtrlCAborts(true)
	sh.liner.SetCompleter(func(line string) []string {
		var out []string

		for _, c := range shellCommands {
			if strings.HasPrefix(c, strings.ToLower(line)) {
				out = append(out, c)
			}
		}

		return out
	})

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = sh.liner.ReadHistory(f)
		_ = f.Close()
	}

	defer sh.saveHistory()

	sh.o.Printf("mangle shell on %s (type 'help' for commands)\n", sh.path)

	for ctx.Err() == nil {
		line, err := sh.liner.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				sh.warnUnsaved()

				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		if strings.TrimSpace(line) != "" {
			sh.liner.AppendHistory(line)
		}

		quit, err := sh.exec(ctx, line)
		if err != nil {
			return err
		}

		if quit {
			return nil
		}
	}

	return errInterrupted
}

func (sh *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = sh.liner.WriteHistory(f)
			_ = f.Close()
		}
	}
}

// exec runs one shell line. Mistakes in a line are printed and the shell
// goes on; only working-file failures end it.
func (sh *shell) exec(ctx context.Context, line string) (bool, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 || strings.HasPrefix(parts[0], "#") {
		return false, nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error

	switch cmd {
	case "quit", "exit", "q":
		sh.warnUnsaved()

		return true, nil
	case "help", "?":
		sh.help()
	case "ls", "list":
		sh.ls(args)
	case "files":
		sh.files(args)
	case "set":
		err = sh.set(args)
	case "show":
		sh.show()
	case "run":
		err = sh.run()
	case "save":
		err = sh.save(ctx, args)
	default:
		err = fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}

	if err == nil {
		return false, nil
	}

	if errors.Is(err, session.ErrInvalidFile) || errors.Is(err, errInterrupted) {
		return false, err
	}

	sh.o.Error(err)

	return false, nil
}

func (sh *shell) warnUnsaved() {
	if sh.sess.State() == session.Mutated {
		sh.o.Warn("unsaved changes discarded")
	}
}

func (sh *shell) help() {
	sh.o.Println(`Commands:
  ls [prefix]          List entries
  files [name...]      Show or replace the target entries
  set <key> <value>    Change op, value, start, end, step or out
  show                 Show current settings and working copy state
  run                  Apply the current settings to the working copy
  save                 Write the working copy to the output path
  help                 Show this help
  quit                 Leave (unsaved changes are discarded)`)
}

func (sh *shell) ls(args []string) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}

	l, ok := sh.img.(lister)
	if !ok {
		return
	}

	report.Entries(sh.o.Out(), l.Entries(), prefix)
}

func (sh *shell) files(args []string) {
	if len(args) > 0 {
		sh.cfg.Files = slices.Clone(args)
	}

	sh.o.Println("files:", strings.Join(sh.cfg.Files, " "))
}

var errSetUsage = errors.New("usage: set <op|value|start|end|step|out> <value>")

func (sh *shell) set(args []string) error {
	if len(args) != 2 {
		return errSetUsage
	}

	key, raw := strings.ToLower(args[0]), args[1]

	var layer config.Layer

	switch key {
	case "op", "operation":
		op, err := corrupt.ParseOperation(raw)
		if err != nil {
			return err
		}

		layer.Operation = &op
	case "value", "start", "end", "step":
		v, err := config.ParseNumber(raw)
		if err != nil {
			return err
		}

		switch key {
		case "value":
			layer.Value = &v
		case "start":
			layer.Start = &v
		case "end":
			layer.End = &v
		default:
			layer.Step = &v
		}
	case "out", "output":
		out := sh.a.path(raw)
		layer.Output = &out
	default:
		return errSetUsage
	}

	cfg := sh.cfg.Merge(layer)

	err := cfg.Validate()
	if err != nil {
		return err
	}

	sh.cfg = cfg

	return nil
}

func (sh *shell) show() {
	sh.o.Println("operation:", sh.cfg.Operation.String())
	sh.o.Println("value:", sh.cfg.Value.Hex())
	sh.o.Println("range:", sh.cfg.Start.Hex()+"-"+sh.cfg.End.Hex())
	sh.o.Println("step:", sh.cfg.Step.Hex())
	sh.o.Println("files:", strings.Join(sh.cfg.Files, " "))
	sh.o.Println("output:", sh.sess.OutputPath(sh.path))
	sh.o.Println("state:", sh.sess.State().String())
}

func (sh *shell) run() error {
	cfg := sh.cfg.Corrupt()
	sh.sess.Reconfigure(cfg)

	staged, err := sh.sess.Stage()
	if err != nil {
		return err
	}

	if !staged {
		return errors.New("nothing to corrupt: set an operation and at least one file")
	}

	res, err := sh.sess.Run(sh.img)
	if err != nil {
		return err
	}

	printResult(sh.o, res, sh.seed, cfg)
	sh.o.Println("state:", sh.sess.State().String())

	return nil
}

func (sh *shell) save(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return errors.New("usage: save [path]")
	}

	if len(args) == 1 {
		err := sh.set([]string{"out", args[0]})
		if err != nil {
			return err
		}

		sh.sess.Reconfigure(sh.cfg.Corrupt())
	}

	if ctx.Err() != nil {
		return errInterrupted
	}

	out, err := sh.sess.Save(sh.path)
	if err != nil {
		return err
	}

	if out == "" {
		sh.o.Println("nothing to save: no bytes changed")

		return nil
	}

	return printSaved(sh.o, sh.a, out)
}
