// Package cli implements the mangle command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/mangle/internal/config"
	"github.com/calvinalkan/mangle/internal/fs"
)

// app is what every command needs besides its own flags.
type app struct {
	cfg   config.Config
	fs    fs.FS
	log   *slog.Logger
	stdin io.Reader
}

// path resolves p against the effective working directory.
func (a *app) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(a.cfg.EffectiveCwd, p)
}

type globalFlags struct {
	workDir    string
	configPath string
	verbose    int
	color      string
	help       bool
	remaining  []string
	set        *flag.FlagSet
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var g globalFlags

	fs := flag.NewFlagSet("mangle", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(&strings.Builder{})
	fs.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	fs.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	fs.CountVarP(&g.verbose, "verbose", "v", "Log more (repeat for debug output)")
	fs.StringVar(&g.color, "color", "", "Color output: auto, always or never")
	fs.BoolVarP(&g.help, "help", "h", false, "Show help")

	err := fs.Parse(args)
	if err != nil {
		return globalFlags{}, err
	}

	g.remaining = fs.Args()
	g.set = fs

	return g, nil
}

// newLogger returns a text logger on w without timestamps. verbosity 0 logs
// warnings, 1 adds info, 2 and more add debug.
func newLogger(w io.Writer, verbosity int) *slog.Logger {
	level := slog.LevelWarn

	switch {
	case verbosity >= 2:
		level = slog.LevelDebug
	case verbosity == 1:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}

			return a
		},
	}))
}

func allCommands(a *app) []*Command {
	return []*Command{
		CorruptCmd(a),
		LsCmd(a),
		InfoCmd(a),
		OpsCmd(),
		ShellCmd(a),
		PrintConfigCmd(a),
	}
}

// Run is the main entry point. Returns exit code.
//
// A signal on sigCh cancels the command context; commands check it before
// writing output files. sigCh may be nil.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) == 0 {
		args = []string{"mangle"}
	}

	flags, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, nil)

		return 1
	}

	if flags.help || len(flags.remaining) == 0 {
		printUsage(out, allCommands(&app{}))

		return 0
	}

	workDir := flags.workDir
	if workDir != "" {
		workDir, err = filepath.Abs(workDir)
		if err != nil {
			fprintln(errOut, "error: cannot resolve working directory:", err)

			return 1
		}
	}

	var overrides config.Layer
	if flags.set.Changed("color") {
		overrides.Color = &flags.color
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: workDir,
		ConfigPath:      flags.configPath,
		Overrides:       overrides,
		Env:             env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	a := &app{
		cfg:   cfg,
		fs:    fs.NewReal(),
		log:   newLogger(errOut, flags.verbose),
		stdin: stdin,
	}

	commands := allCommands(a)

	name := flags.remaining[0]

	var cmd *Command

	for _, c := range commands {
		if c.Name() == name {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", name)
		printUsage(errOut, commands)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case sig := <-sigCh:
			a.log.Warn("interrupted", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return cmd.Run(ctx, NewIO(out, errOut, cfg.Color), flags.remaining[1:])
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, `mangle - deterministic byte corruption of disc-image entries

Usage: mangle [options] <command> [args]

Options:
  -C, --cwd <dir>       Run as if started in <dir>
  -c, --config <file>   Use specified config file
  -v, --verbose         Log more (repeat for debug output)
      --color <mode>    Color output: auto, always or never`)

	if len(commands) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	for _, c := range commands {
		fprintln(w, c.HelpLine())
	}

	fprintln(w)
	fprintln(w, `Run "mangle <command> --help" for command flags.`)
}
