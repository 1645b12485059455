package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/mangle/internal/gcm"
	"github.com/calvinalkan/mangle/internal/report"
)

// LsCmd returns the ls command.
func LsCmd(a *app) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	fs.Bool("system", true, "Include sys/ entries (boot.bin, main.dol, ...)")

	return &Command{
		Flags: fs,
		Usage: "ls <image> [prefix]",
		Short: "List entries of a GameCube image",
		Long:  "List every entry with its offset and size. A prefix keeps only paths starting with it.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execLs(o, a, fs, args)
		},
	}
}

var errLsArgs = errors.New("usage: ls <image> [prefix]")

func execLs(o *IO, a *app, fs *flag.FlagSet, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errLsArgs
	}

	prefix := ""
	if len(args) == 2 {
		prefix = args[1]
	}

	img, err := gcm.Open(a.fs, a.path(args[0]))
	if err != nil {
		return err
	}

	if !img.Valid() {
		o.Warn("image is damaged, listing what could be parsed: %v", img.Problem())
	}

	entries := img.Files()

	system, _ := fs.GetBool("system")
	if system {
		entries = img.Entries()
	}

	if report.Entries(o.Out(), entries, prefix) == 0 {
		o.Warn("no entries match %q", prefix)
	}

	return nil
}
