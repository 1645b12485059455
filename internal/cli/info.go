package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/mangle/internal/gcm"
	"github.com/calvinalkan/mangle/internal/report"
)

// InfoCmd returns the info command.
func InfoCmd(a *app) *Command {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.Bool("digest", false, "Also print the BLAKE3 digest of the whole image")

	return &Command{
		Flags: fs,
		Usage: "info <image> [flags]",
		Short: "Show the disc header and whether the image is valid",
		Exec: func(_ context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errImageArg
			}

			path := a.path(args[0])

			img, err := gcm.Open(a.fs, path)
			if err != nil {
				return err
			}

			var digest string

			withDigest, _ := fs.GetBool("digest")
			if withDigest {
				digest, err = report.DigestFile(a.fs, path)
				if err != nil {
					return err
				}
			}

			report.Info(o.Out(), img, digest)

			if !img.Valid() {
				return errors.New("image is not a valid GameCube disc")
			}

			return nil
		},
	}
}

// OpsCmd returns the ops command.
func OpsCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("ops", flag.ContinueOnError),
		Usage: "ops",
		Short: "List corruption operations",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			report.Operations(o.Out())

			return nil
		},
	}
}
