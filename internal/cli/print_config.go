package cli

import (
	"context"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/mangle/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	fs := flag.NewFlagSet("print-config", flag.ContinueOnError)
	addRunFlags(fs)

	return &Command{
		Flags: fs,
		Usage: "print-config [flags]",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration, with any run flags applied, and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			cfg, err := resolveRunConfig(a.cfg, fs)
			if err != nil {
				return err
			}

			execPrintConfig(o, cfg)

			return nil
		},
	}
}

func execPrintConfig(o *IO, cfg config.Config) {
	o.Println("effective_cwd=" + cfg.EffectiveCwd)
	o.Println("operation=" + cfg.Operation.String())
	o.Println("value=" + cfg.Value.Hex())
	o.Println("start=" + cfg.Start.Hex())
	o.Println("end=" + cfg.End.Hex())
	o.Println("step=" + cfg.Step.Hex())
	o.Println("files=" + strings.Join(cfg.Files, ","))
	o.Println("output=" + cfg.Output)
	if cfg.Seed != nil {
		o.Printf("seed=%d\n", *cfg.Seed)
	} else {
		o.Println("seed=random")
	}
	o.Println("valid=" + cfg.Valid)
	o.Println("protect=" + strings.Join(cfg.Protect, ","))

	forbid := make([]string, 0, len(cfg.Forbid))
	for _, f := range cfg.Forbid {
		forbid = append(forbid, f.Hex())
	}

	o.Println("forbid=" + strings.Join(forbid, ","))
	o.Println("format=" + cfg.Format)
	o.Println("extension=" + cfg.Extension)
	o.Println("color=" + cfg.Color)

	o.Println("")
	o.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		o.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			o.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			o.Println("project_config=" + cfg.Sources.Project)
		}
	}
}
