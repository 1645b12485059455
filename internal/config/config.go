// Package config loads the layered JSONC configuration of a corruption run.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/mangle/internal/corrupt"
	"github.com/calvinalkan/mangle/internal/guard"
)

// Image formats.
const (
	FormatGCM = "gcm"
	FormatRaw = "raw"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Operation corrupt.Operation `json:"operation"`
	Value     Number            `json:"value"`
	Start     Number            `json:"start"`
	End       Number            `json:"end"`
	Step      Number            `json:"step"`
	Files     []string          `json:"files"`
	Output    string            `json:"output"`
	Seed      *uint64           `json:"seed"` // nil picks a random seed per run
	Valid     string            `json:"valid"`
	Protect   []string          `json:"protect"`
	Forbid    []Number          `json:"forbid"`
	Format    string            `json:"format"`
	Extension string            `json:"extension"`
	Color     string            `json:"color"`

	// Resolved (computed, not serialized)
	EffectiveCwd string `json:"-"` // Absolute working directory (from -C flag or os.Getwd)

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project or explicit config if loaded, empty otherwise
}

// Layer is one partial config. Nil fields leave the value below untouched.
// Config files decode into a Layer; CLI flags build one from the flags the
// user actually set.
type Layer struct {
	Operation *corrupt.Operation `json:"operation"`
	Value     *Number            `json:"value"`
	Start     *Number            `json:"start"`
	End       *Number            `json:"end"`
	Step      *Number            `json:"step"`
	Files     *[]string          `json:"files"`
	Output    *string            `json:"output"`
	Seed      *uint64            `json:"seed"`
	Valid     *string            `json:"valid"`
	Protect   *[]string          `json:"protect"`
	Forbid    *[]Number          `json:"forbid"`
	Format    *string            `json:"format"`
	Extension *string            `json:"extension"`
	Color     *string            `json:"color"`
}

// DefaultConfig returns the default configuration: no operation, the whole
// entry with step 1, GameCube format.
func DefaultConfig() Config {
	return Config{
		Operation: corrupt.None,
		End:       math.MaxUint32,
		Step:      1,
		Format:    FormatGCM,
		Extension: ".gcm",
		Color:     ColorAuto,
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".mangle.json"

// globalConfigPath returns $XDG_CONFIG_HOME/mangle/config.json if set,
// otherwise ~/.config/mangle/config.json. Empty if neither can be derived.
func globalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "mangle", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "mangle", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Layer             // CLI flags
	Env             map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config (~/.config/mangle/config.json or $XDG_CONFIG_HOME/mangle/config.json)
// 3. Project config file at default location (.mangle.json, if exists)
// 4. Explicit config file via ConfigPath (replaces 3, must exist)
// 5. CLI overrides.
//
// The output path is resolved against the working directory.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalLayer, globalPath, err := loadGlobal(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = cfg.Merge(globalLayer)

	projectLayer, projectPath, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = cfg.Merge(projectLayer)

	cfg = cfg.Merge(input.Overrides)

	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if cfg.Output != "" && !filepath.IsAbs(cfg.Output) {
		cfg.Output = filepath.Join(workDir, cfg.Output)
	}

	return cfg, nil
}

func loadGlobal(env map[string]string) (Layer, string, error) {
	path := globalConfigPath(env)
	if path == "" {
		return Layer{}, "", nil
	}

	layer, loaded, err := loadFile(path, false)
	if err != nil || !loaded {
		return Layer{}, "", err
	}

	return layer, path, nil
}

// loadProject loads .mangle.json from workDir, or the explicit config file.
func loadProject(workDir, configPath string) (Layer, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		_, statErr := os.Stat(cfgFile)
		if statErr != nil {
			return Layer{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, ConfigFileName)
	}

	layer, loaded, err := loadFile(cfgFile, mustExist)
	if err != nil || !loaded {
		return Layer{}, "", err
	}

	return layer, cfgFile, nil
}

// loadFile reads one config file. A missing optional file is not loaded
// and not an error.
func loadFile(path string, mustExist bool) (Layer, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if mustExist {
			return Layer{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
		}

		return Layer{}, false, nil
	}

	layer, err := Parse(data)
	if err != nil {
		return Layer{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return layer, true, nil
}

// Parse decodes a JSONC document (comments and trailing commas allowed).
func Parse(data []byte) (Layer, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Layer{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var layer Layer

	err = json.Unmarshal(standardized, &layer)
	if err != nil {
		return Layer{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return layer, nil
}

// Merge returns c with every field set in l applied.
func (c Config) Merge(l Layer) Config {
	if l.Operation != nil {
		c.Operation = *l.Operation
	}

	if l.Value != nil {
		c.Value = *l.Value
	}

	if l.Start != nil {
		c.Start = *l.Start
	}

	if l.End != nil {
		c.End = *l.End
	}

	if l.Step != nil {
		c.Step = *l.Step
	}

	if l.Files != nil {
		c.Files = slices.Clone(*l.Files)
	}

	if l.Output != nil {
		c.Output = *l.Output
	}

	if l.Seed != nil {
		seed := *l.Seed
		c.Seed = &seed
	}

	if l.Valid != nil {
		c.Valid = *l.Valid
	}

	if l.Protect != nil {
		c.Protect = slices.Clone(*l.Protect)
	}

	if l.Forbid != nil {
		c.Forbid = slices.Clone(*l.Forbid)
	}

	if l.Format != nil {
		c.Format = *l.Format
	}

	if l.Extension != nil {
		c.Extension = *l.Extension
	}

	if l.Color != nil {
		c.Color = *l.Color
	}

	return c
}

// Validate checks every field that later conversion relies on.
func (c Config) Validate() error {
	var err error

	switch {
	case c.Value > math.MaxUint8:
		err = fmt.Errorf("%w: value %s exceeds 0xFF", ErrValueRange, c.Value.Hex())
	case c.Start > math.MaxUint32:
		err = fmt.Errorf("%w: start %s exceeds 32 bits", ErrValueRange, c.Start.Hex())
	case c.End > math.MaxUint32:
		err = fmt.Errorf("%w: end %s exceeds 32 bits", ErrValueRange, c.End.Hex())
	case c.Step > math.MaxUint32:
		err = fmt.Errorf("%w: step %s exceeds 32 bits", ErrValueRange, c.Step.Hex())
	case c.Step == 0:
		err = corrupt.ErrStrideZero
	case c.Format != FormatGCM && c.Format != FormatRaw:
		err = fmt.Errorf("%w: %q (want %s or %s)", ErrUnknownFormat, c.Format, FormatGCM, FormatRaw)
	case c.Color != ColorAuto && c.Color != ColorAlways && c.Color != ColorNever:
		err = fmt.Errorf("%w: %q (want auto, always or never)", ErrUnknownColor, c.Color)
	case c.Extension == "":
		err = ErrExtensionEmpty
	}

	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	for _, f := range c.Forbid {
		if f > math.MaxUint8 {
			return fmt.Errorf("%w: %w: forbidden value %s exceeds 0xFF", ErrConfigInvalid, ErrValueRange, f.Hex())
		}
	}

	_, err = c.ranges()
	if err != nil {
		return fmt.Errorf("%w: protect: %w", ErrConfigInvalid, err)
	}

	_, err = guard.Validator(c.Valid)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	return nil
}

func (c Config) ranges() ([]corrupt.Range, error) {
	ranges := make([]corrupt.Range, 0, len(c.Protect))

	for _, s := range c.Protect {
		r, err := corrupt.ParseRange(s)
		if err != nil {
			return nil, err
		}

		ranges = append(ranges, r)
	}

	return ranges, nil
}

// Corrupt converts c to the engine's config. c must be valid.
func (c Config) Corrupt() corrupt.Config {
	return corrupt.Config{
		Operation:  c.Operation,
		Operand:    byte(c.Value),
		RangeStart: uint32(c.Start),
		RangeEnd:   uint32(c.End),
		Stride:     uint32(c.Step),
		Targets:    slices.Clone(c.Files),
		OutputPath: c.Output,
	}
}

// Validator combines the expression rule, protected ranges and forbidden
// values into one validator.
func (c Config) Validator() (corrupt.Validator, error) {
	rule, err := guard.Validator(c.Valid)
	if err != nil {
		return nil, err
	}

	ranges, err := c.ranges()
	if err != nil {
		return nil, err
	}

	forbid := make([]byte, 0, len(c.Forbid))
	for _, f := range c.Forbid {
		forbid = append(forbid, byte(f))
	}

	return corrupt.All(rule, corrupt.Protect(ranges...), corrupt.Forbid(forbid...)), nil
}
