package config_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/mangle/internal/config"
	"github.com/calvinalkan/mangle/internal/corrupt"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func ptr[T any](v T) *T {
	return &v
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)

	want := config.DefaultConfig()
	want.EffectiveCwd = dir

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	assert.False(t, cfg.Corrupt().Active())
}

func TestLoad_LayersInPrecedenceOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := filepath.Join(dir, "xdg")

	writeFile(t, filepath.Join(xdg, "mangle", "config.json"), `{
		// global defaults
		"operation": "add",
		"value": 1,
		"step": "0x10",
		"color": "never",
	}`)
	writeFile(t, filepath.Join(dir, ".mangle.json"), `{
		"value": "0x7F",
		"files": ["main.dol", "opening.bnr"],
		"protect": ["0-0x20"],
	}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: dir,
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
		Overrides: config.Layer{
			Operation: ptr(corrupt.Xor),
			Output:    ptr("out/broken.gcm"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, corrupt.Xor, cfg.Operation)
	assert.Equal(t, config.Number(0x7F), cfg.Value)
	assert.Equal(t, config.Number(0x10), cfg.Step)
	assert.Equal(t, config.ColorNever, cfg.Color)
	assert.Equal(t, []string{"main.dol", "opening.bnr"}, cfg.Files)
	assert.Equal(t, filepath.Join(dir, "out", "broken.gcm"), cfg.Output)
	assert.Equal(t, filepath.Join(xdg, "mangle", "config.json"), cfg.Sources.Global)
	assert.Equal(t, filepath.Join(dir, ".mangle.json"), cfg.Sources.Project)

	cc := cfg.Corrupt()
	assert.Equal(t, corrupt.Config{
		Operation:  corrupt.Xor,
		Operand:    0x7F,
		RangeStart: 0,
		RangeEnd:   math.MaxUint32,
		Stride:     0x10,
		Targets:    []string{"main.dol", "opening.bnr"},
		OutputPath: filepath.Join(dir, "out", "broken.gcm"),
	}, cc)
}

func TestLoad_GlobalFallsBackToHome(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	home := filepath.Join(dir, "home")
	writeFile(t, filepath.Join(home, ".config", "mangle", "config.json"), `{"format": "raw"}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{"HOME": home}})
	require.NoError(t, err)
	assert.Equal(t, config.FormatRaw, cfg.Format)
}

func TestLoad_SeedZeroIsNotUnset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)
	assert.Nil(t, cfg.Seed)

	writeFile(t, filepath.Join(dir, ".mangle.json"), `{"seed": 0}`)

	cfg, err = config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, uint64(0), *cfg.Seed)

	cfg, err = config.Load(config.LoadInput{
		WorkDirOverride: dir,
		Env:             map[string]string{},
		Overrides:       config.Layer{Seed: ptr(uint64(7))},
	})
	require.NoError(t, err)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, uint64(7), *cfg.Seed)
}

func TestLoad_ExplicitConfigReplacesProjectFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".mangle.json"), `{"operation": "set", "value": 9}`)
	writeFile(t, filepath.Join(dir, "runs", "swap.json"), `{"operation": "swap"}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, ConfigPath: "runs/swap.json"})
	require.NoError(t, err)

	assert.Equal(t, corrupt.Swap, cfg.Operation)
	assert.Equal(t, config.Number(0), cfg.Value)
	assert.Equal(t, filepath.Join(dir, "runs", "swap.json"), cfg.Sources.Project)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		project   string
		configArg string
		overrides config.Layer
		wantErr   error
	}{
		{name: "MissingExplicitFile", configArg: "nope.json", wantErr: config.ErrConfigFileNotFound},
		{name: "BrokenJSON", project: `{"operation": `, wantErr: config.ErrConfigInvalid},
		{name: "UnknownOperation", project: `{"operation": "explode"}`, wantErr: corrupt.ErrUnknownOperation},
		{name: "ZeroStep", project: `{"step": 0}`, wantErr: corrupt.ErrStrideZero},
		{name: "ValueTooLarge", overrides: config.Layer{Value: ptr(config.Number(256))}, wantErr: config.ErrValueRange},
		{name: "ForbidTooLarge", project: `{"forbid": [1, "0x100"]}`, wantErr: config.ErrValueRange},
		{name: "UnknownFormat", project: `{"format": "wii"}`, wantErr: config.ErrUnknownFormat},
		{name: "UnknownColor", overrides: config.Layer{Color: ptr("rainbow")}, wantErr: config.ErrUnknownColor},
		{name: "EmptyExtension", project: `{"extension": ""}`, wantErr: config.ErrExtensionEmpty},
		{name: "BadRange", project: `{"protect": ["10-2"]}`, wantErr: config.ErrConfigInvalid},
		{name: "BadRule", project: `{"valid": "b +"}`, wantErr: config.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			if tt.project != "" {
				writeFile(t, filepath.Join(dir, ".mangle.json"), tt.project)
			}

			_, err := config.Load(config.LoadInput{
				WorkDirOverride: dir,
				ConfigPath:      tt.configArg,
				Overrides:       tt.overrides,
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_Validator(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Valid = "b != 7"
	cfg.Protect = []string{"0-2", "10-12"}
	cfg.Forbid = []config.Number{0, 0xFF}

	valid, err := cfg.Validator()
	require.NoError(t, err)

	tests := []struct {
		b    byte
		i    int
		want bool
	}{
		{b: 1, i: 0, want: false},
		{b: 1, i: 2, want: true},
		{b: 1, i: 11, want: false},
		{b: 1, i: 12, want: true},
		{b: 7, i: 5, want: false},
		{b: 0, i: 5, want: false},
		{b: 0xFF, i: 5, want: false},
		{b: 0x80, i: 5, want: true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, valid(tt.b, tt.i), "b=%d i=%d", tt.b, tt.i)
	}
}

func TestParseNumber(t *testing.T) {
	t.Parallel()

	n, err := config.ParseNumber(" 0x1F ")
	require.NoError(t, err)
	assert.Equal(t, config.Number(31), n)
	assert.Equal(t, "0x1F", n.Hex())

	_, err = config.ParseNumber("ten")
	require.Error(t, err)
}
