package cli_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/mangle/internal/cli"
	"github.com/calvinalkan/mangle/internal/gcm"
	"github.com/calvinalkan/mangle/internal/testutil"
)

func writeGame(c *cli.CLI) string {
	return c.WriteDisc("game.iso",
		testutil.DiscFile{Path: "data/level.bin", Data: []byte{0x10, 0x20, 0x30, 0x40}},
		testutil.DiscFile{Path: "data/empty.bin"},
		testutil.DiscFile{Path: "sound/bgm.adp", Data: testutil.Fill(0x40, 0x7F)},
	)
}

// entryBytes returns the bytes of entry name inside the image file.
func entryBytes(t *testing.T, c *cli.CLI, file, name string) []byte {
	t.Helper()

	data := c.ReadFile(file)
	img := gcm.Parse(bytes.NewReader(data), int64(len(data)))
	require.True(t, img.Valid(), "saved image invalid: %v", img.Problem())

	e, err := img.Lookup(name)
	require.NoError(t, err)

	return data[e.Offset:e.End()]
}

func Test_No_Args_Prints_Usage(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()

	cli.AssertContains(t, stdout, "Usage: mangle")
	cli.AssertContains(t, stdout, "corrupt <image>")
	cli.AssertContains(t, stdout, "shell <image>")
}

func Test_Unknown_Command_Fails(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("explode")

	cli.AssertContains(t, stderr, "unknown command: explode")
}

func Test_Corrupt_Writes_New_Image(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)
	pristine := c.ReadFile(image)

	stdout := c.MustRun("corrupt", image, "--op", "add", "--value", "5", "--file", "level.bin")

	cli.AssertContains(t, stdout, "level.bin")
	cli.AssertContains(t, stdout, "wrote "+filepath.Join(c.Dir, "game.iso.gcm"))
	cli.AssertContains(t, stdout, "blake3:")

	assert.Equal(t, []byte{0x15, 0x25, 0x35, 0x40}, entryBytes(t, c, "game.iso.gcm", "level.bin"))
	assert.Equal(t, pristine, c.ReadFile(image), "original must stay untouched")
	assert.Equal(t, []string{"game.iso", "game.iso.gcm"}, testutil.DirEntries(t, c.Dir))
}

func Test_Corrupt_Without_Operation_Writes_Nothing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	_, stderr, code := c.Run("corrupt", image, "--file", "level.bin")

	assert.Equal(t, 0, code)
	cli.AssertContains(t, stderr, "warning: nothing to corrupt")
	assert.Equal(t, []string{"game.iso"}, testutil.DirEntries(t, c.Dir))
}

func Test_Corrupt_Skips_Missing_Entries(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	stdout, stderr, code := c.Run("corrupt", image, "--op", "xor", "--value", "0xFF",
		"--file", "ghost.bin", "--file", "empty.bin", "--file", "bgm.adp")

	require.Equal(t, 0, code, stderr)
	cli.AssertContains(t, stderr, "warning: ghost.bin skipped (not found)")
	cli.AssertContains(t, stderr, "warning: empty.bin skipped (empty)")
	cli.AssertNotContains(t, stderr, "warning: data/empty.bin")
	cli.AssertContains(t, stdout, "sound/bgm.adp")
	cli.AssertContains(t, stdout, "wrote")

	got := entryBytes(t, c, "game.iso.gcm", "sound/bgm.adp")
	assert.Equal(t, append(testutil.Fill(0x3F, 0x80), 0x7F), got)
}

func Test_Corrupt_No_Change_Writes_Nothing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	stdout := c.MustRun("corrupt", image, "--op", "set", "--value", "0", "--file", "bgm.adp", "--valid", "b == 1")

	cli.AssertContains(t, stdout, "no bytes changed")
	assert.Equal(t, []string{"game.iso"}, testutil.DirEntries(t, c.Dir))
}

func Test_Corrupt_Dry_Run_Writes_Nothing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	stdout := c.MustRun("corrupt", image, "--op", "not", "--file", "level.bin", "--dry-run")

	cli.AssertContains(t, stdout, "dry run")
	cli.AssertContains(t, stdout, "level.bin")
	assert.Equal(t, []string{"game.iso"}, testutil.DirEntries(t, c.Dir))
}

func Test_Corrupt_Explicit_Output_And_Rules(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	c.MustRun("corrupt", image, "--op", "set", "--value", "0", "--file", "bgm.adp",
		"--protect", "0-0x10", "--valid", "i % 2 == 0", "--out", "broken.iso")

	got := entryBytes(t, c, "broken.iso", "bgm.adp")

	for i, b := range got {
		want := byte(0x7F)
		if i >= 0x10 && i%2 == 0 && i < len(got)-1 {
			want = 0
		}

		assert.Equal(t, want, b, "index %d", i)
	}
}

func Test_Corrupt_Random_Is_Reproducible_With_Seed(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	stdout := c.MustRun("corrupt", image, "--op", "random", "--seed", "42", "--file", "bgm.adp", "--out", "a.iso")
	cli.AssertContains(t, stdout, "seed: 42")

	c.MustRun("corrupt", image, "--op", "rand", "--seed", "42", "--file", "bgm.adp", "--out", "b.iso")

	assert.Equal(t, c.ReadFile("a.iso"), c.ReadFile("b.iso"))
}

func Test_Corrupt_Seed_Zero_Is_Reproducible(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	stdout := c.MustRun("corrupt", image, "--op", "random", "--seed", "0", "--file", "bgm.adp", "--out", "a.iso")
	cli.AssertContains(t, stdout, "seed: 0\n")

	stdout = c.MustRun("corrupt", image, "--op", "random", "--seed", "0", "--file", "bgm.adp", "--out", "b.iso")
	cli.AssertContains(t, stdout, "seed: 0\n")

	assert.Equal(t, c.ReadFile("a.iso"), c.ReadFile("b.iso"))
}

func Test_Corrupt_Dry_Run_Sees_Earlier_Passes(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	// The second pass over level.bin only finds room for a mutation if it
	// reads the pristine bytes again.
	args := []string{"corrupt", image, "--op", "add", "--value", "0x10", "--valid", "b < 48",
		"--file", "level.bin", "--file", "level.bin"}

	dry := c.MustRun(append(args, "--dry-run")...)
	table, _, found := strings.Cut(dry, "dry run")
	require.True(t, found, "dry run output: %s", dry)

	saved := c.MustRun(append(args, "--out", "broken.iso")...)
	assert.Contains(t, saved, table)
	assert.Equal(t, []byte{0x20, 0x20, 0x30, 0x40}, entryBytes(t, c, "broken.iso", "data/level.bin"))
}

func Test_Corrupt_Raw_Format_Uses_Whole_File(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("blob.bin", "abcdef")

	c.MustRun("corrupt", "blob.bin", "--format", "raw", "--op", "set", "--value", "0x5A",
		"--file", "*", "--start", "2", "--end", "4", "--ext", ".bad")

	assert.Equal(t, []byte("abZZef"), c.ReadFile("blob.bin.bad"))
}

func Test_Corrupt_Reads_Project_Config(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)
	c.WriteFile(".mangle.json", `{
		// bump every other byte
		"operation": "add",
		"value": 1,
		"files": ["level.bin"],
		"step": 2,
	}`)

	c.MustRun("corrupt", image)

	// Index 2 is not visited: 2+2 is not below the length.
	assert.Equal(t, []byte{0x11, 0x20, 0x30, 0x40}, entryBytes(t, c, "game.iso.gcm", "level.bin"))
}

func Test_Corrupt_Rejects_Invalid_Image(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.WriteFile("junk.iso", strings.Repeat("x", 0x3000))

	stderr := c.MustFail("corrupt", "junk.iso", "--op", "add", "--file", "main.dol")

	cli.AssertContains(t, stderr, "image structure is invalid")
	assert.Equal(t, []string{"junk.iso"}, testutil.DirEntries(t, c.Dir))
}

func Test_Corrupt_Rejects_Bad_Flags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "UnknownOperation", args: []string{"--op", "explode"}, want: "unknown operation"},
		{name: "ZeroStep", args: []string{"--op", "add", "--step", "0"}, want: "step must be greater than zero"},
		{name: "ValueTooLarge", args: []string{"--op", "add", "--value", "300"}, want: "value out of range"},
		{name: "BadForbid", args: []string{"--op", "add", "--forbid", "1,x"}, want: "--forbid"},
		{name: "BadRule", args: []string{"--op", "add", "--valid", "b +"}, want: "invalid validity rule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := cli.NewCLI(t)
			image := writeGame(c)

			stderr := c.MustFail(append([]string{"corrupt", image, "--file", "level.bin"}, tt.args...)...)
			cli.AssertContains(t, stderr, tt.want)
			assert.Equal(t, []string{"game.iso"}, testutil.DirEntries(t, c.Dir))
		})
	}
}

func Test_Ls_Lists_Entries(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	stdout := c.MustRun("ls", image)
	cli.AssertContains(t, stdout, "data/level.bin")
	cli.AssertContains(t, stdout, "sound/bgm.adp")
	cli.AssertContains(t, stdout, "sys/main.dol")

	stdout = c.MustRun("ls", image, "data/")
	cli.AssertContains(t, stdout, "data/empty.bin")
	cli.AssertNotContains(t, stdout, "bgm.adp")

	stdout = c.MustRun("ls", "--system=false", image)
	cli.AssertNotContains(t, stdout, "sys/")
}

func Test_Info_Shows_Header(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	stdout := c.MustRun("info", "--digest", image)
	cli.AssertContains(t, stdout, "GMNE01")
	cli.AssertContains(t, stdout, "MANGLE TEST DISC")
	cli.AssertContains(t, stdout, "BLAKE3")
}

func Test_Ops_Lists_Operations(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("ops")

	for _, name := range []string{"shift", "swap", "add", "set", "random", "rol", "ror", "and", "or", "xor", "not"} {
		cli.AssertContains(t, stdout, name)
	}
}

func Test_Print_Config_Defaults(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("print-config")

	cli.AssertContains(t, stdout, "effective_cwd="+c.Dir)
	cli.AssertContains(t, stdout, "operation=none")
	cli.AssertContains(t, stdout, "end=0xFFFFFFFF")
	cli.AssertContains(t, stdout, "format=gcm")
	cli.AssertContains(t, stdout, "seed=random")
	cli.AssertContains(t, stdout, "(defaults only)")
}

func Test_Print_Config_Layers(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	xdg := filepath.Join(c.Dir, "xdg")
	c.Env["XDG_CONFIG_HOME"] = xdg
	c.WriteFile(filepath.Join("xdg", "mangle", "config.json"), `{"operation": "xor", "value": 3}`)
	c.WriteFile("custom.json", `{"files": ["a.bin", "b.bin"]}`)

	stdout := c.MustRun("-c", "custom.json", "print-config", "--value", "0x10")

	cli.AssertContains(t, stdout, "operation=xor")
	cli.AssertContains(t, stdout, "value=0x10")
	cli.AssertContains(t, stdout, "files=a.bin,b.bin")
	cli.AssertContains(t, stdout, "global_config="+filepath.Join(xdg, "mangle", "config.json"))
	cli.AssertContains(t, stdout, "project_config="+filepath.Join(c.Dir, "custom.json"))
}

func Test_Shell_Applies_Several_Passes(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	script := strings.Join([]string{
		"files level.bin",
		"set op add",
		"set value 5",
		"run",
		"set op xor",
		"set value 0xFF",
		"set end 1",
		"run",
		"show",
		"save",
		"quit",
	}, "\n")

	stdout, stderr, code := c.RunWithInput(script, "shell", image)
	require.Equal(t, 0, code, stderr)

	cli.AssertContains(t, stdout, "state: mutated")
	cli.AssertContains(t, stdout, "wrote")

	assert.Equal(t, []byte{0x15 ^ 0xFF, 0x25, 0x35, 0x40}, entryBytes(t, c, "game.iso.gcm", "level.bin"))
	assert.Equal(t, []string{"game.iso", "game.iso.gcm"}, testutil.DirEntries(t, c.Dir))
}

func Test_Shell_Discards_Unsaved_Changes(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	image := writeGame(c)

	script := "set op not\nfiles bgm.adp\nrun\nbogus\nset speed 3\nquit\n"

	stdout, stderr, code := c.RunWithInput(script, "shell", image)
	require.Equal(t, 0, code, stderr)

	cli.AssertContains(t, stdout, "state: mutated")
	cli.AssertContains(t, stderr, "error: unknown command: bogus")
	cli.AssertContains(t, stderr, "error: usage: set")
	cli.AssertContains(t, stderr, "warning: unsaved changes discarded")
	assert.Equal(t, []string{"game.iso"}, testutil.DirEntries(t, c.Dir))
}
