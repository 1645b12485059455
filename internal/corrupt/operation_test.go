package corrupt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/mangle/internal/corrupt"
)

func TestParseOperation_NamesAndAliases(t *testing.T) {
	t.Parallel()

	for _, op := range corrupt.Operations() {
		got, err := corrupt.ParseOperation(op.String())
		require.NoError(t, err)
		assert.Equal(t, op, got)

		for _, alias := range op.Aliases() {
			got, err := corrupt.ParseOperation(alias)
			require.NoError(t, err, alias)
			assert.Equal(t, op, got, alias)
		}
	}

	got, err := corrupt.ParseOperation("  XOR ")
	require.NoError(t, err)
	assert.Equal(t, corrupt.Xor, got)

	got, err = corrupt.ParseOperation("")
	require.NoError(t, err)
	assert.Equal(t, corrupt.None, got)

	_, err = corrupt.ParseOperation("scramble")
	require.ErrorIs(t, err, corrupt.ErrUnknownOperation)
}

func TestOperation_TextRoundTrip(t *testing.T) {
	t.Parallel()

	var op corrupt.Operation

	require.NoError(t, op.UnmarshalText([]byte("rotate-right")))
	assert.Equal(t, corrupt.RotateRight, op)

	text, err := op.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ror", string(text))

	assert.Equal(t, "Operation(42)", corrupt.Operation(42).String())
}

func TestConfig_ActiveAndValidate(t *testing.T) {
	t.Parallel()

	cfg := corrupt.DefaultConfig()
	assert.False(t, cfg.Active(), "default config does nothing")
	require.NoError(t, cfg.Validate())

	cfg.Operation = corrupt.Xor
	assert.False(t, cfg.Active(), "no targets")

	cfg.Targets = []string{"main.dol"}
	assert.True(t, cfg.Active())

	cfg.Stride = 0
	require.ErrorIs(t, cfg.Validate(), corrupt.ErrStrideZero)

	cfg.Stride = 1
	cfg.Operation = corrupt.Operation(77)
	require.ErrorIs(t, cfg.Validate(), corrupt.ErrUnknownOperation)
}
