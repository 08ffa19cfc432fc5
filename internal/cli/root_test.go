package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "mnemosyne", cmd.Use)
	assert.Contains(t, cmd.Long, "verified ledger")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"ingest"}, {"doc"}, {"search"}, {"ask"}, {"stats"}, {"test"},
		{"ledger", "scan"}, {"ledger", "find"},
		{"claim", "propose"}, {"claim", "vote"}, {"claim", "decide"},
		{"claim", "tally"}, {"claim", "get"}, {"claim", "list"},
		{"seed", "export"}, {"seed", "import"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "data-dir", "log-level", "vote-policy", "quorum", "metrics"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		path []string
		flag string
	}{
		{[]string{"ingest"}, "title"},
		{[]string{"ingest"}, "license"},
		{[]string{"doc"}, "raw"},
		{[]string{"doc"}, "provenance"},
		{[]string{"search"}, "limit"},
		{[]string{"claim", "propose"}, "source"},
		{[]string{"claim", "vote"}, "decision"},
		{[]string{"claim", "vote"}, "value"},
		{[]string{"claim", "decide"}, "reviewer"},
		{[]string{"claim", "tally"}, "history"},
		{[]string{"seed", "export"}, "output"},
		{[]string{"seed", "import"}, "import-mode"},
		{[]string{"test"}, "update"},
	}
	for _, tt := range tests {
		sub, _, err := cmd.Find(tt.path)
		require.NoError(t, err)
		assert.NotNil(t, sub.Flags().Lookup(tt.flag), "%v --%s", tt.path, tt.flag)
	}

	export, _, err := cmd.Find([]string{"seed", "export"})
	require.NoError(t, err)
	assert.Equal(t, "o", export.Flags().Lookup("output").Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := runCLI(t, t.TempDir(), "--format", "xml", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestUUIDGenerator(t *testing.T) {
	a, b := UUIDGenerator{}.Generate(), UUIDGenerator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
