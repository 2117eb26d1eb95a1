package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "condpush", cmd.Use)
	assert.Contains(t, cmd.Long, "pushed into each branch")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "rewrite", "sql", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
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

	schemaFlag := cmd.PersistentFlags().Lookup("schema")
	require.NotNil(t, schemaFlag)
	assert.Equal(t, "", schemaFlag.DefValue)
}

func TestRewriteCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	rewriteCmd, _, err := cmd.Find([]string{"rewrite"})
	require.NoError(t, err)

	rootFlag := rewriteCmd.Flags().Lookup("root")
	require.NotNil(t, rootFlag)
	assert.Equal(t, "Employee", rootFlag.DefValue)

	depthFlag := rewriteCmd.Flags().Lookup("max-depth")
	require.NotNil(t, depthFlag)
	assert.Equal(t, "64", depthFlag.DefValue)
}

func TestSQLCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sqlCmd, _, err := cmd.Find([]string{"sql"})
	require.NoError(t, err)

	datasetFlag := sqlCmd.Flags().Lookup("dataset")
	require.NotNil(t, datasetFlag)
	assert.Equal(t, "", datasetFlag.DefValue)
	assert.Contains(t, datasetFlag.Usage, "gh1879")

	require.NotNil(t, sqlCmd.Flags().Lookup("no-rewrite"))
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "validate"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestIsValidFormat(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))
	assert.False(t, isValidFormat("yaml"))
	assert.False(t, isValidFormat(""))
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	quiet := newLogger(buf, false)
	quiet.Debug("hidden")
	quiet.Info("hidden")
	assert.Empty(t, buf.String())

	quiet.Warn("shown")
	assert.Contains(t, buf.String(), "msg=shown")

	buf.Reset()
	newLogger(buf, true).Debug("pushdown", "pushdowns", 2)
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "pushdowns=2")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "failed", errors.New("boom"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	err := WrapExitError(ExitFailure, "rewrite failed", errors.New("boom"))
	assert.Equal(t, "rewrite failed: boom", err.Error())
	assert.EqualError(t, errors.Unwrap(err), "boom")
}
