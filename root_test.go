package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	want := []string{
		"auth", "projects", "documents", "upload", "schemas", "webhooks",
		"runs", "search", "api-keys", "config",
	}

	have := map[string]bool{}
	for _, c := range root.Commands() {
		have[c.Name()] = true
	}

	for _, name := range want {
		assert.True(t, have[name], "missing subcommand %q", name)
	}
}

func TestExactArgs_UsageError(t *testing.T) {
	cmd := &cobra.Command{Use: "get"}

	err := exactArgs(1)(cmd, []string{})
	require.Error(t, err)

	var usage *usageError
	assert.ErrorAs(t, err, &usage)
	assert.Equal(t, exitUsage, exitCode(err))

	assert.NoError(t, exactArgs(1)(cmd, []string{"one"}))
}

func TestNoArgs_UsageError(t *testing.T) {
	cmd := &cobra.Command{Use: "list"}

	require.NoError(t, noArgs(cmd, nil))

	err := noArgs(cmd, []string{"surprise"})
	require.Error(t, err)

	var usage *usageError
	assert.ErrorAs(t, err, &usage)
}
