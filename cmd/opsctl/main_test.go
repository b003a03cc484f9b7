package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate", "up"},
		{"migrate", "down"},
		{"bootstrap"},
		{"exports", "run-once"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
		assert.NotNil(t, cmd.RunE, path)
	}
}

func TestBootstrapRequiresEmail(t *testing.T) {
	flag := bootstrapCmd.Flags().Lookup("email")
	require.NotNil(t, flag)
	assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
}

func TestMigrateDownRejectsZeroSteps(t *testing.T) {
	t.Cleanup(func() { downSteps = 1 })
	downSteps = 0
	err := migrateDownCmd.RunE(migrateDownCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps")
}
