package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRejectsUnknownFlag(t *testing.T) {
	assert.Equal(t, 2, run([]string{"-no-such-flag"}))
}

func TestRunExitCodeOnInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitalwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  poll_interval: -1s\n"), 0o600))

	assert.Equal(t, 1, run([]string{"-config", path}))
}

func TestRunExitCodeOnUnreadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitalwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync: [unclosed"), 0o600))

	assert.Equal(t, 1, run([]string{"-config", path}))
}
