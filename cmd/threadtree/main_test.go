package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestHelpExitsWithFailure(t *testing.T) {
	for _, arg := range []string{"--help", "-h"} {
		code, stdout, stderr := runCLI(arg)
		assert.Equal(t, 1, code, arg)
		assert.Empty(t, stdout, arg)
		assert.Contains(t, stderr, "Usage:", arg)
		assert.Contains(t, stderr, "--verbose", arg)
	}
}

func TestUnknownFlag(t *testing.T) {
	code, stdout, stderr := runCLI("--threads", "4")
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "unknown flag: --threads")
	assert.Contains(t, stderr, "Usage:")
}

func TestRun(t *testing.T) {
	code, stdout, stderr := runCLI("--stages", "3", "--workers", "3", "--work", "1ms")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "3 stages, 6 workers, 6 forks")
	assert.Contains(t, stdout, "critical path: coordinator -> worker-")
	assert.Contains(t, stdout, "done\n")
	assert.NotContains(t, stdout, "option value")
}

func TestVerbose(t *testing.T) {
	code, stdout, stderr := runCLI("-v", "--stages", "2", "--workers", "2", "--work", "0s")
	require.Equal(t, 0, code, stderr)

	assert.Contains(t, stdout, "    option value\n")
	assert.Contains(t, stdout, "stages=2 workers=3")
	assert.Contains(t, stdout, "\tstage 1: capacity=1 registered=1 roster=[worker-")
}

func TestInvalidShape(t *testing.T) {
	code, _, stderr := runCLI("--stages", "5", "--workers", "4")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "stage capacity would drop below one worker")

	code, stdout, stderr := runCLI("--stages", "5", "--workers", "4", "--policy", "clamp", "--work", "0s")
	assert.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "5 stages, 11 workers")
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "threadtree.yml")
	require.NoError(t, os.WriteFile(path, []byte("stages: 2\nworkers: 5\nwork: 0s\n"), 0o644))

	code, stdout, stderr := runCLI("--config", path)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "2 stages, 9 workers")

	// flags take precedence over the file
	code, stdout, stderr = runCLI("--config", path, "--stages", "1")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "1 stages, 5 workers")
}

func TestTimeout(t *testing.T) {
	code, _, stderr := runCLI("--stages", "2", "--workers", "2", "--work", "1m", "--timeout", "20ms")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "waiting on stage 0")
	assert.Contains(t, stderr, "still running")
}
