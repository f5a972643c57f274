package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/drive-migrate/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests must either:
//   - Set globals AFTER newRootCmd() returns (direct function tests), or
//   - Use cmd.SetArgs() + cmd.Execute() to let Cobra parse flags (integration tests).
//
// Setting a global before newRootCmd() and expecting it to survive is a bug.

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(bytes.TrimRight(p, "\n")))

	return len(p), nil
}

// testCLIContext returns a context rooted at a temporary data directory.
func testCLIContext(t *testing.T) *CLIContext {
	t.Helper()

	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.State.DataDir = dir

	return &CLIContext{
		Cfg: &config.Resolved{
			Config:  *cfg,
			Path:    filepath.Join(dir, "config.toml"),
			DataDir: dir,
		},
		Logger: testLogger(t),
	}
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{"migrate", "login", "logout", "whoami", "status", "config"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}

	migrateCmd, _, err := cmd.Find([]string{"migrate"})
	require.NoError(t, err)

	for _, flag := range []string{"dry-run", "test", "resume"} {
		assert.NotNil(t, migrateCmd.Flags().Lookup(flag), "migrate is missing --%s", flag)
	}
}

func TestLogin_RejectsUnknownProvider(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"login", "onedrive"})
	cmd.SetOut(&bytes.Buffer{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "onedrive")
}

func TestConfigInitThenShow(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "conf", "config.toml")
	dataDir := filepath.Join(dir, "data")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"config", "init", "--config", cfgPath, "--quiet"})
	require.NoError(t, cmd.Execute())

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[options]")

	cmd = newRootCmd()
	cmd.SetArgs([]string{"config", "init", "--config", cfgPath, "--quiet"})
	assert.Error(t, cmd.Execute(), "init refuses to overwrite")

	cmd = newRootCmd()
	cmd.SetArgs([]string{"config", "show", "--config", cfgPath, "--data-dir", dataDir, "--quiet"})
	require.NoError(t, cmd.Execute())

	assert.FileExists(t, config.DefaultLogPath(dataDir))
}

func TestLoadCLIContext_CreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")

	cc, err := loadCLIContext(CLIFlags{ConfigPath: cfgPath, DataDir: dir, Quiet: true})
	require.NoError(t, err)
	t.Cleanup(func() { cc.closeLog.Close() })

	assert.True(t, cc.Cfg.Created)
	assert.Equal(t, dir, cc.Cfg.DataDir)
	assert.FileExists(t, cfgPath)
}

func TestMustCLIContext_PanicsWhenMissing(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New("plain")))
	assert.Equal(t, 3, exitCode(&exitError{code: 3, err: errors.New("x")}))

	wrapped := errors.Join(errors.New("outer"), &exitError{code: 4, err: errors.New("inner")})
	assert.Equal(t, 4, exitCode(wrapped))
}
