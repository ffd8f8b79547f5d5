package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/git-hulk/go-quorum/redlock"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadFlags(t *testing.T) {
	fs := newFlagSet(t,
		"--masters", "redis://127.0.0.1:6379,redis://127.0.0.1:6380/1",
		"--masters", "redis://127.0.0.1:6381",
		"--lock.auto-release-time", "3s",
		"--nextid.num-tries", "7",
	)
	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"redis://127.0.0.1:6379", "redis://127.0.0.1:6380/1", "redis://127.0.0.1:6381"}, cfg.Masters)
	assert.Equal(t, 3*time.Second, cfg.Lock.AutoReleaseTime)
	assert.Equal(t, redlock.DefaultNumExtensions, cfg.Lock.NumExtensions)
	assert.Equal(t, redlock.DefaultRetryDelay, cfg.Lock.RetryDelay)
	assert.Equal(t, 7, cfg.NextID.NumTries)
	assert.Equal(t, time.Second, cfg.Timeouts().Read)
	assert.Len(t, cfg.LockOptions(), 4)
	assert.Len(t, cfg.NextIDOptions(), 1)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("QUORUM_MASTERS", "redis://10.0.0.1:6379,redis://10.0.0.2:6379")
	t.Setenv("QUORUM_READ_TIMEOUT", "250ms")
	t.Setenv("QUORUM_LOCK_RAISE_ON_ERRORS", "true")

	cfg, err := Load(newFlagSet(t, "--read-timeout", "2s"))
	require.NoError(t, err)
	assert.Equal(t, []string{"redis://10.0.0.1:6379", "redis://10.0.0.2:6379"}, cfg.Masters)
	// flags win over the environment
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.True(t, cfg.Lock.RaiseOnErrors)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quorum.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
masters:
  - redis://127.0.0.1:7000
  - redis://127.0.0.1:7001
  - redis://127.0.0.1:7002
log-level: debug
lock:
  retry-delay: 50ms
  num-extensions: 0
`), 0o600))

	cfg, err := Load(newFlagSet(t, "--config", path))
	require.NoError(t, err)
	assert.Len(t, cfg.Masters, 3)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50*time.Millisecond, cfg.Lock.RetryDelay)
	assert.Zero(t, cfg.Lock.NumExtensions)

	_, err = Load(newFlagSet(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	_, err := Load(newFlagSet(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Masters")

	cfg := Default()
	cfg.Masters = []string{"not a url"}
	cfg.LogLevel = "verbose"
	cfg.Lock.RetryDelay = 0
	cfg.NextID.NumTries = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)

	cfg = Default()
	cfg.Masters = []string{"redis://127.0.0.1:6379"}
	require.NoError(t, cfg.Validate())
}

func TestDial(t *testing.T) {
	cfg := Default()
	cfg.Masters = []string{"redis://127.0.0.1:6379", "redis://127.0.0.1:6380"}
	masters, err := cfg.Dial()
	require.NoError(t, err)
	require.Len(t, masters, 2)
	assert.Equal(t, "127.0.0.1:6380", masters[1].Name())
	require.NoError(t, Close(masters))

	cfg.Masters = []string{"redis://127.0.0.1:6379", "http://127.0.0.1:6380"}
	_, err = cfg.Dial()
	require.Error(t, err)
}
