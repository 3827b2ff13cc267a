// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "https://app.1campus.net", cfg.Sites.HostURL)
	assert.Equal(t, "學習週曆", cfg.Sites.TriggerKeyword)
	assert.Equal(t, "其他地點", cfg.Sites.SentinelOption)
	assert.Equal(t, 30*time.Second, cfg.Flow.ChildTabTimeout)
	assert.Equal(t, 0.8, cfg.Flow.FillAcceptRate)
	assert.Equal(t, 0.5, cfg.Flow.FillAbortRate)
	assert.Equal(t, "classsync_payload", cfg.Store.Key)
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, NewDefaultConfig().Validate())
}

func TestConfigValidation(t *testing.T) {
	t.Run("missing site URL", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Sites.ChildURL = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "child_url")
	})

	t.Run("URL without scheme", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Sites.HostURL = "app.1campus.net"
		assert.Error(t, cfg.Validate())
	})

	t.Run("accept rate out of range", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Flow.FillAcceptRate = 1.2
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fill_accept_rate")
	})

	t.Run("abort rate above accept rate", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Flow.FillAbortRate = 0.9
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fill_abort_rate")
	})

	t.Run("non-positive attempt ceiling", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Flow.FillAttempts = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fill_attempts")
	})

	t.Run("missing store key", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.Store.Key = ""
		assert.Error(t, cfg.Validate())
	})
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
logger:
  level: debug
  format: json
browser:
  headless: false
flow:
  fill_attempts: 3
  child_tab_timeout: 45s
sites:
  trigger_keyword: "週報"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values.
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 3, cfg.Flow.FillAttempts)
	assert.Equal(t, 45*time.Second, cfg.Flow.ChildTabTimeout)
	assert.Equal(t, "週報", cfg.Sites.TriggerKeyword)

	// Defaults survive a partial file.
	assert.Equal(t, "https://tschoolkit.web.app", cfg.Sites.ChildURL)
	assert.Equal(t, 5, cfg.Flow.SubmitAttempts)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	// Point at a directory with no config.yaml via an explicit bogus name.
	cfg, err := Load("")
	// Load with an empty path searches the working directory; the repo may
	// ship a config.yaml, so only assert that the result validates.
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flow:\n  fill_attempts: -2\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
