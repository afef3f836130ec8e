package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"dsn": "postgres://localhost/railsense?sslmode=disable"},
		"session": {"secret": "test-secret"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, "openai", cfg.AI.Provider)
	require.Equal(t, "gpt-4o", cfg.AI.ChatModel)
	require.Equal(t, "text-embedding-3-large", cfg.AI.EmbedModel)
	require.Equal(t, 3072, cfg.AI.EmbedDim)
	require.Equal(t, "sigma", cfg.Detect.ThresholdPolicy)
	require.Equal(t, 5, cfg.Detect.Quorum)
	require.Equal(t, 300, cfg.Detect.MinEventSecs)
	require.Equal(t, 10, cfg.Detect.ResampleSecs)
	require.Equal(t, 8640, cfg.Detect.SeasonLength) // one day of 10s buckets
	require.Equal(t, 2*8640, cfg.Detect.MinHistory)
	require.Equal(t, "local", cfg.FileStore.Type)
	require.Equal(t, 12, cfg.Session.TTLHours)
	require.Equal(t, 60, cfg.Session.IdleMinutes)
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"port": 9090,
		"database": {"dsn": "postgres://localhost/x"},
		"session": {"secret": "s"},
		"detect": {"resample_secs": 60, "threshold_policy": "fixed", "fixed_bound": 2.5}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "fixed", cfg.Detect.ThresholdPolicy)
	require.Equal(t, 2.5, cfg.Detect.FixedBound)
	require.Equal(t, 86400/60, cfg.Detect.SeasonLength)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	path := writeConfig(t, `{"database": {"dsn": "postgres://localhost/x"}}`)
	_, err := Load(path)
	require.ErrorContains(t, err, "session.secret")
}

func TestLoadRejectsMissingDatabase(t *testing.T) {
	path := writeConfig(t, `{"session": {"secret": "s"}}`)
	_, err := Load(path)
	require.ErrorContains(t, err, "database")
}

func TestLoadRejectsBadThresholdPolicy(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"dsn": "postgres://localhost/x"},
		"session": {"secret": "s"},
		"detect": {"threshold_policy": "percentile"}
	}`)
	_, err := Load(path)
	require.ErrorContains(t, err, "threshold_policy")
}
