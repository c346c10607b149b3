package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, time.Second, cfg.Sync.BaseDelay)
	assert.Equal(t, "fingraph.dead-letter", cfg.Sync.DeadLetterTopic)
	assert.False(t, cfg.Sync.DurableAttempts)
	assert.Equal(t, time.UTC, cfg.Patterns.Location())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fingraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
graph:
  uri: neo4j://graph:7687
  queryTimeout: 45s
sync:
  workers: 8
  durableAttempts: true
  transactionTopic: tx-events
patterns:
  cacheTTL: 1m
logging:
  format: json
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SYNC_WORKERS", "2")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "neo4j://graph:7687", cfg.Graph.URI)
	assert.Equal(t, 45*time.Second, cfg.Graph.QueryTimeout)
	assert.Equal(t, 2, cfg.Sync.Workers)
	assert.True(t, cfg.Sync.DurableAttempts)
	assert.Equal(t, "tx-events", cfg.Sync.TransactionTopic)
	assert.Equal(t, "fingraph.users", cfg.Sync.UserTopic)
	assert.Equal(t, time.Minute, cfg.Patterns.CacheTTL)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_Rejections(t *testing.T) {
	cases := map[string]map[string]string{
		"bad port":     {"SERVER_PORT": "70000"},
		"bad duration": {"SYNC_BASE_DELAY": "soon"},
		"zero retries": {"SYNC_MAX_RETRIES": "0"},
		"bad timezone": {"PATTERN_TIMEZONE": "Mars/Olympus"},
		"missing file": {"CONFIG_FILE": "/does/not/exist.yaml"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
