package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "loresmith.yaml"), []byte(content), 0o600))
	return dir
}

func TestInitialize_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Initialize(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.Equal(t, 5.0, cfg.Rebuild.ImpactThreshold)
	assert.Equal(t, 30*time.Second, cfg.Hub.PingInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Hub.QueueTTL)
	assert.Equal(t, 50000, cfg.Graph.MaxEntities)
	assert.Equal(t, 200000, cfg.Graph.MaxRelationships)
}

func TestInitialize_PartialFileKeepsDefaultsForOmittedSections(t *testing.T) {
	dir := writeConfig(t, `
queue:
  worker_count: 2
rebuild:
  impact_threshold: 12.5
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Queue.WorkerCount)
	// Unset fields in a present section still get defaults.
	assert.Equal(t, 1*time.Second, cfg.Queue.PollInterval)
	assert.Equal(t, 12.5, cfg.Rebuild.ImpactThreshold)
	assert.Equal(t, 3, cfg.Rebuild.MaxAttempts)
	// Omitted sections get full defaults.
	assert.Equal(t, 5, cfg.Extraction.ChunkSize)
}

func TestInitialize_EnvExpansion(t *testing.T) {
	t.Setenv("LORESMITH_TEST_SECRET", "s3cret")
	dir := writeConfig(t, `
server:
  auth_secret: ${LORESMITH_TEST_SECRET}
`)

	cfg, err := Initialize(dir)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Server.AuthSecret)
}

func TestInitialize_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "heartbeat above orphan threshold",
			yaml: "queue:\n  heartbeat_interval: 10m\n  orphan_threshold: 5m\n",
		},
		{
			name: "memory warn above fail",
			yaml: "graph:\n  memory_warn_mb: 120\n  memory_fail_mb: 100\n",
		},
		{
			name: "chunk size above cap",
			yaml: "extraction:\n  chunk_size: 9\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Initialize(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
