package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedrop/uploader/internal/strategy"
)

func TestLoadConfig_WritesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uploader.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config should be written")

	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, strategy.KindStandard, cfg.GetStrategyKind())
	assert.Equal(t, strategy.DefaultChunkSize, cfg.Client.ChunkSize)
	assert.Equal(t, filepath.Join(dir, "data", "uploads"), cfg.GetUploadDir())
	assert.False(t, cfg.Validation.Single)

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "uploader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
client:
  baseURL: https://files.example.com
  strategy: chunked
  chunkSize: 4096
  chunkEndpoint: /v2/chunks
validation:
  maxFileSize: 1048576
  accept: ".pdf,image/*"
  single: true
storage:
  dataDirectory: /srv/uploads
  uploadsDirectory: /srv/uploads/files
`), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, strategy.KindChunked, cfg.GetStrategyKind())
	assert.Equal(t, int64(1048576), cfg.Validation.MaxFileSize)
	assert.Equal(t, ".pdf,image/*", cfg.Validation.Accept)
	assert.True(t, cfg.Validation.Single)
	assert.Equal(t, "/srv/uploads/files", cfg.GetUploadDir())

	// Unset sections keep their defaults.
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)

	opts := cfg.StrategyOptions(strategy.KindChunked)
	assert.Equal(t, "https://files.example.com", opts.BaseURL)
	assert.Equal(t, "/v2/chunks", opts.Endpoint)
	assert.Equal(t, int64(4096), opts.ChunkSize)
	assert.Empty(t, cfg.StrategyOptions(strategy.KindStandard).Endpoint)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("DATA_DIR", "/var/lib/uploader")
	t.Setenv("UPLOADER_BASE_URL", "http://receiver:9100")
	t.Setenv("UPLOADER_STRATEGY", "websocket")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "uploader.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9100", cfg.GetServerAddr())
	assert.Equal(t, "/var/lib/uploader", cfg.GetDataDir())
	assert.Equal(t, "/var/lib/uploader/uploads", cfg.GetUploadDir())
	assert.Equal(t, "http://receiver:9100", cfg.Client.BaseURL)
	assert.Equal(t, strategy.KindWebSocket, cfg.GetStrategyKind())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("client: [unterminated"), 0644))

		_, err := LoadConfig(path)
		assert.ErrorContains(t, err, "failed to parse config file")
	})

	t.Run("invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("client:\n  strategy: carrier-pigeon\n"), 0644))

		_, err := LoadConfig(path)
		assert.ErrorIs(t, err, strategy.ErrUnknownKind)
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Client.ChunkSize = 0
	cfg.Server.Port = 70000
	cfg.Logging.Level = "loud"
	cfg.Validation.MaxFileSize = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "client.chunkSize")
	assert.ErrorContains(t, err, "server.port")
	assert.ErrorContains(t, err, "logging.level")
	assert.ErrorContains(t, err, "validation.maxFileSize")
}

func TestGetters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.AllowOrigins = " http://a.test , ,http://b.test"
	cfg.Client.TimeoutSeconds = 15

	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.GetAllowOrigins())
	assert.Equal(t, 15*time.Second, cfg.GetClientTimeout())

	cfg.Storage.DataDirectory = filepath.Join(t.TempDir(), "d")
	cfg.Storage.UploadsDirectory = filepath.Join(cfg.Storage.DataDirectory, "u")
	require.NoError(t, cfg.EnsureDirectories())
	_, err := os.Stat(cfg.Storage.UploadsDirectory)
	assert.NoError(t, err)
}
