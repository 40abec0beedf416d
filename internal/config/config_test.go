package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/reelvault/reelvault/internal/config"
)

func writeConfigFile(t *testing.T, content map[string]any) string {
	t.Helper()

	data, err := yaml.Marshal(content)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "reelvault.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("reads values from file", func(t *testing.T) {
		path := writeConfigFile(t, map[string]any{
			"server": map[string]any{"listen": "127.0.0.1:9000"},
			"store":  map[string]any{"path": "/data/reelvault.db"},
			"downloads": map[string]any{
				"dir":    "/data/movies",
				"volume": "/data",
			},
			"debrid":  map[string]any{"apiKey": "debrid-key"},
			"catalog": map[string]any{"apiKey": "tmdb-key"},
			"auth":    map[string]any{"jwtSecret": "s3cret"},
		})

		cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:9000", cfg.Server.Listen)
		assert.Equal(t, "/data/reelvault.db", cfg.Store.Path)
		assert.Equal(t, "/data/movies", cfg.Downloads.Dir)
		assert.Equal(t, "/data", cfg.Downloads.Volume)
		assert.Equal(t, "debrid-key", cfg.Debrid.APIKey)
		assert.Equal(t, "tmdb-key", cfg.Catalog.APIKey)
		assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	})

	t.Run("defaults fill unset values", func(t *testing.T) {
		path := writeConfigFile(t, map[string]any{
			"debrid": map[string]any{"apiKey": "debrid-key"},
		})

		cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
		require.NoError(t, err)

		assert.Equal(t, "[::]:8280", cfg.Server.Listen)
		assert.Equal(t, "reelvault.db", cfg.Store.Path)
		assert.Equal(t, "./downloads", cfg.Downloads.Dir)
		assert.Equal(t, "/", cfg.Downloads.Volume)
		assert.Empty(t, cfg.Catalog.APIKey)
		assert.Empty(t, cfg.Auth.JWTSecret)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfigFile(t, map[string]any{
			"debrid": map[string]any{"apiKey": "from-file"},
		})
		t.Setenv("REELVAULT_DEBRID_APIKEY", "from-env")
		t.Setenv("REELVAULT_SERVER_LISTEN", "[::]:9999")

		cfg, err := config.Load(config.LoadOptions{ConfigFile: path})
		require.NoError(t, err)

		assert.Equal(t, "from-env", cfg.Debrid.APIKey)
		assert.Equal(t, "[::]:9999", cfg.Server.Listen)
	})

	t.Run("missing debrid api key is an error", func(t *testing.T) {
		path := writeConfigFile(t, map[string]any{
			"server": map[string]any{"listen": "[::]:8280"},
		})

		_, err := config.Load(config.LoadOptions{ConfigFile: path})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "debrid.apiKey")
	})
}
