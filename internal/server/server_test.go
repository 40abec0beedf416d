package server_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelvault/reelvault/internal/config"
	"github.com/reelvault/reelvault/internal/server"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Server:    config.ServerConfig{Listen: "127.0.0.1:0"},
		Store:     config.StoreConfig{Path: filepath.Join(dir, "test.db")},
		Downloads: config.DownloadsConfig{Dir: filepath.Join(dir, "downloads"), Volume: "/"},
		Debrid:    config.DebridConfig{APIKey: "test-key"},
	}
}

func TestNew(t *testing.T) {
	t.Run("wires a complete server", func(t *testing.T) {
		srv, err := server.New(testConfig(t), server.Options{})
		require.NoError(t, err)
		require.NotNil(t, srv)

		require.NoError(t, srv.Shutdown(t.Context()))
	})

	t.Run("missing debrid api key fails", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Debrid.APIKey = ""

		_, err := server.New(cfg, server.Options{})
		assert.Error(t, err)
	})
}
