package diskspace_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelvault/reelvault/internal/diskspace"
)

func TestAccountant_Snapshot(t *testing.T) {
	t.Run("used and free add up to total", func(t *testing.T) {
		acc := diskspace.New("/", t.TempDir(), diskspace.WithStatfs(
			func(string) (int64, int64, error) { return 1000, 250, nil },
		))

		info := acc.Snapshot(context.Background())

		assert.Equal(t, int64(1000), info.TotalBytes)
		assert.Equal(t, int64(250), info.FreeBytes)
		assert.Equal(t, int64(750), info.UsedBytes)
		assert.Equal(t, info.TotalBytes, info.UsedBytes+info.FreeBytes)
		assert.InDelta(t, 75.0, info.PercentUsed, 0.001)
		assert.InDelta(t, 25.0, info.PercentFree, 0.001)
		assert.Equal(t, "/", info.Volume)
	})

	t.Run("managed directory size is summed recursively", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mkv"), make([]byte, 100), 0600))
		require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0750))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.mkv"), make([]byte, 50), 0600))

		acc := diskspace.New("/", dir, diskspace.WithStatfs(
			func(string) (int64, int64, error) { return 1000, 500, nil },
		))

		info := acc.Snapshot(context.Background())
		assert.Equal(t, int64(150), info.ManagedDirBytes)
	})

	t.Run("missing managed directory counts as zero", func(t *testing.T) {
		acc := diskspace.New("/", filepath.Join(t.TempDir(), "does-not-exist"),
			diskspace.WithStatfs(func(string) (int64, int64, error) { return 1000, 500, nil }))

		info := acc.Snapshot(context.Background())
		assert.Equal(t, int64(0), info.ManagedDirBytes)
	})

	t.Run("failing volume query yields zero-valued reading", func(t *testing.T) {
		acc := diskspace.New("/mnt/gone", t.TempDir(), diskspace.WithStatfs(
			func(string) (int64, int64, error) { return 0, 0, errors.New("no such volume") },
		))

		info := acc.Snapshot(context.Background())

		assert.Equal(t, "/mnt/gone", info.Volume)
		assert.Zero(t, info.TotalBytes)
		assert.Zero(t, info.FreeBytes)
		assert.Zero(t, info.UsedBytes)
		assert.Zero(t, info.PercentUsed)
		assert.Zero(t, info.PercentFree)
	})

	t.Run("real statfs reports a sane reading", func(t *testing.T) {
		acc := diskspace.New(t.TempDir(), t.TempDir())

		info := acc.Snapshot(context.Background())

		assert.Positive(t, info.TotalBytes)
		assert.GreaterOrEqual(t, info.UsedBytes, int64(0))
	})
}
