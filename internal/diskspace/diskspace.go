// Package diskspace reports capacity of the monitored volume and the size
// of the managed download directory.
package diskspace

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Info is one consistent disk usage reading. It is derived on demand and
// never persisted.
type Info struct {
	TotalBytes      int64   `json:"totalBytes"`
	FreeBytes       int64   `json:"freeBytes"`
	UsedBytes       int64   `json:"usedBytes"`
	ManagedDirBytes int64   `json:"managedDirBytes"`
	PercentUsed     float64 `json:"percentUsed"`
	PercentFree     float64 `json:"percentFree"`
	Volume          string  `json:"volume"`
}

// Accountant computes disk usage for a volume and a managed directory.
type Accountant struct {
	volumePath string
	managedDir string
	statfs     func(path string) (total, free int64, err error)
	logger     zerolog.Logger
}

// Option is a functional option for configuring the accountant.
type Option func(*Accountant)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Accountant) {
		a.logger = logger
	}
}

// WithStatfs overrides the volume capacity query. Used in tests.
func WithStatfs(statfs func(path string) (total, free int64, err error)) Option {
	return func(a *Accountant) {
		a.statfs = statfs
	}
}

// New creates an accountant monitoring volumePath, with managedDir as the
// directory all transfers are written into.
func New(volumePath, managedDir string, opts ...Option) *Accountant {
	a := &Accountant{
		volumePath: volumePath,
		managedDir: managedDir,
		statfs:     statfs,
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Snapshot computes a fresh reading. A failing volume query is non-fatal:
// callers always receive a well-formed Info, zero-valued except for the
// volume label.
func (a *Accountant) Snapshot(ctx context.Context) Info {
	info := Info{Volume: a.volumePath}

	total, free, err := a.statfs(a.volumePath)
	if err != nil {
		a.logger.Warn().Err(err).Str("volume", a.volumePath).Msg("volume capacity query failed")
		return info
	}

	info.TotalBytes = total
	info.FreeBytes = free
	info.UsedBytes = total - free
	info.ManagedDirBytes = a.dirSize(ctx)

	if total > 0 {
		info.PercentUsed = float64(info.UsedBytes) / float64(total) * 100
		info.PercentFree = float64(free) / float64(total) * 100
	}

	return info
}

// dirSize sums file sizes under the managed directory. The directory is
// self-managed, so no symlink-cycle protection is needed. A missing or
// unreadable directory counts as zero.
func (a *Accountant) dirSize(ctx context.Context) int64 {
	var size int64

	err := filepath.WalkDir(a.managedDir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		size += fi.Size()
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		a.logger.Warn().Err(err).Str("dir", a.managedDir).Msg("managed directory walk failed")
	}

	return size
}

// statfs queries the filesystem holding path for total and free bytes.
func statfs(path string) (int64, int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, err
	}

	bsize := st.Bsize
	total := int64(st.Blocks) * bsize
	// Bavail is the space available to unprivileged users.
	free := int64(st.Bavail) * bsize

	return total, free, nil
}
