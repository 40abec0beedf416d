// Package transfer streams resolved fetch URLs to the managed directory,
// tracking progress and enriching jobs with catalog metadata along the way.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/reelvault/reelvault/internal/catalog"
	"github.com/reelvault/reelvault/internal/diskspace"
	"github.com/reelvault/reelvault/internal/events"
	"github.com/reelvault/reelvault/internal/store"
)

// unsafeChars matches everything outside the safe destination-name alphabet.
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

const (
	// copyBufferSize is the read buffer for the stream copy loop.
	copyBufferSize = 32 * 1024

	// metadataByteThreshold is the byte count after which the file name is
	// considered stable enough to search the catalog.
	metadataByteThreshold = 1 << 20 // 1 MiB

	// metadataPercentThreshold is the fractional alternative to the byte
	// threshold; whichever is reached first triggers enrichment.
	metadataPercentThreshold = 5

	// progressPersistStep bounds store write volume: progress is persisted
	// only every this many percentage points.
	progressPersistStep = 5
)

// Engine streams files to disk for the orchestrator.
type Engine struct {
	store   *store.Store
	bus     *events.Bus
	matcher catalog.Matcher
	disk    *diskspace.Accountant
	dir     string
	http    *http.Client
	logger  zerolog.Logger
}

// Option is a functional option for configuring the engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithHTTPClient overrides the HTTP client. Used in tests.
func WithHTTPClient(h *http.Client) Option {
	return func(e *Engine) {
		e.http = h
	}
}

// New creates a transfer engine writing into dir, creating it if needed.
func New(
	st *store.Store,
	bus *events.Bus,
	matcher catalog.Matcher,
	disk *diskspace.Accountant,
	dir string,
	opts ...Option,
) (*Engine, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	e := &Engine{
		store:   st,
		bus:     bus,
		matcher: matcher,
		disk:    disk,
		dir:     dir,
		// No timeout: transfers of large files can legitimately run for
		// hours.
		http:   &http.Client{},
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Run streams fetchURL into the managed directory for the given job.
// It mutates the job record (file name, progress, metadata, terminal fields)
// and publishes events as it goes; the returned error is only for
// unrecoverable failures, which the orchestrator turns into the ERROR
// transition. A job deleted mid-flight is not an error: store updates
// degrade to no-ops and the transfer runs to completion.
func (e *Engine) Run(ctx context.Context, jobID, fetchURL, suggestedName string) (retErr error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return err
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	fileName := resolveFileName(resp.Header, fetchURL, suggestedName)

	// Persist the real name before the body finishes so observers see it
	// promptly.
	e.updateJob(ctx, jobID, map[string]any{"file_name": fileName})

	destPath := filepath.Join(e.dir, fileName)
	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if dest != nil {
			_ = dest.Close()
		}
		if retErr != nil {
			// Never leave a partial file behind.
			_ = os.Remove(destPath)
		}
	}()

	e.logger.Info().
		Str("job_id", jobID).
		Str("file", fileName).
		Int64("total", resp.ContentLength).
		Msg("transfer started")

	if err := e.copyStream(ctx, jobID, fileName, resp, dest); err != nil {
		return err
	}

	if err := dest.Close(); err != nil {
		return fmt.Errorf("failed to finalize destination file: %w", err)
	}
	dest = nil

	e.finalize(ctx, jobID, destPath, fileName)
	return nil
}

// copyStream pipes the response body to dest while sampling progress and
// driving metadata enrichment. All job writes happen from this single loop,
// so one job's status/progress/metadata updates stay strictly sequential.
func (e *Engine) copyStream(ctx context.Context, jobID, fileName string, resp *http.Response, dest *os.File) error {
	total := resp.ContentLength

	var (
		received      int64
		lastEmitted   = -1
		lastPersisted int
		triggered     bool
		metaCh        chan *catalog.Metadata
	)

	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)

		if n > 0 {
			if _, err := dest.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write destination file: %w", err)
			}
			received += int64(n)

			if total > 0 {
				percent := int(received * 100 / total)
				if percent > 100 {
					percent = 100
				}

				if percent > lastEmitted {
					lastEmitted = percent
					e.publishProgress(jobID, percent, received, total)
				}

				// Bound store writes; progress hits 100 only with
				// the DONE transition.
				if percent < 100 && percent >= lastPersisted+progressPersistStep {
					lastPersisted = percent
					e.updateJob(ctx, jobID, map[string]any{"progress": percent})
				}
			}

			if !triggered && pastStabilityThreshold(received, total) {
				triggered = true
				metaCh = e.lookupMetadata(ctx, fileName)
			}
		}

		// Persist a metadata result from within the writer loop rather
		// than from the lookup goroutine.
		if metaCh != nil {
			select {
			case meta := <-metaCh:
				metaCh = nil
				e.persistMetadata(ctx, jobID, meta)
			default:
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fmt.Errorf("stream read failed: %w", readErr)
		}
	}

	// The stream can finish before the catalog answers; wait for the
	// result so the completed job carries its metadata.
	if metaCh != nil {
		e.persistMetadata(ctx, jobID, <-metaCh)
	}

	return nil
}

// finalize records the DONE state, announces completion and broadcasts a
// fresh disk reading (the new file changed it).
func (e *Engine) finalize(ctx context.Context, jobID, destPath, fileName string) {
	e.updateJob(ctx, jobID, map[string]any{
		"status":    store.StatusDone,
		"progress":  100,
		"file_path": destPath,
	})

	e.logger.Info().Str("job_id", jobID).Str("file", fileName).Msg("transfer complete")

	if job, err := e.store.GetJob(ctx, jobID); err == nil {
		e.bus.Publish(events.Event{
			Type:    events.JobCompleted,
			Subject: job,
			Data:    map[string]any{"job_id": jobID},
		})
	}

	e.bus.Publish(events.Event{
		Type:    events.DiskSnapshot,
		Subject: e.disk.Snapshot(ctx),
	})
}

// lookupMetadata queries the catalog in the background, exactly once per job.
// The result is delivered on the returned channel so the caller can persist
// it from the stream loop.
func (e *Engine) lookupMetadata(ctx context.Context, fileName string) chan *catalog.Metadata {
	ch := make(chan *catalog.Metadata, 1)
	go func() {
		ch <- e.matcher.Match(ctx, fileName)
	}()
	return ch
}

// persistMetadata stores a non-nil catalog match and announces it. The event
// only goes out once the write landed; a job deleted mid-flight gets neither.
// A nil match means nothing further happens (no retry).
func (e *Engine) persistMetadata(ctx context.Context, jobID string, meta *catalog.Metadata) {
	if meta == nil {
		return
	}

	if err := e.store.UpdateJobMetadata(ctx, jobID, meta); err != nil {
		if !errors.Is(err, store.ErrJobNotFound) {
			e.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to persist metadata")
		}
		return
	}

	e.bus.Publish(events.Event{
		Type:    events.JobMetadataUpdated,
		Subject: meta,
		Data:    map[string]any{"job_id": jobID},
	})
}

func (e *Engine) publishProgress(jobID string, percent int, received, total int64) {
	e.bus.Publish(events.Event{
		Type: events.JobProgress,
		Data: map[string]any{
			"job_id":           jobID,
			"percent":          percent,
			"bytes_downloaded": received,
			"bytes_total":      total,
		},
	})
}

// updateJob applies a partial job update, treating a missing job (deleted
// while the transfer was in flight) as a no-op.
func (e *Engine) updateJob(ctx context.Context, jobID string, fields map[string]any) {
	err := e.store.UpdateJob(ctx, jobID, fields)
	if err != nil && !errors.Is(err, store.ErrJobNotFound) {
		e.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to update job")
	}
}

// pastStabilityThreshold reports whether enough bytes arrived to trust the
// file name for a catalog search: 1 MiB, or 5% of a known total, whichever
// comes first. With an unknown total the byte threshold alone governs.
func pastStabilityThreshold(received, total int64) bool {
	if received >= metadataByteThreshold {
		return true
	}
	if total > 0 && received*100/total >= metadataPercentThreshold {
		return true
	}
	return false
}

// resolveFileName derives the destination name: the response's
// Content-Disposition wins, then the upstream-suggested name, then the URL
// path. The result is sanitized to [A-Za-z0-9._-].
func resolveFileName(header http.Header, fetchURL, suggestedName string) string {
	name := nameFromDisposition(header.Get("Content-Disposition"))

	if name == "" {
		name = suggestedName
	}

	if name == "" {
		if u, err := url.Parse(fetchURL); err == nil {
			base := path.Base(u.Path)
			if base != "." && base != "/" {
				if decoded, err := url.PathUnescape(base); err == nil {
					name = decoded
				} else {
					name = base
				}
			}
		}
	}

	if name == "" {
		name = "unknown_file"
	}

	return unsafeChars.ReplaceAllString(name, "_")
}

// nameFromDisposition extracts the filename parameter from a
// Content-Disposition header, or "".
func nameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}

	return params["filename"]
}
