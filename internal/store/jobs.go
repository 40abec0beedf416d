package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/reelvault/reelvault/internal/catalog"
)

// DefaultListLimit bounds ListJobs when no limit is given.
const DefaultListLimit = 100

// CreateJob inserts a new PENDING job for the given source URL and returns it.
func (s *Store) CreateJob(ctx context.Context, sourceURL string) (*Job, error) {
	job := &Job{
		ID:        newID(),
		SourceURL: sourceURL,
		FileName:  PlaceholderFileName,
		Status:    StatusPending,
		Progress:  0,
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}

	return job, nil
}

// GetJob returns a job by id, or ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs returns up to limit jobs, newest first. A limit of 0 or less,
// or above DefaultListLimit, falls back to DefaultListLimit.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}

	var jobs []*Job
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}

	return jobs, nil
}

// UpdateJob applies a partial field update to a job. Only the given columns
// are written, so concurrent updates to unrelated fields do not clobber each
// other. Returns ErrJobNotFound when the id does not resolve; callers
// updating a job that may have been deleted mid-flight treat that as a no-op.
func (s *Store) UpdateJob(ctx context.Context, id string, fields map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&Job{}).
		Where("id = ?", id).
		Updates(fields)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// UpdateJobMetadata attaches a catalog match to a job. The metadata column
// goes through a struct update because GORM only applies the JSON serializer
// on struct-based writes; a map update would hand the raw struct to the
// driver and fail. Returns ErrJobNotFound when the id does not resolve.
func (s *Store) UpdateJobMetadata(ctx context.Context, id string, meta *catalog.Metadata) error {
	result := s.db.WithContext(ctx).
		Model(&Job{}).
		Where("id = ?", id).
		Updates(Job{Metadata: meta})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job record. The file on disk, and any in-flight
// transfer, are untouched.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Job{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}
