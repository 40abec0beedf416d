// Package store provides the persistent record store for jobs and users,
// backed by an embedded SQLite database.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/reelvault/reelvault/internal/catalog"
)

// Sentinel errors returned by store operations.
var (
	// ErrJobNotFound is returned when a job id does not resolve.
	ErrJobNotFound = errors.New("job not found")
	// ErrUserNotFound is returned when a user id does not resolve.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateUser is returned when a user email already exists.
	ErrDuplicateUser = errors.New("user already exists")
)

// Status is the lifecycle state of a job.
// Transitions only move forward: PENDING -> RUNNING -> {DONE, ERROR}.
type Status string

const (
	// StatusPending is the initial state of a created job.
	StatusPending Status = "PENDING"
	// StatusRunning indicates the transfer is in flight.
	StatusRunning Status = "RUNNING"
	// StatusDone is the successful terminal state.
	StatusDone Status = "DONE"
	// StatusError is the failed terminal state.
	StatusError Status = "ERROR"
)

// PlaceholderFileName is the file name a job carries until the real one is
// known from the upstream response.
const PlaceholderFileName = "pending..."

// Job is one tracked download attempt.
type Job struct {
	ID           string            `gorm:"primaryKey" json:"id"`
	SourceURL    string            `gorm:"not null" json:"url"`
	FileName     string            `gorm:"not null" json:"fileName"`
	Status       Status            `gorm:"not null;index" json:"status"`
	Progress     int               `gorm:"not null" json:"progress"`
	FilePath     string            `json:"filePath,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
	Metadata     *catalog.Metadata `gorm:"serializer:json" json:"movieMetadata,omitempty"`
	CreatedAt    time.Time         `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Role is a user's authorization role.
type Role string

const (
	// RoleAdmin grants administrative access.
	RoleAdmin Role = "admin"
	// RoleUser is the default role.
	RoleUser Role = "user"
)

// User is an account record. Identity verification itself happens upstream;
// the store only keeps the verified subject id and profile fields.
type User struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Subject        string    `gorm:"index" json:"auth0Id"`
	Email          string    `gorm:"uniqueIndex;not null" json:"email"`
	FirstName      string    `gorm:"not null" json:"firstName"`
	LastName       string    `gorm:"not null" json:"lastName"`
	Phone          string    `json:"phone,omitempty"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	Role           Role      `gorm:"not null;default:user" json:"role"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store wraps the database handle.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) the SQLite database at path and runs
// migrations. Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Job{}, &User{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// newID returns a fresh ULID string for record identity.
func newID() string {
	return ulid.Make().String()
}
