// Package catalog looks up movie metadata for downloaded files.
package catalog

import (
	"context"

	"github.com/rs/zerolog"
)

// Metadata is the structured record attached to a job once a catalog match
// is found. Absence of metadata is a normal outcome, distinct from
// "not yet searched".
type Metadata struct {
	TMDBID        int      `json:"tmdbId"`
	Title         string   `json:"title"`
	OriginalTitle string   `json:"originalTitle"`
	Overview      string   `json:"overview"`
	PosterPath    string   `json:"posterPath,omitempty"`
	BackdropPath  string   `json:"backdropPath,omitempty"`
	ReleaseDate   string   `json:"releaseDate,omitempty"`
	VoteAverage   float64  `json:"voteAverage"`
	Runtime       int      `json:"runtime"`
	Genres        []string `json:"genres,omitempty"`
	Year          int      `json:"year,omitempty"`
}

// Matcher resolves a file name to movie metadata.
// A nil result means no match; Match never fails from the caller's
// perspective, lookup errors degrade to "no match".
type Matcher interface {
	Match(ctx context.Context, fileName string) *Metadata
}

// configurable is implemented by matchers to support shared options.
type configurable interface {
	setLogger(zerolog.Logger)
}

// Option is a functional option for configuring matchers.
type Option func(configurable)

// WithLogger sets the logger for any matcher.
func WithLogger(logger zerolog.Logger) Option {
	return func(c configurable) {
		c.setLogger(logger)
	}
}

// noopMatcher satisfies Matcher when no catalog credentials are configured.
type noopMatcher struct{}

// NewNoop returns a Matcher that never matches. It stands in for the real
// catalog when no API key is configured, so call sites need no branching.
func NewNoop() Matcher {
	return noopMatcher{}
}

func (noopMatcher) Match(context.Context, string) *Metadata {
	return nil
}
