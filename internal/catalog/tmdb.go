package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelvault/reelvault/internal/filename"
)

// DefaultBaseURL is the TMDB v3 API root.
const DefaultBaseURL = "https://api.themoviedb.org/3"

const defaultHTTPTimeout = 15 * time.Second

// tmdbMatcher implements Matcher against the TMDB API.
// It is private and only exposed via the Matcher interface.
type tmdbMatcher struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// tmdbSearchResponse is the TMDB /search/movie payload.
type tmdbSearchResponse struct {
	Results []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	} `json:"results"`
}

// tmdbDetails is the TMDB /movie/{id} payload.
type tmdbDetails struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	OriginalTitle string  `json:"original_title"`
	Overview      string  `json:"overview"`
	PosterPath    string  `json:"poster_path"`
	BackdropPath  string  `json:"backdrop_path"`
	ReleaseDate   string  `json:"release_date"`
	VoteAverage   float64 `json:"vote_average"`
	Runtime       int     `json:"runtime"`
	Genres        []struct {
		Name string `json:"name"`
	} `json:"genres"`
}

// searchQuery describes one search strategy in the fallback chain.
type searchQuery struct {
	title    string
	year     int    // 0 = no year filter
	region   string // empty = default region
	language string // empty = default language
}

// setLogger implements configurable for shared options.
func (m *tmdbMatcher) setLogger(logger zerolog.Logger) {
	m.logger = logger
}

// NewTMDB creates a TMDB-backed Matcher.
func NewTMDB(apiKey, baseURL string, opts ...Option) Matcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	m := &tmdbMatcher{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Match resolves a sanitized file name to movie metadata.
// Strategies are tried in order and the first non-empty result wins:
//  1. French region + language with year (only for French-tagged releases)
//  2. French region, no language filter
//  3. Default region/language with year
//  4. The same chain without the year filter, when a year was parsed
//
// A failing strategy (transport or API error) is logged and skipped rather
// than aborting the whole match. All strategies exhausted, or the detail
// lookup failing, yields nil.
func (m *tmdbMatcher) Match(ctx context.Context, fileName string) *Metadata {
	title, year := filename.Parse(fileName)
	if title == "" {
		return nil
	}

	french := filename.IsFrenchRelease(fileName)

	m.logger.Debug().
		Str("title", title).
		Int("year", year).
		Bool("french", french).
		Msg("searching catalog")

	queries := buildQueries(title, year, french)

	for _, q := range queries {
		id, err := m.search(ctx, q)
		if err != nil {
			m.logger.Warn().Err(err).Str("title", q.title).Msg("catalog search failed")
			continue
		}
		if id == 0 {
			continue
		}

		meta, err := m.details(ctx, id)
		if err != nil {
			m.logger.Warn().Err(err).Int("tmdb_id", id).Msg("catalog detail lookup failed")
			return nil
		}

		m.logger.Info().
			Str("title", meta.Title).
			Int("year", meta.Year).
			Msg("catalog match found")
		return meta
	}

	m.logger.Debug().Str("title", title).Msg("no catalog match")
	return nil
}

// buildQueries assembles the ordered fallback chain for a parsed title.
func buildQueries(title string, year int, french bool) []searchQuery {
	var queries []searchQuery

	if french {
		queries = append(queries,
			searchQuery{title: title, year: year, region: "FR", language: "fr-FR"},
			searchQuery{title: title, year: year, region: "FR"},
		)
	}

	queries = append(queries, searchQuery{title: title, year: year})

	// Year filters can hide slightly mis-tagged releases; retry without.
	if year != 0 {
		if french {
			queries = append(queries, searchQuery{title: title, region: "FR", language: "fr-FR"})
		}
		queries = append(queries, searchQuery{title: title})
	}

	return queries
}

// search runs one search strategy and returns the id of the top hit,
// or 0 when the result set is empty.
func (m *tmdbMatcher) search(ctx context.Context, q searchQuery) (int, error) {
	params := url.Values{}
	params.Set("api_key", m.apiKey)
	params.Set("query", q.title)
	params.Set("include_adult", "false")
	if q.year != 0 {
		params.Set("year", strconv.Itoa(q.year))
	}
	if q.region != "" {
		params.Set("region", q.region)
	}
	if q.language != "" {
		params.Set("language", q.language)
	}

	var resp tmdbSearchResponse
	if err := m.get(ctx, "/search/movie?"+params.Encode(), &resp); err != nil {
		return 0, err
	}

	if len(resp.Results) == 0 {
		return 0, nil
	}

	return resp.Results[0].ID, nil
}

// details fetches the full record for a movie id.
func (m *tmdbMatcher) details(ctx context.Context, id int) (*Metadata, error) {
	params := url.Values{}
	params.Set("api_key", m.apiKey)

	var resp tmdbDetails
	if err := m.get(ctx, fmt.Sprintf("/movie/%d?%s", id, params.Encode()), &resp); err != nil {
		return nil, err
	}

	genres := make([]string, 0, len(resp.Genres))
	for _, g := range resp.Genres {
		genres = append(genres, g.Name)
	}

	meta := &Metadata{
		TMDBID:        resp.ID,
		Title:         resp.Title,
		OriginalTitle: resp.OriginalTitle,
		Overview:      resp.Overview,
		PosterPath:    resp.PosterPath,
		BackdropPath:  resp.BackdropPath,
		ReleaseDate:   resp.ReleaseDate,
		VoteAverage:   resp.VoteAverage,
		Runtime:       resp.Runtime,
		Genres:        genres,
	}

	// Release year is the leading 4 digits of the release date.
	if len(resp.ReleaseDate) >= 4 {
		if y, err := strconv.Atoi(resp.ReleaseDate[:4]); err == nil {
			meta.Year = y
		}
	}

	return meta, nil
}

func (m *tmdbMatcher) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb: unexpected status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
