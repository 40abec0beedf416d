package catalog_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelvault/reelvault/internal/catalog"
)

// fakeTMDB is a minimal TMDB stand-in. Search results are keyed by the
// region+language of the incoming query so tests can control which strategy
// in the fallback chain produces a hit.
type fakeTMDB struct {
	*httptest.Server

	mu sync.Mutex
	// hits maps "region|language" to the movie id returned for that
	// strategy. Missing keys return an empty result set.
	hits     map[string]int
	searches []string // "region|language|year" per search call
	details  catalog.Metadata
	failIDs  map[int]bool
}

func newFakeTMDB(t *testing.T) *fakeTMDB {
	t.Helper()

	f := &fakeTMDB{
		hits:    map[string]int{},
		failIDs: map[int]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/search/movie", f.handleSearch)
	mux.HandleFunc("/movie/", f.handleDetails)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)

	return f
}

func (f *fakeTMDB) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("region") + "|" + q.Get("language")

	f.mu.Lock()
	f.searches = append(f.searches, key+"|"+q.Get("year"))
	id := f.hits[key]
	f.mu.Unlock()

	results := []map[string]any{}
	if id != 0 {
		results = append(results, map[string]any{"id": id, "title": "hit"})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
}

func (f *fakeTMDB) handleDetails(w http.ResponseWriter, r *http.Request) {
	var id int
	_, _ = fmt.Sscanf(r.URL.Path, "/movie/%d", &id)

	f.mu.Lock()
	fail := f.failIDs[id]
	details := f.details
	f.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":             id,
		"title":          details.Title,
		"original_title": details.OriginalTitle,
		"overview":       details.Overview,
		"poster_path":    details.PosterPath,
		"backdrop_path":  details.BackdropPath,
		"release_date":   details.ReleaseDate,
		"vote_average":   details.VoteAverage,
		"runtime":        details.Runtime,
		"genres":         []map[string]any{{"id": 18, "name": "Drama"}},
	})
}

func (f *fakeTMDB) searchCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

func TestTMDB_Match(t *testing.T) {
	t.Run("default strategy match fills all fields", func(t *testing.T) {
		fake := newFakeTMDB(t)
		fake.hits["|"] = 550
		fake.details = catalog.Metadata{
			Title:         "Fight Club",
			OriginalTitle: "Fight Club",
			Overview:      "An insomniac office worker...",
			PosterPath:    "/poster.jpg",
			BackdropPath:  "/backdrop.jpg",
			ReleaseDate:   "1999-10-15",
			VoteAverage:   8.4,
			Runtime:       139,
		}

		m := catalog.NewTMDB("test-key", fake.URL)
		meta := m.Match(context.Background(), "Fight.Club.1999.1080p.mkv")

		require.NotNil(t, meta)
		assert.Equal(t, 550, meta.TMDBID)
		assert.Equal(t, "Fight Club", meta.Title)
		assert.Equal(t, 1999, meta.Year)
		assert.Equal(t, "/poster.jpg", meta.PosterPath)
		assert.Equal(t, []string{"Drama"}, meta.Genres)
		assert.Equal(t, 139, meta.Runtime)
	})

	t.Run("french release tries regional strategies first", func(t *testing.T) {
		fake := newFakeTMDB(t)
		fake.hits["FR|fr-FR"] = 42
		fake.details = catalog.Metadata{Title: "Le Film", ReleaseDate: "2020-01-01"}

		m := catalog.NewTMDB("test-key", fake.URL)
		meta := m.Match(context.Background(), "Le.Film.2020.FRENCH.1080p.mkv")

		require.NotNil(t, meta)
		assert.Equal(t, 42, meta.TMDBID)

		calls := fake.searchCalls()
		require.NotEmpty(t, calls)
		assert.Equal(t, "FR|fr-FR|2020", calls[0])
	})

	t.Run("french release with no regional hit falls back to default", func(t *testing.T) {
		fake := newFakeTMDB(t)
		fake.hits["|"] = 7
		fake.details = catalog.Metadata{Title: "Some Film", ReleaseDate: "2020-01-01"}

		m := catalog.NewTMDB("test-key", fake.URL)
		meta := m.Match(context.Background(), "Some.Film.2020.VOSTFR.mkv")

		require.NotNil(t, meta)
		assert.Equal(t, 7, meta.TMDBID)

		// Two regional strategies tried and missed before the default one.
		calls := fake.searchCalls()
		require.GreaterOrEqual(t, len(calls), 3)
		assert.Equal(t, "FR|fr-FR|2020", calls[0])
		assert.Equal(t, "FR||2020", calls[1])
		assert.Equal(t, "||2020", calls[2])
	})

	t.Run("year filter dropped when nothing matches with it", func(t *testing.T) {
		fake := newFakeTMDB(t)
		fake.details = catalog.Metadata{Title: "Anything", ReleaseDate: "2019-06-01"}

		m := catalog.NewTMDB("test-key", fake.URL)
		meta := m.Match(context.Background(), "Obscure.Movie.2019.mkv")

		assert.Nil(t, meta)

		calls := fake.searchCalls()
		require.Len(t, calls, 2)
		assert.Equal(t, "||2019", calls[0])
		assert.Equal(t, "||", calls[1])
	})

	t.Run("no match returns nil", func(t *testing.T) {
		fake := newFakeTMDB(t)

		m := catalog.NewTMDB("test-key", fake.URL)
		assert.Nil(t, m.Match(context.Background(), "Nothing.Here.mkv"))
	})

	t.Run("detail failure returns nil", func(t *testing.T) {
		fake := newFakeTMDB(t)
		fake.hits["|"] = 99
		fake.failIDs[99] = true

		m := catalog.NewTMDB("test-key", fake.URL)
		assert.Nil(t, m.Match(context.Background(), "Broken.Movie.2021.mkv"))
	})

	t.Run("unreachable api returns nil", func(t *testing.T) {
		fake := newFakeTMDB(t)
		baseURL := fake.URL
		fake.Close()

		m := catalog.NewTMDB("test-key", baseURL)
		assert.Nil(t, m.Match(context.Background(), "Any.Movie.2021.mkv"))
	})
}

func TestNoop_Match(t *testing.T) {
	m := catalog.NewNoop()
	assert.Nil(t, m.Match(context.Background(), "Any.Movie.2021.mkv"))
}
