package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// LinkHostServer is a fake link-host upstream serving both the token
// exchange endpoint (POST /token) and the resolved file download
// (GET /files/<name>).
type LinkHostServer struct {
	*httptest.Server

	mu sync.Mutex

	// TokenStatus is the status field of the token response ("OK" by
	// default; anything else makes jobs fail).
	TokenStatus string
	// SuggestedName is the filename field of the token response.
	SuggestedName string
	// FileBody is the payload served for downloads.
	FileBody []byte
	// Disposition optionally sets a Content-Disposition header on
	// downloads.
	Disposition string
	// OmitContentLength serves the file as a chunked response with no
	// length header.
	OmitContentLength bool

	tokenRequests []string
}

// NewLinkHostServer creates a fake link-host. The server is closed when the
// test completes.
func NewLinkHostServer(t *testing.T) *LinkHostServer {
	t.Helper()

	s := &LinkHostServer{
		TokenStatus: "OK",
		FileBody:    []byte("fake video payload"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/files/", s.handleFile)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// TokenEndpoint returns the URL of the fake token exchange.
func (s *LinkHostServer) TokenEndpoint() string {
	return s.URL + "/token"
}

// TokenRequests returns the source URLs received by the token endpoint.
func (s *LinkHostServer) TokenRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokenRequests...)
}

func (s *LinkHostServer) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.tokenRequests = append(s.tokenRequests, req.URL)
	status := s.TokenStatus
	suggested := s.SuggestedName
	s.mu.Unlock()

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":   status,
		"url":      s.URL + "/files/download",
		"filename": suggested,
	})
}

func (s *LinkHostServer) handleFile(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	body := s.FileBody
	disposition := s.Disposition
	omitLength := s.OmitContentLength
	s.mu.Unlock()

	if disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	if !omitLength {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	_, _ = w.Write(body)
}
