package testsupport

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"strings"
	"sync"
	"testing"

	"audiotagger/internal/tagtypes"
)

// Analysis endpoint paths served by AnalysisServer.
const (
	UploadFilePath  = "/api/v1/upload/file"
	UploadAudioPath = "/api/v1/upload/audio-link"
	UploadVideoPath = "/api/v1/upload/youtube-link"
	ExtractTagsPath = "/api/v1/extract/tags"
)

// AnalysisServer is an in-process stand-in for the tagging service. Handles
// are "feat-" plus the uploaded file or link base name without extension,
// so they stay stable regardless of worker scheduling.
type AnalysisServer struct {
	*httptest.Server

	mu            sync.Mutex
	requests      map[string]int
	failUploads   []string
	failExtracts  map[string]bool
	tags          []tagtypes.Entry
	requestedTags [][]string
}

// AnalysisOption configures an AnalysisServer before it starts.
type AnalysisOption func(*AnalysisServer)

// FailUploadsContaining answers 500 to uploads whose name or link contains
// any of the fragments.
func FailUploadsContaining(fragments ...string) AnalysisOption {
	return func(s *AnalysisServer) {
		s.failUploads = append(s.failUploads, fragments...)
	}
}

// FailExtractFor answers 500 to extract calls for the given handles.
func FailExtractFor(handles ...string) AnalysisOption {
	return func(s *AnalysisServer) {
		for _, h := range handles {
			s.failExtracts[h] = true
		}
	}
}

// RespondWithTags sets the entries returned by every extract call.
func RespondWithTags(entries ...tagtypes.Entry) AnalysisOption {
	return func(s *AnalysisServer) {
		s.tags = append([]tagtypes.Entry(nil), entries...)
	}
}

// NewAnalysisServer starts a fake service and registers its shutdown.
func NewAnalysisServer(t testing.TB, opts ...AnalysisOption) *AnalysisServer {
	t.Helper()

	s := &AnalysisServer{
		requests:     make(map[string]int),
		failExtracts: make(map[string]bool),
		tags: []tagtypes.Entry{
			{Type: "GENRE", Name: "Rock", Score: "0.91"},
			{Type: "MOOD", Name: "Happy", Score: "0.7"},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Requests reports how many calls reached p.
func (s *AnalysisServer) Requests(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[p]
}

// TotalRequests reports every call the server answered.
func (s *AnalysisServer) TotalRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.requests {
		total += n
	}
	return total
}

// RequestedTags returns the tag lists sent with each extract call.
func (s *AnalysisServer) RequestedTags() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.requestedTags))
	copy(out, s.requestedTags)
	return out
}

func (s *AnalysisServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.URL.Path]++
	s.mu.Unlock()

	switch r.URL.Path {
	case UploadFilePath:
		file, header, err := r.FormFile("audio")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing audio"})
			return
		}
		_, _ = io.Copy(io.Discard, file)
		file.Close()
		s.answerUpload(w, header.Filename)
	case UploadAudioPath, UploadVideoPath:
		var body struct {
			Link string `json:"link"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Link == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing link"})
			return
		}
		s.answerUpload(w, body.Link)
	case ExtractTagsPath:
		var body struct {
			ID   string   `json:"id"`
			Tags []string `json:"tags"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad body"})
			return
		}
		s.mu.Lock()
		s.requestedTags = append(s.requestedTags, body.Tags)
		fail := s.failExtracts[body.ID]
		tags := s.tags
		s.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "extract unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": body.ID, "tags": tags})
	default:
		http.NotFound(w, r)
	}
}

func (s *AnalysisServer) answerUpload(w http.ResponseWriter, name string) {
	for _, fragment := range s.failUploads {
		if strings.Contains(name, fragment) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "upload rejected"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": HandleFor(name)})
}

// HandleFor returns the handle the fake service assigns to name.
func HandleFor(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return "feat-" + base
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
