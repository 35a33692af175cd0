package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"testing/iotest"
	"time"

	"audiotagger/internal/asset"
	"audiotagger/internal/retry"
	"audiotagger/internal/services"
	"audiotagger/internal/tagtypes"
)

func instantPolicy() retry.Policy {
	policy := retry.Default()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	return policy
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{BaseURL: server.URL, APIKey: "secret", Retry: instantPolicy()})
}

func TestSubmitLocalFileUploadsMultipart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("ID3-audio-bytes"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != uploadFilePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "secret" || pass != "" {
			t.Errorf("unexpected basic auth %q/%q (ok=%v)", user, pass, ok)
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "song.mp3" || string(data) != "ID3-audio-bytes" {
			t.Errorf("unexpected upload %q (%q)", header.Filename, data)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "h-1"})
	})

	handle, err := client.SubmitAsset(context.Background(), asset.LocalFile(path))
	if err != nil {
		t.Fatalf("SubmitAsset returned error: %v", err)
	}
	if handle != "h-1" {
		t.Fatalf("expected handle h-1, got %q", handle)
	}
}

func TestSubmitLinksUseMatchingEndpoint(t *testing.T) {
	cases := []struct {
		ref  asset.Reference
		path string
	}{
		{asset.AudioURL("https://cdn.example.com/a.mp3"), uploadAudioPath},
		{asset.VideoURL("https://www.youtube.com/watch?v=abc"), uploadVideoPath},
	}
	for _, tc := range cases {
		var gotPath, gotLink string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotLink = body["link"]
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 42})
		})
		handle, err := client.SubmitAsset(context.Background(), tc.ref)
		if err != nil {
			t.Fatalf("SubmitAsset(%s) returned error: %v", tc.ref, err)
		}
		if gotPath != tc.path {
			t.Fatalf("expected path %s, got %s", tc.path, gotPath)
		}
		if gotLink != tc.ref.Location() {
			t.Fatalf("expected link %q, got %q", tc.ref.Location(), gotLink)
		}
		if handle != "42" {
			t.Fatalf("expected numeric id rendered as 42, got %q", handle)
		}
	}
}

func TestSubmitMissingFileFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	_, err := client.SubmitAsset(context.Background(), asset.LocalFile(filepath.Join(t.TempDir(), "missing.mp3")))
	if !errors.Is(err, services.ErrLocalResource) {
		t.Fatalf("expected local resource error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no requests, got %d", calls.Load())
	}
}

func TestSubmitDirectoryFailsWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})
	_, err := client.SubmitAsset(context.Background(), asset.LocalFile(t.TempDir()))
	if !errors.Is(err, services.ErrLocalResource) {
		t.Fatalf("expected local resource error, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no requests, got %d", calls.Load())
	}
}

func TestLocalReaderMarksReadFailures(t *testing.T) {
	boom := errors.New("device error")
	r := localReader{r: iotest.ErrReader(boom), path: "/music/a.mp3"}
	_, err := r.Read(make([]byte, 8))
	if !errors.Is(err, services.ErrLocalResource) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped local resource error, got %v", err)
	}
	if retry.UnlessLocalResource(err) {
		t.Fatal("read failure must not be retried")
	}

	r = localReader{r: iotest.ErrReader(io.EOF)}
	if _, err := r.Read(make([]byte, 8)); err != io.EOF {
		t.Fatalf("expected io.EOF untouched, got %v", err)
	}
}

func TestSubmitRetriesRemoteFailures(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
	})
	_, err := client.SubmitAsset(context.Background(), asset.AudioURL("https://cdn.example.com/a.mp3"))
	if err == nil {
		t.Fatal("expected submit to fail")
	}
	if calls.Load() != retry.DefaultAttempts {
		t.Fatalf("expected %d attempts, got %d", retry.DefaultAttempts, calls.Load())
	}
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %T", err)
	}
	if remoteErr.StatusCode != http.StatusInternalServerError || remoteErr.Message != "boom" {
		t.Fatalf("unexpected remote error %+v", remoteErr)
	}
	if !errors.Is(err, services.ErrRemote) {
		t.Fatal("expected errors.Is(err, ErrRemote)")
	}
}

func TestSubmitRecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "late"})
	})
	handle, err := client.SubmitAsset(context.Background(), asset.AudioURL("https://cdn.example.com/a.mp3"))
	if err != nil {
		t.Fatalf("SubmitAsset returned error: %v", err)
	}
	if handle != "late" || calls.Load() != 3 {
		t.Fatalf("expected handle after 3 calls, got %q after %d", handle, calls.Load())
	}
}

func TestSubmitMissingIDIsRemoteFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
	})
	_, err := client.SubmitAsset(context.Background(), asset.AudioURL("https://cdn.example.com/a.mp3"))
	if !errors.Is(err, services.ErrRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestExtractTagsReturnsEntriesInOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != extractTagsPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			ID   string   `json:"id"`
			Tags []string `json:"tags"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.ID != "h-1" || len(body.Tags) != 2 || body.Tags[0] != "GENRE" || body.Tags[1] != "BPM" {
			t.Errorf("unexpected request %+v", body)
		}
		_, _ = io.WriteString(w, `{"tags":[{"type":"GENRE 1","name":"Rock","score":87},{"type":"BPM","name":"120","score":100}]}`)
	})
	entries, err := client.ExtractTags(context.Background(), "h-1", []tagtypes.Type{tagtypes.Genre, tagtypes.BPM})
	if err != nil {
		t.Fatalf("ExtractTags returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Type != "GENRE 1" || entries[0].Name != "Rock" || entries[0].Score.String() != "87" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
}

func TestExtractTagsRejectsEmptyHandle(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Retry: instantPolicy()})
	_, err := client.ExtractTags(context.Background(), " ", []tagtypes.Type{tagtypes.Genre})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExtractTagsExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})
	_, err := client.ExtractTags(context.Background(), "h-1", []tagtypes.Type{tagtypes.Mood})
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remoteErr.Message != "<html>bad gateway</html>" {
		t.Fatalf("expected body summary as message, got %q", remoteErr.Message)
	}
	if calls.Load() != retry.DefaultAttempts {
		t.Fatalf("expected %d attempts, got %d", retry.DefaultAttempts, calls.Load())
	}
}

func TestNewClientDefaultsToProductionEndpoint(t *testing.T) {
	client := NewClient(Config{BaseURL: "  "})
	if client.cfg.BaseURL != ProductionBaseURL {
		t.Fatalf("expected production base url, got %q", client.cfg.BaseURL)
	}
	if client.cfg.Retry.Attempts != retry.DefaultAttempts {
		t.Fatalf("expected default retry policy, got %+v", client.cfg.Retry)
	}
	if client.limiter != nil {
		t.Fatal("expected no limiter without a rate")
	}
	limited := NewClient(Config{RatePerSecond: 2})
	if limited.limiter == nil {
		t.Fatal("expected limiter when rate set")
	}
}

type countingObserver struct {
	requests atomic.Int32
	retries  atomic.Int32
}

func (o *countingObserver) ObserveRequest(string, error) { o.requests.Add(1) }
func (o *countingObserver) ObserveRetry(string)          { o.retries.Add(1) }

func TestObserverSeesAttemptsAndRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()
	observer := &countingObserver{}
	client := NewClient(Config{BaseURL: server.URL, Retry: instantPolicy()}, WithObserver(observer))
	_, _ = client.ExtractTags(context.Background(), "h", []tagtypes.Type{tagtypes.Key})
	if observer.requests.Load() != 5 || observer.retries.Load() != 4 {
		t.Fatalf("expected 5 requests and 4 retries, got %d/%d", observer.requests.Load(), observer.retries.Load())
	}
}
