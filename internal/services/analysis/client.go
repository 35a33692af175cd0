package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"audiotagger/internal/asset"
	"audiotagger/internal/logging"
	"audiotagger/internal/retry"
	"audiotagger/internal/services"
	"audiotagger/internal/tagtypes"
)

const (
	ProductionBaseURL = "https://api-us.musiio.com"
	TestBaseURL       = "https://api-eu.musiiotest.com"

	defaultHTTPTimeout = 120 * time.Second

	uploadFilePath  = "/api/v1/upload/file"
	uploadAudioPath = "/api/v1/upload/audio-link"
	uploadVideoPath = "/api/v1/upload/youtube-link"
	extractTagsPath = "/api/v1/extract/tags"
)

// Config captures the runtime settings required to talk to the analysis service.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	// RatePerSecond paces outbound requests when positive. The sandbox
	// endpoint is shared, so test mode sets a low value.
	RatePerSecond float64
	Retry         retry.Policy
}

// DefaultHTTPTimeout returns the default timeout used for analysis requests.
func DefaultHTTPTimeout() time.Duration {
	return defaultHTTPTimeout
}

// Client submits assets and extracts tags through the analysis REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	observer   Observer
}

// Observer receives per-attempt notifications; metrics hook in here.
type Observer interface {
	ObserveRequest(op string, err error)
	ObserveRetry(op string)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithObserver registers a request observer.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient constructs an analysis client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds: cfg.TimeoutSeconds,
			RatePerSecond:  cfg.RatePerSecond,
			Retry:          cfg.Retry,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = ProductionBaseURL
	}
	if client.cfg.Retry.Attempts <= 0 {
		client.cfg.Retry = retry.Default()
	}
	if client.cfg.RatePerSecond > 0 {
		client.limiter = rate.NewLimiter(rate.Limit(client.cfg.RatePerSecond), 1)
	}
	client.logger = logging.NewComponentLogger(client.logger, "analysis")
	return client
}

// RemoteError reports a non-success response from the analysis service.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: response code %d - api error %s", e.Op, e.StatusCode, e.Message)
}

// Is lets errors.Is(err, services.ErrRemote) match remote failures.
func (e *RemoteError) Is(target error) bool {
	return target == services.ErrRemote
}

type apiResponse struct {
	ID    json.RawMessage  `json:"id"`
	Tags  []tagtypes.Entry `json:"tags"`
	Error json.RawMessage  `json:"error"`
}

// SubmitAsset uploads or links the asset and returns the service's handle
// for it. Local files that cannot be opened fail on the first attempt.
func (c *Client) SubmitAsset(ctx context.Context, ref asset.Reference) (string, error) {
	policy := c.policy("upload").WithRetryable(retry.UnlessLocalResource)
	return retry.Value(ctx, policy, func(ctx context.Context) (string, error) {
		handle, err := c.submitOnce(ctx, ref)
		c.observe("upload", err)
		return handle, err
	})
}

// ExtractTags requests the given tag types for a submitted asset. Entries are
// returned in the order the service sent them.
func (c *Client) ExtractTags(ctx context.Context, handle string, types []tagtypes.Type) ([]tagtypes.Entry, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, services.Wrap(services.ErrValidation, "extract", "", "asset handle required", nil)
	}
	if len(types) == 0 {
		return nil, services.Wrap(services.ErrValidation, "extract", "", "no tag types requested", nil)
	}
	policy := c.policy("extract").WithRetryable(retry.Always)
	return retry.Value(ctx, policy, func(ctx context.Context) ([]tagtypes.Entry, error) {
		tags, err := c.extractOnce(ctx, handle, types)
		c.observe("extract", err)
		return tags, err
	})
}

func (c *Client) policy(op string) retry.Policy {
	return c.cfg.Retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		if c.observer != nil {
			c.observer.ObserveRetry(op)
		}
		c.logger.Warn("analysis request failed; retrying",
			logging.String("op", op),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
	})
}

func (c *Client) observe(op string, err error) {
	if c.observer != nil {
		c.observer.ObserveRequest(op, err)
	}
}

func (c *Client) submitOnce(ctx context.Context, ref asset.Reference) (string, error) {
	var (
		path        string
		body        io.Reader
		contentType string
	)
	switch ref.Kind() {
	case asset.KindLocalFile:
		file, err := os.Open(ref.Location())
		if err != nil {
			return "", services.Wrap(services.ErrLocalResource, "upload", "open file", ref.Location(), err)
		}
		defer file.Close()
		info, err := file.Stat()
		if err != nil {
			return "", services.Wrap(services.ErrLocalResource, "upload", "stat file", ref.Location(), err)
		}
		if !info.Mode().IsRegular() {
			return "", services.Wrap(services.ErrLocalResource, "upload", "open file", ref.Location()+" is not a regular file", nil)
		}
		path = uploadFilePath
		body, contentType = multipartBody(localReader{r: file, path: ref.Location()}, filepath.Base(ref.Location()))
		c.logger.Debug("upload: local file", logging.String("path", ref.Location()))
	case asset.KindVideoURL, asset.KindAudioURL:
		path = uploadAudioPath
		if ref.Kind() == asset.KindVideoURL {
			path = uploadVideoPath
		}
		encoded, err := json.Marshal(map[string]string{"link": ref.Location()})
		if err != nil {
			return "", fmt.Errorf("upload: encode body: %w", err)
		}
		body, contentType = bytes.NewReader(encoded), "application/json"
		c.logger.Debug("upload: link", logging.String("kind", ref.Kind().String()), logging.String("link", ref.Location()))
	default:
		return "", services.Wrap(services.ErrValidation, "upload", "", fmt.Sprintf("unsupported asset kind %d", ref.Kind()), nil)
	}

	resp, err := c.post(ctx, "upload", path, body, contentType)
	if err != nil {
		return "", err
	}
	handle := rawString(resp.ID)
	if handle == "" {
		return "", services.Wrap(services.ErrRemote, "upload", "decode response", "response did not include an id", nil)
	}
	c.logger.Debug("upload: got handle", logging.String("handle", handle))
	return handle, nil
}

func (c *Client) extractOnce(ctx context.Context, handle string, types []tagtypes.Type) ([]tagtypes.Entry, error) {
	payload := struct {
		ID   string   `json:"id"`
		Tags []string `json:"tags"`
	}{ID: handle, Tags: tagtypes.Names(types)}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("extract: encode body: %w", err)
	}
	c.logger.Debug("extract: request", logging.String("handle", handle), logging.Any("tags", payload.Tags))
	resp, err := c.post(ctx, "extract", extractTagsPath, bytes.NewReader(encoded), "application/json")
	if err != nil {
		return nil, err
	}
	if resp.Tags == nil {
		return []tagtypes.Entry{}, nil
	}
	return resp.Tags, nil
}

func (c *Client) post(ctx context.Context, op, path string, body io.Reader, contentType string) (apiResponse, error) {
	var parsed apiResponse
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return parsed, fmt.Errorf("%s: rate limiter: %w", op, err)
		}
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return parsed, fmt.Errorf("%s: build url: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return parsed, fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.cfg.APIKey, "")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return parsed, fmt.Errorf("%s: http error (timeout=%s): %w", op, c.httpClient.Timeout, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return parsed, fmt.Errorf("%s: read body: %w", op, err)
	}
	decodeErr := json.Unmarshal(raw, &parsed)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		message := rawString(parsed.Error)
		if decodeErr != nil || message == "" {
			message = summarizeBody(raw)
		}
		remoteErr := &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: message}
		c.logger.Error("analysis request rejected",
			logging.String("op", op),
			logging.Int("status", resp.StatusCode),
			logging.String("api_error", message),
		)
		return parsed, remoteErr
	}
	if decodeErr != nil {
		return parsed, services.Wrap(services.ErrRemote, op, "decode response", summarizeBody(raw), decodeErr)
	}
	return parsed, nil
}

// multipartBody streams r as the "audio" form file without buffering the
// whole track in memory.
// localReader marks read failures of an upload source as local so the
// retry policy gives up on them.
type localReader struct {
	r    io.Reader
	path string
}

func (l localReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	if err != nil && err != io.EOF {
		err = services.Wrap(services.ErrLocalResource, "upload", "read file", l.path, err)
	}
	return n, err
}

func multipartBody(r io.Reader, filename string) (io.Reader, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("audio", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = writer.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, writer.FormDataContentType()
}

// rawString renders a JSON scalar as text: strings are unquoted, numbers kept
// verbatim, null and absent values become "".
func rawString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return string(trimmed)
}

func summarizeBody(raw []byte) string {
	clean := strings.Join(strings.Fields(string(raw)), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}

// IsRemote reports whether err came from a non-success service response.
func IsRemote(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}
