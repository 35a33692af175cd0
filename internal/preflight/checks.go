package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"audiotagger/internal/config"
	"audiotagger/internal/ledger"
	"audiotagger/internal/results"
)

const (
	apiCheckTimeout     = 10 * time.Second
	storageCheckTimeout = 15 * time.Second
)

// CheckAnalysisAPI verifies the analysis endpoint answers and accepts the
// credential. It makes a single GET against the base URL.
func CheckAnalysisAPI(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Analysis API"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return Result{Name: name, Detail: fmt.Sprintf("missing api key (set api.api_key or %s)", config.APIKeyEnv)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, apiCheckTimeout)
	defer cancel()

	client := &http.Client{Timeout: apiCheckTimeout}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base, nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	req.SetBasicAuth(strings.TrimSpace(apiKey), "")

	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetError(base, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode >= http.StatusInternalServerError:
		return Result{Name: name, Detail: fmt.Sprintf("%s answered %d", base, resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: base + " reachable"}
	}
}

// CheckDirectoryAccess verifies that the directory is readable and writable.
// A directory that does not exist yet passes when its nearest existing
// parent is writable, since it is created on first use.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
		}
		parent := existingParent(path)
		if parent == "" {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: no existing parent)", path)}
		}
		if err := checkAccess(parent); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create under %s: %v)", path, parent, err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (will be created)", path)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := checkAccess(path); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckObjectStore connects to the configured bucket.
func CheckObjectStore(ctx context.Context, storage config.Storage) Result {
	const name = "Object storage"

	checkCtx, cancel := context.WithTimeout(ctx, storageCheckTimeout)
	defer cancel()

	_, err := results.NewS3Store(checkCtx, results.S3Config{
		Endpoint:  storage.Endpoint,
		Bucket:    storage.Bucket,
		Prefix:    storage.Prefix,
		AccessKey: storage.AccessKey,
		SecretKey: storage.SecretKey,
		UseSSL:    storage.UseSSL,
		Region:    storage.Region,
	})
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("bucket %s on %s", storage.Bucket, storage.Endpoint)}
}

// CheckLedger opens the run ledger, creating it when missing.
func CheckLedger(ctx context.Context, path string) Result {
	const name = "Run ledger"

	store, err := ledger.Open(ctx, path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%v)", path, err)}
	}
	if err := store.Close(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (close: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

func existingParent(path string) string {
	dir := filepath.Clean(path)
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		if info, err := os.Stat(parent); err == nil && info.IsDir() {
			return parent
		}
		dir = parent
	}
}

func summarizeNetError(base string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("%s timed out", base)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Sprintf("%s timed out", base)
	}
	return fmt.Sprintf("%s unreachable (%v)", base, err)
}
