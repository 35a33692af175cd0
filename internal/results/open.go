package results

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"audiotagger/internal/services"
)

// Backend names accepted by Open.
const (
	BackendDir = "dir"
	BackendS3  = "s3"
)

// Open returns the store for location. With the dir backend location is a
// directory; with s3 it is appended to the configured prefix.
func Open(ctx context.Context, backend string, s3 S3Config, location string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendDir:
		if strings.TrimSpace(location) == "" {
			return nil, services.Wrap(services.ErrValidation, "storage", "", "results folder is required", nil)
		}
		return NewDirStore(location), nil
	case BackendS3:
		cfg := s3
		if name := strings.Trim(filepath.ToSlash(strings.TrimSpace(location)), "/"); name != "" {
			cfg.Prefix = path.Join(strings.Trim(s3.Prefix, "/"), path.Base(name))
		}
		return NewS3Store(ctx, cfg)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "", fmt.Sprintf("unknown storage backend %q", backend), nil)
	}
}

// Locker is implemented by stores that support exclusive access.
type Locker interface {
	Lock() (func() error, error)
}
