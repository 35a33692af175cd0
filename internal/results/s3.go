package results

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"audiotagger/internal/services"
)

// S3Config describes an S3 compatible bucket used as the results folder.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// S3Store keeps records as <prefix>/<feature_id>.json objects.
type S3Store struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3Store connects to the bucket, creating it when absent.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "create client", cfg.Endpoint, err)
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, services.Wrap(services.ErrRemote, "storage", "check bucket", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, services.Wrap(services.ErrRemote, "storage", "create bucket", cfg.Bucket, err)
		}
	}
	return &S3Store{client: client, cfg: cfg}, nil
}

func (c S3Config) validate() error {
	switch {
	case strings.TrimSpace(c.Endpoint) == "":
		return services.Wrap(services.ErrConfiguration, "storage", "", "s3 endpoint is required", nil)
	case strings.TrimSpace(c.Bucket) == "":
		return services.Wrap(services.ErrConfiguration, "storage", "", "s3 bucket is required", nil)
	case c.AccessKey == "" || c.SecretKey == "":
		return services.Wrap(services.ErrConfiguration, "storage", "", "s3 credentials are required", nil)
	}
	return nil
}

// splitEndpoint accepts either host:port or a URL; an https scheme forces TLS.
func splitEndpoint(raw string, useSSL bool) (string, bool) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, useSSL
	}
	if u.Scheme == "https" {
		useSSL = true
	}
	return u.Host, useSSL
}

// Location returns an s3:// URL for the store.
func (s *S3Store) Location() string {
	return "s3://" + path.Join(s.cfg.Bucket, s.cfg.Prefix)
}

func (s *S3Store) objectKey(featureID string) string {
	return objectKey(s.cfg.Prefix, featureID)
}

func objectKey(prefix, featureID string) string {
	name := SafeKey(featureID) + recordExt
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func (s *S3Store) listPrefix() string {
	prefix := strings.Trim(s.cfg.Prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// Put uploads the record. A single PutObject replaces the object whole.
func (s *S3Store) Put(ctx context.Context, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	key := s.objectKey(rec.FeatureID)
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return services.Wrap(services.ErrRemote, "persist", "put object", key, err)
	}
	return nil
}

// List downloads every record under the prefix, sorted by key.
func (s *S3Store) List(ctx context.Context) ([]Record, error) {
	prefix := s.listPrefix()
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, services.Wrap(services.ErrRemote, "load", "list objects", s.Location(), obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") || !strings.EqualFold(path.Ext(obj.Key), recordExt) {
			continue
		}
		keys = append(keys, obj.Key)
	}
	sort.Strings(keys)

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		data, err := s.get(ctx, key)
		if err != nil {
			return nil, err
		}
		base := strings.TrimPrefix(key, prefix)
		rec, err := decodeRecord(strings.TrimSuffix(base, path.Ext(base)), data)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *S3Store) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, services.Wrap(services.ErrRemote, "load", "get object", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, services.Wrap(services.ErrRemote, "load", "read object", key, err)
	}
	return data, nil
}

// String implements fmt.Stringer for log output.
func (s *S3Store) String() string {
	return fmt.Sprintf("S3Store(%s)", s.Location())
}
