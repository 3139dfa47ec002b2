// Package archive writes replication run results to S3-compatible object
// storage so downstream jobs can pick up the latest catalog and load state
// without calling the Stitch API themselves.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config carries the object store connection settings.
type Config struct {
	EndpointURL     string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
	Bucket          string
	Prefix          string
}

// Store persists run results to an S3-compatible bucket via the minio-go SDK.
type Store struct {
	client *minio.Client
	cfg    *Config
}

// New creates an archive store from config.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.EndpointURL == "" {
		return nil, fmt.Errorf("endpointUrl is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	// Parse endpoint URL to extract host
	u, err := url.Parse(cfg.EndpointURL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}
	endpoint := u.Host
	if endpoint == "" {
		endpoint = cfg.EndpointURL
	}

	useSSL := cfg.UseSSL
	if u.Scheme == "https" {
		useSSL = true
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Store{client: client, cfg: cfg}, nil
}

// Ping lists buckets as a connectivity check.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("archive unreachable: %w", err)
	}
	return nil
}

// EnsureBucket creates the configured bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.cfg.Bucket, err)
	}
	if exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{
		Region: s.cfg.Region,
	})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", s.cfg.Bucket, err)
	}
	return nil
}

// PutResult stores a run result as JSON under <prefix>/<sourceID>/<runID>.json
// and returns the object key.
func (s *Store) PutResult(ctx context.Context, sourceID, runID string, result any) (string, error) {
	if sourceID == "" {
		return "", fmt.Errorf("sourceId is required")
	}
	if runID == "" {
		return "", fmt.Errorf("runId is required")
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	key := s.resultKey(sourceID, runID)
	reader := bytes.NewReader(data)
	_, err = s.client.PutObject(ctx, s.cfg.Bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// GetResult reads a previously archived run result into out.
func (s *Store) GetResult(ctx context.Context, sourceID, runID string, out any) error {
	key := s.resultKey(sourceID, runID)
	obj, err := s.client.GetObject(ctx, s.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	return json.Unmarshal(data, out)
}

// ListRuns returns the archived run IDs for a source, in key order.
func (s *Store) ListRuns(ctx context.Context, sourceID string) ([]string, error) {
	prefix := s.resultKey(sourceID, "")
	var runs []string
	for obj := range s.client.ListObjects(ctx, s.cfg.Bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		name := strings.TrimSuffix(path.Base(obj.Key), ".json")
		runs = append(runs, name)
	}
	return runs, nil
}

func (s *Store) resultKey(sourceID, runID string) string {
	parts := []string{}
	if s.cfg.Prefix != "" {
		parts = append(parts, strings.Trim(s.cfg.Prefix, "/"))
	}
	parts = append(parts, sourceID)
	if runID == "" {
		return path.Join(parts...) + "/"
	}
	parts = append(parts, runID+".json")
	return path.Join(parts...)
}
