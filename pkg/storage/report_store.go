package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ReportStore archives run artifacts (JSON reports and raw logs).
type ReportStore interface {
	// Store saves data under name for summaryID and returns a reference.
	Store(ctx context.Context, summaryID, name string, data []byte) (string, error)
	// Retrieve fetches an artifact by reference.
	Retrieve(ctx context.Context, reference string) ([]byte, error)
}

// S3ReportStore stores artifacts in S3-compatible storage.
type S3ReportStore struct {
	client     *s3.Client
	bucket     string
	prefix     string
	localCache string
	now        func() time.Time
}

// S3ReportStoreConfig holds S3 configuration.
type S3ReportStoreConfig struct {
	Bucket          string
	Prefix          string // e.g. "reports/"
	Region          string
	Endpoint        string // for MinIO or other local S3
	AccessKeyID     string
	SecretAccessKey string
	LocalCacheDir   string
}

// NewS3ReportStore creates a new S3-backed report store.
func NewS3ReportStore(ctx context.Context, cfg S3ReportStoreConfig) (*S3ReportStore, error) {
	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // required for MinIO
		})
	}

	if cfg.LocalCacheDir != "" {
		if err := os.MkdirAll(cfg.LocalCacheDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	return &S3ReportStore{
		client:     s3.NewFromConfig(awsCfg, clientOpts...),
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		localCache: cfg.LocalCacheDir,
		now:        time.Now,
	}, nil
}

// Store uploads an artifact.
func (s *S3ReportStore) Store(ctx context.Context, summaryID, name string, data []byte) (string, error) {
	key := s.buildKey(summaryID, name)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(name)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to S3: %w", name, err)
	}

	if s.localCache != "" {
		_ = os.WriteFile(s.cachePath(key), data, 0644)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Retrieve downloads an artifact, preferring the local cache.
func (s *S3ReportStore) Retrieve(ctx context.Context, reference string) ([]byte, error) {
	key := extractKey(reference)

	if s.localCache != "" {
		if data, err := os.ReadFile(s.cachePath(key)); err == nil {
			return data, nil
		}
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from S3: %w", key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	if s.localCache != "" {
		_ = os.WriteFile(s.cachePath(key), data, 0644)
	}
	return data, nil
}

func (s *S3ReportStore) buildKey(summaryID, name string) string {
	return path.Join(s.prefix, s.now().UTC().Format("2006/01/02"), summaryID, name)
}

// cachePath flattens key into a single file name inside the cache.
func (s *S3ReportStore) cachePath(key string) string {
	return filepath.Join(s.localCache, strings.ReplaceAll(key, "/", "_"))
}

// extractKey strips the "s3://bucket/" prefix from a reference.
func extractKey(reference string) string {
	rest, ok := strings.CutPrefix(reference, "s3://")
	if !ok {
		return reference
	}
	if _, key, found := strings.Cut(rest, "/"); found {
		return key
	}
	return ""
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json"
	default:
		return "text/plain"
	}
}

// LocalReportStore stores artifacts on the local filesystem (development or
// single node).
type LocalReportStore struct {
	basePath string
}

// NewLocalReportStore creates a local filesystem report store.
func NewLocalReportStore(basePath string) (*LocalReportStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}
	return &LocalReportStore{basePath: basePath}, nil
}

// Store writes the artifact to <base>/<summaryID>/<name>.
func (l *LocalReportStore) Store(ctx context.Context, summaryID, name string, data []byte) (string, error) {
	dir := filepath.Join(l.basePath, summaryID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	p := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(p, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return p, nil
}

// Retrieve reads an artifact previously returned by Store.
func (l *LocalReportStore) Retrieve(ctx context.Context, reference string) ([]byte, error) {
	data, err := os.ReadFile(reference)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}
