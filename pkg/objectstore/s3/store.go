// Package s3 provides the Remote Object Store Adapter backend, backed by
// Amazon S3 or an S3-compatible service (MinIO, LocalStack).
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeremybastin1207/mindia/internal/merrors"
	"github.com/jeremybastin1207/mindia/internal/telemetry"
	"github.com/jeremybastin1207/mindia/pkg/objectstore"
)

// Config holds configuration for the S3 object store.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// KeyPrefix is prepended to all object keys.
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for
	// LocalStack/MinIO). When false, URLs are virtual-hosted.
	ForcePathStyle bool
}

// Store is an S3-backed implementation of objectstore.Store.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	region    string
	keyPrefix string
	endpoint  string
	pathStyle bool
	closed    bool
	mu        sync.RWMutex
}

// New creates a new S3 object store with an existing client.
func New(client *s3.Client, config Config) *Store {
	return &Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    config.Bucket,
		region:    config.Region,
		keyPrefix: config.KeyPrefix,
		endpoint:  config.Endpoint,
		pathStyle: config.ForcePathStyle,
	}
}

// NewFromConfig creates a new S3 object store by building an S3 client
// from the given config (the preferred constructor in production).
func NewFromConfig(ctx context.Context, config Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return New(client, config), nil
}

func (s *Store) fullKey(key string) string {
	return s.keyPrefix + key
}

// storeAttrs returns the span attributes shared by every S3 call this
// store makes, identifying the backend and bucket an operation touched.
func (s *Store) storeAttrs(key string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		telemetry.StoreType("s3"),
		telemetry.Bucket(s.bucket),
		telemetry.StorageKey(key),
	}
	if s.region != "" {
		attrs = append(attrs, telemetry.Region(s.region))
	}
	return attrs
}

// publicURL builds the object's durable URL, honoring path-style vs
// virtual-hosted addressing the way the original mindia S3 key construction
// does (see SPEC_FULL.md §C).
func (s *Store) publicURL(key string) string {
	full := s.fullKey(key)
	if s.endpoint != "" {
		if s.pathStyle {
			return strings.TrimRight(s.endpoint, "/") + "/" + s.bucket + "/" + full
		}
		return fmt.Sprintf("%s://%s.%s/%s", schemeOf(s.endpoint), s.bucket, hostOf(s.endpoint), full)
	}
	if s.pathStyle {
		return fmt.Sprintf("https://s3.amazonaws.com/%s/%s", s.bucket, full)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, full)
}

func schemeOf(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") {
		return "http"
	}
	return "https"
}

func hostOf(endpoint string) string {
	h := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	return h
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return merrors.New(merrors.StorageError, "objectstore.s3", fmt.Errorf("store is closed"))
	}
	return nil
}

// Upload stores bytes under a generated key of the form
// "{tenant}/{uuid}-{filename}".
func (s *Store) Upload(ctx context.Context, tenant, filename, contentType string, body []byte) (string, string, error) {
	if err := s.checkOpen(); err != nil {
		return "", "", err
	}
	key := fmt.Sprintf("%s/%s-%s", tenant, uuid.NewString(), filename)
	url, err := s.UploadWithKey(ctx, key, body, contentType)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// UploadWithKey stores bytes at an explicit key.
func (s *Store) UploadWithKey(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	ctx, span := telemetry.StartSpan(ctx, "objectstore.s3.upload", trace.WithAttributes(s.storeAttrs(key)...))
	defer span.End()

	full := s.fullKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", merrors.New(merrors.StorageError, "objectstore.s3.Upload", err)
	}

	return s.publicURL(key), nil
}

// Download reads a complete object from S3.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "objectstore.s3.download", trace.WithAttributes(s.storeAttrs(key)...))
	defer span.End()

	full := s.fullKey(key)
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, merrors.New(merrors.NotFound, "objectstore.s3.Download", err)
		}
		return nil, merrors.New(merrors.StorageError, "objectstore.s3.Download", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, merrors.New(merrors.StorageError, "objectstore.s3.Download", err)
	}

	return data, nil
}

// Exists reports whether key names an object.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	full := s.fullKey(key)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, merrors.New(merrors.StorageError, "objectstore.s3.Exists", err)
	}
	return true, nil
}

// Delete removes a single object. Deleting a missing key succeeds, since S3
// DeleteObject is itself idempotent on a missing key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	ctx, span := telemetry.StartSpan(ctx, "objectstore.s3.delete", trace.WithAttributes(s.storeAttrs(key)...))
	defer span.End()

	full := s.fullKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(full),
	})
	if err != nil {
		return merrors.New(merrors.StorageError, "objectstore.s3.Delete", err)
	}
	return nil
}

// Copy duplicates src to dst via a server-side S3 copy.
func (s *Store) Copy(ctx context.Context, src, dst string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	ctx, span := telemetry.StartSpan(ctx, "objectstore.s3.copy", trace.WithAttributes(s.storeAttrs(dst)...))
	defer span.End()

	source := s.bucket + "/" + s.fullKey(src)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(source),
		Key:        aws.String(s.fullKey(dst)),
	})
	if err != nil {
		return "", merrors.New(merrors.StorageError, "objectstore.s3.Copy", err)
	}
	return s.publicURL(dst), nil
}

// PresignedPutURL returns a time-limited PUT URL for key.
func (s *Store) PresignedPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.fullKey(key)),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", merrors.New(merrors.StorageError, "objectstore.s3.PresignedPutURL", err)
	}
	return req.URL, nil
}

// PresignedGetURL returns a time-limited GET URL for key.
func (s *Store) PresignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", merrors.New(merrors.StorageError, "objectstore.s3.PresignedGetURL", err)
	}
	return req.URL, nil
}

// BackendKind reports Remote: presigned operations are supported.
func (s *Store) BackendKind() objectstore.BackendKind {
	return objectstore.Remote
}

// DeleteByPrefix removes all objects with a given prefix using batch delete
// (≤1000 objects per call). Used by the storage-orphan reconciliation
// sweep (§4.9); the Media Lifecycle Service does not call it.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	fullPrefix := s.fullKey(prefix)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return merrors.New(merrors.StorageError, "objectstore.s3.DeleteByPrefix", err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objects[i] = types.ObjectIdentifier{Key: obj.Key}
		}

		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects},
		})
		if err != nil {
			return merrors.New(merrors.StorageError, "objectstore.s3.DeleteByPrefix", err)
		}
	}

	return nil
}

// ListByPrefix lists all keys with a given prefix, stripped of KeyPrefix.
func (s *Store) ListByPrefix(ctx context.Context, prefix string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	fullPrefix := s.fullKey(prefix)
	var keys []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(fullPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, merrors.New(merrors.StorageError, "objectstore.s3.ListByPrefix", err)
		}
		for _, obj := range page.Contents {
			key := *obj.Key
			if s.keyPrefix != "" && strings.HasPrefix(key, s.keyPrefix) {
				key = key[len(s.keyPrefix):]
			}
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return merrors.New(merrors.StorageError, "objectstore.s3.HealthCheck", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "404")
}

var _ objectstore.Store = (*Store)(nil)
