// Package s3store keeps run artifacts in an S3-compatible bucket and hands out
// presigned GET URLs for them.
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"roastbot/internal/core/domain"
)

// Config describes the bucket and endpoint.
type Config struct {
	Endpoint       string // host:port or full URL; empty uses AWS
	Region         string
	AccessKey      string
	SecretKey      string
	Bucket         string
	DisableTLS     bool
	ForcePathStyle bool
	PresignTTL     time.Duration
}

// Store implements ports.ArtifactStore.
type Store struct {
	api     *s3.Client
	presign *s3.PresignClient
	bucket  string
	ttl     time.Duration
}

// New initialises a Store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("s3 access key and secret key are required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 24 * time.Hour
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		scheme := "https"
		if cfg.DisableTLS {
			scheme = "http"
		}
		endpoint = fmt.Sprintf("%s://%s", scheme, endpoint)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Store{
		api:     client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		ttl:     cfg.PresignTTL,
	}, nil
}

// PutScreenshot uploads a PNG and returns a presigned URL for it.
func (s *Store) PutScreenshot(ctx context.Context, runID, slug string, data []byte) (string, error) {
	return s.put(ctx, domain.ArtifactKey(runID, slug, domain.ScreenshotFile), "image/png", data)
}

// PutTrace uploads a JSON trace and returns a presigned URL for it.
func (s *Store) PutTrace(ctx context.Context, runID, slug string, data []byte) (string, error) {
	return s.put(ctx, domain.ArtifactKey(runID, slug, domain.TraceFile), "application/json", data)
}

func (s *Store) put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	if err := s.PutObject(ctx, key, contentType, data); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.PresignGet(ctx, key)
}

// PutObject uploads data under key with checksum metadata.
func (s *Store) PutObject(ctx context.Context, key, contentType string, data []byte) error {
	if s == nil {
		return errors.New("nil store")
	}
	digest := sha256.Sum256(data)
	checksum := base64.StdEncoding.EncodeToString(digest[:])
	size := int64(len(data))

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:            &s.bucket,
		Key:               &key,
		Body:              bytes.NewReader(data),
		ContentLength:     &size,
		ContentType:       &contentType,
		ChecksumAlgorithm: s3types.ChecksumAlgorithmSha256,
		ChecksumSHA256:    &checksum,
		Metadata: map[string]string{
			"sha256": hex.EncodeToString(digest[:]),
		},
	})
	return err
}

// PresignGet generates a presigned GET URL for key.
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", errors.New("nil store")
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.ttl
	})
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
