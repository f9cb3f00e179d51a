package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

const defaultPrefix = "runs"

// ErrSnapshotNotFound is returned when no archived snapshot exists for a run
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore keeps a copy of every finished run's snapshot in S3 under
// <prefix>/<agentId>/<logId>.json
type SnapshotStore struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewSnapshotStore(ctx context.Context, cfg types.ArchiveConfig) (*SnapshotStore, error) {
	if cfg.S3.Bucket == "" {
		return nil, fmt.Errorf("archive bucket not configured")
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}

	log.Info().Str("bucket", cfg.S3.Bucket).Str("prefix", prefix).Str("endpoint", cfg.S3.Endpoint).Msg("snapshot archive initialized")

	return &SnapshotStore{client: client, bucket: cfg.S3.Bucket, prefix: prefix}, nil
}

func buildAWSConfig(ctx context.Context, cfg types.S3Config) (aws.Config, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	// S3-compatible endpoints (minio, localstack)
	if cfg.Endpoint != "" {
		opts = append(opts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: true,
				}, nil
			}),
		))
	}

	return config.LoadDefaultConfig(ctx, opts...)
}

func (s *SnapshotStore) Key(agentId, logId string) string {
	return path.Join(s.prefix, agentId, logId+".json")
}

// PutSnapshot uploads a run's snapshot document
func (s *SnapshotStore) PutSnapshot(ctx context.Context, agentId, logId string, data []byte) error {
	uploader := manager.NewUploader(s.client)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(agentId, logId)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	return nil
}

// GetSnapshot downloads a run's snapshot document
func (s *SnapshotStore) GetSnapshot(ctx context.Context, agentId, logId string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(agentId, logId)),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		var notFound *s3types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("download snapshot: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
