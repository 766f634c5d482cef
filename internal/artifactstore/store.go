package artifactstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/smallbiznis/taxverify/internal/config"
	"github.com/smallbiznis/taxverify/internal/observability/tracing"
	transcriptdomain "github.com/smallbiznis/taxverify/internal/transcript/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrBucketRequired = errors.New("ARTIFACT_S3_BUCKET is required when ARTIFACT_S3_ENABLED is set")

// Store copies raw uploads into an S3 compatible bucket.
type Store struct {
	client *s3.Client
	bucket string
}

func New(ctx context.Context, cfg config.ArtifactS3Config) (*Store, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, ErrBucketRequired
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(tracing.WrapHTTPClient(&http.Client{})),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Store{client: client, bucket: bucket}, nil
}

func (s *Store) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Check verifies the bucket is reachable.
func (s *Store) Check(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// Provide returns nil when artifact copies are disabled.
func Provide(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (transcriptdomain.ArtifactStore, error) {
	if !cfg.ArtifactS3.Enabled {
		return nil, nil
	}
	store, err := New(context.Background(), cfg.ArtifactS3)
	if err != nil {
		return nil, err
	}

	log = log.Named("artifactstore")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.Check(ctx); err != nil {
				log.Warn("artifact bucket not reachable", zap.String("bucket", store.bucket), zap.Error(err))
				return nil
			}
			log.Info("artifact bucket ready", zap.String("bucket", store.bucket))
			return nil
		},
	})
	return store, nil
}

var Module = fx.Module("artifactstore",
	fx.Provide(Provide),
)
