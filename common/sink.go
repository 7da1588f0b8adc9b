package common

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink publishes a finished artifact and returns where it can be found.
type Sink interface {
	Publish(ctx context.Context, runID, localPath string) (string, error)
}

// NewSink builds the sink named by cfg.Provider.
func NewSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	switch cfg.Provider {
	case "local", "":
		return LocalSink{}, nil
	case "s3":
		return NewS3Sink(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported sink provider: %s", cfg.Provider)
	}
}

// LocalSink leaves artifacts where the pipeline wrote them.
type LocalSink struct{}

func (LocalSink) Publish(ctx context.Context, runID, localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("artifact missing: %w", err)
	}
	return filepath.Abs(localPath)
}

// s3PutAPI is the slice of the S3 client the sink needs.
type s3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Sink struct {
	client    s3PutAPI
	bucket    string
	basePath  string
	cdnDomain string
}

func NewS3Sink(ctx context.Context, cfg SinkConfig) (*S3Sink, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Sink{
		client:    client,
		bucket:    cfg.Bucket,
		basePath:  cfg.BasePath,
		cdnDomain: cfg.CDNDomain,
	}, nil
}

func (s *S3Sink) objectKey(runID, localPath string) string {
	return path.Join(s.basePath, runID, filepath.Base(localPath))
}

func (s *S3Sink) Publish(ctx context.Context, runID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	key := s.objectKey(runID, localPath)
	contentType := mime.TypeByExtension(filepath.Ext(localPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3: %w", key, err)
	}

	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", strings.TrimSuffix(s.cdnDomain, "/"), key), nil
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
