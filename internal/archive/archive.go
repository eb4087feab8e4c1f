// Package archive copies finished export deliverables to object storage so
// they survive the local retention sweep.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/magnumstream/studio-agent/internal/config"
)

// Publisher uploads files under prefix and returns a reference to the
// folder they were stored in.
type Publisher interface {
	Publish(ctx context.Context, prefix string, files []string) (string, error)
}

// NopPublisher is used when no archive is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, prefix string, files []string) (string, error) {
	return "", nil
}

type S3Publisher struct {
	bucket string
	svc    s3iface.S3API
	logger *slog.Logger
}

// NewS3Publisher builds a session from static credentials when they are
// set, otherwise from the default AWS credential chain.
func NewS3Publisher(cfg config.S3Config, logger *slog.Logger) (*S3Publisher, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create s3 session: %w", err)
	}
	return NewS3PublisherWithClient(cfg.Bucket, s3.New(sess), logger), nil
}

func NewS3PublisherWithClient(bucket string, svc s3iface.S3API, logger *slog.Logger) *S3Publisher {
	return &S3Publisher{bucket: bucket, svc: svc, logger: logger}
}

func (p *S3Publisher) Publish(ctx context.Context, prefix string, files []string) (string, error) {
	prefix = strings.Trim(path.Clean("/"+filepath.ToSlash(prefix)), "/")
	if prefix == "" {
		return "", fmt.Errorf("archive prefix is required")
	}

	for _, f := range files {
		key := prefix + "/" + filepath.Base(f)
		if err := p.putFile(ctx, key, f); err != nil {
			return "", err
		}
		if p.logger != nil {
			p.logger.Debug("archived file", "bucket", p.bucket, "key", key)
		}
	}

	return fmt.Sprintf("s3://%s/%s/", p.bucket, prefix), nil
}

func (p *S3Publisher) putFile(ctx context.Context, key, file string) error {
	fh, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(file), err)
	}
	defer fh.Close()

	_, err = p.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        fh,
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func contentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
