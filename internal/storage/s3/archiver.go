// Package s3 archives finished audit reports to object storage so
// historical runs stay retrievable after local files rotate out.
package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"fwlens/internal/config"
)

// Archiver uploads gzip-compressed report files to S3.
type Archiver struct {
	client *s3.Client
	cfg    config.ArchiveConfig
	logger *slog.Logger
}

// NewArchiver creates an archiver from the archive configuration.
func NewArchiver(ctx context.Context, cfg config.ArchiveConfig, logger *slog.Logger) (*Archiver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	a := &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
		logger: logger,
	}

	logger.Info("report archiver initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
	)

	return a, nil
}

// ArchiveReport compresses and uploads one report file. The key embeds
// the run id and run date so each run's report lands under its own
// object, never overwriting a prior run.
func (a *Archiver) ArchiveReport(ctx context.Context, runID uuid.UUID, reportPath string) (string, error) {
	f, err := os.Open(reportPath)
	if err != nil {
		return "", fmt.Errorf("s3: failed to open report: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := io.Copy(gz, f); err != nil {
		return "", fmt.Errorf("s3: failed to compress report: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("s3: failed to finalize compression: %w", err)
	}

	key := path.Join(a.cfg.Prefix,
		time.Now().UTC().Format("2006/01/02"),
		fmt.Sprintf("%s-%s.gz", runID, path.Base(reportPath)),
	)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/gzip"),
		Metadata: map[string]string{
			"run-id": runID.String(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3: failed to upload report %s: %w", key, err)
	}

	a.logger.Info("report archived",
		"key", key,
		"bucket", a.cfg.Bucket,
		"compressed_bytes", buf.Len(),
	)

	return key, nil
}

// ListRuns lists archived report keys under a date prefix
// (YYYY/MM/DD, or empty for everything).
func (a *Archiver) ListRuns(ctx context.Context, datePrefix string) ([]string, error) {
	prefix := path.Join(a.cfg.Prefix, datePrefix)

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.cfg.Bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: failed to list archived reports: %w", err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

// HealthCheck verifies the bucket is reachable.
func (a *Archiver) HealthCheck(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(a.cfg.Bucket),
	})
	if err != nil {
		return fmt.Errorf("s3: bucket %s is not reachable: %w", a.cfg.Bucket, err)
	}
	return nil
}
