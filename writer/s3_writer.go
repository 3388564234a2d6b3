package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "gasflow/config"
	"gasflow/internal/metadata"
	"gasflow/logger"
)

// ObjectPutter is the subset of *s3.Client the S3 emitter needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Emitter writes every batch as one parquet object and records it in the
// table manifest.
type S3Emitter struct {
	client       ObjectPutter
	bucket       string
	partitioning appconfig.PartitioningConfig
	parquet      appconfig.ParquetConfig
	version      string
	metaGen      *metadata.Generator
	log          *logger.Log
	now          func() time.Time
}

// NewS3Client builds an S3 client from the storage settings. Static keys are
// used when configured, otherwise the default AWS credential chain applies.
func NewS3Client(ctx context.Context, cfg appconfig.S3Config) (*s3.Client, error) {
	log := logger.GetLogger()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	log.WithComponent("s3_writer").WithFields(logger.Fields{
		"bucket":     cfg.Bucket,
		"region":     cfg.Region,
		"endpoint":   cfg.Endpoint,
		"path_style": cfg.PathStyle,
	}).Info("s3 client initialized")

	return client, nil
}

func NewS3Emitter(client ObjectPutter, cfg *appconfig.Config) *S3Emitter {
	e := &S3Emitter{
		client:       client,
		bucket:       cfg.Storage.S3.Bucket,
		partitioning: cfg.Writer.Partitioning,
		parquet:      cfg.Writer.Formats.Parquet,
		version:      cfg.Gasflow.Version,
		log:          logger.GetLogger(),
		now:          time.Now,
	}
	e.metaGen = metadata.NewGenerator(objectStore{e}, fmt.Sprintf("s3://%s", e.bucket), cfg.Writer.Partitioning.Prefix)
	return e
}

func (e *S3Emitter) Emit(ctx context.Context, b Batch) error {
	key := ObjectKey(e.partitioning, b)
	log := e.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"asset":     b.Asset,
		"partition": b.Partition,
		"run_id":    b.RunID,
		"s3_key":    key,
	})

	if b.Table.Len() == 0 {
		log.Debug("batch has no records, skipping")
		return nil
	}

	data, err := EncodeParquet(b.Table, e.parquet)
	if err != nil {
		return fmt.Errorf("encode %s: %w", b.Asset, err)
	}

	if err := e.put(ctx, key, data, "application/octet-stream", map[string]string{
		"content-type":    "parquet",
		"compression":     e.parquet.Compression,
		"gasflow-version": e.version,
		"run-id":          b.RunID,
	}); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": e.bucket}).
			Error("failed to upload to S3")
		return err
	}

	log.WithFields(logger.Fields{"file_size": len(data), "rows": b.Table.Len()}).Info("batch uploaded")

	df := metadata.DataFile{
		Path:        fmt.Sprintf("s3://%s/%s", e.bucket, key),
		FileSize:    int64(len(data)),
		RecordCount: int64(b.Table.Len()),
		Partition:   map[string]any{"asset": b.Asset, "partition": b.Partition},
		Timestamp:   e.now(),
	}
	if err := e.metaGen.AddFile(ctx, b.Asset, b.Partition, b.RunID, df); err != nil {
		return fmt.Errorf("record %s in manifest: %w", key, err)
	}
	return nil
}

// ObjectKey lays out prefix/asset/<partition path>/asset_runid.parquet. Monthly
// partitions use the configured time format, static ones a partition= segment.
func ObjectKey(p appconfig.PartitioningConfig, b Batch) string {
	var parts []string
	if p.Prefix != "" {
		parts = append(parts, p.Prefix)
	}
	parts = append(parts, b.Asset)

	if month, err := time.Parse("2006-01", b.Partition); err == nil && p.TimeFormat != "" {
		timePath := strings.ReplaceAll(p.TimeFormat, "{year}", fmt.Sprintf("%04d", month.Year()))
		timePath = strings.ReplaceAll(timePath, "{month}", fmt.Sprintf("%02d", month.Month()))
		parts = append(parts, timePath)
	} else {
		parts = append(parts, "partition="+b.Partition)
	}

	parts = append(parts, fmt.Sprintf("%s_%s.parquet", b.Asset, b.RunID))
	return path.Join(parts...)
}

func (e *S3Emitter) put(ctx context.Context, key string, data []byte, contentType string, meta map[string]string) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    meta,
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", e.bucket, err)
	}
	return nil
}

// objectStore lets the manifest generator write next to the data files.
type objectStore struct {
	e *S3Emitter
}

func (s objectStore) Put(ctx context.Context, key string, body []byte) error {
	return s.e.put(ctx, key, body, "application/json", nil)
}
