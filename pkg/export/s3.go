package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/qrdesk/qrdesk/pkg/config"
	"github.com/sirupsen/logrus"
)

const defaultS3Prefix = "qrdesk/exports"

// s3Sink implements Sink for S3-compatible storage.
type s3Sink struct {
	log    logrus.FieldLogger
	cfg    *config.S3ExportConfig
	client *s3.Client
}

// Ensure interface compliance.
var _ Sink = (*s3Sink)(nil)

// NewS3Sink creates a new S3 sink from the given configuration.
func NewS3Sink(
	log logrus.FieldLogger,
	cfg *config.S3ExportConfig,
) (Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.Region != "" {
				o.Region = cfg.Region
			} else {
				o.Region = "us-east-1"
			}

			if cfg.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.EndpointURL)
			}

			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}

			if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
				o.Credentials = credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID, cfg.SecretAccessKey, "",
				)
			}
		},
	}

	return &s3Sink{
		log:    log.WithField("component", "s3-sink"),
		cfg:    cfg,
		client: s3.New(s3.Options{}, opts...),
	}, nil
}

func (u *s3Sink) String() string {
	return "s3://" + u.cfg.Bucket + "/" + u.prefix()
}

// Preflight verifies S3 connectivity by writing a small test object.
func (u *s3Sink) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("qrdesk write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(u.prefix() + "/.qrdesk-write-test"),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", u.cfg.Bucket, err)
	}

	return nil
}

func (u *s3Sink) Write(ctx context.Context, run, name string, data []byte) error {
	key := u.objectKey(run, name)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}

	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": u.cfg.Bucket,
	}).Debug("Uploading snapshot")

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

func (u *s3Sink) prefix() string {
	prefix := u.cfg.Prefix
	if prefix == "" {
		prefix = defaultS3Prefix
	}

	return strings.TrimRight(prefix, "/")
}

// objectKey builds the key of a snapshot file within a run.
func (u *s3Sink) objectKey(run, name string) string {
	return u.prefix() + "/" + run + "/" + name
}
