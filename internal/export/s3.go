package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Config configures an S3-compatible export bucket (AWS, R2, MinIO).
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // empty for AWS
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	LinkExpiry      time.Duration
}

// S3Sink uploads exports to a bucket and hands back a presigned download link.
type S3Sink struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
	expiry  time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewS3Sink creates an S3Sink from cfg.
func NewS3Sink(cfg S3Config, logger *slog.Logger) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 export: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	expiry := cfg.LinkExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	awsCfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		// S3-compatible stores often reject the default streaming checksums.
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logger = logger.With(slog.String("component", "export-s3"))
	logger.Info("initialized s3 export sink",
		"bucket", cfg.Bucket,
		"endpoint", cfg.Endpoint,
		"prefix", cfg.Prefix)

	return &S3Sink{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		expiry:  expiry,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Deliver uploads data under the configured prefix. Existing objects are not
// replaced. The receipt location is a presigned GET URL.
func (s *S3Sink) Deliver(ctx context.Context, name, contentType string, data []byte) (Receipt, error) {
	if err := validateName(name); err != nil {
		return Receipt{}, &SinkError{Op: "deliver", Name: name, Err: err}
	}
	key := name
	if s.prefix != "" {
		key = path.Join(s.prefix, name)
	}
	if contentType == "" {
		contentType = ContentType(Extension(""))
	}

	exists, err := s.exists(ctx, key)
	if err != nil {
		return Receipt{}, &SinkError{Op: "head", Name: name, Err: err}
	}
	if exists {
		return Receipt{}, &SinkError{Op: "deliver", Name: name, Err: ErrExists}
	}

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(s.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentLength:      aws.Int64(int64(len(data))),
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", name)),
	})
	if err != nil {
		return Receipt{}, &SinkError{Op: "put", Name: name, Err: wrapS3Error(err)}
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return Receipt{}, &SinkError{Op: "presign", Name: name, Err: err}
	}

	s.logger.Info("export uploaded",
		"key", key,
		"etag", aws.ToString(out.ETag),
		"bytes", len(data))

	return Receipt{
		Name:        name,
		Location:    req.URL,
		Size:        len(data),
		ContentType: contentType,
		DeliveredAt: s.now().UTC(),
	}, nil
}

func (s *S3Sink) exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey") {
		return false, nil
	}
	return false, wrapS3Error(err)
}

// wrapS3Error maps SDK errors onto export sentinels where one applies.
func wrapS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed":
			return ErrExists
		}
	}
	if httpErr, ok := err.(interface{ HTTPStatusCode() int }); ok && httpErr.HTTPStatusCode() == http.StatusPreconditionFailed {
		return ErrExists
	}
	return fmt.Errorf("s3 operation failed: %w", err)
}
