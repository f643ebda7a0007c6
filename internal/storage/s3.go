package storage

import (
	"context"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	stderrors "errors"

	"dbvault/internal/errors"
)

// S3Backend stores snapshots in an S3-compatible bucket under an optional
// key prefix. Credentials come either from static keys or from assuming a
// role; assumed-role credentials are memoized in a credentials cache and
// re-fetched on expiry, so fresh processes always pick up current keys.
type S3Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	prefix  string
}

// NewS3Backend creates an S3 backend from a volume configuration with
// "region" and "bucket" keys, optional "prefix" and "endpoint", and either
// "access_key"/"secret_key" or "role_arn".
func NewS3Backend(ctx context.Context, cfg map[string]string) (*S3Backend, error) {
	if err := requireKeys(cfg, "region", "bucket"); err != nil {
		return nil, err
	}
	if cfg["access_key"] == "" && cfg["role_arn"] == "" {
		return nil, errors.NewConfigurationError(
			"s3 volume needs either access_key/secret_key or role_arn", nil)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg["region"]),
	}

	if cfg["role_arn"] != "" {
		base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg["region"]))
		if err != nil {
			return nil, errors.NewConfigurationError("failed to load base aws configuration", err)
		}
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), cfg["role_arn"])
		loadOpts = append(loadOpts,
			awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(provider)))
	} else {
		if err := requireKeys(cfg, "secret_key"); err != nil {
			return nil, err
		}
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg["access_key"], cfg["secret_key"], "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewConfigurationError("failed to load aws configuration", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg["endpoint"] != "" {
			o.BaseEndpoint = aws.String(cfg["endpoint"])
			o.UsePathStyle = true
		}
	})

	return &S3Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg["bucket"],
		prefix:  cfg["prefix"],
	}, nil
}

func (b *S3Backend) Name() string {
	return "s3"
}

func (b *S3Backend) objectKey(key string) string {
	if b.prefix == "" {
		return key
	}
	return path.Join(b.prefix, key)
}

func (b *S3Backend) Write(ctx context.Context, key string, r io.Reader) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
		Body:   r,
	})
	if err != nil {
		return errors.NewConnectionError("failed to upload object to s3", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return nil
}

func (b *S3Backend) ReadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return nil, errors.NewConnectionError("failed to download object from s3", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return out.Body, nil
}

func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, errors.NewConnectionError("failed to check object on s3", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return true, nil
}

func (b *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return errors.NewConnectionError("failed to delete object from s3", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return nil
}

// PresignedDownloadURL hands out a time-limited GET URL for the object
func (b *S3Backend) PresignedDownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", errors.NewConnectionError("failed to presign s3 download", err).
			WithContext("bucket", b.bucket).
			WithContext("key", key)
	}
	return req.URL, nil
}

func isS3NotFound(err error) bool {
	var notFound *types.NotFound
	if stderrors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if stderrors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NotFound"
	}
	return false
}
