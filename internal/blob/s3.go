package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/avfoundry/proxa/internal/verr"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Store keeps blobs in an S3 bucket. References are object keys.
type S3Store struct {
	client *s3.Client
	bucket string
	region string
}

func NewS3Store(bucket string, region string) (*S3Store, error) {
	if bucket == "" || region == "" {
		return nil, verr.New(verr.Configuration, "s3 blob store requires both a bucket and a region")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, verr.Wrap(verr.Configuration, err, "failed to load AWS configuration for s3 blob store")
	}

	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		region: region,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload of '%s' failed: %w", key, err)
	}

	return key, nil
}

func (s *S3Store) Remove(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil
		}

		return fmt.Errorf("s3 removal of '%s' failed: %w", ref, err)
	}

	return nil
}

func (s *S3Store) URL(ref string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, ref)
}

func (s *S3Store) URI(ref string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, ref)
}
