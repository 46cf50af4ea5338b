// Package objectstore reads DRM keys and subtitle listings from S3-compatible storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// maxObjectSize bounds reads; keys and subtitle files are small.
const maxObjectSize = 16 << 20

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("objectstore: object not found")

// Object is one entry of a listing.
type Object struct {
	Key  string
	Size int64
}

// S3 wraps an S3 client.
type S3 struct {
	client s3iface.S3API
}

// NewS3 builds a client for region. A non-empty endpoint targets an
// S3-compatible service (MinIO, LocalStack) with path-style addressing.
// Credentials come from the default AWS chain.
func NewS3(region, endpoint string) (*S3, error) {
	cfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3{client: s3.New(sess)}, nil
}

// NewS3WithClient wraps an existing client.
func NewS3WithClient(client s3iface.S3API) *S3 {
	return &S3{client: client}
}

// Fetch returns the contents of bucket/key.
func (s *S3) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	b, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize))
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	return b, nil
}

// List returns every object in bucket whose key starts with prefix.
func (s *S3) List(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var objects []Object
	err := s.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, o := range page.Contents {
			objects = append(objects, Object{
				Key:  aws.StringValue(o.Key),
				Size: aws.Int64Value(o.Size),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}
	return objects, nil
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
		return true
	}
	return false
}
