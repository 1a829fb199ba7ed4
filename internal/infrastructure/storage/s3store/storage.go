package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dualsaude/docreader/internal/core/domain"
)

type Options struct {
	Bucket      string
	Region      string
	Endpoint    string
	AccessKeyID string
	SecretKey   string
	// UsePathStyle is needed by most S3-compatible servers other than AWS.
	UsePathStyle bool
}

// Storage archives uploads in an S3-compatible bucket.
type Storage struct {
	client *s3.Client
	bucket string
}

func New(opts Options) (*Storage, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "auto"
	}

	s3Opts := s3.Options{
		Region:                     region,
		UsePathStyle:               opts.UsePathStyle,
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
		ResponseChecksumValidation: aws.ResponseChecksumValidationWhenRequired,
	}
	if endpoint := strings.TrimSpace(opts.Endpoint); endpoint != "" {
		s3Opts.BaseEndpoint = &endpoint
	}
	if opts.AccessKeyID != "" {
		s3Opts.Credentials = credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretKey, "")
	}

	return &Storage{client: s3.New(s3Opts), bucket: bucket}, nil
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	// Payload signing needs a seekable body.
	body, ok := data.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(data)
		if err != nil {
			return fmt.Errorf("buffer object: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   body,
	})
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "s3 put object", err)
	}
	return nil
}

func (s *Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return out.Body, nil
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate storage key", errors.New("empty key"))
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return domain.WrapError(domain.ErrInvalidInput, "validate storage key", fmt.Errorf("path traversal in key %q", key))
		}
	}
	return nil
}
