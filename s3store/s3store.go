// Package s3store provides a responsecache.Store backed directly by Amazon S3
// or an S3-compatible service through the AWS SDK for Go v2.
package s3store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sandrolain/responsecache"
)

// API is the subset of the S3 client used by Store.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds the configuration for the S3 store.
type Config struct {
	// Bucket is the target bucket. Required.
	Bucket string
	// KeyPrefix is prepended to every object key (default: "responsecache/").
	KeyPrefix string
	// Region overrides the region from the environment.
	Region string
	// Endpoint points the client at an S3-compatible service such as MinIO.
	Endpoint string
	// UsePathStyle addresses buckets by path instead of virtual host.
	UsePathStyle bool
	// AccessKeyID and SecretAccessKey set static credentials. When empty the
	// default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// Store keeps each entry as one S3 object holding the encoded response.
type Store struct {
	client API
	bucket string
	prefix string
}

// New loads the AWS configuration and returns a Store for config.Bucket.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
		}
		o.UsePathStyle = config.UsePathStyle
	})
	return NewWithClient(client, config.Bucket, config.KeyPrefix), nil
}

// NewWithClient returns a Store using a client managed by the caller.
func NewWithClient(client API, bucket, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "responsecache/"
	}
	return &Store{client: client, bucket: bucket, prefix: keyPrefix}
}

func (s *Store) objectKey(id string) string {
	sum := sha256.Sum256([]byte(id))
	return s.prefix + hex.EncodeToString(sum[:])
}

// Get returns the entry stored under id.
func (s *Store) Get(ctx context.Context, id string) (responsecache.Entry, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return responsecache.Entry{}, false, nil
		}
		return responsecache.Entry{}, false, fmt.Errorf("s3 store get failed for id %q: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("s3 store read failed for id %q: %w", id, err)
	}
	entry, err := responsecache.DecodeEntry(data)
	if err != nil {
		return responsecache.Entry{}, false, fmt.Errorf("s3 store id %q: %w", id, err)
	}
	return entry, true, nil
}

// Set uploads the entry under id, replacing any previous object.
func (s *Store) Set(ctx context.Context, id string, entry responsecache.Entry) error {
	data, err := responsecache.EncodeEntry(entry.Stamp(time.Now()))
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(id)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/http"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "AccessDenied", "NoSuchBucket":
				return fmt.Errorf("s3 store set failed for id %q: %w: %w", id, responsecache.ErrStorageUnavailable, err)
			}
		}
		return fmt.Errorf("s3 store set failed for id %q: %w", id, err)
	}
	return nil
}
