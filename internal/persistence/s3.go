package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

const blobContentType = "application/x-msgpack"

// S3Config configures an S3 (or S3-compatible, e.g. R2/MinIO) store
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional custom endpoint; enables path-style addressing
	AccessKeyID     string // optional; default credential chain when empty
	SecretAccessKey string
}

// S3GetAPI is the subset of *s3.Client used for loads
type S3GetAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Uploader is the subset of *manager.Uploader used for saves
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store is a DurableStore that keeps one object per key.
// A PutObject is atomic, so each Save is crash-consistent.
type S3Store struct {
	client   S3GetAPI
	uploader S3Uploader
	bucket   string
	prefix   string
	log      zerolog.Logger
}

// NewS3Store builds an S3 client from cfg
func NewS3Store(ctx context.Context, cfg S3Config, log zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client, manager.NewUploader(client), cfg.Bucket, cfg.Prefix, log), nil
}

// NewS3StoreWithClient creates a store on existing clients
func NewS3StoreWithClient(client S3GetAPI, uploader S3Uploader, bucket, prefix string, log zerolog.Logger) *S3Store {
	return &S3Store{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		prefix:   prefix,
		log:      log.With().Str("component", "s3_store").Str("bucket", bucket).Logger(),
	}
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key + ".msgpack"
	}
	return path.Join(s.prefix, key+".msgpack")
}

// Save uploads blob as the object for key
func (s *S3Store) Save(ctx context.Context, key string, blob []byte) error {
	objectKey := s.objectKey(key)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String(blobContentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}

	s.log.Debug().Str("key", objectKey).Int("bytes", len(blob)).Msg("State uploaded")
	return nil
}

// Load downloads the object for key. A missing object is ok=false.
func (s *S3Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	objectKey := s.objectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to download %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", objectKey, err)
	}
	return blob, true, nil
}
