// Package storage uploads finished audio to Cloudflare R2 through its
// S3-compatible API.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	// PublicBaseURL is the r2.dev (or custom domain) base under which
	// uploaded objects are publicly reachable.
	PublicBaseURL string
}

func (c R2Config) Configured() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// s3API is the slice of the S3 client the storage layer needs.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type R2 struct {
	client        s3API
	bucket        string
	publicBaseURL string
	log           *slog.Logger
}

func NewR2(ctx context.Context, cfg R2Config, log *slog.Logger) (*R2, error) {
	if !cfg.Configured() {
		return nil, errors.New("missing R2 credentials: CLOUDFLARE_ACCOUNT_ID, R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY are required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "podcasts"
	}
	if log == nil {
		log = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})

	log.Info("initialized R2 storage client", "bucket", cfg.Bucket)
	return &R2{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		log:           log,
	}, nil
}

// Upload stores the local file under objectKey and returns its public URL.
// A key that is already present is not re-uploaded: a retried job whose
// earlier attempt got the audio out but failed later resumes for free.
func (r *R2) Upload(ctx context.Context, localPath, objectKey string) (string, error) {
	exists, err := r.Exists(ctx, objectKey)
	if err != nil {
		return "", fmt.Errorf("r2 head %s: %w", objectKey, err)
	}
	if exists {
		r.log.Info("object already uploaded, skipping", "key", objectKey)
		return r.FileURL(objectKey), nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	r.log.Info("uploading audio", "path", localPath, "key", objectKey, "bytes", info.Size())

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(objectKey),
		Body:        f,
		ContentType: aws.String("audio/mpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("r2 upload: %w", err)
	}
	return r.FileURL(objectKey), nil
}

// FileURL is the public URL for objectKey.
func (r *R2) FileURL(objectKey string) string {
	return r.publicBaseURL + "/" + objectKey
}

// Exists checks for objectKey in the bucket.
func (r *R2) Exists(ctx context.Context, objectKey string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
