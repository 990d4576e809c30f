// Package archive uploads report artifacts to S3-compatible object
// storage. Uploads are best-effort: the run's reports stay on local disk
// regardless of archive outcome.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the S3 target. Endpoint and PathStyle support MinIO and
// other S3-compatible services.
type Config struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string
	PathStyle bool
	KeyPrefix string
}

type Uploader struct {
	client *s3.Client
	cfg    Config
}

func New(cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)
		},
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	return &Uploader{
		client: s3.New(s3.Options{}, opts...),
		cfg:    cfg,
	}, nil
}

// UploadFile stores one local report file under the configured prefix and
// returns the object key.
func (u *Uploader) UploadFile(ctx context.Context, path, contentType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	key := filepath.Base(path)
	if u.cfg.KeyPrefix != "" {
		key = u.cfg.KeyPrefix + "/" + key
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}
