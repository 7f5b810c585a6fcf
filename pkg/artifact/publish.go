package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/entrhq/uitest/pkg/config"
)

// objectStore is the subset of the minio client the publisher uses.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads run artifacts to S3-compatible storage.
type Publisher struct {
	client objectStore
	bucket string
	region string
}

// NewPublisher creates a publisher for the configured bucket.
func NewPublisher(cfg config.UploadConfig) (*Publisher, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("upload endpoint and bucket are required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Publisher{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// Publish uploads every regular file under each dir to
// <prefix>/<dir name>/<relative path> and returns the number of uploaded
// objects. Missing directories are skipped.
func (p *Publisher) Publish(ctx context.Context, prefix string, dirs ...string) (int, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return 0, fmt.Errorf("ensure bucket %s: %w", p.bucket, err)
	}

	uploaded := 0
	for _, dir := range dirs {
		root := filepath.Clean(dir)
		err := filepath.WalkDir(root, func(file string, d fs.DirEntry, err error) error {
			if err != nil {
				if file == root && errors.Is(err, fs.ErrNotExist) {
					return filepath.SkipDir
				}
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !d.Type().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(root, file)
			if err != nil {
				return err
			}
			key := path.Join(prefix, filepath.Base(root), filepath.ToSlash(rel))

			opts := minio.PutObjectOptions{ContentType: contentType(file)}
			if _, err := p.client.FPutObject(ctx, p.bucket, key, file, opts); err != nil {
				return fmt.Errorf("upload %s: %w", key, err)
			}
			uploaded++
			return nil
		})
		if err != nil {
			return uploaded, err
		}
	}

	return uploaded, nil
}

func (p *Publisher) ensureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{Region: p.region})
}

func contentType(file string) string {
	if ct := mime.TypeByExtension(filepath.Ext(file)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
