// Package uploader promotes finalized columnar files from local disk to an
// S3-compatible object store and removes the local copy once the upload
// succeeds.
package uploader

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/tracelake/tracelake/metacache"
	"github.com/tracelake/tracelake/utils"
	"github.com/tracelake/tracelake/utils/log"
)

// Uploader copies one local file to remote storage under the given key.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// MinioUploader uploads to MinIO or any S3-compatible endpoint.
type MinioUploader struct {
	client *minio.Client
	bucket string
}

// NewMinioUploader connects to the configured endpoint.
func NewMinioUploader(setting utils.UploaderSetting) (*MinioUploader, error) {
	client, err := minio.New(setting.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(setting.AccessKey, setting.SecretKey, ""),
		Secure: setting.Secure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioUploader{client: client, bucket: setting.Bucket}, nil
}

func (u *MinioUploader) Upload(ctx context.Context, localPath, key string) error {
	_, err := u.client.FPutObject(ctx, u.bucket, key, localPath, minio.PutObjectOptions{})
	return err
}

// Scanner periodically walks the finalized output tree and promotes every
// finalized file, deleting the local copy and its cached metadata after a
// successful upload.
type Scanner struct {
	root        string
	up          Uploader
	cache       *metacache.Cache
	interval    time.Duration
	concurrency int
}

// NewScanner builds a scanner over the WAL root's files directory.
func NewScanner(walRoot string, up Uploader, cache *metacache.Cache, interval time.Duration, concurrency int) *Scanner {
	return &Scanner{
		root:        filepath.Join(walRoot, "files"),
		up:          up,
		cache:       cache,
		interval:    interval,
		concurrency: concurrency,
	}
}

// Run scans until the context is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.scan(ctx); err != nil {
				log.Error("uploader scan: %v", err)
			}
		}
	}
}

func (s *Scanner) scan(ctx context.Context) error {
	var finalized []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".parquet") {
			finalized = append(finalized, p)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Nothing persisted yet.
			return nil
		}
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range finalized {
		g.Go(func() error {
			return s.promote(ctx, p)
		})
	}
	return g.Wait()
}

func (s *Scanner) promote(ctx context.Context, localPath string) error {
	rel, err := filepath.Rel(s.root, localPath)
	if err != nil {
		return err
	}
	key := filepath.ToSlash(rel)
	if err := s.up.Upload(ctx, localPath, key); err != nil {
		return err
	}
	if err := os.Remove(localPath); err != nil {
		return err
	}
	s.cache.Delete(localPath)
	log.Info("promoted %s to remote storage", key)
	return nil
}
