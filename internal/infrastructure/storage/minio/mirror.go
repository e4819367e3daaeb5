// Package minio mirrors published index generations to an S3-compatible
// bucket and pulls them back into a local generation store.
package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/infrastructure/storage/localfs"
)

var errObjectNotFound = errors.New("object not found")

// objectStore is the subset of the bucket API the mirror needs.
type objectStore interface {
	put(ctx context.Context, key string, r io.Reader, size int64) error
	get(ctx context.Context, key string) ([]byte, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// Mirror uploads generations from and downloads them into a localfs store.
type Mirror struct {
	objects objectStore
	prefix  string
	local   *localfs.Storage
	logger  *slog.Logger
}

// New connects to the bucket, creating it when missing.
func New(ctx context.Context, cfg Config, local *localfs.Storage, logger *slog.Logger) (*Mirror, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("minio endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return newMirror(&bucket{client: client, name: cfg.Bucket}, cfg.Prefix, local, logger), nil
}

func newMirror(objects objectStore, prefix string, local *localfs.Storage, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mirror{
		objects: objects,
		prefix:  strings.Trim(prefix, "/"),
		local:   local,
		logger:  logger,
	}
}

func (m *Mirror) key(parts ...string) string {
	return path.Join(append([]string{m.prefix}, parts...)...)
}

// Publish uploads every file of a published generation, then moves the
// remote CURRENT pointer to it.
func (m *Mirror) Publish(ctx context.Context, manifest domain.Manifest) error {
	generation := manifest.Generation
	dir := m.local.GenerationDir(generation)

	names := append(append([]string{}, localfs.ArtifactFiles...), localfs.ManifestFileName)
	for _, name := range names {
		if err := m.uploadFile(ctx, filepath.Join(dir, name), m.key(generation, name)); err != nil {
			return fmt.Errorf("mirror %s/%s: %w", generation, name, err)
		}
	}

	pointer := []byte(generation)
	if err := m.objects.put(ctx, m.key(localfs.CurrentFileName), bytes.NewReader(pointer), int64(len(pointer))); err != nil {
		return fmt.Errorf("mirror %s pointer: %w", localfs.CurrentFileName, err)
	}

	m.logger.Info("generation_mirrored", "generation", generation, "prefix", m.prefix)
	return nil
}

func (m *Mirror) uploadFile(ctx context.Context, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return m.objects.put(ctx, key, f, info.Size())
}

// Pull downloads the remote current generation into the local store and
// publishes it there. It reports false when the local store already serves
// that generation or the bucket has none.
func (m *Mirror) Pull(ctx context.Context) (string, bool, error) {
	raw, err := m.objects.get(ctx, m.key(localfs.CurrentFileName))
	if errors.Is(err, errObjectNotFound) {
		m.logger.Info("mirror_empty", "prefix", m.prefix)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read remote %s: %w", localfs.CurrentFileName, err)
	}
	generation := strings.TrimSpace(string(raw))
	if generation == "" || strings.ContainsAny(generation, `/\`) {
		return "", false, fmt.Errorf("remote %s names invalid generation %q", localfs.CurrentFileName, generation)
	}

	if current, err := m.local.Current(); err == nil && current == generation {
		return generation, false, nil
	}

	staging, err := m.local.Stage(generation)
	if err != nil {
		return "", false, err
	}

	names := append(append([]string{}, localfs.ArtifactFiles...), localfs.ManifestFileName)
	for _, name := range names {
		data, err := m.objects.get(ctx, m.key(generation, name))
		if err != nil {
			_ = os.RemoveAll(staging)
			return "", false, fmt.Errorf("download %s/%s: %w", generation, name, err)
		}
		if err := os.WriteFile(filepath.Join(staging, name), data, 0o644); err != nil {
			_ = os.RemoveAll(staging)
			return "", false, fmt.Errorf("stage %s/%s: %w", generation, name, err)
		}
	}

	if err := m.local.Promote(ctx, generation); err != nil {
		_ = os.RemoveAll(staging)
		return "", false, err
	}
	m.logger.Info("generation_pulled", "generation", generation, "prefix", m.prefix)
	return generation, true, nil
}

type bucket struct {
	client *minio.Client
	name   string
}

func (b *bucket) put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := b.client.PutObject(ctx, b.name, key, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	return err
}

func (b *bucket) get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFound(err)
	}
	return data, nil
}

func notFound(err error) error {
	code := minio.ToErrorResponse(err).Code
	if code == "NoSuchKey" || code == "NotFound" {
		return fmt.Errorf("%w: %v", errObjectNotFound, err)
	}
	return err
}
