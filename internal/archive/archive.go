// Package archive pushes stored runs to S3-compatible object storage.
package archive

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
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/felixgeelhaar/watts/internal/log"
)

// Config locates the bucket runs are archived to.
type Config struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccessKey string `yaml:"access_key" json:"access_key"`
	SecretKey string `yaml:"secret_key" json:"-"`
	Region    string `yaml:"region" json:"region"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// Enabled reports whether an endpoint is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}

// Store is the subset of an object store client the archive uses.
type Store interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
	PutFile(ctx context.Context, bucket, key, path, contentType string) error
}

// Archive uploads run directories into a bucket.
type Archive struct {
	cfg    Config
	store  Store
	logger *log.Logger
}

// New connects to the MinIO or S3 endpoint in cfg.
func New(cfg Config, logger *log.Logger) (*Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("archive config: %w", err)
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}
	return NewWithStore(cfg, minioStore{client}, logger), nil
}

// NewWithStore builds an Archive on an existing store.
func NewWithStore(cfg Config, store Store, logger *log.Logger) *Archive {
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Archive{cfg: cfg, store: store, logger: logger.With("bucket", cfg.Bucket)}
}

// EnsureBucket creates the bucket when it does not exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	exists, err := a.store.BucketExists(ctx, a.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	a.logger.Info("creating bucket")
	if err := a.store.MakeBucket(ctx, a.cfg.Bucket, a.cfg.Region); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

// Push uploads every file of runDir and returns the object keys, in walk order.
func (a *Archive) Push(ctx context.Context, runDir string) ([]string, error) {
	if err := a.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	run := filepath.Base(runDir)

	var keys []string
	err := filepath.WalkDir(runDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(runDir, p)
		if err != nil {
			return err
		}
		key := Key(a.cfg.Prefix, run, rel)
		if err := a.store.PutFile(ctx, a.cfg.Bucket, key, p, contentType(p)); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		a.logger.Debug("uploaded", "key", key)
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, err
	}
	a.logger.Info("archived run", "run", run, "objects", len(keys))
	return keys, nil
}

// Key is the object key of file rel of the run directory named run.
func Key(prefix, run, rel string) string {
	return path.Join(prefix, run, filepath.ToSlash(rel))
}

func contentType(p string) string {
	if t := mime.TypeByExtension(filepath.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}

type minioStore struct {
	client *minio.Client
}

func (s minioStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.client.BucketExists(ctx, bucket)
}

func (s minioStore) MakeBucket(ctx context.Context, bucket, region string) error {
	return s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func (s minioStore) PutFile(ctx context.Context, bucket, key, path, contentType string) error {
	_, err := s.client.FPutObject(ctx, bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	return err
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
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
