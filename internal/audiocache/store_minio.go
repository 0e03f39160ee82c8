package audiocache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const objectPrefix = "audio/"

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps audio as objects audio/<key>.<format> in one bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects and creates the bucket when it does not exist.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("audiocache: minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("audiocache: check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("audiocache: create bucket %s: %w", cfg.Bucket, err)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func (s *MinioStore) Get(ctx context.Context, key, format string) (Entry, bool, error) {
	name := FileName(key, format)
	info, err := s.client.StatObject(ctx, s.bucket, objectPrefix+name, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("audiocache: stat object %s: %w", name, err)
	}
	return Entry{Key: key, Name: name, Format: normalizeFormat(format), Size: info.Size, CreatedAt: info.LastModified}, true, nil
}

func (s *MinioStore) Put(ctx context.Context, key, format string, data []byte) (Entry, error) {
	name := FileName(key, format)
	_, err := s.client.PutObject(ctx, s.bucket, objectPrefix+name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType(format),
	})
	if err != nil {
		return Entry{}, fmt.Errorf("audiocache: put object %s: %w", name, err)
	}
	return Entry{Key: key, Name: name, Format: normalizeFormat(format), Size: int64(len(data)), CreatedAt: time.Now().UTC()}, nil
}

func (s *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, Entry, error) {
	if !ValidName(name) {
		return nil, Entry{}, ErrInvalidName
	}
	obj, err := s.client.GetObject(ctx, s.bucket, objectPrefix+name, minio.GetObjectOptions{})
	if err != nil {
		return nil, Entry{}, fmt.Errorf("audiocache: get object %s: %w", name, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, Entry{}, ErrNotFound
		}
		return nil, Entry{}, fmt.Errorf("audiocache: stat object %s: %w", name, err)
	}
	key, format, _ := strings.Cut(name, ".")
	return obj, Entry{Key: key, Name: name, Format: format, Size: info.Size, CreatedAt: info.LastModified}, nil
}

var _ Store = (*MinioStore)(nil)
var _ Store = (*FileStore)(nil)

var errNoStore = errors.New("audiocache: no store configured")
