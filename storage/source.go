package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Bastien2203/pi-medias/config"
)

const minioScheme = "minio://"

// ErrMinioNotConfigured is returned for minio:// refs without credentials.
var ErrMinioNotConfigured = errors.New("minio is not configured")

// Object is upload content together with what is known about it.
type Object struct {
	io.ReadCloser
	Name string // base name, the default display name
	Size int64  // -1 when unknown
}

// Ref points at upload content: a local path or minio://bucket/key.
type Ref struct {
	Bucket string // empty for local files
	Key    string // object key or local path
}

// IsMinio reports whether the ref lives in object storage.
func (r Ref) IsMinio() bool { return r.Bucket != "" }

// IsPrefix reports a minio ref naming a folder rather than an object.
func (r Ref) IsPrefix() bool { return r.IsMinio() && (r.Key == "" || strings.HasSuffix(r.Key, "/")) }

func (r Ref) String() string {
	if r.IsMinio() {
		return minioScheme + r.Bucket + "/" + r.Key
	}
	return r.Key
}

// ParseRef understands "minio://bucket/key" and plain paths.
func ParseRef(raw string) (Ref, error) {
	if !strings.HasPrefix(raw, minioScheme) {
		if raw == "" {
			return Ref{}, errors.New("empty path")
		}
		return Ref{Key: raw}, nil
	}
	rest := strings.TrimPrefix(raw, minioScheme)
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return Ref{}, fmt.Errorf("missing bucket in %q", raw)
	}
	return Ref{Bucket: bucket, Key: key}, nil
}

// Sources opens refs of either kind. The MinIO client is created on first use.
type Sources struct {
	cfg *config.Config

	once  sync.Once
	minio *MinioClient
	err   error
}

// NewSources creates a resolver using cfg for MinIO access.
func NewSources(cfg *config.Config) *Sources {
	return &Sources{cfg: cfg}
}

func (s *Sources) minioClient() (*MinioClient, error) {
	s.once.Do(func() {
		if s.cfg.MinioAccessKey == "" || s.cfg.MinioSecretKey == "" {
			s.err = ErrMinioNotConfigured
			return
		}
		s.minio, s.err = NewMinioClient(s.cfg)
	})
	return s.minio, s.err
}

// Expand turns folder refs into the object refs below them. Other refs are
// returned unchanged.
func (s *Sources) Expand(ctx context.Context, refs []Ref) ([]Ref, error) {
	var out []Ref
	for _, ref := range refs {
		if !ref.IsPrefix() {
			out = append(out, ref)
			continue
		}
		client, err := s.minioClient()
		if err != nil {
			return nil, err
		}
		keys, err := client.ListObjects(ctx, ref.Bucket, ref.Key)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			out = append(out, Ref{Bucket: ref.Bucket, Key: key})
		}
	}
	return out, nil
}

// Open opens the content behind ref.
func (s *Sources) Open(ctx context.Context, ref Ref) (*Object, error) {
	if !ref.IsMinio() {
		return OpenLocal(ref.Key)
	}
	client, err := s.minioClient()
	if err != nil {
		return nil, err
	}
	return client.Open(ctx, ref.Bucket, ref.Key)
}
