package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Bastien2203/pi-medias/config"
	"github.com/Bastien2203/pi-medias/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient reads upload content out of MinIO buckets.
type MinioClient struct {
	client *minio.Client
}

// NewMinioClient 创建 MinIO 客户端. No request is made until first use.
func NewMinioClient(cfg *config.Config) (*MinioClient, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}
	logger.Debug("[storage/minio] client ready",
		logger.String("endpoint", cfg.MinioEndpoint),
		logger.Bool("ssl", cfg.MinioUseSSL))
	return &MinioClient{client: client}, nil
}

// Open streams one object. The stat call doubles as an existence check so a
// missing key fails here rather than halfway through an upload.
func (c *MinioClient) Open(ctx context.Context, bucket, key string) (*Object, error) {
	object, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("读取对象失败 %s/%s: %w", bucket, key, err)
	}
	info, err := object.Stat()
	if err != nil {
		object.Close()
		return nil, fmt.Errorf("读取对象信息失败 %s/%s: %w", bucket, key, err)
	}
	return &Object{ReadCloser: object, Name: path.Base(key), Size: info.Size}, nil
}

// ListObjects returns the keys below prefix, skipping folder markers.
func (c *MinioClient) ListObjects(ctx context.Context, bucket, prefix string) ([]string, error) {
	// stops the lister goroutine when we return early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var keys []string
	for object := range c.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("列出对象失败: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		keys = append(keys, object.Key)
	}
	logger.Debug("[storage/minio] listed objects",
		logger.String("bucket", bucket),
		logger.String("prefix", prefix),
		logger.Int("count", len(keys)))
	return keys, nil
}
