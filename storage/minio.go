package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"echofm/config"
	"echofm/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	minioClient *minio.Client
	bucketName  string
)

// presigned URLs stay valid long enough for a full listening session
const urlExpiry = 24 * time.Hour

// InitMinio 初始化 MinIO 客户端并确保存储桶存在
func InitMinio(cfg *config.Config) error {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created storage bucket", logger.String("bucket", cfg.MinioBucket))
	}

	minioClient = client
	bucketName = cfg.MinioBucket
	return nil
}

// UploadObject stores an object under the given key.
func UploadObject(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	if minioClient == nil {
		return fmt.Errorf("minio client not initialized")
	}

	_, err := minioClient.PutObject(ctx, bucketName, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s: %w", objectName, err)
	}

	logger.Debug("Uploaded object",
		logger.String("object", objectName),
		logger.Int64("size", size),
		logger.String("contentType", contentType))
	return nil
}

// ResolveURL turns a stored object path into a fetchable URL.
func ResolveURL(ctx context.Context, objectName string) (string, error) {
	if minioClient == nil {
		return "", fmt.Errorf("minio client not initialized")
	}
	if objectName == "" {
		return "", fmt.Errorf("empty object path")
	}

	presigned, err := minioClient.PresignedGetObject(ctx, bucketName, objectName, urlExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", objectName, err)
	}
	return presigned.String(), nil
}

// RemoveObject deletes a stored object. Used to roll back a partial upload.
func RemoveObject(ctx context.Context, objectName string) error {
	if minioClient == nil {
		return fmt.Errorf("minio client not initialized")
	}
	if err := minioClient.RemoveObject(ctx, bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", objectName, err)
	}
	return nil
}
