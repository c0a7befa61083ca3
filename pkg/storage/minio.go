// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"io"
	"uphub-go/internal/config"
	"uphub-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient 是一个全局的 MinIO 客户端实例。
var MinioClient *minio.Client

// InitMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func InitMinIO(cfg config.MinIOConfig) {
	var err error

	// 1. 初始化 MinIO 客户端
	MinioClient, err = minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	log.Info("MinIO 客户端初始化成功")

	// 2. 检查存储桶 (Bucket) 是否存在，如果不存在则创建
	ctx := context.Background()
	bucketName := cfg.BucketName
	exists, err := MinioClient.BucketExists(ctx, bucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}

	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", bucketName)
		err = MinioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("存储桶 '%s' 创建成功", bucketName)
	} else {
		log.Infof("存储桶 '%s' 已存在", bucketName)
	}
}

// MinioStore 将 MinIO 客户端包装为按文件名存取字节的简单 blob 仓库。
type MinioStore struct {
	bucket string
}

// NewMinioStore 创建一个绑定到指定存储桶的 MinioStore。
func NewMinioStore(bucket string) *MinioStore {
	return &MinioStore{bucket: bucket}
}

// Save 将一段字节以指定的对象名和 Content-Type 写入存储桶。
func (s *MinioStore) Save(ctx context.Context, name string, data []byte, contentType string) error {
	_, err := MinioClient.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// Open 按对象名打开一个读取流，由调用方负责关闭。
func (s *MinioStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := MinioClient.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// Remove 删除指定对象。对象不存在时 MinIO 不报错，调用方无需区分。
func (s *MinioStore) Remove(ctx context.Context, name string) error {
	return MinioClient.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{})
}
