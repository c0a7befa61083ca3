// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"io"
	"time"
	"uphub-go/internal/model"
	"uphub-go/internal/repository"
	"uphub-go/pkg/hash"
	"uphub-go/pkg/log"

	"gorm.io/gorm"
)

// 文件访问过程中可能出现的业务错误。
var (
	ErrFileNotFound     = errors.New("文件不存在")
	ErrFileExpired      = errors.New("文件已过期")
	ErrPasswordRequired = errors.New("需要访问口令")
	ErrWrongPassword    = errors.New("访问口令错误")
	ErrNotOwner         = errors.New("无权操作该文件")
)

// FileBlobStore 是文件生命周期管理对对象存储的最小依赖。
type FileBlobStore interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
}

// FileService 接口定义了已上传文件的访问与生命周期操作。
type FileService interface {
	// Fetch 按别名或对象名获取文件内容，应用过期、口令与查看次数门控。
	// 查看次数在成功获取时递减，减到零后文件被删除。
	Fetch(ctx context.Context, name, password string) (*model.FileRecord, io.ReadCloser, error)
	// Delete 删除文件记录与对象，管理员可删除任意用户的文件。
	Delete(ctx context.Context, name string, actor *model.User) error
	// ListByUser 列出用户的全部文件记录。
	ListByUser(userID uint) ([]model.FileRecord, error)
}

// fileService 是 FileService 接口的实现。
type fileService struct {
	fileRepo repository.FileRepository
	blob     FileBlobStore
}

// NewFileService 创建一个新的 FileService 实例。
func NewFileService(fileRepo repository.FileRepository, blob FileBlobStore) FileService {
	return &fileService{fileRepo: fileRepo, blob: blob}
}

// Fetch 实现文件访问门控与内容获取。
func (s *fileService) Fetch(ctx context.Context, name, password string) (*model.FileRecord, io.ReadCloser, error) {
	record, err := s.fileRepo.ResolveName(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, err
	}

	// 过期文件按需清理后按不存在处理
	if record.Expired(time.Now()) {
		s.cleanup(ctx, record)
		return nil, nil, ErrFileExpired
	}

	// 查看次数耗尽的文件同样清理
	if record.MaxViews != nil && *record.MaxViews <= 0 {
		s.cleanup(ctx, record)
		return nil, nil, ErrFileNotFound
	}

	// 口令门控
	if record.PasswordHash != "" {
		if password == "" {
			return nil, nil, ErrPasswordRequired
		}
		if !hash.CheckPassword(record.PasswordHash, password) {
			return nil, nil, ErrWrongPassword
		}
	}

	reader, err := s.blob.Open(ctx, record.Name)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.fileRepo.DecrementViews(record.ID); err != nil {
		log.Warnf("递减查看次数失败: name=%s, err=%v", record.Name, err)
	}
	return record, reader, nil
}

// Delete 实现文件删除，校验操作者权限。
func (s *fileService) Delete(ctx context.Context, name string, actor *model.User) error {
	record, err := s.fileRepo.ResolveName(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return err
	}

	if record.UserID != actor.ID && !actor.IsAdmin() {
		return ErrNotOwner
	}

	if err := s.fileRepo.DeleteRecord(record); err != nil {
		return err
	}
	if err := s.blob.Remove(ctx, record.Name); err != nil {
		// 记录已删，对象删除失败只留日志，残留对象无记录可达
		log.Warnf("删除存储对象失败: name=%s, err=%v", record.Name, err)
	}
	return nil
}

// ListByUser 列出用户的全部文件记录。
func (s *fileService) ListByUser(userID uint) ([]model.FileRecord, error) {
	return s.fileRepo.FindByUserID(userID)
}

// cleanup 尽力删除记录与对象，失败只记日志。
func (s *fileService) cleanup(ctx context.Context, record *model.FileRecord) {
	if err := s.fileRepo.DeleteRecord(record); err != nil {
		log.Warnf("清理过期文件记录失败: name=%s, err=%v", record.Name, err)
		return
	}
	if err := s.blob.Remove(ctx, record.Name); err != nil {
		log.Warnf("清理过期存储对象失败: name=%s, err=%v", record.Name, err)
	}
}
