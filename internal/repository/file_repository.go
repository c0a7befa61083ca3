// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"uphub-go/internal/model"

	"gorm.io/gorm"
)

// FileRepository 接口定义了文件记录与隐形别名的持久化操作。
type FileRepository interface {
	CreateRecord(record *model.FileRecord) error
	CreateAlias(alias *model.InvisibleAlias) error
	FindByName(name string) (*model.FileRecord, error)
	// ResolveName 先按别名解析，未命中再按对象名解析。
	ResolveName(name string) (*model.FileRecord, error)
	FindByUserID(userID uint) ([]model.FileRecord, error)
	DecrementViews(recordID uint) (remaining int, err error)
	DeleteRecord(record *model.FileRecord) error
}

// fileRepository 是 FileRepository 接口的 GORM 实现。
type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

// CreateRecord 创建一条文件记录，是上传的持久化点。
func (r *fileRepository) CreateRecord(record *model.FileRecord) error {
	return r.db.Create(record).Error
}

// CreateAlias 创建一条隐形别名记录。
func (r *fileRepository) CreateAlias(alias *model.InvisibleAlias) error {
	return r.db.Create(alias).Error
}

// FindByName 按落盘对象名查找文件记录。
func (r *fileRepository) FindByName(name string) (*model.FileRecord, error) {
	var record model.FileRecord
	err := r.db.Where("name = ?", name).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ResolveName 按别名或对象名解析文件记录。
func (r *fileRepository) ResolveName(name string) (*model.FileRecord, error) {
	var alias model.InvisibleAlias
	err := r.db.Where("alias = ?", name).First(&alias).Error
	if err == nil {
		var record model.FileRecord
		if err := r.db.First(&record, alias.FileRecordID).Error; err != nil {
			return nil, err
		}
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return r.FindByName(name)
}

// FindByUserID 查找指定用户的全部文件记录。
func (r *fileRepository) FindByUserID(userID uint) ([]model.FileRecord, error) {
	var records []model.FileRecord
	err := r.db.Where("user_id = ?", userID).Order("created_at desc").Find(&records).Error
	return records, err
}

// DecrementViews 将剩余查看次数减一并返回新值。
// 记录未设置 MaxViews 时返回 -1 表示不限。
func (r *fileRepository) DecrementViews(recordID uint) (int, error) {
	var record model.FileRecord
	if err := r.db.First(&record, recordID).Error; err != nil {
		return 0, err
	}
	if record.MaxViews == nil {
		return -1, nil
	}

	remaining := *record.MaxViews - 1
	err := r.db.Model(&model.FileRecord{}).Where("id = ?", recordID).
		Update("max_views", remaining).Error
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// DeleteRecord 删除文件记录及其关联别名。
func (r *fileRepository) DeleteRecord(record *model.FileRecord) error {
	if err := r.db.Where("file_record_id = ?", record.ID).Delete(&model.InvisibleAlias{}).Error; err != nil {
		return err
	}
	return r.db.Delete(record).Error
}
