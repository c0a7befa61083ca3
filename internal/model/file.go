// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// FileRecord 对应于数据库中的 'file_records' 表。
// 每个完成的逻辑上传（整体或分片重组）恰好创建一条记录，
// 创建后除查看次数递减与删除外不再变更。
type FileRecord struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`
	// Name 是落盘对象名，形如 "stem.ext"。
	Name     string `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Mimetype string `gorm:"type:varchar(127);not null" json:"mimetype"`
	UserID   uint   `gorm:"not null;index" json:"userId"`
	// Embed 标记该文件是否以内嵌方式展示。
	Embed bool `gorm:"not null;default:false" json:"embed"`
	// Format 记录命名策略标签（RANDOM/DATE/UUID/NAME）。
	Format string `gorm:"type:varchar(16);not null" json:"format"`
	// PasswordHash 是访问口令的 bcrypt 哈希，未设置时为空。
	PasswordHash string `gorm:"type:varchar(100)" json:"-"`
	// ExpiresAt 之后文件不可访问，NULL 表示永不过期。
	ExpiresAt *time.Time `gorm:"default:null" json:"expiresAt"`
	// MaxViews 是剩余可查看次数，NULL 表示不限。
	MaxViews  *int      `gorm:"default:null" json:"maxViews"`
	Size      int64     `gorm:"not null" json:"size"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// Expired 判断记录在给定时间点是否已过期。
func (r *FileRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// TableName 指定了此模型在数据库中对应的表名。
func (FileRecord) TableName() string {
	return "file_records"
}

// InvisibleAlias 对应于数据库中的 'invisible_aliases' 表。
// 别名与文件记录一一对应，响应 URL 中使用别名代替真实对象名。
type InvisibleAlias struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Alias        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"alias"`
	FileRecordID uint      `gorm:"uniqueIndex;not null" json:"fileRecordId"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (InvisibleAlias) TableName() string {
	return "invisible_aliases"
}
