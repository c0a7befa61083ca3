// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"strings"
	"time"
)

// 用户角色常量。
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User 对应于数据库中的 'users' 表。
type User struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	// Password 是 bcrypt 哈希后的登录密码，永不出现在响应中。
	Password string `gorm:"type:varchar(100);not null" json:"-"`
	Role     string `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	// UploadToken 是上传接口使用的不透明令牌，按用户唯一。
	UploadToken string `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	// CustomDomains 是逗号分隔的自定义域名列表，构造响应 URL 时随机选取其一。
	CustomDomains string    `gorm:"type:varchar(1024)" json:"customDomains"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// IsAdmin 判断用户是否为管理员。
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DomainList 把 CustomDomains 拆分为非空域名切片。
func (u *User) DomainList() []string {
	if u.CustomDomains == "" {
		return nil
	}
	var out []string
	for _, d := range strings.Split(u.CustomDomains, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// TableName 指定了此模型在数据库中对应的表名。
func (User) TableName() string {
	return "users"
}
