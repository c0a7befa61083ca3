// Package service 包含了应用的业务逻辑层。
package service

import (
	"uphub-go/internal/model"
	"uphub-go/internal/repository"
)

// UserListResponse 是管理员用户列表接口的响应结构。
type UserListResponse struct {
	Users    []UserDetailResponse `json:"users"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

// UserDetailResponse 是用户在管理端展示的字段子集。
type UserDetailResponse struct {
	ID            uint            `json:"id"`
	Username      string          `json:"username"`
	Role          string          `json:"role"`
	CustomDomains string          `json:"customDomains"`
	CreatedAt     model.LocalTime `json:"createdAt"`
}

// AdminService 接口定义了管理员专用的业务操作。
type AdminService interface {
	ListUsers(page, pageSize int) (*UserListResponse, error)
}

// adminService 是 AdminService 接口的实现。
type adminService struct {
	userRepo repository.UserRepository
}

// NewAdminService 创建一个新的 AdminService 实例。
func NewAdminService(userRepo repository.UserRepository) AdminService {
	return &adminService{userRepo: userRepo}
}

// ListUsers 分页列出全部用户。
func (s *adminService) ListUsers(page, pageSize int) (*UserListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	users, total, err := s.userRepo.FindWithPagination((page-1)*pageSize, pageSize)
	if err != nil {
		return nil, err
	}

	details := make([]UserDetailResponse, 0, len(users))
	for _, u := range users {
		details = append(details, UserDetailResponse{
			ID:            u.ID,
			Username:      u.Username,
			Role:          u.Role,
			CustomDomains: u.CustomDomains,
			CreatedAt:     model.LocalTime(u.CreatedAt),
		})
	}

	return &UserListResponse{
		Users:    details,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}
