// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"uphub-go/internal/model"
	"uphub-go/internal/repository"
	"uphub-go/pkg/hash"
	"uphub-go/pkg/token"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInvalidCredentials 表示用户名或密码不正确。
var ErrInvalidCredentials = errors.New("用户名或密码错误")

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Register(username, password string) (*model.User, error)
	Login(username, password string) (accessToken, refreshToken string, err error)
	GetProfile(username string) (*model.User, error)
	RefreshToken(refreshTokenString string) (newAccessToken, newRefreshToken string, err error)
	// RegenerateUploadToken 轮换用户的上传令牌并返回新值。
	RegenerateUploadToken(username string) (string, error)
	// SetCustomDomains 更新用户的自定义域名列表（逗号分隔）。
	SetCustomDomains(username, domains string) error
}

// userService 是 UserService 接口的实现。
type userService struct {
	userRepo   repository.UserRepository
	jwtManager *token.JWTManager
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, jwtManager *token.JWTManager) UserService {
	return &userService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
	}
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(username, password string) (*model.User, error) {
	// 1. 检查用户名是否已存在
	_, err := s.userRepo.FindByUsername(username)
	if err == nil {
		return nil, errors.New("用户名已存在")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 2. 对密码进行哈希处理
	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, err
	}

	// 3. 创建新用户，同时签发初始上传令牌
	newUser := &model.User{
		Username:    username,
		Password:    hashedPassword,
		Role:        model.RoleUser,
		UploadToken: uuid.NewString(),
	}
	if err := s.userRepo.Create(newUser); err != nil {
		return nil, err
	}
	return newUser, nil
}

// Login 处理用户登录的业务逻辑。
func (s *userService) Login(username, password string) (string, string, error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}

	if !hash.CheckPassword(user.Password, password) {
		return "", "", ErrInvalidCredentials
	}

	accessToken, err := s.jwtManager.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

// GetProfile 根据用户名获取用户信息。
func (s *userService) GetProfile(username string) (*model.User, error) {
	return s.userRepo.FindByUsername(username)
}

// RefreshToken 校验 refresh token 并签发新的令牌对。
func (s *userService) RefreshToken(refreshTokenString string) (string, string, error) {
	claims, err := s.jwtManager.VerifyToken(refreshTokenString)
	if err != nil {
		return "", "", err
	}

	// 确认用户仍然存在（可能已被删除）
	user, err := s.userRepo.FindByUsername(claims.Username)
	if err != nil {
		return "", "", err
	}

	newAccess, err := s.jwtManager.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	newRefresh, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", err
	}
	return newAccess, newRefresh, nil
}

// RegenerateUploadToken 轮换上传令牌，旧令牌立即失效。
func (s *userService) RegenerateUploadToken(username string) (string, error) {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		return "", err
	}

	user.UploadToken = uuid.NewString()
	if err := s.userRepo.Update(user); err != nil {
		return "", err
	}
	return user.UploadToken, nil
}

// SetCustomDomains 更新用户的自定义域名列表。
func (s *userService) SetCustomDomains(username, domains string) error {
	user, err := s.userRepo.FindByUsername(username)
	if err != nil {
		return err
	}
	user.CustomDomains = domains
	return s.userRepo.Update(user)
}
