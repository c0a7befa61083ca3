// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/viper"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upload    UploadConfig    `mapstructure:"upload"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// UploadConfig 存储上传核心流程的配置。
type UploadConfig struct {
	// TempDir 是分片文件的临时落盘目录。
	TempDir string `mapstructure:"temp_dir"`
	// Route 是文件访问 URL 的挂载路径前缀，例如 "/files"。
	Route string `mapstructure:"route"`
	// DisabledExtensions 是全局禁用的文件扩展名列表（不含点号）。
	DisabledExtensions []string `mapstructure:"disabled_extensions"`
	// RandomLength 是 RANDOM 命名格式以及隐形别名的长度。
	RandomLength int `mapstructure:"random_length"`
	// DatePattern 是 DATE 命名格式使用的 Go 时间布局。
	DatePattern string `mapstructure:"date_pattern"`
	// MaxFileSize 是单个文件的大小上限，支持人类可读格式，如 "100MB"。
	MaxFileSize string `mapstructure:"max_file_size"`
	// ChunkMaxAgeMinutes 是孤儿分片的清理阈值（分钟）。
	ChunkMaxAgeMinutes int `mapstructure:"chunk_max_age_minutes"`
}

// MaxFileSizeBytes 将 MaxFileSize 解析为字节数，未配置时返回 0（不限制）。
func (c UploadConfig) MaxFileSizeBytes() (int64, error) {
	if strings.TrimSpace(c.MaxFileSize) == "" {
		return 0, nil
	}
	return units.RAMInBytes(c.MaxFileSize)
}

// DisabledExtensionSet 返回小写化的禁用扩展名集合。
func (c UploadConfig) DisabledExtensionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.DisabledExtensions))
	for _, ext := range c.DisabledExtensions {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return set
}

// RateLimitConfig 存储按角色区分的上传冷却时长（毫秒，0 表示不启用）。
type RateLimitConfig struct {
	UserCooldownMs  int64 `mapstructure:"user_cooldown_ms"`
	AdminCooldownMs int64 `mapstructure:"admin_cooldown_ms"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int    `mapstructure:"refresh_token_expire_days"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。Enabled 为 false 时不发送上传事件。
type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// WebhookConfig 存储上传完成通知的外部回调配置。URL 为空时不通知。
type WebhookConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RetryMax       int    `mapstructure:"retry_max"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	if _, err := Conf.Upload.MaxFileSizeBytes(); err != nil {
		panic(fmt.Errorf("无效的 upload.max_file_size 配置: %w", err))
	}
}
