// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"uphub-go/internal/chunk"
	"uphub-go/internal/config"
	"uphub-go/internal/handler"
	"uphub-go/internal/middleware"
	"uphub-go/internal/model"
	"uphub-go/internal/pipeline"
	"uphub-go/internal/repository"
	"uphub-go/internal/service"
	"uphub-go/pkg/database"
	"uphub-go/pkg/kafka"
	"uphub-go/pkg/log"
	"uphub-go/pkg/storage"
	"uphub-go/pkg/token"
	"uphub-go/pkg/webhook"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	kafka.InitProducer(cfg.Kafka)
	defer kafka.Close()

	if err := database.DB.AutoMigrate(&model.User{}, &model.FileRecord{}, &model.InvisibleAlias{}); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	fileRepository := repository.NewFileRepository(database.DB)
	rateLimitRepository := repository.NewRateLimitRepository(database.RDB)

	// 5. 初始化核心组件 (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	blobStore := storage.NewMinioStore(cfg.MinIO.BucketName)
	notifier := webhook.NewNotifier(cfg.Webhook)

	chunkStore, err := chunk.NewStore(cfg.Upload.TempDir)
	if err != nil {
		log.Fatal("初始化分片仓库失败", err)
	}

	ingestor := pipeline.NewIngestor(fileRepository, blobStore, notifier,
		kafka.ProduceUploadEvent, cfg.Upload)

	userService := service.NewUserService(userRepository, jwtManager)
	fileService := service.NewFileService(fileRepository, blobStore)
	adminService := service.NewAdminService(userRepository)
	rateLimitService := service.NewRateLimitService(rateLimitRepository, cfg.RateLimit)

	// 6. 启动孤儿分片清理任务：崩溃或被放弃的上传会在磁盘上残留分片
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go sweepOrphanChunks(sweepCtx, chunkStore, cfg.Upload.ChunkMaxAgeMinutes)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 8. 注册路由
	uploadHandler := handler.NewUploadHandler(ingestor, chunkStore, rateLimitService, rateLimitRepository, cfg.Upload)
	fileHandler := handler.NewFileHandler(fileService)
	userHandler := handler.NewUserHandler(userService)
	adminHandler := handler.NewAdminHandler(adminService)

	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/token/regenerate", userHandler.RegenerateToken)
				authed.PUT("/domains", userHandler.SetCustomDomains)
			}
		}

		// Upload 路由：使用不透明上传令牌认证，冷却门控在 handler 内执行
		upload := apiV1.Group("/upload")
		upload.Use(middleware.UploadAuthMiddleware(userRepository))
		{
			upload.POST("", uploadHandler.Upload)
		}

		// 文件管理路由，需要 JWT 认证
		files := apiV1.Group("/files")
		files.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			files.GET("", fileHandler.List)
			files.DELETE("/:name", fileHandler.Delete)
		}

		admin := apiV1.Group("/admin")
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
		{
			admin.GET("/users/list", adminHandler.ListUsers)
			admin.DELETE("/files/:name", fileHandler.Delete)
		}
	}

	// 文件访问路由挂载在配置的前缀下，公开访问
	r.GET(cfg.Upload.Route+"/:name", fileHandler.Serve)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

// sweepOrphanChunks 周期性清理超过保留时长的分片文件。
func sweepOrphanChunks(ctx context.Context, store *chunk.Store, maxAgeMinutes int) {
	if maxAgeMinutes <= 0 {
		maxAgeMinutes = 60
	}
	maxAge := time.Duration(maxAgeMinutes) * time.Minute

	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := store.SweepOlderThan(maxAge)
			if err != nil {
				log.Warnf("sweepOrphanChunks: 清理失败: %v", err)
				continue
			}
			if removed > 0 {
				log.Infof("sweepOrphanChunks: 已清理 %d 个孤儿分片", removed)
			}
		}
	}
}
