package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wavechat/wavechat-backend/internal/config"
	"github.com/wavechat/wavechat-backend/internal/handler"
	"github.com/wavechat/wavechat-backend/internal/middleware"
	"github.com/wavechat/wavechat-backend/internal/migration"
	"github.com/wavechat/wavechat-backend/internal/repository"
	"github.com/wavechat/wavechat-backend/internal/routes"
	"github.com/wavechat/wavechat-backend/internal/service"
	"github.com/wavechat/wavechat-backend/internal/tasks"
	"github.com/wavechat/wavechat-backend/internal/ws"
	pkgcache "github.com/wavechat/wavechat-backend/pkg/cache"
	pkges "github.com/wavechat/wavechat-backend/pkg/elasticsearch"
	"github.com/wavechat/wavechat-backend/pkg/jwt"
	pkglogger "github.com/wavechat/wavechat-backend/pkg/logger"
	pkgredis "github.com/wavechat/wavechat-backend/pkg/redis"
)

// @title           Wavechat Backend API
// @version         1.0
// @description     Real-time chat backend: sessions, rooms, moderation-gated delivery
//
// @host            localhost:8082
// @BasePath        /api
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Authorization header using the Bearer scheme. Example: "Bearer {token}"

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env)
	pkglogger.Info("APP_ENV=%s, loaded env files: %v", env, dotenvFiles)

	configPath := getConfigPath()
	pkglogger.Info("Loading config from: %s", configPath)
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)

	// MySQL
	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	pkglogger.Info("Connected to MySQL")
	if err := migration.Run(db); err != nil {
		pkglogger.Warn("Migration warning: %v", err)
	}

	// Redis (optional: cache, hub relay, task queue)
	redisClient, err := pkgredis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		pkglogger.Warn("Failed to connect to Redis: %v (continuing without Redis)", err)
		redisClient = nil
	} else {
		pkglogger.Info("Connected to Redis")
	}

	var cacheService pkgcache.Service
	if redisClient != nil {
		cacheService = pkgcache.NewService(redisClient)
	}

	// Elasticsearch (optional search)
	var esClient *pkges.Client
	if cfg.Elasticsearch.Enabled && len(cfg.Elasticsearch.Addresses) > 0 {
		var esErr error
		esClient, esErr = pkges.NewClient(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Username, cfg.Elasticsearch.Password)
		if esErr != nil {
			pkglogger.Warn("Elasticsearch connection failed: %v (continuing without ES)", esErr)
			esClient = nil
		}
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	chatRepo := repository.NewChatRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	modLogRepo := repository.NewModerationLogRepository(db)

	// Services
	chatService := service.NewChatService(userRepo, chatRepo, messageRepo, modLogRepo)
	if esClient != nil {
		chatService.SetSearchClient(esClient)
	}
	moderator := service.NewModerationService(cfg.Moderation)

	// Task queue (optional, Redis-backed)
	var taskServer *tasks.Server
	if cfg.Queue.Enabled && redisClient != nil {
		redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
		taskClient := tasks.NewClient(redisAddr, cfg.Redis.Password, cfg.Redis.DB)
		chatService.SetEnqueuer(taskClient)
		defer taskClient.Close()

		taskServer = tasks.NewServer(redisAddr, cfg.Redis.Password, cfg.Redis.DB, cfg.Queue.Concurrency, chatService)
		if err := taskServer.Start(); err != nil {
			pkglogger.Warn("Task server start failed: %v (continuing inline)", err)
			taskServer = nil
			chatService.SetEnqueuer(nil)
		} else {
			defer taskServer.Shutdown()
		}
	}

	// WebSocket hub + session engine
	hub := ws.NewHub(redisClient)
	hub.Run()
	defer hub.Stop()
	engine := ws.NewEngine(hub, chatService, moderator)

	// JWT verification (tokens are issued by the identity provider)
	jwtManager := jwt.NewManager(cfg.JWT.Secret)

	// Router
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	allowOrigins := cfg.CORS.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3000"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     splitAndTrim(allowOrigins, ","),
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"X-Request-ID", "X-Cache"},
		MaxAge:           86400 * time.Second,
	}))

	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics())
	router.Use(middleware.RequestLogger())

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "wavechat-backend",
			"time":    time.Now().Unix(),
		})
	})

	// Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Handlers + routes
	userHandler := handler.NewUserHandler(chatService)
	if cacheService != nil {
		userHandler.SetCache(cacheService)
	}
	chatHandler := handler.NewChatHandler(chatService)
	wsHandler := handler.NewWSHandler(hub, engine, jwtManager, allowOrigins)
	routes.Setup(router, jwtManager, userHandler, chatHandler, wsHandler)

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	pkglogger.Info("Listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func initDB(cfg *config.Config) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Warn
	}
	return gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
