// Package main runs the pose tracker HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/posetrack/backend/config"
	"github.com/posetrack/backend/internal/archive"
	"github.com/posetrack/backend/internal/auth"
	"github.com/posetrack/backend/internal/history"
	"github.com/posetrack/backend/internal/middleware"
	"github.com/posetrack/backend/internal/realtime"
	"github.com/posetrack/backend/internal/sessions"
	"github.com/posetrack/backend/internal/worker"
	"github.com/posetrack/backend/pkg/database"
	"github.com/posetrack/backend/pkg/queue"
	"github.com/posetrack/backend/pkg/redis"
	"github.com/posetrack/backend/pkg/response"
	"github.com/posetrack/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Trackers
	manager := sessions.NewManager(cfg.Tracker.DefaultThresholdPercent)

	// Recent history (capped Redis list)
	historyRepo := history.NewRepository(rdb.Client, cfg.Tracker.HistoryKey, cfg.Tracker.HistoryLimit, logger)
	historyHandler := history.NewHandler(historyRepo)

	// Durable archive
	archiveRepo := archive.NewRepository(pool)
	archiveHandler := archive.NewHandler(archiveRepo, s3Client)

	// Background archive pipeline
	jobQueue := queue.NewQueue(rdb.Client, logger)
	summaryProcessor := worker.NewSummaryProcessor(archiveRepo, s3Client, jobQueue, logger)

	sessionHandler := sessions.NewHandler(manager, tokens, historyRepo, jobQueue, hub, logger)

	tokenValidate := func(token string) (uuid.UUID, error) {
		claims, err := tokens.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.SessionID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Session creation is public; the returned token drives everything else.
	router.POST("/sessions", sessionHandler.Create)

	// Session commands (session token required)
	session := router.Group("/sessions/:id")
	session.Use(middleware.SessionToken(tokens))
	{
		session.POST("/start", sessionHandler.Start)
		session.POST("/pause", sessionHandler.Pause)
		session.POST("/resume", sessionHandler.Resume)
		session.POST("/reset", sessionHandler.Reset)
		session.POST("/samples", sessionHandler.Ingest)
		session.POST("/end", sessionHandler.End)
		session.GET("/snapshot", sessionHandler.Snapshot)
		session.GET("/export", sessionHandler.Export)
	}

	// Recent history and durable archive (read side)
	router.GET("/history", historyHandler.List)
	router.DELETE("/history", historyHandler.Clear)
	router.GET("/archive", archiveHandler.List)
	router.GET("/archive/totals", archiveHandler.Totals)
	router.GET("/archive/:id", archiveHandler.GetByID)
	router.GET("/archive/:id/export", archiveHandler.ExportURL)
	router.DELETE("/archive/:id", archiveHandler.Delete)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWs(hub, logger, tokenValidate, manager)(c)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (summary archive + export upload)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go summaryProcessor.Run(workerCtx)
	logger.Info("summary worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
