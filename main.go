package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kevinaaaquil/grimoire/config"
	"github.com/kevinaaaquil/grimoire/handlers"
	"github.com/kevinaaaquil/grimoire/metrics"
	"github.com/kevinaaaquil/grimoire/middleware"
	"github.com/kevinaaaquil/grimoire/service"
	"github.com/kevinaaaquil/grimoire/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()
	if err := cfg.ValidateEnv(logger); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx := context.Background()
	var (
		books service.BookRepository
		users handlers.UserStore
	)
	switch cfg.StoreDriver {
	case "memory":
		mem := store.NewMemory()
		books, users = mem, mem
		logger.Warn("using in-memory store; data is lost on restart")
	default:
		db, err := store.NewMongoDB(ctx, cfg.MongoURI, cfg.DBName, logger)
		if err != nil {
			logger.Fatal("mongodb", zap.Error(err))
		}
		defer func() {
			if err := db.Disconnect(context.Background()); err != nil {
				logger.Warn("mongodb disconnect", zap.Error(err))
			}
		}()
		if err := db.EnsureIndexes(ctx); err != nil {
			logger.Fatal("mongodb indexes", zap.Error(err))
		}
		books, users = db, db
	}

	var blobs service.BlobStore
	switch cfg.ImageStore {
	case "s3":
		blobs, err = service.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3AccessKeyID, cfg.S3SecretKey, cfg.S3Prefix)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
	default:
		blobs, err = service.NewLocalStore(cfg.ImagesDir)
		if err != nil {
			logger.Fatal("images dir", zap.Error(err))
		}
	}

	m := metrics.New()
	assets := service.NewAssetManager(blobs, service.WebPEncoder{Quality: cfg.WebPQuality}, cfg.PublicBaseURL, logger, m)
	bookService := service.NewBookService(books, assets, logger, m, service.Options{
		BestRatingLimit: cfg.BestRatingLimit,
		MinGrade:        cfg.MinGrade,
		MaxGrade:        cfg.MaxGrade,
		Retry: service.RetryPolicy{
			MaxAttempts: cfg.VoteAttempts,
			BaseDelay:   cfg.VoteBaseDelay,
		},
	})

	router := handlers.NewRouter(handlers.RouterDeps{
		Books: &handlers.BooksHandler{
			Books:    bookService,
			Logger:   logger,
			MaxBytes: cfg.MaxUploadMB * 1024 * 1024,
		},
		Auth: &handlers.AuthHandler{
			Users:     users,
			JWTSecret: cfg.JWTSecret,
			TokenTTL:  cfg.TokenTTL,
			Logger:    logger,
		},
		Images:      &handlers.ImagesHandler{Assets: assets, Logger: logger},
		JWTSecret:   cfg.JWTSecret,
		Metrics:     m,
		AuthLimiter: middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthBurst),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
