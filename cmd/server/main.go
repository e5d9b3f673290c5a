package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"microblog/internal/app"
	"microblog/internal/config"
	"microblog/internal/ratelimit"
	"microblog/internal/server"
	"microblog/internal/util"
	"microblog/pkg/storage"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init object storage: %v", err)
		}
		objects = minioStore
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		HashIterations: cfg.HashIterations,
		Objects:        objects,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var addUserLimiter *ratelimit.FixedWindowLimiter
	if cfg.AddUserRateLimitPerMinute > 0 {
		addUserLimiter, err = ratelimit.NewFixedWindowLimiter(
			cfg.RedisAddr, cfg.RedisPassword, "microblog:ratelimit",
			cfg.AddUserRateLimitPerMinute, time.Minute,
		)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		AddUserLimiter: addUserLimiter,
		TrustedProxies: trustedProxies,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("microblog server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
