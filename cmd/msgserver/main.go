package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/config"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/messaging"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/metrics"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/ratelimit"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()

	ctx := context.Background()

	// --- PostgreSQL ---
	db, err := server.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	if err := server.RunMigrations(db, cfg.MigrationsDir); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// --- MinIO ---
	objects, err := server.NewObjectStore(ctx, server.ObjectConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatalf("failed to connect to minio: %v", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to redis: %v", err)
	}
	cancel()
	defer rdb.Close()

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "msgserver"
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	srv := server.NewServer(server.Options{
		Store:         server.NewPGStore(db),
		Attachments:   objects,
		Publisher:     natsClient,
		Limiter:       ratelimit.NewLimiter(rdb),
		SendRule:      ratelimit.SendRule(cfg.RateLimitMax, cfg.RateLimitWindow),
		CORSOrigin:    cfg.CORSOrigin,
		MaxFiles:      cfg.MaxFiles,
		MaxFileSizeMB: cfg.MaxFileSizeMB,
	})

	router := srv.Routes()
	router.Handle("/metrics", metrics.Handler())

	log.Printf("message server starting")
	log.Printf("  addr:         %s", cfg.Addr)
	log.Printf("  database:     %s", cfg.DatabaseURL)
	log.Printf("  redis_addr:   %s", cfg.RedisAddr)
	log.Printf("  nats_url:     %s", cfg.NATSURL)
	log.Printf("  minio:        %s/%s", cfg.MinioEndpoint, cfg.MinioBucket)
	log.Printf("  rate_limit:   %d per %s", cfg.RateLimitMax, cfg.RateLimitWindow)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		natsClient.Close()
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("message server stopped")
}
