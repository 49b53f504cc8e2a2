package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ignite/campaign-engine/internal/audience"
	"github.com/ignite/campaign-engine/internal/config"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
	"github.com/ignite/campaign-engine/internal/repository/postgres"
	"github.com/ignite/campaign-engine/internal/service/campaign"
	"github.com/ignite/campaign-engine/internal/service/metrics"
	"github.com/ignite/campaign-engine/internal/worker"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

func main() {
	log.Println("Starting Campaign Engine worker...")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime())
	db.SetConnMaxIdleTime(time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	campaignRepo := postgres.NewCampaignRepo(db)
	sendRepo := postgres.NewSendRepo(db)
	auditRepo := postgres.NewAuditRepo(db)
	metricsRepo := postgres.NewMetricsRepo(db)

	resolver := audience.NewResolver(db)
	campaignSvc := campaign.NewService(campaignRepo, sendRepo, auditRepo, resolver)
	metricsSvc := metrics.NewService(metricsRepo)

	w := worker.NewCampaignWorker(db, campaignSvc, metricsSvc, campaignRepo)
	w.SetPollInterval(cfg.Worker.PollInterval())
	w.SetMetricsInterval(cfg.Worker.MetricsInterval())
	w.SetCompletionGrace(cfg.Worker.MetricsGrace())

	// Redis is optional. Without it the dispatch lock falls back to PG
	// advisory locks, which is fine for a single-node deployment.
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v, falling back to PG advisory locks", cfg.Redis.Addr, err)
			redisClient.Close()
		} else {
			w.SetRedisClient(redisClient)
			defer redisClient.Close()
			log.Printf("Redis connected: %s (distributed locking enabled)", cfg.Redis.Addr)
		}
		pingCancel()
	} else {
		log.Println("Redis not configured, using PG advisory locks for distributed locking")
	}

	if err := w.Start(); err != nil {
		log.Fatalf("Failed to start campaign worker: %v", err)
	}
	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	w.Stop()
	log.Println("Worker stopped")
}
