package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	commondb "health-etl/common/database"
	logpkg "health-etl/common/logger"
	rediscommon "health-etl/common/redis"
	"health-etl/internal/config"
	"health-etl/internal/dashboard"
	"health-etl/internal/metabase"
	"health-etl/internal/observability"
	"health-etl/internal/repository"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateMetabase(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "health-dashboards")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = provision(ctx, cfg, log)
	stop()
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func provision(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	catalog, err := dashboard.LoadCatalog()
	if err != nil {
		log.Error("Invalid question catalog", zap.Error(err))
		return err
	}

	db, err := commondb.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Error("Failed to connect database", zap.Error(err))
		return err
	}
	defer commondb.Close(db)

	// 字段元数据缓存：有 Redis 时共享，否则进程内缓存
	var cache metabase.KVStore = metabase.NewMemoryKVStore()
	if cfg.Redis.Enabled() {
		client := rediscommon.NewRedisClient(&cfg.Redis)
		defer rediscommon.Close(client)
		if err := rediscommon.Ping(ctx, client); err != nil {
			log.Warn("Redis unavailable, using in-memory field cache", zap.Error(err))
		} else {
			cache = metabase.NewRedisKVStore(client)
		}
	}

	client := metabase.NewClient(cfg.Metabase.URL, log)
	metrics := observability.NewMetrics()
	provisioner := dashboard.NewProvisioner(
		client,
		metabase.NewFieldResolver(client, cache, cfg.Metabase.FieldCacheTTL, log),
		repository.NewProvisioningRepository(db, cfg.Metabase.SentinelTable, log),
		catalog,
		metrics,
		log,
	)

	log.Info("Provisioning dashboards", zap.String("metabase_url", cfg.Metabase.URL))
	report, err := provisioner.Provision(ctx, dashboard.Options{
		Email:        cfg.Metabase.Email,
		Password:     cfg.Metabase.Password,
		DatabaseName: cfg.Metabase.DatabaseName,
		WaitAttempts: cfg.Metabase.WaitAttempts,
		WaitInterval: cfg.Metabase.WaitInterval,
	})
	pushMetrics(cfg, metrics, log)
	if err != nil {
		log.Error("Dashboard provisioning failed", zap.Error(err))
		return err
	}

	for _, cardErr := range report.Errors {
		log.Warn("Question skipped", zap.String("question", cardErr.Question), zap.Error(cardErr.Err))
	}
	return nil
}

func pushMetrics(cfg *config.Config, metrics *observability.Metrics, log *zap.Logger) {
	if cfg.Metrics.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		log.Warn("Failed to push metrics", zap.Error(err))
	}
}
