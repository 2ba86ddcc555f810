package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	commondb "health-etl/common/database"
	logpkg "health-etl/common/logger"
	"health-etl/common/mqtt"
	rediscommon "health-etl/common/redis"
	"health-etl/internal/config"
	"health-etl/internal/consumer"
	"health-etl/internal/export"
	"health-etl/internal/models"
	"health-etl/internal/observability"
	"health-etl/internal/repository"
	"health-etl/internal/service"

	"go.uber.org/zap"
)

const usage = `Usage: health-etl [command] [flags]

Commands:
  run     抽取、转换并加载导出文件（默认）
  export  将已加载的表导出为 xlsx（-out 指定路径）
  status  查看最近一次加载事件
`

func main() {
	os.Exit(realMain(os.Args[1:]))
}

func realMain(args []string) int {
	command := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// 初始化日志
	log, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "health-etl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		err = runCommand(ctx, cfg, args, log)
	case "export":
		err = exportCommand(ctx, cfg, args, log)
	case "status":
		err = statusCommand(ctx, cfg, log)
	case "help":
		fmt.Fprint(os.Stderr, usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		log.Error("Command failed", zap.String("command", command), zap.Error(err))
		return 1
	}
	return 0
}

var errFatalRun = errors.New("pipeline finished with fatal stages")

func runCommand(ctx context.Context, cfg *config.Config, args []string, log *zap.Logger) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	appleHealth := fs.String("apple-health", cfg.Pipeline.AppleHealthPath, "Apple Health export.xml 路径（为空跳过）")
	strong := fs.String("strong", cfg.Pipeline.StrongPath, "Strong CSV 导出路径（为空跳过）")
	since := fs.String("since", cfg.Pipeline.Since, "只加载该日期（含）之后的记录")
	snapshot := fs.String("snapshot", cfg.Pipeline.SnapshotPath, "xlsx 快照路径（为空不写）")
	watch := fs.Bool("watch", cfg.MQTT.Enabled, "订阅 MQTT 触发消息而不是只运行一次")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sinceTime, err := models.ParseSince(*since)
	if err != nil {
		return err
	}

	db, err := commondb.NewPostgresDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer commondb.Close(db)

	var publisher service.EventPublisher
	if cfg.Redis.Enabled() {
		client := rediscommon.NewRedisClient(&cfg.Redis)
		defer rediscommon.Close(client)
		if err := rediscommon.Ping(ctx, client); err != nil {
			log.Warn("Redis unavailable, load events disabled", zap.Error(err))
		} else {
			publisher = service.NewRedisEventPublisher(client, cfg.Pipeline.Stream)
		}
	}

	metrics := observability.NewMetrics()
	pipeline := service.NewPipeline(
		repository.NewTableRepository(db, log),
		export.WriteWorkbook,
		publisher,
		metrics,
		log,
	)

	opts := service.Options{
		AppleHealthPath: *appleHealth,
		StrongPath:      *strong,
		Since:           sinceTime,
		SnapshotPath:    *snapshot,
	}

	if *watch {
		return watchCommand(ctx, cfg, pipeline, opts, metrics, log)
	}

	report := pipeline.Run(ctx, opts)
	pushMetrics(cfg, metrics, log)
	if report.Fatal() {
		return errFatalRun
	}
	return nil
}

// watchCommand 订阅 MQTT 触发消息，收到后运行管道，直到收到退出信号
func watchCommand(ctx context.Context, cfg *config.Config, pipeline *service.Pipeline, defaults service.Options, metrics *observability.Metrics, log *zap.Logger) error {
	client, err := mqtt.NewClient(&cfg.MQTT, log)
	if err != nil {
		return fmt.Errorf("failed to connect MQTT: %w", err)
	}
	defer client.Disconnect()

	trigger := consumer.NewTrigger(pipeline, defaults, log)
	trigger.OnReport(func(*service.RunReport) {
		pushMetrics(cfg, metrics, log)
	})

	log.Info("Waiting for export triggers", zap.String("topic", cfg.MQTT.Topic))
	return trigger.Start(ctx, client, cfg.MQTT.Topic, cfg.MQTT.QoS)
}

func exportCommand(ctx context.Context, cfg *config.Config, args []string, log *zap.Logger) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.String("out", "health-etl.xlsx", "输出 xlsx 路径")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := commondb.NewPostgresDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer commondb.Close(db)

	repo := repository.NewTableRepository(db, log)
	var tables []*models.Table
	for _, name := range []string{config.TableAppleHealth, config.TableAppleSleep, config.TableStrong} {
		table, err := repo.ReadTable(ctx, name)
		if errors.Is(err, repository.ErrTableNotFound) {
			log.Warn("Table not loaded yet, skipping", zap.String("table", name))
			continue
		}
		if err != nil {
			return err
		}
		tables = append(tables, table)
	}
	if len(tables) == 0 {
		return fmt.Errorf("no tables loaded")
	}

	if err := export.WriteWorkbook(*out, tables...); err != nil {
		return err
	}
	log.Info("Workbook written", zap.String("path", *out), zap.Int("sheets", len(tables)))
	return nil
}

func statusCommand(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if !cfg.Redis.Enabled() {
		return fmt.Errorf("REDIS_ADDR is not set")
	}
	client := rediscommon.NewRedisClient(&cfg.Redis)
	defer rediscommon.Close(client)

	evt, err := service.LastLoadedEvent(ctx, client, cfg.Pipeline.Stream)
	if err != nil {
		return err
	}
	if evt == nil {
		log.Info("No load recorded", zap.String("stream", cfg.Pipeline.Stream))
		return nil
	}

	fmt.Printf("run %s finished %s (fatal=%t)\n", evt.RunID, evt.FinishedAt.Format(time.RFC3339), evt.Fatal)
	for table, rows := range evt.Tables {
		fmt.Printf("  %-24s %d rows\n", table, rows)
	}
	for stage, outcome := range evt.Outcomes {
		fmt.Printf("  %-24s %s\n", stage, outcome)
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
