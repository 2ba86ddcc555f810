package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	commoncfg "health-etl/common/config"
)

// 目标表名
const (
	TableAppleHealth = "apple_health_raw"
	TableAppleSleep  = "apple_health_sleep_raw"
	TableStrong      = "strong_app_raw"
)

// Config health-etl / health-dashboards 共用配置
type Config struct {
	EnvFile  string
	Database commoncfg.DatabaseConfig
	Redis    commoncfg.RedisConfig
	MQTT     commoncfg.MQTTConfig

	// 管道输入输出
	Pipeline struct {
		AppleHealthPath string
		StrongPath      string
		Since           string // 可选的下界日期（含），YYYY-MM-DD 或 RFC3339
		SnapshotPath    string // 可选的 xlsx 快照路径
		Stream          string // 加载完成事件的 Redis Stream
	}

	Metabase MetabaseConfig

	Metrics struct {
		PushgatewayURL string
		Job            string
	}

	Log struct {
		Level  string
		Format string
	}
}

// MetabaseConfig BI 工具配置
type MetabaseConfig struct {
	URL           string
	Email         string
	Password      string
	DatabaseName  string        // Metabase 中仓库数据库的显示名称
	WaitAttempts  int           // 启动等待轮询次数
	WaitInterval  time.Duration // 每次轮询间隔（固定，无退避）
	SentinelTable string        // 初始化标记表
	FieldCacheTTL time.Duration
}

// Load 加载配置（先读取 .env，再读取环境变量）
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.EnvFile = getEnv("ENV_FILE", ".env")
	if _, err := commoncfg.LoadDotEnv(cfg.EnvFile); err != nil {
		return nil, err
	}

	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "postgres",
		SSLMode:  "disable",
		MaxConns: 4,
		MaxIdle:  2,
	}
	cfg.Database.LoadFromEnv("POSTGRES")

	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = commoncfg.MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "health-etl",
		Topic:    "health-etl/exports",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Pipeline.AppleHealthPath = getEnv("APPLE_HEALTH_EXPORT_PATH", "./data/apple_health_export/export.xml")
	cfg.Pipeline.StrongPath = getEnv("STRONG_EXPORT_PATH", "./data/strong_export/strong.csv")
	cfg.Pipeline.Since = getEnv("SINCE_DATE", "")
	cfg.Pipeline.SnapshotPath = getEnv("XLSX_SNAPSHOT_PATH", "")
	cfg.Pipeline.Stream = getEnv("STREAM_PIPELINE", "health:pipeline:stream")

	cfg.Metabase.URL = getEnv("MB_URL", "http://metabase:3000")
	cfg.Metabase.Email = getEnv("MB_ADMIN_EMAIL", "")
	cfg.Metabase.Password = getEnv("MB_ADMIN_PASSWORD", "")
	cfg.Metabase.DatabaseName = getEnv("MB_DATABASE_NAME", cfg.Database.Database)
	cfg.Metabase.WaitAttempts = parseInt(getEnv("MB_STARTUP_WAIT_ATTEMPTS", "300"), 300)
	cfg.Metabase.WaitInterval = parseDuration(getEnv("MB_STARTUP_WAIT_INTERVAL", "1s"), time.Second)
	cfg.Metabase.SentinelTable = getEnv("MB_SENTINEL_TABLE", "dashboard_provisioning")
	cfg.Metabase.FieldCacheTTL = parseDuration(getEnv("FIELD_CACHE_TTL", "10m"), 10*time.Minute)

	cfg.Metrics.PushgatewayURL = getEnv("PUSHGATEWAY_URL", "")
	cfg.Metrics.Job = getEnv("PUSHGATEWAY_JOB", "health_etl")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// ValidateMetabase 检查看板配置是否完整
func (c *Config) ValidateMetabase() error {
	if c.Metabase.Email == "" || c.Metabase.Password == "" {
		return fmt.Errorf("MB_ADMIN_EMAIL and MB_ADMIN_PASSWORD are required")
	}
	if c.Metabase.WaitAttempts < 0 {
		return fmt.Errorf("MB_STARTUP_WAIT_ATTEMPTS must not be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
