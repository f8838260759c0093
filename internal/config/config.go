package config

import (
	"fmt"
	"os"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// RMMConfig 远程监控 API 配置
type RMMConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration // 单次调用超时
	RetryCount int
}

// Config 同步服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	RMM      RMMConfig

	// 同步服务特定配置
	Sync struct {
		Interval      time.Duration // 轮询间隔，默认 5 分钟
		RunTimeout    time.Duration // 单次运行超时，默认 10 分钟
		Workers       int           // 并发工作者数量，默认 4
		FuzzyMatch    bool          // 是否启用模糊名称匹配（子串匹配），默认开启
		AutoCreate    bool          // 远程设备无本地匹配时是否自动建档，默认关闭
		RetentionDays int           // 已解决报警保留天数，默认 30
	}

	// 通知事件发布配置
	Notify struct {
		Transport string // "redis", "mqtt" 或 "none"
		Stream    string // Redis Stream 名称
		Topic     string // MQTT 主题
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量 + 默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "domus")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "domus-rmm-sync")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	cfg.RMM.BaseURL = getEnv("RMM_BASE_URL", "")
	cfg.RMM.APIKey = getEnv("RMM_API_KEY", "")
	cfg.RMM.Timeout = time.Duration(getEnvInt("RMM_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.RMM.RetryCount = getEnvInt("RMM_RETRY_COUNT", 3)

	cfg.Sync.Interval = time.Duration(getEnvInt("SYNC_INTERVAL_SECONDS", 300)) * time.Second
	cfg.Sync.RunTimeout = time.Duration(getEnvInt("SYNC_RUN_TIMEOUT_SECONDS", 600)) * time.Second
	cfg.Sync.Workers = getEnvInt("SYNC_WORKERS", 4)
	cfg.Sync.FuzzyMatch = getEnvBool("SYNC_FUZZY_MATCH", true)
	cfg.Sync.AutoCreate = getEnvBool("SYNC_AUTO_CREATE", false)
	cfg.Sync.RetentionDays = getEnvInt("SYNC_RETENTION_DAYS", 30)

	cfg.Notify.Transport = getEnv("NOTIFY_TRANSPORT", "redis")
	cfg.Notify.Stream = getEnv("NOTIFY_STREAM", "domus:alerts:status-changes")
	cfg.Notify.Topic = getEnv("NOTIFY_TOPIC", "domus/alerts/status-changes")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.Sync.Workers <= 0 {
		cfg.Sync.Workers = 1
	}
	if cfg.Sync.RetentionDays <= 0 {
		cfg.Sync.RetentionDays = 30
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
