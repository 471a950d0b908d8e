package config

import (
	"os"
	"strconv"
)

// Config 电源监控服务配置
type Config struct {
	Redis    RedisConfig
	Database DatabaseConfig
	MQTT     MQTTConfig

	// 监控引擎配置
	Monitor struct {
		APCAccessBin        string // apcaccess 可执行文件路径
		FetchTimeoutSeconds int    // 单次状态采集超时（秒），默认 10
		WatchIntervalSeconds int   // 配置巡检间隔（秒），默认 15
		PruneIntervalSeconds int   // 历史数据清理间隔（秒），默认 3600
		LegacyConfigPath    string // 旧版YAML配置路径（首次启动迁移用）
	}

	// 告警归档配置（Postgres，可选）
	Archive struct {
		Enabled bool
	}

	// 告警投递配置
	Notify struct {
		SMTPEnabled     bool   // SMTP投递（收件人等参数来自机群配置）
		WebhookURL      string // 非空时启用Webhook投递
		MQTTEnabled     bool   // MQTT投递
		MQTTTopicPrefix string // 告警主题前缀，默认 "wisefido/power/alerts"
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-power")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 监控引擎配置
	cfg.Monitor.APCAccessBin = getEnv("APCACCESS_BIN", "apcaccess")
	cfg.Monitor.FetchTimeoutSeconds = getEnvInt("APCACCESS_TIMEOUT", 10)
	cfg.Monitor.WatchIntervalSeconds = getEnvInt("CONFIG_WATCH_INTERVAL", 15)
	cfg.Monitor.PruneIntervalSeconds = getEnvInt("PRUNE_INTERVAL", 3600)
	cfg.Monitor.LegacyConfigPath = getEnv("UPS_CONFIG_PATH", "/config/ups.yaml")

	cfg.Archive.Enabled = getEnvBool("ARCHIVE_ENABLED", false)

	cfg.Notify.SMTPEnabled = getEnvBool("NOTIFY_SMTP_ENABLED", true)
	cfg.Notify.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", "")
	cfg.Notify.MQTTEnabled = getEnvBool("NOTIFY_MQTT_ENABLED", false)
	cfg.Notify.MQTTTopicPrefix = getEnv("NOTIFY_MQTT_TOPIC_PREFIX", "wisefido/power/alerts")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

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
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
