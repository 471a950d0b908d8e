package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.Password)
	assert.Equal(t, "owlrd", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "apcaccess", cfg.Monitor.APCAccessBin)
	assert.Equal(t, 10, cfg.Monitor.FetchTimeoutSeconds)
	assert.Equal(t, 15, cfg.Monitor.WatchIntervalSeconds)
	assert.Equal(t, 3600, cfg.Monitor.PruneIntervalSeconds)
	assert.Equal(t, "/config/ups.yaml", cfg.Monitor.LegacyConfigPath)

	assert.False(t, cfg.Archive.Enabled)

	assert.True(t, cfg.Notify.SMTPEnabled)
	assert.Equal(t, "", cfg.Notify.WebhookURL)
	assert.False(t, cfg.Notify.MQTTEnabled)
	assert.Equal(t, "wisefido/power/alerts", cfg.Notify.MQTTTopicPrefix)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("REDIS_PASSWORD", "test-redis-password")
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("APCACCESS_BIN", "/usr/sbin/apcaccess")
	os.Setenv("APCACCESS_TIMEOUT", "5")
	os.Setenv("CONFIG_WATCH_INTERVAL", "30")
	os.Setenv("ARCHIVE_ENABLED", "true")
	os.Setenv("NOTIFY_SMTP_ENABLED", "false")
	os.Setenv("NOTIFY_WEBHOOK_URL", "http://hooks.local/ups")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证环境变量覆盖
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "test-redis-password", cfg.Redis.Password)
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)

	assert.Equal(t, "/usr/sbin/apcaccess", cfg.Monitor.APCAccessBin)
	assert.Equal(t, 5, cfg.Monitor.FetchTimeoutSeconds)
	assert.Equal(t, 30, cfg.Monitor.WatchIntervalSeconds)

	assert.True(t, cfg.Archive.Enabled)
	assert.False(t, cfg.Notify.SMTPEnabled)
	assert.Equal(t, "http://hooks.local/ups", cfg.Notify.WebhookURL)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)

	// 清理环境变量
	os.Clearenv()
}

func TestGetEnv(t *testing.T) {
	// 测试默认值
	os.Clearenv()
	value := getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "default-value", value)

	// 测试环境变量存在
	os.Setenv("TEST_KEY", "env-value")
	value = getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "env-value", value)

	// 清理
	os.Unsetenv("TEST_KEY")
}

func TestGetEnvInt(t *testing.T) {
	os.Clearenv()
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))

	os.Setenv("TEST_INT", "7")
	assert.Equal(t, 7, getEnvInt("TEST_INT", 42))

	// 非法数字回退默认值
	os.Setenv("TEST_INT", "not-a-number")
	assert.Equal(t, 42, getEnvInt("TEST_INT", 42))

	os.Unsetenv("TEST_INT")
}

func TestGetEnvBool(t *testing.T) {
	os.Clearenv()
	assert.True(t, getEnvBool("TEST_BOOL", true))

	os.Setenv("TEST_BOOL", "false")
	assert.False(t, getEnvBool("TEST_BOOL", true))

	os.Setenv("TEST_BOOL", "1")
	assert.True(t, getEnvBool("TEST_BOOL", false))

	os.Unsetenv("TEST_BOOL")
}
