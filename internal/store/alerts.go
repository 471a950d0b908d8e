package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wisefido-power/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	alertCooldownPrefix = "ups:alert:last:"        // ups:alert:last:<name>:<fingerprint>
	recentAlertsPrefix  = "ups:alerts:recent:"     // 已投递告警日志 "ts|message"，新告警在左端
	voltSamplesPrefix   = "ups:volt:dev:samples:"  // 电压偏差样本 "%.2f"，新样本在左端

	// CooldownTTL 同一(设备,消息)指纹的重发抑制窗口
	CooldownTTL     = 1800 * time.Second
	maxRecentAlerts = 50
	maxVoltSamples  = 50
)

// AlertStateStore 告警状态存储：冷却记录、已投递告警日志与电压偏差样本
type AlertStateStore struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewAlertStateStore 创建告警状态存储
func NewAlertStateStore(redisClient *redis.Client, logger *zap.Logger) *AlertStateStore {
	return &AlertStateStore{
		redisClient: redisClient,
		logger:      logger,
	}
}

// CheckAndSetCooldown 检查指纹是否处于冷却期：已在冷却期返回false；
// 否则写入冷却记录并返回true（本次消息应投递）
// 检查与写入之间无并发风险：每台UPS的键只由其自身的轮询任务写入
func (s *AlertStateStore) CheckAndSetCooldown(ctx context.Context, upsName, fingerprint string, now int64) (bool, error) {
	key := alertCooldownPrefix + upsName + ":" + fingerprint

	_, err := s.redisClient.Get(ctx, key).Result()
	if err == nil {
		return false, nil
	}
	if err != redis.Nil {
		return false, fmt.Errorf("failed to check alert cooldown: %w", err)
	}

	if err := s.redisClient.Set(ctx, key, strconv.FormatInt(now, 10), CooldownTTL).Err(); err != nil {
		return false, fmt.Errorf("failed to set alert cooldown: %w", err)
	}
	return true, nil
}

// AppendRecentAlerts 批量追加已投递告警并裁剪日志长度
func (s *AlertStateStore) AppendRecentAlerts(ctx context.Context, upsName string, now int64, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	key := recentAlertsPrefix + upsName

	pipe := s.redisClient.TxPipeline()
	for _, m := range messages {
		pipe.LPush(ctx, key, strconv.FormatInt(now, 10)+"|"+m)
	}
	pipe.LTrim(ctx, key, 0, maxRecentAlerts-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append recent alerts: %w", err)
	}
	return nil
}

// RecentAlerts 读取最新的至多 limit 条已投递告警（新到旧）；limit <= 0 时读取整个日志
func (s *AlertStateStore) RecentAlerts(ctx context.Context, upsName string, limit int64) ([]models.RecentAlert, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	raw, err := s.redisClient.LRange(ctx, recentAlertsPrefix+upsName, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recent alerts: %w", err)
	}

	out := make([]models.RecentAlert, 0, len(raw))
	for _, item := range raw {
		parts := strings.SplitN(item, "|", 2)
		if len(parts) != 2 {
			continue
		}
		ts, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		out = append(out, models.RecentAlert{Ts: ts, Message: parts[1]})
	}
	return out, nil
}

// PushVoltageSample 追加一个电压偏差百分比样本并裁剪样本窗口
func (s *AlertStateStore) PushVoltageSample(ctx context.Context, upsName string, deviationPct float64) error {
	key := voltSamplesPrefix + upsName

	pipe := s.redisClient.TxPipeline()
	pipe.LPush(ctx, key, fmt.Sprintf("%.2f", deviationPct))
	pipe.LTrim(ctx, key, 0, maxVoltSamples-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to push voltage sample: %w", err)
	}
	return nil
}

// VoltageSamples 读取当前窗口内的全部电压偏差样本
func (s *AlertStateStore) VoltageSamples(ctx context.Context, upsName string) ([]float64, error) {
	raw, err := s.redisClient.LRange(ctx, voltSamplesPrefix+upsName, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read voltage samples: %w", err)
	}

	out := make([]float64, 0, len(raw))
	for _, item := range raw {
		v, err := strconv.ParseFloat(item, 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
