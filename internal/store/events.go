package store

import (
	"context"
	"fmt"

	"wisefido-power/internal/models"
	rediscommon "wisefido-power/internal/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	eventStatusLastPrefix = "ups:event:status:last:"   // 最近一次STATUS取值
	eventXferLastPrefix   = "ups:event:lastxfer:last:" // 最近一次LASTXFER取值
	eventListPrefix       = "ups:event:list:"          // 事件环形日志，新事件在左端
	maxEventsPerUPS       = 100

	// 检测到的事件同时发布到该Stream，供下游服务消费
	eventStreamKey = "ups:events:stream"
)

// EventStore 事件存储：各离散字段的最近取值与每台UPS的有界事件日志
type EventStore struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewEventStore 创建事件存储
func NewEventStore(redisClient *redis.Client, logger *zap.Logger) *EventStore {
	return &EventStore{
		redisClient: redisClient,
		logger:      logger,
	}
}

// GetLastStatus 读取最近一次记录的STATUS；从未记录时返回空串
func (s *EventStore) GetLastStatus(ctx context.Context, upsName string) (string, error) {
	return s.getLastSeen(ctx, eventStatusLastPrefix+upsName)
}

// SetLastStatus 记录最近一次STATUS取值
func (s *EventStore) SetLastStatus(ctx context.Context, upsName, status string) error {
	if err := s.redisClient.Set(ctx, eventStatusLastPrefix+upsName, status, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last status: %w", err)
	}
	return nil
}

// GetLastXfer 读取最近一次记录的LASTXFER；从未记录时返回空串
func (s *EventStore) GetLastXfer(ctx context.Context, upsName string) (string, error) {
	return s.getLastSeen(ctx, eventXferLastPrefix+upsName)
}

// SetLastXfer 记录最近一次LASTXFER取值
func (s *EventStore) SetLastXfer(ctx context.Context, upsName, lastXfer string) error {
	if err := s.redisClient.Set(ctx, eventXferLastPrefix+upsName, lastXfer, 0).Err(); err != nil {
		return fmt.Errorf("failed to set last transfer cause: %w", err)
	}
	return nil
}

func (s *EventStore) getLastSeen(ctx context.Context, key string) (string, error) {
	val, err := s.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last seen value: %w", err)
	}
	return val, nil
}

// AppendEvent 追加一条事件到设备事件日志，并发布到事件Stream
// Stream发布失败只记录日志，不影响事件日志本身
func (s *EventStore) AppendEvent(ctx context.Context, event *models.UPSEvent) error {
	key := eventListPrefix + event.UPSName
	if err := s.redisClient.LPush(ctx, key, event.Encode()).Err(); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if _, err := rediscommon.PublishJSONToStream(ctx, s.redisClient, eventStreamKey, event); err != nil {
		s.logger.Warn("Failed to publish event to stream",
			zap.String("ups", event.UPSName),
			zap.String("kind", event.Kind),
			zap.Error(err))
	}

	return nil
}

// TrimEvents 将事件日志裁剪到条数上限（每个轮询周期调用一次）
func (s *EventStore) TrimEvents(ctx context.Context, upsName string) error {
	if err := s.redisClient.LTrim(ctx, eventListPrefix+upsName, 0, maxEventsPerUPS-1).Err(); err != nil {
		return fmt.Errorf("failed to trim events: %w", err)
	}
	return nil
}

// RecentEvents 读取最新的至多 limit 条事件（新到旧）；limit <= 0 时读取整个日志
func (s *EventStore) RecentEvents(ctx context.Context, upsName string, limit int64) ([]models.UPSEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	raw, err := s.redisClient.LRange(ctx, eventListPrefix+upsName, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}

	out := make([]models.UPSEvent, 0, len(raw))
	for _, item := range raw {
		if ev, ok := models.ParseUPSEvent(upsName, item); ok {
			out = append(out, *ev)
		}
	}
	return out, nil
}
