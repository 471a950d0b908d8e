package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-power/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	snapKeyPrefix = "ups:snap:" // 最新快照哈希
	histKeyPrefix = "ups:hist:" // 历史序列列表（JSON，左旧右新）

	// 历史保留窗口与条数上限（按最坏30秒间隔估算7天 ≈ 20160条）
	retentionSeconds = 7 * 24 * 3600
	maxSamplesPerUPS = 7 * 24 * 60 * 2
)

// RetentionWindow 历史数据保留窗口
const RetentionWindow = retentionSeconds * time.Second

// MetricStore 指标存储：每台UPS的最新快照与有界历史序列
type MetricStore struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewMetricStore 创建指标存储
func NewMetricStore(redisClient *redis.Client, logger *zap.Logger) *MetricStore {
	return &MetricStore{
		redisClient: redisClient,
		logger:      logger,
	}
}

// StoreSnapshot 原子写入一个周期的数据：整体覆盖最新快照并追加一条历史记录
// 快照、历史追加与裁剪在同一事务管道中执行，失败时本周期的写入整体放弃
func (s *MetricStore) StoreSnapshot(ctx context.Context, upsName string, report models.Report) error {
	ts := time.Now().Unix()

	entry := models.HistoryEntry{Ts: ts, Data: report}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	fields := make(map[string]interface{}, len(report)+1)
	for k, v := range report {
		fields[k] = v
	}
	fields[models.FieldSnapshotTs] = ts

	snapKey := snapKeyPrefix + upsName
	histKey := histKeyPrefix + upsName

	pipe := s.redisClient.TxPipeline()
	pipe.Del(ctx, snapKey)
	pipe.HSet(ctx, snapKey, fields)
	pipe.RPush(ctx, histKey, raw)
	pipe.LTrim(ctx, histKey, -maxSamplesPerUPS, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	return nil
}

// GetLatest 读取最新快照（含 _ts 字段）；不存在时返回 (nil, nil)
func (s *MetricStore) GetLatest(ctx context.Context, upsName string) (models.Report, error) {
	h, err := s.redisClient.HGetAll(ctx, snapKeyPrefix+upsName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if len(h) == 0 {
		return nil, nil
	}
	return models.Report(h), nil
}

// GetHistory 读取保留窗口内的历史记录，按存储顺序（旧到新）返回
func (s *MetricStore) GetHistory(ctx context.Context, upsName string, maxAge time.Duration) ([]models.HistoryEntry, error) {
	raw, err := s.redisClient.LRange(ctx, histKeyPrefix+upsName, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	cutoff := time.Now().Unix() - int64(maxAge.Seconds())
	out := make([]models.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		if entry.Ts >= cutoff {
			out = append(out, entry)
		}
	}
	return out, nil
}

// PruneOld 清理所有UPS历史序列中超出保留窗口的记录
// 从最旧端（左端）逐条弹出，遇到第一条仍在窗口内的记录即停（时间戳单调递增）
func (s *MetricStore) PruneOld(ctx context.Context) error {
	cutoff := time.Now().Unix() - retentionSeconds
	pruned := 0

	iter := s.redisClient.Scan(ctx, 0, histKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		for {
			item, err := s.redisClient.LIndex(ctx, key, 0).Result()
			if err == redis.Nil {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to inspect history head: %w", err)
			}

			var entry models.HistoryEntry
			if err := json.Unmarshal([]byte(item), &entry); err != nil {
				// 无法解析的记录直接丢弃
				if err := s.redisClient.LPop(ctx, key).Err(); err != nil {
					return fmt.Errorf("failed to drop malformed history entry: %w", err)
				}
				pruned++
				continue
			}
			if entry.Ts >= cutoff {
				break
			}
			if err := s.redisClient.LPop(ctx, key).Err(); err != nil {
				return fmt.Errorf("failed to prune history entry: %w", err)
			}
			pruned++
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan history keys: %w", err)
	}

	if pruned > 0 {
		s.logger.Debug("Pruned old history entries", zap.Int("count", pruned))
	}
	return nil
}
