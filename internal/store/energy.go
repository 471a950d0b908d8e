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
	energyKeyPrefix    = "ups:energy:"            // ups:energy:<name>:<YYYYMMDD>，瓦·秒
	minuteBucketPrefix = "ups:watts:minute:last:" // 分钟聚合桶哈希 {minute,sum,count}
	powerSeriesPrefix  = "ups:watts:permin:"      // 每分钟平均功率列表 "minute|avg"，新点在左端

	energyTTL       = 3 * 24 * time.Hour
	minuteBucketTTL = 26 * time.Hour
	maxPowerPoints  = 1440 // 保留一天的分钟数
)

// 分钟桶哈希字段
const (
	bucketFieldMinute = "minute"
	bucketFieldSum    = "sum"
	bucketFieldCount  = "count"
)

// EnergyStore 能耗存储：按天累计的瓦·秒计数器与每分钟平均功率序列
type EnergyStore struct {
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewEnergyStore 创建能耗存储
func NewEnergyStore(redisClient *redis.Client, logger *zap.Logger) *EnergyStore {
	return &EnergyStore{
		redisClient: redisClient,
		logger:      logger,
	}
}

// AddEnergy 向指定日期的能耗计数器累加瓦·秒，并刷新其过期时间
func (s *EnergyStore) AddEnergy(ctx context.Context, upsName, day string, wattSeconds float64) error {
	key := energyKeyPrefix + upsName + ":" + day

	pipe := s.redisClient.TxPipeline()
	pipe.IncrByFloat(ctx, key, wattSeconds)
	pipe.Expire(ctx, key, energyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to accumulate energy: %w", err)
	}
	return nil
}

// EnergyWattSeconds 读取指定日期累计的瓦·秒；无记录返回0
func (s *EnergyStore) EnergyWattSeconds(ctx context.Context, upsName, day string) (float64, error) {
	val, err := s.redisClient.Get(ctx, energyKeyPrefix+upsName+":"+day).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get energy counter: %w", err)
	}
	ws, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse energy counter: %w", err)
	}
	return ws, nil
}

// MinuteBucket 分钟聚合桶：当前分钟内功率样本的累计和与样本数
type MinuteBucket struct {
	Minute string
	Sum    float64
	Count  int64
}

// GetMinuteBucket 读取分钟聚合桶；不存在或内容损坏时返回 (nil, nil)
func (s *EnergyStore) GetMinuteBucket(ctx context.Context, upsName string) (*MinuteBucket, error) {
	h, err := s.redisClient.HGetAll(ctx, minuteBucketPrefix+upsName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get minute bucket: %w", err)
	}
	if len(h) == 0 {
		return nil, nil
	}

	sum, errSum := strconv.ParseFloat(h[bucketFieldSum], 64)
	count, errCount := strconv.ParseInt(h[bucketFieldCount], 10, 64)
	minute := h[bucketFieldMinute]
	if minute == "" || errSum != nil || errCount != nil {
		// 损坏的桶按不存在处理，由调用方重建
		s.logger.Debug("Discarding malformed minute bucket", zap.String("ups", upsName))
		return nil, nil
	}

	return &MinuteBucket{Minute: minute, Sum: sum, Count: count}, nil
}

// SetMinuteBucket 覆盖分钟聚合桶并刷新过期时间
func (s *EnergyStore) SetMinuteBucket(ctx context.Context, upsName, minute string, sum float64, count int64) error {
	key := minuteBucketPrefix + upsName

	pipe := s.redisClient.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		bucketFieldMinute: minute,
		bucketFieldSum:    sum,
		bucketFieldCount:  count,
	})
	pipe.Expire(ctx, key, minuteBucketTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set minute bucket: %w", err)
	}
	return nil
}

// AppendPowerPoint 追加一个分钟平均功率点并裁剪序列长度
func (s *EnergyStore) AppendPowerPoint(ctx context.Context, upsName, minute string, avgWatts float64) error {
	key := powerSeriesPrefix + upsName

	pipe := s.redisClient.TxPipeline()
	pipe.LPush(ctx, key, fmt.Sprintf("%s|%.2f", minute, avgWatts))
	pipe.LTrim(ctx, key, 0, maxPowerPoints-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append power point: %w", err)
	}
	return nil
}

// PowerSeries 读取最新的至多 limit 个功率点（新到旧）；limit <= 0 时读取整个序列
func (s *EnergyStore) PowerSeries(ctx context.Context, upsName string, limit int64) ([]models.PowerPoint, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}
	raw, err := s.redisClient.LRange(ctx, powerSeriesPrefix+upsName, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read power series: %w", err)
	}

	out := make([]models.PowerPoint, 0, len(raw))
	for _, item := range raw {
		parts := strings.SplitN(item, "|", 2)
		if len(parts) != 2 {
			continue
		}
		avg, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			continue
		}
		out = append(out, models.PowerPoint{Minute: parts[0], AvgWatts: avg})
	}
	return out, nil
}
