package aggregator

import (
	"context"
	"math"
	"time"

	"wisefido-power/internal/models"
	"wisefido-power/internal/store"

	"go.uber.org/zap"
)

// 日期与分钟键格式（本地时间）
const (
	dayFormat    = "20060102"
	minuteFormat = "200601021504"
)

// EnergyAggregator 能耗与功率聚合器：
//   - 将每个周期的派生功率按 watts×interval 累入当日能耗计数器
//   - 维护分钟聚合桶，分钟切换时把旧桶沉淀为一个每分钟平均功率点
type EnergyAggregator struct {
	energy *store.EnergyStore
	logger *zap.Logger
}

// NewEnergyAggregator 创建聚合器
func NewEnergyAggregator(energy *store.EnergyStore, logger *zap.Logger) *EnergyAggregator {
	return &EnergyAggregator{
		energy: energy,
		logger: logger,
	}
}

// Aggregate 处理一个周期的功率样本；报告无有效 DERIVED_WATTS 时跳过
func (a *EnergyAggregator) Aggregate(ctx context.Context, upsName string, report models.Report, intervalSeconds int, now time.Time) error {
	watts, ok := models.ParseLeadingFloat(report[models.FieldDerivedWatts])
	if !ok {
		return nil
	}

	// 1. 当日能耗累计（瓦·秒）
	day := now.Format(dayFormat)
	if err := a.energy.AddEnergy(ctx, upsName, day, watts*float64(intervalSeconds)); err != nil {
		return err
	}

	// 2. 分钟聚合桶
	minute := now.Format(minuteFormat)
	bucket, err := a.energy.GetMinuteBucket(ctx, upsName)
	if err != nil {
		return err
	}

	if bucket == nil || bucket.Minute != minute {
		// 分钟切换：沉淀旧桶为平均功率点，再以本样本开新桶
		if bucket != nil {
			count := bucket.Count
			if count < 1 {
				count = 1
			}
			avg := bucket.Sum / float64(count)
			if err := a.energy.AppendPowerPoint(ctx, upsName, bucket.Minute, avg); err != nil {
				return err
			}
			a.logger.Debug("Finalized minute power bucket",
				zap.String("ups", upsName),
				zap.String("minute", bucket.Minute),
				zap.Float64("avg_watts", avg))
		}
		return a.energy.SetMinuteBucket(ctx, upsName, minute, watts, 1)
	}

	return a.energy.SetMinuteBucket(ctx, upsName, minute, bucket.Sum+watts, bucket.Count+1)
}

// DailyEnergyKWh 读取最近 days 天（含当日）的累计能耗，按日期升序返回
func (a *EnergyAggregator) DailyEnergyKWh(ctx context.Context, upsName string, days int, now time.Time) ([]models.DailyEnergy, error) {
	if days < 1 {
		days = 1
	}
	out := make([]models.DailyEnergy, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format(dayFormat)
		ws, err := a.energy.EnergyWattSeconds(ctx, upsName, day)
		if err != nil {
			return nil, err
		}
		kwh := ws / 3600.0 / 1000.0
		out = append(out, models.DailyEnergy{Day: day, KWh: math.Round(kwh*10000) / 10000})
	}
	return out, nil
}

// PowerSeriesChrono 读取每分钟平均功率序列并转为时间升序（存储为新点在前）
func (a *EnergyAggregator) PowerSeriesChrono(ctx context.Context, upsName string, limit int64) ([]models.PowerPoint, error) {
	points, err := a.energy.PowerSeries(ctx, upsName, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}
