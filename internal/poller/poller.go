package poller

import (
	"context"
	"time"

	"wisefido-power/internal/aggregator"
	"wisefido-power/internal/detector"
	"wisefido-power/internal/evaluator"
	"wisefido-power/internal/models"
	"wisefido-power/internal/store"

	"go.uber.org/zap"
)

// StatusSource UPS状态采集来源
type StatusSource interface {
	// FetchStatus 采集一台UPS的状态报告
	FetchStatus(ctx context.Context, host string, port int) (models.Report, error)
}

// UIConfigSource 全局功能开关来源
type UIConfigSource interface {
	GetUI(ctx context.Context) (models.UIConfig, error)
}

// UPSPoller 单台UPS的轮询循环：按固定间隔采集状态，依次驱动
// 事件检测、能耗聚合、快照写入与告警评估
// 设备配置为启动时的快照，运行期间不变
type UPSPoller struct {
	ups        models.UPSConfig
	source     StatusSource
	detector   *detector.EventDetector
	aggregator *aggregator.EnergyAggregator
	metrics    *store.MetricStore
	evaluator  *evaluator.AlertEvaluator
	ui         UIConfigSource
	logger     *zap.Logger
}

// NewUPSPoller 创建轮询器
func NewUPSPoller(
	ups models.UPSConfig,
	source StatusSource,
	eventDetector *detector.EventDetector,
	energyAggregator *aggregator.EnergyAggregator,
	metrics *store.MetricStore,
	alertEvaluator *evaluator.AlertEvaluator,
	ui UIConfigSource,
	logger *zap.Logger,
) *UPSPoller {
	return &UPSPoller{
		ups:        ups,
		source:     source,
		detector:   eventDetector,
		aggregator: energyAggregator,
		metrics:    metrics,
		evaluator:  alertEvaluator,
		ui:         ui,
		logger:     logger,
	}
}

// Run 阻塞运行轮询循环直到 ctx 取消
// 单个周期失败不会终止循环，下一个周期照常执行
func (p *UPSPoller) Run(ctx context.Context) {
	p.logger.Info("UPS poller started",
		zap.String("ups", p.ups.Name),
		zap.String("host", p.ups.Host),
		zap.Int("port", p.ups.Port),
		zap.Int("interval_seconds", p.ups.IntervalSeconds),
	)

	ticker := time.NewTicker(time.Duration(p.ups.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	// 启动后立即执行一次
	p.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("UPS poller stopped", zap.String("ups", p.ups.Name))
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle 执行一个采集周期：fetch → derive → detect → aggregate → store → alert
// 采集失败时跳过全部后续步骤；后续任一步骤失败则记录日志并结束本周期
func (p *UPSPoller) runCycle(ctx context.Context) {
	report, err := p.source.FetchStatus(ctx, p.ups.Host, p.ups.Port)
	if err != nil {
		p.logger.Warn("Failed to fetch UPS status",
			zap.String("ups", p.ups.Name),
			zap.Error(err),
		)
		return
	}

	report = DeriveMetrics(report, p.ups.Name)

	if _, err := p.detector.Detect(ctx, p.ups.Name, report); err != nil {
		p.logger.Error("Failed to detect UPS events",
			zap.String("ups", p.ups.Name),
			zap.Error(err),
		)
		return
	}

	if err := p.aggregator.Aggregate(ctx, p.ups.Name, report, p.ups.IntervalSeconds, time.Now()); err != nil {
		p.logger.Error("Failed to aggregate power sample",
			zap.String("ups", p.ups.Name),
			zap.Error(err),
		)
		return
	}

	if err := p.metrics.StoreSnapshot(ctx, p.ups.Name, report); err != nil {
		p.logger.Error("Failed to store UPS snapshot",
			zap.String("ups", p.ups.Name),
			zap.Error(err),
		)
		return
	}

	ui, err := p.ui.GetUI(ctx)
	if err != nil {
		p.logger.Error("Failed to load UI feature toggles",
			zap.String("ups", p.ups.Name),
			zap.Error(err),
		)
		return
	}
	if err := p.evaluator.Process(ctx, &p.ups, ui, report); err != nil {
		p.logger.Error("Failed to evaluate alerts",
			zap.String("ups", p.ups.Name),
			zap.Error(err),
		)
	}
}
