package evaluator

import (
	"context"
	"fmt"
	"time"

	"wisefido-power/internal/models"
	"wisefido-power/internal/notifier"
	"wisefido-power/internal/repository"
	"wisefido-power/internal/store"

	"go.uber.org/zap"
)

// AlertEvaluator 告警评估器
// 由所属设备的 poller 在每个周期末尾串行调用。评估与投递解耦：
// 没有任何投递通道时依然评估规则并维护冷却与最近告警记录
type AlertEvaluator struct {
	alerts   *store.AlertStateStore
	events   *store.EventStore
	notifier *notifier.Notifier
	archive  *repository.AlertEventsRepository // 可为 nil，表示不归档
	logger   *zap.Logger
}

// NewAlertEvaluator 创建告警评估器
func NewAlertEvaluator(
	alerts *store.AlertStateStore,
	events *store.EventStore,
	n *notifier.Notifier,
	archive *repository.AlertEventsRepository,
	logger *zap.Logger,
) *AlertEvaluator {
	return &AlertEvaluator{
		alerts:   alerts,
		events:   events,
		notifier: n,
		archive:  archive,
		logger:   logger,
	}
}

// Evaluate 按固定顺序评估全部规则，返回本周期触发的告警消息
// 阈值规则按设备配置，趋势规则按全局开关；单条趋势规则失败只记录日志
func (e *AlertEvaluator) Evaluate(ctx context.Context, upsCfg *models.UPSConfig, ui models.UIConfig, report models.Report) []string {
	messages := evaluateThresholds(upsCfg, report)

	if ui.EnableTransferBurstAlert {
		msg, err := e.evaluateTransferBurst(ctx, upsCfg.Name, time.Now().Unix())
		if err != nil {
			e.logger.Error("Failed to evaluate transfer burst rule",
				zap.String("ups_name", upsCfg.Name),
				zap.Error(err),
			)
		} else if msg != "" {
			messages = append(messages, msg)
		}
	}

	if ui.EnableVoltageDeviationAlert {
		msg, err := e.evaluateVoltageDeviation(ctx, upsCfg.Name, report)
		if err != nil {
			e.logger.Error("Failed to evaluate voltage deviation rule",
				zap.String("ups_name", upsCfg.Name),
				zap.Error(err),
			)
		} else if msg != "" {
			messages = append(messages, msg)
		}
	}

	return messages
}

// Process 评估一次快照并处理触发的告警：
// 1. 逐条消息做冷却检查，冷却期内的消息丢弃
// 2. 通过检查的消息写入最近告警记录（可选归档到 PostgreSQL）
// 3. 整批交给投递器；投递失败不回滚冷却记录
func (e *AlertEvaluator) Process(ctx context.Context, upsCfg *models.UPSConfig, ui models.UIConfig, report models.Report) error {
	messages := e.Evaluate(ctx, upsCfg, ui, report)
	if len(messages) == 0 {
		return nil
	}

	now := time.Now().Unix()
	toSend := make([]string, 0, len(messages))
	for _, msg := range messages {
		eligible, err := e.alerts.CheckAndSetCooldown(ctx, upsCfg.Name, Fingerprint(upsCfg.Name, msg), now)
		if err != nil {
			return fmt.Errorf("failed to check alert cooldown: %w", err)
		}
		if eligible {
			toSend = append(toSend, msg)
		}
	}
	if len(toSend) == 0 {
		return nil
	}

	if err := e.alerts.AppendRecentAlerts(ctx, upsCfg.Name, now, toSend); err != nil {
		return fmt.Errorf("failed to record recent alerts: %w", err)
	}

	if e.archive != nil {
		for _, msg := range toSend {
			event := &models.AlertEvent{
				UPSName:     upsCfg.Name,
				Message:     msg,
				Fingerprint: Fingerprint(upsCfg.Name, msg),
				CreatedAt:   time.Unix(now, 0),
			}
			if err := e.archive.CreateAlertEvent(ctx, event); err != nil {
				e.logger.Error("Failed to archive alert event",
					zap.String("ups_name", upsCfg.Name),
					zap.String("message", msg),
					zap.Error(err),
				)
				// 归档失败不阻断投递
			}
		}
	}

	e.logger.Info("Alerts triggered",
		zap.String("ups_name", upsCfg.Name),
		zap.Int("triggered", len(messages)),
		zap.Int("after_cooldown", len(toSend)),
	)

	e.notifier.Send(ctx, upsCfg.Name, toSend)
	return nil
}
