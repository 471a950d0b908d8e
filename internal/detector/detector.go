package detector

import (
	"context"
	"strings"
	"time"

	"wisefido-power/internal/models"
	"wisefido-power/internal/store"

	"go.uber.org/zap"
)

// EventDetector 离散状态变化检测器：跟踪STATUS与LASTXFER的最近取值，
// 取值变化时（且新值非空）产生一条事件
type EventDetector struct {
	events *store.EventStore
	logger *zap.Logger
}

// NewEventDetector 创建事件检测器
func NewEventDetector(events *store.EventStore, logger *zap.Logger) *EventDetector {
	return &EventDetector{
		events: events,
		logger: logger,
	}
}

// Detect 对比本周期报告与最近取值，返回新产生的事件
// 首次观测（无历史取值）也视为一次变化；每个周期末尾裁剪事件日志
func (d *EventDetector) Detect(ctx context.Context, upsName string, report models.Report) ([]models.UPSEvent, error) {
	now := time.Now().Unix()
	var detected []models.UPSEvent

	// 1. STATUS 变化
	statusNow := strings.ToUpper(strings.TrimSpace(report[models.FieldStatus]))
	prevStatus, err := d.events.GetLastStatus(ctx, upsName)
	if err != nil {
		return nil, err
	}
	if statusNow != "" && statusNow != prevStatus {
		if err := d.events.SetLastStatus(ctx, upsName, statusNow); err != nil {
			return nil, err
		}
		ev := models.UPSEvent{Ts: now, UPSName: upsName, Kind: models.EventKindStatus, Detail: statusNow}
		if err := d.events.AppendEvent(ctx, &ev); err != nil {
			return nil, err
		}
		detected = append(detected, ev)
		d.logger.Info("UPS status changed",
			zap.String("ups", upsName),
			zap.String("from", prevStatus),
			zap.String("to", statusNow))
	}

	// 2. LASTXFER 变化
	xferNow := strings.TrimSpace(report[models.FieldLastXfer])
	prevXfer, err := d.events.GetLastXfer(ctx, upsName)
	if err != nil {
		return nil, err
	}
	if xferNow != "" && xferNow != prevXfer {
		if err := d.events.SetLastXfer(ctx, upsName, xferNow); err != nil {
			return nil, err
		}
		ev := models.UPSEvent{Ts: now, UPSName: upsName, Kind: models.EventKindXfer, Detail: xferNow}
		if err := d.events.AppendEvent(ctx, &ev); err != nil {
			return nil, err
		}
		detected = append(detected, ev)
		d.logger.Info("UPS transfer cause changed",
			zap.String("ups", upsName),
			zap.String("to", xferNow))
	}

	// 3. 无论是否产生事件，都把日志裁剪到上限
	if err := d.events.TrimEvents(ctx, upsName); err != nil {
		return nil, err
	}

	return detected, nil
}
