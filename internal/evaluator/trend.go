package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"wisefido-power/internal/models"
)

const (
	// 突发规则：最近一小时内的 ONBATT 状态事件达到该数量时告警
	burstWindowSeconds = 3600
	burstThreshold     = 3
	burstScanLimit     = 201

	// 电压偏差规则：滚动平均偏差超过该百分比且样本数达到下限时告警
	voltageDeviationThresholdPct = 8.0
	voltageMinSamples            = 10
)

// evaluateTransferBurst 统计事件日志中最近一小时的电池切换次数
func (e *AlertEvaluator) evaluateTransferBurst(ctx context.Context, upsName string, now int64) (string, error) {
	events, err := e.events.RecentEvents(ctx, upsName, burstScanLimit)
	if err != nil {
		return "", fmt.Errorf("failed to read recent events: %w", err)
	}

	onBattCount := 0
	for _, ev := range events {
		if now-ev.Ts > burstWindowSeconds {
			continue
		}
		if ev.Kind == models.EventKindStatus && strings.Contains(ev.Detail, "ONBATT") {
			onBattCount++
		}
	}

	if onBattCount >= burstThreshold {
		return fmt.Sprintf("Frequent battery events: %d in last hour", onBattCount), nil
	}
	return "", nil
}

// evaluateVoltageDeviation 输入电压相对标称值的滚动平均偏差规则
// 先写入本周期的偏差样本，再对整个窗口求平均
func (e *AlertEvaluator) evaluateVoltageDeviation(ctx context.Context, upsName string, report models.Report) (string, error) {
	lineV, ok := models.ParseLeadingFloat(report[models.FieldLineV])
	if !ok || lineV == 0 {
		return "", nil
	}

	nomRaw, present := report[models.FieldNomInV]
	if !present {
		nomRaw = report[models.FieldNomInput]
	}
	nomV, ok := models.ParseLeadingFloat(nomRaw)
	if !ok || nomV == 0 {
		return "", nil
	}

	devPct := math.Abs(lineV-nomV) / nomV * 100.0
	if err := e.alerts.PushVoltageSample(ctx, upsName, devPct); err != nil {
		return "", fmt.Errorf("failed to push voltage sample: %w", err)
	}

	samples, err := e.alerts.VoltageSamples(ctx, upsName)
	if err != nil {
		return "", fmt.Errorf("failed to read voltage samples: %w", err)
	}
	if len(samples) == 0 {
		return "", nil
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	avg := sum / float64(len(samples))

	if avg > voltageDeviationThresholdPct && len(samples) >= voltageMinSamples {
		return fmt.Sprintf("High average voltage deviation: %.1f%% over %d samples", avg, len(samples)), nil
	}
	return "", nil
}
