package evaluator

import (
	"fmt"
	"strings"

	"wisefido-power/internal/models"
)

// 运行状态文本包含任一关键字时视为电池供电
var onBatteryKeywords = []string{"ONBATT", "ON BATTERY"}

// evaluateThresholds 评估单台UPS的阈值规则，只依赖当前快照
// 每条规则独立可选：未配置阈值的规则直接跳过
func evaluateThresholds(cfg *models.UPSConfig, report models.Report) []string {
	var messages []string

	if cfg.AlertLoadPctHigh != nil {
		if loadPct, ok := models.ParseLeadingFloat(report[models.FieldLoadPct]); ok && loadPct >= *cfg.AlertLoadPctHigh {
			messages = append(messages, fmt.Sprintf(
				"Load percentage high: %.1f%% >= %.1f%%", loadPct, *cfg.AlertLoadPctHigh))
		}
	}

	if cfg.AlertBChargeLow != nil {
		if bcharge, ok := models.ParseLeadingFloat(report[models.FieldBCharge]); ok && bcharge <= *cfg.AlertBChargeLow {
			messages = append(messages, fmt.Sprintf(
				"Battery charge low: %.1f%% <= %.1f%%", bcharge, *cfg.AlertBChargeLow))
		}
	}

	if cfg.AlertOnBattery {
		status := strings.ToUpper(strings.TrimSpace(report[models.FieldStatus]))
		if isOnBatteryStatus(status) {
			messages = append(messages, fmt.Sprintf("UPS on battery: status=%s", status))
		}
	}

	if cfg.AlertRuntimeLowMinutes != nil {
		if runtime, ok := models.ParseLeadingFloat(report[models.FieldTimeLeft]); ok && runtime <= *cfg.AlertRuntimeLowMinutes {
			messages = append(messages, fmt.Sprintf(
				"Runtime low: %.1fm <= %.1fm", runtime, *cfg.AlertRuntimeLowMinutes))
		}
	}

	return messages
}

// isOnBatteryStatus 判断大写后的状态文本是否指示电池供电
func isOnBatteryStatus(status string) bool {
	for _, kw := range onBatteryKeywords {
		if strings.Contains(status, kw) {
			return true
		}
	}
	return false
}
