package poller

import (
	"fmt"
	"math"

	"wisefido-power/internal/models"
)

// DeriveMetrics 在原始报告副本上补写派生指标，并用配置名称覆盖 UPSNAME
// 派生值只依赖本周期报告：
//   - DERIVED_WATTS = NOMPOWER × LOADPCT / 100（NOMPOWER 可解析时写入，
//     LOADPCT 不可解析按 0 计）
//   - HEADROOM_PCT = max(0, 100 − LOADPCT)（LOADPCT 可解析时写入）
//   - RUNTIME_MINUTES = TIMELEFT 的首段数值（可解析时写入）
func DeriveMetrics(report models.Report, upsName string) models.Report {
	out := report.Clone()

	loadPct, loadOK := models.ParseLeadingFloat(out[models.FieldLoadPct])

	if nomPower, ok := models.ParseLeadingFloat(out[models.FieldNomPower]); ok {
		load := 0.0
		if loadOK {
			load = loadPct
		}
		out[models.FieldDerivedWatts] = fmt.Sprintf("%.0f", nomPower*load/100.0)
	}

	if loadOK {
		out[models.FieldHeadroomPct] = fmt.Sprintf("%.0f", math.Max(0, 100-loadPct))
	}

	if timeLeft, ok := models.ParseLeadingFloat(out[models.FieldTimeLeft]); ok {
		out[models.FieldRuntimeMinutes] = fmt.Sprintf("%.1f", timeLeft)
	}

	out[models.FieldUPSName] = upsName
	return out
}
