package models

// apcaccess 状态字段名（本服务读取或写入的部分）
const (
	FieldStatus   = "STATUS"
	FieldLoadPct  = "LOADPCT"
	FieldBCharge  = "BCHARGE"
	FieldTimeLeft = "TIMELEFT"
	FieldLineV    = "LINEV"
	FieldNomInV   = "NOMINV"
	FieldNomInput = "NOMINPUT"
	FieldNomPower = "NOMPOWER"
	FieldLastXfer = "LASTXFER"
	FieldUPSName  = "UPSNAME"
	FieldName     = "NAME"
	FieldModel    = "MODEL"

	// 采集后补写的别名与派生字段
	FieldModelName      = "MODEL_NAME"
	FieldDerivedWatts   = "DERIVED_WATTS"
	FieldHeadroomPct    = "HEADROOM_PCT"
	FieldRuntimeMinutes = "RUNTIME_MINUTES"

	// 快照哈希中的采集时间戳字段
	FieldSnapshotTs = "_ts"
)

// Report 一次apcaccess采集解析出的键值集合；数值字段可能带单位后缀（如 "15.0 Minutes"）
type Report map[string]string

// Clone 复制一份Report
func (r Report) Clone() Report {
	out := make(Report, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// HistoryEntry 历史序列中的一条记录（ups:hist:<name> 列表元素）
type HistoryEntry struct {
	Ts   int64  `json:"ts"`
	Data Report `json:"data"`
}

// PowerPoint 每分钟平均功率点（ups:watts:permin:<name> 列表元素）
type PowerPoint struct {
	Minute   string  `json:"minute"` // YYYYMMDDHHMM（本地时间）
	AvgWatts float64 `json:"avg_watts"`
}

// RecentAlert 最近一次已投递的告警（健康报告用）
type RecentAlert struct {
	Ts      int64  `json:"ts"`
	Message string `json:"message"`
}

// DailyEnergy 某一自然日的累计能耗
type DailyEnergy struct {
	Day string  `json:"day"` // YYYYMMDD（本地时间）
	KWh float64 `json:"kwh"`
}
