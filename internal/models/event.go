package models

import (
	"strconv"
	"strings"
	"time"
)

// 事件类型
const (
	EventKindStatus = "STATUS" // 运行状态变化
	EventKindXfer   = "XFER"   // 最近一次切换原因变化
)

// UPSEvent 检测到的离散状态变化事件
type UPSEvent struct {
	Ts      int64  `json:"ts"`
	UPSName string `json:"ups_name"`
	Kind    string `json:"kind"` // STATUS 或 XFER
	Detail  string `json:"detail"`
}

// Encode 编码为事件列表的存储格式 "ts|KIND|detail"
func (e *UPSEvent) Encode() string {
	return strconv.FormatInt(e.Ts, 10) + "|" + e.Kind + "|" + e.Detail
}

// ParseUPSEvent 解析事件列表中的一条记录，格式不合法时返回 false
func ParseUPSEvent(upsName, raw string) (*UPSEvent, bool) {
	parts := strings.SplitN(raw, "|", 3)
	if len(parts) < 3 {
		return nil, false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, false
	}
	return &UPSEvent{
		Ts:      ts,
		UPSName: upsName,
		Kind:    parts[1],
		Detail:  parts[2],
	}, true
}

// AlertEvent 已投递告警事件（对应 power_alert_events 表）
type AlertEvent struct {
	EventID     string    `json:"event_id" db:"event_id"`
	UPSName     string    `json:"ups_name" db:"ups_name"`
	Message     string    `json:"message" db:"message"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
