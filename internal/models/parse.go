package models

import (
	"strconv"
	"strings"
)

// ParseLeadingFloat 解析宽松数值字段的首个数值token，如 "15.0 Minutes" -> 15.0
// 字段缺失、为空或首token不是数字时返回 (0, false)
func ParseLeadingFloat(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
