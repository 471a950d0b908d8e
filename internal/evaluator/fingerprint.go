package evaluator

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint 计算 (UPS名称, 告警消息) 的稳定指纹
// 作为冷却键的组成部分，同一消息在进程重启后仍映射到同一个键
func Fingerprint(upsName, message string) string {
	sum := sha256.Sum256([]byte(upsName + "\n" + message))
	return hex.EncodeToString(sum[:16])
}
