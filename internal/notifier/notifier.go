package notifier

import (
	"context"

	"go.uber.org/zap"
)

// Sink 单一告警投递通道（邮件、Webhook、MQTT）
type Sink interface {
	Name() string
	Send(ctx context.Context, upsName string, messages []string) error
}

// Notifier 告警扇出投递器
// 投递是尽力而为：单个通道失败只记录日志，不重试、不影响其他通道，
// 也不回滚已写入的冷却与最近告警记录
type Notifier struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewNotifier 创建告警投递器，sinks 可以为空（此时投递为空操作）
func NewNotifier(logger *zap.Logger, sinks ...Sink) *Notifier {
	return &Notifier{
		sinks:  sinks,
		logger: logger,
	}
}

// SinkCount 返回已注册的通道数量
func (n *Notifier) SinkCount() int {
	return len(n.sinks)
}

// Send 将一批告警消息投递到所有通道
func (n *Notifier) Send(ctx context.Context, upsName string, messages []string) {
	if len(messages) == 0 {
		return
	}

	for _, sink := range n.sinks {
		if err := sink.Send(ctx, upsName, messages); err != nil {
			n.logger.Error("Failed to deliver alerts",
				zap.String("sink", sink.Name()),
				zap.String("ups_name", upsName),
				zap.Int("message_count", len(messages)),
				zap.Error(err),
			)
			continue
		}
		n.logger.Info("Alerts delivered",
			zap.String("sink", sink.Name()),
			zap.String("ups_name", upsName),
			zap.Int("message_count", len(messages)),
		)
	}
}
