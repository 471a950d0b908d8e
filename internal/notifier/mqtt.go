package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-power/internal/mqtt"

	"go.uber.org/zap"
)

// MQTTSink MQTT 告警通道，按 UPS 名称发布到 <prefix>/<ups_name>
type MQTTSink struct {
	client      *mqtt.Client
	topicPrefix string
	logger      *zap.Logger
}

// NewMQTTSink 创建 MQTT 告警通道
func NewMQTTSink(client *mqtt.Client, topicPrefix string, logger *zap.Logger) *MQTTSink {
	return &MQTTSink{
		client:      client,
		topicPrefix: topicPrefix,
		logger:      logger,
	}
}

// Name 通道名称
func (s *MQTTSink) Name() string {
	return "mqtt"
}

// Send 投递一批告警消息
func (s *MQTTSink) Send(ctx context.Context, upsName string, messages []string) error {
	payload, err := json.Marshal(WebhookPayload{
		UPS:      upsName,
		Messages: messages,
		Ts:       time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	topic := s.topicPrefix + "/" + upsName
	// QoS 1：告警消息至少送达一次
	if err := s.client.Publish(topic, 1, false, payload); err != nil {
		return fmt.Errorf("failed to publish alerts: %w", err)
	}

	return nil
}
