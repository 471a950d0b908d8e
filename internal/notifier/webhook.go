package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookPayload Webhook 通道的请求体
type WebhookPayload struct {
	UPS      string   `json:"ups"`
	Messages []string `json:"messages"`
	Ts       int64    `json:"ts"`
}

// WebhookSink HTTP Webhook 告警通道，向固定地址 POST JSON
type WebhookSink struct {
	url        string
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewWebhookSink 创建 Webhook 告警通道
func NewWebhookSink(url string, logger *zap.Logger) *WebhookSink {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookSink{
		url:        url,
		httpClient: client,
		logger:     logger,
	}
}

// Name 通道名称
func (s *WebhookSink) Name() string {
	return "webhook"
}

// Send 投递一批告警消息
func (s *WebhookSink) Send(ctx context.Context, upsName string, messages []string) error {
	payload := WebhookPayload{
		UPS:      upsName,
		Messages: messages,
		Ts:       time.Now().Unix(),
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(s.url)

	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}
