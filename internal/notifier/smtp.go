package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"wisefido-power/internal/models"

	"go.uber.org/zap"
)

const smtpDialTimeout = 30 * time.Second

// SMTPConfigSource 提供当前生效的 SMTP 投递配置（来自机群配置文档）
type SMTPConfigSource interface {
	GetSMTP(ctx context.Context) (*models.SMTPConfig, error)
}

// SMTPSink 邮件告警通道
// 每次投递时重新读取 SMTP 配置，配置热更新后无需重启
type SMTPSink struct {
	source SMTPConfigSource
	logger *zap.Logger
}

// NewSMTPSink 创建邮件告警通道
func NewSMTPSink(source SMTPConfigSource, logger *zap.Logger) *SMTPSink {
	return &SMTPSink{
		source: source,
		logger: logger,
	}
}

// Name 通道名称
func (s *SMTPSink) Name() string {
	return "smtp"
}

// Send 把一批告警合并为一封邮件发出
// SMTP 未配置或收件人为空时静默跳过
func (s *SMTPSink) Send(ctx context.Context, upsName string, messages []string) error {
	cfg, err := s.source.GetSMTP(ctx)
	if err != nil {
		return fmt.Errorf("failed to load smtp config: %w", err)
	}
	if cfg == nil || cfg.Host == "" {
		s.logger.Debug("SMTP not configured, skipping email delivery",
			zap.String("ups_name", upsName))
		return nil
	}
	if len(cfg.ToAddrs) == 0 {
		s.logger.Debug("SMTP has no recipients, skipping email delivery",
			zap.String("ups_name", upsName))
		return nil
	}

	password := cfg.Password
	if password == "" {
		password = os.Getenv("SMTP_PASSWORD")
	}

	msg := buildMailMessage(cfg, upsName, messages)
	return s.deliver(cfg, password, msg)
}

// buildMailMessage 组装 RFC 5322 邮件正文，告警消息按行拼接
func buildMailMessage(cfg *models.SMTPConfig, upsName string, messages []string) []byte {
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "[UPS]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", senderAddr(cfg))
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(cfg.ToAddrs, ", "))
	fmt.Fprintf(&b, "Subject: %s %s alert\r\n", prefix, upsName)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.Join(messages, "\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// senderAddr 发件地址：from_addr 优先，其次 username，最后兜底占位地址
func senderAddr(cfg *models.SMTPConfig) string {
	if cfg.FromAddr != "" {
		return cfg.FromAddr
	}
	if cfg.Username != "" {
		return cfg.Username
	}
	return "ups@example"
}

func (s *SMTPSink) deliver(cfg *models.SMTPConfig, password string, msg []byte) error {
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	var client *smtp.Client
	if cfg.UseSSL {
		// 隐式TLS（SMTPS，一般为465端口）
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.Host})
		if err != nil {
			return fmt.Errorf("failed to dial smtp server over tls: %w", err)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create smtp client: %w", err)
		}
	} else {
		conn, err := dialer.Dial("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to dial smtp server: %w", err)
		}
		client, err = smtp.NewClient(conn, cfg.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create smtp client: %w", err)
		}
		if cfg.UseTLS {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				client.Close()
				return fmt.Errorf("failed to start tls: %w", err)
			}
		}
	}
	defer client.Close()

	if cfg.Username != "" && password != "" {
		auth := smtp.PlainAuth("", cfg.Username, password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := client.Mail(senderAddr(cfg)); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range cfg.ToAddrs {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish message: %w", err)
	}

	return client.Quit()
}
