package apcaccess

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"wisefido-power/internal/models"

	"go.uber.org/zap"
)

// StatusError apcaccess调用失败（无法启动、退出码非零、超时或无输出）
type StatusError struct {
	ExitCode   int // 进程未能启动时为 -1
	Diagnostic string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apcaccess exit %d: %s", e.ExitCode, e.Diagnostic)
}

// Client 通过apcaccess CLI采集UPS状态（NIS协议由外部二进制处理）
type Client struct {
	bin     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient 创建状态采集客户端
// bin 为空时使用 "apcaccess"，timeout <= 0 时使用 10秒
func NewClient(bin string, timeout time.Duration, logger *zap.Logger) *Client {
	if bin == "" {
		bin = "apcaccess"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		bin:     bin,
		timeout: timeout,
		logger:  logger,
	}
}

// FetchStatus 执行 `apcaccess -h host:port status` 并解析键值输出
// 每次调用带独立超时，单台设备阻塞不会拖住自身以外的轮询周期
func (c *Client) FetchStatus(ctx context.Context, host string, port int) (models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", host, port)
	cmd := exec.CommandContext(ctx, c.bin, "-h", addr, "status")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		if ctx.Err() == context.DeadlineExceeded {
			diag = fmt.Sprintf("timeout after %s: %s", c.timeout, diag)
		}
		c.logger.Debug("apcaccess invocation failed",
			zap.String("addr", addr),
			zap.Int("exit_code", exitCode),
			zap.String("diagnostic", diag))
		return nil, &StatusError{ExitCode: exitCode, Diagnostic: diag}
	}

	report := ParseStatusOutput(stdout.String())
	if len(report) == 0 {
		return nil, &StatusError{ExitCode: 0, Diagnostic: "no data returned"}
	}
	return report, nil
}

// ParseStatusOutput 按行解析 "KEY : value" 格式的apcaccess输出
// 无冒号的行跳过；值中再出现冒号时原样保留（如日期字段）
func ParseStatusOutput(text string) models.Report {
	report := make(models.Report)
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, ":") {
			continue
		}
		kv := strings.SplitN(line, ":", 2)
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		report[key] = val
	}

	// 字段别名归一化
	if _, ok := report[models.FieldUPSName]; !ok {
		if name, ok := report[models.FieldName]; ok {
			report[models.FieldUPSName] = name
		}
	}
	if model, ok := report[models.FieldModel]; ok {
		report[models.FieldModelName] = model
	}
	return report
}
