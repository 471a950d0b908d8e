package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"wisefido-power/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// 机群配置文档的存储键
const fleetConfigKey = "ups:config:json"

// fleetConfigDoc 机群配置的序列化形态；ui 缺失时回退到默认开关
type fleetConfigDoc struct {
	UPS  []models.UPSConfig `json:"ups" yaml:"ups"`
	SMTP *models.SMTPConfig `json:"smtp,omitempty" yaml:"smtp"`
	UI   *models.UIConfig   `json:"ui,omitempty" yaml:"ui"`
}

// UPSConfigUpdate UPS配置的部分更新，nil 字段保持原值
type UPSConfigUpdate struct {
	Name                   *string  `json:"name,omitempty"`
	Host                   *string  `json:"host,omitempty"`
	Port                   *int     `json:"port,omitempty"`
	IntervalSeconds        *int     `json:"interval_seconds,omitempty"`
	AlertLoadPctHigh       *float64 `json:"alert_loadpct_high,omitempty"`
	AlertBChargeLow        *float64 `json:"alert_bcharge_low,omitempty"`
	AlertOnBattery         *bool    `json:"alert_on_battery,omitempty"`
	AlertRuntimeLowMinutes *float64 `json:"alert_runtime_low_minutes,omitempty"`
}

// ConnectivityResult TCP连通性测试结果
type ConnectivityResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// FleetProvider Redis支撑的机群配置提供者
// 持有已验证配置的内存缓存；每次成功写入后失效缓存并递增版本号，
// 下一次读取重新从Redis加载
type FleetProvider struct {
	redisClient      *redis.Client
	legacyConfigPath string
	logger           *zap.Logger

	mu      sync.RWMutex
	cached  *models.FleetConfig
	version int64
}

// NewFleetProvider 创建机群配置提供者
// legacyConfigPath 指向旧版YAML配置，仅在Redis中尚无配置文档时导入一次
func NewFleetProvider(redisClient *redis.Client, legacyConfigPath string, logger *zap.Logger) *FleetProvider {
	return &FleetProvider{
		redisClient:      redisClient,
		legacyConfigPath: legacyConfigPath,
		logger:           logger,
	}
}

// Load 返回当前机群配置的独立副本
// 优先内存缓存；缓存失效时从Redis读取；Redis为空时尝试导入旧版YAML，
// 仍为空则初始化一份空配置并持久化
func (p *FleetProvider) Load(ctx context.Context) (*models.FleetConfig, error) {
	p.mu.RLock()
	if p.cached != nil {
		cfg := p.cached.Clone()
		p.mu.RUnlock()
		return cfg, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil {
		return p.cached.Clone(), nil
	}

	cfg, err := p.loadFromRedis(ctx)
	if err != nil {
		return nil, err
	}
	p.cached = cfg
	return cfg.Clone(), nil
}

// Save 校验并写入整份机群配置，成功后失效缓存并递增版本号
func (p *FleetProvider) Save(ctx context.Context, cfg *models.FleetConfig) error {
	for i := range cfg.UPS {
		cfg.UPS[i].Normalize()
	}
	if err := ValidateFleetConfig(cfg); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.persist(ctx, cfg); err != nil {
		return err
	}
	p.cached = nil
	p.version++

	p.logger.Info("Fleet configuration saved",
		zap.Int("ups_count", len(cfg.UPS)),
		zap.Int64("version", p.version),
	)
	return nil
}

// Version 返回配置版本号，每次成功写入递增一次
func (p *FleetProvider) Version() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// InvalidateCache 手工失效缓存，下一次 Load 重新读取Redis
func (p *FleetProvider) InvalidateCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = nil
}

// ListUPS 返回全部UPS配置
func (p *FleetProvider) ListUPS(ctx context.Context) ([]models.UPSConfig, error) {
	cfg, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.UPS, nil
}

// GetUPS 按名称返回UPS配置，未找到时返回nil
func (p *FleetProvider) GetUPS(ctx context.Context, name string) (*models.UPSConfig, error) {
	cfg, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.FindUPS(name), nil
}

// AddUPS 新增一台UPS配置，名称重复时报错
func (p *FleetProvider) AddUPS(ctx context.Context, ups models.UPSConfig) error {
	cfg, err := p.Load(ctx)
	if err != nil {
		return err
	}
	if cfg.FindUPS(ups.Name) != nil {
		return fmt.Errorf("UPS with name '%s' already exists", ups.Name)
	}

	ups.Normalize()
	cfg.UPS = append(cfg.UPS, ups)
	return p.Save(ctx, cfg)
}

// UpdateUPS 按名称部分更新UPS配置；返回是否找到该UPS
func (p *FleetProvider) UpdateUPS(ctx context.Context, name string, updates UPSConfigUpdate) (bool, error) {
	cfg, err := p.Load(ctx)
	if err != nil {
		return false, err
	}

	ups := cfg.FindUPS(name)
	if ups == nil {
		return false, nil
	}

	if updates.Name != nil {
		ups.Name = *updates.Name
	}
	if updates.Host != nil {
		ups.Host = *updates.Host
	}
	if updates.Port != nil {
		ups.Port = *updates.Port
	}
	if updates.IntervalSeconds != nil {
		ups.IntervalSeconds = *updates.IntervalSeconds
	}
	if updates.AlertLoadPctHigh != nil {
		ups.AlertLoadPctHigh = updates.AlertLoadPctHigh
	}
	if updates.AlertBChargeLow != nil {
		ups.AlertBChargeLow = updates.AlertBChargeLow
	}
	if updates.AlertOnBattery != nil {
		ups.AlertOnBattery = *updates.AlertOnBattery
	}
	if updates.AlertRuntimeLowMinutes != nil {
		ups.AlertRuntimeLowMinutes = updates.AlertRuntimeLowMinutes
	}

	if err := p.Save(ctx, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteUPS 按名称删除UPS配置；返回是否找到该UPS
func (p *FleetProvider) DeleteUPS(ctx context.Context, name string) (bool, error) {
	cfg, err := p.Load(ctx)
	if err != nil {
		return false, err
	}

	kept := cfg.UPS[:0]
	for _, ups := range cfg.UPS {
		if ups.Name != name {
			kept = append(kept, ups)
		}
	}
	if len(kept) == len(cfg.UPS) {
		return false, nil
	}
	cfg.UPS = kept

	if err := p.Save(ctx, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// GetSMTP 返回SMTP投递配置，未配置时返回nil
func (p *FleetProvider) GetSMTP(ctx context.Context) (*models.SMTPConfig, error) {
	cfg, err := p.Load(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.SMTP, nil
}

// UpdateSMTP 更新SMTP投递配置，传 nil 表示清除
func (p *FleetProvider) UpdateSMTP(ctx context.Context, smtp *models.SMTPConfig) error {
	cfg, err := p.Load(ctx)
	if err != nil {
		return err
	}
	cfg.SMTP = smtp
	return p.Save(ctx, cfg)
}

// GetUI 返回面板功能开关
func (p *FleetProvider) GetUI(ctx context.Context) (models.UIConfig, error) {
	cfg, err := p.Load(ctx)
	if err != nil {
		return models.UIConfig{}, err
	}
	return cfg.UI, nil
}

// UpdateUI 更新面板功能开关
func (p *FleetProvider) UpdateUI(ctx context.Context, ui models.UIConfig) error {
	cfg, err := p.Load(ctx)
	if err != nil {
		return err
	}
	cfg.UI = ui
	return p.Save(ctx, cfg)
}

// ValidateUPSConnection 仅做TCP端口连通性测试，不执行状态协议
func (p *FleetProvider) ValidateUPSConnection(ctx context.Context, ups *models.UPSConfig, timeout time.Duration) *ConnectivityResult {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(ups.Host, strconv.Itoa(ups.Port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectivityResult{
			Success: false,
			Message: fmt.Sprintf("TCP connectivity failed: %v", err),
		}
	}
	conn.Close()

	return &ConnectivityResult{
		Success: true,
		Message: "TCP port reachable",
	}
}

func (p *FleetProvider) loadFromRedis(ctx context.Context) (*models.FleetConfig, error) {
	raw, err := p.redisClient.Get(ctx, fleetConfigKey).Result()
	if err == nil {
		var doc fleetConfigDoc
		if jsonErr := json.Unmarshal([]byte(raw), &doc); jsonErr != nil {
			return nil, fmt.Errorf("failed to parse fleet config: %w", jsonErr)
		}
		return docToFleetConfig(&doc), nil
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("failed to read fleet config: %w", err)
	}

	// 键不存在：尝试导入旧版YAML
	if legacy := p.loadLegacyYAML(); legacy != nil {
		if err := p.persist(ctx, legacy); err != nil {
			return nil, err
		}
		p.logger.Info("Imported legacy YAML config into Redis",
			zap.String("path", p.legacyConfigPath),
			zap.Int("ups_count", len(legacy.UPS)),
		)
		return legacy, nil
	}

	// 无任何来源：初始化空配置
	empty := &models.FleetConfig{
		UPS: []models.UPSConfig{},
		UI:  models.DefaultUIConfig(),
	}
	if err := p.persist(ctx, empty); err != nil {
		return nil, err
	}
	p.logger.Info("Initialized empty fleet configuration")
	return empty, nil
}

func (p *FleetProvider) loadLegacyYAML() *models.FleetConfig {
	if p.legacyConfigPath == "" {
		return nil
	}
	raw, err := os.ReadFile(p.legacyConfigPath)
	if err != nil {
		return nil
	}

	var doc fleetConfigDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		p.logger.Warn("Failed to import legacy YAML config",
			zap.String("path", p.legacyConfigPath),
			zap.Error(err),
		)
		return nil
	}
	return docToFleetConfig(&doc)
}

func (p *FleetProvider) persist(ctx context.Context, cfg *models.FleetConfig) error {
	doc := fleetConfigDoc{
		UPS:  cfg.UPS,
		SMTP: cfg.SMTP,
		UI:   &cfg.UI,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal fleet config: %w", err)
	}
	if err := p.redisClient.Set(ctx, fleetConfigKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to write fleet config: %w", err)
	}
	return nil
}

func docToFleetConfig(doc *fleetConfigDoc) *models.FleetConfig {
	cfg := &models.FleetConfig{
		UPS:  doc.UPS,
		SMTP: doc.SMTP,
		UI:   models.DefaultUIConfig(),
	}
	if doc.UI != nil {
		cfg.UI = *doc.UI
	}
	if cfg.UPS == nil {
		cfg.UPS = []models.UPSConfig{}
	}
	for i := range cfg.UPS {
		cfg.UPS[i].Normalize()
	}
	return cfg
}

// ValidateFleetConfig 校验整份机群配置：每台UPS合法且名称唯一
func ValidateFleetConfig(cfg *models.FleetConfig) error {
	seen := make(map[string]bool, len(cfg.UPS))
	for i := range cfg.UPS {
		ups := &cfg.UPS[i]
		if err := ValidateUPSConfig(ups); err != nil {
			return err
		}
		if seen[ups.Name] {
			return fmt.Errorf("duplicate UPS name: %s", ups.Name)
		}
		seen[ups.Name] = true
	}
	return nil
}

// ValidateUPSConfig 校验单台UPS配置
func ValidateUPSConfig(ups *models.UPSConfig) error {
	if strings.TrimSpace(ups.Name) == "" {
		return fmt.Errorf("ups name is required")
	}
	if strings.TrimSpace(ups.Host) == "" {
		return fmt.Errorf("ups %s: host is required", ups.Name)
	}
	if ups.Port < 1 || ups.Port > 65535 {
		return fmt.Errorf("ups %s: port must be between 1 and 65535", ups.Name)
	}
	if ups.IntervalSeconds < 5 {
		return fmt.Errorf("ups %s: interval_seconds must be at least 5", ups.Name)
	}
	if ups.AlertLoadPctHigh != nil && *ups.AlertLoadPctHigh < 0 {
		return fmt.Errorf("ups %s: alert_loadpct_high must not be negative", ups.Name)
	}
	if ups.AlertBChargeLow != nil && *ups.AlertBChargeLow < 0 {
		return fmt.Errorf("ups %s: alert_bcharge_low must not be negative", ups.Name)
	}
	if ups.AlertRuntimeLowMinutes != nil && *ups.AlertRuntimeLowMinutes < 0 {
		return fmt.Errorf("ups %s: alert_runtime_low_minutes must not be negative", ups.Name)
	}
	return nil
}
