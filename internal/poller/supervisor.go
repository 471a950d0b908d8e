package poller

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wisefido-power/internal/aggregator"
	"wisefido-power/internal/detector"
	"wisefido-power/internal/evaluator"
	"wisefido-power/internal/models"
	"wisefido-power/internal/store"

	"go.uber.org/zap"
)

// FleetSource 机群配置来源：监督器用它发现设备集合的变化
type FleetSource interface {
	UIConfigSource
	Load(ctx context.Context) (*models.FleetConfig, error)
	InvalidateCache()
}

// pollerHandle 运行中轮询器的句柄
type pollerHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor 轮询任务监督器：保持 设备名 → 轮询器 的映射与当前配置一致，
// 并运行独立的历史清理循环
// 生命周期只看设备名：host/port/interval 的就地修改不重启已运行的轮询器
type Supervisor struct {
	fleet      FleetSource
	source     StatusSource
	detector   *detector.EventDetector
	aggregator *aggregator.EnergyAggregator
	metrics    *store.MetricStore
	evaluator  *evaluator.AlertEvaluator
	logger     *zap.Logger

	watchInterval time.Duration
	pruneInterval time.Duration

	mu             sync.Mutex
	pollers        map[string]*pollerHandle
	fingerprint    string
	hasFingerprint bool
}

// NewSupervisor 创建监督器
// watchInterval <= 0 时使用 15秒，pruneInterval <= 0 时使用 1小时
func NewSupervisor(
	fleet FleetSource,
	source StatusSource,
	eventDetector *detector.EventDetector,
	energyAggregator *aggregator.EnergyAggregator,
	metrics *store.MetricStore,
	alertEvaluator *evaluator.AlertEvaluator,
	watchInterval time.Duration,
	pruneInterval time.Duration,
	logger *zap.Logger,
) *Supervisor {
	if watchInterval <= 0 {
		watchInterval = 15 * time.Second
	}
	if pruneInterval <= 0 {
		pruneInterval = time.Hour
	}
	return &Supervisor{
		fleet:         fleet,
		source:        source,
		detector:      eventDetector,
		aggregator:    energyAggregator,
		metrics:       metrics,
		evaluator:     alertEvaluator,
		logger:        logger,
		watchInterval: watchInterval,
		pruneInterval: pruneInterval,
		pollers:       make(map[string]*pollerHandle),
	}
}

// Run 阻塞运行监督循环直到 ctx 取消
// 启动时立即对账一次，初始配置不可读视为致命错误；
// 之后配置临时不可读只记录日志，现有轮询器保持运行
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.reconcile(ctx); err != nil {
		return fmt.Errorf("failed to load fleet config: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.watchLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.pruneLoop(ctx)
	}()
	wg.Wait()

	s.stopAll()
	s.logger.Info("Supervisor stopped")
	return nil
}

// PollerCount 当前运行中的轮询器数量
func (s *Supervisor) PollerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pollers)
}

// watchLoop 定期重读配置并对账
func (s *Supervisor) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(s.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.reconcile(ctx); err != nil {
				s.logger.Error("Failed to reconcile pollers", zap.Error(err))
			}
		}
	}
}

// pruneLoop 定期清理超出保留窗口的历史记录，与各设备周期解耦
func (s *Supervisor) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.metrics.PruneOld(ctx); err != nil {
				s.logger.Error("Failed to prune history", zap.Error(err))
			}
		}
	}
}

// reconcile 对账一次：配置指纹未变化时直接返回，
// 否则停掉已移除设备的轮询器、为新增设备启动轮询器
func (s *Supervisor) reconcile(ctx context.Context) error {
	s.fleet.InvalidateCache()
	cfg, err := s.fleet.Load(ctx)
	if err != nil {
		return err
	}
	fp := fleetFingerprint(cfg.UPS)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasFingerprint && fp == s.fingerprint {
		return nil
	}
	s.fingerprint = fp
	s.hasFingerprint = true

	desired := make(map[string]models.UPSConfig, len(cfg.UPS))
	for _, ups := range cfg.UPS {
		desired[ups.Name] = ups
	}

	for name, handle := range s.pollers {
		if _, ok := desired[name]; ok {
			continue
		}
		handle.cancel()
		<-handle.done
		delete(s.pollers, name)
		s.logger.Info("Stopped UPS poller", zap.String("ups", name))
	}

	for _, ups := range cfg.UPS {
		if _, ok := s.pollers[ups.Name]; ok {
			continue
		}
		s.startPollerLocked(ctx, ups)
	}
	return nil
}

// startPollerLocked 启动一台设备的轮询器，调用方须持有 s.mu
func (s *Supervisor) startPollerLocked(ctx context.Context, ups models.UPSConfig) {
	p := NewUPSPoller(ups, s.source, s.detector, s.aggregator, s.metrics, s.evaluator, s.fleet, s.logger)

	pollerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(pollerCtx)
	}()

	s.pollers[ups.Name] = &pollerHandle{cancel: cancel, done: done}
	s.logger.Info("Started UPS poller",
		zap.String("ups", ups.Name),
		zap.String("host", ups.Host),
		zap.Int("port", ups.Port),
		zap.Int("interval_seconds", ups.IntervalSeconds),
	)
}

// stopAll 停掉全部轮询器并等待退出
func (s *Supervisor) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, handle := range s.pollers {
		handle.cancel()
		<-handle.done
		delete(s.pollers, name)
		s.logger.Info("Stopped UPS poller", zap.String("ups", name))
	}
}

// fleetFingerprint 设备配置元组 (name, host, port, interval) 的有序指纹，
// 用于检测需要对账的配置变化
func fleetFingerprint(ups []models.UPSConfig) string {
	parts := make([]string, 0, len(ups))
	for _, u := range ups {
		parts = append(parts, fmt.Sprintf("%s|%s|%d|%d", u.Name, u.Host, u.Port, u.IntervalSeconds))
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
