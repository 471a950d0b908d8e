package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"wisefido-power/internal/aggregator"
	"wisefido-power/internal/apcaccess"
	"wisefido-power/internal/config"
	"wisefido-power/internal/database"
	"wisefido-power/internal/detector"
	"wisefido-power/internal/evaluator"
	"wisefido-power/internal/mqtt"
	"wisefido-power/internal/notifier"
	"wisefido-power/internal/poller"
	redisclient "wisefido-power/internal/redis"
	"wisefido-power/internal/repository"
	"wisefido-power/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// MonitorService 电源监控服务（整合各层）
type MonitorService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client

	// 各层组件
	provider   *config.FleetProvider
	metrics    *store.MetricStore
	events     *store.EventStore
	energy     *store.EnergyStore
	alerts     *store.AlertStateStore
	detector   *detector.EventDetector
	aggregator *aggregator.EnergyAggregator
	notifier   *notifier.Notifier
	archive    *repository.AlertEventsRepository
	evaluator  *evaluator.AlertEvaluator
	supervisor *poller.Supervisor
}

// NewMonitorService 创建电源监控服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 1. 连接 Redis
	redisClient := redisclient.NewRedisClient(&cfg.Redis)
	ctx := context.Background()
	if err := redisclient.Ping(ctx, redisClient); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 2. 连接数据库（仅在启用告警归档时）
	var db *sql.DB
	var archive *repository.AlertEventsRepository
	if cfg.Archive.Enabled {
		var err error
		db, err = database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		archive = repository.NewAlertEventsRepository(db, logger)
	}

	// 3. 连接 MQTT（仅在启用MQTT投递时）
	var mqttClient *mqtt.Client
	if cfg.Notify.MQTTEnabled {
		var err error
		mqttClient, err = mqtt.NewClient(&cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("failed to connect mqtt broker: %w", err)
		}
	}

	// 4. 创建存储层与配置提供者
	metrics := store.NewMetricStore(redisClient, logger)
	events := store.NewEventStore(redisClient, logger)
	energy := store.NewEnergyStore(redisClient, logger)
	alerts := store.NewAlertStateStore(redisClient, logger)
	provider := config.NewFleetProvider(redisClient, cfg.Monitor.LegacyConfigPath, logger)

	// 5. 创建投递通道
	var sinks []notifier.Sink
	if cfg.Notify.SMTPEnabled {
		sinks = append(sinks, notifier.NewSMTPSink(provider, logger))
	}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notifier.NewWebhookSink(cfg.Notify.WebhookURL, logger))
	}
	if mqttClient != nil {
		sinks = append(sinks, notifier.NewMQTTSink(mqttClient, cfg.Notify.MQTTTopicPrefix, logger))
	}
	alertNotifier := notifier.NewNotifier(logger, sinks...)

	// 6. 创建处理层
	eventDetector := detector.NewEventDetector(events, logger)
	energyAggregator := aggregator.NewEnergyAggregator(energy, logger)
	alertEvaluator := evaluator.NewAlertEvaluator(alerts, events, alertNotifier, archive, logger)

	// 7. 创建采集客户端与监督器
	source := apcaccess.NewClient(
		cfg.Monitor.APCAccessBin,
		time.Duration(cfg.Monitor.FetchTimeoutSeconds)*time.Second,
		logger,
	)
	supervisor := poller.NewSupervisor(
		provider,
		source,
		eventDetector,
		energyAggregator,
		metrics,
		alertEvaluator,
		time.Duration(cfg.Monitor.WatchIntervalSeconds)*time.Second,
		time.Duration(cfg.Monitor.PruneIntervalSeconds)*time.Second,
		logger,
	)

	return &MonitorService{
		config:      cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		provider:    provider,
		metrics:     metrics,
		events:      events,
		energy:      energy,
		alerts:      alerts,
		detector:    eventDetector,
		aggregator:  energyAggregator,
		notifier:    alertNotifier,
		archive:     archive,
		evaluator:   alertEvaluator,
		supervisor:  supervisor,
	}, nil
}

// Start 启动服务并阻塞运行，直到 ctx 取消或发生致命错误
// 初始机群配置不可读时启动失败
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting power monitor service",
		zap.Int("sink_count", s.notifier.SinkCount()),
		zap.Bool("archive_enabled", s.archive != nil),
		zap.Int("watch_interval_seconds", s.config.Monitor.WatchIntervalSeconds),
	)
	return s.supervisor.Run(ctx)
}

// Stop 停止服务并释放外部连接
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping power monitor service")

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Failed to close database",
				zap.Error(err),
			)
		}
	}
	if err := redisclient.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}
	return nil
}

// ExportEnergyReport 导出整个机群的能耗报表（xlsx）到指定路径
func (s *MonitorService) ExportEnergyReport(ctx context.Context, path string, days int) error {
	cfg, err := s.provider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load fleet config: %w", err)
	}

	names := make([]string, 0, len(cfg.UPS))
	for _, ups := range cfg.UPS {
		names = append(names, ups.Name)
	}

	data, err := s.energy.BuildEnergyWorkbook(ctx, names, days, time.Now())
	if err != nil {
		return fmt.Errorf("failed to build energy workbook: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write energy report: %w", err)
	}

	s.logger.Info("Energy report exported",
		zap.String("path", path),
		zap.Int("ups_count", len(names)),
		zap.Int("days", days),
	)
	return nil
}
