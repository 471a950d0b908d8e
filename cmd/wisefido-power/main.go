package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wisefido-power/internal/config"
	"wisefido-power/internal/logger"
	"wisefido-power/internal/service"

	"go.uber.org/zap"
)

func main() {
	exportPath := flag.String("export-energy-report", "", "export the fleet energy report (xlsx) to the given path and exit")
	exportDays := flag.Int("export-days", 3, "number of days to include in the energy report")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-power")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	monitorService, err := service.NewMonitorService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create monitor service",
			zap.Error(err),
		)
	}
	defer monitorService.Stop()

	// 4. 报表导出模式：执行一次后退出
	if *exportPath != "" {
		if err := monitorService.ExportEnergyReport(context.Background(), *exportPath, *exportDays); err != nil {
			log.Fatal("Failed to export energy report",
				zap.Error(err),
			)
		}
		return
	}

	// 5. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. 启动服务（在 goroutine 中）
	serviceErrChan := make(chan error, 1)
	go func() {
		serviceErrChan <- monitorService.Start(ctx)
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
		// 等待监督器停掉全部轮询器后再释放连接
		if err := <-serviceErrChan; err != nil {
			log.Error("Service exited with error",
				zap.Error(err),
			)
		}
	case err := <-serviceErrChan:
		log.Fatal("Service error",
			zap.Error(err),
		)
	}

	log.Info("Power monitor service stopped")
}
