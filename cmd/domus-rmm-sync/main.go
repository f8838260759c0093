package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"domus-rmm-sync/internal/config"
	"domus-rmm-sync/internal/database"
	"domus-rmm-sync/internal/logger"
	"domus-rmm-sync/internal/models"
	"domus-rmm-sync/internal/notifier"
	"domus-rmm-sync/internal/repository"
	"domus-rmm-sync/internal/rmm"
	syncer "domus-rmm-sync/internal/sync"
)

func main() {
	deviceID := flag.String("device", "", "sync only this device id")
	force := flag.Bool("force", false, "re-resolve remote bindings even when already bound")
	cleanup := flag.Bool("cleanup", false, "sweep resolved alerts past the retention window after the run")
	once := flag.Bool("once", false, "run a single sync cycle and exit")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "domus-rmm-sync")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	if cfg.RMM.BaseURL == "" {
		log.Fatal("RMM_BASE_URL environment variable is required")
	}

	// 3. 数据库连接
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database",
			zap.Error(err),
		)
	}
	defer db.Close()

	// 4. 事件发布器（按配置选择传输）
	notify, err := buildNotifier(cfg, log)
	if err != nil {
		log.Fatal("Failed to init notifier",
			zap.Error(err),
		)
	}
	defer notify.Close()

	// 5. 组装同步管线
	devicesRepo := repository.NewDevicesRepository(db, log)
	alertsRepo := repository.NewAlertsRepository(db, log)
	ownershipRepo := repository.NewOwnershipRepository(db, log)

	apiClient := rmm.NewClient(cfg.RMM.BaseURL, cfg.RMM.APIKey, cfg.RMM.Timeout, cfg.RMM.RetryCount, log)
	resolver := syncer.NewResolver(devicesRepo, cfg.Sync.FuzzyMatch, log)
	upserter := syncer.NewUpserter(alertsRepo, notify, log)
	deviceSyncer := syncer.NewDeviceSyncer(apiClient, devicesRepo, upserter, ownershipRepo, resolver, log)
	orchestrator := syncer.NewOrchestrator(
		devicesRepo,
		alertsRepo,
		deviceSyncer,
		apiClient,
		cfg.Sync.Workers,
		cfg.Sync.AutoCreate,
		cfg.Sync.RetentionDays,
		log,
	)

	opts := syncer.RunOptions{
		DeviceID: *deviceID,
		Force:    *force,
		Cleanup:  *cleanup,
	}

	// 6. 上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	// 7. 单次模式直接跑一轮，调度模式按间隔循环
	if *once || *deviceID != "" {
		if err := runOnce(ctx, orchestrator, opts, cfg.Sync.RunTimeout, log); err != nil {
			os.Exit(1)
		}
		return
	}

	log.Info("Starting scheduled sync",
		zap.Duration("interval", cfg.Sync.Interval),
	)

	ticker := time.NewTicker(cfg.Sync.Interval)
	defer ticker.Stop()

	// 启动时先跑一轮，不等第一个 tick
	if err := runOnce(ctx, orchestrator, opts, cfg.Sync.RunTimeout, log); err != nil {
		os.Exit(1)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Sync service stopped")
			return
		case <-ticker.C:
			if err := runOnce(ctx, orchestrator, opts, cfg.Sync.RunTimeout, log); err != nil {
				os.Exit(1)
			}
		}
	}
}

// runOnce 执行一轮同步。只有基础设施错误返回非 nil（对应非零退出码）；
// 部分设备失败已在 Summary 里体现，调度模式下留给下个周期重试
func runOnce(ctx context.Context, orchestrator *syncer.Orchestrator, opts syncer.RunOptions, timeout time.Duration, log *zap.Logger) error {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	summary, err := orchestrator.Run(runCtx, opts)
	if err != nil {
		if errors.Is(err, models.ErrInfrastructure) {
			log.Error("Sync run failed",
				zap.Error(err),
			)
			return err
		}
		log.Error("Sync run error",
			zap.Error(err),
		)
		return err
	}

	if summary.DevicesFailed > 0 {
		log.Warn("Sync run completed with device failures",
			zap.Int("devices_failed", summary.DevicesFailed),
		)
	}

	return nil
}

// buildNotifier 按 NOTIFY_TRANSPORT 选择事件传输
func buildNotifier(cfg *config.Config, log *zap.Logger) (notifier.Notifier, error) {
	switch cfg.Notify.Transport {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return notifier.NewRedisNotifier(client, cfg.Notify.Stream, log), nil
	case "mqtt":
		return notifier.NewMQTTNotifier(&cfg.MQTT, cfg.Notify.Topic, log)
	case "none":
		return &notifier.NopNotifier{}, nil
	default:
		return nil, fmt.Errorf("unknown notify transport: %s", cfg.Notify.Transport)
	}
}
