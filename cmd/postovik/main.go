package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postovik/internal/api"
	"postovik/internal/config"
	"postovik/internal/database"
	"postovik/internal/domain"
	"postovik/internal/events"
	"postovik/internal/google"
	"postovik/internal/logging"
	"postovik/internal/metrics"
	"postovik/internal/models"
	"postovik/internal/notify"
	"postovik/internal/pipeline"
	"postovik/internal/repository"
	"postovik/internal/scheduler"
	"postovik/internal/watcher"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	presets, err := loadMappings(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := initGoogle(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	redisClient, statusRepo := initStatusRepository(ctx, cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	eventBus := events.NewEventBus()
	startMetrics(ctx, cfg, &logger)
	initNotifier(cfg, eventBus, &logger)

	processor := pipeline.NewProcessor(svc.sheets, svc.sheets, svc.slides, svc.gmail, &logger)
	if cfg.Exports.Enabled {
		processor.AttachReporter(pipeline.NewReporter(cfg.Exports, &logger))
	}

	sched := scheduler.NewScheduler(db, eventBus, scheduler.Options{
		Tick:           time.Duration(cfg.Scheduler.TickSeconds) * time.Second,
		Grace:          time.Duration(cfg.Scheduler.GraceMinutes) * time.Minute,
		HandlerTimeout: time.Duration(cfg.Scheduler.HandlerTimeoutMinutes) * time.Minute,
		HistoryKeep:    cfg.Scheduler.HistoryKeep,
		DueBatchLimit:  cfg.Scheduler.DueBatchLimit,
	}, &logger)

	watchService := watcher.NewService(
		db, statusRepo, svc.drive, processor, sched, eventBus,
		presets, cfg.Watch.DefaultIntervalMinutes, &logger,
	)

	sched.Register(models.KindOneShotEmail, scheduler.NewEmailHandler(svc.gmail, &logger))
	sched.Register(models.KindFolderWatch, watchService.HandleJob)

	// Восстанавливаем задачу мониторинга из сохранённого слота,
	// если её строка в jobs потерялась.
	if err := watchService.Resume(ctx); err != nil {
		logger.Warn().Err(err).Msg("folder watch resume failed")
	}

	sched.Start(ctx)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	var apiServer *api.HTTPServer
	if cfg.API.Enabled && cfg.API.HTTP.Enabled {
		apiServer = api.NewHTTPServer(&cfg.API, sched, watchService, processor, db, presets, &logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error().Err(err).Msg("API server error")
			}
		}()
	} else {
		logger.Info().Msg("HTTP API disabled in config")
	}

	logger.Info().Str("version", cfg.App.Version).Msg("postovik started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	// Сначала дожидаемся активных обработчиков, затем гасим HTTP.
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if apiServer != nil {
		_ = apiServer.Shutdown(shutdownCtx)
	}

	logger.Info().Msg("Shutdown complete.")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

// loadMappings читает именованные наборы соответствий колонок для
// конфигурации мониторинга. Отсутствие файла не ошибка: пресеты
// просто недоступны.
func loadMappings(cfg *config.Config, logger *zerolog.Logger) (map[string]map[string]string, error) {
	mappingsPath := os.Getenv("MAPPINGS_PATH")
	if mappingsPath == "" {
		mappingsPath = cfg.Watch.MappingsFile
	}
	if mappingsPath == "" {
		mappingsPath = "configs/mappings.yaml"
	}

	data, err := os.ReadFile(mappingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn().Str("mappings_path", mappingsPath).Msg("mappings file not found, presets disabled")
			return nil, nil
		}
		logger.Error().Err(err).Str("mappings_path", mappingsPath).Msg("read mappings")
		return nil, err
	}

	var mappingsConfig struct {
		Presets map[string]map[string]string `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &mappingsConfig); err != nil {
		logger.Error().Err(err).Str("mappings_path", mappingsPath).Msg("parse mappings")
		return nil, err
	}

	return mappingsConfig.Presets, nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return db, nil
}

type googleServices struct {
	sheets *google.SheetsService
	drive  *google.DriveService
	slides *google.SlidesRenderer
	gmail  *google.GmailSender
}

func initGoogle(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*googleServices, error) {
	if cfg.Google.CredentialsFile == "" || cfg.Google.SenderAddress == "" {
		logger.Error().Msg("Нехватает переменных для подключения к Гуглу")
		return nil, os.ErrInvalid
	}

	creds, err := google.NewCredentials(cfg.Google.CredentialsFile)
	if err != nil {
		logger.Error().Err(err).Msg("load google credentials")
		return nil, err
	}

	sheets, err := google.NewSheetsService(ctx, creds, logger)
	if err != nil {
		logger.Error().Err(err).Msg("init sheets service")
		return nil, err
	}

	drive, err := google.NewDriveService(ctx, creds, logger)
	if err != nil {
		logger.Error().Err(err).Msg("init drive service")
		return nil, err
	}

	slides, err := google.NewSlidesRenderer(ctx, creds, drive, logger)
	if err != nil {
		logger.Error().Err(err).Msg("init slides renderer")
		return nil, err
	}

	gmail, err := google.NewGmailSender(ctx, creds, drive, cfg.Google.SenderAddress, logger)
	if err != nil {
		logger.Error().Err(err).Msg("init gmail sender")
		return nil, err
	}

	logger.Info().Str("client_email", creds.ClientEmail()).Msg("Google services initialized")
	return &googleServices{sheets: sheets, drive: drive, slides: slides, gmail: gmail}, nil
}

func initStatusRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.StatusRepository) {
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	primary := repository.NewRedisStatusRepository(redisClient, time.Duration(models.WatchStatusTTL)*time.Second)
	fallback := repository.NewMemoryStatusRepository()
	return redisClient, repository.NewFailoverStatusRepository(primary, fallback, logger)
}

func initNotifier(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if !cfg.Telegram.Enabled {
		return
	}

	notifier, err := notify.NewTelegramNotifier(cfg.Telegram, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram notifier init failed, continuing without alerts")
		return
	}
	notifier.SubscribeTo(bus)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
