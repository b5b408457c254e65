package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"physioheal/internal/api"
	"physioheal/internal/config"
	"physioheal/internal/database"
	"physioheal/internal/domain"
	"physioheal/internal/events"
	"physioheal/internal/google"
	"physioheal/internal/logging"
	"physioheal/internal/metrics"
	"physioheal/internal/notify"
	"physioheal/internal/repository"
	"physioheal/internal/service"
	"physioheal/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	sheetsCacheRefresh   = 10 * time.Minute
	sessionSweepInterval = 5 * time.Minute
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

// stores bundles whichever submission backend the config selects.
type stores struct {
	repo    domain.Repository
	tasks   worker.TaskStore
	sqlite  *database.DB
	closeFn func()
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	services, err := config.LoadServices(cfg.Clinic.ServicesFile)
	if err != nil {
		logger.Error().Err(err).Str("services_file", cfg.Clinic.ServicesFile).Msg("load services")
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := initStores(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer st.closeFn()

	redisClient, stateService := initStateService(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	sheetsService := initGoogleSheets(ctx, cfg, &logger)

	// Воркер синхронизации Google Sheets
	var syncWorker domain.SyncWorker
	if sheetsService != nil {
		retryPolicy := worker.PolicyFromConfig(cfg.Google.Sync)
		sheetsWorker := worker.NewSheetsWorker(st.tasks, sheetsService, redisClient, retryPolicy, logging.Component(&logger, "sheets-worker"))
		go sheetsWorker.Start(ctx)
		go sheetsService.StartCacheRefresh(ctx, sheetsCacheRefresh)
		syncWorker = sheetsWorker
	}

	eventBus := events.NewEventBus(logging.Component(&logger, "events"))
	dispatcher := service.NewDispatcher(
		syncWorker,
		initNotifier(cfg, &logger),
		initRelay(cfg, &logger),
		logging.Component(&logger, "dispatcher"),
	)
	dispatcher.Register(eventBus)
	defer dispatcher.Wait()

	bookingService := service.NewBookingService(stateService, st.repo, eventBus, cfg.Booking.ResetDelay, logging.Component(&logger, "booking"))
	defer bookingService.Shutdown()

	contactService := service.NewContactService(st.repo, eventBus, service.ContactOptions{
		ClinicEmail:    cfg.Clinic.Email,
		ComposeSubject: cfg.Contact.ComposeSubject,
		ComposeLink:    cfg.Contact.ComposeLinkEnabled,
	}, logging.Component(&logger, "contact"))

	catalogService := service.NewCatalogService(services, cfg.Clinic, cfg.Contact.ComposeSubject)

	svc := api.Services{
		Booking: bookingService,
		Contact: contactService,
		Catalog: catalogService,
		State:   stateService,
		Admin:   service.NewAdminService(st.repo, st.repo, eventBus, logging.Component(&logger, "admin")),
		Reader:  st.repo,
	}
	if sheetsService != nil {
		svc.Resync = sheetsService
	}
	if st.sqlite != nil {
		svc.FailedTasks = st.sqlite
	}
	httpServer := api.NewHTTPServer(&cfg.API, svc, logging.Component(&logger, "http"))

	var grpcServer *api.GRPCServer
	if cfg.API.Enabled && cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, st.repo, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	if cfg.Backup.Enabled && st.sqlite != nil {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(&logger, "backup"))
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, &logger)
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
	logger := baseLogger.With().Str("component", "site-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if cfg.Database.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для базы данных")
			return err
		}
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("Ошибка создания директории для экспорта")
		return err
	}
	return nil
}

func initStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*stores, error) {
	if cfg.Database.Driver == "postgres" {
		pool, err := database.OpenPostgres(ctx, cfg.Database.Postgres.DSN())
		if err != nil {
			logger.Error().Err(err).Str("host", cfg.Database.Postgres.Host).Msg("init postgres")
			return nil, err
		}
		store := database.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			logger.Error().Err(err).Msg("postgres schema")
			return nil, err
		}
		logger.Info().Str("host", cfg.Database.Postgres.Host).Msg("postgres connected")
		// Очередь синхронизации держим только в памяти и Redis
		return &stores{repo: store, closeFn: pool.Close}, nil
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	return &stores{
		repo:    db,
		tasks:   db,
		sqlite:  db,
		closeFn: func() { _ = db.Close() },
	}, nil
}

func initStateService(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, *service.StateService) {
	fallbackRepo := repository.NewMemoryStateRepository(cfg.Booking.SessionTTL)
	go fallbackRepo.StartSweeper(ctx, sessionSweepInterval)
	if cfg.Redis.Address == "" {
		return nil, service.NewStateService(fallbackRepo, logger)
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if errPing := repository.Ping(ctx, redisClient); errPing != nil {
		logger.Warn().Err(errPing).Msg("Redis unavailable, sessions fall back to memory")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}

	primaryRepo := repository.NewRedisStateRepository(redisClient, cfg.Booking.SessionTTL)
	stateRepo := repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger)
	return redisClient, service.NewStateService(stateRepo, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx,
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
		cfg.Google.ContactSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		email, _ := google.GetServiceAccountEmail(cfg.Google.GoogleCredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.StaffNotifier {
	if cfg.Telegram.BotToken == "" || len(cfg.Managers) == 0 {
		return nil
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, staff notifications disabled")
		return nil
	}
	botAPI.Debug = cfg.Telegram.Debug
	logger.Info().Str("bot", botAPI.Self.UserName).Int("managers", len(cfg.Managers)).Msg("telegram notifier ready")
	return notify.NewManagerNotifier(botAPI, cfg.Managers, logging.Component(logger, "telegram"))
}

func initRelay(cfg *config.Config, logger *zerolog.Logger) service.ContactRelayer {
	if !cfg.Contact.RelayEmail {
		return nil
	}

	var sender notify.EmailSender
	switch cfg.Email.Provider {
	case "sendgrid":
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.Email.SendGridAPIKey,
			FromEmail: cfg.Email.FromEmail,
			FromName:  cfg.Email.FromName,
		}, logging.Component(logger, "sendgrid"))
	default:
		sender = notify.NewStubEmailSender(logging.Component(logger, "email"))
	}
	return notify.NewContactRelay(sender, cfg.Clinic.Email, cfg.Contact.ComposeSubject)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Msg("site backend started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("site backend stopped")
	return runErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
