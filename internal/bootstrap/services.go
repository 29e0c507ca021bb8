package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/echofi/kyc-service/config"
	"github.com/echofi/kyc-service/internal/adapters/docstore"
	"github.com/echofi/kyc-service/internal/adapters/faceapi"
	"github.com/echofi/kyc-service/internal/adapters/monitor"
	"github.com/echofi/kyc-service/internal/adapters/pipelinerunner"
	"github.com/echofi/kyc-service/internal/adapters/retention"
	"github.com/echofi/kyc-service/internal/adapters/tesseract"
	"github.com/echofi/kyc-service/internal/core"
	"github.com/echofi/kyc-service/internal/data"
	"github.com/echofi/kyc-service/internal/domain/biometric"
	"github.com/echofi/kyc-service/internal/observability/notify/email"
	"github.com/echofi/kyc-service/internal/observability/notify/telegram"
	"github.com/echofi/kyc-service/internal/observability/statsd"
	"github.com/echofi/kyc-service/internal/service"
	"github.com/echofi/kyc-service/internal/service/statusnotifier"
)

// ServiceContainer holds the wired application services.
type ServiceContainer struct {
	Verification   *service.VerificationService
	StatusNotifier *statusnotifier.Service
	Documents      core.DocumentStore
	Observability  ObservabilityContainer
}

// ObservabilityContainer groups metrics and notification plumbing.
type ObservabilityContainer struct {
	MetricsSink    *statsd.Client
	MetricsConfig  config.ObservabilityMetricsConfig
	NotifierConfig config.ObservabilityNotificationsConfig
}

// Sink returns the metrics sink as its interface, or nil when metrics are off.
//
//nolint:ireturn // callers take the statsd.Sink interface.
func (o ObservabilityContainer) Sink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// ServiceDeps contains the shared dependencies for building services.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "kyc",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:    metricsSink,
		MetricsConfig:  cfg.Metrics,
		NotifierConfig: cfg.Notifications,
	}
}

func buildStatusNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
	audit core.AuditRepository,
) *statusnotifier.Service {
	var sinks []statusnotifier.SinkRegistration

	if cfg.Email.Enabled {
		sink, err := email.NewSink(email.Config{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
		if err != nil {
			logger.Error("failed to build email notification sink", "error", err)
		} else {
			sinks = append(sinks, statusnotifier.SinkRegistration{Name: "email", Sink: sink})
		}
	}

	if cfg.Telegram.Enabled {
		client, err := telegram.NewClient(telegram.Config{
			BotToken:   cfg.Telegram.BotToken,
			ChatID:     cfg.Telegram.AdminChatID,
			Username:   cfg.Telegram.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to build telegram notification sink", "error", err)
		} else {
			sinks = append(sinks, statusnotifier.SinkRegistration{Name: "telegram", Sink: client})
		}
	}

	return statusnotifier.NewService(statusnotifier.Options{
		Logger: logger,
		Sinks:  sinks,
		Audit:  audit,
	})
}

// NewServices wires repositories and services from shared dependencies.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := deps.Config

	observability := buildObservability(logger, appCfg.Observability)

	repoCfg := data.RepoConfig{Logger: logger}
	jobs := data.NewVerificationRepo(deps.DB, repoCfg)
	audit := data.NewAuditRepo(deps.DB, repoCfg)

	notifier := buildStatusNotifier(logger, appCfg.Observability.Notifications, audit)

	var quota core.QuotaRepository
	if deps.RedisClient != nil {
		quota = data.NewRedisQuotaRepo(deps.RedisClient, data.RealTimeProvider{})
	}

	documents, err := docstore.NewS3Store(ctx, appCfg.Storage)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build document store: %w", err)
	}

	verification, err := service.NewVerificationService(service.VerificationServiceOptions{
		Jobs:         jobs,
		Audit:        audit,
		Quota:        quota,
		Documents:    documents,
		Notifier:     notifier,
		Logger:       logger,
		DailyQuota:   appCfg.HTTP.SubmissionDailyQuota,
		RecordWindow: appCfg.Retention.RecordWindow,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build verification service: %w", err)
	}

	return ServiceContainer{
		Verification:   verification,
		StatusNotifier: notifier,
		Documents:      documents,
		Observability:  observability,
	}, nil
}

// ServiceOrchestrationConfig groups everything needed to run the enabled services.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newPipelineBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModePipeline,
		name: "verification pipeline",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			appCfg := deps.cfg.Config

			recognizer, err := tesseract.NewRecognizer(tesseract.Options{
				Config: appCfg.ML,
				Logger: deps.logger,
			})
			if err != nil {
				return fmt.Errorf("build recognizer: %w", err)
			}

			faces, err := faceapi.NewClient(faceapi.Options{
				Config:           appCfg.ML,
				DefaultThreshold: appCfg.Verification.FaceMatchThreshold,
			})
			if err != nil {
				return fmt.Errorf("build face service client: %w", err)
			}

			scorer := biometric.New(biometric.Options{
				Comparer: faces,
				Detector: faces,
				Logger:   deps.logger,
			}).WithLivenessThreshold(appCfg.Verification.LivenessThreshold)

			runner, err := pipelinerunner.NewRunner(pipelinerunner.RunnerOptions{
				DB:           deps.cfg.DB,
				Logger:       deps.logger,
				Pipeline:     appCfg.Pipeline,
				Verification: appCfg.Verification,
				RecordWindow: appCfg.Retention.RecordWindow,
				Documents:    deps.cfg.Services.Documents,
				Recognizer:   recognizer,
				Biometrics:   scorer,
				Encryptor:    CreateEncryptor(appCfg.Verification.EncryptionKey, deps.logger),
				Notifier:     deps.cfg.Services.StatusNotifier,
				Metrics:      deps.cfg.Services.Observability.Sink(),
			})
			if err != nil {
				return fmt.Errorf("build pipeline runner: %w", err)
			}

			return runner.Run(ctx)
		},
	}
}

func newRetentionBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeRetention,
		name: "retention sweeper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			runner, err := retention.NewRunner(retention.RunnerOptions{
				DB:      deps.cfg.DB,
				Config:  deps.cfg.Config.Retention,
				Logger:  deps.logger,
				Metrics: deps.cfg.Services.Observability.Sink(),
			})
			if err != nil {
				return fmt.Errorf("build retention runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newMonitorBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeMonitor,
		name: "staleness monitor",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil || deps.cfg.Config == nil {
				return nil
			}
			runner, err := monitor.NewRunner(monitor.RunnerOptions{
				DB:       deps.cfg.DB,
				Config:   deps.cfg.Config.Monitor,
				Logger:   deps.logger,
				Notifier: deps.cfg.Services.StatusNotifier,
				Metrics:  deps.cfg.Services.Observability.Sink(),
			})
			if err != nil {
				return fmt.Errorf("build monitor runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newPipelineBackgroundService(deps),
		newRetentionBackgroundService(deps),
		newMonitorBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// It blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		metrics:     cfg.Services.Observability.MetricsSink,
		logger:      logger,
		backgrounds: result.Background,
	})
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	metrics     *statsd.Client
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for a shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if cfg.metrics != nil {
		if err := cfg.metrics.Close(); err != nil {
			cfg.logger.Warn("close metrics sink failed", "error", err)
		}
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
