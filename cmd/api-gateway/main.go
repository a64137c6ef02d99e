package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/s22001503-hash/ouslpms-monorepo/api/swagger"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/repository"
	"github.com/s22001503-hash/ouslpms-monorepo/internal/service"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/cache"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/config"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/database"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/jobs"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/logger"
	"github.com/s22001503-hash/ouslpms-monorepo/pkg/storage"
)

// @title OUSL Print Management API
// @version 1.0.0
// @description Print policy enforcement, policy proposals and senior approval workflow.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	app, err := buildApp(ctx, cfg, db, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to wire application", "error", err)
	}
	defer app.close()

	app.queue.Start(ctx)
	defer app.queue.Stop()
	app.prints.RecoverPending(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "auth", cfg.Auth.Provider, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("server shutdown incomplete", "error", err)
	}
	logr.Sugar().Infow("server stopped")
}

type app struct {
	auth       *service.AuthService
	users      *service.UserService
	policies   *service.PolicyService
	proposals  *service.ProposalService
	approvals  *service.ApprovalService
	prints     *service.PrintService
	dashboard  *service.DashboardService
	exports    *service.ExportService
	metrics    *service.MetricsService
	auditRepo  *repository.AuditRepository
	queue      *jobs.Queue
	keywords   *service.KeywordClassifier
	closeRedis func() error
}

func (a *app) close() {
	if a.keywords != nil {
		_ = a.keywords.Close()
	}
	if a.closeRedis != nil {
		_ = a.closeRedis()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, logr *zap.Logger) (*app, error) {
	loc := cfg.Policy.Location()
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	policyRepo := repository.NewPolicyRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	printRepo := repository.NewPrintRequestRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	dashboardRepo := repository.NewDashboardRepository(db)
	tx := repository.NewTransactor(db)

	a := &app{metrics: metrics, auditRepo: auditRepo}

	var cacheRepo service.CacheRepository
	if cfg.Dashboard.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, dashboard cache disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(client)
			a.closeRedis = client.Close
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, cfg.Dashboard.CacheEnabled)

	identity, local, err := buildTokenVerifier(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.auth = service.NewAuthService(userRepo, cfg.Auth.Provider, identity, local, auditRepo, validate, logr)

	a.policies = service.NewPolicyService(policyRepo, logr)
	a.users = service.NewUserService(userRepo, a.policies, auditRepo, validate, logr)
	a.proposals = service.NewProposalService(proposalRepo, a.policies, userRepo, tx, auditRepo, logr,
		service.WithProposalCache(cacheSvc),
		service.WithProposalMetrics(metrics),
	)
	a.approvals = service.NewApprovalService(approvalRepo, printRepo, tx, auditRepo, logr,
		service.WithApprovalCache(cacheSvc),
		service.WithApprovalMetrics(metrics),
	)

	store, err := buildStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	keywords, err := service.NewKeywordClassifier(cfg.Classifier.RulesFile, logr)
	if err != nil {
		return nil, fmt.Errorf("load keyword rules: %w", err)
	}
	if err := keywords.Watch(ctx); err != nil {
		logr.Warn("keyword rules will not hot reload", zap.Error(err))
	}
	a.keywords = keywords

	var classifier service.Classifier = keywords
	if cfg.Classifier.URL != "" {
		opts := []service.ClassifierGatewayOption{service.WithClassifierMetrics(metrics)}
		if cfg.Classifier.Fallback {
			opts = append(opts, service.WithClassifierFallback(keywords))
		}
		classifier = service.NewClassifierGateway(cfg.Classifier.URL, cfg.Classifier.Timeout, logr, opts...)
	}

	workerOpts := []service.ClassificationWorkerOption{
		service.WithWorkerAudit(auditRepo),
		service.WithWorkerCache(cacheSvc),
		service.WithWorkerMetrics(metrics),
	}
	if cfg.Summary.APIKey != "" {
		summarizer, err := service.NewGenAISummarizer(ctx, cfg.Summary.APIKey, cfg.Summary.Model, logr)
		if err != nil {
			logr.Warn("summaries disabled", zap.Error(err))
		} else {
			workerOpts = append(workerOpts, service.WithSummarizer(summarizer))
		}
	}
	worker := service.NewClassificationWorker(printRepo, usageRepo, a.policies, store, classifier, loc, logr, workerOpts...)
	a.queue = jobs.NewQueue("classification", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Classifier.Workers,
		MaxRetries: cfg.Classifier.Retries,
		Logger:     logr,
		OnFailure:  worker.HandleFailure,
	})

	var executor service.PrintExecutor = service.NewLoggingPrintExecutor(logr)
	if cfg.Executor.URL != "" {
		executor = service.NewHTTPPrintExecutor(cfg.Executor.URL, cfg.Executor.Timeout, nil)
	}

	a.prints = service.NewPrintService(service.PrintServiceDeps{
		Prints:   printRepo,
		Usage:    usageRepo,
		Policies: a.policies,
		Store:    store,
		Signer:   storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL),
		Queue:    a.queue,
		Executor: executor,
		Tx:       tx,
		Audit:    auditRepo,
		Cache:    cacheSvc,
		Metrics:  metrics,
	}, service.PrintServiceConfig{
		MaxFileSize:   cfg.Upload.MaxFileSizeBytes,
		AllowedMIMEs:  cfg.Upload.AllowedMIMEs,
		Location:      loc,
		PublicBaseURL: cfg.Storage.PublicBaseURL + cfg.APIPrefix,
	}, logr)

	a.dashboard = service.NewDashboardService(service.DashboardServiceParams{
		Store:     dashboardRepo,
		Activity:  auditRepo,
		Proposals: proposalRepo,
		Approvals: approvalRepo,
		Cache:     cacheSvc,
		Logger:    logr,
		Config:    service.DashboardServiceConfig{Location: loc},
	})
	a.exports = service.NewExportService(nil, nil, logr)
	return a, nil
}

func buildTokenVerifier(ctx context.Context, cfg *config.Config) (service.IdentityVerifier, *service.LocalTokens, error) {
	switch cfg.Auth.Provider {
	case config.AuthProviderFirebase:
		verifier, err := service.NewFirebaseVerifier(ctx, cfg.Auth.FirebaseProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("init firebase verifier: %w", err)
		}
		return verifier, nil, nil
	case config.AuthProviderLocal:
		return nil, service.NewLocalTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration, cfg.Auth.JWTIssuer), nil
	}
	return nil, nil, fmt.Errorf("unknown auth provider %q", cfg.Auth.Provider)
}

func buildStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.StorageDriverAzure:
		return storage.NewAzureStorage(ctx, storage.AzureConfig{
			ConnectionString: cfg.AzureConnectionString,
			AccountURL:       cfg.AzureAccountURL,
			Container:        cfg.AzureContainer,
		})
	case config.StorageDriverLocal, "":
		return storage.NewLocalStorage(cfg.Dir)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
