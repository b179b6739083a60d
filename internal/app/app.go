package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/internal/repository"
	"github.com/noah-isme/sma-admission-api/internal/service"
	"github.com/noah-isme/sma-admission-api/pkg/cache"
	"github.com/noah-isme/sma-admission-api/pkg/config"
	"github.com/noah-isme/sma-admission-api/pkg/database"
	"github.com/noah-isme/sma-admission-api/pkg/identity"
	"github.com/noah-isme/sma-admission-api/pkg/jobs"
	"github.com/noah-isme/sma-admission-api/pkg/payment"
)

const refundQueueName = "admission-refunds"

// App holds every long-lived component of the admission API.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB    *sqlx.DB
	Redis *redis.Client

	Metrics    *service.MetricsService
	Blobs      *service.BlobService
	Assets     *service.AssetService
	Students   *service.StudentService
	Admissions *service.AdmissionService
	Content    *service.ContentService
	Exports    *service.ExportService
	Scheduler  *service.ReconcileScheduler
	Audit      *repository.AuditRepository
	Verifier   *identity.HMACVerifier

	refunds *jobs.Queue
}

// New connects to the backing stores and wires the services. Redis is
// optional: without it the reconcile lease is always granted and the content
// cache stays off.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, logger); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	return Build(cfg, db, rdb, logger), nil
}

// Build wires services on top of already opened connections. rdb may be nil.
func Build(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := validator.New()
	metrics := service.NewMetricsService()

	admissionRepo := repository.NewAdmissionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	blobRepo := repository.NewBlobRepository(db)
	contentRepo := repository.NewContentRepository(db)
	linkRepo := repository.NewAssetLinkRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var optimizer *service.ImageOptimizer
	if cfg.Images.Optimize {
		optimizer = service.NewImageOptimizer(cfg.Images.MaxDimension)
	}
	blobs := service.NewBlobService(blobRepo, service.BlobServiceConfig{
		ChunkSize:      cfg.Blob.ChunkSize,
		OpTimeout:      cfg.Blob.OpTimeout,
		MaxUploadBytes: cfg.Blob.MaxUploadBytes,
		AllowedMIMEs:   cfg.Blob.AllowedMIMEs,
		MetaCacheSize:  cfg.Blob.MetaCacheSize,
		MetaCacheTTL:   cfg.Blob.MetaCacheTTL,
		ListPageSize:   cfg.Blob.ListPageSize,
	}, optimizer, metrics, logger)

	holders := []service.ReferenceHolder{admissionRepo, studentRepo, contentRepo}
	assets := service.NewAssetService(linkRepo, blobs, holders, service.AssetServiceConfig{}, auditRepo, metrics, logger)

	students := service.NewStudentService(studentRepo, assets, service.StudentServiceConfig{
		IDPrefix:               cfg.Admission.StudentIDPrefix,
		AcademicYearStartMonth: cfg.Admission.AcademicYearStartMonth,
	}, validate, auditRepo, logger)

	var gateway payment.Gateway = payment.Disabled{}
	if cfg.Payment.MidtransServerKey != "" {
		gateway = payment.NewMidtrans(cfg.Payment.MidtransServerKey, cfg.Payment.MidtransProduction)
	}
	worker := service.NewRefundWorker(admissionRepo, gateway, metrics, logger)
	refunds := jobs.NewQueue(refundQueueName, worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Payment.RefundWorkers,
		MaxRetries: cfg.Payment.RefundRetries,
		RetryDelay: cfg.Payment.RefundRetryDelay,
		OnGiveUp:   worker.GiveUp,
		Logger:     logger,
	})

	admissions := service.NewAdmissionService(admissionRepo, students, blobs, assets, gateway, refunds,
		service.AdmissionServiceConfig{}, validate, auditRepo, metrics, logger)

	var contentCache *service.CacheService
	if rdb != nil {
		contentCache = service.NewCacheService(repository.NewCacheRepository(rdb, "admission", logger),
			metrics, cfg.Content.CacheTTL, logger, cfg.Content.CacheEnabled)
	} else {
		contentCache = service.NewCacheService(nil, metrics, cfg.Content.CacheTTL, logger, false)
	}
	content := service.NewContentService(contentRepo, blobs, assets, contentCache, validate, auditRepo, logger)

	scheduler := service.NewReconcileScheduler(assets, admissions, cache.NewLease(rdb), service.ReconcileSchedulerConfig{
		Interval: cfg.Reconcile.Interval,
		LockTTL:  cfg.Reconcile.LockTTL,
	}, metrics, logger)

	return &App{
		Config:     cfg,
		Logger:     logger,
		DB:         db,
		Redis:      rdb,
		Metrics:    metrics,
		Blobs:      blobs,
		Assets:     assets,
		Students:   students,
		Admissions: admissions,
		Content:    content,
		Exports:    service.NewExportService(nil, nil, logger),
		Scheduler:  scheduler,
		Audit:      auditRepo,
		Verifier:   identity.NewHMACVerifier(cfg.Identity.Secret, cfg.Identity.Issuer, cfg.Identity.Audience),
		refunds:    refunds,
	}
}

// Start launches the background workers. Refunds that were queued before a
// restart are enqueued again once the workers are running.
func (a *App) Start(ctx context.Context) {
	a.refunds.Start(ctx)
	if n, err := a.Admissions.RecoverPendingRefunds(ctx); err != nil {
		a.Logger.Warn("recover pending refunds failed", zap.Error(err))
	} else if n > 0 {
		a.Logger.Info("pending refunds re-enqueued", zap.Int("count", n))
	}
	if a.Config.Reconcile.Enabled {
		a.Scheduler.Start(ctx)
	}
}

// Close stops the workers and closes connections.
func (a *App) Close() error {
	a.Scheduler.Stop()
	a.refunds.Stop()

	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
