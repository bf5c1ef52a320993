package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/course-ledger/api/swagger"
	"github.com/noah-isme/course-ledger/internal/client"
	"github.com/noah-isme/course-ledger/internal/handler"
	"github.com/noah-isme/course-ledger/internal/middleware"
	"github.com/noah-isme/course-ledger/internal/models"
	"github.com/noah-isme/course-ledger/internal/repository"
	"github.com/noah-isme/course-ledger/internal/service"
	"github.com/noah-isme/course-ledger/pkg/cache"
	"github.com/noah-isme/course-ledger/pkg/config"
	"github.com/noah-isme/course-ledger/pkg/database"
	"github.com/noah-isme/course-ledger/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-ledger/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-ledger/pkg/middleware/requestid"
)

const shutdownTimeout = 10 * time.Second

// Infrastructure holds the resources shared by the routes of one deployable.
type Infrastructure struct {
	DB       *sqlx.DB
	Redis    *redis.Client
	Metrics  *service.MetricsService
	Journal  *service.ReconciliationService
	Resolver service.PrincipalResolver
	Validate *validator.Validate
	Catalog  *client.CatalogClient
	Identity *client.IdentityClient
	Clients  client.Options

	journalStore *repository.ReconciliationRepository
}

// Bootstrap opens the database, the optional Redis journal and the outbound
// clients for a deployable.
func Bootstrap(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*Infrastructure, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	infra := &Infrastructure{
		DB:       db,
		Metrics:  service.NewMetricsService(),
		Validate: validator.New(),
	}

	if cfg.Reconciliation.Enabled {
		rdb, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("reconciliation journal falling back to log only", zap.Error(err))
		} else {
			infra.Redis = rdb
		}
	}
	infra.journalStore = repository.NewReconciliationRepository(infra.Redis, cfg.ServiceName, cfg.Reconciliation.MaxEntries, logr)
	infra.Journal = service.NewReconciliationService(infra.journalStore, cfg.ServiceName, infra.Metrics, logr)

	infra.Clients = client.Options{Observer: infra.Metrics, Logger: logr}
	infra.Catalog = client.NewCatalogClient(cfg.Catalog, infra.Clients)
	infra.Identity = client.NewIdentityClient(cfg.Identity.DependencyConfig, infra.Clients)
	infra.Resolver = service.NewPrincipalResolver(cfg.Identity, cfg.JWT, infra.Identity)

	return infra, nil
}

// Close releases pooled connections.
func (i *Infrastructure) Close() {
	if i == nil {
		return
	}
	if i.journalStore != nil {
		_ = i.journalStore.Close()
	}
	if i.DB != nil {
		_ = i.DB.Close()
	}
}

// NewEngine builds the gin router shared by both deployables and returns the
// authenticated API group under cfg.APIPrefix.
func NewEngine(cfg *config.Config, logr *zap.Logger, infra *Infrastructure, swaggerInstance string) (*gin.Engine, *gin.RouterGroup) {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(infra.Metrics))
	r.Use(middleware.WithResponseMeta())

	var pinger handler.Pinger
	if infra.DB != nil {
		pinger = infra.DB
	}
	metricsHandler := handler.NewMetricsHandler(infra.Metrics, pinger, cfg.ServiceName)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction && swaggerInstance != "" {
		swagger.SetPrefix(swaggerInstance, cfg.APIPrefix)
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.InstanceName(swaggerInstance)))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.Authenticate(infra.Resolver))

	reconciliation := handler.NewReconciliationHandler(infra.Journal)
	api.GET("/admin/reconciliation", middleware.RequireRoles(models.RoleAdmin), reconciliation.List)

	return r, api
}

// Run serves r until ctx is cancelled or SIGINT/SIGTERM arrives, then drains
// in-flight requests.
func Run(ctx context.Context, cfg *config.Config, r http.Handler, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logr.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logr.Info("server stopped")
	return nil
}
