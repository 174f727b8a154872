package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	_ "github.com/lib/pq" // PostgreSQL driver

	"golang.org/x/sync/errgroup"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"warden/internal/changefeed"
	"warden/internal/config"
	"warden/internal/constants"
	"warden/internal/logger"
	"warden/internal/mirror"
	"warden/internal/rulemetrics"
	"warden/internal/rules"
	"warden/pkg/bootstrap"
	"warden/pkg/health"
	"warden/pkg/metrics"
	"warden/pkg/middleware"
	"warden/pkg/migrations"
	"warden/pkg/ratelimit"
	"warden/pkg/tracing"
)

type App struct {
	base        *bootstrap.Base
	config      *config.Config
	logger      logger.Logger
	dbConnector *bootstrap.DatabaseConnector

	db          *sql.DB
	redisClient *redis.Client
	mongoClient *mongo.Client

	feed      *changefeed.KafkaFeed
	publisher *changefeed.KafkaPublisher
	manager   *mirror.Manager

	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		base:        bootstrap.NewBase(cfg, log),
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initChangefeed(); err != nil {
		return fmt.Errorf("failed to initialize changefeed: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, "mirror-service")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp
	a.base.OnShutdown("tracer provider", tp.Shutdown)

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.config.Database.RunMigrations {
		dir := a.config.Database.MigrationsDir
		if dir == "" {
			dir = "migrations/postgres"
		}
		if err := migrations.RunPostgres(db, "file://"+dir, a.config.Database.Postgres.DBName); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.logger.InfowCtx(ctx, "Database migrations applied", "dir", dir)
	}

	redisClient, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "Redis connection failed, changefeed dedup disabled", "error", err)
	} else {
		a.redisClient = redisClient
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		a.logger.WarnwCtx(ctx, "MongoDB connection failed, continuing without rule metrics", "error", err)
	} else if mongoClient != nil {
		a.mongoClient = mongoClient
		if err := migrations.EnsureMongoCollection(ctx, mongoClient.Database(a.mongoDatabaseName())); err != nil {
			a.logger.WarnwCtx(ctx, "Failed to ensure rule metrics collection", "error", err)
		}
	}

	a.base.OnShutdown("databases", func(ctx context.Context) error {
		errs := a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)
		if len(errs) > 0 {
			return fmt.Errorf("database shutdown errors: %v", errs)
		}
		return nil
	})

	return nil
}

func (a *App) mongoDatabaseName() string {
	if a.config.Database.MongoDB.Database != "" {
		return a.config.Database.MongoDB.Database
	}
	return constants.DefaultMongoDBName
}

func (a *App) initChangefeed() error {
	var deduper changefeed.Deduper = changefeed.NopDeduper{}
	if a.config.Changefeed.Dedup.Enabled && a.redisClient != nil {
		deduper = changefeed.NewRedisDeduper(
			a.redisClient,
			a.config.Changefeed.Dedup.TTLSeconds,
			a.config.Changefeed.Dedup.OnRedisError,
			a.logger,
		)
	}

	a.feed = changefeed.NewKafkaFeed(a.config.Changefeed, deduper, a.logger)
	a.base.OnShutdown("changefeed consumer", func(context.Context) error {
		return a.feed.Close()
	})

	a.publisher = changefeed.NewKafkaPublisher(a.config.Changefeed, a.logger)
	a.base.OnShutdown("changefeed publisher", func(context.Context) error {
		return a.publisher.Close()
	})

	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("mirror-service"))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.OwnerContextMiddleware())

	if a.config.API.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.API.RateLimit.RPS,
			Burst:           a.config.API.RateLimit.Burst,
			CleanupInterval: time.Duration(a.config.API.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.API.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	var store rules.Store = rules.NewPostgresStore(a.db)
	if a.config.CircuitBreaker.Enabled {
		store = rules.NewBreakerStore(store, a.config.CircuitBreaker)
		a.logger.InfowCtx(context.Background(), "Circuit breaker enabled for rule store")
	}

	var metricsProvider rulemetrics.Provider
	if a.mongoClient != nil {
		metricsProvider = rulemetrics.NewMongoProvider(a.mongoClient.Database(a.mongoDatabaseName()), a.logger)
	}

	a.manager = mirror.NewManager(store, a.feed, a.publisher, metricsProvider, a.config.Mirror, a.logger)
	a.base.OnShutdown("mirror sessions", func(context.Context) error {
		return a.manager.Close()
	})

	handler := mirror.NewHandler(a.manager, a.logger)
	handler.RegisterRoutes(router)

	metrics.RegisterMirrorMetrics()
	metrics.RegisterFeedMetrics()
	metrics.RegisterCircuitBreakerMetrics()
	metrics.RegisterAPIMetrics()

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	if a.mongoClient != nil {
		healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	}
	healthRegistry.Register(health.NewFeedChecker("changefeed", a.feed.Probe))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds * time.Second,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds * time.Second,
	}
	a.base.OnShutdown("http server", func(ctx context.Context) error {
		return a.server.Shutdown(ctx)
	})
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfowCtx(ctx, "HTTP server starting", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		return a.Shutdown()
	})

	return g.Wait()
}

func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	return a.base.Shutdown(shutdownCtx)
}
