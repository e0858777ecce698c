package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/linkhealth/internal/actions"
	"github.com/jonesrussell/linkhealth/internal/api"
	"github.com/jonesrussell/linkhealth/internal/audit"
	"github.com/jonesrussell/linkhealth/internal/config"
	"github.com/jonesrussell/linkhealth/internal/handler"
	"github.com/jonesrussell/linkhealth/internal/logger"
	"github.com/jonesrussell/linkhealth/internal/metrics"
	"github.com/jonesrussell/linkhealth/internal/optimizer"
	"github.com/jonesrussell/linkhealth/internal/scheduler"
	"github.com/jonesrussell/linkhealth/internal/storage"
	"github.com/jonesrussell/linkhealth/internal/tracer"

	_ "github.com/lib/pq"
)

// Dependency connection timeouts.
const (
	dbPingTimeout    = 5 * time.Second
	redisPingTimeout = 5 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log, err := createLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	db, err := connectDatabase(cfg, log)
	if err != nil {
		log.Error("Failed to connect to database", logger.Error(err))
		return 1
	}
	defer func() { _ = db.Close() }()

	redisClient, err := connectRedis(cfg, log)
	if err != nil {
		log.Error("Failed to connect to redis", logger.Error(err))
		return 1
	}
	defer func() { _ = redisClient.Close() }()

	return runService(cfg, log, db, redisClient)
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.GetConfigPath("config.yml"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if validationErr := cfg.Validate(); validationErr != nil {
		return nil, fmt.Errorf("validate config: %w", validationErr)
	}
	return cfg, nil
}

// createLogger creates a logger instance from configuration.
func createLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return log.With(logger.String("service", cfg.Service.Name)), nil
}

// connectDatabase opens and verifies a database connection.
func connectDatabase(cfg *config.Config, log logger.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	log.Info("Database connected",
		logger.String("host", cfg.Database.Host),
		logger.Int("port", cfg.Database.Port),
		logger.String("database", cfg.Database.Database),
	)
	return db, nil
}

// connectRedis opens and verifies the Redis connection.
func connectRedis(cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("Redis connected", logger.String("address", cfg.Redis.Address))
	return client, nil
}

// runService wires all components and serves until shutdown.
func runService(cfg *config.Config, log logger.Logger, db *sql.DB, redisClient *redis.Client) int {
	store := storage.NewStore(db, log)
	rateCache := storage.NewRateCache(store, redisClient, cfg.Audit.RateCacheTTL, log)

	linkTracer := tracer.New(tracer.Config{
		MaxHops:        cfg.Tracer.MaxHops,
		SoftHopCap:     cfg.Tracer.SoftHopCap,
		RequestTimeout: cfg.Tracer.RequestTimeout,
		MaxRetries:     cfg.Tracer.MaxRetries,
		RetryBaseDelay: cfg.Tracer.RetryBaseDelay,
		UserAgent:      cfg.Tracer.UserAgent,
	}, tracer.DefaultParams(), log)

	opt := optimizer.New(optimizer.Config{
		ConversionRate:    cfg.Optimizer.ConversionRate,
		AverageOrderValue: cfg.Optimizer.AverageOrderValue,
		MinMonthlyClicks:  cfg.Optimizer.MinMonthlyClicks,
		MinMonthlyGain:    cfg.Optimizer.MinMonthlyGain,
	}, optimizer.DefaultCategories())

	manager := actions.NewManager(store, log)
	m := metrics.New(prometheus.DefaultRegisterer)
	engine := audit.NewEngine(cfg.Audit, store, rateCache, linkTracer, opt, manager, m, redisClient, log)

	sched := scheduler.New(cfg.Scheduler, engine, store, log)
	if err := sched.Start(); err != nil {
		log.Error("Failed to start scheduler", logger.Error(err))
		return 1
	}
	defer sched.Stop()

	apiHandler := handler.New(engine, store, manager, rateCache, log)
	limiter := api.RateLimitMiddleware(redisClient,
		cfg.RateLimit.MaxAuditsPerMinute,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		log)

	server := api.NewServer(cfg.Service, log, func(router *gin.Engine) {
		api.RegisterHealthRoutes(router, api.HealthOptions{
			ServiceName:    cfg.Service.Name,
			ServiceVersion: cfg.Service.Version,
			Checks: map[string]api.HealthChecker{
				"database": db.Ping,
				"redis": func() error {
					return redisClient.Ping(context.Background()).Err()
				},
			},
		})
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		apiHandler.Register(router, limiter)
	})

	log.Info("Linkhealth starting", logger.Int("port", cfg.Service.Port))

	errCh := server.StartAsync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("Server error", logger.Error(err))
			return 1
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	engine.Shutdown()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Error("Shutdown error", logger.Error(err))
		return 1
	}

	log.Info("Linkhealth exited cleanly")
	return 0
}
