package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/internhub/internal/marketplace/auth"
	"github.com/gartstein/internhub/internal/marketplace/config"
	"github.com/gartstein/internhub/internal/marketplace/controller"
	"github.com/gartstein/internhub/internal/marketplace/db"
	"github.com/gartstein/internhub/internal/marketplace/events"
	"github.com/gartstein/internhub/internal/marketplace/handlers"
	"github.com/gartstein/internhub/internal/marketplace/metrics"
	"github.com/gartstein/internhub/internal/marketplace/notify"
	"github.com/gartstein/internhub/internal/marketplace/ratelimit"
	"github.com/gartstein/internhub/internal/marketplace/scheduler"
	"github.com/gartstein/internhub/internal/marketplace/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	logger := initLogger()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	cfg, err := config.Load(configPath())
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	repo, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer func() { _ = repo.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	templates, err := notify.DefaultTemplates()
	if err != nil {
		logger.Fatal("failed to load mail templates", zap.Error(err))
	}

	var (
		producer   controller.EventProducer
		dispatcher notify.Dispatcher
	)
	if cfg.Kafka.Enabled {
		eventsProducer, err := events.NewProducer(cfg.Kafka.Brokers, logger, cfg.Kafka.EventsTopic)
		if err != nil {
			logger.Fatal("failed to initialize Kafka producer", zap.Error(err))
		}
		defer eventsProducer.Close()

		notifications, err := events.NewProducer(cfg.Kafka.Brokers, logger, cfg.Kafka.NotificationsTopic)
		if err != nil {
			logger.Fatal("failed to initialize notifications producer", zap.Error(err))
		}
		defer notifications.Close()

		producer = eventsProducer
		dispatcher = notify.NewQueueDispatcher(notifications)
	} else {
		dispatcher = initMailer(cfg, logger)
	}

	store, err := storage.NewLocalStore(cfg.Server.UploadDir)
	if err != nil {
		logger.Fatal("failed to initialize upload store", zap.Error(err))
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	notifier := controller.NewNotifier(templates, dispatcher, m, logger)
	postings := controller.NewPostingService(repo, logger)
	apps := controller.NewApplicationService(repo, producer, notifier, m, logger)

	expirer := scheduler.NewPostingExpirer(repo, m, logger)
	if err := expirer.Start(cfg.Scheduler.ExpirySchedule); err != nil {
		logger.Fatal("failed to start posting expirer", zap.Error(err))
	}
	defer expirer.Stop()

	var limiter handlers.Limiter
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()
		limiter = ratelimit.NewRedisLimiter(client, cfg.Redis.AuthLimit, cfg.Redis.AuthWindow, "ratelimit", logger)
	}

	handler := handlers.NewHandler(handlers.Services{
		Applications: apps,
		Postings:     postings,
		Users:        controller.NewUserService(repo, tokens, store, notifier, logger),
		Companies:    controller.NewCompanyService(repo, logger),
		Admin:        controller.NewAdminService(repo, postings, apps, logger),
	}, limiter, m, logger)
	if err := handler.TrustProxies(cfg.Server.TrustedProxies...); err != nil {
		logger.Fatal("invalid server.trusted_proxies", zap.Error(err))
	}

	routes, err := handler.Routes(auth.NewAuthenticator(tokens, repo, logger), m.Handler(), store.Dir())
	if err != nil {
		logger.Fatal("failed to build routes", zap.Error(err))
	}

	authInterceptor := auth.NewAuthInterceptor(tokens)
	server := handlers.NewServer(cfg.Server.GRPCPort, cfg.Server.HTTPPort, logger, grpc.UnaryInterceptor(authInterceptor.Unary()))
	server.RegisterHTTPHandler(routes)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Failed to start servers", zap.Error(err))
		}
	}()

	waitForShutdown(server, logger)
}

// initLogger initializes a Zap production logger.
func initLogger() *zap.Logger {
	logger, _ := zap.NewProduction()
	return logger
}

// configPath honours CONFIG_FILE and falls back to the bundled config.yaml.
func configPath() string {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return path
	}
	return filepath.Join("internal", "marketplace", "config", "config.yaml")
}

// initDatabase connects to the database, retrying while it comes up.
func initDatabase(cfg *config.Config, logger *zap.Logger) (*db.Repository, error) {
	dbConf := &db.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		Path:     cfg.Database.Path,
	}

	var repo *db.Repository
	err := backoff.RetryNotify(func() error {
		var err error
		repo, err = db.NewRepository(dbConf)
		return err
	}, backoff.NewExponentialBackOff(), func(err error, wait time.Duration) {
		logger.Warn("database not ready", zap.Error(err), zap.Duration("retry_in", wait))
	})
	return repo, err
}

// initMailer sends over SMTP when a host is configured and only logs
// otherwise.
func initMailer(cfg *config.Config, logger *zap.Logger) notify.Dispatcher {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP host not configured, mail will be logged only")
		return notify.NewLogMailer(logger)
	}
	return notify.NewMailer(notify.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.User,
		Password:  cfg.SMTP.Password,
		FromName:  cfg.SMTP.FromName,
		FromEmail: cfg.SMTP.FromEmail,
		PerSecond: cfg.SMTP.PerSecond,
	}, logger)
}

// waitForShutdown blocks until an interrupt or SIGTERM is received, then shuts down servers.
func waitForShutdown(server *handlers.Server, logger *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	server.Stop()
	logger.Info("Servers stopped properly")
}
