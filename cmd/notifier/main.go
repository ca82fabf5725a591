// Command notifier consumes the notifications topic and delivers each mail
// over SMTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gartstein/internhub/internal/marketplace/config"
	"github.com/gartstein/internhub/internal/marketplace/events"
	"github.com/gartstein/internhub/internal/marketplace/notify"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = filepath.Join("internal", "marketplace", "config", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if !cfg.Kafka.Enabled {
		logger.Fatal("kafka is disabled, nothing to consume")
	}

	var mailer notify.Dispatcher = notify.NewLogMailer(logger)
	if cfg.SMTP.Host != "" {
		mailer = notify.NewMailer(notify.SMTPConfig{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.User,
			Password:  cfg.SMTP.Password,
			FromName:  cfg.SMTP.FromName,
			FromEmail: cfg.SMTP.FromEmail,
			PerSecond: cfg.SMTP.PerSecond,
		}, logger)
	}

	consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, logger)
	defer consumer.Close()
	consumer.RegisterHandler(deliver(mailer, logger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Notifier started", zap.String("topic", cfg.Kafka.NotificationsTopic))
	consumer.Run(ctx)
	logger.Info("Notifier stopped properly")
}

// deliver sends notification events and ignores every other type. The
// consumer retries a failed send and drops the mail once retries run out.
func deliver(mailer notify.Dispatcher, logger *zap.Logger) func(context.Context, events.Event) error {
	return func(ctx context.Context, event events.Event) error {
		if event.Type != events.NotificationRequested {
			logger.Debug("Skipping event", zap.String("event_type", string(event.Type)))
			return nil
		}
		if event.Message == nil || event.Message.To == "" {
			logger.Warn("Notification without recipient dropped")
			return nil
		}
		if err := mailer.Send(ctx, *event.Message); err != nil {
			return fmt.Errorf("failed to deliver notification: %w", err)
		}
		return nil
	}
}
