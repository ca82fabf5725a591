// Package notify renders and delivers e-mail notifications. Delivery is
// either direct over SMTP or queued on Kafka for the notifier worker.
package notify

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"
	"unicode"

	"github.com/gartstein/internhub/internal/marketplace/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dispatcher delivers one message.
type Dispatcher interface {
	Send(ctx context.Context, msg models.Message) error
}

// Queue is the producer side of the notifications topic.
type Queue interface {
	Notify(msg models.Message)
}

// QueueDispatcher hands messages to the notifications topic and returns
// immediately.
type QueueDispatcher struct {
	queue Queue
}

func NewQueueDispatcher(queue Queue) *QueueDispatcher {
	return &QueueDispatcher{queue: queue}
}

func (d *QueueDispatcher) Send(_ context.Context, msg models.Message) error {
	if msg.To == "" {
		return fmt.Errorf("message %q has no recipient", msg.Subject)
	}
	d.queue.Notify(msg)
	return nil
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
	// PerSecond caps outgoing messages; zero disables throttling.
	PerSecond float64
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends messages over SMTP, throttled to the configured rate.
type Mailer struct {
	cfg     SMTPConfig
	limiter *rate.Limiter
	send    sendFunc
	logger  *zap.Logger
}

func NewMailer(cfg SMTPConfig, logger *zap.Logger) *Mailer {
	limit := rate.Inf
	if cfg.PerSecond > 0 {
		limit = rate.Limit(cfg.PerSecond)
	}
	return &Mailer{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		send:    smtp.SendMail,
		logger:  logger.Named("mailer"),
	}
}

func (m *Mailer) Send(ctx context.Context, msg models.Message) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail throttle: %w", err)
	}

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if strings.ContainsAny(msg.To, "\r\n") {
		return fmt.Errorf("invalid recipient %q", msg.To)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := m.send(addr, auth, m.cfg.FromEmail, []string{msg.To}, m.compose(msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("Email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

func (m *Mailer) compose(msg models.Message) []byte {
	from := headerValue(m.cfg.FromEmail)
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", headerValue(m.cfg.FromName)), from)
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + headerValue(msg.To) + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", headerValue(msg.Subject)) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// headerValue folds control characters into spaces so a value cannot end
// its header line.
func headerValue(v string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, v)
}

// LogMailer writes messages to the log instead of sending them. It stands in
// when no SMTP host is configured.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger.Named("log_mailer")}
}

func (m *LogMailer) Send(_ context.Context, msg models.Message) error {
	m.logger.Info("Email not sent, SMTP disabled",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
