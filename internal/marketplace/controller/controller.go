// Package controller implements the business logic of the marketplace:
// applications and their lifecycle, postings, identities, the company
// directory and administration. Services orchestrate repository calls,
// record metrics, publish events and dispatch e-mail notifications.
package controller

import (
	"context"
	"errors"
	"fmt"

	e "github.com/gartstein/internhub/internal/marketplace/errors"
	"github.com/gartstein/internhub/internal/marketplace/events"
	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/gartstein/internhub/internal/marketplace/notify"
	"go.uber.org/zap"
)

type EventProducer interface {
	Produce(eventType events.EventType, app *models.Application)
}

// Recorder receives the business counters.
type Recorder interface {
	ApplicationSubmitted()
	StatusChanged(status models.Status)
	NotificationFailed(kind string)
}

type nopProducer struct{}

func (nopProducer) Produce(events.EventType, *models.Application) {}

type nopRecorder struct{}

func (nopRecorder) ApplicationSubmitted() {}
func (nopRecorder) StatusChanged(models.Status) {}
func (nopRecorder) NotificationFailed(string) {}

// Notifier renders catalogue templates and hands them to a dispatcher.
// Failures are logged and counted; the caller's state change stands.
type Notifier struct {
	templates  *notify.Templates
	dispatcher notify.Dispatcher
	recorder   Recorder
	logger     *zap.Logger
}

func NewNotifier(templates *notify.Templates, dispatcher notify.Dispatcher, recorder Recorder, logger *zap.Logger) *Notifier {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Notifier{
		templates:  templates,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger.Named("notifier"),
	}
}

// Notify renders kind for to and dispatches it. A nil Notifier does nothing.
func (n *Notifier) Notify(ctx context.Context, kind notify.Kind, to string, data any) {
	if n == nil {
		return
	}
	if to == "" {
		n.logger.Warn("Notification skipped, no recipient", zap.String("kind", string(kind)))
		return
	}

	msg, err := n.templates.Render(kind, to, data)
	if err == nil {
		err = n.dispatcher.Send(ctx, msg)
	}
	if err != nil {
		n.recorder.NotificationFailed(string(kind))
		n.logger.Error("Failed to send notification",
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.String("to", to),
		)
	}
}

// passThrough returns err unchanged when it already carries one of the
// classified sentinels, and wraps it with op otherwise.
func passThrough(err error, op string) error {
	for _, sentinel := range []error{
		e.ErrNotFound, e.ErrForbidden, e.ErrInvalidState,
		e.ErrConflict, e.ErrInvalidInput, e.ErrUnauthorized,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// notFoundAs replaces a repository not-found with a client-facing message.
func notFoundAs(err error, message, op string) error {
	if errors.Is(err, e.ErrNotFound) {
		return fmt.Errorf("%w: %s", e.ErrNotFound, message)
	}
	return passThrough(err, op)
}
