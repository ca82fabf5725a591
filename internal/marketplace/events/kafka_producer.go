package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gartstein/internhub/internal/marketplace/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var jsonMarshal = json.Marshal

type EventType string

const (
	ApplicationSubmitted     EventType = "application_submitted"
	ApplicationStatusChanged EventType = "application_status_changed"
	ApplicationWithdrawn     EventType = "application_withdrawn"
	NotificationRequested    EventType = "notification_requested"
)

// ApplicationChanged is the application snapshot carried by lifecycle events.
type ApplicationChanged struct {
	ID          uuid.UUID     `json:"id"`
	PostingID   uuid.UUID     `json:"internship"`
	ApplicantID uuid.UUID     `json:"applicant"`
	CompanyID   uuid.UUID     `json:"company"`
	Status      models.Status `json:"status"`
}

type Event struct {
	Type        EventType           `json:"type"`
	Application *ApplicationChanged `json:"application,omitempty"`
	Message     *models.Message     `json:"message,omitempty"`
	OccurredAt  time.Time           `json:"occurredAt"`
}

// Key is the partition key: the application ID for lifecycle events and the
// recipient for notifications.
func (e Event) Key() string {
	switch {
	case e.Application != nil:
		return e.Application.ID.String()
	case e.Message != nil:
		return e.Message.To
	default:
		return string(e.Type)
	}
}

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer    KafkaWriter
	events    chan Event
	logger    *zap.Logger
	closeChan chan struct{}
	done      chan struct{}
}

// NewProducer creates the topic if needed and starts the publishing loop.
func NewProducer(brokers []string, logger *zap.Logger, topic string) (*Producer, error) {
	conn, err := kafka.Dial("tcp", brokers[0])
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     3,
		ReplicationFactor: 1,
	})
	if err != nil {
		logger.Warn("failed to create topic (may already exist)", zap.String("topic", topic), zap.Error(err))
	}

	p := newProducer(&kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
		Topic:    topic,
	}, logger, 1000)
	go p.eventLoop()
	return p, nil
}

func newProducer(writer KafkaWriter, logger *zap.Logger, buffer int) *Producer {
	return &Producer{
		writer:    writer,
		events:    make(chan Event, buffer),
		logger:    logger.Named("kafka_producer"),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Produce queues a lifecycle event for app.
func (p *Producer) Produce(eventType EventType, app *models.Application) {
	p.enqueue(Event{
		Type: eventType,
		Application: &ApplicationChanged{
			ID:          app.ID,
			PostingID:   app.PostingID,
			ApplicantID: app.ApplicantID,
			CompanyID:   app.CompanyID,
			Status:      app.Status,
		},
		OccurredAt: time.Now().UTC(),
	})
}

// Notify queues an e-mail for the notifier worker.
func (p *Producer) Notify(msg models.Message) {
	p.enqueue(Event{
		Type:       NotificationRequested,
		Message:    &msg,
		OccurredAt: time.Now().UTC(),
	})
}

func (p *Producer) enqueue(event Event) {
	select {
	case p.events <- event:
	default:
		p.logger.Warn("Kafka producer queue full, dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("key", event.Key()),
		)
	}
}

func (p *Producer) eventLoop() {
	defer close(p.done)
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		case <-p.closeChan:
			p.drain()
			return
		}
	}
}

// drain flushes whatever is still buffered at shutdown.
func (p *Producer) drain() {
	for {
		select {
		case event := <-p.events:
			p.sendEvent(context.Background(), event)
		default:
			return
		}
	}
}

func (p *Producer) sendEvent(ctx context.Context, event Event) {
	value, err := jsonMarshal(event)
	if err != nil {
		p.logger.Error("Failed to serialize event",
			zap.Error(err),
			zap.String("key", event.Key()),
		)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key()),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to produce event",
			zap.Error(err),
			zap.String("event_type", string(event.Type)),
			zap.String("key", event.Key()),
		)
	}
}

// Close stops the loop after flushing buffered events and closes the writer.
func (p *Producer) Close() {
	close(p.closeChan)
	if p.done != nil {
		<-p.done
	}
	if err := p.writer.Close(); err != nil {
		p.logger.Error("Failed to close Kafka writer", zap.Error(err))
	}
}
