package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"earnings-service/internal/models"
	"earnings-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing ledger events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// NewBaseEvent stamps a fresh event envelope
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderMaterialized publishes OrderMaterialized event
func (ep *EventPublisher) PublishOrderMaterialized(ctx context.Context, event *models.OrderMaterializedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishEarningsCredited publishes EarningsCredited event
func (ep *EventPublisher) PublishEarningsCredited(ctx context.Context, event *models.EarningsCreditedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishLedgerAlert publishes LedgerAlert event
func (ep *EventPublisher) PublishLedgerAlert(ctx context.Context, event *models.LedgerAlertEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// EventHandler handles incoming ledger events
type EventHandler struct {
	onLedgerAlert func(context.Context, *models.LedgerAlertEvent) error
	logger        *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnLedgerAlert registers a handler for LedgerAlert events
func (eh *EventHandler) OnLedgerAlert(handler func(context.Context, *models.LedgerAlertEvent) error) {
	eh.onLedgerAlert = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeLedgerAlert:
		if eh.onLedgerAlert != nil {
			var event models.LedgerAlertEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal LedgerAlert event: %w", err)
			}
			return eh.onLedgerAlert(ctx, &event)
		}

	case models.EventTypeOrderMaterialized, models.EventTypeEarningsCredited:
		// informational for downstream consumers

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
