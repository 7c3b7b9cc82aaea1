package events

import (
	"encoding/json"
	"sync"
	"time"

	"equiprent/internal/models"

	"github.com/rs/zerolog"
)

const (
	EventBookingRequested = "booking_requested"
	EventBookingAccepted  = "booking_accepted"
	EventBookingRejected  = "booking_rejected"
)

// BookingEventTypes lists every event the booking engine emits.
var BookingEventTypes = []string{EventBookingRequested, EventBookingAccepted, EventBookingRejected}

// EventTypeFor maps the status a booking just entered to its event.
func EventTypeFor(status models.Status) string {
	switch status {
	case models.StatusAccepted:
		return EventBookingAccepted
	case models.StatusRejected:
		return EventBookingRejected
	default:
		return EventBookingRequested
	}
}

// BookingEventPayload describes the booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID     string    `json:"booking_id"`
	EquipmentID   string    `json:"equipment_id"`
	RenterID      string    `json:"renter_id"`
	OwnerID       string    `json:"owner_id"`
	ActorID       string    `json:"actor_id"`
	Status        string    `json:"status"`
	Mode          string    `json:"mode"`
	Hours         int       `json:"hours,omitempty"`
	TotalPrice    int64     `json:"total_price"`
	PaymentMethod string    `json:"payment_method"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewBookingPayload snapshots b as changed by actorID.
func NewBookingPayload(b *models.Booking, actorID string, at time.Time) BookingEventPayload {
	return BookingEventPayload{
		BookingID:     b.ID,
		EquipmentID:   b.EquipmentID,
		RenterID:      b.RenterID,
		OwnerID:       b.OwnerID,
		ActorID:       actorID,
		Status:        string(b.Status),
		Mode:          string(b.Mode),
		Hours:         b.Hours,
		TotalPrice:    int64(b.TotalPrice),
		PaymentMethod: string(b.PaymentMethod),
		Start:         b.Interval.Start(),
		End:           b.Interval.End(),
		OccurredAt:    at,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged when logger is set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers handler for every booking event.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range BookingEventTypes {
		b.Subscribe(t, handler)
	}
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Handlers run synchronously; slow consumers queue on their own.
	for _, handler := range handlers {
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Error().Err(err).Str("event_type", event.Type).Msg("event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	b.Publish(&event)
	return nil
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
