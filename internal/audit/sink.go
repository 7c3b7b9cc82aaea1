package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"equiprent/internal/config"
	"equiprent/internal/events"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Inserter is the part of *mongo.Collection the sink writes through.
type Inserter interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
}

// Record is one booking lifecycle entry in the audit collection.
type Record struct {
	ID          string    `bson:"_id"`
	Action      string    `bson:"action"`
	BookingID   string    `bson:"booking_id"`
	EquipmentID string    `bson:"equipment_id"`
	ActorID     string    `bson:"actor_id"`
	RenterID    string    `bson:"renter_id"`
	OwnerID     string    `bson:"owner_id"`
	Status      string    `bson:"status"`
	TotalPrice  int64     `bson:"total_price"`
	Start       time.Time `bson:"start"`
	End         time.Time `bson:"end"`
	Timestamp   time.Time `bson:"timestamp"`
}

const defaultQueueSize = 256

// Sink persists booking events to mongo from a background queue,
// so booking writes never wait on the audit store.
type Sink struct {
	coll    Inserter
	timeout time.Duration
	queue   chan events.Event
	logger  *zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewSink(coll Inserter, logger *zerolog.Logger) *Sink {
	return &Sink{
		coll:    coll,
		timeout: 3 * time.Second,
		queue:   make(chan events.Event, defaultQueueSize),
		logger:  logger,
	}
}

// Connect opens the mongo client and returns a sink on the configured collection.
// The returned func disconnects the client.
func Connect(ctx context.Context, cfg config.AuditConfig, logger *zerolog.Logger) (*Sink, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}
	coll := client.Database(cfg.Database).Collection(cfg.Collection)
	return NewSink(coll, logger), client.Disconnect, nil
}

// Attach subscribes the sink to every booking event on bus.
func (s *Sink) Attach(bus *events.EventBus) {
	bus.SubscribeAll(s.Enqueue)
}

// Enqueue hands the event to the background writer. A full queue drops the event.
func (s *Sink) Enqueue(event *events.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("audit sink closed")
	}
	select {
	case s.queue <- *event:
		return nil
	default:
		return fmt.Errorf("audit queue full, %s event dropped", event.Type)
	}
}

// Start launches the writer loop. It runs until Close drains the queue;
// ctx is the parent of every insert.
func (s *Sink) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for event := range s.queue {
			if err := s.write(ctx, &event); err != nil {
				s.logger.Error().Err(err).Str("event_type", event.Type).Msg("failed to write audit record")
			}
		}
	}()
}

// Close stops accepting events and waits until queued ones are written.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
}

// Handle writes one event synchronously.
func (s *Sink) Handle(event *events.Event) error {
	return s.write(context.Background(), event)
}

func (s *Sink) write(parent context.Context, event *events.Event) error {
	var p events.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	rec := Record{
		ID:          uuid.NewString(),
		Action:      event.Type,
		BookingID:   p.BookingID,
		EquipmentID: p.EquipmentID,
		ActorID:     p.ActorID,
		RenterID:    p.RenterID,
		OwnerID:     p.OwnerID,
		Status:      p.Status,
		TotalPrice:  p.TotalPrice,
		Start:       p.Start,
		End:         p.End,
		Timestamp:   p.OccurredAt,
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = event.CreatedAt
	}

	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	if _, err := s.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert audit record for booking %s: %w", p.BookingID, err)
	}
	return nil
}
