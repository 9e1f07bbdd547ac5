// Package audit records who changed stock, sales, consignments and returns.
// Events are written after the owning transaction commits.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Zimkada/BarTender-sub004/internal/domain"
	"github.com/Zimkada/BarTender-sub004/internal/logger"
)

type Action string

const (
	ActionProductCreated     Action = "product.created"
	ActionStockSupplied      Action = "stock.supplied"
	ActionStockCounted       Action = "stock.counted"
	ActionSaleCreated        Action = "sale.created"
	ActionSaleValidated      Action = "sale.validated"
	ActionSaleRejected       Action = "sale.rejected"
	ActionSaleCancelled      Action = "sale.cancelled"
	ActionConsignmentCreated Action = "consignment.created"
	ActionConsignmentClaimed Action = "consignment.claimed"
	ActionConsignmentExpired Action = "consignment.expired"
	ActionConsignmentForfeit Action = "consignment.forfeited"
	ActionReturnCreated      Action = "return.created"
	ActionReturnApproved     Action = "return.approved"
	ActionReturnRejected     Action = "return.rejected"
	ActionReturnRestocked    Action = "return.restocked"
)

type Event struct {
	ID         string    `json:"id"`
	Action     Action    `json:"action"`
	ActorID    string    `json:"actor_id"`
	ActorRole  string    `json:"actor_role"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	At         time.Time `json:"at"`
	Change
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Change holds the before/after values of an audited operation. StatusFrom
// is empty for creations.
type Change struct {
	StatusFrom string        `json:"status_from,omitempty"`
	StatusTo   string        `json:"status_to,omitempty"`
	Stock      []StockChange `json:"stock,omitempty"`
}

// StockChange is one product's physical stock around the change.
type StockChange struct {
	ProductID string              `json:"product_id"`
	Kind      domain.MovementKind `json:"kind"`
	Before    int                 `json:"before"`
	After     int                 `json:"after"`
}

// Transition builds a Change for a status move with the stock it caused.
func Transition[S ~string](from, to S, movements ...domain.Movement) Change {
	c := Change{StatusFrom: string(from), StatusTo: string(to)}
	for _, m := range movements {
		c.Stock = append(c.Stock, StockChange{ProductID: m.ProductID, Kind: m.Kind, Before: m.Before, After: m.After})
	}
	return c
}

// StockMoves builds a Change for operations that move stock without a
// status.
func StockMoves(movements ...domain.Movement) Change {
	return Transition[string]("", "", movements...)
}

// Sink persists events. Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

type Noop struct{}

func (Noop) Write(context.Context, Event) error { return nil }

// LogSink writes each event as a structured log entry.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.WithComponent("audit")}
}

func (s *LogSink) Write(_ context.Context, e Event) error {
	s.log.Infow(string(e.Action),
		"event_id", e.ID,
		"actor_id", e.ActorID,
		"actor_role", e.ActorRole,
		"entity_type", e.EntityType,
		"entity_id", e.EntityID,
		"at", e.At,
		"status_from", e.StatusFrom,
		"status_to", e.StatusTo,
		"stock", e.Stock,
		"metadata", e.Metadata,
	)
	return nil
}

// RedisStreamSink appends events to a capped Redis stream.
type RedisStreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamSink(client *redis.Client, stream string, maxLen int64) *RedisStreamSink {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &RedisStreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSink) Write(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"action":    string(e.Action),
			"entity_id": e.EntityID,
			"event":     payload,
		},
	}).Err()
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Write(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder stamps events and never fails the caller: a sink error is
// logged and dropped since the audited change is already committed.
type Recorder struct {
	sink Sink
	log  *logger.Logger
	now  func() time.Time
}

func NewRecorder(sink Sink, log *logger.Logger, now func() time.Time) *Recorder {
	if sink == nil {
		sink = Noop{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if now == nil {
		now = time.Now
	}
	return &Recorder{sink: sink, log: log.WithComponent("audit"), now: now}
}

func (r *Recorder) Record(ctx context.Context, action Action, actorID, actorRole, entityType, entityID string, change Change, metadata map[string]any) {
	event := Event{
		ID:         uuid.NewString(),
		Action:     action,
		ActorID:    actorID,
		ActorRole:  actorRole,
		EntityType: entityType,
		EntityID:   entityID,
		At:         r.now().UTC(),
		Change:     change,
		Metadata:   metadata,
	}
	if err := r.sink.Write(ctx, event); err != nil {
		r.log.Warnw("audit write failed", "action", action, "entity_id", entityID, "error", err)
	}
}
