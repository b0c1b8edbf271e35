package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tripy/logger"
)

// TripEventsChannel is the Redis pub/sub channel trip changes go out on.
const TripEventsChannel = "trip-events"

const (
	EventAssembled = "trip.assembled"
	EventEdited    = "trip.edited"
)

// TripEvent announces a committed trip version.
type TripEvent struct {
	Type    string    `json:"type"`
	TripID  string    `json:"tripid"`
	Version int64     `json:"version"`
	Summary string    `json:"summary,omitempty"`
	At      time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev TripEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TripEvent) error { return nil }

// Emitter publishes trip events to Redis.
type Emitter struct {
	client *redis.Client
}

func NewEmitter(client *redis.Client) *Emitter {
	return &Emitter{client: client}
}

func (e *Emitter) Publish(ctx context.Context, ev TripEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal trip event: %w", err)
	}
	if err := e.client.Publish(ctx, TripEventsChannel, data).Err(); err != nil {
		return fmt.Errorf("publish %s for %s: %w", ev.Type, ev.TripID, err)
	}
	logger.Get().Debug("trip event published", zap.String("type", ev.Type), zap.String("trip_id", ev.TripID), zap.Int64("version", ev.Version))
	return nil
}

// Emit publishes ev and only logs a failure. Events are notifications; the
// committed trip does not depend on them.
func Emit(ctx context.Context, p Publisher, ev TripEvent) {
	if p == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, ev); err != nil {
		logger.Get().Warn("trip event not published", zap.String("type", ev.Type), zap.String("trip_id", ev.TripID), zap.Error(err))
	}
}

// Local delivers events in-process, for single-node runs without Redis.
type Local struct {
	handle func(TripEvent)
}

func NewLocal(handle func(TripEvent)) *Local {
	return &Local{handle: handle}
}

func (l *Local) Publish(_ context.Context, ev TripEvent) error {
	if ev.TripID == "" {
		return fmt.Errorf("trip event %s without trip id", ev.Type)
	}
	l.handle(ev)
	return nil
}
