package mq

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tripy/logger"
)

// StartTripEventWorker subscribes to trip events and hands each one to handle
// until ctx is done.
func StartTripEventWorker(ctx context.Context, client *redis.Client, handle func(TripEvent)) {
	sub := client.Subscribe(ctx, TripEventsChannel)
	defer sub.Close()
	ch := sub.Channel()

	log := logger.Get().With(zap.String("channel", TripEventsChannel))
	log.Info("listening for trip events")

	for {
		select {
		case <-ctx.Done():
			log.Info("trip event worker stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			Dispatch(msg.Payload, handle)
		}
	}
}

// Dispatch decodes one payload and passes it on; malformed payloads are dropped.
func Dispatch(payload string, handle func(TripEvent)) {
	var ev TripEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		logger.Get().Warn("bad trip event payload", zap.Error(err))
		return
	}
	if ev.TripID == "" {
		return
	}
	handle(ev)
}
