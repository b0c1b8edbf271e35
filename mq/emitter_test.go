package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, TripEvent) error {
	f.calls++
	return errors.New("redis down")
}

func TestEmitSwallowsPublishErrors(t *testing.T) {
	p := &failingPublisher{}
	assert.NotPanics(t, func() {
		Emit(context.Background(), p, TripEvent{Type: EventEdited, TripID: "t1", Version: 2})
		Emit(context.Background(), nil, TripEvent{Type: EventEdited, TripID: "t1"})
	})
	assert.Equal(t, 1, p.calls)
}

func TestDispatch(t *testing.T) {
	var got []TripEvent
	handle := func(ev TripEvent) { got = append(got, ev) }

	Dispatch(`{"type":"trip.edited","tripid":"t1","version":3}`, handle)
	Dispatch(`not json`, handle)
	Dispatch(`{"type":"trip.edited"}`, handle)

	assert.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Version)
}

func TestLocalDeliversInProcess(t *testing.T) {
	var got []TripEvent
	l := NewLocal(func(ev TripEvent) { got = append(got, ev) })

	Emit(context.Background(), l, TripEvent{Type: EventAssembled, TripID: "t1", Version: 1})
	assert.Error(t, l.Publish(context.Background(), TripEvent{Type: EventAssembled}))

	assert.Len(t, got, 1)
	assert.False(t, got[0].At.IsZero())
}
