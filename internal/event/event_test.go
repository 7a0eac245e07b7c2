package event_test

import (
	"sync"
	"testing"
	"time"

	"github.com/avfoundry/proxa/internal/event"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSynchronousHandlerReceivesDispatch(t *testing.T) {
	bus := event.New()

	received := make([]event.Payload, 0)
	bus.RegisterHandlerFunction(event.NewAssetEvent, func(_ event.Event, payload event.Payload) {
		received = append(received, payload)
	})

	id := uuid.New()
	bus.Dispatch(event.NewAssetEvent, id)

	assert.Len(t, received, 1)
	assert.Equal(t, id, received[0])
}

func TestAsyncHandlerRunsOffTheDispatchingGoroutine(t *testing.T) {
	bus := event.New()

	wg := sync.WaitGroup{}
	wg.Add(1)
	bus.RegisterAsyncHandlerFunction(event.AssetUpdateEvent, func(_ event.Event, _ event.Payload) {
		defer wg.Done()
	})

	bus.Dispatch(event.AssetUpdateEvent, uuid.New())
	wg.Wait()
}

func TestChannelHandlerReceivesOnlySubscribedEvents(t *testing.T) {
	bus := event.New()

	channel := make(event.HandlerChannel, 8)
	bus.RegisterHandlerChannel(channel, event.NewAssetEvent, event.DeleteAssetEvent)

	newID := uuid.New()
	deleteID := uuid.New()
	bus.Dispatch(event.NewAssetEvent, newID)
	bus.Dispatch(event.AssetUpdateEvent, uuid.New())
	bus.Dispatch(event.DeleteAssetEvent, deleteID)

	assert.Len(t, channel, 2)

	first := <-channel
	assert.Equal(t, event.NewAssetEvent, first.Event)
	assert.Equal(t, newID, first.Payload)

	second := <-channel
	assert.Equal(t, event.DeleteAssetEvent, second.Event)
	assert.Equal(t, deleteID, second.Payload)
}

func TestDispatchRejectsPayloadOfWrongType(t *testing.T) {
	bus := event.New()

	channel := make(event.HandlerChannel, 1)
	bus.RegisterHandlerChannel(channel, event.NewAssetEvent)

	bus.Dispatch(event.NewAssetEvent, "not-a-uuid")

	select {
	case message := <-channel:
		t.Fatalf("expected no message for invalid payload, received %#v", message)
	case <-time.After(100 * time.Millisecond):
	}
}
