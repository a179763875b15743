package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/types"
)

func TestSubscribePublishDelivers(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	assert.Equal(t, 1, b.SubscriberCount())

	evt := &models.Event{Type: types.EventLargeSwap}
	b.Publish(evt)

	select {
	case got := <-ch:
		assert.Same(t, evt, got)
	case <-time.After(time.Second):
		t.Fatal("expected to receive published event")
	}
}

func TestUnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe()

	unsubscribe()
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-ch
	assert.False(t, open, "channel should be closed after unsubscribe")

	// Publishing after unsubscribe must not panic or block.
	b.Publish(&models.Event{Type: types.EventLargeTransfer})
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBroadcaster()
	_, unsubscribe := b.Subscribe()
	unsubscribe()
	require.NotPanics(t, unsubscribe)
}

func TestPublishDropsOnFullSubscriberBacklog(t *testing.T) {
	b := NewBroadcaster()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	// Fill the subscriber's backlog without draining it.
	for i := 0; i < subscriberBacklog; i++ {
		b.Publish(&models.Event{Type: types.EventPerpTrade})
	}

	// One more publish beyond capacity must not block the producer.
	done := make(chan struct{})
	go func() {
		b.Publish(&models.Event{Type: types.EventExchangeFlow})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}

	assert.Len(t, ch, subscriberBacklog)
}

func TestPublishDoesNotBlockOnOneSlowSubscriber(t *testing.T) {
	b := NewBroadcaster()
	slow, unsubSlow := b.Subscribe()
	fast, unsubFast := b.Subscribe()
	defer unsubSlow()
	defer unsubFast()
	_ = slow // never drained, simulating a stalled consumer

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < subscriberBacklog+10; i++ {
			b.Publish(&models.Event{Type: types.EventLargeSwap})
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked because a slow subscriber never drained")
	}

	select {
	case <-fast:
	default:
		t.Fatal("fast subscriber should have received at least one event")
	}
}

func TestConcurrentSubscribeAndPublish(t *testing.T) {
	b := NewBroadcaster()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, unsubscribe := b.Subscribe()
			defer unsubscribe()
			for j := 0; j < 10; j++ {
				b.Publish(&models.Event{Type: types.EventLargeSwap})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, b.SubscriberCount())
}
