package api

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetroute/internal/model"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t1")
	other := b.Subscribe("t2")

	evt := SSEEvent{Type: model.EventPlanSolved, Data: model.PlanEvent{Type: model.EventPlanSolved, TenantID: "t1", PlanID: "p1"}}
	b.Publish("t1", evt)

	select {
	case got := <-ch:
		assert.Equal(t, evt, got)
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("event leaked to another tenant: %+v", got)
	default:
	}

	b.Unsubscribe("t1", ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	assert.Zero(t, b.Subscribers("t1"))
	assert.Equal(t, 1, b.Subscribers("t2"))

	// a second unsubscribe must not panic on the closed channel
	b.Unsubscribe("t1", ch)
}

func TestBrokerPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("t1")
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish("t1", SSEEvent{Type: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked")
	}
	assert.Len(t, ch, cap(ch))
}

func TestRedisBroker_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	b, err := NewRedisBroker(url)
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	topic := "test-" + time.Now().Format("150405.000000")
	ch := b.Subscribe(topic)
	evt := SSEEvent{Type: model.EventPlanSolved, Data: model.PlanEvent{PlanID: "p1", TotalDistance: 80}}
	b.Publish(topic, evt)
	select {
	case got := <-ch:
		assert.Equal(t, evt, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}
	b.Unsubscribe(topic, ch)
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
