package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/artg-queue/pkg/types"
)

func result(truckID string) types.Notification {
	return types.Notification{
		Event:   types.EventPredictionResult,
		TruckID: truckID,
		Status:  "success",
	}
}

func TestPublishBroadcasts(t *testing.T) {
	h := NewHub(nil)
	a := h.Subscribe(4)
	b := h.Subscribe(4)
	require.NotEqual(t, a.ID, b.ID)

	assert.Equal(t, 2, h.Publish(result("T1")))

	assert.Equal(t, "T1", (<-a.C).TruckID)
	assert.Equal(t, "T1", (<-b.C).TruckID)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	h := NewHub(nil)
	assert.Equal(t, 0, h.Publish(result("T1")))
}

func TestSlowSubscriberDrops(t *testing.T) {
	h := NewHub(nil)
	var dropped []string
	h.OnDrop(func(event string) { dropped = append(dropped, event) })

	slow := h.Subscribe(1)
	fast := h.Subscribe(8)

	assert.Equal(t, 2, h.Publish(result("T1")))
	assert.Equal(t, 1, h.Publish(result("T2")))

	assert.Equal(t, []string{types.EventPredictionResult}, dropped)
	assert.Equal(t, "T1", (<-slow.C).TruckID)
	assert.Len(t, fast.C, 2)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe(1)

	h.Unsubscribe(sub.ID)
	h.Unsubscribe(sub.ID)
	h.Unsubscribe("unknown")

	_, ok := <-sub.C
	assert.False(t, ok)
	assert.Equal(t, 0, h.Count())
	assert.Equal(t, 0, h.Publish(result("T1")))
}

func TestClose(t *testing.T) {
	h := NewHub(nil)
	sub := h.Subscribe(1)

	h.Close()
	h.Close()

	_, ok := <-sub.C
	assert.False(t, ok)

	late := h.Subscribe(1)
	_, ok = <-late.C
	assert.False(t, ok, "subscriptions after Close are closed")
}

func TestConcurrentPublishAndUnsubscribe(t *testing.T) {
	h := NewHub(nil)
	subs := make([]*Subscription, 10)
	for i := range subs {
		subs[i] = h.Subscribe(1000)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Publish(result("T"))
			}
		}()
	}
	for _, s := range subs[:5] {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			h.Unsubscribe(id)
		}(s.ID)
	}
	wg.Wait()

	assert.Equal(t, 5, h.Count())
	for _, s := range subs[5:] {
		assert.Len(t, s.C, 500)
	}
}
