package events

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/moexfolio/internal/domain"
)

func event() domain.Event {
	return domain.NewLatestInfoEvent(time.Now(), domain.LatestInfoPayload{TotalPrice: decimal.NewFromInt(1000)})
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(4)
	first := b.Subscribe()
	second := b.Subscribe()

	assert.Equal(t, 2, b.Publish(event()))

	for _, ch := range []chan domain.Event{first, second} {
		select {
		case e := <-ch:
			assert.Equal(t, domain.PayloadLatestInfo, e.Kind)
			require.NotNil(t, e.LatestInfo)
			assert.Equal(t, "1000", e.LatestInfo.TotalPrice.String())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBroadcaster_DropsSlowConsumer(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()

	assert.Equal(t, 1, b.Publish(event()))
	assert.Equal(t, 0, b.Publish(event()))
	assert.Len(t, ch, 1)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	// second call is a no-op
	b.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers())
	assert.Equal(t, 0, b.Publish(event()))
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(1)
	ch := b.Subscribe()
	b.Close()

	_, open := <-ch
	assert.False(t, open)

	late := b.Subscribe()
	_, open = <-late
	assert.False(t, open)
}
