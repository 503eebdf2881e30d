package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.C:
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func mustEvent(t *testing.T, typ Type, seq int64) Event {
	t.Helper()
	e, err := New(typ, uuid.New(), seq, time.Now(), NewBidPayload{Amount: int(seq) * 5})
	require.NoError(t, err)
	return e
}

func TestBus_DeliversInPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	ctx := context.Background()
	// Publish far more than any channel buffer before reading anything.
	for i := int64(1); i <= 500; i++ {
		require.NoError(t, bus.Publish(ctx, mustEvent(t, TypeNewBid, i)))
	}
	for i := int64(1); i <= 500; i++ {
		assert.Equal(t, i, receive(t, sub).Sequence)
	}
}

func TestBus_Filter(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe(TypeAuctionCompleted)

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, mustEvent(t, TypeNewBid, 1), mustEvent(t, TypeAuctionCompleted, 2)))

	e := receive(t, sub)
	assert.Equal(t, TypeAuctionCompleted, e.Type)
	assert.Equal(t, 0, sub.Pending())
}

func TestBus_CloseEndsSubscription(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	sub.Close()

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
	require.NoError(t, bus.Publish(context.Background(), mustEvent(t, TypeNewBid, 1)))
}

func TestDecode(t *testing.T) {
	e := mustEvent(t, TypeNewBid, 3)
	p, err := Decode[NewBidPayload](e)
	require.NoError(t, err)
	assert.Equal(t, 15, p.Amount)
}

type failing struct{ err error }

func (f failing) Publish(context.Context, ...Event) error { return f.err }

func TestMulti_PublishesToAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()
	sub := bus.Subscribe()

	boom := errors.New("boom")
	err := Multi{failing{boom}, bus}.Publish(context.Background(), mustEvent(t, TypeNewBid, 1))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), receive(t, sub).Sequence)
}
