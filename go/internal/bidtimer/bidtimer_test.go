package bidtimer

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skjftp/fpl-auction-sub001/go/internal/models"
)

type fired struct {
	auctionID uuid.UUID
	version   int64
}

type recordingHandler struct {
	ch chan fired
}

func (h *recordingHandler) HandleExpiry(_ context.Context, auctionID uuid.UUID, version int64) error {
	h.ch <- fired{auctionID: auctionID, version: version}
	return nil
}

func setup(t *testing.T) (*Timer, *clockwork.FakeClock, *recordingHandler) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	h := &recordingHandler{ch: make(chan fired, 10)}
	timer := New(h, DefaultDurations(), WithClock(clock), WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = timer.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return timer, clock, h
}

func waitTimers(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

func expectFired(t *testing.T, h *recordingHandler) fired {
	t.Helper()
	select {
	case f := <-h.ch:
		return f
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for expiry")
		return fired{}
	}
}

func expectQuiet(t *testing.T, h *recordingHandler) {
	t.Helper()
	select {
	case f := <-h.ch:
		t.Fatalf("unexpected expiry %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimer_FiresAfterStageDuration(t *testing.T) {
	timer, clock, h := setup(t)
	id := uuid.New()

	timer.Arm(id, models.AuctionStatusActive, 3)
	waitTimers(t, clock, 1)

	clock.Advance(29 * time.Second)
	expectQuiet(t, h)

	clock.Advance(time.Second)
	assert.Equal(t, fired{auctionID: id, version: 3}, expectFired(t, h))
}

func TestTimer_SellingStagesAreShorter(t *testing.T) {
	timer, clock, h := setup(t)
	id := uuid.New()

	timer.Arm(id, models.AuctionStatusSelling1, 4)
	waitTimers(t, clock, 1)
	clock.Advance(10 * time.Second)
	assert.Equal(t, int64(4), expectFired(t, h).version)
}

func TestTimer_RearmReplacesPrevious(t *testing.T) {
	timer, clock, h := setup(t)
	id := uuid.New()

	timer.Arm(id, models.AuctionStatusActive, 1)
	waitTimers(t, clock, 1)
	clock.Advance(20 * time.Second)

	timer.Arm(id, models.AuctionStatusActive, 2)
	waitTimers(t, clock, 1)
	clock.Advance(10 * time.Second)
	expectQuiet(t, h)

	clock.Advance(20 * time.Second)
	assert.Equal(t, int64(2), expectFired(t, h).version)
	expectQuiet(t, h)
}

func TestTimer_DuplicateArmKeepsDeadline(t *testing.T) {
	timer, clock, _ := setup(t)
	id := uuid.New()

	first := timer.Arm(id, models.AuctionStatusActive, 1)
	waitTimers(t, clock, 1)
	clock.Advance(5 * time.Second)

	second := timer.Arm(id, models.AuctionStatusActive, 1)
	assert.Equal(t, first, second)
}

func TestTimer_CancelStopsCountdown(t *testing.T) {
	timer, clock, h := setup(t)
	id := uuid.New()

	timer.Arm(id, models.AuctionStatusActive, 1)
	waitTimers(t, clock, 1)
	clock.Advance(12 * time.Second)

	left, ok := timer.Cancel(id)
	require.True(t, ok)
	assert.Equal(t, 18*time.Second, left)

	clock.Advance(time.Minute)
	expectQuiet(t, h)

	_, ok = timer.Remaining(id)
	assert.False(t, ok)
}

func TestTimer_ArmForResumesWithRemaining(t *testing.T) {
	timer, clock, h := setup(t)
	id := uuid.New()

	timer.ArmFor(id, models.AuctionStatusSelling2, 7, 4*time.Second)
	waitTimers(t, clock, 1)

	left, ok := timer.Remaining(id)
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, left)

	clock.Advance(4 * time.Second)
	assert.Equal(t, int64(7), expectFired(t, h).version)
}
