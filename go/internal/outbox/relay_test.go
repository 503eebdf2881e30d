package outbox

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*Record
	order    []uuid.UUID
	sent     map[uuid.UUID]map[string]string
	failures map[uuid.UUID]int
}

func newFakeStore(recs ...Record) *fakeStore {
	s := &fakeStore{
		rows:     make(map[uuid.UUID]*Record),
		sent:     make(map[uuid.UUID]map[string]string),
		failures: make(map[uuid.UUID]int),
	}
	for _, r := range recs {
		r := r
		s.rows[r.ID] = &r
		s.order = append(s.order, r.ID)
	}
	return s
}

func (s *fakeStore) FetchUnsent(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, id := range s.order {
		if _, done := s.sent[id]; done {
			continue
		}
		out = append(out, *s.rows[id])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) FetchByID(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if _, done := s.sent[id]; !ok || done {
		return nil, ErrNotPending
	}
	c := *r
	return &c, nil
}

func (s *fakeStore) MarkSent(_ context.Context, id uuid.UUID, headers map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = headers
	return nil
}

func (s *fakeStore) RecordFailure(_ context.Context, id uuid.UUID, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[id]++
	return nil
}

func (s *fakeStore) CountPending(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows) - len(s.sent), nil
}

type fakePublisher struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	published []uuid.UUID
}

func (p *fakePublisher) Publish(_ context.Context, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("nats unavailable")
	}
	p.published = append(p.published, rec.ID)
	return nil
}

func record(eventType string) Record {
	return Record{
		ID:        uuid.New(),
		EventType: eventType,
		AuctionID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		Payload:   []byte(`{"eventType":"` + eventType + `"}`),
	}
}

func testConfig() RelayConfig {
	return RelayConfig{MaxRetries: 2, BatchSize: 10}
}

func TestRelay_HandleIDPublishesAndMarksSent(t *testing.T) {
	rec := record("new-bid")
	store := newFakeStore(rec)
	pub := &fakePublisher{}
	relay := NewRelay(store, pub, testConfig(), clockwork.NewRealClock())

	require.NoError(t, relay.HandleID(context.Background(), rec.ID))

	assert.Equal(t, []uuid.UUID{rec.ID}, pub.published)
	require.Contains(t, store.sent, rec.ID)
	assert.Equal(t, "new-bid", store.sent[rec.ID]["Event-Type"])
	assert.Equal(t, rec.AuctionID.UUID.String(), store.sent[rec.ID]["Auction-ID"])

	processed, last := relay.Stats()
	assert.Equal(t, uint64(1), processed)
	assert.False(t, last.IsZero())

	// a second notification for the same row is a no-op
	require.NoError(t, relay.HandleID(context.Background(), rec.ID))
	assert.Len(t, pub.published, 1)
}

func TestRelay_RetriesThenSucceeds(t *testing.T) {
	rec := record("auction-started")
	store := newFakeStore(rec)
	pub := &fakePublisher{failFirst: 2}
	relay := NewRelay(store, pub, testConfig(), clockwork.NewRealClock())

	require.NoError(t, relay.HandleID(context.Background(), rec.ID))
	assert.Equal(t, 3, pub.calls)
	assert.Zero(t, store.failures[rec.ID])
}

func TestRelay_GivesUpAndRecordsFailure(t *testing.T) {
	rec := record("auction-started")
	store := newFakeStore(rec)
	pub := &fakePublisher{failFirst: 100}
	relay := NewRelay(store, pub, testConfig(), clockwork.NewRealClock())

	err := relay.HandleID(context.Background(), rec.ID)
	require.Error(t, err)
	assert.Equal(t, 3, pub.calls)
	assert.Equal(t, 1, store.failures[rec.ID])
	assert.NotContains(t, store.sent, rec.ID)
}

func TestRelay_ProcessUnsentKeepsCommitOrder(t *testing.T) {
	recs := []Record{record("auction-started"), record("new-bid"), record("auction-completed")}
	store := newFakeStore(recs...)
	pub := &fakePublisher{}
	relay := NewRelay(store, pub, testConfig(), clockwork.NewRealClock())

	sent, err := relay.ProcessUnsent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, []uuid.UUID{recs[0].ID, recs[1].ID, recs[2].ID}, pub.published)

	sent, err = relay.ProcessUnsent(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

type dbPinger struct{ err error }

func (p dbPinger) PingContext(context.Context) error { return p.err }

type listenerState bool

func (l listenerState) Active() bool { return bool(l) }

func TestHealthChecker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := record("new-bid")
	store := newFakeStore(rec, record("new-bid"))
	relay := NewRelay(store, &fakePublisher{}, testConfig(), clock)
	require.NoError(t, relay.HandleID(context.Background(), rec.ID))

	checker := NewHealthChecker(relay, store, dbPinger{}, nil, listenerState(true), clock, time.Minute)
	status := checker.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.PendingEvents)
	assert.Equal(t, uint64(1), status.EventsProcessed)

	clock.Advance(2 * time.Minute)
	status = checker.Check(context.Background())
	assert.False(t, status.Healthy)

	down := NewHealthChecker(relay, store, dbPinger{err: errors.New("refused")}, nil, listenerState(false), clock, time.Minute)
	rr := httptest.NewRecorder()
	down.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"database_connected":false`)
}

func TestJetStreamPublisher_Message(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	p := &JetStreamPublisher{config: cfg}
	rec := record("selling-stage-updated")

	msg := p.Message(rec)
	assert.Equal(t, "auction.events.selling-stage-updated", msg.Subject)
	assert.Equal(t, []byte(rec.Payload), msg.Data)
	assert.Equal(t, rec.ID.String(), msg.Header.Get("Event-ID"))
	assert.Equal(t, []string{"auction.events.>"}, cfg.StreamConfig().Subjects)
}
