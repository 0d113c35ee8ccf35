package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/kafka"
)

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
}

func (p *fakePublisher) Publish(_ context.Context, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, len(p.events))
	for i, e := range p.events {
		keys[i] = e.Key
	}
	return keys
}

func TestCollectorPublishesInOrder(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 16)
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Query: "fever"})
	c.TrackIndex(IndexEvent{Op: "add", Documents: 3})
	c.Track(SearchEvent{Type: EventZeroResult, Query: "xyz"})
	c.Close()

	assert.Equal(t, []string{"fever", "index:add", "xyz"}, pub.keys())
	idx, ok := pub.events[1].Value.(IndexEvent)
	require.True(t, ok)
	assert.Equal(t, EventIndex, idx.Type)
	assert.Equal(t, "index", pub.events[1].Headers["event-type"])
	assert.Equal(t, "zero_result", pub.events[2].Headers["event-type"])
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 1)
	c.Track(SearchEvent{Query: "kept"})
	c.Track(SearchEvent{Query: "dropped"})

	c.Start(context.Background())
	c.Close()
	assert.Equal(t, []string{"kept"}, pub.keys())
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, 8)
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Start(ctx)
	<-c.done
	assert.ElementsMatch(t, []string{"a", "b"}, pub.keys())
}

func feed(t *testing.T, agg *Aggregator, event any) {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, HandleEvent(agg)(context.Background(), nil, data))
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator(nil)
	feed(t, agg, SearchEvent{Type: EventSearch, Query: "Fever", Normalized: "fever", TotalHits: 4, LatencyMs: 2})
	feed(t, agg, SearchEvent{Type: EventSearch, Query: "fever ", Normalized: "fever", TotalHits: 4, LatencyMs: 4, CacheHit: true})
	feed(t, agg, SearchEvent{Type: EventZeroResult, Query: "xyzzy", Normalized: "xyzzy", LatencyMs: 6})
	feed(t, agg, IndexEvent{Type: EventIndex, Op: "add_many", Documents: 25, Terms: 90, Timestamp: time.Now()})
	require.NoError(t, HandleEvent(agg)(context.Background(), nil, []byte("garbage")))
	feed(t, agg, map[string]string{"type": "mystery"})

	stats := agg.Stats()
	assert.Equal(t, int64(3), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(2), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.ZeroResultCount)
	assert.Equal(t, int64(1), stats.IndexMutations)
	assert.Equal(t, 25, stats.IndexedDocuments)
	assert.InDelta(t, 4.0, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(4), stats.P50LatencyMs)
	assert.Equal(t, []QueryCount{{"fever", 2}, {"xyzzy", 1}}, stats.TopQueries)
	assert.Equal(t, []QueryCount{{"xyzzy", 1}}, stats.ZeroResultQueries)
}

func TestAggregatorStartWithoutConsumer(t *testing.T) {
	assert.Error(t, NewAggregator(nil).Start(context.Background()))
}

func TestHandler(t *testing.T) {
	agg := NewAggregator(nil)
	agg.RecordSearch(SearchEvent{Query: "a", Normalized: "a", TotalHits: 1})
	agg.RecordSearch(SearchEvent{Query: "b", Normalized: "b", TotalHits: 1})

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(2), stats.TotalSearches)
	assert.Equal(t, []QueryCount{{"a", 1}}, stats.TopQueries)
	assert.Nil(t, stats.Consumer)

	for _, bad := range []string{"x", "-1"} {
		rec = httptest.NewRecorder()
		NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}

	rec = httptest.NewRecorder()
	NewHandler(nil).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
