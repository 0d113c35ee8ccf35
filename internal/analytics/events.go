package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventIndex      EventType = "index"
)

// SearchEvent describes one executed search.
type SearchEvent struct {
	Type       EventType `json:"type"`
	Query      string    `json:"query"`
	Normalized string    `json:"normalized"`
	TotalHits  int       `json:"total_hits"`
	Returned   int       `json:"returned"`
	LatencyMs  int64     `json:"latency_ms"`
	CacheHit   bool      `json:"cache_hit"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
}

// IndexEvent describes one index mutation.
type IndexEvent struct {
	Type      EventType `json:"type"`
	Op        string    `json:"op"`
	Documents int       `json:"documents"`
	Terms     int       `json:"terms"`
	Timestamp time.Time `json:"timestamp"`
}
