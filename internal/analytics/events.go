package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventCacheHit   EventType = "cache_hit"
	EventZeroResult EventType = "zero_result"
	EventIndexDoc   EventType = "index_document"
)

// SearchEvent describes one answered query.
type SearchEvent struct {
	Type         EventType `json:"type"`
	Query        string    `json:"query"`
	Pivot        string    `json:"pivot,omitempty"`
	Page         int       `json:"page"`
	PageSize     int       `json:"page_size"`
	TotalMatches int       `json:"total_matches"`
	Returned     int       `json:"returned"`
	Correction   string    `json:"correction,omitempty"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Partitions   int       `json:"partitions"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}

// IndexEvent describes one document written to the posting store.
type IndexEvent struct {
	Type      EventType `json:"type"`
	URL       string    `json:"url"`
	Terms     int       `json:"terms"`
	Rows      int       `json:"rows"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// Tracker accepts analytics events without blocking the caller.
type Tracker interface {
	Track(event any)
}

type multiTracker []Tracker

func (m multiTracker) Track(event any) {
	for _, t := range m {
		t.Track(event)
	}
}

// Multi fans every event out to each non-nil tracker.
func Multi(trackers ...Tracker) Tracker {
	out := make(multiTracker, 0, len(trackers))
	for _, t := range trackers {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
