package webhook

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"
)

// Outcome classifies a recorded delivery attempt
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
	OutcomeDropped   Outcome = "dropped"
)

// DeliveryRecord captures the result of one delivery attempt
type DeliveryRecord struct {
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	Event      string        `json:"event"`
	SessionID  string        `json:"sessionId"`
	Attempt    int           `json:"attempt"`
	Outcome    Outcome       `json:"outcome"`
	StatusCode int           `json:"statusCode,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"durationMs"`
	Timestamp  time.Time     `json:"timestamp"`
}

// History keeps a bounded in-memory record of recent delivery attempts.
// Oldest records are evicted once the bound is reached.
type History struct {
	cache *lru.Cache[string, *DeliveryRecord]
}

// NewHistory creates a delivery history bounded to size records
func NewHistory(size int) (*History, error) {
	cache, err := lru.New[string, *DeliveryRecord](size)
	if err != nil {
		return nil, err
	}
	return &History{cache: cache}, nil
}

// Record stores an attempt result, assigning it a unique id
func (h *History) Record(rec *DeliveryRecord) {
	rec.ID = uuid.NewString()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	h.cache.Add(rec.ID, rec)
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (h *History) Recent(limit int) []*DeliveryRecord {
	keys := h.cache.Keys() // oldest to newest
	if limit <= 0 || limit > len(keys) {
		limit = len(keys)
	}

	result := make([]*DeliveryRecord, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(result) < limit; i-- {
		if rec, ok := h.cache.Peek(keys[i]); ok {
			result = append(result, rec)
		}
	}
	return result
}

// Len returns the number of records currently retained
func (h *History) Len() int {
	return h.cache.Len()
}
