package store

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"genreroulette/internal/core"
)

// RoundHistory keeps a bounded record of finished rounds. Oldest rounds are
// evicted once the capacity is reached.
type RoundHistory struct {
	cache *lru.Cache[uint64, core.RoundRecord]
}

// NewRoundHistory creates a history bounded to the given capacity.
func NewRoundHistory(capacity int) *RoundHistory {
	if capacity < 1 {
		capacity = 1
	}
	cache, _ := lru.New[uint64, core.RoundRecord](capacity)
	return &RoundHistory{cache: cache}
}

// Record stores one finished round.
func (h *RoundHistory) Record(record core.RoundRecord) {
	h.cache.Add(record.Round, record)
}

// Recent returns the recorded rounds, most recent first.
func (h *RoundHistory) Recent() []core.RoundRecord {
	keys := h.cache.Keys()
	records := make([]core.RoundRecord, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if record, ok := h.cache.Peek(keys[i]); ok {
			records = append(records, record)
		}
	}
	return records
}

// Len returns the number of recorded rounds.
func (h *RoundHistory) Len() int {
	return h.cache.Len()
}
