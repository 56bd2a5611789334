// Package idempotency deduplicates Slack event redeliveries. Slack resends
// an events_api envelope when the ack is slow, so the dispatcher checks each
// (channel, message_ts) key before doing any work.
package idempotency

import (
	"container/list"
	"strings"
	"sync"
)

const DefaultCapacity = 2048

// SeenSet is a bounded, concurrency-safe set of recently seen keys. When the
// capacity is exceeded the oldest key is evicted.
type SeenSet struct {
	mu    sync.Mutex
	cap   int
	keys  map[string]*list.Element
	order *list.List
}

func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &SeenSet{
		cap:   capacity,
		keys:  make(map[string]*list.Element, capacity),
		order: list.New(),
	}
}

// Observe records key and reports whether it was already present. Empty keys
// are never deduplicated.
func (s *SeenSet) Observe(key string) bool {
	key = strings.TrimSpace(key)
	if s == nil || key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[key]; ok {
		return true
	}
	s.keys[key] = s.order.PushBack(key)
	for s.order.Len() > s.cap {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.keys, oldest.Value.(string))
	}
	return false
}

func (s *SeenSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

// MessageKey builds the dedup key for a Slack message event.
func MessageKey(teamID, channelID, messageTS string) string {
	teamID = strings.TrimSpace(teamID)
	channelID = strings.TrimSpace(channelID)
	messageTS = strings.TrimSpace(messageTS)
	if channelID == "" || messageTS == "" {
		return ""
	}
	return teamID + ":" + channelID + ":" + messageTS
}
