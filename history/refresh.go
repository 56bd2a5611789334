package history

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Refresh replaces the cache entry for channelID with a live fetch of its
// history window and the replies of every thread in it.
func (r *Retriever) Refresh(ctx context.Context, channelID string) error {
	if r == nil {
		return fmt.Errorf("retriever is not initialized")
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("channel_id is required")
	}

	messages, err := r.api.ConversationsHistory(ctx, channelID, r.nowFn().Add(-r.window))
	if err != nil {
		return fmt.Errorf("refresh channel %s: %w", channelID, err)
	}

	threads := make(map[string][]Message)
	for _, msg := range messages {
		if msg.ReplyCount <= 0 {
			continue
		}
		replies, err := r.api.ConversationsReplies(ctx, channelID, msg.TS)
		if err != nil {
			r.log.Warn("history_thread_fetch_error", "channel_id", channelID, "thread_ts", msg.TS, "error", err.Error())
			continue
		}
		threads[msg.TS] = replies
	}

	r.mu.Lock()
	r.cache[channelID] = cacheEntry{
		messages:    messages,
		threads:     threads,
		refreshedAt: r.nowFn().UTC(),
	}
	r.mu.Unlock()

	r.log.Info("history_cache_refreshed",
		"channel_id", channelID,
		"messages", len(messages),
		"threads", len(threads),
	)
	return nil
}

// RefreshAll refreshes every channel, logging failures instead of aborting so
// one bad channel does not stall the others.
func (r *Retriever) RefreshAll(ctx context.Context, channelIDs []string) {
	seen := make(map[string]bool, len(channelIDs))
	for _, raw := range channelIDs {
		channelID := strings.TrimSpace(raw)
		if channelID == "" || seen[channelID] {
			continue
		}
		seen[channelID] = true
		if err := r.Refresh(ctx, channelID); err != nil {
			r.log.Warn("history_cache_refresh_error", "channel_id", channelID, "error", err.Error())
		}
	}
}

// Cached reports whether a cache entry exists for channelID.
func (r *Retriever) Cached(channelID string) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[strings.TrimSpace(channelID)]
	return ok
}

// RunRefresher refreshes the given channels on an interval until ctx ends.
// The initial population is expected to have happened before the socket loop
// starts; this only keeps it warm.
func (r *Retriever) RunRefresher(ctx context.Context, channelIDs []string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.RefreshAll(ctx, channelIDs)
		}
	}
}
