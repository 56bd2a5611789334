// Package history reads recent channel messages and derives historical Q&A
// pairs used as prompt context. Pairing is heuristic: a message answered by
// the first human reply in its thread, or failing that by the next message in
// the channel, may mispair unrelated exchanges.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kaluza/askbot/knowledge"
)

const (
	DefaultWindow     = 30 * 24 * time.Hour
	DefaultTopN       = 3
	DefaultMinOverlap = 3
)

// Message is the subset of a Slack message the retriever needs.
type Message struct {
	TS         string
	ThreadTS   string
	UserID     string
	BotID      string
	Subtype    string
	Text       string
	ReplyCount int
}

// QAPair is a prior question and its heuristically selected answer.
type QAPair struct {
	Question string
	Answer   string
	AskedAt  time.Time
	Score    int
}

// ChannelAPI is the read-only slice of the Slack Web API the retriever uses.
type ChannelAPI interface {
	ConversationsHistory(ctx context.Context, channelID string, oldest time.Time) ([]Message, error)
	ConversationsReplies(ctx context.Context, channelID, threadTS string) ([]Message, error)
}

type Options struct {
	API       ChannelAPI
	BotUserID string
	Window    time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

type cacheEntry struct {
	messages    []Message
	threads     map[string][]Message
	refreshedAt time.Time
}

// Retriever fetches and caches channel history. The cache is refreshed by
// RunRefresher; lookups on a cold cache fall back to a live fetch.
type Retriever struct {
	api       ChannelAPI
	botUserID string
	window    time.Duration
	log       *slog.Logger
	nowFn     func() time.Time

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

func NewRetriever(opts Options) (*Retriever, error) {
	if opts.API == nil {
		return nil, fmt.Errorf("channel api is required")
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Retriever{
		api:       opts.API,
		botUserID: strings.TrimSpace(opts.BotUserID),
		window:    window,
		log:       log,
		nowFn:     nowFn,
		cache:     make(map[string]cacheEntry),
	}, nil
}

// RecentPairs returns Q&A pairs derived from the channel's recent history in
// chronological order. Bot-authored messages never appear on either side of a
// pair. Errors are returned so the caller can fail soft with empty context.
func (r *Retriever) RecentPairs(ctx context.Context, channelID string) ([]QAPair, error) {
	if r == nil {
		return nil, fmt.Errorf("retriever is not initialized")
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("channel_id is required")
	}

	r.mu.RLock()
	entry, cached := r.cache[channelID]
	r.mu.RUnlock()

	var (
		messages []Message
		threads  map[string][]Message
	)
	if cached {
		messages = entry.messages
		threads = entry.threads
	} else {
		r.log.Warn("history_cache_miss", "channel_id", channelID)
		fetched, err := r.api.ConversationsHistory(ctx, channelID, r.nowFn().Add(-r.window))
		if err != nil {
			return nil, fmt.Errorf("fetch channel history: %w", err)
		}
		messages = fetched
	}

	return r.pairMessages(ctx, channelID, messages, threads), nil
}

// TopSimilar scores pairs by non-stopword token overlap with question and
// returns the best topN with Score set, ties kept in input order. Pairs below
// minOverlap are dropped.
func TopSimilar(pairs []QAPair, question string, topN, minOverlap int) []QAPair {
	if topN <= 0 {
		topN = DefaultTopN
	}
	if minOverlap <= 0 {
		minOverlap = DefaultMinOverlap
	}
	scored := make([]QAPair, 0, len(pairs))
	for _, pair := range pairs {
		score := knowledge.Overlap(question, pair.Question)
		if score < minOverlap {
			continue
		}
		pair.Score = score
		scored = append(scored, pair)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored
}

func (r *Retriever) pairMessages(ctx context.Context, channelID string, messages []Message, threads map[string][]Message) []QAPair {
	ordered := append([]Message(nil), messages...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return tsLess(ordered[i].TS, ordered[j].TS)
	})

	var pairs []QAPair
	for i, msg := range ordered {
		if r.isBotMessage(msg) {
			continue
		}
		// Thread replies show up in conversations.history only as roots;
		// skip messages that are replies inside someone else's thread.
		if msg.ThreadTS != "" && msg.ThreadTS != msg.TS {
			continue
		}

		answer := ""
		if msg.ReplyCount > 0 {
			answer = r.firstHumanReply(ctx, channelID, msg, threads)
		}
		if answer == "" {
			answer = r.nextHumanText(ordered, i)
		}
		if answer == "" {
			continue
		}
		pairs = append(pairs, QAPair{
			Question: msg.Text,
			Answer:   answer,
			AskedAt:  tsTime(msg.TS),
		})
	}
	return pairs
}

func (r *Retriever) firstHumanReply(ctx context.Context, channelID string, root Message, threads map[string][]Message) string {
	replies, ok := threads[root.TS]
	if !ok {
		live, err := r.api.ConversationsReplies(ctx, channelID, root.TS)
		if err != nil {
			r.log.Warn("history_thread_fetch_error", "channel_id", channelID, "thread_ts", root.TS, "error", err.Error())
			return ""
		}
		replies = live
	}
	for _, reply := range replies {
		if reply.TS == root.TS {
			continue
		}
		if r.isBotMessage(reply) {
			continue
		}
		if strings.TrimSpace(reply.Text) == "" {
			continue
		}
		return reply.Text
	}
	return ""
}

func (r *Retriever) nextHumanText(ordered []Message, i int) string {
	for j := i + 1; j < len(ordered); j++ {
		next := ordered[j]
		if r.isBotMessage(next) {
			continue
		}
		if next.ThreadTS != "" && next.ThreadTS != next.TS {
			continue
		}
		if strings.TrimSpace(next.Text) == "" {
			continue
		}
		return next.Text
	}
	return ""
}

func (r *Retriever) isBotMessage(msg Message) bool {
	if strings.TrimSpace(msg.BotID) != "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(msg.Subtype), "bot_message") {
		return true
	}
	if r.botUserID != "" && strings.TrimSpace(msg.UserID) == r.botUserID {
		return true
	}
	return false
}

func tsLess(a, b string) bool {
	af, aerr := strconv.ParseFloat(strings.TrimSpace(a), 64)
	bf, berr := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if aerr != nil || berr != nil {
		return a < b
	}
	return af < bf
}

func tsTime(ts string) time.Time {
	f, err := strconv.ParseFloat(strings.TrimSpace(ts), 64)
	if err != nil {
		return time.Time{}
	}
	sec := int64(f)
	nsec := int64((f - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
