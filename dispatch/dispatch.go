// Package dispatch routes mention events through the answer pipeline:
// history retrieval, knowledge lookup, prompt assembly, model completion,
// threaded reply. Each event is handled independently and every path ends in
// a terminal outcome; nothing here can take the event loop down.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kaluza/askbot/history"
	"github.com/kaluza/askbot/integration"
	"github.com/kaluza/askbot/internal/idempotency"
	"github.com/kaluza/askbot/internal/replyfmt"
	"github.com/kaluza/askbot/knowledge"
	"github.com/kaluza/askbot/llm"
	"github.com/kaluza/askbot/prompt"
)

const (
	emptyQuestionReply = "It looks like you mentioned me but didn't ask a question. How can I help?"
	fallbackReply      = "Sorry, I ran into an issue trying to answer your question. " +
		"Please try again or reach out to the team directly."
)

// Outcome is the terminal state of one mention event.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeFailed   Outcome = "failed"
	OutcomeIgnored  Outcome = "ignored"
)

// MentionEvent is one app_mention delivered by the messaging platform.
type MentionEvent struct {
	TeamID    string
	ChannelID string
	UserID    string
	Text      string
	MessageTS string
	ThreadTS  string
	SentAt    time.Time
}

// ChannelConfig maps a listen channel to its knowledge kind, the channel its
// history is read from (they differ in test mode), and its system prompt.
type ChannelConfig struct {
	Kind            knowledge.Kind
	HistorySourceID string
	SystemPrompt    string
}

// ReplyPoster posts a text reply threaded under threadTS.
type ReplyPoster interface {
	PostThreadReply(ctx context.Context, channelID, threadTS, text string) error
}

// HistorySource yields recent Q&A pairs for a channel.
type HistorySource interface {
	RecentPairs(ctx context.Context, channelID string) ([]history.QAPair, error)
}

// EmailResolver maps a platform user id to the user's company email, which is
// what context providers key their accounts on. Only consulted when a provider
// is enabled.
type EmailResolver interface {
	UserEmail(ctx context.Context, userID string) (string, error)
}

type Options struct {
	Channels  map[string]ChannelConfig
	Knowledge *knowledge.Store
	History   HistorySource
	Client    llm.Client
	Poster    ReplyPoster

	Model     string
	MaxTokens int
	BotUserID string

	// ContextProviders are consulted in order; the first enabled provider
	// returning non-empty context contributes the extra prompt block.
	ContextProviders []integration.ContextProvider
	Emails           EmailResolver

	Logger *slog.Logger
	Seen   *idempotency.SeenSet

	HistoryTopN       int
	HistoryMinOverlap int
	PromptMaxChars    int
}

type Dispatcher struct {
	channels  map[string]ChannelConfig
	store     *knowledge.Store
	hist      HistorySource
	client    llm.Client
	poster    ReplyPoster
	providers []integration.ContextProvider
	emails    EmailResolver

	model     string
	maxTokens int
	botUserID string

	log  *slog.Logger
	seen *idempotency.SeenSet

	topN           int
	minOverlap     int
	promptMaxChars int
}

func New(opts Options) (*Dispatcher, error) {
	if len(opts.Channels) == 0 {
		return nil, fmt.Errorf("at least one channel config is required")
	}
	if opts.Knowledge == nil {
		return nil, fmt.Errorf("knowledge store is required")
	}
	if opts.History == nil {
		return nil, fmt.Errorf("history source is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if opts.Poster == nil {
		return nil, fmt.Errorf("reply poster is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	seen := opts.Seen
	if seen == nil {
		seen = idempotency.NewSeenSet(0)
	}
	channels := make(map[string]ChannelConfig, len(opts.Channels))
	for channelID, cfg := range opts.Channels {
		channelID = strings.TrimSpace(channelID)
		if channelID == "" {
			return nil, fmt.Errorf("channel id is required")
		}
		if cfg.Kind == "" {
			return nil, fmt.Errorf("channel %s: kind is required", channelID)
		}
		if strings.TrimSpace(cfg.HistorySourceID) == "" {
			cfg.HistorySourceID = channelID
		}
		channels[channelID] = cfg
	}
	return &Dispatcher{
		channels:       channels,
		store:          opts.Knowledge,
		hist:           opts.History,
		client:         opts.Client,
		poster:         opts.Poster,
		providers:      append([]integration.ContextProvider(nil), opts.ContextProviders...),
		emails:         opts.Emails,
		model:          strings.TrimSpace(opts.Model),
		maxTokens:      opts.MaxTokens,
		botUserID:      strings.TrimSpace(opts.BotUserID),
		log:            log,
		seen:           seen,
		topN:           opts.HistoryTopN,
		minOverlap:     opts.HistoryMinOverlap,
		promptMaxChars: opts.PromptMaxChars,
	}, nil
}

// HistorySourceIDs returns the distinct channels history is read from, for
// cache warm-up.
func (d *Dispatcher) HistorySourceIDs() []string {
	seen := make(map[string]bool, len(d.channels))
	out := make([]string, 0, len(d.channels))
	for _, cfg := range d.channels {
		if seen[cfg.HistorySourceID] {
			continue
		}
		seen[cfg.HistorySourceID] = true
		out = append(out, cfg.HistorySourceID)
	}
	return out
}

// HandleMention runs the pipeline for one event and returns its terminal
// outcome. Mentions in unconfigured channels and redelivered events are
// ignored without a reply.
func (d *Dispatcher) HandleMention(ctx context.Context, ev MentionEvent) Outcome {
	cfg, ok := d.channels[strings.TrimSpace(ev.ChannelID)]
	if !ok {
		d.log.Info("mention_unconfigured_channel", "channel_id", ev.ChannelID)
		return OutcomeIgnored
	}
	if d.seen.Observe(idempotency.MessageKey(ev.TeamID, ev.ChannelID, ev.MessageTS)) {
		d.log.Debug("mention_deduped", "channel_id", ev.ChannelID, "message_ts", ev.MessageTS)
		return OutcomeIgnored
	}

	requestID := uuid.NewString()
	threadTS := strings.TrimSpace(ev.ThreadTS)
	if threadTS == "" {
		threadTS = strings.TrimSpace(ev.MessageTS)
	}
	log := d.log.With("request_id", requestID, "channel_id", ev.ChannelID, "kind", string(cfg.Kind))

	question := StripMention(ev.Text, d.botUserID)
	if question == "" {
		if !d.post(ctx, log, ev.ChannelID, threadTS, emptyQuestionReply) {
			return OutcomeFailed
		}
		return OutcomeAnswered
	}
	log.Info("question_received", "user_id", ev.UserID, "question", truncateForLog(question, 120))

	pairs, err := d.hist.RecentPairs(ctx, cfg.HistorySourceID)
	if err != nil {
		// Fail soft: answer from knowledge alone rather than dropping the mention.
		log.Warn("history_fetch_error", "history_source", cfg.HistorySourceID, "error", err.Error())
		pairs = nil
	}
	similar := history.TopSimilar(pairs, question, d.topN, d.minOverlap)
	entries := d.store.Lookup(cfg.Kind, question)
	extraLabel, extra := d.enrich(ctx, log, question, ev.UserID)
	log.Info("context_assembled", "knowledge_entries", len(entries), "qa_pairs", len(similar), "extra", extra != "")

	promptText := prompt.Compose(prompt.Input{
		Question:   question,
		Knowledge:  entries,
		History:    similar,
		ExtraLabel: extraLabel,
		Extra:      extra,
		MaxChars:   d.promptMaxChars,
	})

	res, err := d.client.Chat(ctx, llm.Request{
		Model:     d.model,
		System:    cfg.SystemPrompt,
		MaxTokens: d.maxTokens,
		Messages:  []llm.Message{{Role: "user", Content: promptText}},
	})
	if err != nil {
		log.Warn("completion_error", "error_kind", string(llm.KindOf(err)), "error", err.Error())
		d.post(ctx, log, ev.ChannelID, threadTS, fallbackReply)
		return OutcomeFailed
	}

	reply := replyfmt.Normalize(res.Text)
	if reply == "" {
		log.Warn("completion_empty_reply")
		d.post(ctx, log, ev.ChannelID, threadTS, fallbackReply)
		return OutcomeFailed
	}
	if !d.post(ctx, log, ev.ChannelID, threadTS, reply) {
		return OutcomeFailed
	}
	log.Info("question_answered", "input_tokens", res.InputTokens, "output_tokens", res.OutputTokens)
	return OutcomeAnswered
}

func (d *Dispatcher) post(ctx context.Context, log *slog.Logger, channelID, threadTS, text string) bool {
	if err := d.poster.PostThreadReply(ctx, channelID, threadTS, text); err != nil {
		log.Warn("reply_post_error", "thread_ts", threadTS, "error", err.Error())
		return false
	}
	return true
}

func (d *Dispatcher) enrich(ctx context.Context, log *slog.Logger, question, userID string) (string, string) {
	userEmail := ""
	resolved := false
	for _, provider := range d.providers {
		if provider == nil || !provider.Enabled() {
			continue
		}
		if !resolved {
			userEmail = d.resolveEmail(ctx, log, userID)
			resolved = true
		}
		extra, err := provider.EnrichContext(ctx, question, userEmail)
		if err != nil {
			log.Warn("integration_enrich_error", "provider", provider.Name(), "error", err.Error())
			continue
		}
		if strings.TrimSpace(extra) == "" {
			continue
		}
		return extraLabelFor(provider.Name()), extra
	}
	return "", ""
}

// resolveEmail is best-effort: providers receive an empty email when the
// lookup fails and decide for themselves whether they can enrich without it.
func (d *Dispatcher) resolveEmail(ctx context.Context, log *slog.Logger, userID string) string {
	if d.emails == nil || strings.TrimSpace(userID) == "" {
		return ""
	}
	email, err := d.emails.UserEmail(ctx, userID)
	if err != nil {
		log.Warn("user_email_resolve_error", "user_id", userID, "error", err.Error())
		return ""
	}
	return strings.TrimSpace(email)
}

func extraLabelFor(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Additional Context"
	}
	return strings.ToUpper(name[:1]) + name[1:] + " Account Context"
}

var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^>]+)?>`)

// StripMention removes the bot's own mention token(s) from text. Other users'
// mentions stay, since they can be part of the question.
func StripMention(text, botUserID string) string {
	botUserID = strings.TrimSpace(botUserID)
	cleaned := mentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := mentionPattern.FindStringSubmatch(match)
		if len(sub) > 1 && (botUserID == "" || sub[1] == botUserID) {
			return ""
		}
		return match
	})
	return strings.TrimSpace(cleaned)
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && cut < len(s) && (s[cut]&0xC0) == 0x80 {
		cut--
	}
	return s[:cut] + "…"
}
