package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/kaluza/askbot/history"
	"github.com/kaluza/askbot/integration"
	"github.com/kaluza/askbot/knowledge"
	"github.com/kaluza/askbot/llm"
)

type fakeHistory struct {
	pairs map[string][]history.QAPair
	err   error
}

func (f *fakeHistory) RecentPairs(ctx context.Context, channelID string) ([]history.QAPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pairs[channelID], nil
}

type fakeClient struct {
	gotReq *llm.Request
	reply  string
	err    error
	calls  int
}

func (f *fakeClient) Chat(ctx context.Context, req llm.Request) (*llm.Result, error) {
	f.calls++
	f.gotReq = &req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{Text: f.reply, InputTokens: 10, OutputTokens: 5}, nil
}

type fakePoster struct {
	posts []postedReply
	err   error
}

type postedReply struct {
	ChannelID string
	ThreadTS  string
	Text      string
}

func (f *fakePoster) PostThreadReply(ctx context.Context, channelID, threadTS, text string) error {
	if f.err != nil {
		return f.err
	}
	f.posts = append(f.posts, postedReply{ChannelID: channelID, ThreadTS: threadTS, Text: text})
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestDispatcher(t *testing.T, hist HistorySource, client llm.Client, poster ReplyPoster) *Dispatcher {
	t.Helper()
	store := knowledge.NewStore(map[knowledge.Kind][]knowledge.Entry{
		knowledge.KindFinance: {
			{Topic: "per diem", Content: "Per-diem allowance is £25/day with receipts."},
			{Topic: "mileage_rates", Keywords: []string{"mile"}, Content: "45p per mile."},
		},
	})
	d, err := New(Options{
		Channels: map[string]ChannelConfig{
			"CFIN": {Kind: knowledge.KindFinance, SystemPrompt: "You are a helpful finance assistant."},
		},
		Knowledge: store,
		History:   hist,
		Client:    client,
		Poster:    poster,
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 1024,
		BotUserID: "UBOT",
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func mention(text string) MentionEvent {
	return MentionEvent{
		TeamID:    "T1",
		ChannelID: "CFIN",
		UserID:    "U1",
		Text:      text,
		MessageTS: "100.000",
	}
}

func TestHandleMentionAnswersWithKnowledgeAndQuestion(t *testing.T) {
	t.Parallel()

	client := &fakeClient{reply: "The per-diem allowance is £25 per day."}
	poster := &fakePoster{}
	d := newTestDispatcher(t, &fakeHistory{}, client, poster)

	out := d.HandleMention(context.Background(), mention("<@UBOT> What is the per-diem policy?"))
	if out != OutcomeAnswered {
		t.Fatalf("HandleMention() = %q, want answered", out)
	}
	if client.gotReq == nil {
		t.Fatalf("model adapter was not invoked")
	}
	userContent := client.gotReq.Messages[0].Content
	if !strings.Contains(userContent, "What is the per-diem policy?") {
		t.Fatalf("prompt missing literal question:\n%s", userContent)
	}
	if !strings.Contains(userContent, "Per-diem allowance is £25/day with receipts.") {
		t.Fatalf("prompt missing matched knowledge content:\n%s", userContent)
	}
	if client.gotReq.System != "You are a helpful finance assistant." {
		t.Fatalf("system prompt = %q", client.gotReq.System)
	}
	if len(poster.posts) != 1 {
		t.Fatalf("posted %d replies, want 1", len(poster.posts))
	}
	if poster.posts[0].ThreadTS != "100.000" {
		t.Fatalf("reply thread_ts = %q, want the mention ts", poster.posts[0].ThreadTS)
	}
	if poster.posts[0].Text != "The per-diem allowance is £25 per day." {
		t.Fatalf("reply text = %q", poster.posts[0].Text)
	}
}

func TestHandleMentionUnconfiguredChannelIgnored(t *testing.T) {
	t.Parallel()

	client := &fakeClient{reply: "hi"}
	poster := &fakePoster{}
	d := newTestDispatcher(t, &fakeHistory{}, client, poster)

	ev := mention("<@UBOT> hello")
	ev.ChannelID = "CUNKNOWN"
	if out := d.HandleMention(context.Background(), ev); out != OutcomeIgnored {
		t.Fatalf("HandleMention() = %q, want ignored", out)
	}
	if client.calls != 0 {
		t.Fatalf("model called %d times for unconfigured channel", client.calls)
	}
	if len(poster.posts) != 0 {
		t.Fatalf("posted %d replies for unconfigured channel", len(poster.posts))
	}
}

func TestHandleMentionCompletionAuthFailurePostsFallback(t *testing.T) {
	t.Parallel()

	client := &fakeClient{err: &llm.Error{Kind: llm.ErrorKindAuth, Status: 401, Op: "messages.new", Err: fmt.Errorf("bad key")}}
	poster := &fakePoster{}
	d := newTestDispatcher(t, &fakeHistory{}, client, poster)

	out := d.HandleMention(context.Background(), mention("<@UBOT> what are the mileage rates"))
	if out != OutcomeFailed {
		t.Fatalf("HandleMention() = %q, want failed", out)
	}
	if len(poster.posts) != 1 {
		t.Fatalf("posted %d replies, want 1 fallback", len(poster.posts))
	}
	if !strings.HasPrefix(poster.posts[0].Text, "Sorry, I ran into an issue") {
		t.Fatalf("fallback text = %q", poster.posts[0].Text)
	}
}

func TestHandleMentionHistoryFailureProceedsWithEmptyHistory(t *testing.T) {
	t.Parallel()

	client := &fakeClient{reply: "45p per mile for the first 10,000 miles."}
	poster := &fakePoster{}
	d := newTestDispatcher(t, &fakeHistory{err: fmt.Errorf("timeout")}, client, poster)

	out := d.HandleMention(context.Background(), mention("<@UBOT> what are the mileage rates"))
	if out != OutcomeAnswered {
		t.Fatalf("HandleMention() = %q, want answered despite history failure", out)
	}
	if strings.Contains(client.gotReq.Messages[0].Content, "Similar Past Questions") {
		t.Fatalf("prompt contains a history section despite retrieval failure:\n%s", client.gotReq.Messages[0].Content)
	}
	if len(poster.posts) != 1 {
		t.Fatalf("posted %d replies, want 1", len(poster.posts))
	}
}

func TestHandleMentionIncludesSimilarHistory(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{pairs: map[string][]history.QAPair{
		"CFIN": {
			{Question: "what are the mileage rates for cars", Answer: "45p then 25p"},
			{Question: "unrelated hotel chat here", Answer: "n/a"},
		},
	}}
	client := &fakeClient{reply: "answered"}
	poster := &fakePoster{}
	d := newTestDispatcher(t, hist, client, poster)

	if out := d.HandleMention(context.Background(), mention("<@UBOT> what are the mileage rates for cars")); out != OutcomeAnswered {
		t.Fatalf("HandleMention() outcome = %q", out)
	}
	content := client.gotReq.Messages[0].Content
	if !strings.Contains(content, "Q: what are the mileage rates for cars") {
		t.Fatalf("prompt missing similar Q&A pair:\n%s", content)
	}
	if strings.Contains(content, "unrelated hotel chat here") {
		t.Fatalf("prompt contains below-threshold pair:\n%s", content)
	}
}

func TestHandleMentionEmptyQuestionGetsPrompted(t *testing.T) {
	t.Parallel()

	client := &fakeClient{reply: "ignored"}
	poster := &fakePoster{}
	d := newTestDispatcher(t, &fakeHistory{}, client, poster)

	out := d.HandleMention(context.Background(), mention("<@UBOT>"))
	if out != OutcomeAnswered {
		t.Fatalf("HandleMention() = %q", out)
	}
	if client.calls != 0 {
		t.Fatalf("model called for an empty question")
	}
	if len(poster.posts) != 1 || !strings.Contains(poster.posts[0].Text, "didn't ask a question") {
		t.Fatalf("posts = %+v", poster.posts)
	}
}

func TestHandleMentionEmptyQuestionPostFailureFails(t *testing.T) {
	t.Parallel()

	client := &fakeClient{reply: "ignored"}
	poster := &fakePoster{err: fmt.Errorf("channel_not_found")}
	d := newTestDispatcher(t, &fakeHistory{}, client, poster)

	if out := d.HandleMention(context.Background(), mention("<@UBOT>")); out != OutcomeFailed {
		t.Fatalf("HandleMention() = %q, want failed when the canned reply cannot be posted", out)
	}
}

type fakeProvider struct {
	enabled  bool
	extra    string
	gotEmail string
	calls    int
}

func (f *fakeProvider) Name() string  { return "navan" }
func (f *fakeProvider) Enabled() bool { return f.enabled }

func (f *fakeProvider) EnrichContext(ctx context.Context, question, userEmail string) (string, error) {
	f.calls++
	f.gotEmail = userEmail
	return f.extra, nil
}

type fakeEmailResolver struct {
	email string
	calls int
}

func (f *fakeEmailResolver) UserEmail(ctx context.Context, userID string) (string, error) {
	f.calls++
	return f.email, nil
}

func TestHandleMentionEnrichesWithResolvedEmail(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{enabled: true, extra: "Upcoming trip: LHR->JFK"}
	resolver := &fakeEmailResolver{email: "sam@kaluza.com"}
	client := &fakeClient{reply: "answered"}
	poster := &fakePoster{}
	store := knowledge.NewStore(map[knowledge.Kind][]knowledge.Entry{
		knowledge.KindNavan: {{Topic: "flights", Content: "Book via Navan."}},
	})
	d, err := New(Options{
		Channels: map[string]ChannelConfig{
			"CNAV": {Kind: knowledge.KindNavan, SystemPrompt: "travel"},
		},
		Knowledge:        store,
		History:          &fakeHistory{},
		Client:           client,
		Poster:           poster,
		BotUserID:        "UBOT",
		ContextProviders: []integration.ContextProvider{provider},
		Emails:           resolver,
		Logger:           discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ev := mention("<@UBOT> when are my flights")
	ev.ChannelID = "CNAV"
	if out := d.HandleMention(context.Background(), ev); out != OutcomeAnswered {
		t.Fatalf("HandleMention() = %q", out)
	}
	if provider.gotEmail != "sam@kaluza.com" {
		t.Fatalf("provider received %q, want the resolved email", provider.gotEmail)
	}
	if !strings.Contains(client.gotReq.Messages[0].Content, "## Navan Account Context\nUpcoming trip: LHR->JFK") {
		t.Fatalf("prompt missing integration block:\n%s", client.gotReq.Messages[0].Content)
	}
}

func TestHandleMentionSkipsEmailLookupWhenProvidersDisabled(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{enabled: false, extra: "unused"}
	resolver := &fakeEmailResolver{email: "sam@kaluza.com"}
	client := &fakeClient{reply: "answered"}
	poster := &fakePoster{}
	store := knowledge.NewStore(map[knowledge.Kind][]knowledge.Entry{
		knowledge.KindFinance: {{Topic: "mileage_rates", Keywords: []string{"mile"}, Content: "45p per mile."}},
	})
	d, err := New(Options{
		Channels: map[string]ChannelConfig{
			"CFIN": {Kind: knowledge.KindFinance, SystemPrompt: "finance"},
		},
		Knowledge:        store,
		History:          &fakeHistory{},
		Client:           client,
		Poster:           poster,
		BotUserID:        "UBOT",
		ContextProviders: []integration.ContextProvider{provider},
		Emails:           resolver,
		Logger:           discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if out := d.HandleMention(context.Background(), mention("<@UBOT> what are the mileage rates")); out != OutcomeAnswered {
		t.Fatalf("HandleMention() = %q", out)
	}
	if resolver.calls != 0 {
		t.Fatalf("email resolved %d times with no enabled provider", resolver.calls)
	}
	if provider.calls != 0 {
		t.Fatalf("disabled provider consulted %d times", provider.calls)
	}
}

func TestHandleMentionDedupesRedelivery(t *testing.T) {
	t.Parallel()

	client := &fakeClient{reply: "answered"}
	poster := &fakePoster{}
	d := newTestDispatcher(t, &fakeHistory{}, client, poster)

	ev := mention("<@UBOT> what are the mileage rates")
	if out := d.HandleMention(context.Background(), ev); out != OutcomeAnswered {
		t.Fatalf("first HandleMention() = %q", out)
	}
	if out := d.HandleMention(context.Background(), ev); out != OutcomeIgnored {
		t.Fatalf("second HandleMention() = %q, want ignored", out)
	}
	if client.calls != 1 {
		t.Fatalf("model called %d times, want 1", client.calls)
	}
}

func TestHandleMentionRepliesInExistingThread(t *testing.T) {
	t.Parallel()

	client := &fakeClient{reply: "answered"}
	poster := &fakePoster{}
	d := newTestDispatcher(t, &fakeHistory{}, client, poster)

	ev := mention("<@UBOT> what are the mileage rates")
	ev.ThreadTS = "50.000"
	d.HandleMention(context.Background(), ev)
	if poster.posts[0].ThreadTS != "50.000" {
		t.Fatalf("thread_ts = %q, want existing thread", poster.posts[0].ThreadTS)
	}
}

func TestStripMention(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"<@UBOT> what is the policy", "what is the policy"},
		{"hey <@UBOT|askbot> help", "hey  help"},
		{"<@UOTHER> should answer this", "<@UOTHER> should answer this"},
		{"<@UBOT>", ""},
	}
	for _, tc := range cases {
		if got := StripMention(tc.in, "UBOT"); got != tc.want {
			t.Fatalf("StripMention(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHistorySourceIDsDeduplicates(t *testing.T) {
	t.Parallel()

	store := knowledge.NewStore(knowledge.DefaultCorpus())
	d, err := New(Options{
		Channels: map[string]ChannelConfig{
			"CLISTEN1": {Kind: knowledge.KindFinance, HistorySourceID: "CREAL"},
			"CLISTEN2": {Kind: knowledge.KindNavan, HistorySourceID: "CREAL"},
		},
		Knowledge: store,
		History:   &fakeHistory{},
		Client:    &fakeClient{},
		Poster:    &fakePoster{},
		Logger:    discardLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if got := d.HistorySourceIDs(); len(got) != 1 || got[0] != "CREAL" {
		t.Fatalf("HistorySourceIDs() = %v, want [CREAL]", got)
	}
}
