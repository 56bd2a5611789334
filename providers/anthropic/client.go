// Package anthropic adapts the Anthropic Messages API to the llm.Client
// boundary, classifying failures so the dispatcher can choose a fallback.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kaluza/askbot/llm"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024
)

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	RequestTimeout time.Duration
}

type Client struct {
	api       sdk.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing anthropic api key")
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{
		api:       sdk.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		timeout:   cfg.RequestTimeout,
	}, nil
}

func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

// Chat sends one completion request. The adapter applies its configured
// timeout so a stalled upstream ends in a failed event, not a hung handler.
func (c *Client) Chat(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if c == nil {
		return nil, fmt.Errorf("anthropic client is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return nil, classify("messages.new", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if b, ok := block.AsAny().(sdk.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}
	return &llm.Result{
		Text:         strings.TrimSpace(text.String()),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func (c *Client) buildParams(req llm.Request) (sdk.MessageNewParams, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, fmt.Errorf("request has no messages")
	}

	messages := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "user", "":
			messages = append(messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case "assistant":
			messages = append(messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return sdk.MessageNewParams{}, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	return params, nil
}

// classify maps SDK errors onto the llm error taxonomy: 401/403 auth, 429
// rate limit, everything else (including timeouts) transport.
func classify(op string, err error) error {
	kind := llm.ErrorKindTransport
	status := 0
	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		status = apierr.StatusCode
		switch apierr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			kind = llm.ErrorKindAuth
		case http.StatusTooManyRequests:
			kind = llm.ErrorKindRateLimit
		}
	}
	return &llm.Error{Kind: kind, Status: status, Op: op, Err: err}
}
