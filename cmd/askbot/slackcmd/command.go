// Package slackcmd runs the Socket Mode event loop: it connects to Slack,
// filters app_mention events down to the configured channels, and hands each
// one to the dispatcher under bounded concurrency.
package slackcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kaluza/askbot/dispatch"
	"github.com/kaluza/askbot/history"
	"github.com/kaluza/askbot/integration"
	"github.com/kaluza/askbot/integration/navan"
	"github.com/kaluza/askbot/internal/configutil"
	"github.com/kaluza/askbot/internal/healthcheck"
	"github.com/kaluza/askbot/internal/logutil"
	"github.com/kaluza/askbot/knowledge"
	"github.com/kaluza/askbot/providers/anthropic"
)

const financeSystemPrompt = "You are a helpful finance assistant for the company Kaluza. " +
	"You answer questions about expense policies, reimbursements, budgets, " +
	"invoices, procurement, and general finance queries. " +
	"Be concise and professional. When you reference past answers, say " +
	`"Based on how we've handled similar questions..." ` +
	"If you are uncertain, clearly say so and suggest the person contacts " +
	"the Finance team directly or posts in #ask-finance for a human follow-up."

const navanSystemPrompt = "You are a helpful travel and Navan assistant for the company Kaluza. " +
	"You answer questions about travel booking via the Navan platform, " +
	"travel policies, flights, hotels, cancellations, travel insurance, " +
	"and expense claims related to travel. " +
	"Be concise and professional. When you reference past answers, say " +
	`"Based on how we've handled similar questions..." ` +
	"If you are uncertain, clearly say so and suggest the person contacts " +
	"the Finance team or Navan support directly."

type slackSocketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

type slackEventsAPIPayload struct {
	TeamID    string          `json:"team_id,omitempty"`
	EventID   string          `json:"event_id,omitempty"`
	EventTime int64           `json:"event_time,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
}

type slackEvent struct {
	Type     string `json:"type,omitempty"`
	Subtype  string `json:"subtype,omitempty"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text,omitempty"`
	Channel  string `json:"channel,omitempty"`
	TS       string `json:"ts,omitempty"`
	ThreadTS string `json:"thread_ts,omitempty"`
	BotID    string `json:"bot_id,omitempty"`
	Team     string `json:"team,omitempty"`
}

func NewSlackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slack",
		Short: "Run the Q&A bot with Socket Mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			botToken, ok := configutil.RequiredString(cmd, "slack-bot-token", "slack.bot_token")
			if !ok {
				return fmt.Errorf("missing slack.bot_token (set via --slack-bot-token or ASKBOT_SLACK_BOT_TOKEN)")
			}
			appToken, ok := configutil.RequiredString(cmd, "slack-app-token", "slack.app_token")
			if !ok {
				return fmt.Errorf("missing slack.app_token (set via --slack-app-token or ASKBOT_SLACK_APP_TOKEN)")
			}
			apiKey, ok := configutil.RequiredString(cmd, "", "llm.api_key")
			if !ok {
				return fmt.Errorf("missing llm.api_key (set via ASKBOT_LLM_API_KEY)")
			}
			financeID, ok := configutil.RequiredString(cmd, "finance-channel-id", "channels.finance.id")
			if !ok {
				return fmt.Errorf("missing channels.finance.id (set via --finance-channel-id or ASKBOT_CHANNELS_FINANCE_ID)")
			}
			navanID, ok := configutil.RequiredString(cmd, "navan-channel-id", "channels.navan.id")
			if !ok {
				return fmt.Errorf("missing channels.navan.id (set via --navan-channel-id or ASKBOT_CHANNELS_NAVAN_ID)")
			}

			logger, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			// Test mode: listen in alternate channels, read history from the real ones.
			financeListenID := configutil.FlagOrViperString(cmd, "finance-listen-channel-id", "channels.finance.listen_id")
			if strings.TrimSpace(financeListenID) == "" {
				financeListenID = financeID
			}
			navanListenID := configutil.FlagOrViperString(cmd, "navan-listen-channel-id", "channels.navan.listen_id")
			if strings.TrimSpace(navanListenID) == "" {
				navanListenID = navanID
			}
			if financeListenID != financeID || navanListenID != navanID {
				logger.Info("test_mode_enabled",
					"finance_listen_id", financeListenID,
					"navan_listen_id", navanListenID,
				)
			}

			corpus := knowledge.DefaultCorpus()
			if extraFile := strings.TrimSpace(configutil.FlagOrViperString(cmd, "", "knowledge.extra_file")); extraFile != "" {
				merged, err := knowledge.LoadExtra(corpus, extraFile)
				if err != nil {
					return fmt.Errorf("load knowledge.extra_file: %w", err)
				}
				corpus = merged
			}
			store := knowledge.NewStore(corpus)

			httpClient := &http.Client{Timeout: 30 * time.Second}
			api := newSlackAPI(httpClient, "https://slack.com/api", botToken, appToken)
			auth, err := api.authTest(cmd.Context())
			if err != nil {
				return fmt.Errorf("slack auth.test: %w", err)
			}
			botUserID := strings.TrimSpace(auth.UserID)
			if botUserID == "" {
				return fmt.Errorf("slack auth.test returned empty user_id")
			}

			window := history.DefaultWindow
			if days := configutil.FlagOrViperInt(cmd, "history-window-days", "history.window_days"); days > 0 {
				window = time.Duration(days) * 24 * time.Hour
			}
			retriever, err := history.NewRetriever(history.Options{
				API:       api,
				BotUserID: botUserID,
				Window:    window,
				Logger:    logger,
			})
			if err != nil {
				return err
			}

			client, err := anthropic.New(anthropic.Config{
				APIKey:         apiKey,
				BaseURL:        configutil.FlagOrViperString(cmd, "", "llm.base_url"),
				Model:          configutil.FlagOrViperString(cmd, "llm-model", "llm.model"),
				MaxTokens:      configutil.FlagOrViperInt(cmd, "", "llm.max_tokens"),
				RequestTimeout: configutil.FlagOrViperDuration(cmd, "", "llm.request_timeout"),
			})
			if err != nil {
				return err
			}

			var providers []integration.ContextProvider
			providers = append(providers, navan.New(navan.Config{
				Enabled:   configutil.FlagOrViperBool(cmd, "", "navan.enabled"),
				APIKey:    configutil.FlagOrViperString(cmd, "", "navan.api_key"),
				APISecret: configutil.FlagOrViperString(cmd, "", "navan.api_secret"),
			}))

			model := strings.TrimSpace(configutil.FlagOrViperString(cmd, "llm-model", "llm.model"))
			if model == "" {
				model = anthropic.DefaultModel
			}
			maxTokens := configutil.FlagOrViperInt(cmd, "", "llm.max_tokens")
			if maxTokens <= 0 {
				maxTokens = anthropic.DefaultMaxTokens
			}
			dispatcher, err := dispatch.New(dispatch.Options{
				Channels: map[string]dispatch.ChannelConfig{
					financeListenID: {
						Kind:            knowledge.KindFinance,
						HistorySourceID: financeID,
						SystemPrompt:    systemPromptOrDefault(cmd, "channels.finance.system_prompt", financeSystemPrompt),
					},
					navanListenID: {
						Kind:            knowledge.KindNavan,
						HistorySourceID: navanID,
						SystemPrompt:    systemPromptOrDefault(cmd, "channels.navan.system_prompt", navanSystemPrompt),
					},
				},
				Knowledge:        store,
				History:          retriever,
				Client:           client,
				Poster:           api,
				Model:            model,
				MaxTokens:        maxTokens,
				BotUserID:        botUserID,
				ContextProviders: providers,
				Emails:           api,
				Logger:           logger,
			})
			if err != nil {
				return err
			}

			taskTimeout := configutil.FlagOrViperDuration(cmd, "slack-task-timeout", "slack.task_timeout")
			if taskTimeout <= 0 {
				taskTimeout = 2 * time.Minute
			}
			maxConc := configutil.FlagOrViperInt(cmd, "slack-max-concurrency", "slack.max_concurrency")
			if maxConc <= 0 {
				maxConc = 3
			}
			sem := make(chan struct{}, maxConc)

			refreshInterval := configutil.FlagOrViperDuration(cmd, "", "history.refresh_interval")

			healthListen := healthcheck.NormalizeListen(configutil.FlagOrViperString(cmd, "health-listen", "health.listen"))
			if healthListen != "" {
				healthServer, err := healthcheck.StartServer(cmd.Context(), logger, healthListen, "slack")
				if err != nil {
					logger.Warn("slack_health_server_start_error", "addr", healthListen, "error", err.Error())
				} else {
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
						_ = healthServer.Shutdown(shutdownCtx)
						cancel()
					}()
				}
			}

			sourceIDs := dispatcher.HistorySourceIDs()
			retriever.RefreshAll(cmd.Context(), sourceIDs)

			logger.Info("slack_start",
				"bot_user_id", botUserID,
				"finance_listen_id", financeListenID,
				"navan_listen_id", navanListenID,
				"history_window", window.String(),
				"task_timeout", taskTimeout.String(),
				"max_concurrency", maxConc,
			)

			group, ctx := errgroup.WithContext(cmd.Context())
			group.Go(func() error {
				if err := retriever.RunRefresher(ctx, sourceIDs, refreshInterval); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			group.Go(func() error {
				return runSocketLoop(ctx, logger, api, botUserID, dispatcher, sem, taskTimeout)
			})
			return group.Wait()
		},
	}

	cmd.Flags().String("slack-bot-token", "", "Slack bot token (xoxb-...).")
	cmd.Flags().String("slack-app-token", "", "Slack app-level token for Socket Mode (xapp-...).")
	cmd.Flags().String("finance-channel-id", "", "Finance channel id (history source).")
	cmd.Flags().String("finance-listen-channel-id", "", "Channel to listen for finance mentions (defaults to the finance channel).")
	cmd.Flags().String("navan-channel-id", "", "Travel/Navan channel id (history source).")
	cmd.Flags().String("navan-listen-channel-id", "", "Channel to listen for travel mentions (defaults to the navan channel).")
	cmd.Flags().String("llm-model", "", "Model name for completions.")
	cmd.Flags().Int("history-window-days", 30, "How many days of channel history to retrieve.")
	cmd.Flags().Duration("slack-task-timeout", 2*time.Minute, "Per-mention handling timeout.")
	cmd.Flags().Int("slack-max-concurrency", 3, "Max number of mentions processed concurrently.")
	cmd.Flags().String("health-listen", "", "Optional listen address for the /healthz endpoint.")

	return cmd
}

func systemPromptOrDefault(cmd *cobra.Command, viperKey, fallback string) string {
	if v := strings.TrimSpace(configutil.FlagOrViperString(cmd, "", viperKey)); v != "" {
		return v
	}
	return fallback
}

func runSocketLoop(
	ctx context.Context,
	logger *slog.Logger,
	api *slackAPI,
	botUserID string,
	dispatcher *dispatch.Dispatcher,
	sem chan struct{},
	taskTimeout time.Duration,
) error {
	for {
		if ctx.Err() != nil {
			logger.Info("slack_stop", "reason", "context_canceled")
			return nil
		}
		conn, err := api.connectSocket(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("slack_stop", "reason", "context_canceled")
				return nil
			}
			logger.Warn("slack_socket_connect_error", "error", err.Error())
			if err := sleepWithContext(ctx, 2*time.Second); err != nil {
				return nil
			}
			continue
		}
		logger.Info("slack_socket_connected")
		readErr := consumeSlackSocket(ctx, conn, func(envelope slackSocketEnvelope) error {
			ev, ok, err := parseMentionEvent(envelope, botUserID)
			if err != nil {
				logger.Warn("slack_event_parse_error", "error", err.Error())
				return nil
			}
			if !ok {
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			go func(ev dispatch.MentionEvent) {
				defer func() { <-sem }()
				taskCtx, cancel := context.WithTimeout(context.Background(), taskTimeout)
				defer cancel()
				dispatcher.HandleMention(taskCtx, ev)
			}(ev)
			return nil
		})
		_ = conn.Close()
		if readErr != nil && !errors.Is(readErr, context.Canceled) && !errors.Is(readErr, context.DeadlineExceeded) {
			logger.Warn("slack_socket_read_error", "error", readErr.Error())
		}
	}
}

func consumeSlackSocket(ctx context.Context, conn *websocket.Conn, onEnvelope func(envelope slackSocketEnvelope) error) error {
	if conn == nil {
		return fmt.Errorf("slack websocket connection is nil")
	}
	for {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope slackSocketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": envelope.EnvelopeID}); err != nil {
				return err
			}
		}
		if onEnvelope == nil {
			continue
		}
		if err := onEnvelope(envelope); err != nil {
			return err
		}
	}
}

// parseMentionEvent extracts an app_mention from an events_api envelope.
// Messages from bots (this one included) and message subtypes are dropped.
// Empty text is kept: a bare mention still gets the "how can I help" reply.
func parseMentionEvent(envelope slackSocketEnvelope, botUserID string) (dispatch.MentionEvent, bool, error) {
	if strings.TrimSpace(envelope.Type) != "events_api" || len(envelope.Payload) == 0 {
		return dispatch.MentionEvent{}, false, nil
	}
	var payload slackEventsAPIPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return dispatch.MentionEvent{}, false, err
	}
	var event slackEvent
	if err := json.Unmarshal(payload.Event, &event); err != nil {
		return dispatch.MentionEvent{}, false, err
	}
	if strings.TrimSpace(event.Type) != "app_mention" {
		return dispatch.MentionEvent{}, false, nil
	}
	if strings.TrimSpace(event.Subtype) != "" {
		return dispatch.MentionEvent{}, false, nil
	}
	if strings.TrimSpace(event.BotID) != "" {
		return dispatch.MentionEvent{}, false, nil
	}
	userID := strings.TrimSpace(event.User)
	if userID == "" || userID == strings.TrimSpace(botUserID) {
		return dispatch.MentionEvent{}, false, nil
	}
	channelID := strings.TrimSpace(event.Channel)
	if channelID == "" {
		return dispatch.MentionEvent{}, false, nil
	}
	messageTS := strings.TrimSpace(event.TS)
	if messageTS == "" {
		return dispatch.MentionEvent{}, false, nil
	}
	teamID := strings.TrimSpace(payload.TeamID)
	if teamID == "" {
		teamID = strings.TrimSpace(event.Team)
	}

	sentAt := time.Now().UTC()
	if payload.EventTime > 0 {
		sentAt = time.Unix(payload.EventTime, 0).UTC()
	}

	return dispatch.MentionEvent{
		TeamID:    teamID,
		ChannelID: channelID,
		UserID:    userID,
		Text:      event.Text,
		MessageTS: messageTS,
		ThreadTS:  strings.TrimSpace(event.ThreadTS),
		SentAt:    sentAt,
	}, true, nil
}
