package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultSlackAPI = "https://slack.com/api"

// SlackConfig holds the bot credentials and target channel.
type SlackConfig struct {
	Token   string
	Channel string
	// BaseURL overrides the Slack API endpoint. Tests point it at a local
	// server.
	BaseURL string
}

// Slack posts a short message per migrated item. Delivery is best effort:
// failures are logged and never surface to the pipeline.
type Slack struct {
	cfg        SlackConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSlack builds a Slack notifier. Returns nil when token or channel is
// missing, which disables the channel without special-casing callers.
func NewSlack(cfg SlackConfig, logger *zap.Logger) *Slack {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSlackAPI
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Slack{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackMessage struct {
	Channel string       `json:"channel"`
	Text    string       `json:"text"`
	Blocks  []slackBlock `json:"blocks,omitempty"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Slack) ItemMigrated(ctx context.Context, name string, links []string) {
	msg := slackMessage{
		Channel: s.cfg.Channel,
		Text:    fmt.Sprintf("Migrated %q (%d files)", name, len(links)),
		Blocks: []slackBlock{
			{
				Type: "section",
				Text: &slackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*%s* migrated with %d files", name, len(links)),
				},
			},
		},
	}
	if len(links) > 0 {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: strings.Join(links, "\n")},
		})
	}

	if err := s.post(ctx, msg); err != nil {
		s.logger.Warn("slack notification failed",
			zap.String("item", name), zap.Error(err))
	}
}

func (s *Slack) post(ctx context.Context, msg slackMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.cfg.BaseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			s.logger.Warn("close slack response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	var apiResp slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !apiResp.OK {
		return fmt.Errorf("slack rejected message: %s", apiResp.Error)
	}
	return nil
}
