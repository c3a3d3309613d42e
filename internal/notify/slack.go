// Package notify posts chat-ops alerts. Every method is best effort: failures
// are logged and swallowed so an alert never fails the operation that sent it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-hub/internal/config"
	"github.com/sells-group/esg-hub/internal/model"
	"github.com/sells-group/esg-hub/internal/resilience"
)

// Notifier is the alert surface used by ingestion and missing-KPI scans.
// Each method reports whether a message was delivered.
type Notifier interface {
	MissingKPIs(ctx context.Context, alerts []model.MissingKPIAlert, period string) bool
	ProcessingComplete(ctx context.Context, recordID string, processed int, qualityScore *int) bool
	DataQuality(ctx context.Context, recordID string, qualityScore int, issues []string) bool
	Message(ctx context.Context, text string) bool
}

var urgencyEmoji = map[model.Urgency]string{
	model.UrgencyHigh:   "🔴",
	model.UrgencyMedium: "🟡",
	model.UrgencyLow:    "🟢",
}

// Block is a Slack Block Kit block.
type Block map[string]any

type postMessage struct {
	Channel string  `json:"channel"`
	Text    string  `json:"text"`
	Blocks  []Block `json:"blocks,omitempty"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Slack posts messages with chat.postMessage using a bot token.
type Slack struct {
	cfg    config.SlackConfig
	client *http.Client
	retry  resilience.RetryConfig
}

var _ Notifier = (*Slack)(nil)

// NewSlack creates a Slack notifier. Without a bot token or channel it is a
// silent no-op.
func NewSlack(cfg config.SlackConfig) *Slack {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://slack.com/api"
	}
	return &Slack{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.25,
		},
	}
}

// Enabled reports whether messages will be posted.
func (s *Slack) Enabled() bool {
	return s.cfg.BotToken != "" && s.cfg.ChannelID != ""
}

// MissingKPIs posts the missing-KPI alert grouped by urgency.
func (s *Slack) MissingKPIs(ctx context.Context, alerts []model.MissingKPIAlert, period string) bool {
	if len(alerts) == 0 {
		return false
	}
	return s.post(ctx, "missing_kpis", postMessage{
		Text:   fmt.Sprintf("Missing KPI Alert for %s", period),
		Blocks: MissingKPIBlocks(alerts, period),
	})
}

// ProcessingComplete announces a materialized batch.
func (s *Slack) ProcessingComplete(ctx context.Context, recordID string, processed int, qualityScore *int) bool {
	text := fmt.Sprintf("✅ *Data Processing Complete*\n\nRecord ID: `%s`\nProcessed Records: %d", recordID, processed)
	if qualityScore != nil {
		text += fmt.Sprintf("\nQuality Score: %d%%", *qualityScore)
	}
	return s.post(ctx, "processing_complete", postMessage{
		Text:   "Data Processing Complete",
		Blocks: []Block{section(text)},
	})
}

// DataQuality posts a low-quality warning with the issues found.
func (s *Slack) DataQuality(ctx context.Context, recordID string, qualityScore int, issues []string) bool {
	blocks := []Block{
		section(fmt.Sprintf("⚠️ *Data Quality Alert*\n\nRecord ID: `%s`\nQuality Score: %d%%", recordID, qualityScore)),
	}
	if len(issues) > 0 {
		blocks = append(blocks, section("*Issues Found:*\n"+bullets(issues)))
	}
	return s.post(ctx, "data_quality", postMessage{
		Text:   "Data Quality Alert",
		Blocks: blocks,
	})
}

// Message posts plain text.
func (s *Slack) Message(ctx context.Context, text string) bool {
	return s.post(ctx, "message", postMessage{Text: text})
}

// MissingKPIBlocks renders the alert: a header, a count, one section per
// urgency from high to low, and a compliance footer.
func MissingKPIBlocks(alerts []model.MissingKPIAlert, period string) []Block {
	blocks := []Block{
		{
			"type": "header",
			"text": map[string]any{"type": "plain_text", "text": fmt.Sprintf("Missing KPI Alert - %s", period)},
		},
		section(fmt.Sprintf("Found %d missing required KPIs for reporting period %s", len(alerts), period)),
	}

	grouped := make(map[model.Urgency][]string)
	for _, a := range alerts {
		grouped[a.Urgency] = append(grouped[a.Urgency], fmt.Sprintf("%s (%s)", a.KPIName, a.Category))
	}
	for _, u := range model.AllUrgencies() {
		lines, ok := grouped[u]
		if !ok {
			continue
		}
		blocks = append(blocks, section(fmt.Sprintf("%s *%s Priority*\n%s", urgencyEmoji[u], strings.ToUpper(string(u)), bullets(lines))))
	}

	blocks = append(blocks, Block{
		"type": "context",
		"elements": []map[string]any{{
			"type": "mrkdwn",
			"text": "Please ensure all required KPIs are reported to maintain compliance with ISSB standards.",
		}},
	})
	return blocks
}

func section(text string) Block {
	return Block{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func bullets(lines []string) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = "• " + l
	}
	return strings.Join(out, "\n")
}

// post delivers msg and logs any failure.
func (s *Slack) post(ctx context.Context, kind string, msg postMessage) bool {
	if !s.Enabled() {
		return false
	}
	msg.Channel = s.cfg.ChannelID

	err := resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		return s.postMessage(ctx, msg)
	})
	if err != nil {
		zap.L().Error("notify: slack post failed",
			zap.String("kind", kind),
			zap.Error(err),
		)
		return false
	}
	zap.L().Info("notify: slack message sent", zap.String("kind", kind))
	return true
}

func (s *Slack) postMessage(ctx context.Context, msg postMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "notify: marshal message")
	}

	url := strings.TrimRight(s.cfg.BaseURL, "/") + "/chat.postMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create request")
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.cfg.BotToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: post message")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return resilience.ClassifyHTTPStatus(eris.Errorf("notify: slack returned status %d", resp.StatusCode), resp.StatusCode)
	}

	var out slackResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return eris.Wrap(err, "notify: decode response")
	}
	if !out.OK {
		return eris.Errorf("notify: slack error %q", out.Error)
	}
	return nil
}
