package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-hub/internal/config"
	"github.com/sells-group/esg-hub/internal/model"
)

// slackServer records the last posted message and answers with ok.
func slackServer(t *testing.T, ok bool, calls *atomic.Int32, last *postMessage) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		if last != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(last))
		}
		w.Header().Set("Content-Type", "application/json")
		if ok {
			w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`)) //nolint:errcheck
	}))
	t.Cleanup(ts.Close)
	return ts
}

func testAlerts() []model.MissingKPIAlert {
	return []model.MissingKPIAlert{
		{KPIID: "employees", KPIName: "Employee Count", Category: model.CategorySocial, Urgency: model.UrgencyLow},
		{KPIID: "co2", KPIName: "CO2排出量", Category: model.CategoryEnvironmental, Urgency: model.UrgencyHigh},
		{KPIID: "water", KPIName: "Water Usage", Category: model.CategoryEnvironmental, Urgency: model.UrgencyHigh},
	}
}

func TestSlack_MissingKPIs(t *testing.T) {
	var calls atomic.Int32
	var got postMessage
	ts := slackServer(t, true, &calls, &got)

	s := NewSlack(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123", BaseURL: ts.URL})
	sent := s.MissingKPIs(context.Background(), testAlerts(), "2024-Q1")

	assert.True(t, sent)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "C123", got.Channel)
	assert.Equal(t, "Missing KPI Alert for 2024-Q1", got.Text)
	assert.Len(t, got.Blocks, 5)
}

func TestSlack_MissingKPIsEmptyIsNoop(t *testing.T) {
	var calls atomic.Int32
	ts := slackServer(t, true, &calls, nil)

	s := NewSlack(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123", BaseURL: ts.URL})
	assert.False(t, s.MissingKPIs(context.Background(), nil, "2024"))
	assert.Equal(t, int32(0), calls.Load())
}

func TestSlack_Unconfigured(t *testing.T) {
	var calls atomic.Int32
	ts := slackServer(t, true, &calls, nil)

	s := NewSlack(config.SlackConfig{BaseURL: ts.URL})
	assert.False(t, s.Enabled())
	assert.False(t, s.Message(context.Background(), "hello"))
	assert.False(t, s.MissingKPIs(context.Background(), testAlerts(), "2024"))
	assert.Equal(t, int32(0), calls.Load())
}

func TestSlack_APIErrorIsSwallowed(t *testing.T) {
	var calls atomic.Int32
	ts := slackServer(t, false, &calls, nil)

	s := NewSlack(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123", BaseURL: ts.URL})
	assert.False(t, s.Message(context.Background(), "hello"))
	assert.Equal(t, int32(1), calls.Load())
}

func fastRetry(s *Slack) *Slack {
	s.retry.InitialBackoff = time.Millisecond
	s.retry.MaxBackoff = time.Millisecond
	return s
}

func TestSlack_HTTPErrorIsSwallowed(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	s := fastRetry(NewSlack(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123", BaseURL: ts.URL}))
	assert.False(t, s.DataQuality(context.Background(), "rec-1", 40, []string{"missing values"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSlack_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(slackResponse{OK: true}) //nolint:errcheck
	}))
	defer ts.Close()

	s := fastRetry(NewSlack(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123", BaseURL: ts.URL}))
	assert.True(t, s.Message(context.Background(), "hello"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSlack_RateLimitNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	s := fastRetry(NewSlack(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123", BaseURL: ts.URL}))
	assert.False(t, s.Message(context.Background(), "hello"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSlack_UnreachableIsSwallowed(t *testing.T) {
	s := fastRetry(NewSlack(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123", BaseURL: "http://127.0.0.1:1"}))
	assert.False(t, s.Message(context.Background(), "hello"))
}

func TestSlack_ProcessingComplete(t *testing.T) {
	var calls atomic.Int32
	var got postMessage
	ts := slackServer(t, true, &calls, &got)
	s := NewSlack(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123", BaseURL: ts.URL})

	score := 92
	require.True(t, s.ProcessingComplete(context.Background(), "rec-1", 12, &score))
	require.Len(t, got.Blocks, 1)
	text := got.Blocks[0]["text"].(map[string]any)["text"].(string)
	assert.Contains(t, text, "`rec-1`")
	assert.Contains(t, text, "Processed Records: 12")
	assert.Contains(t, text, "Quality Score: 92%")

	require.True(t, s.ProcessingComplete(context.Background(), "rec-2", 3, nil))
	text = got.Blocks[0]["text"].(map[string]any)["text"].(string)
	assert.NotContains(t, text, "Quality Score")
}

func TestSlack_DataQuality(t *testing.T) {
	var calls atomic.Int32
	var got postMessage
	ts := slackServer(t, true, &calls, &got)
	s := NewSlack(config.SlackConfig{BotToken: "xoxb-test", ChannelID: "C123", BaseURL: ts.URL})

	require.True(t, s.DataQuality(context.Background(), "rec-1", 55, []string{"missing values", "mixed units"}))
	assert.Equal(t, "Data Quality Alert", got.Text)
	require.Len(t, got.Blocks, 2)
	issues := got.Blocks[1]["text"].(map[string]any)["text"].(string)
	assert.Equal(t, "*Issues Found:*\n• missing values\n• mixed units", issues)
}

func TestMissingKPIBlocks_GroupedByUrgency(t *testing.T) {
	blocks := MissingKPIBlocks(testAlerts(), "2024")
	require.Len(t, blocks, 5)

	assert.Equal(t, "header", blocks[0]["type"])
	assert.Contains(t, blocks[1]["text"].(map[string]any)["text"], "Found 3 missing required KPIs for reporting period 2024")

	high := blocks[2]["text"].(map[string]any)["text"].(string)
	low := blocks[3]["text"].(map[string]any)["text"].(string)
	assert.True(t, strings.HasPrefix(high, "🔴 *HIGH Priority*\n"))
	assert.Contains(t, high, "• CO2排出量 (environmental)\n• Water Usage (environmental)")
	assert.True(t, strings.HasPrefix(low, "🟢 *LOW Priority*\n"))
	assert.Equal(t, "context", blocks[4]["type"])
}
