package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/user/isp-cabinet/internal/config"
	"github.com/user/isp-cabinet/internal/store"
)

const requestTimeout = 10 * time.Second

// Alerter posts webhook alerts when an account enters or leaves the
// needs-attention state. It implements the scheduler's Watcher.
type Alerter struct {
	url     string
	kind    string
	client  *http.Client
	log     *slog.Logger
	enabled bool
}

// New builds an Alerter from the webhook config. An empty URL disables
// alerting; the payload type is auto-detected from the URL when unset.
func New(cfg config.WebhookConfig, log *slog.Logger) *Alerter {
	kind := cfg.Type
	if kind == "" {
		switch {
		case strings.Contains(cfg.URL, "slack.com"):
			kind = "slack"
		case strings.Contains(cfg.URL, "discord.com"):
			kind = "discord"
		default:
			kind = "generic"
		}
	}
	return &Alerter{
		url:     cfg.URL,
		kind:    kind,
		client:  &http.Client{Timeout: requestTimeout},
		log:     log,
		enabled: cfg.URL != "",
	}
}

func (a *Alerter) AccountDown(ctx context.Context, e store.Entry) {
	msg := "poll failures"
	if e.LastError != nil {
		msg = fmt.Sprintf("%s: %s", e.LastError.Class, e.LastError.Message)
	}
	a.send(ctx, alert{
		Event:               "account_down",
		AccountID:           e.AccountID,
		ConsecutiveFailures: e.ConsecutiveFailures,
		Detail:              msg,
		Timestamp:           time.Now().UTC(),
	})
}

func (a *Alerter) AccountRecovered(ctx context.Context, e store.Entry) {
	a.send(ctx, alert{
		Event:     "account_recovered",
		AccountID: e.AccountID,
		Detail:    "polling succeeded again",
		Timestamp: time.Now().UTC(),
	})
}

type alert struct {
	Event               string    `json:"event"`
	AccountID           string    `json:"account_id"`
	ConsecutiveFailures int       `json:"consecutive_failures,omitempty"`
	Detail              string    `json:"detail"`
	Timestamp           time.Time `json:"timestamp"`
}

func (a *Alerter) send(ctx context.Context, al alert) {
	if !a.enabled {
		return
	}

	var (
		payload []byte
		err     error
	)
	switch a.kind {
	case "slack":
		payload, err = buildSlackPayload(al)
	case "discord":
		payload, err = buildDiscordPayload(al)
	default:
		payload, err = json.Marshal(al)
	}
	if err != nil {
		a.log.Error("alerting: build payload failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		a.log.Error("alerting: create request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Error("alerting: webhook request failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		a.log.Error("alerting: webhook rejected alert", "status", resp.StatusCode)
		return
	}
	a.log.Info("alerting: alert sent", "event", al.Event, "account", al.AccountID)
}

func buildSlackPayload(al alert) ([]byte, error) {
	emoji := ":warning:"
	title := "Account needs attention"
	if al.Event == "account_recovered" {
		emoji = ":white_check_mark:"
		title = "Account recovered"
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s %s: %s", emoji, title, al.AccountID),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Detail:*\n%s", al.Detail)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Consecutive failures:*\n%d", al.ConsecutiveFailures)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", al.Timestamp.Format(time.RFC3339))},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func buildDiscordPayload(al alert) ([]byte, error) {
	color := 16711680 // red
	title := "Account needs attention"
	if al.Event == "account_recovered" {
		color = 65280 // green
		title = "Account recovered"
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("%s: %s", title, al.AccountID),
				"description": al.Detail,
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Consecutive failures", "value": fmt.Sprintf("%d", al.ConsecutiveFailures), "inline": true},
				},
				"timestamp": al.Timestamp.Format(time.RFC3339),
			},
		},
	}
	return json.Marshal(payload)
}
