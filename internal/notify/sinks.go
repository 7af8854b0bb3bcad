package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"trackly/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink POSTs each event as JSON.
type WebhookSink struct {
	URL    string
	Secret string
	Client *http.Client
	filter eventFilter
}

func NewWebhookSink(url, secret string, evts []string) *WebhookSink {
	return &WebhookSink{URL: url, Secret: secret, Client: &http.Client{Timeout: defaultWebhookTimeout}, filter: newEventFilter(evts)}
}

func (w *WebhookSink) Name() string              { return "webhook " + w.URL }
func (w *WebhookSink) Match(evtType string) bool { return w.filter.match(evtType) }

type webhookEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Collection string          `json:"collection"`
	DocID      string          `json:"docId,omitempty"`
	ActorID    string          `json:"actorId"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (w *WebhookSink) Deliver(ctx context.Context, evt domain.Event) error {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	data, err := json.Marshal(webhookEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		Collection: evt.Collection,
		DocID:      evt.DocID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Trackly-Event", evt.Type)
	req.Header.Set("X-Trackly-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Trackly-Secret", w.Secret)
	}
	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// SlackSink posts a one-line summary of each event to a channel.
type SlackSink struct {
	client  *slack.Client
	channel string
	filter  eventFilter
}

func NewSlackSink(client *slack.Client, channel string, evts []string) *SlackSink {
	return &SlackSink{client: client, channel: channel, filter: newEventFilter(evts)}
}

func (s *SlackSink) Name() string              { return "slack " + s.channel }
func (s *SlackSink) Match(evtType string) bool { return s.filter.match(evtType) }

func (s *SlackSink) Deliver(ctx context.Context, evt domain.Event) error {
	_, _, err := s.client.PostMessageContext(ctx, s.channel, slack.MsgOptionText(SlackText(evt), false))
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	return nil
}

// SlackText renders an event for chat.
func SlackText(evt domain.Event) string {
	var payload map[string]any
	_ = json.Unmarshal([]byte(evt.Payload), &payload)
	text := fmt.Sprintf("%s %s/%s by %s", evt.Type, evt.Collection, evt.DocID, evt.ActorID)
	if evt.Collection == domain.CollectionReports {
		if st, ok := payload["status"].(string); ok {
			text += " status=" + st
		}
		if m, ok := payload["month"].(string); ok {
			text += " month=" + m
		}
	}
	return text
}
