package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/taskscope/scheduler/internal/tenanthost"
)

// webhookMessage is the JSON body posted to a Discord-compatible incoming
// webhook, trimmed from the teacher's richer embed model. The notifier
// fills in only Embeds; the other fields are left empty.
type webhookMessage struct {
	Content   string         `json:"content,omitempty"`
	Embeds    []webhookEmbed `json:"embeds,omitempty"`
	Username  string         `json:"username,omitempty"`
	AvatarURL string         `json:"avatar_url,omitempty"`
}

type webhookEmbed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Color       int    `json:"color,omitempty"`
}

// WebhookNotifier posts newly-seen RSS items to an incoming webhook URL,
// rate-limited the way the teacher's Discord executor is. It implements
// RSSSink so it can be wired directly as an RSSPoller's Sink, and also
// tenanthost.Task so it can be scheduled on its own cadence with a
// backlog queued through PublishItems.
type WebhookNotifier struct {
	TaskName   string
	WebhookURL string
	RateLimit  time.Duration

	mu       sync.Mutex
	lastSend time.Time
	client   *http.Client
	backlog  []RSSItem
}

func NewWebhookNotifier(name, webhookURL string, rateLimitMs int) *WebhookNotifier {
	return &WebhookNotifier{
		TaskName:   name,
		WebhookURL: webhookURL,
		RateLimit:  time.Duration(rateLimitMs) * time.Millisecond,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) Name() string            { return n.TaskName }
func (n *WebhookNotifier) DefaultSchedule() string { return "* * * * *" }

// PublishItems satisfies RSSSink: it queues items for the next DoWork
// firing rather than sending immediately, so a burst of items from one
// poll is still subject to the notifier's own rate limit and its own
// entry in the registry/history.
func (n *WebhookNotifier) PublishItems(ctx context.Context, items []RSSItem) error {
	n.mu.Lock()
	n.backlog = append(n.backlog, items...)
	n.mu.Unlock()
	return nil
}

func (n *WebhookNotifier) DoWork(ctx context.Context, scope tenanthost.Scope) error {
	n.mu.Lock()
	pending := n.backlog
	n.backlog = nil
	n.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	if n.WebhookURL == "" {
		return fmt.Errorf("webhook notifier %s: no webhook URL configured", n.TaskName)
	}

	for _, item := range pending {
		msg := webhookMessage{
			Embeds: []webhookEmbed{{
				Title:       truncate(item.Title, 256),
				Description: truncate(item.Description, 2048),
				URL:         item.Link,
				Color:       0x5865F2,
			}},
		}
		if err := n.send(ctx, msg); err != nil {
			return fmt.Errorf("webhook notifier %s: %w", n.TaskName, err)
		}
	}
	return nil
}

func (n *WebhookNotifier) send(ctx context.Context, msg webhookMessage) error {
	n.mu.Lock()
	if elapsed := time.Since(n.lastSend); elapsed < n.RateLimit {
		n.mu.Unlock()
		time.Sleep(n.RateLimit - elapsed)
		n.mu.Lock()
	}
	n.mu.Unlock()

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	n.mu.Lock()
	n.lastSend = time.Now()
	n.mu.Unlock()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
