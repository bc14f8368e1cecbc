package tasks

import (
	"context"
	"testing"
)

func TestWebhookNotifierDoWorkNoopWhenEmpty(t *testing.T) {
	n := NewWebhookNotifier("notify", "", 0)
	if err := n.DoWork(context.Background(), nil); err != nil {
		t.Fatalf("DoWork with empty backlog should be a no-op, got: %v", err)
	}
}

func TestWebhookNotifierDoWorkErrorsWithoutURL(t *testing.T) {
	n := NewWebhookNotifier("notify", "", 0)
	if err := n.PublishItems(context.Background(), []RSSItem{{Title: "hi"}}); err != nil {
		t.Fatalf("PublishItems: %v", err)
	}
	if err := n.DoWork(context.Background(), nil); err == nil {
		t.Fatal("expected error when webhook URL is unset but backlog is non-empty")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate under limit changed string: %q", got)
	}
	if got := truncate("hello world", 8); got != "hello..." {
		t.Errorf("truncate = %q, want hello...", got)
	}
}
