// Package tasks holds illustrative tenanthost.Task implementations bundled
// with the scheduler: an RSS poller and a webhook notifier, adapted from
// the teacher's pipeline executors into standalone DoWork bodies.
package tasks

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taskscope/scheduler/internal/storage"
	"github.com/taskscope/scheduler/internal/tenanthost"
)

// RSSItem is one feed entry surfaced to a Sink.
type RSSItem struct {
	ID          string
	Title       string
	Description string
	Link        string
	Source      string
	PubDate     string
}

// RSSSink receives newly-seen items each DoWork call. The sink is passed to
// NewRSSPoller (cmd/server passes the WebhookNotifier from notify.go).
type RSSSink interface {
	PublishItems(ctx context.Context, items []RSSItem) error
}

// RSSPoller fetches one or more RSS/Atom feeds on every firing, dedupes
// against previously-seen items via SeenItemRepository, and hands new
// items to a sink. Name() identifies this task in the registry and in
// settings-provider lookups.
type RSSPoller struct {
	TaskName string
	Feeds    []string
	Schedule string
	Seen     *storage.SeenItemRepository
	Sink     RSSSink

	client *http.Client
}

func NewRSSPoller(name string, feeds []string, schedule string, seen *storage.SeenItemRepository, sink RSSSink) *RSSPoller {
	return &RSSPoller{
		TaskName: name,
		Feeds:    feeds,
		Schedule: schedule,
		Seen:     seen,
		Sink:     sink,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *RSSPoller) Name() string           { return p.TaskName }
func (p *RSSPoller) DefaultSchedule() string { return p.Schedule }

func (p *RSSPoller) DoWork(ctx context.Context, scope tenanthost.Scope) error {
	var all []RSSItem
	var fetchErrs []string

	for _, feed := range p.Feeds {
		items, err := p.fetchFeed(ctx, feed)
		if err != nil {
			fetchErrs = append(fetchErrs, fmt.Sprintf("%s: %v", feed, err))
			continue
		}
		all = append(all, items...)
	}

	if len(all) > 0 && p.Seen != nil {
		contents := make([]string, len(all))
		for i, item := range all {
			if item.Link != "" {
				contents[i] = item.Link
			} else {
				contents[i] = item.ID
			}
		}
		taskKey := p.TaskName
		newContents, newHashes, err := p.Seen.FilterNew(ctx, contents, taskKey)
		if err != nil {
			return fmt.Errorf("rss poller %s: filter seen items: %w", p.TaskName, err)
		}
		byContent := make(map[string]RSSItem, len(all))
		for i, item := range all {
			byContent[contents[i]] = item
		}
		fresh := make([]RSSItem, 0, len(newContents))
		for _, c := range newContents {
			fresh = append(fresh, byContent[c])
		}
		all = fresh
		if err := p.Seen.AddBatch(ctx, newHashes, "rss", taskKey); err != nil {
			return fmt.Errorf("rss poller %s: record seen items: %w", p.TaskName, err)
		}
	}

	if len(all) > 0 && p.Sink != nil {
		if err := p.Sink.PublishItems(ctx, all); err != nil {
			return fmt.Errorf("rss poller %s: publish: %w", p.TaskName, err)
		}
	}

	if len(fetchErrs) > 0 && len(fetchErrs) == len(p.Feeds) {
		return fmt.Errorf("rss poller %s: all feeds failed: %s", p.TaskName, strings.Join(fetchErrs, "; "))
	}
	return nil
}

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	Title   string   `xml:"title"`
	Link    atomLink `xml:"link"`
	Summary string   `xml:"summary"`
	Updated string   `xml:"updated"`
	ID      string   `xml:"id"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
}

func (p *RSSPoller) fetchFeed(ctx context.Context, url string) ([]RSSItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; taskscope-scheduler/1.0)")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var rss rssFeed
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		return convertRSSItems(rss.Channel.Items, rss.Channel.Title), nil
	}

	var atom atomFeed
	if err := xml.Unmarshal(body, &atom); err == nil && len(atom.Entries) > 0 {
		return convertAtomItems(atom.Entries, atom.Title), nil
	}

	return nil, fmt.Errorf("could not parse feed as RSS or Atom")
}

func convertRSSItems(items []rssItem, source string) []RSSItem {
	out := make([]RSSItem, 0, len(items))
	for _, item := range items {
		id := item.GUID
		if id == "" {
			id = item.Link
		}
		out = append(out, RSSItem{
			ID:          id,
			Title:       item.Title,
			Description: stripHTMLTags(item.Description),
			Link:        item.Link,
			Source:      source,
			PubDate:     item.PubDate,
		})
	}
	return out
}

func convertAtomItems(entries []atomEntry, source string) []RSSItem {
	out := make([]RSSItem, 0, len(entries))
	for _, entry := range entries {
		out = append(out, RSSItem{
			ID:          entry.ID,
			Title:       entry.Title,
			Description: stripHTMLTags(entry.Summary),
			Link:        entry.Link.Href,
			Source:      source,
			PubDate:     entry.Updated,
		})
	}
	return out
}

func stripHTMLTags(s string) string {
	var result strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
