package tasks

import "testing"

func TestStripHTMLTags(t *testing.T) {
	cases := map[string]string{
		"<p>hello <b>world</b></p>": "hello world",
		"no tags here":              "no tags here",
		"  <i>trim</i>  ":           "trim",
	}
	for in, want := range cases {
		if got := stripHTMLTags(in); got != want {
			t.Errorf("stripHTMLTags(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConvertRSSItemsPrefersGUID(t *testing.T) {
	items := convertRSSItems([]rssItem{
		{Title: "A", Link: "https://example.com/a", GUID: "guid-a"},
		{Title: "B", Link: "https://example.com/b"},
	}, "example")
	if items[0].ID != "guid-a" {
		t.Errorf("item 0 ID = %q, want guid-a", items[0].ID)
	}
	if items[1].ID != "https://example.com/b" {
		t.Errorf("item 1 ID = %q, want link fallback", items[1].ID)
	}
	for _, item := range items {
		if item.Source != "example" {
			t.Errorf("source = %q, want example", item.Source)
		}
	}
}

func TestRSSPollerNameAndSchedule(t *testing.T) {
	p := NewRSSPoller("hn-poller", []string{"https://hnrss.org/frontpage"}, "*/10 * * * *", nil, nil)
	if p.Name() != "hn-poller" {
		t.Errorf("Name() = %q", p.Name())
	}
	if p.DefaultSchedule() != "*/10 * * * *" {
		t.Errorf("DefaultSchedule() = %q", p.DefaultSchedule())
	}
}
