package processor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/LJTian/NewsRelay/internal/collector"
)

type fakeLookup struct {
	published map[string]bool
	err       error
}

func (f *fakeLookup) IsPublished(_ context.Context, url string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.published[url], nil
}

func TestSimpleProcessorDeduplicateFirstSeenWins(t *testing.T) {
	p := NewSimpleProcessor()

	items := []collector.NewsItem{
		{Title: " Title 1 ", URL: "https://example.com/1", Source: "rss:a"},
		{Title: "Title 1 duplicate by URL", URL: "https://example.com/1", Source: "html:b"},
		{Title: "", URL: "https://example.com/2", Summary: "  s  "},
		{Title: "no url", URL: "  "},
	}

	out := p.Process(items)
	if len(out) != 2 {
		t.Fatalf("expected 2 processed items after dedupe, got %d", len(out))
	}
	if out[0].Title != "Title 1" || out[0].Source != "rss:a" {
		t.Fatalf("first-seen item should win: %+v", out[0])
	}
	if out[1].Title != UntitledTitle {
		t.Fatalf("empty title should fall back to %q, got %q", UntitledTitle, out[1].Title)
	}
	if out[1].Summary != "s" {
		t.Fatalf("summary should be trimmed, got %q", out[1].Summary)
	}
}

func TestSimpleProcessorKeepsDiscoveryOrder(t *testing.T) {
	items := []collector.NewsItem{
		{Title: "c", URL: "https://x/c"},
		{Title: "a", URL: "https://x/a"},
		{Title: "c2", URL: "https://x/c"},
		{Title: "b", URL: "https://x/b"},
	}
	out := NewSimpleProcessor().Process(items)
	want := []string{"https://x/c", "https://x/a", "https://x/b"}
	if len(out) != len(want) {
		t.Fatalf("got %d items, want %d", len(out), len(want))
	}
	for i, u := range want {
		if out[i].URL != u {
			t.Fatalf("out[%d].URL = %q, want %q", i, out[i].URL, u)
		}
	}
}

func TestFilterIsRelevant(t *testing.T) {
	f := NewFilter([]string{"School", " exam "}, &fakeLookup{})

	cases := []struct {
		item collector.NewsItem
		want bool
	}{
		{collector.NewsItem{Title: "City exam results announced", URL: "https://a/1"}, true},
		{collector.NewsItem{Title: "Weather today", URL: "https://a/2"}, false},
		{collector.NewsItem{Title: "Big news", URL: "https://a/school/3"}, true},
		{collector.NewsItem{Title: "SCHOOL opens", URL: "https://a/4"}, true},
	}
	for _, c := range cases {
		if got := f.IsRelevant(c.item); got != c.want {
			t.Fatalf("IsRelevant(%q) = %v, want %v", c.item.Title, got, c.want)
		}
	}
}

func TestFilterIsRelevantCyrillic(t *testing.T) {
	f := NewFilter([]string{"экзамен"}, &fakeLookup{})
	if !f.IsRelevant(collector.NewsItem{Title: "ЭКЗАМЕН перенесли", URL: "https://a/1"}) {
		t.Fatalf("cyrillic keyword match should be case-insensitive")
	}
}

func TestFilterEmptyKeywordsAlwaysRelevant(t *testing.T) {
	f := NewFilter(nil, &fakeLookup{})
	if !f.IsRelevant(collector.NewsItem{Title: "Weather today", URL: "https://a/2"}) {
		t.Fatalf("empty keyword set should match everything")
	}
}

func TestFilterIsNew(t *testing.T) {
	lookup := &fakeLookup{published: map[string]bool{"https://a/1": true}}
	f := NewFilter(nil, lookup)
	ctx := context.Background()

	if isNew, err := f.IsNew(ctx, collector.NewsItem{URL: "https://a/1"}); err != nil || isNew {
		t.Fatalf("published URL should not be new: isNew=%v err=%v", isNew, err)
	}
	if isNew, err := f.IsNew(ctx, collector.NewsItem{URL: "https://a/2"}); err != nil || !isNew {
		t.Fatalf("unpublished URL should be new: isNew=%v err=%v", isNew, err)
	}

	lookup.err = errors.New("db down")
	if isNew, err := f.IsNew(ctx, collector.NewsItem{URL: "https://a/2"}); err == nil || isNew {
		t.Fatalf("lookup error should surface and not report new: isNew=%v err=%v", isNew, err)
	}
}

func TestSimpleProcessorDropsOverlongURL(t *testing.T) {
	long := "https://a/" + strings.Repeat("x", MaxURLBytes)
	p := NewSimpleProcessor()
	out := p.Process([]collector.NewsItem{
		{Title: "too long", URL: long},
		{Title: "ok", URL: "https://a/1"},
	})
	if len(out) != 1 || out[0].URL != "https://a/1" {
		t.Fatalf("overlong URL should be dropped, got %+v", out)
	}
}
