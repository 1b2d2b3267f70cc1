package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Test</title>
  <item>
    <title> Exam schedule released </title>
    <link>https://a/1</link>
    <description>&lt;p&gt;New &lt;b&gt;exam&lt;/b&gt; dates&lt;/p&gt;</description>
  </item>
  <item>
    <title>Guid only</title>
    <guid>https://a/2</guid>
  </item>
  <item>
    <title>No link at all</title>
  </item>
  <item>
    <title>Weather</title>
    <link>https://a/3</link>
  </item>
</channel>
</rss>`

func TestRSSFetcherParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	f := NewRSSFetcher("rss:test", srv.URL, 0, 5*time.Second)
	items, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items (item without link dropped), got %d: %+v", len(items), items)
	}
	if items[0].Title != "Exam schedule released" || items[0].URL != "https://a/1" {
		t.Fatalf("unexpected first item: %+v", items[0])
	}
	if items[0].Summary != "New exam dates" {
		t.Fatalf("summary should be plain text, got %q", items[0].Summary)
	}
	if items[1].URL != "https://a/2" {
		t.Fatalf("guid should be used when link is missing, got %q", items[1].URL)
	}
	for _, it := range items {
		if it.Source != "rss:test" {
			t.Fatalf("Source = %q, want rss:test", it.Source)
		}
	}
}

func TestRSSFetcherMaxItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	items, err := NewRSSFetcher("rss:test", srv.URL, 1, 5*time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
}

func TestRSSFetcherHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	items, err := NewRSSFetcher("rss:broken", srv.URL, 0, 5*time.Second).Fetch(context.Background())
	if err == nil {
		t.Fatalf("expected error for 502 response")
	}
	if items != nil {
		t.Fatalf("no partial results expected from a failing source, got %+v", items)
	}
	var ferr *FetchError
	if !errors.As(err, &ferr) || ferr.Source != "rss:broken" {
		t.Fatalf("expected FetchError for rss:broken, got %v", err)
	}
}

func TestRSSFetcherInvalidFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not a feed"))
	}))
	defer srv.Close()

	if _, err := NewRSSFetcher("rss:junk", srv.URL, 0, 5*time.Second).Fetch(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestPlainText(t *testing.T) {
	cases := map[string]string{
		"":                             "",
		"  plain   text ":              "plain text",
		"<p>Hello <i>world</i></p>":    "Hello world",
		"Tom &amp; Jerry":              "Tom & Jerry",
		"<div>a</div>\n\n<div>b</div>": "a b",
	}
	for in, want := range cases {
		if got := plainText(in); got != want {
			t.Fatalf("plainText(%q) = %q, want %q", in, got, want)
		}
	}
}
