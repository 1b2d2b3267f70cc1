package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const rssMaxResponseBytes = 4 << 20 // 4MB

// RSSFetcher 拉取并解析一个 RSS/Atom 源
type RSSFetcher struct {
	name     string
	url      string
	maxItems int
	client   *http.Client
}

// NewRSSFetcher maxItems 为 0 表示不限条数
func NewRSSFetcher(name, feedURL string, maxItems int, timeout time.Duration) *RSSFetcher {
	return &RSSFetcher{
		name:     name,
		url:      feedURL,
		maxItems: maxItems,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *RSSFetcher) Name() string {
	return r.name
}

func (r *RSSFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	items, err := r.fetch(ctx)
	if err != nil {
		return nil, &FetchError{Source: r.name, Err: err}
	}
	return items, nil
}

func (r *RSSFetcher) fetch(ctx context.Context) ([]NewsItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(io.LimitReader(resp.Body, rssMaxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	results := make([]NewsItem, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if r.maxItems > 0 && len(results) >= r.maxItems {
			break
		}
		// 部分源只给 guid 不给 link
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			link = strings.TrimSpace(entry.GUID)
		}
		if link == "" {
			continue
		}
		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}
		results = append(results, NewsItem{
			Title:   strings.TrimSpace(entry.Title),
			URL:     link,
			Summary: plainText(summary),
			Source:  r.name,
		})
	}
	return results, nil
}
