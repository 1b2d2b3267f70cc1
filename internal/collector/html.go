package collector

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/LJTian/NewsRelay/internal/logging"
)

const (
	defaultLinkSelector = "a[href]"
	htmlMaxBodyBytes    = 4 << 20 // 4MB，防止超大 HTML
	summaryMinRunes     = 20
)

// 文章页正文容器，按顺序取第一个命中的
var summaryContainers = []string{".content_main_text", "article", "main", "body"}

// HTMLFetcher 访问新闻站点首页，收集其中的文章链接
type HTMLFetcher struct {
	name      string
	url       string
	selector  string
	maxItems  int
	summaries bool
	timeout   time.Duration
}

// NewHTMLFetcher selector 为空时收集页面上所有 a[href]；summaries 为 true 时逐条访问文章页补充摘要
func NewHTMLFetcher(name, pageURL, selector string, maxItems int, summaries bool, timeout time.Duration) *HTMLFetcher {
	if selector == "" {
		selector = defaultLinkSelector
	}
	return &HTMLFetcher{
		name:      name,
		url:       pageURL,
		selector:  selector,
		maxItems:  maxItems,
		summaries: summaries,
		timeout:   timeout,
	}
}

func (h *HTMLFetcher) Name() string {
	return h.name
}

func (h *HTMLFetcher) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.UserAgent(userAgent))
	c.SetRequestTimeout(h.timeout)
	c.MaxBodySize = htmlMaxBodyBytes
	return c
}

func (h *HTMLFetcher) Fetch(ctx context.Context) ([]NewsItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Source: h.name, Err: err}
	}

	c := h.newCollector()
	results := make([]NewsItem, 0, 64)
	seen := make(map[string]bool)

	// 页面结构因站点而异，这里只做“尽力而为”的链接收集
	c.OnHTML(h.selector, func(e *colly.HTMLElement) {
		if h.maxItems > 0 && len(results) >= h.maxItems {
			return
		}
		href := strings.TrimSpace(e.Attr("href"))
		if href == "" {
			return
		}
		link := e.Request.AbsoluteURL(href)
		if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
			return
		}
		if seen[link] {
			return
		}
		seen[link] = true

		title := strings.Join(strings.Fields(e.Text), " ")
		if title == "" {
			title = strings.TrimSpace(e.Attr("title"))
		}
		if title == "" {
			title = link
		}
		results = append(results, NewsItem{
			Title:  title,
			URL:    link,
			Source: h.name,
		})
	})

	if err := c.Visit(h.url); err != nil {
		return nil, &FetchError{Source: h.name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Source: h.name, Err: err}
	}

	if h.summaries {
		h.fillSummaries(ctx, c, results)
	}
	return results, nil
}

// fillSummaries 逐条访问文章页，取正文中第一段足够长的文字作为摘要；失败只记录日志
func (h *HTMLFetcher) fillSummaries(ctx context.Context, parent *colly.Collector, items []NewsItem) {
	log := logging.WithPrefix("collector")
	for i := range items {
		if ctx.Err() != nil {
			return
		}
		c := parent.Clone()
		var summary string
		c.OnHTML("html", func(e *colly.HTMLElement) {
			summary = firstParagraph(e.DOM)
		})
		if err := c.Visit(items[i].URL); err != nil {
			log.Debug("article summary unavailable", "source", h.name, "url", items[i].URL, "err", err)
			continue
		}
		items[i].Summary = summary
	}
}

func firstParagraph(doc *goquery.Selection) string {
	for _, sel := range summaryContainers {
		content := doc.Find(sel).First()
		if content.Length() == 0 {
			continue
		}
		var text string
		content.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
			t := strings.Join(strings.Fields(p.Text()), " ")
			if len([]rune(t)) > summaryMinRunes {
				text = t
				return false
			}
			return true
		})
		return text
	}
	return ""
}
