package processor

import (
	"context"
	"strings"

	"github.com/LJTian/NewsRelay/internal/collector"
)

// UntitledTitle 标题为空时的兜底展示
const UntitledTitle = "Без заголовка"

// MaxURLBytes 超过此长度的链接直接丢弃：既放不进一条频道消息，也不适合做唯一键
const MaxURLBytes = 2048

// SimpleProcessor 做最基础的数据清洗与按 URL 去重
type SimpleProcessor struct{}

func NewSimpleProcessor() *SimpleProcessor {
	return &SimpleProcessor{}
}

// Process 按首次出现的顺序去重，同一 URL 以第一次出现的标题为准；空链接和超长链接被丢弃
func (p *SimpleProcessor) Process(items []collector.NewsItem) []collector.NewsItem {
	out := make([]collector.NewsItem, 0, len(items))
	seen := make(map[string]struct{}, len(items))

	for _, it := range items {
		u := strings.TrimSpace(it.URL)
		if u == "" || len(u) > MaxURLBytes {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}

		title := strings.TrimSpace(it.Title)
		if title == "" {
			title = UntitledTitle
		}
		out = append(out, collector.NewsItem{
			Title:   title,
			URL:     u,
			Summary: strings.TrimSpace(it.Summary),
			Source:  it.Source,
		})
	}

	return out
}

// PublishedLookup 由存储层实现
type PublishedLookup interface {
	IsPublished(ctx context.Context, url string) (bool, error)
}

// Filter 判断候选条目是否相关、是否尚未发布
type Filter struct {
	keywords []string
	lookup   PublishedLookup
}

// NewFilter 关键词大小写不敏感；关键词为空时所有条目都视为相关
func NewFilter(keywords []string, lookup PublishedLookup) *Filter {
	kws := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	return &Filter{keywords: kws, lookup: lookup}
}

// IsRelevant 标题或 URL 包含任一关键词即相关
func (f *Filter) IsRelevant(item collector.NewsItem) bool {
	if len(f.keywords) == 0 {
		return true
	}
	return containsAny(item.Title, f.keywords) || containsAny(item.URL, f.keywords)
}

// IsNew 以存储层为准；查询出错时返回 error，由调用方决定跳过
func (f *Filter) IsNew(ctx context.Context, item collector.NewsItem) (bool, error) {
	published, err := f.lookup.IsPublished(ctx, item.URL)
	if err != nil {
		return false, err
	}
	return !published, nil
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	low := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(low, kw) {
			return true
		}
	}
	return false
}
