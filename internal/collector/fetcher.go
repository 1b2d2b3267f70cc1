package collector

import (
	"context"
	"fmt"
)

// NewsItem 采集得到的候选新闻，URL 是唯一身份
type NewsItem struct {
	Title   string
	URL     string
	Summary string // 可为空
	Source  string // 产出该条目的 Fetcher 名称
}

// Fetcher 抽象每一个数据源
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]NewsItem, error)
}

// FetchError 单个源抓取或解析失败；对整轮采集而言是非致命的
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
