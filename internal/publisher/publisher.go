package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/LJTian/NewsRelay/internal/collector"
	"github.com/LJTian/NewsRelay/internal/logging"
	"github.com/LJTian/NewsRelay/internal/storage"
)

// Ledger 发布记录，由 storage.Store 实现
type Ledger interface {
	IsPublished(ctx context.Context, url string) (bool, error)
	MarkPublished(ctx context.Context, rec storage.Record) (bool, error)
}

type Status int

const (
	StatusPublished Status = iota
	StatusSkipped          // 发送前复查发现已发布
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPublished:
		return "published"
	case StatusSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// Outcome 单条发布结果
type Outcome struct {
	Status Status
	Err    error // StatusFailed 时非空
	// RecordErr 已发送成功但写入发布记录失败；下一轮可能重复发送一次
	RecordErr error
}

// RetryAfter 通道要求的退避时间，0 表示无
func (o Outcome) RetryAfter() time.Duration {
	var se *SendError
	if errors.As(o.Err, &se) {
		return se.RetryAfter
	}
	return 0
}

// Publisher 先发送、成功后再记录：中途崩溃最多导致下一轮重复发送，不会漏发
type Publisher struct {
	channel Channel
	chatID  string
	ledger  Ledger
	limiter *rate.Limiter
	now     func() time.Time
}

// New perMinute 为每分钟最多发送条数，<=0 表示不限速
func New(ch Channel, chatID string, ledger Ledger, perMinute int) *Publisher {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return &Publisher{
		channel: ch,
		chatID:  chatID,
		ledger:  ledger,
		limiter: limiter,
		now:     time.Now,
	}
}

func (p *Publisher) Publish(ctx context.Context, item collector.NewsItem) Outcome {
	log := logging.WithPrefix("publisher")

	// 采集阶段可能持续较久，发送前再确认一次
	published, err := p.ledger.IsPublished(ctx, item.URL)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("recheck %s: %w", item.URL, err)}
	}
	if published {
		log.Debug("already published, skip", "url", item.URL)
		return Outcome{Status: StatusSkipped}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	if err := p.channel.Send(ctx, p.chatID, FormatMessage(item), ModeHTML); err != nil {
		var se *SendError
		if !errors.As(err, &se) {
			err = &SendError{Reason: err.Error(), Err: err}
		}
		log.Error("send failed", "url", item.URL, "err", err)
		return Outcome{Status: StatusFailed, Err: err}
	}

	out := Outcome{Status: StatusPublished}
	rec := storage.Record{
		URL:         item.URL,
		Title:       item.Title,
		Source:      item.Source,
		PublishedAt: p.now(),
	}
	if _, err := p.ledger.MarkPublished(ctx, rec); err != nil {
		log.Error("sent but failed to record, may repeat next pass", "url", item.URL, "err", err)
		out.RecordErr = err
	}
	return out
}
