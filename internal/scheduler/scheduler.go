package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LJTian/NewsRelay/internal/collector"
	"github.com/LJTian/NewsRelay/internal/logging"
	"github.com/LJTian/NewsRelay/internal/processor"
	"github.com/LJTian/NewsRelay/internal/publisher"
)

// ErrPassRunning 已有一轮在执行，本次触发被拒绝
var ErrPassRunning = errors.New("a pass is already running")

// Publisher 由 publisher.Publisher 实现
type Publisher interface {
	Publish(ctx context.Context, item collector.NewsItem) publisher.Outcome
}

// Notifier 运维日志通道，由 publisher.Notifier 实现
type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Config struct {
	// Spec cron 表达式，如 "@every 30m"
	Spec string
	// MaxPerPass 每轮最多成功发布的条数
	MaxPerPass int
}

// PassReport 一轮 FETCH → FILTER → PUBLISH → REPORT 的结果摘要
type PassReport struct {
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	Fetched      int       `json:"fetched"`
	Candidates   int       `json:"candidates"`
	Eligible     int       `json:"eligible"`
	Published    []string  `json:"published"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	Deferred     int       `json:"deferred"` // 超出上限或被限流推迟到下一轮的条数
	SourceErrors []string  `json:"sourceErrors,omitempty"`
	Error        string    `json:"error,omitempty"`
}

type Scheduler struct {
	cron       *cron.Cron
	fetchers   []collector.Fetcher
	processor  *processor.SimpleProcessor
	filter     *processor.Filter
	publisher  Publisher
	notifier   Notifier
	maxPerPass int

	// running 保证任意时刻至多一轮在执行
	running sync.Mutex

	mu   sync.RWMutex
	last *PassReport

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, fetchers []collector.Fetcher, p *processor.SimpleProcessor, f *processor.Filter, pub Publisher, n Notifier) (*Scheduler, error) {
	if cfg.MaxPerPass <= 0 {
		return nil, fmt.Errorf("max per pass must be positive, got %d", cfg.MaxPerPass)
	}

	logger := cron.PrintfLogger(logging.Std("cron"))
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:       c,
		fetchers:   fetchers,
		processor:  p,
		filter:     f,
		publisher:  pub,
		notifier:   n,
		maxPerPass: cfg.MaxPerPass,
		ctx:        ctx,
		cancel:     cancel,
	}

	if _, err := c.AddFunc(cfg.Spec, s.scheduledRun); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start 启动定时任务，并立即在后台执行首轮
func (s *Scheduler) Start() {
	s.notifier.Notify(s.ctx, "Бот запущен.")
	s.cron.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scheduledRun()
	}()
}

// Stop 停止调度并等待正在执行的一轮结束（最多等到 ctx 到期）
func (s *Scheduler) Stop(ctx context.Context) {
	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn("scheduler stop timed out, cancelling running pass")
	}
	s.cancel()
}

// RunOnce 对外暴露的单次执行入口；已有一轮在执行时返回 ErrPassRunning
func (s *Scheduler) RunOnce(ctx context.Context) (PassReport, error) {
	if !s.running.TryLock() {
		return PassReport{}, ErrPassRunning
	}
	defer s.running.Unlock()
	return s.runPass(ctx), nil
}

// LastReport 返回最近一轮的结果
func (s *Scheduler) LastReport() (PassReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return PassReport{}, false
	}
	return *s.last, true
}

func (s *Scheduler) scheduledRun() {
	if _, err := s.RunOnce(s.ctx); errors.Is(err, ErrPassRunning) {
		logging.Info("skip scheduled pass: previous pass still running")
	}
}

// runPass 执行一轮；任何 panic 都在这里兜住，保证调度进程不退出
func (s *Scheduler) runPass(ctx context.Context) (rep PassReport) {
	log := logging.WithPrefix("scheduler")
	rep.StartedAt = time.Now()
	log.Info("start pass", "sources", len(s.fetchers))

	defer func() {
		if r := recover(); r != nil {
			rep.Error = fmt.Sprintf("panic: %v", r)
			log.Error("pass crashed", "panic", r, "stack", string(debug.Stack()))
			s.notifier.Notify(ctx, fmt.Sprintf("[Критическая ошибка] %v", r))
		}
		rep.FinishedAt = time.Now()
		s.mu.Lock()
		s.last = &rep
		s.mu.Unlock()
		log.Info("pass done",
			"published", len(rep.Published), "failed", rep.Failed,
			"deferred", rep.Deferred, "took", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	}()

	// FETCH
	items, sourceErrs := s.fetchAll(ctx)
	rep.Fetched = len(items)
	for _, ferr := range sourceErrs {
		rep.SourceErrors = append(rep.SourceErrors, ferr.Error())
		s.notifier.Notify(ctx, fmt.Sprintf("[Ошибка источника] %s — %v", ferr.Source, ferr.Err))
	}

	// DEDUPE_AND_FILTER
	candidates := s.processor.Process(items)
	rep.Candidates = len(candidates)
	eligible := s.eligible(ctx, candidates)
	rep.Eligible = len(eligible)

	// PUBLISH
	published := make([]collector.NewsItem, 0, s.maxPerPass)
	attempted := 0
	for _, it := range eligible {
		if len(published) >= s.maxPerPass {
			break
		}
		if err := ctx.Err(); err != nil {
			rep.Error = err.Error()
			break
		}
		attempted++
		out := s.publisher.Publish(ctx, it)
		switch out.Status {
		case publisher.StatusPublished:
			published = append(published, it)
			rep.Published = append(rep.Published, it.URL)
			if out.RecordErr != nil {
				s.notifier.Notify(ctx, fmt.Sprintf("[Ошибка записи] %s — %v", it.URL, out.RecordErr))
			}
		case publisher.StatusSkipped:
			rep.Skipped++
		case publisher.StatusFailed:
			rep.Failed++
			s.notifier.Notify(ctx, fmt.Sprintf("[Ошибка публикации] %s — %v", it.URL, out.Err))
		}
		if wait := out.RetryAfter(); wait > 0 {
			log.Warn("channel rate limited, deferring the rest of this pass", "retryAfter", wait)
			break
		}
	}
	rep.Deferred = len(eligible) - attempted

	// REPORT
	if len(published) == 0 {
		s.notifier.Notify(ctx, "Новых релевантных новостей не найдено в этом цикле.")
		return rep
	}
	for _, it := range published {
		s.notifier.Notify(ctx, fmt.Sprintf("Опубликовано: %s — %s", it.Title, it.URL))
	}
	return rep
}

// fetchAll 并发调用所有源，结果按配置顺序拼接；单个源失败或 panic 不影响其它源
func (s *Scheduler) fetchAll(ctx context.Context) ([]collector.NewsItem, []*collector.FetchError) {
	log := logging.WithPrefix("scheduler")
	results := make([][]collector.NewsItem, len(s.fetchers))
	errs := make([]*collector.FetchError, len(s.fetchers))

	var wg sync.WaitGroup
	for i, f := range s.fetchers {
		wg.Add(1)
		go func(i int, f collector.Fetcher) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = &collector.FetchError{Source: f.Name(), Err: fmt.Errorf("panic: %v", r)}
				}
			}()
			items, err := f.Fetch(ctx)
			if err != nil {
				var ferr *collector.FetchError
				if !errors.As(err, &ferr) {
					ferr = &collector.FetchError{Source: f.Name(), Err: err}
				}
				errs[i] = ferr
				return
			}
			results[i] = items
		}(i, f)
	}
	wg.Wait()

	var all []collector.NewsItem
	var failed []*collector.FetchError
	for i, f := range s.fetchers {
		if errs[i] != nil {
			log.Error("fetch failed", "source", f.Name(), "err", errs[i])
			failed = append(failed, errs[i])
			continue
		}
		log.Debug("fetched", "source", f.Name(), "items", len(results[i]))
		all = append(all, results[i]...)
	}
	return all, failed
}

// eligible 保持发现顺序，过滤出相关且尚未发布的条目
func (s *Scheduler) eligible(ctx context.Context, candidates []collector.NewsItem) []collector.NewsItem {
	out := make([]collector.NewsItem, 0, len(candidates))
	for _, it := range candidates {
		if !s.filter.IsRelevant(it) {
			continue
		}
		isNew, err := s.filter.IsNew(ctx, it)
		if err != nil {
			logging.Warn("lookup failed, skip item this pass", "url", it.URL, "err", err)
			continue
		}
		if isNew {
			out = append(out, it)
		}
	}
	return out
}
