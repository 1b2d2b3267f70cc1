// Package app 负责把配置装配成可运行的组件，供 cmd 下的各入口复用。
package app

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/NewsRelay/internal/api"
	"github.com/LJTian/NewsRelay/internal/collector"
	"github.com/LJTian/NewsRelay/internal/config"
	"github.com/LJTian/NewsRelay/internal/logging"
	"github.com/LJTian/NewsRelay/internal/processor"
	"github.com/LJTian/NewsRelay/internal/publisher"
	"github.com/LJTian/NewsRelay/internal/scheduler"
	"github.com/LJTian/NewsRelay/internal/storage"
)

type App struct {
	Config    *config.Config
	Store     *storage.Store
	Scheduler *scheduler.Scheduler
}

// New 打开存储并连接 Telegram；任何一步失败都返回错误，调用方应直接退出
func New(cfg *config.Config) (*App, error) {
	store, err := storage.Open(cfg.StorageDSN(), cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	ch, err := publisher.NewTelegramChannel(cfg.BotToken)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	logging.Info("telegram bot authorized", "bot", ch.BotName())

	a, err := Assemble(cfg, store, ch)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// Assemble 用已打开的存储和通道装配调度器
func Assemble(cfg *config.Config, store *storage.Store, ch publisher.Channel) (*App, error) {
	fetchers, err := BuildFetchers(cfg)
	if err != nil {
		return nil, err
	}

	s, err := scheduler.New(
		scheduler.Config{Spec: cfg.Schedule(), MaxPerPass: cfg.MaxPerPass},
		fetchers,
		processor.NewSimpleProcessor(),
		processor.NewFilter(cfg.Keywords, store),
		publisher.New(ch, cfg.Channel, store, cfg.SendPerMinute),
		publisher.NewNotifier(ch, cfg.LogChatID),
	)
	if err != nil {
		return nil, fmt.Errorf("init scheduler: %w", err)
	}
	return &App{Config: cfg, Store: store, Scheduler: s}, nil
}

// BuildFetchers 按配置顺序创建采集器
func BuildFetchers(cfg *config.Config) ([]collector.Fetcher, error) {
	fetchers := make([]collector.Fetcher, 0, len(cfg.Sources))
	for _, src := range cfg.Sources {
		switch src.Type {
		case config.SourceRSS:
			fetchers = append(fetchers, collector.NewRSSFetcher(src.Name, src.URL, src.MaxItems, cfg.FetchTimeout))
		case config.SourceHTML:
			fetchers = append(fetchers, collector.NewHTMLFetcher(src.Name, src.URL, src.Selector, src.MaxItems, src.Summaries, cfg.FetchTimeout))
		default:
			return nil, &config.ConfigError{Key: "sources", Reason: fmt.Sprintf("unknown type %q for %s", src.Type, src.Name)}
		}
	}
	return fetchers, nil
}

// Router 运维 API；未配置 APP_PORT 时调用方不会启动它
func (a *App) Router() *gin.Engine {
	return api.NewRouter(api.NewServer(a.Store, a.Scheduler), a.Config.BasicAuthUser, a.Config.BasicAuthPass)
}

func (a *App) Close() error {
	return a.Store.Close()
}
