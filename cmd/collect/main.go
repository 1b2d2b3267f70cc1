package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/NewsRelay/internal/app"
	"github.com/LJTian/NewsRelay/internal/config"
	"github.com/LJTian/NewsRelay/internal/logging"
)

// 只执行一轮采集与发布后退出：适合手动触发或交给外部 cron
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("invalid configuration", "err", err)
	}
	logging.Init(os.Stderr, cfg.LogLevel)

	a, err := app.New(cfg)
	if err != nil {
		logging.Fatal("startup failed", "err", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := a.Scheduler.RunOnce(ctx)
	if err != nil {
		logging.Error("pass not run", "err", err)
		return
	}
	logging.Info("pass finished",
		"fetched", rep.Fetched, "eligible", rep.Eligible,
		"published", len(rep.Published), "failed", rep.Failed, "sourceErrors", len(rep.SourceErrors))
}
