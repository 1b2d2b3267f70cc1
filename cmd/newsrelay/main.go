package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/NewsRelay/internal/app"
	"github.com/LJTian/NewsRelay/internal/config"
	"github.com/LJTian/NewsRelay/internal/logging"
)

const shutdownTimeout = 30 * time.Second

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

	a.Scheduler.Start()
	logging.Info("relay started",
		"schedule", cfg.Schedule(), "sources", len(cfg.Sources), "maxPerPass", cfg.MaxPerPass)

	// 配置了 APP_PORT 才启动运维 API
	var srv *http.Server
	if cfg.AppPort != "" {
		gin.SetMode(gin.ReleaseMode)
		srv = &http.Server{Addr: ":" + cfg.AppPort, Handler: a.Router()}
		go func() {
			logging.Info("starting api server", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("api server exit", "err", err)
				stop()
			}
		}()
	}

	<-ctx.Done()
	logging.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("api server shutdown", "err", err)
		}
	}
	// 等待当前一轮发布完成，避免“已发送未记录”
	a.Scheduler.Stop(shutdownCtx)
}
