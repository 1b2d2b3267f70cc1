// Package logging 提供进程级的结构化日志，各组件通过 WithPrefix 取得带前缀的子 logger。
package logging

import (
	"io"
	stdlog "log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Logger 全局 logger，未调用 Init 时输出到 stderr（info 级别）
var Logger = newLogger(os.Stderr, log.InfoLevel)

func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
	})
}

// Init 按级别名重新创建全局 logger，未知级别回退到 info
func Init(w io.Writer, level string) {
	if w == nil {
		w = os.Stderr
	}
	Logger = newLogger(w, ParseLevel(level))
}

// ParseLevel 解析 debug / info / warn / error，大小写不敏感
func ParseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

func Debug(msg string, keyvals ...interface{}) { Logger.Debug(msg, keyvals...) }

func Info(msg string, keyvals ...interface{}) { Logger.Info(msg, keyvals...) }

func Warn(msg string, keyvals ...interface{}) { Logger.Warn(msg, keyvals...) }

func Error(msg string, keyvals ...interface{}) { Logger.Error(msg, keyvals...) }

// Fatal 记录错误并退出进程
func Fatal(msg string, keyvals ...interface{}) { Logger.Fatal(msg, keyvals...) }

// WithPrefix 返回带组件前缀的子 logger
func WithPrefix(prefix string) *log.Logger {
	return Logger.WithPrefix(prefix)
}

// Std 返回标准库 *log.Logger 适配器，供 cron 等只接受 Printf 风格 logger 的库使用
func Std(prefix string) *stdlog.Logger {
	return WithPrefix(prefix).StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel})
}
