package publisher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseMode 消息格式
type ParseMode string

const (
	ModePlain ParseMode = ""
	ModeHTML  ParseMode = tgbotapi.ModeHTML
)

// Channel 消息通道（Telegram 等）的最小契约
type Channel interface {
	Send(ctx context.Context, chatID, text string, mode ParseMode) error
}

// SendError 一次发送失败（限流、网络、内容被拒），条目留待下一轮重试
type SendError struct {
	Reason     string
	RetryAfter time.Duration // >0 表示通道要求退避
	Err        error
}

func (e *SendError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("send: %s (retry after %s)", e.Reason, e.RetryAfter)
	}
	return "send: " + e.Reason
}

func (e *SendError) Unwrap() error { return e.Err }

// TelegramChannel 基于 Bot API 的 Channel 实现
type TelegramChannel struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramChannel 会调用 getMe 校验 token
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return &TelegramChannel{bot: bot}, nil
}

// BotName 返回机器人用户名，便于启动日志
func (t *TelegramChannel) BotName() string {
	return t.bot.Self.UserName
}

func (t *TelegramChannel) Send(ctx context.Context, chatID, text string, mode ParseMode) error {
	if err := ctx.Err(); err != nil {
		return &SendError{Reason: "cancelled", Err: err}
	}
	msg := newMessage(chatID, text)
	msg.ParseMode = string(mode)
	if _, err := t.bot.Send(msg); err != nil {
		return classifyTelegramError(err)
	}
	return nil
}

// newMessage 数字 ID 走 chat_id，其余（如 @channel）按频道用户名发送
func newMessage(chatID, text string) tgbotapi.MessageConfig {
	chatID = strings.TrimSpace(chatID)
	if id, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		return tgbotapi.NewMessage(id, text)
	}
	return tgbotapi.NewMessageToChannel(chatID, text)
}

func classifyTelegramError(err error) *SendError {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &SendError{
			Reason:     fmt.Sprintf("telegram api %d: %s", apiErr.Code, apiErr.Message),
			RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second,
			Err:        err,
		}
	}
	return &SendError{Reason: err.Error(), Err: err}
}
