package publisher

import (
	"context"

	"github.com/LJTian/NewsRelay/internal/logging"
)

// Notifier 运维日志通道：尽力发送，失败只记日志，绝不影响主流程
type Notifier struct {
	channel Channel
	chatID  string
}

func NewNotifier(ch Channel, chatID string) *Notifier {
	return &Notifier{channel: ch, chatID: chatID}
}

func (n *Notifier) Notify(ctx context.Context, text string) {
	log := logging.WithPrefix("notify")
	if n == nil || n.channel == nil || n.chatID == "" {
		log.Info(text)
		return
	}
	if err := n.channel.Send(ctx, n.chatID, "📝 "+text, ModePlain); err != nil {
		log.Error("send log message failed", "err", err, "text", text)
	}
}
