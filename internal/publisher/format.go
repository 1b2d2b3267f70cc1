package publisher

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/LJTian/NewsRelay/internal/collector"
)

const (
	telegramMaxRunes = 4096
	titleMaxRunes    = 300
	summaryMaxRunes  = 600
)

// FormatMessage 生成频道消息：加粗标题、可选摘要、链接；所有来自源站的文本都做 HTML 转义
func FormatMessage(item collector.NewsItem) string {
	title := html.EscapeString(truncateRunes(item.Title, titleMaxRunes))
	link := html.EscapeString(item.URL)

	var b strings.Builder
	b.WriteString("📢 <b>")
	b.WriteString(title)
	b.WriteString("</b>\n")
	if summary := strings.TrimSpace(item.Summary); summary != "" {
		b.WriteString(html.EscapeString(truncateRunes(summary, summaryMaxRunes)))
		b.WriteString("\n")
	}
	b.WriteString(link)

	msg := b.String()
	if utf8.RuneCountInString(msg) <= telegramMaxRunes {
		return msg
	}
	// 转义后仍超长时丢弃摘要，再不够就缩短标题
	msg = "📢 <b>" + title + "</b>\n" + link
	if utf8.RuneCountInString(msg) <= telegramMaxRunes {
		return msg
	}
	budget := telegramMaxRunes - utf8.RuneCountInString("📢 <b></b>\n"+link)
	return "📢 <b>" + fitTitle(item.Title, budget) + "</b>\n" + link
}

// fitTitle 返回转义后不超过 budget 个 rune 的标题；链接本身已占满时返回空标题
func fitTitle(title string, budget int) string {
	for n := min(budget-1, titleMaxRunes); n > 0; n-- {
		t := html.EscapeString(truncateRunes(title, n))
		if utf8.RuneCountInString(t) <= budget {
			return t
		}
	}
	return ""
}

// truncateRunes 按 rune 截断并追加省略号，避免截出半个字符
func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return strings.TrimSpace(string(rs[:limit])) + "…"
}
