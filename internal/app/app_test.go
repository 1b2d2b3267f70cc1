package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/NewsRelay/internal/collector"
	"github.com/LJTian/NewsRelay/internal/config"
	"github.com/LJTian/NewsRelay/internal/publisher"
	"github.com/LJTian/NewsRelay/internal/storage"
)

type memChannel struct {
	mu   sync.Mutex
	sent map[string][]string
}

func (m *memChannel) Send(_ context.Context, chatID, text string, _ publisher.ParseMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[string][]string{}
	}
	m.sent[chatID] = append(m.sent[chatID], text)
	return nil
}

func TestBuildFetchersKeepsOrder(t *testing.T) {
	cfg := &config.Config{
		FetchTimeout: time.Second,
		Sources: []config.Source{
			{Name: "rss:a", Type: config.SourceRSS, URL: "https://a/rss"},
			{Name: "html:b", Type: config.SourceHTML, URL: "https://b"},
		},
	}
	fetchers, err := BuildFetchers(cfg)
	if err != nil {
		t.Fatalf("BuildFetchers: %v", err)
	}
	if len(fetchers) != 2 {
		t.Fatalf("got %d fetchers", len(fetchers))
	}
	if _, ok := fetchers[0].(*collector.RSSFetcher); !ok || fetchers[0].Name() != "rss:a" {
		t.Fatalf("first fetcher = %T %s", fetchers[0], fetchers[0].Name())
	}
	if _, ok := fetchers[1].(*collector.HTMLFetcher); !ok || fetchers[1].Name() != "html:b" {
		t.Fatalf("second fetcher = %T %s", fetchers[1], fetchers[1].Name())
	}
}

func TestBuildFetchersRejectsUnknownType(t *testing.T) {
	cfg := &config.Config{Sources: []config.Source{{Name: "x", Type: "atom", URL: "https://x"}}}
	var cerr *config.ConfigError
	if _, err := BuildFetchers(cfg); !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

const feed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>Exam dates announced</title><link>https://feed.test/exam</link></item>
<item><title>Football results</title><link>https://feed.test/football</link></item>
</channel></rss>`

func TestAssembleRunsPassEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	st, err := storage.Open(filepath.Join(t.TempDir(), "seen.db"), "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	cfg := &config.Config{
		Channel:      "@news",
		LogChatID:    "-1001",
		Interval:     time.Hour,
		Keywords:     []string{"exam"},
		Sources:      []config.Source{{Name: "rss:test", Type: config.SourceRSS, URL: srv.URL}},
		MaxPerPass:   5,
		FetchTimeout: 5 * time.Second,
	}
	ch := &memChannel{}
	a, err := Assemble(cfg, st, ch)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	rep, err := a.Scheduler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(rep.Published) != 1 || rep.Published[0] != "https://feed.test/exam" {
		t.Fatalf("published = %v", rep.Published)
	}
	if len(ch.sent["@news"]) != 1 || !strings.Contains(ch.sent["@news"][0], "Exam dates announced") {
		t.Fatalf("channel posts = %v", ch.sent["@news"])
	}

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	a.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"publishedTotal":1`) {
		t.Fatalf("status response = %d %s", w.Code, w.Body.String())
	}
}
