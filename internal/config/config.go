package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	SourceRSS  = "rss"
	SourceHTML = "html"
)

// 默认关键词：教育类新闻
var defaultKeywords = []string{
	"школа", "вуз", "высшее", "образование", "ент", "экзамен",
	"институт", "университет", "ученик", "школьник", "учитель", "педагог", "класс",
}

var defaultRSSSources = []string{
	"https://tengrinews.kz/rss/all.rss",
	"https://www.nur.kz/rss/all.rss",
}

var defaultHTMLSources = []string{
	"https://tengrinews.kz",
	"https://www.nur.kz",
	"https://www.zakon.kz",
	"https://informburo.kz",
	"https://baq.kz",
}

// Source 描述一个新闻源
type Source struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // rss / html
	URL  string `yaml:"url"`
	// Selector 仅 html 源使用，默认 a[href]
	Selector string `yaml:"selector"`
	// MaxItems 单个源每轮最多产出的条数，0 表示不限
	MaxItems int `yaml:"max_items"`
	// Summaries 为 true 时逐条访问文章页抓取首段作为摘要（仅 html 源）
	Summaries bool `yaml:"summaries"`
}

type Config struct {
	BotToken  string
	Channel   string
	LogChatID string

	Interval time.Duration
	CronSpec string

	DBPath      string
	DatabaseDSN string
	RedisAddr   string

	Keywords []string
	Sources  []Source

	MaxPerPass    int
	FetchTimeout  time.Duration
	SendPerMinute int

	AppPort       string
	BasicAuthUser string
	BasicAuthPass string

	LogLevel string
}

// ConfigError 配置缺失或非法，只在启动阶段出现，调用方应直接退出
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// sourcesFile 对应 SOURCES_FILE 指向的 YAML 文件
type sourcesFile struct {
	Keywords []string `yaml:"keywords"`
	Sources  []Source `yaml:"sources"`
}

// Load 读取 .env（若存在）与环境变量，并做启动校验
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigError{Key: ".env", Reason: err.Error()}
	}

	cfg := &Config{
		BotToken:      strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		Channel:       strings.TrimSpace(os.Getenv("CHANNEL")),
		LogChatID:     strings.TrimSpace(os.Getenv("LOG_CHAT_ID")),
		CronSpec:      strings.TrimSpace(os.Getenv("CRON_SPEC")),
		DBPath:        getEnv("DB_PATH", "seen.db"),
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		AppPort:       os.Getenv("APP_PORT"),
		BasicAuthUser: os.Getenv("APP_BASIC_USER"),
		BasicAuthPass: os.Getenv("APP_BASIC_PASS"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.Interval, err = parseInterval("INTERVAL", getEnv("INTERVAL", "1800")); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = parseDuration("FETCH_TIMEOUT", getEnv("FETCH_TIMEOUT", "12s")); err != nil {
		return nil, err
	}
	if cfg.MaxPerPass, err = parsePositiveInt("MAX_PER_PASS", getEnv("MAX_PER_PASS", "5")); err != nil {
		return nil, err
	}
	if cfg.SendPerMinute, err = parsePositiveInt("SEND_PER_MINUTE", getEnv("SEND_PER_MINUTE", "20")); err != nil {
		return nil, err
	}

	cfg.Keywords = splitList(getEnv("KEYWORDS", strings.Join(defaultKeywords, ",")))
	cfg.Sources = append(
		sourcesFromURLs(SourceRSS, splitList(getEnv("RSS_SOURCES", strings.Join(defaultRSSSources, ",")))),
		sourcesFromURLs(SourceHTML, splitList(getEnv("HTML_SOURCES", strings.Join(defaultHTMLSources, ","))))...,
	)

	if path := os.Getenv("SOURCES_FILE"); path != "" {
		if err := cfg.applySourcesFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查必填凭据与源配置
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return &ConfigError{Key: "BOT_TOKEN", Reason: "is required"}
	}
	if c.Channel == "" {
		return &ConfigError{Key: "CHANNEL", Reason: "is required"}
	}
	if len(c.Sources) == 0 {
		return &ConfigError{Key: "sources", Reason: "no RSS or HTML sources configured"}
	}
	for _, s := range c.Sources {
		if s.Type != SourceRSS && s.Type != SourceHTML {
			return &ConfigError{Key: "sources", Reason: fmt.Sprintf("source %q has unknown type %q", s.Name, s.Type)}
		}
		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return &ConfigError{Key: "sources", Reason: fmt.Sprintf("source %q has invalid url %q", s.Name, s.URL)}
		}
	}
	return nil
}

// StorageDSN 返回存储层使用的 DSN：配置了 DATABASE_DSN 则用 PostgreSQL，否则用 SQLite 文件
func (c *Config) StorageDSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	return c.DBPath
}

// Schedule 返回 cron 表达式；未配置 CRON_SPEC 时按 INTERVAL 固定间隔
func (c *Config) Schedule() string {
	if c.CronSpec != "" {
		return c.CronSpec
	}
	return "@every " + c.Interval.String()
}

// applySourcesFile 用 YAML 文件中的关键词与源覆盖环境变量里的列表
func (c *Config) applySourcesFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return &ConfigError{Key: "SOURCES_FILE", Reason: err.Error()}
	}
	var f sourcesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return &ConfigError{Key: "SOURCES_FILE", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	if f.Keywords != nil {
		c.Keywords = normalizeKeywords(f.Keywords)
	}
	if len(f.Sources) > 0 {
		for i := range f.Sources {
			s := &f.Sources[i]
			s.Type = strings.ToLower(strings.TrimSpace(s.Type))
			s.URL = strings.TrimSpace(s.URL)
			if s.Name == "" {
				s.Name = sourceName(s.Type, s.URL)
			}
		}
		c.Sources = f.Sources
	}
	return nil
}

func sourcesFromURLs(kind string, urls []string) []Source {
	out := make([]Source, 0, len(urls))
	for _, u := range urls {
		out = append(out, Source{Name: sourceName(kind, u), Type: kind, URL: u})
	}
	return out
}

// sourceName 形如 rss:tengrinews.kz，便于在日志里区分同一站点的两种抓取方式
func sourceName(kind, raw string) string {
	host := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = strings.TrimPrefix(u.Host, "www.")
	}
	return kind + ":" + host
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func normalizeKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// parseInterval 兼容纯秒数（1800）与 Go duration（30m）两种写法
func parseInterval(key, v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, &ConfigError{Key: key, Reason: "must be positive"}
		}
		return time.Duration(n) * time.Second, nil
	}
	return parseDuration(key, v)
}

func parseDuration(key, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("invalid duration %q", v)}
	}
	if d <= 0 {
		return 0, &ConfigError{Key: key, Reason: "must be positive"}
	}
	return d, nil
}

func parsePositiveInt(key, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("must be a positive integer, got %q", v)}
	}
	return n, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
