package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/LJTian/NewsRelay/internal/logging"
)

const (
	publishedCacheTTL = 24 * time.Hour
	redisOpTimeout    = 2 * time.Second
)

// PublishedNews 已发布到频道的 URL，每个 URL 至多一行，写入后不再修改
type PublishedNews struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	URL         string            `gorm:"type:text;uniqueIndex;not null" json:"url"`
	PublishedAt time.Time         `gorm:"index" json:"publishedAt"`
	Extra       datatypes.JSONMap `json:"extra"` // title / source，仅供运维查看
}

// Record 一次发布的记录
type Record struct {
	URL         string
	Title       string
	Source      string
	PublishedAt time.Time
}

// Store 进程内唯一的存储句柄：启动时 Open，退出时 Close
type Store struct {
	DB    *gorm.DB
	Redis *redis.Client // 可为 nil
}

// IsPostgresDSN 判断 dsn 是否指向 PostgreSQL，否则按 SQLite 文件路径处理
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// Open 打开数据库并迁移表结构；redisAddr 为空时不启用缓存
func Open(dsn, redisAddr string) (*Store, error) {
	gormCfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	if IsPostgresDSN(dsn) {
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	} else {
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db dir: %w", err)
			}
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
		if err == nil {
			err = configureSQLite(db)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&PublishedNews{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Store{DB: db}
	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logging.Warn("redis ping failed, lookups go to the database", "addr", redisAddr, "err", err)
		}
		s.Redis = rdb
	}
	return s, nil
}

// configureSQLite 单连接写入，避免 SQLITE_BUSY；文件库开启 WAL
func configureSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return err
	}
	return db.Exec("PRAGMA journal_mode=WAL").Error
}

// Close 释放数据库连接池与 Redis 客户端
func (s *Store) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if sqlDB, err := s.DB.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	} else {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// IsPublished 纯查询，无副作用
func (s *Store) IsPublished(ctx context.Context, url string) (bool, error) {
	if s.cacheHit(ctx, url) {
		return true, nil
	}

	var n int64
	if err := s.DB.WithContext(ctx).Model(&PublishedNews{}).Where("url = ?", url).Count(&n).Error; err != nil {
		return false, fmt.Errorf("lookup %s: %w", url, err)
	}
	if n > 0 {
		s.cacheSet(ctx, url)
		return true, nil
	}
	return false, nil
}

// MarkPublished 原子地“不存在才插入”，返回是否新建了记录。
// 唯一约束由数据库保证，重复插入不是错误：记 warn 日志并返回 false。
func (s *Store) MarkPublished(ctx context.Context, rec Record) (bool, error) {
	if rec.PublishedAt.IsZero() {
		rec.PublishedAt = time.Now()
	}
	row := &PublishedNews{
		URL:         rec.URL,
		PublishedAt: rec.PublishedAt.UTC(),
		Extra: datatypes.JSONMap{
			"title":  strings.ToValidUTF8(rec.Title, "�"),
			"source": rec.Source,
		},
	}

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			logging.Warn("url already exists in store", "url", rec.URL)
			return false, nil
		}
		return false, fmt.Errorf("mark published %s: %w", rec.URL, res.Error)
	}

	s.cacheSet(ctx, rec.URL)
	if res.RowsAffected == 0 {
		logging.Warn("url already exists in store", "url", rec.URL)
		return false, nil
	}
	logging.Info("marked as published", "url", rec.URL)
	return true, nil
}

const (
	defaultListLimit = 20
	maxListLimit     = 1000
)

// ListPublished 按发布时间倒序返回最近的记录；limit 超过上限时按上限返回
func (s *Store) ListPublished(ctx context.Context, limit int) ([]PublishedNews, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	var list []PublishedNews
	err := s.DB.WithContext(ctx).Order("published_at DESC").Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}

// CountPublished 返回已发布记录总数
func (s *Store) CountPublished(ctx context.Context) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&PublishedNews{}).Count(&n).Error
	return n, err
}

// 只缓存“已发布”这一结论：发布过的 URL 永远不会变回未发布
func (s *Store) cacheHit(ctx context.Context, url string) bool {
	if s.Redis == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	n, err := s.Redis.Exists(ctx, cacheKey(url)).Result()
	if err != nil {
		logging.Debug("redis lookup failed", "url", url, "err", err)
		return false
	}
	return n > 0
}

func (s *Store) cacheSet(ctx context.Context, url string) {
	if s.Redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := s.Redis.Set(ctx, cacheKey(url), 1, publishedCacheTTL).Err(); err != nil {
		logging.Debug("redis set failed", "url", url, "err", err)
	}
}

func cacheKey(url string) string {
	return "published:" + hashURL(url)
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}
