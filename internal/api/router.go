package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/NewsRelay/internal/logging"
	"github.com/LJTian/NewsRelay/internal/scheduler"
	"github.com/LJTian/NewsRelay/internal/storage"
)

// Runner 由 scheduler.Scheduler 实现
type Runner interface {
	RunOnce(ctx context.Context) (scheduler.PassReport, error)
	LastReport() (scheduler.PassReport, bool)
}

type Server struct {
	store  *storage.Store
	runner Runner
}

func NewServer(store *storage.Store, runner Runner) *Server {
	return &Server{store: store, runner: runner}
}

// NewRouter 创建 gin 引擎；user/pass 均非空时启用 Basic Auth
func NewRouter(s *Server, user, pass string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if user != "" && pass != "" {
		r.Use(BasicAuth(user, pass))
	}
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", s.status)
		v1.GET("/published", s.listPublished)
		v1.POST("/run", s.run)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	total, err := s.store.CountPublished(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	data := gin.H{"publishedTotal": total, "lastPass": nil}
	if rep, ok := s.runner.LastReport(); ok {
		data["lastPass"] = rep
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func (s *Server) listPublished(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	items, err := s.store.ListPublished(c.Request.Context(), limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}

// run 手动触发一轮；请求断开不会中断正在进行的发布
func (s *Server) run(c *gin.Context) {
	rep, err := s.runner.RunOnce(context.WithoutCancel(c.Request.Context()))
	if errors.Is(err, scheduler.ErrPassRunning) {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "pass_running",
			"message": "a pass is already running",
		})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    rep,
	})
}

func internalError(c *gin.Context, err error) {
	logging.WithPrefix("api").Error("request failed", "path", c.FullPath(), "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "internal_error",
		"message": "internal server error",
	})
}

// BasicAuth 为所有接口加一层 Basic Auth，/health 免认证便于探活
func BasicAuth(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
