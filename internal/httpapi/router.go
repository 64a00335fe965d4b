package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chatform/internal/common"
	"github.com/suPer8Hu/chatform/internal/httpapi/handlers"
	"github.com/suPer8Hu/chatform/internal/httpapi/middleware"
)

type RouterConfig struct {
	JWTSecret string
	Limiter   *middleware.RateLimiter // optional
	Gatherer  prometheus.Gatherer     // optional, serves /metrics
	Logger    *zap.Logger
}

func NewRouter(h *handlers.Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "NotFound", "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	r.GET("/ping", h.Ping)
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	// JWT required
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	if cfg.Limiter != nil {
		authGroup.Use(cfg.Limiter.Middleware())
	}

	authGroup.POST("/messages", h.SubmitMessage)
	authGroup.POST("/messages/async", h.SubmitMessageAsync)
	authGroup.GET("/messages", h.ListMessages)
	authGroup.GET("/messages/:id", h.GetMessage)

	authGroup.POST("/flows/summarize", h.Summarize)
	authGroup.POST("/flows/suggest-edits", h.SuggestEdits)
	return r
}
