package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"learnhub/internal/infra/config"
	"learnhub/internal/infra/obs"
)

type ConversationHTTP interface {
	Create(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	SearchUsers(c *gin.Context)
}

type MessageHTTP interface {
	Send(c *gin.Context)
	Fetch(c *gin.Context)
	MarkRead(c *gin.Context)
	Delete(c *gin.Context)
	React(c *gin.Context)
	Search(c *gin.Context)
}

type Handlers struct {
	Conversations  ConversationHTTP
	Messages       MessageHTTP
	AuthMiddleware gin.HandlerFunc
	SendLimiter    gin.HandlerFunc
	Metrics        *obs.Metrics
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(cfg, obsMW, health, h),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func NewRouter(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.MaxMultipartMemory = 8 << 20
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	if h.Metrics != nil {
		router.Use(h.Metrics.HTTP())
	}
	router.Use(obsMW.LoggerMiddleware())
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", idempotencyHeader, obs.RequestIDHeader},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	if h.AuthMiddleware != nil {
		api.Use(h.AuthMiddleware)
	}
	if h.Conversations != nil {
		conv := api.Group("/conversations")
		conv.POST("", h.Conversations.Create)
		conv.GET("", h.Conversations.List)
		conv.GET("/search-users", h.Conversations.SearchUsers)
		conv.GET("/:id", h.Conversations.Get)
		conv.PUT("/:id", h.Conversations.Update)
		conv.DELETE("/:id", h.Conversations.Delete)
	}
	if h.Messages != nil {
		msgs := api.Group("/messages")
		send := []gin.HandlerFunc{}
		if h.SendLimiter != nil {
			send = append(send, h.SendLimiter)
		}
		msgs.POST("", append(send, h.Messages.Send)...)
		msgs.GET("/search", h.Messages.Search)
		msgs.GET("/conversation/:conversationId", h.Messages.Fetch)
		msgs.PUT("/:id/read", h.Messages.MarkRead)
		msgs.POST("/:id/reactions", h.Messages.React)
		msgs.DELETE("/:id", h.Messages.Delete)
	}
	return router
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
