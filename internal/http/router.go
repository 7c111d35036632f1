package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"localchat/internal/metrics"
	"localchat/internal/service"
)

// RouterDeps agrupa lo que necesita NewRouter.
type RouterDeps struct {
	Users   *UserHandler
	Chat    *ChatHandler
	Health  *HealthHandler
	JWT     *service.JWTService
	RAG     http.Handler
	RAGPath string
	// RAGAuth exige bearer token en las rutas del proxy.
	RAGAuth bool
}

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(logger *zap.Logger, deps RouterDeps) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging y recovery. El Content-Type JSON se fuerza por grupo
	// porque el proxy y /metrics traen el suyo.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	if deps.Health != nil {
		r.GET("/health", jsonContentTypeMiddleware(), deps.Health.Health)
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	auth := r.Group("/api/auth", jsonContentTypeMiddleware())
	auth.POST("/register", deps.Users.Register)
	auth.POST("/login", deps.Users.Login)
	auth.GET("/profile", JWTAuthMiddleware(deps.JWT), deps.Users.Profile)

	if deps.Chat != nil {
		chat := r.Group("/api/chat", jsonContentTypeMiddleware(), JWTAuthMiddleware(deps.JWT))
		chat.POST("", deps.Chat.PostMessage)
		chat.POST("/:id/cancel", deps.Chat.Cancel)
		chat.GET("/:id/history", deps.Chat.History)
		chat.DELETE("/:id/history", deps.Chat.ClearHistory)
	}

	if deps.RAG != nil {
		prefix := strings.TrimRight(deps.RAGPath, "/")
		if prefix == "" {
			prefix = "/api/rag"
		}
		rag := r.Group(prefix)
		if deps.RAGAuth {
			rag.Use(JWTAuthMiddleware(deps.JWT))
		}
		rag.Any("", gin.WrapH(deps.RAG))
		rag.Any("/*path", gin.WrapH(deps.RAG))
	}

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
