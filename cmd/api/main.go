package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"localchat/internal/config"
	"localchat/internal/db"
	apihttp "localchat/internal/http"
	"localchat/internal/llm"
	"localchat/internal/proxy"
	"localchat/internal/rag"
	"localchat/internal/repository"
	"localchat/internal/service"
	"localchat/internal/stream"

	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var (
		userRepo repository.UserRepository
		dbPinger apihttp.Pinger
	)
	switch cfg.DBDriver {
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("sqlite open", zap.Error(err))
		}
		defer conn.Close()
		if err := db.EnsureSQLiteSchema(ctx, conn); err != nil {
			logger.Fatal("sqlite schema", zap.Error(err))
		}
		userRepo = repository.NewSQLiteUserRepository(conn)
		dbPinger = apihttp.PingFunc(conn.PingContext)
	default:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		userRepo = repository.NewPgUserRepository(pool)
		dbPinger = apihttp.PingFunc(func(ctx context.Context) error { return db.Ping(ctx, pool) })
	}

	var (
		loginLimiter service.LoginRateLimiter
		history      service.HistoryStore
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory stores", zap.Error(err))
		} else {
			loginLimiter = service.NewRedisLoginRateLimiter(redisClient, cfg.LoginWindow(), cfg.LoginMaxAttempts)
			history = service.NewRedisHistoryStore(redisClient, cfg.HistoryTTL())
		}
		cancel()
	}
	if loginLimiter == nil {
		loginLimiter = service.NewLoginRateLimiter(cfg.LoginWindow(), cfg.LoginMaxAttempts)
	}
	if history == nil {
		history = service.NewMemoryHistoryStore()
	}

	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}
	jwtSvc := service.NewJWTService(cfg.JWTSecret, cfg.JWTTTL())
	userSvc := service.NewUserService(logger, userRepo, loginLimiter)

	llmClient := llm.NewHTTPClient(llm.Options{
		Provider: cfg.LLMProvider,
		BaseURL:  cfg.LLMBaseURL,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		Timeout:  cfg.LLMTimeout(),
	}, logger)
	ragClient := rag.NewClient(cfg.RAGServiceURL+cfg.RAGProxyRewrite, cfg.RAGProxyTimeout(), logger)
	chatSvc := service.NewChatService(logger, llmClient, ragClient, history, stream.FixedPacing(cfg.StreamPacing())).
		WithContextWindow(service.ContextWindow{MaxMessages: cfg.ChatHistoryWindow, System: cfg.ChatSystemPrompt})

	ragProxy, err := proxy.New(proxy.Options{
		Target:  cfg.RAGServiceURL,
		Prefix:  cfg.RAGProxyPrefix,
		Rewrite: cfg.RAGProxyRewrite,
		Timeout: cfg.RAGProxyTimeout(),
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("rag proxy", zap.Error(err))
	}

	router := apihttp.NewRouter(logger, apihttp.RouterDeps{
		Users:   apihttp.NewUserHandler(logger, userSvc, jwtSvc),
		Chat:    apihttp.NewChatHandler(logger, chatSvc),
		Health:  apihttp.NewHealthHandler(dbPinger, llmClient),
		JWT:     jwtSvc,
		RAG:     ragProxy,
		RAGPath: cfg.RAGProxyPrefix,
		RAGAuth: cfg.RAGProxyAuth,
	})

	handler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Conversation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})(router)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("llm_provider", llmClient.Provider()),
		zap.String("llm_model", llmClient.Model()),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
