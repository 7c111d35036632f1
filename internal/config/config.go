package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DBDriver    string `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	JWTSecret   string `env:"JWT_SECRET"`
	JWTTTLHours int    `env:"JWT_TTL_HOURS" envDefault:"24"`

	LLMProvider       string `env:"LLM_PROVIDER" envDefault:"ollama"`
	LLMBaseURL        string `env:"LLM_BASE_URL" envDefault:"http://127.0.0.1:11434"`
	LLMAPIKey         string `env:"LLM_API_KEY"`
	LLMModel          string `env:"LLM_MODEL" envDefault:"qwen2.5:7b"`
	LLMTimeoutSeconds int    `env:"LLM_TIMEOUT_SECONDS" envDefault:"120"`

	RAGServiceURL          string `env:"RAG_SERVICE_URL" envDefault:"http://127.0.0.1:5001"`
	RAGProxyPrefix         string `env:"RAG_PROXY_PREFIX" envDefault:"/api/rag"`
	RAGProxyRewrite        string `env:"RAG_PROXY_REWRITE" envDefault:"/api"`
	RAGProxyTimeoutSeconds int    `env:"RAG_PROXY_TIMEOUT_SECONDS" envDefault:"60"`
	RAGProxyAuth           bool   `env:"RAG_PROXY_AUTH" envDefault:"true"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	HistoryTTLHours    int    `env:"HISTORY_TTL_HOURS" envDefault:"24"`
	ChatHistoryWindow  int    `env:"CHAT_HISTORY_WINDOW" envDefault:"20"`
	ChatSystemPrompt   string `env:"CHAT_SYSTEM_PROMPT"`
	LoginMaxAttempts   int    `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginWindowMinutes int    `env:"LOGIN_WINDOW_MINUTES" envDefault:"10"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:80"`
	StreamPacingMs     int      `env:"STREAM_PACING_MS" envDefault:"0"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	return &cfg, nil
}

func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTTTLHours) * time.Hour
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSeconds) * time.Second
}

func (c *Config) RAGProxyTimeout() time.Duration {
	return time.Duration(c.RAGProxyTimeoutSeconds) * time.Second
}

func (c *Config) HistoryTTL() time.Duration {
	return time.Duration(c.HistoryTTLHours) * time.Hour
}

func (c *Config) LoginWindow() time.Duration {
	return time.Duration(c.LoginWindowMinutes) * time.Minute
}

func (c *Config) StreamPacing() time.Duration {
	return time.Duration(c.StreamPacingMs) * time.Millisecond
}
