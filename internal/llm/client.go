package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"localchat/internal/stream"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

var ErrGatewayUnavailable = errors.New("model gateway unavailable")

// StatusError representa una respuesta HTTP >= 400 del gateway.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm http error: status=%d", e.Code)
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply es una respuesta completa (stream:false).
type Reply struct {
	Content  string
	Thinking string
}

// LLMClient define la interfaz para conversar con un LLM local o remoto.
type LLMClient interface {
	Complete(ctx context.Context, messages []Message) (Reply, error)
	Stream(ctx context.Context, messages []Message) (io.ReadCloser, error)
	Decoder() stream.Decoder
	Ping(ctx context.Context) error
}

// HTTPClient implementa LLMClient contra Ollama (/api/chat) o una API compatible con OpenAI.
type HTTPClient struct {
	provider string
	baseURL  string
	apiKey   string
	model    string
	client   *http.Client
	// streamClient no tiene timeout: el stream dura hasta done o cancelación.
	streamClient *http.Client
	logger       *zap.Logger
}

type Options struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// NewHTTPClient construye un cliente HTTP apuntando al endpoint de chat del proveedor.
func NewHTTPClient(opts Options, logger *zap.Logger) *HTTPClient {
	provider := strings.ToLower(strings.TrimSpace(opts.Provider))
	if provider != ProviderOpenAI {
		provider = ProviderOllama
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		if provider == ProviderOpenAI {
			baseURL = "https://api.openai.com/v1"
		} else {
			baseURL = "http://127.0.0.1:11434"
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		provider:     provider,
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       opts.APIKey,
		model:        opts.Model,
		client:       &http.Client{Timeout: opts.Timeout},
		streamClient: &http.Client{},
		logger:       logger,
	}
}

func (c *HTTPClient) Provider() string {
	return c.provider
}

func (c *HTTPClient) Model() string {
	return c.model
}

func (c *HTTPClient) Decoder() stream.Decoder {
	return stream.DecoderFor(c.provider)
}

func (c *HTTPClient) Complete(ctx context.Context, messages []Message) (Reply, error) {
	resp, err := c.do(ctx, c.client, messages, false)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("read response: %w", err)
	}

	if c.provider == ProviderOpenAI {
		var cr openAIResponse
		if err := json.Unmarshal(respBody, &cr); err != nil {
			return Reply{}, fmt.Errorf("unmarshal response: %w", err)
		}
		if cr.Error != nil {
			return Reply{}, fmt.Errorf("llm api error: %s", cr.Error.Message)
		}
		if len(cr.Choices) == 0 {
			return Reply{}, fmt.Errorf("llm empty response")
		}
		msg := cr.Choices[0].Message
		return Reply{Content: msg.Content, Thinking: msg.ReasoningContent}, nil
	}

	var or ollamaResponse
	if err := json.Unmarshal(respBody, &or); err != nil {
		return Reply{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if or.Error != "" {
		return Reply{}, fmt.Errorf("llm api error: %s", or.Error)
	}
	return Reply{Content: or.Message.Content, Thinking: or.Message.Thinking}, nil
}

// Stream abre la respuesta en streaming; el llamador debe cerrar el body.
func (c *HTTPClient) Stream(ctx context.Context, messages []Message) (io.ReadCloser, error) {
	resp, err := c.do(ctx, c.streamClient, messages, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Ping verifica que el gateway responda.
func (c *HTTPClient) Ping(ctx context.Context) error {
	url := c.baseURL + "/api/tags"
	if c.provider == ProviderOpenAI {
		url = c.baseURL + "/models"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, hc *http.Client, messages []Message, streaming bool) (*http.Response, error) {
	bodyBytes, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   streaming,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Warn("llm error status", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func (c *HTTPClient) endpoint() string {
	if c.provider == ProviderOpenAI {
		return c.baseURL + "/chat/completions"
	}
	return c.baseURL + "/api/chat"
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role             string `json:"role"`
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type ollamaResponse struct {
	Message struct {
		Role     string `json:"role"`
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}
