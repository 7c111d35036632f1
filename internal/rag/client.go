package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"localchat/internal/domain"
)

// MaxUploadSize coincide con el límite del servicio de recuperación.
const MaxUploadSize = 16 << 20

var allowedExtensions = map[string]struct{}{
	"txt": {}, "pdf": {}, "docx": {}, "doc": {}, "md": {},
	"html": {}, "xlsx": {}, "xls": {}, "csv": {},
}

var (
	ErrUnavailable         = errors.New("retrieval service unavailable")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
	ErrEmptyQuestion       = errors.New("question is required")
)

// APIError es una respuesta {success:false, error} del servicio.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("retrieval service error: status=%d message=%s", e.Status, e.Message)
}

type Health struct {
	OllamaStatus   string `json:"ollama_status"`
	ModelName      string `json:"model_name"`
	DocumentCount  int    `json:"document_count"`
	EmbeddingModel string `json:"embedding_model"`
}

type Answer struct {
	Answer       string          `json:"answer"`
	Sources      []domain.Source `json:"sources"`
	Question     string          `json:"question"`
	RebuiltIndex bool            `json:"rebuilt_index,omitempty"`
}

type DocumentList struct {
	Documents    []domain.Document `json:"documents"`
	TotalCount   int               `json:"total_count"`
	IndexedCount int               `json:"indexed_count"`
}

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client habla con el servicio de recuperación por HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	token   string
}

// NewClient recibe la raíz de la API (p. ej. http://127.0.0.1:5001/api o la ruta del proxy).
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// WithToken devuelve una copia que envía el bearer en cada request (uso vía proxy).
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

func (c *Client) Query(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	var out Answer
	err := c.doJSON(ctx, http.MethodPost, "/query", map[string]string{"question": question}, &out)
	return out, err
}

// ValidateUpload aplica las mismas reglas que el servicio antes de enviar el archivo.
func ValidateUpload(filename string, size int64) error {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if _, ok := allowedExtensions[ext]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedFileType, filepath.Base(filename))
	}
	if size > MaxUploadSize {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size)
	}
	return nil
}

// Upload envía un documento como multipart en el campo "file".
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxUploadSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if err := ValidateUpload(filename, int64(len(data))); err != nil {
		return "", err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	var out struct {
		Filename string `json:"filename"`
	}
	if err := c.do(ctx, http.MethodPost, "/upload", &body, mw.FormDataContentType(), &out); err != nil {
		return "", err
	}
	return out.Filename, nil
}

func (c *Client) ListDocuments(ctx context.Context) (DocumentList, error) {
	var out DocumentList
	err := c.doJSON(ctx, http.MethodGet, "/documents", nil, &out)
	return out, err
}

func (c *Client) DeleteDocument(ctx context.Context, filename string) error {
	return c.doJSON(ctx, http.MethodDelete, "/documents/"+url.PathEscape(filename), nil, nil)
}

func (c *Client) RebuildIndex(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/index/rebuild", nil, nil)
}

func (c *Client) ClearIndex(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/index/clear", nil, nil)
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var out struct {
		Models []string `json:"models"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/models", nil, &out)
	return out.Models, err
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("retrieval service request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if resp.StatusCode >= 400 {
				return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
			}
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	if resp.StatusCode >= 400 || (env.Success != nil && !*env.Success) {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}
