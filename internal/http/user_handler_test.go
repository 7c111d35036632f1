package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"localchat/internal/domain"
	"localchat/internal/repository"
	"localchat/internal/service"
)

type mockUserRepo struct {
	mu         sync.Mutex
	usersByID  map[string]domain.User
	usersByKey map[string]string
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		usersByID:  make(map[string]domain.User),
		usersByKey: make(map[string]string),
	}
}

func (m *mockUserRepo) Create(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.usersByKey[user.Username]; ok {
		return repository.ErrUserExists
	}
	m.usersByID[user.ID] = user
	m.usersByKey[user.Username] = user.ID
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.usersByID[id]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	m.mu.Lock()
	id, ok := m.usersByKey[username]
	m.mu.Unlock()
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return m.GetByID(ctx, id)
}

type testServer struct {
	router *gin.Engine
	jwt    *service.JWTService
	users  *service.UserService
}

func newTestServer(t *testing.T, chat *service.ChatService, rag http.Handler) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	jwtSvc := service.NewJWTService("test-secret", 24*time.Hour)
	userSvc := service.NewUserService(logger, newMockUserRepo(), service.NewLoginRateLimiter(time.Minute, 3))

	deps := RouterDeps{
		Users:   NewUserHandler(logger, userSvc, jwtSvc),
		Health:  NewHealthHandler(PingFunc(func(context.Context) error { return nil }), nil),
		JWT:     jwtSvc,
		RAG:     rag,
		RAGPath: "/api/rag",
		RAGAuth: true,
	}
	if chat != nil {
		deps.Chat = NewChatHandler(logger, chat)
	}
	return &testServer{router: NewRouter(logger, deps), jwt: jwtSvc, users: userSvc}
}

func (s *testServer) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/auth/register", map[string]string{"username": username, "password": password}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = s.do(http.MethodPost, "/api/auth/login", map[string]string{"username": username, "password": password}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("decode login: %v", err)
	}
	return resp.Token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestRegisterAndProfileFlow(t *testing.T) {
	s := newTestServer(t, nil, nil)
	token := s.login(t, "alice_local", "secret123")

	rec := s.do(http.MethodGet, "/api/auth/profile", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	user, _ := body["user"].(map[string]any)
	if user["username"] != "alice_local" {
		t.Fatalf("unexpected profile %v", body)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Fatal("password hash must not be serialized")
	}
}

func TestRegister_ValidationAndDuplicate(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(http.MethodPost, "/api/auth/register", map[string]string{"username": "short", "password": "secret123"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short username: expected 400, got %d", rec.Code)
	}
	rec = s.do(http.MethodPost, "/api/auth/register", map[string]string{"username": "longenough", "password": "123"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", rec.Code)
	}
	rec = s.do(http.MethodPost, "/api/auth/register", map[string]string{"username": "longenough", "password": "secret123", "email": "nope"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad email: expected 400, got %d", rec.Code)
	}

	payload := map[string]string{"username": "longenough", "password": "secret123"}
	if rec = s.do(http.MethodPost, "/api/auth/register", payload, ""); rec.Code != http.StatusCreated {
		t.Fatalf("first register: expected 201, got %d", rec.Code)
	}
	if rec = s.do(http.MethodPost, "/api/auth/register", payload, ""); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", rec.Code)
	}
}

func TestLogin_GenericFailureAndThrottle(t *testing.T) {
	s := newTestServer(t, nil, nil)
	_ = s.login(t, "bob_the_user", "secret123")

	wrongPass := s.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "bob_the_user", "password": "nope"}, "")
	unknown := s.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "ghost_user", "password": "nope"}, "")
	if wrongPass.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", wrongPass.Code, unknown.Code)
	}
	if decodeBody(t, wrongPass)["message"] != decodeBody(t, unknown)["message"] {
		t.Fatal("login failures must not reveal which case occurred")
	}

	// tres passwords errados agotan el límite de 3; el login válido previo no cuenta
	_ = s.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "bob_the_user", "password": "nope"}, "")
	_ = s.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "bob_the_user", "password": "nope"}, "")
	rec := s.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "bob_the_user", "password": "secret123"}, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := s.do(http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["database"] != "ok" || body["model_gateway"] != "disabled" {
		t.Fatalf("unexpected health %v", body)
	}

	rec = s.do(http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
}
