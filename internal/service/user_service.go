package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"localchat/internal/domain"
	"localchat/internal/metrics"
	"localchat/internal/repository"
)

const (
	minUsernameLength = 8
	minPasswordLength = 6
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already taken")
	ErrInvalidUsername    = errors.New("username must be at least 8 characters")
	ErrInvalidPassword    = errors.New("password must be at least 6 characters")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrRateLimited        = errors.New("too many login attempts")
)

// UserService coordina registro, login y consulta de perfiles.
type UserService struct {
	logger  *zap.Logger
	users   repository.UserRepository
	limiter LoginRateLimiter
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, limiter LoginRateLimiter) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = NewLoginRateLimiter(10*time.Minute, 5)
	}
	return &UserService{
		logger:  logger,
		users:   users,
		limiter: limiter,
	}
}

type RegisterInput struct {
	Username string
	Password string
	Email    string
}

func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	username := strings.TrimSpace(input.Username)
	password := input.Password
	if utf8.RuneCountInString(username) < minUsernameLength {
		return domain.User{}, ErrInvalidUsername
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return domain.User{}, ErrInvalidPassword
	}

	var email *string
	if raw := strings.TrimSpace(input.Email); raw != "" {
		addr, err := mail.ParseAddress(raw)
		if err != nil || addr.Address != raw {
			return domain.User{}, ErrInvalidEmail
		}
		normalized := strings.ToLower(raw)
		email = &normalized
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// La unicidad la garantiza el índice UNIQUE al insertar.
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", username))
	return user, nil
}

// Login valida credenciales. Usuario inexistente y password incorrecto devuelven el mismo error.
func (s *UserService) Login(ctx context.Context, username, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if !s.limiter.Allow(username) {
		metrics.LoginAttemptsTotal.WithLabelValues("throttled").Inc()
		return domain.User{}, ErrRateLimited
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.rejectLogin(username)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.rejectLogin(username)
		return domain.User{}, ErrInvalidCredentials
	}

	s.limiter.Reset(username)
	metrics.LoginAttemptsTotal.WithLabelValues("accepted").Inc()
	return user, nil
}

// rejectLogin cuenta el fallo contra el límite de la clave.
func (s *UserService) rejectLogin(username string) {
	s.limiter.Fail(username)
	metrics.LoginAttemptsTotal.WithLabelValues("rejected").Inc()
}

func (s *UserService) Profile(ctx context.Context, userID string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}
	user, err := s.users.GetByID(ctx, strings.TrimSpace(userID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}
