package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"localchat/internal/domain"
	"localchat/internal/llm"
	"localchat/internal/metrics"
	"localchat/internal/rag"
	"localchat/internal/stream"
)

const (
	ModeChat = "chat"
	ModeRAG  = "rag"

	outcomeCompleted   = "completed"
	outcomeInterrupted = "interrupted"
	outcomeFailed      = "failed"

	// ApologyMessage es lo que ve el usuario cuando el turno no pudo completarse.
	ApologyMessage = "Sorry, I could not generate an answer right now. Please try again."
)

var (
	ErrTurnInProgress     = errors.New("a turn is already in progress for this conversation")
	ErrEmptyMessage       = errors.New("message is required")
	ErrInvalidMode        = errors.New("invalid chat mode")
	ErrTurnFailed         = errors.New("chat turn failed")
	ErrRetrievalDisabled  = errors.New("retrieval service not configured")
	ErrChatNotConfigured  = errors.New("chat service not configured")
	ErrConversationNeeded = errors.New("conversation id is required")
)

// Retriever es la parte del cliente RAG que necesita un turno.
type Retriever interface {
	Query(ctx context.Context, question string) (rag.Answer, error)
}

type TurnInput struct {
	ConversationID string
	UserID         string
	Content        string
	Mode           string
	Stream         bool
}

// TurnResult es el estado final entregado por el goroutine dueño del turno.
type TurnResult struct {
	ConversationID string
	Message        domain.ChatMessage
	Lines          int
	Skipped        int
}

// ChatService orquesta un turno: historial, llamada al modelo o al RAG y cierre.
type ChatService struct {
	logger    *zap.Logger
	llm       llm.LLMClient
	retriever Retriever
	history   HistoryStore
	turns     *TurnRegistry
	pacer     stream.Pacer
	window    ContextWindow
	now       func() time.Time
}

func NewChatService(logger *zap.Logger, client llm.LLMClient, retriever Retriever, history HistoryStore, pacer stream.Pacer) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if history == nil {
		history = NewMemoryHistoryStore()
	}
	if pacer == nil {
		pacer = stream.NoPacing()
	}
	return &ChatService{
		logger:    logger,
		llm:       client,
		retriever: retriever,
		history:   history,
		turns:     NewTurnRegistry(),
		pacer:     pacer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithContextWindow ajusta cuánto historial se envía al modelo.
func (s *ChatService) WithContextWindow(w ContextWindow) *ChatService {
	s.window = w
	return s
}

// StartTurn ejecuta un turno completo en el goroutine del llamador. La
// cancelación (Cancel o ctx) no es un error: el parcial queda como interrumpido.
func (s *ChatService) StartTurn(ctx context.Context, in TurnInput, onDelta func(stream.Delta)) (TurnResult, error) {
	if s == nil || s.llm == nil {
		return TurnResult{}, ErrChatNotConfigured
	}
	in.Content = strings.TrimSpace(in.Content)
	if in.Content == "" {
		return TurnResult{}, ErrEmptyMessage
	}
	in.Mode = strings.ToLower(strings.TrimSpace(in.Mode))
	if in.Mode == "" {
		in.Mode = ModeChat
	}
	if in.Mode != ModeChat && in.Mode != ModeRAG {
		return TurnResult{}, ErrInvalidMode
	}
	in.ConversationID = strings.TrimSpace(in.ConversationID)
	if in.ConversationID == "" {
		in.ConversationID = uuid.NewString()
	}

	key := HistoryKey(in.UserID, in.ConversationID)
	turnCtx, release, err := s.turns.Begin(ctx, key)
	if err != nil {
		return TurnResult{}, err
	}
	defer release()

	started := time.Now()
	// El historial se escribe aunque el turno se haya cancelado.
	storeCtx := context.WithoutCancel(ctx)

	prior, err := s.history.List(storeCtx, key)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load history: %w", err)
	}
	userMsg := domain.ChatMessage{Role: domain.RoleUser, Content: in.Content, Timestamp: s.now()}
	if err := s.history.Append(storeCtx, key, userMsg); err != nil {
		return TurnResult{}, fmt.Errorf("append user message: %w", err)
	}

	var (
		result TurnResult
		cause  error
	)
	result.ConversationID = in.ConversationID

	switch {
	case in.Mode == ModeRAG:
		result.Message, cause = s.ragTurn(turnCtx, in.Content)
	case in.Stream:
		var res stream.Result
		res, cause = s.streamTurn(turnCtx, s.window.Build(prior, userMsg), onDelta)
		result.Message = res.Message(s.now())
		result.Lines = res.Lines
		result.Skipped = res.Skipped
	default:
		result.Message, cause = s.completeTurn(turnCtx, s.window.Build(prior, userMsg))
	}

	outcome := outcomeCompleted
	switch {
	case cause != nil:
		outcome = outcomeFailed
		s.logger.Warn("chat turn failed",
			zap.String("conversation_id", in.ConversationID),
			zap.String("mode", in.Mode),
			zap.Error(cause),
		)
		result.Message = domain.ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   ApologyMessage,
			Timestamp: s.now(),
			Failed:    true,
		}
	case result.Message.Interrupted:
		outcome = outcomeInterrupted
	}

	if err := s.history.Append(storeCtx, key, result.Message); err != nil {
		s.logger.Error("append assistant message", zap.String("conversation_id", in.ConversationID), zap.Error(err))
	}

	metrics.ChatTurnsTotal.WithLabelValues(in.Mode, outcome).Inc()
	metrics.TurnDuration.WithLabelValues(in.Mode).Observe(time.Since(started).Seconds())

	if cause != nil {
		return result, fmt.Errorf("%w: %w", ErrTurnFailed, cause)
	}
	return result, nil
}

func (s *ChatService) streamTurn(ctx context.Context, prompt []llm.Message, onDelta func(stream.Delta)) (stream.Result, error) {
	body, err := s.llm.Stream(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return stream.Result{Interrupted: true}, nil
		}
		return stream.Result{}, err
	}
	defer body.Close()

	consumer := stream.NewConsumer(s.llm.Decoder(),
		stream.WithPacer(s.pacer),
		stream.WithLogger(s.logger),
		stream.WithOnDelta(onDelta),
	)
	return consumer.Consume(ctx, body)
}

func (s *ChatService) completeTurn(ctx context.Context, prompt []llm.Message) (domain.ChatMessage, error) {
	reply, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ChatMessage{Role: domain.RoleAssistant, Timestamp: s.now(), Interrupted: true}, nil
		}
		return domain.ChatMessage{}, err
	}
	thinking, content := reply.Thinking, reply.Content
	if thinking == "" {
		thinking, content = splitThinking(content)
	}
	return domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   content,
		Thinking:  thinking,
		Timestamp: s.now(),
	}, nil
}

func (s *ChatService) ragTurn(ctx context.Context, question string) (domain.ChatMessage, error) {
	if s.retriever == nil {
		return domain.ChatMessage{}, ErrRetrievalDisabled
	}
	answer, err := s.retriever.Query(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return domain.ChatMessage{Role: domain.RoleAssistant, Timestamp: s.now(), Interrupted: true}, nil
		}
		return domain.ChatMessage{}, err
	}
	return domain.ChatMessage{
		Role:      domain.RoleAssistant,
		Content:   answer.Answer,
		Timestamp: s.now(),
		Sources:   answer.Sources,
	}, nil
}

// Cancel corresponde a la acción "stop" del usuario.
func (s *ChatService) Cancel(userID, conversationID string) bool {
	return s.turns.Cancel(HistoryKey(userID, conversationID))
}

func (s *ChatService) History(ctx context.Context, userID, conversationID string) ([]domain.ChatMessage, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrConversationNeeded
	}
	return s.history.List(ctx, HistoryKey(userID, conversationID))
}

// ClearHistory no borra mientras haya un turno en curso.
func (s *ChatService) ClearHistory(ctx context.Context, userID, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrConversationNeeded
	}
	key := HistoryKey(userID, conversationID)
	if s.turns.Active(key) {
		return ErrTurnInProgress
	}
	return s.history.Clear(ctx, key)
}
