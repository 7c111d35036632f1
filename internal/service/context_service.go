package service

import (
	"sort"
	"strings"

	"localchat/internal/domain"
	"localchat/internal/llm"
)

const defaultHistoryWindow = 20

// ContextWindow decide qué parte del historial viaja al modelo en cada turno.
type ContextWindow struct {
	MaxMessages int
	System      string
}

// Build ordena por timestamp, descarta disculpas y mensajes vacíos, y se queda
// con los últimos MaxMessages antes del mensaje nuevo.
func (w ContextWindow) Build(prior []domain.ChatMessage, next domain.ChatMessage) []llm.Message {
	limit := w.MaxMessages
	if limit <= 0 {
		limit = defaultHistoryWindow
	}

	kept := make([]domain.ChatMessage, 0, len(prior))
	for _, m := range prior {
		if m.Failed || strings.TrimSpace(m.Content) == "" {
			continue
		}
		kept = append(kept, m)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Timestamp.Before(kept[j].Timestamp)
	})
	if len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}

	out := make([]llm.Message, 0, len(kept)+2)
	if sys := strings.TrimSpace(w.System); sys != "" {
		out = append(out, llm.Message{Role: domain.RoleSystem, Content: sys})
	}
	for _, m := range kept {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return append(out, llm.Message{Role: next.Role, Content: next.Content})
}
