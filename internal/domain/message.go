package domain

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage es un turno ya cerrado dentro del historial de una conversación.
type ChatMessage struct {
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Thinking    string    `json:"thinking,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Interrupted bool      `json:"interrupted"`
	Failed      bool      `json:"failed,omitempty"`
	Sources     []Source  `json:"sources,omitempty"`
}

// Source referencia un fragmento recuperado que respalda una respuesta RAG.
type Source struct {
	FileName  string  `json:"file_name"`
	PageLabel string  `json:"page_label,omitempty"`
	Score     float64 `json:"score"`
}
