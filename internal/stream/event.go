package stream

import (
	"encoding/json"
	"fmt"

	"localchat/internal/domain"
)

const (
	EventDelta = "delta"
	EventDone  = "done"
	EventError = "error"
)

// Event es el payload SSE que el API de chat envía a sus clientes.
type Event struct {
	Type           string              `json:"type"`
	ConversationID string              `json:"conversation_id,omitempty"`
	Content        string              `json:"content,omitempty"`
	Reasoning      string              `json:"reasoning,omitempty"`
	Message        *domain.ChatMessage `json:"message,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// DeltaEvent arma el evento para un fragmento.
func DeltaEvent(conversationID string, d Delta) Event {
	return Event{Type: EventDelta, ConversationID: conversationID, Content: d.Content, Reasoning: d.Reasoning}
}

// EventDecoder lee los eventos del API de chat y guarda el mensaje final.
type EventDecoder struct {
	Final          *domain.ChatMessage
	ConversationID string
	Err            string
}

func (d *EventDecoder) Decode(line []byte) Decoded {
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return skipped(fmt.Errorf("%w: %v", ErrMalformedEvent, err))
	}
	if ev.ConversationID != "" {
		d.ConversationID = ev.ConversationID
	}
	switch ev.Type {
	case EventDelta:
		return fragment(Delta{Content: ev.Content, Reasoning: ev.Reasoning})
	case EventDone, EventError:
		d.Final = ev.Message
		d.Err = ev.Error
		return fragment(Delta{Done: true})
	default:
		return skipped(fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, ev.Type))
	}
}
