package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Delta es el fragmento normalizado de una respuesta en streaming,
// independiente del proveedor que lo emitió.
type Delta struct {
	Content   string
	Reasoning string
	Done      bool
}

func (d Delta) empty() bool {
	return d.Content == "" && d.Reasoning == ""
}

// Decoded es el resultado de decodificar una línea: un fragmento o un descarte.
type Decoded struct {
	Delta Delta
	Skip  bool
	Err   error
}

func fragment(d Delta) Decoded {
	return Decoded{Delta: d}
}

func skipped(err error) Decoded {
	return Decoded{Skip: true, Err: err}
}

// Decoder convierte una línea (ya sin prefijo) en un Decoded.
type Decoder interface {
	Decode(line []byte) Decoded
}

var (
	ErrMalformedEvent = errors.New("malformed stream event")
	ErrProviderError  = errors.New("provider reported an error")
)

const doneSentinel = "[DONE]"

// OllamaDecoder entiende los eventos de /api/chat de Ollama.
type OllamaDecoder struct{}

type ollamaEvent struct {
	Message *struct {
		Content  string `json:"content"`
		Thinking string `json:"thinking"`
	} `json:"message"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (OllamaDecoder) Decode(line []byte) Decoded {
	if string(line) == doneSentinel {
		return fragment(Delta{Done: true})
	}
	var ev ollamaEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return skipped(fmt.Errorf("%w: %v", ErrMalformedEvent, err))
	}
	if ev.Error != "" {
		return skipped(fmt.Errorf("%w: %s", ErrProviderError, ev.Error))
	}
	d := Delta{Content: ev.Response, Done: ev.Done}
	if ev.Message != nil {
		d.Content += ev.Message.Content
		d.Reasoning = ev.Message.Thinking
	}
	return fragment(d)
}

// OpenAIDecoder entiende los chunks chat.completion.chunk de APIs compatibles con OpenAI.
type OpenAIDecoder struct{}

type openAIEvent struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			Reasoning        string `json:"reasoning"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (OpenAIDecoder) Decode(line []byte) Decoded {
	if string(line) == doneSentinel {
		return fragment(Delta{Done: true})
	}
	var ev openAIEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return skipped(fmt.Errorf("%w: %v", ErrMalformedEvent, err))
	}
	if ev.Error != nil {
		return skipped(fmt.Errorf("%w: %s", ErrProviderError, ev.Error.Message))
	}
	if len(ev.Choices) == 0 {
		return fragment(Delta{})
	}
	choice := ev.Choices[0]
	reasoning := choice.Delta.ReasoningContent
	if reasoning == "" {
		reasoning = choice.Delta.Reasoning
	}
	return fragment(Delta{
		Content:   choice.Delta.Content,
		Reasoning: reasoning,
		Done:      choice.FinishReason != nil && *choice.FinishReason != "",
	})
}

// DecoderFor elige el decoder según el nombre del proveedor.
func DecoderFor(provider string) Decoder {
	switch provider {
	case "openai":
		return OpenAIDecoder{}
	default:
		return OllamaDecoder{}
	}
}

func trimLine(line []byte, prefix string) []byte {
	line = bytes.TrimSpace(line)
	if prefix != "" && bytes.HasPrefix(line, []byte(prefix)) {
		line = bytes.TrimSpace(line[len(prefix):])
	}
	return line
}
