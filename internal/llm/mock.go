package llm

import (
	"context"
	"io"
	"strings"
	"sync"

	"localchat/internal/stream"
)

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	Reply     Reply
	Err       error
	StreamErr error
	// Body es el cuerpo devuelto por Stream; Reader tiene prioridad si no es nil.
	Body   string
	Reader io.ReadCloser

	mu       sync.Mutex
	Received [][]Message
}

func (m *MockClient) record(messages []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Received = append(m.Received, append([]Message(nil), messages...))
}

func (m *MockClient) Complete(_ context.Context, messages []Message) (Reply, error) {
	m.record(messages)
	return m.Reply, m.Err
}

func (m *MockClient) Stream(_ context.Context, messages []Message) (io.ReadCloser, error) {
	m.record(messages)
	if m.StreamErr != nil {
		return nil, m.StreamErr
	}
	if m.Reader != nil {
		return m.Reader, nil
	}
	return io.NopCloser(strings.NewReader(m.Body)), nil
}

func (m *MockClient) Decoder() stream.Decoder {
	return stream.OllamaDecoder{}
}

func (m *MockClient) Ping(context.Context) error {
	return m.Err
}
