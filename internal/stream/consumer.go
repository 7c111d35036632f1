package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"localchat/internal/domain"
	"localchat/internal/metrics"
)

// ErrDelivery indica que el transporte falló sin que nadie cancelara el turno.
var ErrDelivery = errors.New("stream delivery failed")

const (
	defaultReadSize = 4096
	// DataPrefix es el prefijo de eventos SSE.
	DataPrefix = "data:"
)

// Result es el estado final de un consumo; lo posee quien llamó a Consume.
type Result struct {
	Content     string
	Reasoning   string
	Completed   bool
	Interrupted bool
	Lines       int
	Skipped     int
}

// Message cierra el resultado en un mensaje inmutable del asistente.
func (r Result) Message(now time.Time) domain.ChatMessage {
	return domain.ChatMessage{
		Role:        domain.RoleAssistant,
		Content:     r.Content,
		Thinking:    r.Reasoning,
		Timestamp:   now,
		Interrupted: r.Interrupted,
	}
}

// Consumer lee un stream de eventos delimitados por línea y acumula
// razonamiento y contenido.
type Consumer struct {
	decoder  Decoder
	prefix   string
	pacer    Pacer
	logger   *zap.Logger
	onDelta  func(Delta)
	readSize int
}

type Option func(*Consumer)

// WithPrefix define el prefijo de evento a quitar antes de decodificar.
func WithPrefix(prefix string) Option {
	return func(c *Consumer) { c.prefix = prefix }
}

func WithPacer(p Pacer) Option {
	return func(c *Consumer) {
		if p != nil {
			c.pacer = p
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithOnDelta registra un callback invocado tras acumular cada fragmento.
func WithOnDelta(fn func(Delta)) Option {
	return func(c *Consumer) { c.onDelta = fn }
}

func withReadSize(n int) Option {
	return func(c *Consumer) { c.readSize = n }
}

func NewConsumer(decoder Decoder, opts ...Option) *Consumer {
	if decoder == nil {
		decoder = OllamaDecoder{}
	}
	c := &Consumer{
		decoder:  decoder,
		prefix:   DataPrefix,
		pacer:    NoPacing(),
		logger:   zap.NewNop(),
		readSize: defaultReadSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.readSize <= 0 {
		c.readSize = defaultReadSize
	}
	return c
}

type accumulator struct {
	content   strings.Builder
	reasoning strings.Builder
	lines     int
	skipped   int
}

func (a *accumulator) result(completed, interrupted bool) Result {
	return Result{
		Content:     a.content.String(),
		Reasoning:   a.reasoning.String(),
		Completed:   completed,
		Interrupted: interrupted,
		Lines:       a.lines,
		Skipped:     a.skipped,
	}
}

// Consume procesa r hasta ver la marca de fin, el cierre del transporte o la
// cancelación de ctx. La cancelación no es un error: devuelve Interrupted=true
// con lo acumulado hasta la última línea procesada.
func (c *Consumer) Consume(ctx context.Context, r io.Reader) (Result, error) {
	var (
		acc     accumulator
		pending []byte
		buf     = make([]byte, c.readSize)
	)

	for {
		if ctx.Err() != nil {
			return c.interrupt(r, &acc), nil
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				// Read pudo volver con datos después de cancelar: no se pliegan.
				if ctx.Err() != nil {
					return c.interrupt(r, &acc), nil
				}
				idx := bytes.IndexByte(pending, '\n')
				if idx < 0 {
					break
				}
				line := pending[:idx]
				pending = pending[idx+1:]

				if c.processLine(ctx, line, &acc) {
					return acc.result(true, false), nil
				}
			}
		}

		if readErr == nil {
			continue
		}
		if ctx.Err() != nil {
			return c.interrupt(r, &acc), nil
		}
		if errors.Is(readErr, io.EOF) {
			if len(bytes.TrimSpace(pending)) > 0 && c.processLine(ctx, pending, &acc) {
				return acc.result(true, false), nil
			}
			return acc.result(false, false), nil
		}
		if ctx.Err() != nil {
			return c.interrupt(r, &acc), nil
		}
		return acc.result(false, false), fmt.Errorf("%w: %v", ErrDelivery, readErr)
	}
}

// processLine decodifica y acumula una línea; devuelve true cuando el stream terminó.
func (c *Consumer) processLine(ctx context.Context, raw []byte, acc *accumulator) bool {
	line := trimLine(raw, c.prefix)
	if len(line) == 0 {
		return false
	}
	acc.lines++

	decoded := c.decoder.Decode(line)
	if decoded.Skip {
		acc.skipped++
		metrics.StreamSkippedLinesTotal.Inc()
		c.logger.Warn("skipping stream line", zap.Error(decoded.Err), zap.ByteString("line", truncate(line, 200)))
		return false
	}

	d := decoded.Delta
	if !d.empty() {
		acc.reasoning.WriteString(d.Reasoning)
		acc.content.WriteString(d.Content)
		if c.onDelta != nil {
			c.onDelta(d)
		}
	}
	if d.Done {
		return true
	}
	if !d.empty() {
		_ = c.pacer.Pace(ctx)
	}
	return false
}

func (c *Consumer) interrupt(r io.Reader, acc *accumulator) Result {
	if closer, ok := r.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Debug("close interrupted stream", zap.Error(err))
		}
	}
	return acc.result(false, true)
}

func truncate(b []byte, max int) []byte {
	if len(b) <= max {
		return b
	}
	return b[:max]
}
