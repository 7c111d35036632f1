package service

import (
	"strings"
	"sync"
	"time"
)

// LoginRateLimiter limita los intentos fallidos de login por clave.
// Allow solo consulta; Fail registra un fallo y Reset limpia la clave tras un login válido.
type LoginRateLimiter interface {
	Allow(key string) bool
	Fail(key string)
	Reset(key string)
}

type loginRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewLoginRateLimiter crea un rate limiter en memoria de ventana deslizante.
func NewLoginRateLimiter(window time.Duration, max int) LoginRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &loginRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func normalizeLoginKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// prune descarta los fallos fuera de la ventana. Requiere l.mu tomado.
func (l *loginRateLimiter) prune(key string) []time.Time {
	cutoff := l.now().Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = kept
	return kept
}

func (l *loginRateLimiter) Allow(key string) bool {
	key = normalizeLoginKey(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(key)) < l.max
}

func (l *loginRateLimiter) Fail(key string) {
	key = normalizeLoginKey(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits[key] = append(l.prune(key), l.now())
}

func (l *loginRateLimiter) Reset(key string) {
	key = normalizeLoginKey(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
}
