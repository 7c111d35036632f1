package service

import (
	"context"
	"sync"
)

// TurnRegistry lleva el turno en curso de cada conversación y su cancelación.
type TurnRegistry struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

func NewTurnRegistry() *TurnRegistry {
	return &TurnRegistry{active: make(map[string]context.CancelFunc)}
}

// Begin registra un turno para key. Devuelve ErrTurnInProgress si ya hay uno.
// release debe llamarse al terminar el turno.
func (r *TurnRegistry) Begin(parent context.Context, key string) (context.Context, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[key]; busy {
		return nil, nil, ErrTurnInProgress
	}
	ctx, cancel := context.WithCancel(parent)
	r.active[key] = cancel

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.active, key)
			r.mu.Unlock()
			cancel()
		})
	}
	return ctx, release, nil
}

// Cancel dispara la cancelación del turno en curso; false si no había ninguno.
func (r *TurnRegistry) Cancel(key string) bool {
	r.mu.Lock()
	cancel, ok := r.active[key]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

func (r *TurnRegistry) Active(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[key]
	return ok
}
