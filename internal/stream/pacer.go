package stream

import (
	"context"
	"time"
)

// Pacer introduce una pausa entre líneas procesadas (efecto máquina de escribir).
type Pacer interface {
	Pace(ctx context.Context) error
}

type noPacing struct{}

func (noPacing) Pace(context.Context) error { return nil }

// NoPacing procesa las líneas tan rápido como llegan.
func NoPacing() Pacer { return noPacing{} }

type fixedPacing struct {
	delay time.Duration
}

// FixedPacing espera delay entre líneas; la espera se corta si ctx se cancela.
func FixedPacing(delay time.Duration) Pacer {
	if delay <= 0 {
		return noPacing{}
	}
	return fixedPacing{delay: delay}
}

func (p fixedPacing) Pace(ctx context.Context) error {
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
