// Package channel provides the in-process fire-event bus between the device
// scheduler and the fire-time handler.
package channel

import (
	"context"
	"errors"
	"time"

	"shiftwake/internal/domain"
)

// ErrBufferFull is returned when an emit cannot be buffered within the
// configured emit timeout.
var ErrBufferFull = errors.New("fire event buffer full")

// MetricsSink records bus health. Methods must be non-blocking.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()
}

type Option func(*FireBus)

// WithMetrics attaches a metrics sink to the bus.
func WithMetrics(sink MetricsSink) Option {
	return func(b *FireBus) { b.metrics = sink }
}

// WithEmitTimeout bounds how long Emit blocks on a full buffer.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *FireBus) { b.emitTimeout = d }
}

// FireBus is a buffered channel of fire events.
type FireBus struct {
	ch          chan domain.FireEvent
	emitTimeout time.Duration
	metrics     MetricsSink
}

func NewFireBus(buffer int, opts ...Option) *FireBus {
	b := &FireBus{
		ch:          make(chan domain.FireEvent, buffer),
		emitTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metrics != nil {
		b.metrics.BufferCapacitySet(buffer)
	}
	return b
}

// Emit buffers one fire event. It blocks until buffered, the context is
// cancelled, or the emit timeout elapses (ErrBufferFull).
func (b *FireBus) Emit(ctx context.Context, event domain.FireEvent) error {
	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		if b.metrics != nil {
			b.metrics.BufferSizeUpdate(len(b.ch))
		}
		return nil
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

// Channel exposes the receive side for the fire-time handler.
func (b *FireBus) Channel() <-chan domain.FireEvent {
	return b.ch
}
