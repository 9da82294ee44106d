package dispatch

import (
	"context"

	"github.com/ariefcatur/order-reconciler/internal/orders"
	"github.com/pkg/errors"
)

var ErrBusClosed = errors.New("local bus closed")

// LocalBus is an in-process Publisher for single-node deployments and tests.
// Events live only in memory, so delivery is at-least-once only while the
// process is up.
type LocalBus struct {
	ch     chan orders.Envelope
	closed chan struct{}
}

func NewLocalBus(buf int) *LocalBus {
	return &LocalBus{ch: make(chan orders.Envelope, buf), closed: make(chan struct{})}
}

func (b *LocalBus) Publish(ctx context.Context, env orders.Envelope) error {
	select {
	case <-b.closed:
		return ErrBusClosed
	default:
	}
	select {
	case b.ch <- env:
		return nil
	case <-b.closed:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers queued events until ctx is done, then drains what is left.
func (b *LocalBus) Run(ctx context.Context, d *Dispatcher) error {
	defer close(b.closed)
	for {
		select {
		case env := <-b.ch:
			d.Deliver(ctx, env)
		case <-ctx.Done():
			drain := context.WithoutCancel(ctx)
			for {
				select {
				case env := <-b.ch:
					d.Deliver(drain, env)
				default:
					return nil
				}
			}
		}
	}
}
