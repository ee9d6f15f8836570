// Package notify fans change events out to other listeners of the same
// store: in-process subscribers, other processes over redis, and processes
// that only share the data directory.
package notify

import (
	"context"
	"errors"

	"github.com/rogersnm/skillmap/internal/model"
)

// ErrClosed is returned when publishing to a closed gateway.
var ErrClosed = errors.New("gateway closed")

// Publisher announces events. Delivery is best effort; callers treat errors
// as informational.
type Publisher interface {
	Publish(ctx context.Context, ev model.Event) error
}

// Subscriber delivers events published by others until ctx is done, then
// closes the channel.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan model.Event, error)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, model.Event) error { return nil }

// Multi publishes to every gateway and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev model.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
